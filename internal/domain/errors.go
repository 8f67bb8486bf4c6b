package domain

import (
	"errors"
	"fmt"
)

// DispatchFailureKind names the terminal outcomes a caller of Dispatch can see.
type DispatchFailureKind string

const (
	// FailureNetworkUnavailable covers both "no connectivity" before any work
	// starts and transient transport failures; the caller may retry later.
	FailureNetworkUnavailable DispatchFailureKind = "network_unavailable"
	// FailureUnauthorized means no active device session exists locally.
	FailureUnauthorized DispatchFailureKind = "unauthorized"
	// FailureMessageNotFound means the queued message no longer exists; the
	// attempt is not retried.
	FailureMessageNotFound DispatchFailureKind = "message_not_found"
	// FailureTooManyDeviceChanges means the recipient device set kept changing
	// past the configured retry bound.
	FailureTooManyDeviceChanges DispatchFailureKind = "too_many_device_changes"
)

// DispatchError is the terminal failure of one Dispatch call.
type DispatchError struct {
	Kind  DispatchFailureKind
	Cause error
}

func (e *DispatchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("dispatch: %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("dispatch: %s", e.Kind)
}

func (e *DispatchError) Unwrap() error { return e.Cause }

// DispatchFailure extracts the failure kind from err, if it carries one.
func DispatchFailure(err error) (DispatchFailureKind, bool) {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}

// StaleDevicesError is the relay's report that the device set an envelope was
// encrypted for no longer matches the registered device set. Missing lists
// registered devices the envelope skipped; Extra lists envelope devices the
// relay no longer knows.
type StaleDevicesError struct {
	Missing map[UserID][]DeviceID
	Extra   map[UserID][]DeviceID
}

func (e *StaleDevicesError) Error() string {
	return fmt.Sprintf("stale device set: %d contacts missing devices, %d contacts with removed devices",
		len(e.Missing), len(e.Extra))
}
