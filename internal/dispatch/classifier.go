package dispatch

import (
	"errors"

	"courier/internal/domain"
)

// SendOutcome is the dispatcher-visible interpretation of a transport result.
type SendOutcome int

const (
	// SendAccepted means the relay took the envelope.
	SendAccepted SendOutcome = iota
	// SendRetryRecipients means the device set used for encryption is stale;
	// the dispatcher must re-resolve and rebuild the envelope.
	SendRetryRecipients
	// SendNetworkFailure covers every other failure. Unrecognized responses
	// land here too: an unknown error must never count as delivered.
	SendNetworkFailure
)

// ClassifySendFailure maps a transport send result onto the three outcomes
// the dispatcher distinguishes.
func ClassifySendFailure(err error) SendOutcome {
	if err == nil {
		return SendAccepted
	}
	var stale *domain.StaleDevicesError
	if errors.As(err, &stale) {
		return SendRetryRecipients
	}
	return SendNetworkFailure
}
