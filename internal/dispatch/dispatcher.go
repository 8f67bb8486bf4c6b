package dispatch

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"courier/internal/domain"
)

// defaultMaxDeviceChangeRetries bounds how many times a single dispatch may
// rebuild its envelope after the relay reports a stale device set.
const defaultMaxDeviceChangeRetries = 3

// Config holds the dispatcher's tunables.
type Config struct {
	// MaxDeviceChangeRetries is the number of additional attempts allowed
	// after a stale-devices rejection. Zero means use the default.
	MaxDeviceChangeRetries int
}

func (c Config) withDefaults() Config {
	if c.MaxDeviceChangeRetries <= 0 {
		c.MaxDeviceChangeRetries = defaultMaxDeviceChangeRetries
	}
	return c
}

type dispatchJob struct {
	ctx     context.Context
	message domain.MessageID
	result  chan error
}

// Dispatcher drives a queued message through resolution, encryption and
// transport. All dispatches are serialized through a single worker so that
// ratchet state advances for one message at a time.
type Dispatcher struct {
	cfg          Config
	connectivity domain.Connectivity
	devices      domain.DeviceStore
	outbox       domain.Outbox
	resolver     *Resolver
	encryptor    *Encryptor
	transport    domain.EnvelopeTransport
	sender       domain.UserID

	jobs chan dispatchJob
	quit chan struct{}
}

// NewDispatcher constructs a Dispatcher for the given local user and starts
// its worker. Call Close when done.
func NewDispatcher(
	cfg Config,
	sender domain.UserID,
	connectivity domain.Connectivity,
	devices domain.DeviceStore,
	outbox domain.Outbox,
	resolver *Resolver,
	encryptor *Encryptor,
	transport domain.EnvelopeTransport,
) *Dispatcher {
	d := &Dispatcher{
		cfg:          cfg.withDefaults(),
		connectivity: connectivity,
		devices:      devices,
		outbox:       outbox,
		resolver:     resolver,
		encryptor:    encryptor,
		transport:    transport,
		sender:       sender,
		jobs:         make(chan dispatchJob),
		quit:         make(chan struct{}),
	}
	go d.run()
	return d
}

// Close stops the worker. Pending Dispatch calls that have not yet been
// accepted fail; the in-flight one, if any, runs to completion.
func (d *Dispatcher) Close() {
	close(d.quit)
}

// Dispatch sends the identified outbox message and blocks until the attempt
// finishes. The outcome is reflected in the outbox: MarkSent exactly once on
// success, MarkFailed with the failure kind otherwise.
func (d *Dispatcher) Dispatch(ctx context.Context, message domain.MessageID) error {
	job := dispatchJob{ctx: ctx, message: message, result: make(chan error, 1)}
	select {
	case d.jobs <- job:
	case <-d.quit:
		return fmt.Errorf("dispatcher closed")
	}
	return <-job.result
}

func (d *Dispatcher) run() {
	for {
		select {
		case job := <-d.jobs:
			job.result <- d.dispatch(job.ctx, job.message)
		case <-d.quit:
			return
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, message domain.MessageID) error {
	err := d.attempt(ctx, message)
	if err == nil {
		return nil
	}
	if kind, ok := domain.DispatchFailure(err); ok {
		if mErr := d.outbox.MarkFailed(message, string(kind)); mErr != nil {
			logrus.WithError(mErr).WithField("message", message).Warn("Failed to record dispatch failure")
		}
	}
	return err
}

func (d *Dispatcher) attempt(ctx context.Context, message domain.MessageID) error {
	if !d.connectivity.IsConnected(ctx) {
		return &domain.DispatchError{Kind: domain.FailureNetworkUnavailable}
	}

	senderDevice, ok, err := d.devices.ActiveDevice(d.sender)
	if err != nil {
		return err
	}
	if !ok {
		return &domain.DispatchError{Kind: domain.FailureUnauthorized}
	}

	msg, ok, err := d.outbox.LoadMessage(message)
	if err != nil {
		return err
	}
	if !ok {
		return &domain.DispatchError{Kind: domain.FailureMessageNotFound}
	}

	for attempt := 0; attempt <= d.cfg.MaxDeviceChangeRetries; attempt++ {
		recipients, err := d.resolver.PrepareRecipients(ctx, d.sender, senderDevice, msg.ConversationID)
		if err != nil {
			return &domain.DispatchError{Kind: domain.FailureNetworkUnavailable, Cause: err}
		}

		env, skipped := d.encryptor.BuildEnvelope(d.sender, senderDevice, msg, recipients)
		for _, s := range skipped {
			logrus.WithFields(logrus.Fields{
				"message": msg.ID,
				"contact": s.ContactID,
				"device":  s.DeviceID,
				"reason":  s.Reason,
			}).Warn("Skipped undecryptable device")
		}

		sendErr := d.transport.SendEnvelope(ctx, msg.ConversationID, env)
		switch ClassifySendFailure(sendErr) {
		case SendAccepted:
			if err := d.outbox.MarkSent(msg.ID); err != nil {
				return fmt.Errorf("mark sent: %w", err)
			}
			return nil
		case SendRetryRecipients:
			logrus.WithFields(logrus.Fields{
				"message": msg.ID,
				"attempt": attempt + 1,
			}).Info("Device set changed, re-resolving recipients")
			continue
		default:
			return &domain.DispatchError{Kind: domain.FailureNetworkUnavailable, Cause: sendErr}
		}
	}

	return &domain.DispatchError{Kind: domain.FailureTooManyDeviceChanges}
}
