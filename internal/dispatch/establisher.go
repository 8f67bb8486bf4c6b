package dispatch

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"courier/internal/domain"
)

// Establisher turns a set of session-less devices into live sessions using a
// single batched prekey fetch.
type Establisher struct {
	fetcher  domain.PreKeyFetcher
	sessions domain.SessionEstablisher
}

// NewEstablisher constructs an Establisher.
func NewEstablisher(fetcher domain.PreKeyFetcher, sessions domain.SessionEstablisher) *Establisher {
	return &Establisher{fetcher: fetcher, sessions: sessions}
}

// Establish fetches prekey bundles for every device in missing and runs the
// handshake for each bundle returned. An empty map is a no-op; no network
// call is made. The relay may return fewer bundles than requested (devices
// can disappear between resolution and fetch); that is not an error, the
// absent devices simply stay session-less.
func (e *Establisher) Establish(ctx context.Context, missing map[domain.UserID][]domain.DeviceID) error {
	if len(missing) == 0 {
		return nil
	}

	bundles, err := e.fetcher.FetchPreKeys(ctx, missing)
	if err != nil {
		return fmt.Errorf("fetch prekeys: %w", err)
	}

	for _, bundle := range bundles {
		if err := e.sessions.EstablishSession(ctx, bundle.ContactID, bundle.DeviceID, bundle); err != nil {
			return fmt.Errorf("establish session with %s/%s: %w", bundle.ContactID, bundle.DeviceID, err)
		}
		logrus.WithFields(logrus.Fields{
			"contact": bundle.ContactID,
			"device":  bundle.DeviceID,
		}).Debug("Established new session")
	}
	return nil
}
