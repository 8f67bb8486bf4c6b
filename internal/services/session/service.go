package session

import (
	"context"
	"fmt"
	"time"

	"courier/internal/domain"
	"courier/internal/protocol/x3dh"
)

// Service performs X3DH initiation per peer device and persists the results.
//
// A session is the shared root key plus the handshake metadata the first
// message to that device must carry. One session exists per (contact, device)
// pair; devices of the same contact never share cryptographic state.
type Service struct {
	idStore      domain.IdentityStore
	sessionStore domain.SessionStore
	passphrase   string
}

// New constructs a session service with the given stores. The passphrase
// unlocks the identity keystore when a handshake needs the identity keys.
func New(idStore domain.IdentityStore, sessionStore domain.SessionStore, passphrase string) *Service {
	return &Service{idStore: idStore, sessionStore: sessionStore, passphrase: passphrase}
}

// SessionExists reports whether a session with (contact, device) is stored.
func (s *Service) SessionExists(contact domain.UserID, device domain.DeviceID) (bool, error) {
	_, ok, err := s.sessionStore.LoadSession(contact, device)
	return ok, err
}

// EstablishSession runs X3DH as the initiator against the fetched bundle and
// persists the resulting session. The bundle's one-time prekey, if present,
// is consumed by this handshake and must not be offered to anyone else.
func (s *Service) EstablishSession(ctx context.Context, contact domain.UserID, device domain.DeviceID, bundle domain.DevicePreKeyBundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, err := s.idStore.LoadIdentity(s.passphrase)
	if err != nil {
		return fmt.Errorf("loading identity: %w", err)
	}

	root, ephPub, err := x3dh.InitiatorRoot(id, bundle)
	if err != nil {
		return fmt.Errorf("x3dh with %s/%s: %w", contact, device, err)
	}

	sess := domain.Session{
		PeerUser:              contact,
		PeerDevice:            device,
		RootKey:               root,
		OurIdentityKey:        id.XPub,
		PeerIdentityKey:       bundle.IdentityKey,
		PeerSignedPreKey:      bundle.SignedPreKey,
		SignedPreKeyID:        bundle.SignedPreKeyID,
		InitiatorEphemeralKey: ephPub,
		CreatedUTC:            time.Now().Unix(),
	}
	if bundle.OneTimePreKey != nil {
		sess.OneTimePreKeyID = bundle.OneTimePreKey.ID
	}
	if err := s.sessionStore.SaveSession(contact, device, sess); err != nil {
		return fmt.Errorf("saving session %s/%s: %w", contact, device, err)
	}
	return nil
}

// Compile-time assertions for the collaborator contracts this service fills.
var (
	_ domain.SessionOracle      = (*Service)(nil)
	_ domain.SessionEstablisher = (*Service)(nil)
)
