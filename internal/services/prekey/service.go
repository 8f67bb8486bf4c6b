package prekey

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"courier/internal/crypto"
	"courier/internal/domain"
)

var errNoSignedPreKey = errors.New("no signed prekey available; run generate first")

// Service manages prekey pairs and builds this device's registration.
type Service struct {
	ids domain.IdentityStore
	ps  domain.PreKeyStore
}

// New constructs a prekey service with the given stores.
func New(ids domain.IdentityStore, ps domain.PreKeyStore) *Service {
	return &Service{ids: ids, ps: ps}
}

// GenerateAndStorePreKeys creates a signed-prekey pair and n one-time pairs,
// marking the new signed prekey as current.
func (s *Service) GenerateAndStorePreKeys(passphrase string, n int) (domain.X25519Public, []domain.X25519Public, error) {
	id, err := s.ids.LoadIdentity(passphrase)
	if err != nil {
		return domain.X25519Public{}, nil, err
	}

	// Signed prekey
	spkPriv, spkPub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.X25519Public{}, nil, err
	}
	spkID := fmt.Sprintf("spk-%d", time.Now().Unix())
	sig := crypto.SignEd25519(id.EdPriv, spkPub.Slice())
	if err := s.ps.SaveSignedPreKey(spkID, spkPriv, spkPub, sig); err != nil {
		return domain.X25519Public{}, nil, err
	}
	if err := s.ps.SetCurrentSignedPreKeyID(spkID); err != nil {
		return domain.X25519Public{}, nil, err
	}

	// One-time prekeys
	pairs := make([]domain.OneTimePreKeyPair, 0, n)
	publics := make([]domain.X25519Public, 0, n)
	for i := 0; i < n; i++ {
		priv, pub, err := crypto.GenerateX25519()
		if err != nil {
			return domain.X25519Public{}, nil, err
		}
		pairs = append(pairs, domain.OneTimePreKeyPair{ID: "opk-" + uuid.NewString(), Priv: priv, Pub: pub})
		publics = append(publics, pub)
	}
	if err := s.ps.SaveOneTimePreKeys(pairs); err != nil {
		return domain.X25519Public{}, nil, err
	}
	return spkPub, publics, nil
}

// LoadDeviceRegistration assembles the registration payload for (user, device)
// from the current signed prekey and the remaining one-time publics.
func (s *Service) LoadDeviceRegistration(passphrase string, user domain.UserID, device domain.DeviceID) (domain.DeviceRegistration, error) {
	id, err := s.ids.LoadIdentity(passphrase)
	if err != nil {
		return domain.DeviceRegistration{}, err
	}

	spkID, ok, err := s.ps.CurrentSignedPreKeyID()
	if err != nil {
		return domain.DeviceRegistration{}, err
	}
	if !ok {
		return domain.DeviceRegistration{}, errNoSignedPreKey
	}
	_, spkPub, sig, found, err := s.ps.LoadSignedPreKey(spkID)
	if err != nil {
		return domain.DeviceRegistration{}, err
	}
	if !found {
		return domain.DeviceRegistration{}, errNoSignedPreKey
	}

	oneTime, err := s.ps.ListOneTimePreKeyPublics()
	if err != nil {
		return domain.DeviceRegistration{}, err
	}

	return domain.DeviceRegistration{
		Bundle: domain.DevicePreKeyBundle{
			ContactID:       user,
			DeviceID:        device,
			IdentityKey:     id.XPub,
			SigningKey:      id.EdPub,
			SignedPreKeyID:  spkID,
			SignedPreKey:    spkPub,
			SignedPreKeySig: sig,
		},
		OneTime: oneTime,
	}, nil
}

// Compile-time assertion that Service implements domain.PreKeyService.
var _ domain.PreKeyService = (*Service)(nil)
