package message

import (
	"context"
	"errors"
	"fmt"

	"courier/internal/domain"
	"courier/internal/protocol/ratchet"
	"courier/internal/protocol/x3dh"
)

// ErrNoSession indicates there is no stored session with the peer device.
var ErrNoSession = errors.New("no session with peer device")

// Service owns per-device Double Ratchet state on both directions of the
// pipe: it encrypts outgoing content for one peer device at a time and
// decrypts the per-device mailbox on the receive path.
//
// Ratchet state is persisted before a ciphertext leaves this package so a
// crash between encrypt and send cannot reuse a message key.
type Service struct {
	idStore      domain.IdentityStore
	prekeyStore  domain.PreKeyStore
	sessionStore domain.SessionStore
	ratchetStore domain.RatchetStore
	relayClient  domain.RelayClient
	passphrase   string
}

// New constructs a message service with the given stores and relay client.
func New(
	idStore domain.IdentityStore,
	prekeyStore domain.PreKeyStore,
	sessionStore domain.SessionStore,
	ratchetStore domain.RatchetStore,
	relayClient domain.RelayClient,
	passphrase string,
) *Service {
	return &Service{
		idStore:      idStore,
		prekeyStore:  prekeyStore,
		sessionStore: sessionStore,
		ratchetStore: ratchetStore,
		relayClient:  relayClient,
		passphrase:   passphrase,
	}
}

// EncryptForDevice encrypts content for exactly one peer device.
//
// The first payload of a fresh session initialises the ratchet from the
// stored X3DH session and attaches a PreKeyMessage so the receiving device
// can derive the same root. Later payloads carry only ratchet headers.
// A missing session is an error; the caller decides whether to skip the
// device or abort.
func (s *Service) EncryptForDevice(contact domain.UserID, device domain.DeviceID, msg domain.MessageID, content []byte) (domain.EncryptedPayload, error) {
	conv, found, err := s.ratchetStore.LoadConversation(contact, device)
	if err != nil {
		return domain.EncryptedPayload{}, err
	}

	var prekeyMsg *domain.PreKeyMessage
	if !found {
		sess, ok, err := s.sessionStore.LoadSession(contact, device)
		if err != nil {
			return domain.EncryptedPayload{}, err
		}
		if !ok {
			return domain.EncryptedPayload{}, fmt.Errorf("%w: %s/%s", ErrNoSession, contact, device)
		}

		st, err := ratchet.InitAsInitiator(sess.RootKey, sess.PeerIdentityKey)
		if err != nil {
			return domain.EncryptedPayload{}, err
		}
		conv = domain.Conversation{PeerUser: contact, PeerDevice: device, State: st}

		prekeyMsg = &domain.PreKeyMessage{
			InitiatorIdentityKey: sess.OurIdentityKey,
			EphemeralKey:         sess.InitiatorEphemeralKey,
			SignedPreKeyID:       sess.SignedPreKeyID,
			OneTimePreKeyID:      sess.OneTimePreKeyID,
		}
	}

	header, ct, err := ratchet.Encrypt(&conv.State, nil, content)
	if err != nil {
		return domain.EncryptedPayload{}, err
	}

	// Persist the advanced ratchet before handing out the ciphertext.
	if err := s.ratchetStore.SaveConversation(contact, device, conv); err != nil {
		return domain.EncryptedPayload{}, err
	}

	return domain.EncryptedPayload{
		DeviceID: device,
		Header:   header,
		Cipher:   ct,
		PreKey:   prekeyMsg,
	}, nil
}

// Receive fetches pending mailbox items for this device and decrypts them.
//
// Items are processed in order. The first item from a peer device must carry
// a PreKeyMessage to bootstrap X3DH as the responder; if prerequisites are
// missing, processing stops and the remaining items stay queued. Only the
// successfully processed prefix is acked.
func (s *Service) Receive(ctx context.Context, user domain.UserID, device domain.DeviceID, limit int) ([]domain.DecryptedMessage, error) {
	items, err := s.relayClient.FetchMailbox(ctx, user, device, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.DecryptedMessage, 0, len(items))
	processed := 0

	for i, item := range items {
		conv, found, err := s.ratchetStore.LoadConversation(item.From, item.FromDevice)
		if err != nil {
			return out, err
		}

		if !found {
			if item.Payload.PreKey == nil || len(item.Payload.Header.DHPub) != 32 {
				break // leave the rest queued
			}
			st, err := s.bootstrapResponder(item)
			if err != nil {
				return out, err
			}
			conv = domain.Conversation{PeerUser: item.From, PeerDevice: item.FromDevice, State: st}
		}

		plain, err := ratchet.Decrypt(&conv.State, nil, item.Payload.Header, item.Payload.Cipher)
		if err != nil {
			return out, fmt.Errorf("decrypt from %s/%s: %w", item.From, item.FromDevice, err)
		}
		if err := s.ratchetStore.SaveConversation(item.From, item.FromDevice, conv); err != nil {
			return out, fmt.Errorf("saving conversation %s/%s: %w", item.From, item.FromDevice, err)
		}

		out = append(out, domain.DecryptedMessage{
			From:           item.From,
			FromDevice:     item.FromDevice,
			ConversationID: item.ConversationID,
			Plaintext:      plain,
			Timestamp:      item.Timestamp,
		})
		processed = i + 1
	}

	// Ack only what was processed successfully.
	if processed > 0 {
		if err := s.relayClient.AckMailbox(ctx, user, device, processed); err != nil {
			return out, fmt.Errorf("acking %d items: %w", processed, err)
		}
	}
	return out, nil
}

// bootstrapResponder derives the root key from the item's PreKeyMessage and
// seeds the receiving ratchet chain.
func (s *Service) bootstrapResponder(item domain.MailboxItem) (domain.RatchetState, error) {
	pm := item.Payload.PreKey

	id, err := s.idStore.LoadIdentity(s.passphrase)
	if err != nil {
		return domain.RatchetState{}, err
	}

	if pm.SignedPreKeyID == "" {
		return domain.RatchetState{}, fmt.Errorf("prekey message from %s/%s misses signed prekey id", item.From, item.FromDevice)
	}
	spkPriv, _, _, okSPK, err := s.prekeyStore.LoadSignedPreKey(pm.SignedPreKeyID)
	if err != nil {
		return domain.RatchetState{}, err
	}
	if !okSPK {
		return domain.RatchetState{}, fmt.Errorf("signed prekey %q not found", pm.SignedPreKeyID)
	}

	var opkPriv *domain.X25519Private
	if pm.OneTimePreKeyID != "" {
		priv, _, okOPK, err := s.prekeyStore.ConsumeOneTimePreKey(pm.OneTimePreKeyID)
		if err != nil {
			return domain.RatchetState{}, err
		}
		if okOPK {
			opkPriv = &priv
		}
	}

	root, err := x3dh.ResponderRoot(id, spkPriv, opkPriv, *pm)
	if err != nil {
		return domain.RatchetState{}, fmt.Errorf("x3dh responder root: %w", err)
	}

	var senderPub domain.X25519Public
	copy(senderPub[:], item.Payload.Header.DHPub)
	return ratchet.InitAsResponder(root, id.XPriv, senderPub)
}

// Compile-time assertion that Service implements domain.MessageService.
var _ domain.MessageService = (*Service)(nil)
