package domain

import "context"

// IdentityStore persists the long-term identity keys of this device.
type IdentityStore interface {
	SaveIdentity(passphrase string, id Identity) error
	LoadIdentity(passphrase string) (Identity, error)
}

// PreKeyStore manages signed and one-time prekeys on disk.
type PreKeyStore interface {
	SaveSignedPreKey(id string, priv X25519Private, pub X25519Public, sig []byte) error
	LoadSignedPreKey(id string) (priv X25519Private, pub X25519Public, sig []byte, ok bool, err error)

	SaveOneTimePreKeys(pairs []OneTimePreKeyPair) error
	ConsumeOneTimePreKey(id string) (priv X25519Private, pub X25519Public, ok bool, err error)
	ListOneTimePreKeyPublics() ([]OneTimePreKeyPublic, error)

	SetCurrentSignedPreKeyID(id string) error
	CurrentSignedPreKeyID() (string, bool, error)
}

// SessionStore persists established X3DH sessions per peer device.
type SessionStore interface {
	SaveSession(contact UserID, device DeviceID, sess Session) error
	LoadSession(contact UserID, device DeviceID) (Session, bool, error)
}

// RatchetStore keeps Double-Ratchet state per peer device.
type RatchetStore interface {
	SaveConversation(contact UserID, device DeviceID, conv Conversation) error
	LoadConversation(contact UserID, device DeviceID) (Conversation, bool, error)
}

// DeviceStore persists the active device registration of this installation.
type DeviceStore interface {
	SaveActiveDevice(user UserID, device DeviceID) error
	// ActiveDevice reports the registered device for user, if any.
	ActiveDevice(user UserID) (DeviceID, bool, error)
	// Registration reports the stored user and device pair, if any.
	Registration() (UserID, DeviceID, bool, error)
}

// Outbox is the durable queue of outgoing messages. The dispatch pipeline
// only loads and marks; enqueueing belongs to the composer.
type Outbox interface {
	Enqueue(msg OutgoingMessage) error
	LoadMessage(id MessageID) (OutgoingMessage, bool, error)
	MarkSent(id MessageID) error
	MarkFailed(id MessageID, reason string) error
	Pending() ([]OutgoingMessage, error)
}

// Connectivity answers whether the relay is reachable right now.
type Connectivity interface {
	IsConnected(ctx context.Context) bool
}

// Directory resolves the authoritative membership of a conversation,
// contacts with their current device lists.
type Directory interface {
	DetailedMembers(ctx context.Context, conv ConversationID) ([]RecipientContact, error)
}

// SessionOracle answers whether a secure session exists between this device
// and the given peer device.
type SessionOracle interface {
	SessionExists(contact UserID, device DeviceID) (bool, error)
}

// PreKeyFetcher fetches prekey bundles for a batch of missing devices in one
// round trip. The response may contain fewer bundles than requested.
type PreKeyFetcher interface {
	FetchPreKeys(ctx context.Context, missing map[UserID][]DeviceID) ([]DevicePreKeyBundle, error)
}

// SessionEstablisher turns one fetched bundle into an established session.
type SessionEstablisher interface {
	EstablishSession(ctx context.Context, contact UserID, device DeviceID, bundle DevicePreKeyBundle) error
}

// DeviceEncryptor encrypts one message's content for one peer device. It must
// only be called for devices with an established session; a missing session
// surfaces as an error, never as plaintext on the wire.
type DeviceEncryptor interface {
	EncryptForDevice(contact UserID, device DeviceID, msg MessageID, content []byte) (EncryptedPayload, error)
}

// EnvelopeTransport submits one envelope to the relay. A stale recipient
// device set is reported as *StaleDevicesError.
type EnvelopeTransport interface {
	SendEnvelope(ctx context.Context, conv ConversationID, env TransportEnvelope) error
}

// RelayClient is everything the client needs from the relay server.
type RelayClient interface {
	Connectivity
	Directory
	PreKeyFetcher
	EnvelopeTransport

	RegisterDevice(ctx context.Context, reg DeviceRegistration) error
	CreateConversation(ctx context.Context, conv ConversationID, creator UserID) error
	JoinConversation(ctx context.Context, conv ConversationID, user UserID) error
	FetchMailbox(ctx context.Context, user UserID, device DeviceID, limit int) ([]MailboxItem, error)
	AckMailbox(ctx context.Context, user UserID, device DeviceID, count int) error
}

// IdentityService creates, loads, and inspects the local identity keys.
type IdentityService interface {
	GenerateIdentity(passphrase string) (Identity, Fingerprint, error)
	LoadIdentity(passphrase string) (Identity, error)
	FingerprintIdentity(passphrase string) (Fingerprint, error)
}

// PreKeyService generates prekeys and assembles this device's registration.
type PreKeyService interface {
	GenerateAndStorePreKeys(passphrase string, n int) (X25519Public, []X25519Public, error)
	LoadDeviceRegistration(passphrase string, user UserID, device DeviceID) (DeviceRegistration, error)
}

// MessageService owns per-device ratchet encryption and the receive path.
type MessageService interface {
	DeviceEncryptor
	Receive(ctx context.Context, user UserID, device DeviceID, limit int) ([]DecryptedMessage, error)
}
