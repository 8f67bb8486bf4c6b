package domain

// Session holds the X3DH-derived root key and metadata for one peer device.
// Sessions are keyed by (peer user, peer device); two devices of the same
// contact never share a session.
type Session struct {
	PeerUser              UserID       `json:"peer_user"`
	PeerDevice            DeviceID     `json:"peer_device"`
	RootKey               []byte       `json:"root_key"`
	OurIdentityKey        X25519Public `json:"our_identity_key"`
	PeerIdentityKey       X25519Public `json:"peer_identity_key"`
	PeerSignedPreKey      X25519Public `json:"peer_signed_pre_key"`
	SignedPreKeyID        string       `json:"signed_pre_key_id"`
	OneTimePreKeyID       string       `json:"one_time_pre_key_id,omitempty"`
	InitiatorEphemeralKey X25519Public `json:"initiator_ephemeral_key"`
	CreatedUTC            int64        `json:"created_utc"`
}

// RatchetHeader is sent alongside every ciphertext.
type RatchetHeader struct {
	DHPub []byte `json:"dh_pub"` // 32 bytes
	PN    uint32 `json:"pn"`
	N     uint32 `json:"n"`
}

// RatchetState contains all fields the Double Ratchet needs to track.
type RatchetState struct {
	RootKey   []byte            `json:"root_key"`
	DHPriv    X25519Private     `json:"dh_priv"`
	DHPub     X25519Public      `json:"dh_pub"`
	PeerDHPub X25519Public      `json:"peer_dh_pub"`
	SendCK    []byte            `json:"send_ck,omitempty"`
	RecvCK    []byte            `json:"recv_ck,omitempty"`
	Ns        uint32            `json:"ns"`
	Nr        uint32            `json:"nr"`
	PN        uint32            `json:"pn"`
	Skipped   map[string][]byte `json:"skipped_keys"`
}

// Conversation persists the ratchet state for one peer device.
type Conversation struct {
	PeerUser   UserID       `json:"peer_user"`
	PeerDevice DeviceID     `json:"peer_device"`
	State      RatchetState `json:"state"`
}
