package domain

// OneTimePreKeyPair is the full (private+public) one-time prekey stored locally.
type OneTimePreKeyPair struct {
	ID   string        `json:"id"`
	Priv X25519Private `json:"priv"`
	Pub  X25519Public  `json:"pub"`
}

// OneTimePreKeyPublic is only the public half (served in bundles).
type OneTimePreKeyPublic struct {
	ID  string       `json:"id"`
	Pub X25519Public `json:"pub"`
}

// DevicePreKeyBundle is the key material published by one device and fetched
// when a session with that device has to be bootstrapped. ContactID and
// DeviceID let a batched fetch response map back to the pair it was requested
// for. A bundle is consumed by exactly one session establishment.
type DevicePreKeyBundle struct {
	ContactID       UserID               `json:"contact_id"`
	DeviceID        DeviceID             `json:"device_id"`
	IdentityKey     X25519Public         `json:"identity_key"`
	SigningKey      Ed25519Public        `json:"signing_key"`
	SignedPreKeyID  string               `json:"signed_pre_key_id"`
	SignedPreKey    X25519Public         `json:"signed_pre_key"`
	SignedPreKeySig []byte               `json:"signed_pre_key_sig"`
	OneTimePreKey   *OneTimePreKeyPublic `json:"one_time_pre_key,omitempty"`
}

// DeviceRegistration is what a device publishes to the relay: its bundle plus
// the full list of one-time prekeys the relay may hand out (one per fetch).
type DeviceRegistration struct {
	Bundle  DevicePreKeyBundle    `json:"bundle"`
	OneTime []OneTimePreKeyPublic `json:"one_time,omitempty"`
}

// PreKeyMessage carries the X3DH handshake parameters inside the first
// payload a device sends to a peer device.
type PreKeyMessage struct {
	InitiatorIdentityKey X25519Public `json:"initiator_identity_key"`
	EphemeralKey         X25519Public `json:"ephemeral_key"`
	SignedPreKeyID       string       `json:"signed_pre_key_id"`
	OneTimePreKeyID      string       `json:"one_time_pre_key_id,omitempty"`
}
