package domain

// UserID is a relay-registered account identity.
type UserID string

// String returns the string form of the user identifier.
func (u UserID) String() string { return string(u) }

// DeviceID identifies one cryptographic endpoint of a user. A user may own
// several devices; sessions and ratchets are kept per device, never per user.
type DeviceID string

// String returns the string form of the device identifier.
func (d DeviceID) String() string { return string(d) }

// ConversationID identifies a conversation on the relay.
type ConversationID string

// String returns the string form of the conversation identifier.
func (c ConversationID) String() string { return string(c) }

// MessageID identifies one locally queued outgoing message.
type MessageID string

// String returns the string form of the message identifier.
func (m MessageID) String() string { return string(m) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }
