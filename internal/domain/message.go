package domain

// OutboxStatus is the lifecycle state of a queued outgoing message.
type OutboxStatus string

const (
	OutboxQueued OutboxStatus = "queued"
	OutboxSent   OutboxStatus = "sent"
	OutboxFailed OutboxStatus = "failed"
)

// OutgoingMessage is one locally queued message. It is immutable once loaded
// for sending; the dispatch pipeline only ever marks it sent or failed.
type OutgoingMessage struct {
	ID             MessageID      `json:"id"`
	ConversationID ConversationID `json:"conversation_id"`
	SenderUserID   UserID         `json:"sender_user_id"`
	SenderDeviceID DeviceID       `json:"sender_device_id"`
	Content        []byte         `json:"content"`
	QueuedUTC      int64          `json:"queued_utc"`
}

// RecipientContact is one conversation member with the devices it currently
// owns as known to the relay. Derived fresh on every resolution attempt.
type RecipientContact struct {
	ContactID UserID     `json:"contact_id"`
	Devices   []DeviceID `json:"devices"`
}

// EncryptedPayload is the result of encrypting one message for one device.
// PreKey is present only for the first payload of a fresh session so the
// receiving device can bootstrap its side.
type EncryptedPayload struct {
	DeviceID DeviceID       `json:"device_id"`
	Header   RatchetHeader  `json:"header"`
	Cipher   []byte         `json:"cipher"`
	PreKey   *PreKeyMessage `json:"pre_key,omitempty"`
}

// RecipientEntry groups the per-device payloads of one contact. An entry with
// zero payloads is kept rather than dropped so downstream accounting sees
// every resolved contact.
type RecipientEntry struct {
	ContactID UserID             `json:"contact_id"`
	Payloads  []EncryptedPayload `json:"payloads"`
}

// SkippedDevice records why a resolved device got no payload. Devices are
// never omitted from an envelope without one of these.
type SkippedDevice struct {
	ContactID UserID   `json:"contact_id"`
	DeviceID  DeviceID `json:"device_id"`
	Reason    string   `json:"reason"`
}

// TransportEnvelope is the unit handed to the relay: one message, encrypted
// independently for every recipient device.
type TransportEnvelope struct {
	SenderUserID   UserID           `json:"sender_user_id"`
	SenderDeviceID DeviceID         `json:"sender_device_id"`
	ConversationID ConversationID   `json:"conversation_id"`
	MessageID      MessageID        `json:"message_id"`
	Entries        []RecipientEntry `json:"entries"`
	Timestamp      int64            `json:"timestamp"`
}

// MailboxItem is one per-device copy of a message as delivered by the relay.
type MailboxItem struct {
	From           UserID           `json:"from"`
	FromDevice     DeviceID         `json:"from_device"`
	ConversationID ConversationID   `json:"conversation_id"`
	MessageID      MessageID        `json:"message_id"`
	Payload        EncryptedPayload `json:"payload"`
	Timestamp      int64            `json:"timestamp"`
}

// DecryptedMessage is what the receive path returns.
type DecryptedMessage struct {
	From           UserID         `json:"from"`
	FromDevice     DeviceID       `json:"from_device"`
	ConversationID ConversationID `json:"conversation_id"`
	Plaintext      []byte         `json:"plaintext"`
	Timestamp      int64          `json:"timestamp"`
}
