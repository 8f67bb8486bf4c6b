package dispatch

import (
	"time"

	"courier/internal/domain"
)

// Encryptor builds a transport envelope by encrypting one message for every
// recipient device.
type Encryptor struct {
	devices domain.DeviceEncryptor
}

// NewEncryptor constructs an Encryptor.
func NewEncryptor(devices domain.DeviceEncryptor) *Encryptor {
	return &Encryptor{devices: devices}
}

// BuildEnvelope encrypts the message for each device of each recipient.
// Encryption is best-effort per device: a failing device is recorded as
// skipped and the rest of the envelope is still produced. A contact whose
// devices all fail keeps an entry with no payloads, so the relay can still
// validate the sender's view of the membership. The sender's own sending
// device is never encrypted for.
func (e *Encryptor) BuildEnvelope(
	sender domain.UserID,
	senderDevice domain.DeviceID,
	msg domain.OutgoingMessage,
	recipients []domain.RecipientContact,
) (domain.TransportEnvelope, []domain.SkippedDevice) {
	env := domain.TransportEnvelope{
		SenderUserID:   sender,
		SenderDeviceID: senderDevice,
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		Timestamp:      time.Now().Unix(),
	}

	var skipped []domain.SkippedDevice
	for _, contact := range recipients {
		entry := domain.RecipientEntry{ContactID: contact.ContactID}
		for _, device := range contact.Devices {
			if contact.ContactID == sender && device == senderDevice {
				continue
			}
			payload, err := e.devices.EncryptForDevice(contact.ContactID, device, msg.ID, msg.Content)
			if err != nil {
				skipped = append(skipped, domain.SkippedDevice{
					ContactID: contact.ContactID,
					DeviceID:  device,
					Reason:    err.Error(),
				})
				continue
			}
			entry.Payloads = append(entry.Payloads, payload)
		}
		env.Entries = append(env.Entries, entry)
	}
	return env, skipped
}
