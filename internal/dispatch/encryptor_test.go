package dispatch

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/domain"
)

func TestBuildEnvelope_OnePayloadPerDevice(t *testing.T) {
	enc := NewEncryptor(&fakeDeviceEncryptor{})
	msg := domain.OutgoingMessage{ID: testMsgID, ConversationID: testConv, Content: []byte("hi")}

	var recipients []domain.RecipientContact
	for i := 0; i < 3; i++ {
		contact := domain.RecipientContact{ContactID: domain.UserID(fmt.Sprintf("user-%d", i))}
		for j := 0; j < 2; j++ {
			contact.Devices = append(contact.Devices, domain.DeviceID(fmt.Sprintf("dev-%d-%d", i, j)))
		}
		recipients = append(recipients, contact)
	}

	env, skipped := enc.BuildEnvelope(testSender, testSenderDevice, msg, recipients)
	assert.Empty(t, skipped)
	require.Len(t, env.Entries, 3)
	for i, entry := range env.Entries {
		assert.Equal(t, recipients[i].ContactID, entry.ContactID)
		assert.Len(t, entry.Payloads, 2)
	}
}

func TestBuildEnvelope_RecordsSkippedDevices(t *testing.T) {
	cause := errors.New("no session")
	enc := NewEncryptor(&fakeDeviceEncryptor{
		failing: map[string]error{deviceKey("bob", "bob-phone"): cause},
	})
	msg := domain.OutgoingMessage{ID: testMsgID, ConversationID: testConv, Content: []byte("hi")}

	env, skipped := enc.BuildEnvelope(testSender, testSenderDevice, msg, []domain.RecipientContact{
		{ContactID: "bob", Devices: []domain.DeviceID{"bob-phone", "bob-laptop"}},
	})

	require.Len(t, skipped, 1)
	assert.Equal(t, domain.SkippedDevice{ContactID: "bob", DeviceID: "bob-phone", Reason: "no session"}, skipped[0])
	require.Len(t, env.Entries, 1)
	require.Len(t, env.Entries[0].Payloads, 1)
	assert.Equal(t, domain.DeviceID("bob-laptop"), env.Entries[0].Payloads[0].DeviceID)
}
