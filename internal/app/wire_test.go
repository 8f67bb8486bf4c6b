package app

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/domain"
	"courier/internal/relay"
)

const testPassphrase = "Orbital-hamster-relay9"

// client is one registered device with its own home directory.
type client struct {
	wire   *Wire
	user   domain.UserID
	device domain.DeviceID
}

func newClient(t *testing.T, relayURL string, ts *httptest.Server, user domain.UserID, device domain.DeviceID) *client {
	t.Helper()

	w, err := NewWire(Config{
		Home:       t.TempDir(),
		RelayURL:   relayURL,
		Passphrase: testPassphrase,
		HTTP:       ts.Client(),
	})
	require.NoError(t, err)

	_, _, err = w.Identity.GenerateIdentity(testPassphrase)
	require.NoError(t, err)
	_, _, err = w.PreKeys.GenerateAndStorePreKeys(testPassphrase, 4)
	require.NoError(t, err)

	reg, err := w.PreKeys.LoadDeviceRegistration(testPassphrase, user, device)
	require.NoError(t, err)
	require.NoError(t, w.Relay.RegisterDevice(context.Background(), reg))
	require.NoError(t, w.Devices.SaveActiveDevice(user, device))

	return &client{wire: w, user: user, device: device}
}

func (c *client) send(t *testing.T, conv domain.ConversationID, content string) domain.MessageID {
	t.Helper()
	msg := domain.OutgoingMessage{
		ID:             domain.MessageID(uuid.NewString()),
		ConversationID: conv,
		SenderUserID:   c.user,
		SenderDeviceID: c.device,
		Content:        []byte(content),
		QueuedUTC:      time.Now().Unix(),
	}
	require.NoError(t, c.wire.Outbox.Enqueue(msg))

	d := c.wire.Dispatcher(c.user)
	defer d.Close()
	require.NoError(t, d.Dispatch(context.Background(), msg.ID))
	return msg.ID
}

func (c *client) receive(t *testing.T) []domain.DecryptedMessage {
	t.Helper()
	msgs, err := c.wire.Messages.Receive(context.Background(), c.user, c.device, 0)
	require.NoError(t, err)
	return msgs
}

// Two users, one of them with two devices, exchange messages through a real
// relay. Every hop uses the production stores and crypto.
func TestWire_EndToEndDispatchAndReceive(t *testing.T) {
	ts := httptest.NewServer(relay.NewServer().Handler())
	defer ts.Close()

	alice := newClient(t, ts.URL, ts, "alice", "alice-phone")
	bobPhone := newClient(t, ts.URL, ts, "bob", "bob-phone")
	bobLaptop := newClient(t, ts.URL, ts, "bob", "bob-laptop")

	conv := domain.ConversationID("conv-e2e")
	ctx := context.Background()
	require.NoError(t, alice.wire.Relay.CreateConversation(ctx, conv, alice.user))
	require.NoError(t, bobPhone.wire.Relay.JoinConversation(ctx, conv, bobPhone.user))

	alice.send(t, conv, "hello bob")

	// Both of bob's devices get an independent copy.
	phoneMsgs := bobPhone.receive(t)
	require.Len(t, phoneMsgs, 1)
	assert.Equal(t, "hello bob", string(phoneMsgs[0].Plaintext))
	assert.Equal(t, alice.user, phoneMsgs[0].From)
	assert.Equal(t, alice.device, phoneMsgs[0].FromDevice)

	laptopMsgs := bobLaptop.receive(t)
	require.Len(t, laptopMsgs, 1)
	assert.Equal(t, "hello bob", string(laptopMsgs[0].Plaintext))

	// The ratchet carries across messages without a second handshake, and
	// acked mail does not come back.
	alice.send(t, conv, "still there?")
	phoneMsgs = bobPhone.receive(t)
	require.Len(t, phoneMsgs, 1)
	assert.Equal(t, "still there?", string(phoneMsgs[0].Plaintext))

	pending, err := alice.wire.Outbox.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending, "dispatched messages leave the outbox")
}

// A device registered after the first send is picked up by the next
// dispatch's membership resolution and gets its own session and payload.
func TestWire_NewDeviceCoveredOnNextDispatch(t *testing.T) {
	ts := httptest.NewServer(relay.NewServer().Handler())
	defer ts.Close()

	alice := newClient(t, ts.URL, ts, "alice", "alice-phone")
	bobPhone := newClient(t, ts.URL, ts, "bob", "bob-phone")

	conv := domain.ConversationID("conv-growth")
	ctx := context.Background()
	require.NoError(t, alice.wire.Relay.CreateConversation(ctx, conv, alice.user))
	require.NoError(t, bobPhone.wire.Relay.JoinConversation(ctx, conv, bobPhone.user))

	alice.send(t, conv, "first")
	require.Len(t, bobPhone.receive(t), 1)

	bobLaptop := newClient(t, ts.URL, ts, "bob", "bob-laptop")

	alice.send(t, conv, "second")
	msgs := bobLaptop.receive(t)
	require.Len(t, msgs, 1, "the new device receives only messages sent after it joined")
	assert.Equal(t, "second", string(msgs[0].Plaintext))
}
