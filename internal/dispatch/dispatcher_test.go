package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/domain"
	"courier/internal/store"
)

const (
	testSender       = domain.UserID("alice")
	testSenderDevice = domain.DeviceID("alice-phone")
	testConv         = domain.ConversationID("conv-1")
	testMsgID        = domain.MessageID("msg-1")
)

type harness struct {
	conn      *fakeConnectivity
	devices   *fakeDeviceStore
	outbox    *fakeOutbox
	directory *fakeDirectory
	oracle    *fakeSessionOracle
	fetcher   *fakePreKeyFetcher
	sessions  *fakeSessionEstablisher
	encryptor *fakeDeviceEncryptor
	transport *fakeTransport
	d         *Dispatcher
}

func newHarness(t *testing.T, cfg Config, memberships ...[]domain.RecipientContact) *harness {
	t.Helper()
	if len(memberships) == 0 {
		memberships = [][]domain.RecipientContact{{
			{ContactID: testSender, Devices: []domain.DeviceID{testSenderDevice}},
			{ContactID: "bob", Devices: []domain.DeviceID{"bob-phone"}},
		}}
	}
	h := &harness{
		conn:      &fakeConnectivity{connected: true},
		devices:   &fakeDeviceStore{user: testSender, device: testSenderDevice},
		directory: &fakeDirectory{memberships: memberships},
		oracle:    &fakeSessionOracle{existing: make(map[string]bool)},
		fetcher:   &fakePreKeyFetcher{},
		encryptor: &fakeDeviceEncryptor{},
		transport: &fakeTransport{},
	}
	h.sessions = &fakeSessionEstablisher{oracle: h.oracle}
	h.outbox = newFakeOutbox(domain.OutgoingMessage{
		ID:             testMsgID,
		ConversationID: testConv,
		SenderUserID:   testSender,
		SenderDeviceID: testSenderDevice,
		Content:        []byte("hello"),
		QueuedUTC:      time.Now().Unix(),
	})
	h.d = NewDispatcher(
		cfg,
		testSender,
		h.conn,
		h.devices,
		h.outbox,
		NewResolver(h.directory, h.oracle, NewEstablisher(h.fetcher, h.sessions)),
		NewEncryptor(h.encryptor),
		h.transport,
	)
	t.Cleanup(h.d.Close)
	return h
}

func failureKind(t *testing.T, err error) domain.DispatchFailureKind {
	t.Helper()
	kind, ok := domain.DispatchFailure(err)
	require.True(t, ok, "expected a dispatch failure, got %v", err)
	return kind
}

func TestDispatch_NotConnected(t *testing.T) {
	h := newHarness(t, Config{})
	h.conn.connected = false

	err := h.d.Dispatch(context.Background(), testMsgID)
	assert.Equal(t, domain.FailureNetworkUnavailable, failureKind(t, err))
	assert.Zero(t, h.directory.calls, "offline dispatch must not touch the directory")
	assert.Empty(t, h.transport.envelopes)
	assert.Equal(t, string(domain.FailureNetworkUnavailable), h.outbox.failed[testMsgID])
}

func TestDispatch_NoActiveDevice(t *testing.T) {
	h := newHarness(t, Config{})
	h.devices.device = ""

	err := h.d.Dispatch(context.Background(), testMsgID)
	assert.Equal(t, domain.FailureUnauthorized, failureKind(t, err))
	assert.Empty(t, h.transport.envelopes)
}

func TestDispatch_MessageNotFound(t *testing.T) {
	h := newHarness(t, Config{})

	err := h.d.Dispatch(context.Background(), "no-such-message")
	assert.Equal(t, domain.FailureMessageNotFound, failureKind(t, err))
	assert.Empty(t, h.transport.envelopes)
}

func TestDispatch_EstablishesMissingSessionsInOneBatch(t *testing.T) {
	h := newHarness(t, Config{}, []domain.RecipientContact{
		{ContactID: testSender, Devices: []domain.DeviceID{testSenderDevice, "alice-tablet"}},
		{ContactID: "bob", Devices: []domain.DeviceID{"bob-phone", "bob-laptop"}},
	})
	h.oracle.existing[deviceKey("bob", "bob-phone")] = true

	require.NoError(t, h.d.Dispatch(context.Background(), testMsgID))

	require.Len(t, h.fetcher.requests, 1, "missing sessions must be fetched in one batch")
	assert.Equal(t, map[domain.UserID][]domain.DeviceID{
		testSender: {"alice-tablet"},
		"bob":      {"bob-laptop"},
	}, h.fetcher.requests[0])
	assert.ElementsMatch(t, []string{"alice/alice-tablet", "bob/bob-laptop"}, h.sessions.established)

	require.Len(t, h.transport.envelopes, 1)
	env := h.transport.envelopes[0]
	assert.Equal(t, testSender, env.SenderUserID)
	assert.Equal(t, testSenderDevice, env.SenderDeviceID)
	assert.Equal(t, testMsgID, env.MessageID)
	require.Len(t, env.Entries, 2)
	assert.Len(t, env.Entries[0].Payloads, 1, "sender's own sending device must not get a payload")
	assert.Len(t, env.Entries[1].Payloads, 2)

	assert.Equal(t, []domain.MessageID{testMsgID}, h.outbox.sent)
}

func TestDispatch_AllSessionsExistSkipsPreKeyFetch(t *testing.T) {
	h := newHarness(t, Config{})
	h.oracle.existing[deviceKey("bob", "bob-phone")] = true

	require.NoError(t, h.d.Dispatch(context.Background(), testMsgID))
	assert.Empty(t, h.fetcher.requests, "no fetch when every device already has a session")
	assert.Len(t, h.transport.envelopes, 1)
}

func TestDispatch_StaleDevicesRetriesWithFreshMembership(t *testing.T) {
	first := []domain.RecipientContact{
		{ContactID: testSender, Devices: []domain.DeviceID{testSenderDevice}},
		{ContactID: "bob", Devices: []domain.DeviceID{"bob-phone"}},
	}
	second := []domain.RecipientContact{
		{ContactID: testSender, Devices: []domain.DeviceID{testSenderDevice}},
		{ContactID: "bob", Devices: []domain.DeviceID{"bob-phone", "bob-laptop"}},
	}
	h := newHarness(t, Config{}, first, second)
	h.transport.errs = []error{&domain.StaleDevicesError{
		Missing: map[domain.UserID][]domain.DeviceID{"bob": {"bob-laptop"}},
	}}

	require.NoError(t, h.d.Dispatch(context.Background(), testMsgID))

	assert.Equal(t, 2, h.directory.calls, "a stale rejection must re-resolve membership")
	require.Len(t, h.transport.envelopes, 2)
	assert.Len(t, h.transport.envelopes[1].Entries[1].Payloads, 2, "retry must cover the new device")
	assert.Equal(t, []domain.MessageID{testMsgID}, h.outbox.sent, "MarkSent exactly once")
	assert.Empty(t, h.outbox.failed)
}

func TestDispatch_TooManyDeviceChanges(t *testing.T) {
	h := newHarness(t, Config{MaxDeviceChangeRetries: 2})
	stale := &domain.StaleDevicesError{Missing: map[domain.UserID][]domain.DeviceID{"bob": {"bob-laptop"}}}
	h.transport.errs = []error{stale, stale, stale}

	err := h.d.Dispatch(context.Background(), testMsgID)
	assert.Equal(t, domain.FailureTooManyDeviceChanges, failureKind(t, err))
	assert.Len(t, h.transport.envelopes, 3, "one initial attempt plus two retries")
	assert.Empty(t, h.outbox.sent)
	assert.Equal(t, string(domain.FailureTooManyDeviceChanges), h.outbox.failed[testMsgID])
}

func TestDispatch_TransportErrorIsNetworkFailure(t *testing.T) {
	h := newHarness(t, Config{})
	cause := errors.New("connection reset")
	h.transport.errs = []error{cause}

	err := h.d.Dispatch(context.Background(), testMsgID)
	assert.Equal(t, domain.FailureNetworkUnavailable, failureKind(t, err))
	assert.ErrorIs(t, err, cause)
	assert.Len(t, h.transport.envelopes, 1, "unclassified errors must not be retried")
}

func TestDispatch_EncryptionFailureSkipsDeviceNotEnvelope(t *testing.T) {
	h := newHarness(t, Config{}, []domain.RecipientContact{
		{ContactID: testSender, Devices: []domain.DeviceID{testSenderDevice}},
		{ContactID: "bob", Devices: []domain.DeviceID{"bob-phone", "bob-laptop"}},
		{ContactID: "carol", Devices: []domain.DeviceID{"carol-phone"}},
	})
	h.encryptor.failing = map[string]error{
		deviceKey("carol", "carol-phone"): errors.New("ratchet state corrupt"),
	}

	require.NoError(t, h.d.Dispatch(context.Background(), testMsgID))

	require.Len(t, h.transport.envelopes, 1)
	env := h.transport.envelopes[0]
	require.Len(t, env.Entries, 3)
	assert.Len(t, env.Entries[1].Payloads, 2)
	assert.Empty(t, env.Entries[2].Payloads, "failed contact keeps an empty entry")
	assert.Equal(t, []domain.MessageID{testMsgID}, h.outbox.sent)
}

func TestDispatch_DeviceStoreErrorPropagates(t *testing.T) {
	h := newHarness(t, Config{})
	cause := errors.New("device record unreadable")
	h.devices.err = cause

	err := h.d.Dispatch(context.Background(), testMsgID)
	assert.ErrorIs(t, err, cause, "store errors pass through verbatim")
	_, isDispatchFailure := domain.DispatchFailure(err)
	assert.False(t, isDispatchFailure, "an I/O error is not an authorization failure")
	assert.Zero(t, h.directory.calls)
}

// A message whose dispatch failed with a network error stays in the outbox
// and succeeds on a later dispatch once connectivity returns.
func TestDispatch_RetryAfterNetworkFailure(t *testing.T) {
	outbox := store.NewOutboxFileStore(t.TempDir())
	require.NoError(t, outbox.Enqueue(domain.OutgoingMessage{
		ID:             testMsgID,
		ConversationID: testConv,
		SenderUserID:   testSender,
		SenderDeviceID: testSenderDevice,
		Content:        []byte("hello"),
		QueuedUTC:      time.Now().Unix(),
	}))

	conn := &fakeConnectivity{connected: false}
	oracle := &fakeSessionOracle{existing: map[string]bool{deviceKey("bob", "bob-phone"): true}}
	directory := &fakeDirectory{memberships: [][]domain.RecipientContact{{
		{ContactID: testSender, Devices: []domain.DeviceID{testSenderDevice}},
		{ContactID: "bob", Devices: []domain.DeviceID{"bob-phone"}},
	}}}
	transport := &fakeTransport{}
	d := NewDispatcher(
		Config{},
		testSender,
		conn,
		&fakeDeviceStore{user: testSender, device: testSenderDevice},
		outbox,
		NewResolver(directory, oracle, NewEstablisher(&fakePreKeyFetcher{}, &fakeSessionEstablisher{oracle: oracle})),
		NewEncryptor(&fakeDeviceEncryptor{}),
		transport,
	)
	t.Cleanup(d.Close)

	err := d.Dispatch(context.Background(), testMsgID)
	assert.Equal(t, domain.FailureNetworkUnavailable, failureKind(t, err))

	conn.connected = true
	require.NoError(t, d.Dispatch(context.Background(), testMsgID))
	assert.Len(t, transport.envelopes, 1)

	_, ok, err := outbox.LoadMessage(testMsgID)
	require.NoError(t, err)
	assert.False(t, ok, "delivered message must not be dispatchable again")
}

// Two concurrent Dispatch calls never interleave: the second one's resolve,
// encrypt and send phases start only after the first attempt has finished.
func TestDispatch_ConcurrentSendsAreSerialized(t *testing.T) {
	msg2 := domain.OutgoingMessage{
		ID:             "msg-2",
		ConversationID: testConv,
		SenderUserID:   testSender,
		SenderDeviceID: testSenderDevice,
		Content:        []byte("second"),
		QueuedUTC:      time.Now().Unix(),
	}
	outbox := newFakeOutbox(domain.OutgoingMessage{
		ID:             testMsgID,
		ConversationID: testConv,
		SenderUserID:   testSender,
		SenderDeviceID: testSenderDevice,
		Content:        []byte("first"),
		QueuedUTC:      time.Now().Unix(),
	}, msg2)

	oracle := &fakeSessionOracle{existing: map[string]bool{deviceKey("bob", "bob-phone"): true}}
	directory := &fakeDirectory{memberships: [][]domain.RecipientContact{{
		{ContactID: testSender, Devices: []domain.DeviceID{testSenderDevice}},
		{ContactID: "bob", Devices: []domain.DeviceID{"bob-phone"}},
	}}}
	transport := newGatedTransport()
	d := NewDispatcher(
		Config{},
		testSender,
		&fakeConnectivity{connected: true},
		&fakeDeviceStore{user: testSender, device: testSenderDevice},
		outbox,
		NewResolver(directory, oracle, NewEstablisher(&fakePreKeyFetcher{}, &fakeSessionEstablisher{oracle: oracle})),
		NewEncryptor(&fakeDeviceEncryptor{}),
		transport,
	)
	t.Cleanup(d.Close)

	done1 := make(chan error, 1)
	go func() { done1 <- d.Dispatch(context.Background(), testMsgID) }()
	first := <-transport.entered

	done2 := make(chan error, 1)
	go func() { done2 <- d.Dispatch(context.Background(), msg2.ID) }()

	// While the first send is held open, the second dispatch must not have
	// resolved, encrypted or sent anything.
	select {
	case id := <-transport.entered:
		t.Fatalf("send of %s started while %s was still in flight", id, first)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 1, directory.calls)
	assert.Len(t, transport.envelopes, 1)

	close(transport.release)
	require.NoError(t, <-done1)
	require.NoError(t, <-done2)

	second := <-transport.entered
	assert.Equal(t, testMsgID, first)
	assert.Equal(t, msg2.ID, second)
	require.Len(t, transport.envelopes, 2)
	assert.Equal(t, 2, directory.calls)
}

func TestClassifySendFailure(t *testing.T) {
	assert.Equal(t, SendAccepted, ClassifySendFailure(nil))
	assert.Equal(t, SendRetryRecipients, ClassifySendFailure(&domain.StaleDevicesError{}))
	assert.Equal(t, SendNetworkFailure, ClassifySendFailure(errors.New("boom")))
}
