package dispatch

import (
	"context"
	"fmt"
	"sync"

	"courier/internal/domain"
)

type fakeConnectivity struct {
	connected bool
}

func (f *fakeConnectivity) IsConnected(ctx context.Context) bool { return f.connected }

type fakeDeviceStore struct {
	user   domain.UserID
	device domain.DeviceID
	err    error
}

func (f *fakeDeviceStore) SaveActiveDevice(user domain.UserID, device domain.DeviceID) error {
	f.user, f.device = user, device
	return nil
}

func (f *fakeDeviceStore) ActiveDevice(user domain.UserID) (domain.DeviceID, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	if user != f.user || f.device == "" {
		return "", false, nil
	}
	return f.device, true, nil
}

func (f *fakeDeviceStore) Registration() (domain.UserID, domain.DeviceID, bool, error) {
	if f.device == "" {
		return "", "", false, nil
	}
	return f.user, f.device, true, nil
}

type fakeOutbox struct {
	mu     sync.Mutex
	msgs   map[domain.MessageID]domain.OutgoingMessage
	sent   []domain.MessageID
	failed map[domain.MessageID]string
}

func newFakeOutbox(msgs ...domain.OutgoingMessage) *fakeOutbox {
	f := &fakeOutbox{
		msgs:   make(map[domain.MessageID]domain.OutgoingMessage),
		failed: make(map[domain.MessageID]string),
	}
	for _, m := range msgs {
		f.msgs[m.ID] = m
	}
	return f
}

func (f *fakeOutbox) Enqueue(msg domain.OutgoingMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs[msg.ID] = msg
	return nil
}

func (f *fakeOutbox) LoadMessage(id domain.MessageID) (domain.OutgoingMessage, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.msgs[id]
	return m, ok, nil
}

func (f *fakeOutbox) MarkSent(id domain.MessageID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeOutbox) MarkFailed(id domain.MessageID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = reason
	return nil
}

func (f *fakeOutbox) Pending() ([]domain.OutgoingMessage, error) { return nil, nil }

// fakeDirectory returns a different membership per call so stale-device
// retries can observe a changed device set.
type fakeDirectory struct {
	memberships [][]domain.RecipientContact
	err         error
	calls       int
}

func (f *fakeDirectory) DetailedMembers(ctx context.Context, conv domain.ConversationID) ([]domain.RecipientContact, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	idx := f.calls - 1
	if idx >= len(f.memberships) {
		idx = len(f.memberships) - 1
	}
	return f.memberships[idx], nil
}

type fakeSessionOracle struct {
	existing map[string]bool
}

func deviceKey(contact domain.UserID, device domain.DeviceID) string {
	return string(contact) + "/" + string(device)
}

func (f *fakeSessionOracle) SessionExists(contact domain.UserID, device domain.DeviceID) (bool, error) {
	return f.existing[deviceKey(contact, device)], nil
}

type fakePreKeyFetcher struct {
	requests []map[domain.UserID][]domain.DeviceID
	err      error
}

// FetchPreKeys records the request and fabricates one bundle per device
// asked for, minus any the relay "no longer knows".
func (f *fakePreKeyFetcher) FetchPreKeys(ctx context.Context, missing map[domain.UserID][]domain.DeviceID) ([]domain.DevicePreKeyBundle, error) {
	copied := make(map[domain.UserID][]domain.DeviceID, len(missing))
	for user, devices := range missing {
		copied[user] = append([]domain.DeviceID(nil), devices...)
	}
	f.requests = append(f.requests, copied)
	if f.err != nil {
		return nil, f.err
	}
	var bundles []domain.DevicePreKeyBundle
	for user, devices := range missing {
		for _, device := range devices {
			bundles = append(bundles, domain.DevicePreKeyBundle{ContactID: user, DeviceID: device})
		}
	}
	return bundles, nil
}

type fakeSessionEstablisher struct {
	oracle      *fakeSessionOracle
	established []string
	err         error
}

func (f *fakeSessionEstablisher) EstablishSession(ctx context.Context, contact domain.UserID, device domain.DeviceID, bundle domain.DevicePreKeyBundle) error {
	if f.err != nil {
		return f.err
	}
	f.established = append(f.established, deviceKey(contact, device))
	if f.oracle != nil {
		f.oracle.existing[deviceKey(contact, device)] = true
	}
	return nil
}

type fakeDeviceEncryptor struct {
	failing map[string]error
	calls   []string
}

func (f *fakeDeviceEncryptor) EncryptForDevice(contact domain.UserID, device domain.DeviceID, msg domain.MessageID, content []byte) (domain.EncryptedPayload, error) {
	key := deviceKey(contact, device)
	f.calls = append(f.calls, key)
	if err, ok := f.failing[key]; ok {
		return domain.EncryptedPayload{}, err
	}
	return domain.EncryptedPayload{
		DeviceID: device,
		Cipher:   []byte(fmt.Sprintf("ct:%s:%s", key, msg)),
	}, nil
}

// gatedTransport blocks inside SendEnvelope until released, so a test can
// hold one dispatch mid-flight while probing the worker.
type gatedTransport struct {
	envelopes []domain.TransportEnvelope
	entered   chan domain.MessageID
	release   chan struct{}
}

func newGatedTransport() *gatedTransport {
	return &gatedTransport{
		entered: make(chan domain.MessageID, 2),
		release: make(chan struct{}),
	}
}

func (g *gatedTransport) SendEnvelope(ctx context.Context, conv domain.ConversationID, env domain.TransportEnvelope) error {
	g.envelopes = append(g.envelopes, env)
	g.entered <- env.MessageID
	<-g.release
	return nil
}

// fakeTransport returns its queued errors in order, then nil.
type fakeTransport struct {
	errs      []error
	envelopes []domain.TransportEnvelope
}

func (f *fakeTransport) SendEnvelope(ctx context.Context, conv domain.ConversationID, env domain.TransportEnvelope) error {
	f.envelopes = append(f.envelopes, env)
	if n := len(f.envelopes) - 1; n < len(f.errs) {
		return f.errs[n]
	}
	return nil
}
