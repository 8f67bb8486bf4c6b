package store

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"courier/internal/domain"
)

const outboxFilename = "outbox.json"

// outboxRecord is the durable form of one queued message.
type outboxRecord struct {
	Message   domain.OutgoingMessage `json:"message"`
	Status    domain.OutboxStatus    `json:"status"`
	Attempts  int                    `json:"attempts"`
	LastError string                 `json:"last_error,omitempty"`
	UpdatedAt int64                  `json:"updated_at"`
}

// OutboxFileStore is the durable queue of outgoing messages. A message stays
// queued until the dispatch pipeline marks it sent or failed; marking failed
// with a transient reason leaves it queued for an external retry.
type OutboxFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewOutboxFileStore returns an OutboxFileStore rooted at dir.
func NewOutboxFileStore(dir string) *OutboxFileStore {
	return &OutboxFileStore{dir: dir}
}

// Enqueue appends msg to the queue. The message ID must be unique.
func (s *OutboxFileStore) Enqueue(msg domain.OutgoingMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, outboxFilename)
	m := map[domain.MessageID]outboxRecord{}
	_ = readJSON(path, &m)
	if _, exists := m[msg.ID]; exists {
		return fmt.Errorf("outbox: message %s already queued", msg.ID)
	}
	m[msg.ID] = outboxRecord{Message: msg, Status: domain.OutboxQueued, UpdatedAt: time.Now().Unix()}
	return writeJSON(path, m, 0o600)
}

// LoadMessage retrieves an undelivered message. Failed messages stay
// loadable so a later dispatch can retry them; only sent messages are
// withheld, re-dispatching those would duplicate envelopes.
func (s *OutboxFileStore) LoadMessage(id domain.MessageID) (domain.OutgoingMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := map[domain.MessageID]outboxRecord{}
	if err := readJSON(filepath.Join(s.dir, outboxFilename), &m); err != nil {
		return domain.OutgoingMessage{}, false, err
	}
	rec, ok := m[id]
	if !ok || rec.Status == domain.OutboxSent {
		return domain.OutgoingMessage{}, false, nil
	}
	return rec.Message, true, nil
}

// MarkSent transitions id to sent. Called exactly once per delivered message,
// after transport acceptance.
func (s *OutboxFileStore) MarkSent(id domain.MessageID) error {
	return s.transition(id, domain.OutboxSent, "")
}

// MarkFailed records why the last dispatch of id failed. The message keeps
// waiting for a retry; MarkSent is the only terminal transition.
func (s *OutboxFileStore) MarkFailed(id domain.MessageID, reason string) error {
	return s.transition(id, domain.OutboxFailed, reason)
}

// Pending returns all undelivered messages in enqueue order, including ones
// whose last dispatch failed.
func (s *OutboxFileStore) Pending() ([]domain.OutgoingMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := map[domain.MessageID]outboxRecord{}
	if err := readJSON(filepath.Join(s.dir, outboxFilename), &m); err != nil {
		return nil, err
	}
	out := make([]domain.OutgoingMessage, 0, len(m))
	for _, rec := range m {
		if rec.Status != domain.OutboxSent {
			out = append(out, rec.Message)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueuedUTC < out[j].QueuedUTC })
	return out, nil
}

func (s *OutboxFileStore) transition(id domain.MessageID, status domain.OutboxStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, outboxFilename)
	m := map[domain.MessageID]outboxRecord{}
	if err := readJSON(path, &m); err != nil {
		return err
	}
	rec, ok := m[id]
	if !ok {
		return fmt.Errorf("outbox: message %s not found", id)
	}
	rec.Status = status
	rec.Attempts++
	rec.LastError = reason
	rec.UpdatedAt = time.Now().Unix()
	m[id] = rec
	return writeJSON(path, m, 0o600)
}

// Compile-time assertion that OutboxFileStore implements domain.Outbox.
var _ domain.Outbox = (*OutboxFileStore)(nil)
