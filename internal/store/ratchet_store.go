package store

import (
	"path/filepath"
	"sync"

	"courier/internal/domain"
)

const convFilename = "conversations.json"

// RatchetFileStore persists Double-Ratchet state to disk, one record per
// peer device.
type RatchetFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewRatchetFileStore returns a RatchetFileStore rooted at dir.
func NewRatchetFileStore(dir string) *RatchetFileStore {
	return &RatchetFileStore{dir: dir}
}

// SaveConversation writes the ratchet state for (contact, device).
func (s *RatchetFileStore) SaveConversation(contact domain.UserID, device domain.DeviceID, conv domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, convFilename)
	m := map[string]domain.Conversation{}
	_ = readJSON(path, &m)
	m[deviceKey(contact, device)] = conv
	return writeJSON(path, m, 0o600)
}

// LoadConversation retrieves the ratchet state for (contact, device).
func (s *RatchetFileStore) LoadConversation(contact domain.UserID, device domain.DeviceID) (domain.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, convFilename)
	m := map[string]domain.Conversation{}
	if err := readJSON(path, &m); err != nil {
		return domain.Conversation{}, false, err
	}
	c, ok := m[deviceKey(contact, device)]
	return c, ok, nil
}

// Compile-time assertion that RatchetFileStore implements domain.RatchetStore.
var _ domain.RatchetStore = (*RatchetFileStore)(nil)
