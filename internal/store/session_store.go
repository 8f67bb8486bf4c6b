package store

import (
	"path/filepath"
	"sync"

	"courier/internal/domain"
)

const sessionsFilename = "sessions.json"

// deviceKey builds the map key for one (contact, device) pair.
func deviceKey(contact domain.UserID, device domain.DeviceID) string {
	return contact.String() + "/" + device.String()
}

// SessionFileStore persists established X3DH sessions to disk, one record per
// peer device.
type SessionFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewSessionFileStore returns a SessionFileStore rooted at dir.
func NewSessionFileStore(dir string) *SessionFileStore {
	return &SessionFileStore{dir: dir}
}

// SaveSession writes the session record for (contact, device).
func (s *SessionFileStore) SaveSession(contact domain.UserID, device domain.DeviceID, sess domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, sessionsFilename)
	m := map[string]domain.Session{}
	_ = readJSON(path, &m)
	m[deviceKey(contact, device)] = sess
	return writeJSON(path, m, 0o600)
}

// LoadSession retrieves the stored session for (contact, device).
func (s *SessionFileStore) LoadSession(contact domain.UserID, device domain.DeviceID) (domain.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, sessionsFilename)
	m := map[string]domain.Session{}
	if err := readJSON(path, &m); err != nil {
		return domain.Session{}, false, err
	}
	sess, ok := m[deviceKey(contact, device)]
	return sess, ok, nil
}

// Compile-time assertion that SessionFileStore implements domain.SessionStore.
var _ domain.SessionStore = (*SessionFileStore)(nil)
