package store

import (
	"path/filepath"
	"sync"
	"time"

	"courier/internal/domain"
)

const deviceFilename = "device.json"

type deviceRecord struct {
	User          domain.UserID   `json:"user"`
	Device        domain.DeviceID `json:"device"`
	RegisteredUTC int64           `json:"registered_utc"`
}

// DeviceFileStore persists which device this installation is registered as.
// Dispatch refuses to run without such a record (no active device session).
type DeviceFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewDeviceFileStore returns a DeviceFileStore rooted at dir.
func NewDeviceFileStore(dir string) *DeviceFileStore {
	return &DeviceFileStore{dir: dir}
}

// SaveActiveDevice records that this installation acts as device for user.
func (s *DeviceFileStore) SaveActiveDevice(user domain.UserID, device domain.DeviceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := deviceRecord{User: user, Device: device, RegisteredUTC: time.Now().Unix()}
	return writeJSON(filepath.Join(s.dir, deviceFilename), rec, 0o600)
}

// ActiveDevice reports the registered device for user, if any.
func (s *DeviceFileStore) ActiveDevice(user domain.UserID) (domain.DeviceID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec deviceRecord
	if err := readJSON(filepath.Join(s.dir, deviceFilename), &rec); err != nil {
		return "", false, err
	}
	if rec.Device == "" || rec.User != user {
		return "", false, nil
	}
	return rec.Device, true, nil
}

// Registration reports the stored user and device pair, if any.
func (s *DeviceFileStore) Registration() (domain.UserID, domain.DeviceID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec deviceRecord
	if err := readJSON(filepath.Join(s.dir, deviceFilename), &rec); err != nil {
		return "", "", false, err
	}
	if rec.User == "" || rec.Device == "" {
		return "", "", false, nil
	}
	return rec.User, rec.Device, true, nil
}

// Compile-time assertion that DeviceFileStore implements domain.DeviceStore.
var _ domain.DeviceStore = (*DeviceFileStore)(nil)
