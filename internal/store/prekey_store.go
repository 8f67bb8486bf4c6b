package store

import (
	"path/filepath"
	"sync"
	"time"

	"courier/internal/domain"
)

const (
	spkPairsFilename = "spk_pairs.json" // map[string]spkPair
	opkPairsFilename = "opk_pairs.json" // map[string]opkPair
	prekeyMetaFile   = "prekey_meta.json"
)

type spkPair struct {
	Priv domain.X25519Private `json:"priv"`
	Pub  domain.X25519Public  `json:"pub"`
	Sig  []byte               `json:"sig"`
	At   int64                `json:"at"`
}

type opkPair struct {
	Priv domain.X25519Private `json:"priv"`
	Pub  domain.X25519Public  `json:"pub"`
	At   int64                `json:"at"`
}

type prekeyMeta struct {
	CurrentSPKID string `json:"current_spk_id"`
}

// PreKeyFileStore manages signed and one-time prekey pairs on disk.
type PreKeyFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewPreKeyFileStore returns a PreKeyFileStore rooted at dir.
func NewPreKeyFileStore(dir string) *PreKeyFileStore {
	return &PreKeyFileStore{dir: dir}
}

// SaveSignedPreKey stores one signed prekey pair under id.
func (s *PreKeyFileStore) SaveSignedPreKey(id string, priv domain.X25519Private, pub domain.X25519Public, sig []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, spkPairsFilename)
	m := make(map[string]spkPair)
	_ = readJSON(path, &m)
	m[id] = spkPair{Priv: priv, Pub: pub, Sig: append([]byte(nil), sig...), At: time.Now().Unix()}
	return writeJSON(path, m, 0o600)
}

// LoadSignedPreKey retrieves the signed prekey pair stored under id.
func (s *PreKeyFileStore) LoadSignedPreKey(id string) (priv domain.X25519Private, pub domain.X25519Public, sig []byte, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := make(map[string]spkPair)
	if err = readJSON(filepath.Join(s.dir, spkPairsFilename), &m); err != nil {
		return priv, pub, nil, false, err
	}
	p, exists := m[id]
	if !exists {
		return priv, pub, nil, false, nil
	}
	return p.Priv, p.Pub, append([]byte(nil), p.Sig...), true, nil
}

// SaveOneTimePreKeys stores a batch of one-time prekey pairs.
func (s *PreKeyFileStore) SaveOneTimePreKeys(pairs []domain.OneTimePreKeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, opkPairsFilename)
	m := make(map[string]opkPair)
	_ = readJSON(path, &m)
	for _, p := range pairs {
		m[p.ID] = opkPair{Priv: p.Priv, Pub: p.Pub, At: time.Now().Unix()}
	}
	return writeJSON(path, m, 0o600)
}

// ConsumeOneTimePreKey removes and returns the one-time pair stored under id.
// A consumed prekey is gone for good; X3DH must never reuse one.
func (s *PreKeyFileStore) ConsumeOneTimePreKey(id string) (priv domain.X25519Private, pub domain.X25519Public, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, opkPairsFilename)
	m := make(map[string]opkPair)
	if err = readJSON(path, &m); err != nil {
		return priv, pub, false, err
	}
	p, exists := m[id]
	if !exists {
		return priv, pub, false, nil
	}
	delete(m, id)
	if err = writeJSON(path, m, 0o600); err != nil {
		return priv, pub, false, err
	}
	return p.Priv, p.Pub, true, nil
}

// ListOneTimePreKeyPublics returns the remaining OPK publics.
func (s *PreKeyFileStore) ListOneTimePreKeyPublics() ([]domain.OneTimePreKeyPublic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := make(map[string]opkPair)
	if err := readJSON(filepath.Join(s.dir, opkPairsFilename), &m); err != nil {
		return nil, err
	}
	out := make([]domain.OneTimePreKeyPublic, 0, len(m))
	for id, p := range m {
		out = append(out, domain.OneTimePreKeyPublic{ID: id, Pub: p.Pub})
	}
	return out, nil
}

// SetCurrentSignedPreKeyID marks id as the signed prekey to publish.
func (s *PreKeyFileStore) SetCurrentSignedPreKeyID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return writeJSON(filepath.Join(s.dir, prekeyMetaFile), prekeyMeta{CurrentSPKID: id}, 0o600)
}

// CurrentSignedPreKeyID reports the signed prekey currently published.
func (s *PreKeyFileStore) CurrentSignedPreKeyID() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var meta prekeyMeta
	if err := readJSON(filepath.Join(s.dir, prekeyMetaFile), &meta); err != nil {
		return "", false, err
	}
	if meta.CurrentSPKID == "" {
		return "", false, nil
	}
	return meta.CurrentSPKID, true, nil
}

// Compile-time assertion that PreKeyFileStore implements domain.PreKeyStore.
var _ domain.PreKeyStore = (*PreKeyFileStore)(nil)
