package relay

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"courier/internal/domain"
)

// deviceEntry is the relay-side state of one registered device.
type deviceEntry struct {
	bundle  domain.DevicePreKeyBundle
	oneTime []domain.OneTimePreKeyPublic
	mailbox []domain.MailboxItem
}

// Server is an in-memory relay: device registry, prekey distribution,
// conversation directory, and per-device mailboxes. It is the authority on
// which devices should receive a message; envelopes built against a stale
// device set are rejected with a report instead of being partially delivered.
type Server struct {
	mu      sync.RWMutex
	devices map[domain.UserID]map[domain.DeviceID]*deviceEntry
	convs   map[domain.ConversationID]map[domain.UserID]bool
}

// NewServer returns an empty relay server.
func NewServer() *Server {
	return &Server{
		devices: make(map[domain.UserID]map[domain.DeviceID]*deviceEntry),
		convs:   make(map[domain.ConversationID]map[domain.UserID]bool),
	}
}

// Handler returns the HTTP routing for the relay protocol.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /conversations", s.handleCreateConversation)
	mux.HandleFunc("POST /conversations/{id}/join", s.handleJoinConversation)
	mux.HandleFunc("GET /conversations/{id}/members", s.handleMembers)
	mux.HandleFunc("POST /prekeys/batch", s.handlePreKeyBatch)
	mux.HandleFunc("POST /conversations/{id}/messages", s.handleSubmitEnvelope)
	mux.HandleFunc("GET /mailbox/{user}/{device}", s.handleFetchMailbox)
	mux.HandleFunc("POST /mailbox/{user}/{device}/ack", s.handleAckMailbox)
	return mux
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg domain.DeviceRegistration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b := reg.Bundle
	if b.ContactID == "" || b.DeviceID == "" {
		http.Error(w, "contact_id and device_id required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if s.devices[b.ContactID] == nil {
		s.devices[b.ContactID] = make(map[domain.DeviceID]*deviceEntry)
	}
	entry := s.devices[b.ContactID][b.DeviceID]
	if entry == nil {
		entry = &deviceEntry{}
		s.devices[b.ContactID][b.DeviceID] = entry
	}
	b.OneTimePreKey = nil // fetches pop from the server-side list instead
	entry.bundle = b
	entry.oneTime = append(entry.oneTime, reg.OneTime...)
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"user":     b.ContactID,
		"device":   b.DeviceID,
		"one_time": len(reg.OneTime),
	}).Info("registered device bundle")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ID      domain.ConversationID `json:"id"`
		Creator domain.UserID         `json:"creator"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.convs[in.ID]; exists {
		http.Error(w, "conversation exists", http.StatusConflict)
		return
	}
	s.convs[in.ID] = map[domain.UserID]bool{in.Creator: true}
	logrus.WithFields(logrus.Fields{"conversation": in.ID, "creator": in.Creator}).Info("conversation created")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleJoinConversation(w http.ResponseWriter, r *http.Request) {
	conv := domain.ConversationID(r.PathValue("id"))
	var in struct {
		User domain.UserID `json:"user"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.convs[conv]
	if !ok {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}
	members[in.User] = true
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	conv := domain.ConversationID(r.PathValue("id"))

	s.mu.RLock()
	members, ok := s.convs[conv]
	if !ok {
		s.mu.RUnlock()
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}
	out := make([]domain.RecipientContact, 0, len(members))
	for user := range members {
		out = append(out, domain.RecipientContact{ContactID: user, Devices: s.deviceList(user)})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ContactID < out[j].ContactID })
	_ = json.NewEncoder(w).Encode(out)
}

func (s *Server) handlePreKeyBatch(w http.ResponseWriter, r *http.Request) {
	var in batchPreKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	out := make([]domain.DevicePreKeyBundle, 0)
	for user, devices := range in.Missing {
		for _, device := range devices {
			entry := s.deviceEntry(user, device)
			if entry == nil {
				// Deleted or never-registered device: silently absent from the
				// response so one dead device cannot block the batch.
				continue
			}
			b := entry.bundle
			if len(entry.oneTime) > 0 {
				opk := entry.oneTime[0]
				entry.oneTime = entry.oneTime[1:]
				b.OneTimePreKey = &opk
			}
			out = append(out, b)
		}
	}
	s.mu.Unlock()

	_ = json.NewEncoder(w).Encode(out)
}

func (s *Server) handleSubmitEnvelope(w http.ResponseWriter, r *http.Request) {
	conv := domain.ConversationID(r.PathValue("id"))
	var env domain.TransportEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.convs[conv]
	if !ok {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}
	if !members[env.SenderUserID] {
		http.Error(w, "sender is not a member", http.StatusForbidden)
		return
	}

	missing, extra := s.deviceMismatch(members, env)
	if len(missing) > 0 || len(extra) > 0 {
		logrus.WithFields(logrus.Fields{
			"conversation": conv,
			"message":      env.MessageID,
			"missing":      len(missing),
			"extra":        len(extra),
		}).Warn("rejecting envelope with stale device set")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(staleReport{Missing: missing, Extra: extra})
		return
	}

	delivered := 0
	for _, entry := range env.Entries {
		for _, payload := range entry.Payloads {
			target := s.deviceEntry(entry.ContactID, payload.DeviceID)
			if target == nil {
				continue
			}
			target.mailbox = append(target.mailbox, domain.MailboxItem{
				From:           env.SenderUserID,
				FromDevice:     env.SenderDeviceID,
				ConversationID: conv,
				MessageID:      env.MessageID,
				Payload:        payload,
				Timestamp:      time.Now().Unix(),
			})
			delivered++
		}
	}

	logrus.WithFields(logrus.Fields{
		"conversation": conv,
		"message":      env.MessageID,
		"devices":      delivered,
	}).Info("envelope accepted")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleFetchMailbox(w http.ResponseWriter, r *http.Request) {
	user := domain.UserID(r.PathValue("user"))
	device := domain.DeviceID(r.PathValue("device"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	s.mu.RLock()
	defer s.mu.RUnlock()
	entry := s.deviceEntry(user, device)
	if entry == nil {
		http.Error(w, "device not found", http.StatusNotFound)
		return
	}
	items := entry.mailbox
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	_ = json.NewEncoder(w).Encode(items)
}

func (s *Server) handleAckMailbox(w http.ResponseWriter, r *http.Request) {
	user := domain.UserID(r.PathValue("user"))
	device := domain.DeviceID(r.PathValue("device"))
	var in struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.deviceEntry(user, device)
	if entry == nil {
		http.Error(w, "device not found", http.StatusNotFound)
		return
	}
	if in.Count > len(entry.mailbox) {
		in.Count = len(entry.mailbox)
	}
	entry.mailbox = entry.mailbox[in.Count:]
	w.WriteHeader(http.StatusOK)
}

// deviceMismatch compares the envelope's per-contact payload devices against
// the registry. The sender's own sending device is exempt. Callers hold s.mu.
func (s *Server) deviceMismatch(members map[domain.UserID]bool, env domain.TransportEnvelope) (missing, extra map[domain.UserID][]domain.DeviceID) {
	missing = make(map[domain.UserID][]domain.DeviceID)
	extra = make(map[domain.UserID][]domain.DeviceID)

	present := make(map[domain.UserID]map[domain.DeviceID]bool)
	for _, entry := range env.Entries {
		devs := make(map[domain.DeviceID]bool, len(entry.Payloads))
		for _, p := range entry.Payloads {
			devs[p.DeviceID] = true
		}
		present[entry.ContactID] = devs
	}

	for user := range members {
		registered := s.deviceList(user)
		devs := present[user]
		for _, d := range registered {
			if user == env.SenderUserID && d == env.SenderDeviceID {
				continue
			}
			if !devs[d] {
				missing[user] = append(missing[user], d)
			}
		}
		for d := range devs {
			if !s.deviceRegistered(user, d) {
				extra[user] = append(extra[user], d)
			}
		}
	}
	if len(missing) == 0 {
		missing = nil
	}
	if len(extra) == 0 {
		extra = nil
	}
	return missing, extra
}

// deviceEntry returns the entry for (user, device) or nil. Callers hold s.mu.
func (s *Server) deviceEntry(user domain.UserID, device domain.DeviceID) *deviceEntry {
	if devs, ok := s.devices[user]; ok {
		return devs[device]
	}
	return nil
}

// deviceRegistered reports whether (user, device) is registered. Callers
// hold s.mu.
func (s *Server) deviceRegistered(user domain.UserID, device domain.DeviceID) bool {
	return s.deviceEntry(user, device) != nil
}

// deviceList returns the sorted device IDs of user. Callers hold s.mu.
func (s *Server) deviceList(user domain.UserID) []domain.DeviceID {
	devs := s.devices[user]
	out := make([]domain.DeviceID, 0, len(devs))
	for d := range devs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
