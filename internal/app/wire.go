package app

import (
	"net/http"

	"courier/internal/dispatch"
	"courier/internal/domain"
	"courier/internal/relay"
	identitysvc "courier/internal/services/identity"
	messagesvc "courier/internal/services/message"
	prekeysvc "courier/internal/services/prekey"
	sessionsvc "courier/internal/services/session"
	"courier/internal/store"
)

// Wire bundles all stores, services, and clients for the CLI.
type Wire struct {
	Identity domain.IdentityService
	PreKeys  domain.PreKeyService
	Sessions *sessionsvc.Service
	Messages domain.MessageService
	Relay    domain.RelayClient
	Devices  domain.DeviceStore
	Outbox   domain.Outbox
	HTTP     *http.Client

	cfg Config
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config) (*Wire, error) {
	// File-based stores
	identityStore := store.NewIdentityFileStore(cfg.Home)
	prekeyStore := store.NewPreKeyFileStore(cfg.Home)
	sessionStore := store.NewSessionFileStore(cfg.Home)
	ratchetStore := store.NewRatchetFileStore(cfg.Home)
	deviceStore := store.NewDeviceFileStore(cfg.Home)
	outbox := store.NewOutboxFileStore(cfg.Home)

	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	rc := relay.NewHTTP(cfg.RelayURL, httpClient)

	identitySvc := identitysvc.New(identityStore)
	prekeySvc := prekeysvc.New(identityStore, prekeyStore)
	sessionSvc := sessionsvc.New(identityStore, sessionStore, cfg.Passphrase)
	messageSvc := messagesvc.New(identityStore, prekeyStore, sessionStore, ratchetStore, rc, cfg.Passphrase)

	return &Wire{
		Identity: identitySvc,
		PreKeys:  prekeySvc,
		Sessions: sessionSvc,
		Messages: messageSvc,
		Relay:    rc,
		Devices:  deviceStore,
		Outbox:   outbox,
		HTTP:     httpClient,
		cfg:      cfg,
	}, nil
}

// Dispatcher builds the outgoing pipeline for the given local user. The
// caller owns the returned dispatcher and must Close it.
func (w *Wire) Dispatcher(user domain.UserID) *dispatch.Dispatcher {
	resolver := dispatch.NewResolver(
		w.Relay,
		w.Sessions,
		dispatch.NewEstablisher(w.Relay, w.Sessions),
	)
	return dispatch.NewDispatcher(
		dispatch.Config{MaxDeviceChangeRetries: w.cfg.MaxDeviceChangeRetries},
		user,
		w.Relay,
		w.Devices,
		w.Outbox,
		resolver,
		dispatch.NewEncryptor(w.Messages),
		w.Relay,
	)
}
