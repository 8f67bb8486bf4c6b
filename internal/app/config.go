package app

import "net/http"

// Config holds runtime wiring options for building the app.
type Config struct {
	Home       string       // config directory, e.g. $HOME/.courier
	RelayURL   string       // relay base URL, e.g. http://127.0.0.1:8080
	Passphrase string       // unlocks the encrypted identity store
	HTTP       *http.Client // optional; defaults to http.DefaultClient

	// MaxDeviceChangeRetries bounds stale-device retries per dispatch.
	// Zero selects the dispatcher's default.
	MaxDeviceChangeRetries int
}
