// Package relay contains both halves of the courier relay protocol: the
// HTTP client the app wires in as its RelayClient collaborator, and the
// in-memory relay server used by cmd/relay.
//
// The relay is the transport, the conversation directory, and the prekey
// distribution point. It is also the authority on which devices a user owns:
// an envelope whose per-device payload set disagrees with the registry is
// rejected with a stale-device report so the sender can re-resolve and retry.
package relay
