// Package store provides file-based persistence for courier's client state.
//
// It contains concrete implementations of the domain storage interfaces,
// serialising data as JSON on disk with atomic temp-file writes. All methods
// are concurrency-safe via internal locking. Stored files live under the
// user's configured home directory.
//
// The package includes stores for:
//   - Identity keys, encrypted at rest (IdentityFileStore)
//   - Prekey pairs (PreKeyFileStore)
//   - X3DH sessions per peer device (SessionFileStore)
//   - Double Ratchet state per peer device (RatchetFileStore)
//   - The active device registration (DeviceFileStore)
//   - The outgoing message queue (OutboxFileStore)
package store
