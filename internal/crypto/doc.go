// Package crypto exposes the minimal primitives used by courier.
//
//   - X25519 key generation, clamping and Diffie-Hellman (GenerateX25519,
//     Clamp, DH)
//   - Ed25519 key generation, signing and verification (GenerateEd25519,
//     SignEd25519, VerifyEd25519)
//   - Short public-key fingerprints for display (Fingerprint)
//
// All functions work with the fixed-size array types defined in
// internal/domain. Callers should treat returned secrets as sensitive and
// wipe them with internal/util/memzero when practical.
package crypto
