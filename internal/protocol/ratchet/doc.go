// Package ratchet implements the Double Ratchet over X25519, HKDF-SHA256 and
// ChaCha20-Poly1305. State lives in domain.RatchetState so stores can persist
// it between messages; every Encrypt/Decrypt mutates the state it is given.
package ratchet
