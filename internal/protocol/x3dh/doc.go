// Package x3dh implements the Extended Triple Diffie-Hellman key agreement
// used to bootstrap a session between two devices from a published prekey
// bundle. The initiator side consumes a bundle; the responder side consumes
// the PreKeyMessage the initiator attaches to its first payload.
package x3dh
