// Package message holds the per-device ratchet plumbing: encrypting one
// message for one peer device on the send path, and draining the device
// mailbox on the receive path.
package message
