// Package main runs the in-memory HTTP relay used by courier during
// development and tests. It tracks registered devices, conversation
// membership and per-device mailboxes of encrypted envelopes.
//
// HTTP API
//
//	POST /register
//	    Store a device's registration (prekey bundle plus one-time prekeys).
//
//	POST /conversations
//	    Create a conversation with the creator as first member.
//
//	POST /conversations/{id}/join
//	    Add a user to a conversation.
//
//	GET /conversations/{id}/members
//	    Return the members with their current device lists.
//
//	POST /prekeys/batch
//	    Return one prekey bundle per requested device, consuming one
//	    one-time prekey each. Unknown devices are silently absent.
//
//	POST /conversations/{id}/messages
//	    Accept an envelope if its recipient device set matches the server's
//	    view; otherwise reject with 409 and a stale-devices report.
//
//	GET /mailbox/{user}/{device}?limit=N
//	    Return up to N queued envelopes for the device.
//
//	POST /mailbox/{user}/{device}/ack { "count": N }
//	    Drop the first N queued envelopes for the device.
//
// All state is held in memory and lost on process exit. The relay never sees
// plaintext or private keys; it stores ciphertext and public bundles only.
package main
