// Package dispatch is the outgoing message pipeline: it resolves the current
// recipient device set of a conversation, guarantees a session with every
// device, encrypts the message once per device, submits the envelope, and
// reacts to relay-reported staleness by re-resolving and retrying.
//
// All sends run on one worker goroutine. Ratchet state mutates with every
// encrypt, so two interleaved sends would corrupt sessions; serialising the
// whole pipeline makes that impossible without locks around the stores.
package dispatch
