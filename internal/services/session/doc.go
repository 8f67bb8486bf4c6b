// Package session establishes and looks up X3DH sessions, one per peer
// device. It answers the dispatch pipeline's "does a session exist" question
// and turns fetched prekey bundles into stored sessions.
package session
