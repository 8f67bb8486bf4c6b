// Package prekey generates the signed and one-time prekeys this device
// publishes and assembles the registration payload sent to the relay.
package prekey
