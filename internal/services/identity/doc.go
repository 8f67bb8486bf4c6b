// Package identity owns the long-term key pairs of this device and the
// passphrase policy guarding them at rest.
package identity
