package x3dh

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"

	"courier/internal/crypto"
	"courier/internal/domain"
	"courier/internal/util/memzero"
)

var (
	// ErrBadSignature is returned when the signed prekey signature does not verify.
	ErrBadSignature = errors.New("signed prekey signature verification failed")
)

const rootKeyInfo = "courier-x3dh"

// InitiatorRoot runs X3DH as the initiator against a peer device's bundle.
// It verifies the signed prekey, derives the shared root key, and returns the
// ephemeral public key the responder needs to derive the same root.
func InitiatorRoot(id domain.Identity, bundle domain.DevicePreKeyBundle) (root []byte, ephPub domain.X25519Public, err error) {
	if !crypto.VerifyEd25519(bundle.SigningKey, bundle.SignedPreKey.Slice(), bundle.SignedPreKeySig) {
		return nil, ephPub, ErrBadSignature
	}

	ephPriv, ephPub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, ephPub, err
	}
	defer memzero.Zero(ephPriv[:])

	dh1, err := crypto.DH(id.XPriv, bundle.SignedPreKey) // DH(IK_A, SPK_B)
	if err != nil {
		return nil, ephPub, err
	}
	dh2, err := crypto.DH(ephPriv, bundle.IdentityKey) // DH(EK_A, IK_B)
	if err != nil {
		return nil, ephPub, err
	}
	dh3, err := crypto.DH(ephPriv, bundle.SignedPreKey) // DH(EK_A, SPK_B)
	if err != nil {
		return nil, ephPub, err
	}

	concat := make([]byte, 0, 32*4)
	concat = append(concat, dh1[:]...)
	concat = append(concat, dh2[:]...)
	concat = append(concat, dh3[:]...)
	memzero.ZeroAll(dh1[:], dh2[:], dh3[:])

	if bundle.OneTimePreKey != nil {
		dh4, err := crypto.DH(ephPriv, bundle.OneTimePreKey.Pub) // DH(EK_A, OPK_B)
		if err != nil {
			memzero.Zero(concat)
			return nil, ephPub, err
		}
		concat = append(concat, dh4[:]...)
		memzero.Zero(dh4[:])
	}

	root = deriveRoot(concat)
	memzero.Zero(concat)
	return root, ephPub, nil
}

// ResponderRoot derives the same root key on the receiving device from the
// initiator's PreKeyMessage. opkPriv is nil when no one-time prekey was used.
func ResponderRoot(id domain.Identity, spkPriv domain.X25519Private, opkPriv *domain.X25519Private, pm domain.PreKeyMessage) ([]byte, error) {
	dh1, err := crypto.DH(spkPriv, pm.InitiatorIdentityKey) // DH(SPK_B, IK_A)
	if err != nil {
		return nil, err
	}
	dh2, err := crypto.DH(id.XPriv, pm.EphemeralKey) // DH(IK_B, EK_A)
	if err != nil {
		return nil, err
	}
	dh3, err := crypto.DH(spkPriv, pm.EphemeralKey) // DH(SPK_B, EK_A)
	if err != nil {
		return nil, err
	}

	concat := make([]byte, 0, 32*4)
	concat = append(concat, dh1[:]...)
	concat = append(concat, dh2[:]...)
	concat = append(concat, dh3[:]...)
	memzero.ZeroAll(dh1[:], dh2[:], dh3[:])

	if opkPriv != nil {
		dh4, err := crypto.DH(*opkPriv, pm.EphemeralKey) // DH(OPK_B, EK_A)
		if err != nil {
			memzero.Zero(concat)
			return nil, err
		}
		concat = append(concat, dh4[:]...)
		memzero.Zero(dh4[:])
	}

	root := deriveRoot(concat)
	memzero.Zero(concat)
	return root, nil
}

func deriveRoot(ikm []byte) []byte {
	r := hkdf.New(sha256.New, ikm, nil, []byte(rootKeyInfo))
	root := make([]byte, 32)
	_, _ = io.ReadFull(r, root)
	return root
}
