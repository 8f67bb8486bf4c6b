package x3dh_test

import (
	"bytes"
	"testing"

	"courier/internal/crypto"
	"courier/internal/domain"
	"courier/internal/protocol/x3dh"
)

// makeIdentity returns a fresh full identity (X25519 + Ed25519).
func makeIdentity(t *testing.T) domain.Identity {
	t.Helper()
	xPriv, xPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	edPriv, edPub, err := crypto.GenerateEd25519()
	if err != nil {
		t.Fatalf("GenerateEd25519: %v", err)
	}
	return domain.Identity{XPub: xPub, XPriv: xPriv, EdPub: edPub, EdPriv: edPriv}
}

// makeBundle builds a device bundle for id, returning the SPK/OPK privates
// the responder side needs.
func makeBundle(t *testing.T, id domain.Identity, withOPK bool) (domain.DevicePreKeyBundle, domain.X25519Private, *domain.X25519Private) {
	t.Helper()
	spkPriv, spkPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	b := domain.DevicePreKeyBundle{
		ContactID:       "bob",
		DeviceID:        "bob-phone",
		IdentityKey:     id.XPub,
		SigningKey:      id.EdPub,
		SignedPreKeyID:  "spk-1",
		SignedPreKey:    spkPub,
		SignedPreKeySig: crypto.SignEd25519(id.EdPriv, spkPub.Slice()),
	}
	var opkPriv *domain.X25519Private
	if withOPK {
		priv, pub, err := crypto.GenerateX25519()
		if err != nil {
			t.Fatalf("GenerateX25519: %v", err)
		}
		opkPriv = &priv
		b.OneTimePreKey = &domain.OneTimePreKeyPublic{ID: "opk-1", Pub: pub}
	}
	return b, spkPriv, opkPriv
}

func TestX3DH_BothSidesDeriveSameRoot(t *testing.T) {
	alice := makeIdentity(t)
	bob := makeIdentity(t)

	for _, withOPK := range []bool{false, true} {
		bundle, spkPriv, opkPriv := makeBundle(t, bob, withOPK)

		rootA, ephPub, err := x3dh.InitiatorRoot(alice, bundle)
		if err != nil {
			t.Fatalf("InitiatorRoot (opk=%v): %v", withOPK, err)
		}

		pm := domain.PreKeyMessage{
			InitiatorIdentityKey: alice.XPub,
			EphemeralKey:         ephPub,
			SignedPreKeyID:       bundle.SignedPreKeyID,
		}
		if withOPK {
			pm.OneTimePreKeyID = bundle.OneTimePreKey.ID
		}
		rootB, err := x3dh.ResponderRoot(bob, spkPriv, opkPriv, pm)
		if err != nil {
			t.Fatalf("ResponderRoot (opk=%v): %v", withOPK, err)
		}
		if !bytes.Equal(rootA, rootB) {
			t.Fatalf("root mismatch (opk=%v)", withOPK)
		}
		if len(rootA) != 32 {
			t.Fatalf("root length = %d, want 32", len(rootA))
		}
	}
}

func TestX3DH_RejectsBadSPKSignature(t *testing.T) {
	alice := makeIdentity(t)
	bob := makeIdentity(t)

	bundle, _, _ := makeBundle(t, bob, false)
	bundle.SignedPreKeySig[0] ^= 0xff

	if _, _, err := x3dh.InitiatorRoot(alice, bundle); err != x3dh.ErrBadSignature {
		t.Fatalf("InitiatorRoot error = %v, want ErrBadSignature", err)
	}
}
