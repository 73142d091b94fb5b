package vrf

import (
	"bytes"
	"testing"
)

func TestHonestComplete(t *testing.T) {
	sk, err := GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	pk := sk.Public()
	alice := []byte("alice")
	aliceVRF := sk.Compute(alice)
	aliceVRFFromProof, aliceProof := sk.Prove(alice)

	if !pk.Verify(alice, aliceVRF, aliceProof) {
		t.Error("Gen -> Prove -> Verify -> FALSE")
	}
	if !bytes.Equal(aliceVRF, aliceVRFFromProof) {
		t.Error("Compute != Prove")
	}
	if len(aliceProof) != ProofSize || len(aliceVRF) != Size {
		t.Error("Unexpected output sizes")
	}
}

func TestConvertPrivateKeyToPublicKey(t *testing.T) {
	sk, err := GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}

	pk := sk.Public()
	if !bytes.Equal(sk[32:], pk[:]) {
		t.Fatal("Raw byte respresentation doesn't match public key.")
	}
}

func TestDeterministic(t *testing.T) {
	seed := []byte("deterministic tests need 256 bit")
	sk1, _ := GenerateKey(bytes.NewReader(seed))
	sk2, _ := GenerateKey(bytes.NewReader(seed))
	if sk1 != sk2 {
		t.Fatal("Same seed gives different keys")
	}
	o1, p1 := sk1.Prove([]byte("bob"))
	o2, p2 := sk2.Prove([]byte("bob"))
	if !bytes.Equal(o1, o2) || !bytes.Equal(p1, p2) {
		t.Fatal("Prove is not deterministic")
	}
}

func TestFlipBitForgery(t *testing.T) {
	sk, err := GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	pk := sk.Public()
	alice := []byte("alice")
	aliceVRF, aliceProof := sk.Prove(alice)
	for i := 0; i < 32; i++ {
		for j := uint(0); j < 8; j++ {
			forged := append([]byte{}, aliceVRF...)
			forged[i] ^= 1 << j
			if pk.Verify(alice, forged, aliceProof) {
				t.Fatalf("forged by using aliceVRF[%d]^=%d", i, j)
			}
		}
	}
	for i := 0; i < ProofSize; i++ {
		forged := append([]byte{}, aliceProof...)
		forged[i] ^= 1
		if pk.Verify(alice, aliceVRF, forged) {
			t.Fatalf("forged by flipping proof byte %d", i)
		}
	}
}

func TestWrongMessageOrKey(t *testing.T) {
	sk, _ := GenerateKey(nil)
	other, _ := GenerateKey(nil)
	out, proof := sk.Prove([]byte("alice"))
	if sk.Public().Verify([]byte("bob"), out, proof) {
		t.Error("Proof verified for a different message")
	}
	if other.Public().Verify([]byte("alice"), out, proof) {
		t.Error("Proof verified under a different key")
	}
}

func TestSmallOrderKeyRejected(t *testing.T) {
	var identity PublicKey
	identity[0] = 1 // compressed encoding of the identity point
	if _, err := identity.ProofToHash([]byte("alice"), make([]byte, ProofSize)); err != ErrMalformedKey {
		t.Fatal("Expect", ErrMalformedKey, "got", err)
	}
}

func TestShortProof(t *testing.T) {
	sk, _ := GenerateKey(nil)
	if _, err := sk.Public().ProofToHash([]byte("alice"), []byte{1, 2, 3}); err != ErrMalformedProof {
		t.Fatal("Expect", ErrMalformedProof, "got", err)
	}
}
