package label

import (
	"bytes"
	"strings"
	"testing"

	"github.com/coniks-sys/keywitness/crypto"
)

func TestDeriveIsDeterministic(t *testing.T) {
	d := NewDeriver(crypto.NewStaticTestVRFKey())
	l1, p1, err := d.Derive("alice")
	if err != nil {
		t.Fatal(err)
	}
	l2, p2, err := d.Derive("alice")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(l1, l2) || !bytes.Equal(p1, p2) {
		t.Fatal("Derive is not deterministic")
	}
	if len(l1) != Size {
		t.Fatal("Unexpected label size", len(l1))
	}
	l3, _, _ := d.Derive("bob")
	if bytes.Equal(l1, l3) {
		t.Fatal("Different identities got the same label")
	}
}

func TestVerify(t *testing.T) {
	d := NewDeriver(crypto.NewStaticTestVRFKey())
	l, p, _ := d.Derive("alice")
	if err := Verify("alice", l, p, d.Public()); err != nil {
		t.Fatal(err)
	}
	if err := Verify("bob", l, p, d.Public()); err != ErrMalformedProof {
		t.Fatal("Expect", ErrMalformedProof, "got", err)
	}
	other := append([]byte{}, l...)
	other[0] ^= 1
	if err := Verify("alice", other, p, d.Public()); err != ErrLabelMismatch {
		t.Fatal("Expect", ErrLabelMismatch, "got", err)
	}
}

func TestMalformedIdentity(t *testing.T) {
	d := NewDeriver(crypto.NewStaticTestVRFKey())
	for _, id := range []string{"", strings.Repeat("a", MaxIdentityLength+1)} {
		if _, _, err := d.Derive(id); err != ErrMalformedIdentity {
			t.Error("Expect", ErrMalformedIdentity, "got", err)
		}
		if err := Verify(id, nil, nil, d.Public()); err != ErrMalformedIdentity {
			t.Error("Expect", ErrMalformedIdentity, "got", err)
		}
	}
}
