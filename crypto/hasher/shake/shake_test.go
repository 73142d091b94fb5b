package shake

import (
	"bytes"
	"testing"

	"github.com/coniks-sys/keywitness/crypto/hasher"
)

func TestRegistered(t *testing.T) {
	h, err := hasher.Hasher(ID)
	if err != nil {
		t.Fatal(err)
	}
	if h.ID() != ID || h.Size() != 32 {
		t.Fatal("Unexpected hasher", h.ID(), h.Size())
	}
}

func TestDomainSeparation(t *testing.T) {
	h := New()
	a := bytes.Repeat([]byte{0xaa}, 32)
	b := bytes.Repeat([]byte{0xbb}, 32)

	la := bytes.Repeat([]byte{0x01}, 36)
	lb := bytes.Repeat([]byte{0x02}, 36)

	leaf := h.HashLeaf(a, b)
	if bytes.Equal(leaf, h.HashInterior(nil, 0, la, a, lb, b)) {
		t.Error("Leaf and interior digests collide")
	}
	if bytes.Equal(h.HashInterior(nil, 0, la, a, lb, b), h.HashInterior(nil, 1, la, a, lb, b)) {
		t.Error("Interior digest ignores the prefix length")
	}
	if bytes.Equal(h.HashInterior(nil, 0, la, a, lb, b), h.HashInterior(nil, 0, lb, b, la, a)) {
		t.Error("Interior digest ignores child order")
	}
	if bytes.Equal(h.HashInterior(nil, 0, la, a, lb, b), h.HashInterior(nil, 0, lb, a, lb, b)) {
		t.Error("Interior digest ignores the child labels")
	}
	if bytes.Equal(h.HashVersion(nil, 1, 1, a), h.HashVersion(nil, 2, 1, a)) {
		t.Error("Version digest ignores the version")
	}
	if bytes.Equal(h.HashRoot(1, a, b), h.HashRoot(2, a, b)) {
		t.Error("Root digest ignores the epoch")
	}
	if len(h.HashEmpty()) != h.Size() {
		t.Error("Unexpected empty digest size")
	}
}
