package blake3

import (
	"bytes"
	"testing"

	"github.com/coniks-sys/keywitness/crypto/hasher"
	"github.com/coniks-sys/keywitness/crypto/hasher/shake"
)

func TestRegistered(t *testing.T) {
	h, err := hasher.Hasher(ID)
	if err != nil {
		t.Fatal(err)
	}
	if h.Size() != 32 {
		t.Fatal("Unexpected size", h.Size())
	}
}

func TestDiffersFromShake(t *testing.T) {
	label := bytes.Repeat([]byte{1}, 32)
	if bytes.Equal(New().HashLeaf(label, nil), shake.New().HashLeaf(label, nil)) {
		t.Fatal("BLAKE3 and SHAKE128 leaf digests agree")
	}
}
