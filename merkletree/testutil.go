package merkletree

import (
	"testing"

	"github.com/coniks-sys/keywitness/crypto"
	"github.com/coniks-sys/keywitness/crypto/hasher/shake"
	"github.com/coniks-sys/keywitness/storage"
	"github.com/coniks-sys/keywitness/storage/kv/leveldbkv"
)

// NewTestTree returns an empty tree backed by memory, for _tests_.
func NewTestTree(t testing.TB) *Tree {
	tree, err := New(storage.New(leveldbkv.OpenMemory()), shake.New())
	if err != nil {
		t.Fatal(err)
	}
	return tree
}

// TestLabel returns a deterministic 32-byte label for name, for _tests_.
func TestLabel(name string) []byte {
	return crypto.Digest([]byte(name))
}
