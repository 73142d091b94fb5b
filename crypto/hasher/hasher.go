// Package hasher defines the hash functions used by the history tree
// and a registry of implementations. Implementations register
// themselves on import, e.g.
//
//	import _ "github.com/coniks-sys/keywitness/crypto/hasher/shake"
package hasher

import (
	"fmt"
	"sort"
)

// TreeHasher provides the domain separated hash functions of the
// history tree. All digests have Size() bytes.
type TreeHasher interface {
	// ID returns the name of the cryptographic hash function.
	ID() string
	// Size returns the size of the hash output in bytes.
	Size() int
	// Digest hashes all passed byte slices. The passed slices won't be mutated.
	Digest(ms ...[]byte) []byte

	// HashInterior computes the digest of an interior node or the root
	// as H('I' || length || prefix || leftLabel || left || rightLabel || right).
	// The child labels are fixed-size encodings, so a child digest only
	// verifies under the label it was computed for.
	HashInterior(prefix []byte, length uint32, leftLabel, left, rightLabel, right []byte) []byte

	// HashLeaf computes the digest of a leaf as H('L' || label || chain).
	HashLeaf(label, chain []byte) []byte

	// HashEmpty computes the digest of a missing child of the root as H('E').
	HashEmpty() []byte

	// HashVersion extends a label's version chain:
	// H('V' || prevChain || version || epoch || H(value)).
	HashVersion(prevChain []byte, version, epoch uint64, valueHash []byte) []byte

	// HashRoot computes the published root of an epoch:
	// H('R' || epoch || prevRoot || treeDigest).
	HashRoot(epoch uint64, prevRoot, treeDigest []byte) []byte
}

var hashers = make(map[string]TreeHasher)

// RegisterHasher registers a hasher for use.
func RegisterHasher(h string, f func() TreeHasher) {
	if _, ok := hashers[h]; ok {
		panic(fmt.Sprintf("RegisterHasher(%v) is already registered", h))
	}
	hashers[h] = f()
}

// Hasher returns the TreeHasher registered under h.
func Hasher(h string) (TreeHasher, error) {
	if f, ok := hashers[h]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("Hasher(%v) is unknown hasher", h)
}

// Registered returns the IDs of all registered hashers.
func Registered() []string {
	ids := make([]string, 0, len(hashers))
	for id := range hashers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
