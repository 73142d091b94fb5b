// Package blake3 registers a BLAKE3 tree hasher.
package blake3

import (
	"github.com/coniks-sys/keywitness/crypto/hasher"
	zblake3 "github.com/zeebo/blake3"
)

func init() {
	hasher.RegisterHasher(ID, New)
}

// ID is the identity of the BLAKE3 hasher.
const ID = "BLAKE3"

// New returns an instance of the BLAKE3 tree hasher.
func New() hasher.TreeHasher {
	return hasher.New(ID, 32, digest)
}

func digest(ms ...[]byte) []byte {
	h := zblake3.New()
	for _, m := range ms {
		h.Write(m)
	}
	return h.Sum(nil)
}
