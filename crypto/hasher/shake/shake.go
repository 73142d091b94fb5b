// Package shake registers the default tree hasher, built on
// SHAKE128 with a 256-bit output.
package shake

import (
	"github.com/coniks-sys/keywitness/crypto"
	"github.com/coniks-sys/keywitness/crypto/hasher"
)

func init() {
	hasher.RegisterHasher(ID, New)
}

// ID is the identity of the default hasher.
const ID = crypto.HashID

// New returns an instance of the SHAKE128 tree hasher.
func New() hasher.TreeHasher {
	return hasher.New(ID, crypto.DefaultHashSizeByte, crypto.Digest)
}
