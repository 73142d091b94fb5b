package crypto

import (
	"bytes"
	"fmt"

	"github.com/coniks-sys/keywitness/crypto/sign"
	"github.com/coniks-sys/keywitness/crypto/vrf"
)

// NewStaticTestVRFKey returns a static VRF private key for _tests_.
func NewStaticTestVRFKey() vrf.PrivateKey {
	sk, err := vrf.GenerateKey(bytes.NewReader(
		[]byte("deterministic tests need 256 bit")))
	if err != nil {
		panic(err)
	}
	return sk
}

// NewStaticTestSigningKey returns a static private signing key for _tests_.
func NewStaticTestSigningKey() sign.PrivateKey {
	sk, err := sign.GenerateKey(bytes.NewReader(
		[]byte("deterministic tests need 256 bit")))
	if err != nil {
		panic(err)
	}
	return sk
}

// NewStaticTestSeed returns 64 deterministic bytes derived from name,
// to be used as randomness for generating witness keys in _tests_.
func NewStaticTestSeed(name string) *bytes.Reader {
	seed := Digest([]byte(fmt.Sprintf("test seed %s", name)))
	seed = append(seed, Digest(seed)...)
	return bytes.NewReader(seed)
}
