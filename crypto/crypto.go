package crypto

import (
	"crypto/rand"
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

const (
	// DefaultHashSizeByte is the size of the hash output in bytes.
	DefaultHashSizeByte = 32
	// HashID identifies the used hash as a string.
	HashID = "SHAKE128"
)

// Digest hashes all passed byte slices.
// The passed slices won't be mutated.
func Digest(ms ...[]byte) []byte {
	h := sha3.NewShake128()
	for _, m := range ms {
		h.Write(m)
	}
	ret := make([]byte, DefaultHashSizeByte)
	h.Read(ret)
	return ret
}

// EpochDigest binds a domain tag, an epoch number and a root digest
// into a single message. Notifications, votes and certificates
// are all signed over such a message.
func EpochDigest(tag string, epoch uint64, root []byte) []byte {
	var e [8]byte
	binary.BigEndian.PutUint64(e[:], epoch)
	return Digest([]byte(tag), e[:], root)
}

// MakeRand returns a random slice of bytes.
// It returns an error if there was a problem while generating
// the random slice.
// The system's PRNG output is hashed before it is returned
// so raw PRNG bytes never appear on the wire.
func MakeRand() ([]byte, error) {
	r := make([]byte, DefaultHashSizeByte)
	if _, err := rand.Read(r); err != nil {
		return nil, err
	}
	return Digest(r), nil
}
