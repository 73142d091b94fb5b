// Package label derives the private tree label of an identity.
// Labels are the first 32 bytes of the identity's VRF output, so
// the directory can prove a label belongs to an identity without
// revealing any other identity in the tree.
package label

import (
	"bytes"
	"errors"

	"github.com/coniks-sys/keywitness/crypto/vrf"
)

const (
	// Size is the size of a label in bytes.
	Size = 32
	// MaxIdentityLength bounds the encoded identity.
	MaxIdentityLength = 1024
)

var (
	// ErrMalformedIdentity indicates an empty or oversized identity.
	ErrMalformedIdentity = errors.New("[label] Malformed identity")
	// ErrMalformedProof indicates a proof that does not verify.
	ErrMalformedProof = errors.New("[label] Malformed VRF proof")
	// ErrLabelMismatch indicates a valid proof for a different label.
	ErrLabelMismatch = errors.New("[label] Label does not match the proof")
)

// A Deriver maps identities to labels with the directory's VRF key.
type Deriver struct {
	sk vrf.PrivateKey
}

// NewDeriver returns a Deriver using sk.
func NewDeriver(sk vrf.PrivateKey) *Deriver {
	return &Deriver{sk: sk}
}

// Public returns the VRF public key clients verify labels with.
func (d *Deriver) Public() vrf.PublicKey {
	return d.sk.Public()
}

// Derive returns the label of identity and the VRF proof binding them.
// Derive is deterministic.
func (d *Deriver) Derive(identity string) (label, proof []byte, err error) {
	if err := checkIdentity(identity); err != nil {
		return nil, nil, err
	}
	out, proof := d.sk.Prove([]byte(identity))
	return out[:Size], proof, nil
}

// Verify checks that label was derived from identity under pk.
func Verify(identity string, label, proof []byte, pk vrf.PublicKey) error {
	if err := checkIdentity(identity); err != nil {
		return err
	}
	out, err := pk.ProofToHash([]byte(identity), proof)
	if err != nil {
		return ErrMalformedProof
	}
	if !bytes.Equal(out[:Size], label) {
		return ErrLabelMismatch
	}
	return nil
}

func checkIdentity(identity string) error {
	if len(identity) == 0 || len(identity) > MaxIdentityLength {
		return ErrMalformedIdentity
	}
	return nil
}
