// Package multisig defines the interface of the signature schemes
// witnesses use to vote, and that certificates use to carry the
// votes of a quorum as one aggregate.
//
// Implementations register themselves on import, e.g.
//
//	import _ "github.com/coniks-sys/keywitness/crypto/multisig/bls"
package multisig

import (
	"errors"
	"fmt"
	"io"
	"sort"
)

var (
	// ErrMalformedKey indicates a key that cannot be decoded.
	ErrMalformedKey = errors.New("[multisig] Malformed key")
	// ErrMalformedSignature indicates a signature that cannot be decoded.
	ErrMalformedSignature = errors.New("[multisig] Malformed signature")
	// ErrNoShares indicates an aggregation over nothing.
	ErrNoShares = errors.New("[multisig] No signature shares to aggregate")
)

// Signer is a witness's private key.
type Signer interface {
	// Sign returns a signature share of msg.
	Sign(msg []byte) []byte
	// Public returns the encoded public key.
	Public() []byte
	// Bytes returns the encoded private key.
	Bytes() []byte
}

// Share is one witness's signature together with its public key.
type Share struct {
	PublicKey []byte
	Signature []byte
}

// Scheme signs votes and aggregates them into certificates.
// Aggregates are order sensitive for some schemes: callers must
// present public keys to VerifyAggregate in the order the shares
// were passed to Aggregate.
type Scheme interface {
	ID() string
	GenerateKey(rnd io.Reader) (Signer, error)
	ParsePrivateKey(b []byte) (Signer, error)
	// ValidatePublicKey rejects keys that can never verify.
	ValidatePublicKey(pk []byte) error
	VerifyShare(pk, msg, sig []byte) bool
	Aggregate(shares []Share) ([]byte, error)
	VerifyAggregate(pks [][]byte, msg, aggregate []byte) bool
}

var schemes = make(map[string]Scheme)

// RegisterScheme registers a scheme for use.
func RegisterScheme(id string, f func() Scheme) {
	if _, ok := schemes[id]; ok {
		panic(fmt.Sprintf("RegisterScheme(%v) is already registered", id))
	}
	schemes[id] = f()
}

// Get returns the scheme registered under id.
func Get(id string) (Scheme, error) {
	if s, ok := schemes[id]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("Scheme(%v) is unknown signature scheme", id)
}

// Registered returns the IDs of all registered schemes.
func Registered() []string {
	ids := make([]string, 0, len(schemes))
	for id := range schemes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
