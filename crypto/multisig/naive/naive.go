// Package naive implements multisig.Scheme as a plain list of
// ed25519 signatures. The aggregate is the concatenation of the
// shares in signer order.
package naive

import (
	"io"

	"github.com/coniks-sys/keywitness/crypto/multisig"
	"github.com/coniks-sys/keywitness/crypto/sign"
)

func init() {
	multisig.RegisterScheme(ID, New)
}

// ID is the identity of the naive scheme.
const ID = "ed25519-set"

type scheme struct{}

// New returns the naive signature set scheme.
func New() multisig.Scheme {
	return scheme{}
}

type signer struct {
	sk sign.PrivateKey
}

func (s *signer) Sign(msg []byte) []byte { return s.sk.Sign(msg) }

func (s *signer) Public() []byte {
	pk, _ := s.sk.Public()
	return pk
}

func (s *signer) Bytes() []byte { return s.sk }

func (scheme) ID() string { return ID }

func (scheme) GenerateKey(rnd io.Reader) (multisig.Signer, error) {
	sk, err := sign.GenerateKey(rnd)
	if err != nil {
		return nil, err
	}
	return &signer{sk: sk}, nil
}

func (scheme) ParsePrivateKey(b []byte) (multisig.Signer, error) {
	sk, err := sign.ParsePrivateKey(b)
	if err != nil {
		return nil, multisig.ErrMalformedKey
	}
	return &signer{sk: sk}, nil
}

func (scheme) ValidatePublicKey(pk []byte) error {
	if len(pk) != sign.PublicKeySize {
		return multisig.ErrMalformedKey
	}
	return nil
}

func (scheme) VerifyShare(pk, msg, sig []byte) bool {
	return sign.PublicKey(pk).Verify(msg, sig)
}

func (scheme) Aggregate(shares []multisig.Share) ([]byte, error) {
	if len(shares) == 0 {
		return nil, multisig.ErrNoShares
	}
	agg := make([]byte, 0, len(shares)*sign.SignatureSize)
	for _, s := range shares {
		if len(s.Signature) != sign.SignatureSize {
			return nil, multisig.ErrMalformedSignature
		}
		agg = append(agg, s.Signature...)
	}
	return agg, nil
}

func (scheme) VerifyAggregate(pks [][]byte, msg, aggregate []byte) bool {
	if len(pks) == 0 || len(aggregate) != len(pks)*sign.SignatureSize {
		return false
	}
	for i, pk := range pks {
		sig := aggregate[i*sign.SignatureSize : (i+1)*sign.SignatureSize]
		if !sign.PublicKey(pk).Verify(msg, sig) {
			return false
		}
	}
	return true
}
