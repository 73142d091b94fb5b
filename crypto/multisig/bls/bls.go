// Package bls implements multisig.Scheme with BLS signatures on
// BLS12-381: public keys in G1, signatures in G2. Aggregates are a
// single G2 point and verify with one pairing check.
//
// Committee keys are assumed to be registered with a proof of
// possession; the scheme itself does not defend against rogue keys.
package bls

import (
	"crypto/rand"
	"io"
	"math/big"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/coniks-sys/keywitness/crypto/multisig"
)

func init() {
	multisig.RegisterScheme(ID, New)
}

// ID is the identity of the BLS scheme.
const ID = "bls12-381"

// dst is the hash-to-curve domain separation tag.
var dst = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_POP_")

type scheme struct {
	g1 bls12381.G1Affine
}

// New returns the BLS scheme.
func New() multisig.Scheme {
	_, _, g1, _ := bls12381.Generators()
	return &scheme{g1: g1}
}

type signer struct {
	k  big.Int
	pk []byte
}

func (s *signer) Sign(msg []byte) []byte {
	h, err := bls12381.HashToG2(msg, dst)
	if err != nil {
		panic(err)
	}
	var sig bls12381.G2Affine
	sig.ScalarMultiplication(&h, &s.k)
	b := sig.Bytes()
	return b[:]
}

func (s *signer) Public() []byte { return s.pk }

func (s *signer) Bytes() []byte {
	b := make([]byte, fr.Bytes)
	s.k.FillBytes(b)
	return b
}

func (*scheme) ID() string { return ID }

func (sc *scheme) newSigner(k *big.Int) *signer {
	var pk bls12381.G1Affine
	pk.ScalarMultiplication(&sc.g1, k)
	b := pk.Bytes()
	s := &signer{pk: b[:]}
	s.k.Set(k)
	return s
}

func (sc *scheme) GenerateKey(rnd io.Reader) (multisig.Signer, error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	// 64 bytes reduced mod r keeps the bias negligible.
	buf := make([]byte, 64)
	if _, err := io.ReadFull(rnd, buf); err != nil {
		return nil, err
	}
	k := new(big.Int).SetBytes(buf)
	k.Mod(k, fr.Modulus())
	if k.Sign() == 0 {
		return nil, multisig.ErrMalformedKey
	}
	return sc.newSigner(k), nil
}

func (sc *scheme) ParsePrivateKey(b []byte) (multisig.Signer, error) {
	if len(b) != fr.Bytes {
		return nil, multisig.ErrMalformedKey
	}
	k := new(big.Int).SetBytes(b)
	if k.Sign() == 0 || k.Cmp(fr.Modulus()) >= 0 {
		return nil, multisig.ErrMalformedKey
	}
	return sc.newSigner(k), nil
}

func decodePublicKey(b []byte) (*bls12381.G1Affine, error) {
	var pk bls12381.G1Affine
	if len(b) != bls12381.SizeOfG1AffineCompressed {
		return nil, multisig.ErrMalformedKey
	}
	if _, err := pk.SetBytes(b); err != nil {
		return nil, multisig.ErrMalformedKey
	}
	if pk.IsInfinity() {
		return nil, multisig.ErrMalformedKey
	}
	return &pk, nil
}

func decodeSignature(b []byte) (*bls12381.G2Affine, error) {
	var sig bls12381.G2Affine
	if len(b) != bls12381.SizeOfG2AffineCompressed {
		return nil, multisig.ErrMalformedSignature
	}
	if _, err := sig.SetBytes(b); err != nil {
		return nil, multisig.ErrMalformedSignature
	}
	return &sig, nil
}

func (*scheme) ValidatePublicKey(pk []byte) error {
	_, err := decodePublicKey(pk)
	return err
}

func (sc *scheme) VerifyShare(pk, msg, sig []byte) bool {
	return sc.VerifyAggregate([][]byte{pk}, msg, sig)
}

func (*scheme) Aggregate(shares []multisig.Share) ([]byte, error) {
	if len(shares) == 0 {
		return nil, multisig.ErrNoShares
	}
	var acc bls12381.G2Jac
	for i, s := range shares {
		sig, err := decodeSignature(s.Signature)
		if err != nil {
			return nil, err
		}
		var j bls12381.G2Jac
		j.FromAffine(sig)
		if i == 0 {
			acc.Set(&j)
		} else {
			acc.AddAssign(&j)
		}
	}
	var agg bls12381.G2Affine
	agg.FromJacobian(&acc)
	b := agg.Bytes()
	return b[:], nil
}

func (sc *scheme) VerifyAggregate(pks [][]byte, msg, aggregate []byte) bool {
	if len(pks) == 0 {
		return false
	}
	sig, err := decodeSignature(aggregate)
	if err != nil {
		return false
	}
	var acc bls12381.G1Jac
	for i, b := range pks {
		pk, err := decodePublicKey(b)
		if err != nil {
			return false
		}
		var j bls12381.G1Jac
		j.FromAffine(pk)
		if i == 0 {
			acc.Set(&j)
		} else {
			acc.AddAssign(&j)
		}
	}
	var aggPk bls12381.G1Affine
	aggPk.FromJacobian(&acc)

	h, err := bls12381.HashToG2(msg, dst)
	if err != nil {
		return false
	}
	var negG1 bls12381.G1Affine
	negG1.Neg(&sc.g1)
	// e(aggPk, H(m)) * e(-g1, sig) == 1
	ok, err := bls12381.PairingCheck(
		[]bls12381.G1Affine{aggPk, negG1},
		[]bls12381.G2Affine{h, *sig})
	return err == nil && ok
}
