// Package vrf implements ECVRF-EDWARDS25519-SHA512-TAI (RFC 9381)
// on top of filippo.io/edwards25519.
//
//	Setup : the prover publicly commits to a public key Y = x*B
//	H : messages -> E, try-and-increment encoding to the curve
//	Prove_x(m) = (Gamma = x*H(m), c, s) where
//	    k = h(nonce, H(m)), c = h(Y, H(m), Gamma, k*B, k*H(m)), s = k + c*x
//	VRF_x(m) = h(8*Gamma)
//	Verify(Y, m, out, proof) checks c == h(Y, H, Gamma, s*B - c*Y, s*H - c*Gamma)
//	    and out == h(8*Gamma)
package vrf

import (
	"bytes"
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"io"

	ed "filippo.io/edwards25519"
)

const (
	// PublicKeySize is the size of a compressed public key.
	PublicKeySize = 32
	// PrivateKeySize is the size of seed || public key.
	PrivateKeySize = 64
	// Size is the size of the VRF output.
	Size = 64
	// ProofSize is the size of gamma || c || s.
	ProofSize = 32 + 16 + 32

	suite byte = 0x03
)

var (
	// ErrMalformedKey indicates a public key that is not a valid
	// curve point or lies in the small subgroup.
	ErrMalformedKey = errors.New("[vrf] Malformed public key")
	// ErrMalformedProof indicates a proof that cannot be decoded.
	ErrMalformedProof = errors.New("[vrf] Malformed proof")
)

// PrivateKey holds the 32-byte seed followed by the cached public key.
type PrivateKey [PrivateKeySize]byte

// PublicKey is a compressed Edwards point.
type PublicKey [PublicKeySize]byte

// GenerateKey creates a public/private key pair using rnd for randomness.
// If rnd is nil, crypto/rand is used.
func GenerateKey(rnd io.Reader) (sk PrivateKey, err error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	if _, err = io.ReadFull(rnd, sk[:32]); err != nil {
		return
	}
	x, _ := sk.expand()
	copy(sk[32:], (&ed.Point{}).ScalarBaseMult(x).Bytes())
	return
}

// expand derives the secret scalar and the nonce key from the seed.
func (sk *PrivateKey) expand() (*ed.Scalar, []byte) {
	h := sha512.Sum512(sk[:32])
	x, err := (&ed.Scalar{}).SetBytesWithClamping(h[:32])
	if err != nil {
		panic(err)
	}
	return x, h[32:]
}

// Public extracts the public VRF key from the underlying private-key.
func (sk PrivateKey) Public() (pk PublicKey) {
	copy(pk[:], sk[32:])
	return
}

// Compute generates the VRF output for m.
func (sk PrivateKey) Compute(m []byte) []byte {
	out, _ := sk.Prove(m)
	return out
}

// Prove returns the VRF output for m together with a proof that
// it was computed with sk.
func (sk PrivateKey) Prove(m []byte) (out, proof []byte) {
	x, nonceKey := sk.expand()
	pk := sk[32:]
	h := encodeToCurve(pk, m)
	hBytes := h.Bytes()

	kh := sha512.New()
	kh.Write(nonceKey)
	kh.Write(hBytes)
	k, err := (&ed.Scalar{}).SetUniformBytes(kh.Sum(nil))
	if err != nil {
		panic(err)
	}

	gamma := (&ed.Point{}).ScalarMult(x, h)
	c := challenge(pk, hBytes, gamma,
		(&ed.Point{}).ScalarBaseMult(k),
		(&ed.Point{}).ScalarMult(k, h))
	s := ed.NewScalar().MultiplyAdd(c, x, k)

	proof = make([]byte, 0, ProofSize)
	proof = append(proof, gamma.Bytes()...)
	proof = append(proof, c.Bytes()[:16]...)
	proof = append(proof, s.Bytes()...)
	return gammaToOutput(gamma), proof
}

// Verify returns true iff out is the VRF output of m under pk
// and proof is valid.
func (pk PublicKey) Verify(m, out, proof []byte) bool {
	o, err := pk.ProofToHash(m, proof)
	if err != nil {
		return false
	}
	return bytes.Equal(o, out)
}

// ProofToHash verifies proof for m and returns the VRF output it
// certifies.
func (pk PublicKey) ProofToHash(m, proof []byte) ([]byte, error) {
	y, err := pk.point()
	if err != nil {
		return nil, err
	}
	if len(proof) != ProofSize {
		return nil, ErrMalformedProof
	}
	gamma, err := (&ed.Point{}).SetBytes(proof[:32])
	if err != nil {
		return nil, ErrMalformedProof
	}
	cb := make([]byte, 32)
	copy(cb, proof[32:48])
	c, err := (&ed.Scalar{}).SetCanonicalBytes(cb)
	if err != nil {
		return nil, ErrMalformedProof
	}
	s, err := (&ed.Scalar{}).SetCanonicalBytes(proof[48:])
	if err != nil {
		return nil, ErrMalformedProof
	}

	h := encodeToCurve(pk[:], m)
	// U = s*B - c*Y, V = s*H - c*Gamma
	u := (&ed.Point{}).Subtract(
		(&ed.Point{}).ScalarBaseMult(s),
		(&ed.Point{}).ScalarMult(c, y))
	v := (&ed.Point{}).Subtract(
		(&ed.Point{}).ScalarMult(s, h),
		(&ed.Point{}).ScalarMult(c, gamma))

	if challenge(pk[:], h.Bytes(), gamma, u, v).Equal(c) != 1 {
		return nil, ErrMalformedProof
	}
	return gammaToOutput(gamma), nil
}

// point decodes pk and rejects keys in the small subgroup
// (ECVRF_validate_key).
func (pk PublicKey) point() (*ed.Point, error) {
	y, err := (&ed.Point{}).SetBytes(pk[:])
	if err != nil {
		return nil, ErrMalformedKey
	}
	if (&ed.Point{}).MultByCofactor(y).Equal(ed.NewIdentityPoint()) == 1 {
		return nil, ErrMalformedKey
	}
	return y, nil
}

func encodeToCurve(pk, m []byte) *ed.Point {
	p := &ed.Point{}
	for ctr := 0; ctr < 256; ctr++ {
		h := sha512.New()
		h.Write([]byte{suite, 0x01})
		h.Write(pk)
		h.Write(m)
		h.Write([]byte{byte(ctr), 0x00})
		d := h.Sum(nil)
		if _, err := p.SetBytes(d[:32]); err != nil {
			continue
		}
		res := (&ed.Point{}).MultByCofactor(p)
		if res.Equal(ed.NewIdentityPoint()) == 0 {
			return res
		}
	}
	panic("[vrf] unable to encode message to curve")
}

func challenge(pk, h []byte, points ...*ed.Point) *ed.Scalar {
	hr := sha512.New()
	hr.Write([]byte{suite, 0x02})
	hr.Write(pk)
	hr.Write(h)
	for _, p := range points {
		hr.Write(p.Bytes())
	}
	hr.Write([]byte{0x00})
	c := hr.Sum(nil)[:32]
	for i := 16; i < 32; i++ {
		c[i] = 0
	}
	s, err := (&ed.Scalar{}).SetCanonicalBytes(c)
	if err != nil {
		panic(err)
	}
	return s
}

func gammaToOutput(gamma *ed.Point) []byte {
	h := sha512.New()
	h.Write([]byte{suite, 0x03})
	h.Write((&ed.Point{}).MultByCofactor(gamma).Bytes())
	h.Write([]byte{0x00})
	return h.Sum(nil)
}
