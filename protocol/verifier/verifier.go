// Package verifier implements the checks a client runs on the
// directory's responses. A proof is only as good as the root it is
// checked against, so every check is anchored either in a quorum
// certificate or in a root the client already trusts.
package verifier

import (
	"bytes"
	"errors"

	"github.com/coniks-sys/keywitness/crypto/hasher"
	"github.com/coniks-sys/keywitness/label"
	"github.com/coniks-sys/keywitness/merkletree"
	"github.com/coniks-sys/keywitness/protocol"
)

// ErrNoAnchor is returned for an Anchor with neither a certificate
// nor a root.
var ErrNoAnchor = errors.New("[verifier] No anchor for the proof")

// Env holds what every check needs.
type Env struct {
	Committee *protocol.Committee
}

// An Anchor is what a root is trusted by: a certificate, or a root
// the caller established earlier. The certificate wins if both are
// set.
type Anchor struct {
	Certificate *protocol.Certificate
	Root        []byte
}

// A Proof recomputes a root. The membership, non-membership and key
// history proofs of merkletree are Proofs.
type Proof interface {
	Verify(h hasher.TreeHasher, root []byte) error
}

var (
	_ Proof = (*merkletree.MembershipProof)(nil)
	_ Proof = (*merkletree.NonMembershipProof)(nil)
	_ Proof = (*merkletree.KeyHistoryProof)(nil)
)

// Verify accepts p iff p recomputes claimedRoot and claimedRoot is the
// root anchor vouches for.
func Verify(p Proof, claimedRoot []byte, anchor Anchor, env *Env) error {
	root, err := anchored(anchor, env)
	if err != nil {
		return err
	}
	if !bytes.Equal(root, claimedRoot) {
		return protocol.ErrCertificateMismatch
	}
	if err := p.Verify(env.Committee.Hasher(), claimedRoot); err != nil {
		return protocol.ErrInvalidProof
	}
	return nil
}

func anchored(a Anchor, env *Env) ([]byte, error) {
	switch {
	case a.Certificate != nil:
		if err := VerifyCertificate(a.Certificate, env); err != nil {
			return nil, err
		}
		return a.Certificate.Root, nil
	case a.Root != nil:
		return a.Root, nil
	}
	return nil, ErrNoAnchor
}

// VerifyCertificate checks that c carries the votes of a quorum.
func VerifyCertificate(c *protocol.Certificate, env *Env) error {
	if c == nil {
		return protocol.ErrMalformedMessage
	}
	return c.Verify(env.Committee)
}

func verifyLabel(identity string, l, proof []byte, env *Env) error {
	if err := label.Verify(identity, l, proof, env.Committee.VRFKey()); err != nil {
		return protocol.CheckBadVRFProof
	}
	return nil
}

// VerifyLookup checks a lookup response: the label belongs to the
// identity, the proof is about that label at the certified epoch, and
// it recomputes the certified root.
func VerifyLookup(p *protocol.LookupProof, env *Env) error {
	if p == nil || p.Certificate == nil || (p.Membership == nil) == (p.NonMembership == nil) {
		return protocol.ErrMalformedMessage
	}
	if err := verifyLabel(p.Identity, p.Label, p.VRFProof, env); err != nil {
		return err
	}
	if p.Certificate.Epoch != p.Epoch {
		return protocol.ErrCertificateMismatch
	}
	var (
		proof Proof
		l     merkletree.NodeLabel
		epoch uint64
	)
	if p.Membership != nil {
		proof, l, epoch = p.Membership, p.Membership.Label, p.Membership.Epoch
	} else {
		proof, l, epoch = p.NonMembership, p.NonMembership.Label, p.NonMembership.Epoch
	}
	if epoch != p.Epoch || !sameLabel(l, p.Label) {
		return protocol.CheckBadBinding
	}
	return Verify(proof, p.Certificate.Root, Anchor{Certificate: p.Certificate}, env)
}

// VerifyKeyHistory checks a key history response like VerifyLookup.
func VerifyKeyHistory(h *protocol.KeyHistory, env *Env) error {
	if h == nil || h.Certificate == nil || h.History == nil || h.History.Membership == nil {
		return protocol.ErrMalformedMessage
	}
	if err := verifyLabel(h.Identity, h.Label, h.VRFProof, env); err != nil {
		return err
	}
	if h.Certificate.Epoch != h.Epoch {
		return protocol.ErrCertificateMismatch
	}
	m := h.History.Membership
	if m.Epoch != h.Epoch || !sameLabel(m.Label, h.Label) {
		return protocol.CheckBadBinding
	}
	return Verify(h.History, h.Certificate.Root, Anchor{Certificate: h.Certificate}, env)
}

// VerifyHistory checks that the certified root of a.Proof.To extends
// fromRoot, the trusted root of a.Proof.From.
func VerifyHistory(a *protocol.Audit, fromRoot []byte, env *Env) error {
	if a == nil || a.Proof == nil || a.Certificate == nil {
		return protocol.ErrMalformedMessage
	}
	if err := VerifyCertificate(a.Certificate, env); err != nil {
		return err
	}
	if a.Proof.To != a.Certificate.Epoch {
		return protocol.ErrCertificateMismatch
	}
	if err := a.Proof.Verify(env.Committee.Hasher(), fromRoot, a.Certificate.Root); err != nil {
		return protocol.ErrInvalidProof
	}
	return nil
}

func sameLabel(l merkletree.NodeLabel, b []byte) bool {
	want, err := merkletree.LeafLabel(b)
	return err == nil && l == want
}
