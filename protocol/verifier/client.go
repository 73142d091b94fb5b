package verifier

import (
	"bytes"
	"sync"

	"github.com/coniks-sys/keywitness/merkletree"
	"github.com/coniks-sys/keywitness/protocol"
)

// A Client keeps the latest certified root it has verified and only
// moves forward with history proofs, so the directory cannot show it
// two diverging histories even with a valid certificate for each.
//
// A new Client trusts the genesis root and nothing else.
type Client struct {
	env *Env

	mu    sync.Mutex
	epoch uint64
	roots map[uint64][]byte
}

// NewClient returns a client anchored at the genesis epoch.
func NewClient(env *Env) *Client {
	return &Client{
		env:   env,
		roots: map[uint64][]byte{0: merkletree.GenesisRoot(env.Committee.Hasher())},
	}
}

// Epoch returns the latest epoch the client trusts and its root.
func (c *Client) Epoch() (uint64, []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch, c.roots[c.epoch]
}

// Advance moves the client to the certified epoch a proves. The proof
// must start at the client's current epoch.
func (c *Client) Advance(a *protocol.Audit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a == nil || a.Proof == nil {
		return protocol.ErrMalformedMessage
	}
	if a.Proof.From != c.epoch {
		return protocol.CheckStaleEpoch
	}
	if err := VerifyHistory(a, c.roots[c.epoch], c.env); err != nil {
		return err
	}
	c.epoch = a.Proof.To
	c.roots[c.epoch] = append([]byte{}, a.Certificate.Root...)
	return nil
}

// CheckLookup verifies p and that its root is the one the client
// trusts for p.Epoch. A lookup beyond the client's epoch needs an
// Advance first.
func (c *Client) CheckLookup(p *protocol.LookupProof) error {
	if err := VerifyLookup(p, c.env); err != nil {
		return err
	}
	return c.consistent(p.Epoch, p.Certificate.Root)
}

// CheckKeyHistory is CheckLookup for key histories.
func (c *Client) CheckKeyHistory(h *protocol.KeyHistory) error {
	if err := VerifyKeyHistory(h, c.env); err != nil {
		return err
	}
	return c.consistent(h.Epoch, h.Certificate.Root)
}

func (c *Client) consistent(epoch uint64, root []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch > c.epoch {
		return protocol.CheckStaleEpoch
	}
	if known, ok := c.roots[epoch]; ok && !bytes.Equal(known, root) {
		return protocol.ErrCertificateMismatch
	}
	return nil
}
