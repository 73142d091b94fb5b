// Package aggregator collects witness votes for one (epoch, root)
// pair and forms the certificate once the quorum is reached.
package aggregator

import (
	"bytes"
	"sync"

	"github.com/coniks-sys/keywitness/crypto/multisig"
	"github.com/coniks-sys/keywitness/protocol"
)

// An Aggregator accumulates votes for a single (epoch, root). It is
// safe for concurrent use; the certificate is formed exactly once.
type Aggregator struct {
	committee *protocol.Committee
	epoch     uint64
	root      []byte
	msg       []byte

	mu      sync.Mutex
	used    map[string]bool
	signers []string
	shares  []multisig.Share
	weight  uint64
	cert    *protocol.Certificate
}

// New returns an empty aggregator for (epoch, root).
func New(c *protocol.Committee, epoch uint64, root []byte) *Aggregator {
	return &Aggregator{
		committee: c,
		epoch:     epoch,
		root:      append([]byte{}, root...),
		msg:       protocol.VoteMessage(epoch, root),
		used:      make(map[string]bool),
	}
}

// Append adds v. It returns the certificate when v completes the
// quorum, and nil otherwise; votes arriving after the quorum are
// accepted but produce nothing.
func (a *Aggregator) Append(v *protocol.Vote) (*protocol.Certificate, error) {
	if v.Epoch != a.epoch || !bytes.Equal(v.Root, a.root) {
		return nil, protocol.ErrUnexpectedVote
	}
	w, ok := a.committee.Witness(v.Witness)
	if !ok {
		return nil, protocol.ErrUnknownWitness
	}
	a.mu.Lock()
	reused := a.used[v.Witness]
	a.mu.Unlock()
	if reused {
		return nil, protocol.ErrWitnessReuse
	}
	if !a.committee.Scheme().VerifyShare(w.PublicKey, a.msg, v.Signature) {
		return nil, protocol.ErrInvalidVote
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	// checked again: the same witness may race through verification
	if a.used[v.Witness] {
		return nil, protocol.ErrWitnessReuse
	}
	a.used[v.Witness] = true
	if a.cert != nil {
		return nil, nil
	}
	a.signers = append(a.signers, v.Witness)
	a.shares = append(a.shares, multisig.Share{PublicKey: w.PublicKey, Signature: v.Signature})
	a.weight += w.Power
	if a.weight < a.committee.QuorumThreshold() {
		return nil, nil
	}
	agg, err := a.committee.Scheme().Aggregate(a.shares)
	if err != nil {
		return nil, err
	}
	a.cert = &protocol.Certificate{
		Epoch:     a.epoch,
		Root:      a.root,
		Signers:   append([]string{}, a.signers...),
		Aggregate: agg,
	}
	return a.cert, nil
}

// Certificate returns the certificate once the quorum is reached.
func (a *Aggregator) Certificate() *protocol.Certificate {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cert
}

// Weight returns the voting power gathered so far.
func (a *Aggregator) Weight() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.weight
}
