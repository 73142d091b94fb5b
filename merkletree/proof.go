package merkletree

import (
	"bytes"

	"github.com/coniks-sys/keywitness/crypto/hasher"
)

// A Sibling is the node next to the proof path at one level: its
// label and digest, or an empty slot of the root.
type Sibling struct {
	Label  NodeLabel
	Digest []byte
	Empty  bool
}

// MembershipProof proves that Label holds Entry as its latest version
// at Epoch. Siblings are ordered from the leaf up to the root.
type MembershipProof struct {
	Epoch     uint64
	Label     NodeLabel
	Entry     ValueEntry
	PrevChain []byte
	Siblings  []Sibling
	PrevRoot  []byte
}

// NonMembershipProof proves that Label has no leaf at Epoch. Terminal
// is the node sitting at Label's position, whose own label diverges
// from Label, or an empty root slot.
type NonMembershipProof struct {
	Epoch    uint64
	Label    NodeLabel
	Terminal Sibling
	Siblings []Sibling
	PrevRoot []byte
}

// ProveMembership returns a proof of label's latest value at epoch.
func (t *Tree) ProveMembership(label []byte, epoch uint64) (*MembershipProof, error) {
	l, err := LeafLabel(label)
	if err != nil {
		return nil, err
	}
	rec, err := t.Epoch(epoch)
	if err != nil {
		return nil, err
	}
	nodes, end, err := t.path(l, epoch)
	if err != nil {
		return nil, err
	}
	if end == nil || !end.leaf || end.label != l {
		return nil, ErrNotFound
	}
	entries, err := t.values(l, end.version)
	if err != nil {
		return nil, err
	}
	if uint64(len(entries)) != end.version {
		return nil, &StructuralError{Op: "prove membership", Label: l, Epoch: epoch, Reason: "missing value entries"}
	}
	prevChain := chainOf(t.hasher, entries[:len(entries)-1])
	siblings, err := t.siblings(nodes, l, epoch)
	if err != nil {
		return nil, err
	}
	return &MembershipProof{
		Epoch:     epoch,
		Label:     l,
		Entry:     *entries[len(entries)-1],
		PrevChain: prevChain,
		Siblings:  siblings,
		PrevRoot:  rec.PrevRoot,
	}, nil
}

// ProveNonMembership returns a proof that label is absent at epoch.
func (t *Tree) ProveNonMembership(label []byte, epoch uint64) (*NonMembershipProof, error) {
	l, err := LeafLabel(label)
	if err != nil {
		return nil, err
	}
	rec, err := t.Epoch(epoch)
	if err != nil {
		return nil, err
	}
	nodes, end, err := t.path(l, epoch)
	if err != nil {
		return nil, err
	}
	p := &NonMembershipProof{Epoch: epoch, Label: l, PrevRoot: rec.PrevRoot}
	switch {
	case end == nil:
		p.Terminal = Sibling{Empty: true}
	case end.label == l:
		return nil, ErrLabelExists
	default:
		p.Terminal = Sibling{Label: end.label, Digest: end.digest}
	}
	if p.Siblings, err = t.siblings(nodes, l, epoch); err != nil {
		return nil, err
	}
	return p, nil
}

// siblings collects, bottom-up, the other child of every node on the
// path toward l.
func (t *Tree) siblings(nodes []*node, l NodeLabel, epoch uint64) ([]Sibling, error) {
	out := make([]Sibling, 0, len(nodes))
	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		dir := DirectionOf(n.label, l)
		other := n.child(dir.Opposite())
		if other == nil {
			if n.label != RootLabel {
				return nil, &StructuralError{Op: "prove", Label: n.label, Epoch: epoch, Reason: "interior node missing a child"}
			}
			out = append(out, Sibling{Empty: true})
			continue
		}
		s, err := loadNode(t.store, *other, epoch)
		if err != nil {
			return nil, err
		}
		out = append(out, Sibling{Label: s.label, Digest: s.digest})
	}
	return out, nil
}

func chainOf(h hasher.TreeHasher, entries []*ValueEntry) []byte {
	var chain []byte
	for _, e := range entries {
		chain = h.HashVersion(chain, e.Version, e.Epoch, h.Digest(e.Value))
	}
	return chain
}

// foldPath hashes from a node at cur with digest d up to the root
// through siblings and returns the tree digest.
func foldPath(h hasher.TreeHasher, cur NodeLabel, d []byte, siblings []Sibling, epoch uint64) ([]byte, error) {
	fail := func(l NodeLabel, reason string) error {
		return &StructuralError{Op: "verify", Label: l, Epoch: epoch, Reason: reason}
	}
	for i, s := range siblings {
		var parent NodeLabel
		var sc childRef
		if s.Empty {
			if i != len(siblings)-1 {
				return nil, fail(cur, "empty sibling below the root")
			}
			parent = RootLabel
			sc = emptyChild(h)
		} else {
			parent = LongestCommonPrefix(cur, s.Label)
			if DirectionOf(parent, s.Label) == DirNone {
				return nil, fail(s.Label, "sibling does not extend its parent")
			}
			sc = childRef{label: s.Label, digest: s.Digest}
		}
		cc := childRef{label: cur, digest: d}
		dir := DirectionOf(parent, cur)
		switch dir {
		case DirLeft:
			d = interiorDigest(h, parent, cc, sc)
		case DirRight:
			d = interiorDigest(h, parent, sc, cc)
		default:
			return nil, fail(cur, "node does not extend parent "+parent.String())
		}
		if parent == RootLabel && i != len(siblings)-1 {
			return nil, fail(cur, "path continues past the root")
		}
		cur = parent
	}
	if cur != RootLabel {
		return nil, fail(cur, "path does not reach the root")
	}
	return d, nil
}

// Verify checks the proof against root.
func (p *MembershipProof) Verify(h hasher.TreeHasher, root []byte) error {
	if !p.Label.IsLeaf() {
		return &StructuralError{Op: "verify membership", Label: p.Label, Epoch: p.Epoch, Reason: "not a leaf label"}
	}
	if p.Entry.Version == 0 || p.Entry.Epoch > p.Epoch {
		return &StructuralError{Op: "verify membership", Label: p.Label, Epoch: p.Epoch, Reason: "bad value entry"}
	}
	if (p.Entry.Version == 1) != (len(p.PrevChain) == 0) {
		return &StructuralError{Op: "verify membership", Label: p.Label, Epoch: p.Epoch, Reason: "chain does not match version"}
	}
	chain := h.HashVersion(p.PrevChain, p.Entry.Version, p.Entry.Epoch, h.Digest(p.Entry.Value))
	d, err := foldPath(h, p.Label, leafDigest(h, p.Label, chain), p.Siblings, p.Epoch)
	if err != nil {
		return err
	}
	if !bytes.Equal(h.HashRoot(p.Epoch, p.PrevRoot, d), root) {
		return ErrInvalidProof
	}
	return nil
}

// Verify checks the proof against root.
func (p *NonMembershipProof) Verify(h hasher.TreeHasher, root []byte) error {
	fail := func(reason string) error {
		return &StructuralError{Op: "verify non-membership", Label: p.Label, Epoch: p.Epoch, Reason: reason}
	}
	if !p.Label.IsLeaf() {
		return fail("not a leaf label")
	}
	if len(p.Siblings) == 0 {
		return fail("no path")
	}
	var d []byte
	var err error
	if p.Terminal.Empty {
		// the target's slot of the root is empty
		if len(p.Siblings) != 1 {
			return fail("empty slot below the root")
		}
		s := p.Siblings[0]
		sc := emptyChild(h)
		if !s.Empty {
			if DirectionOf(RootLabel, s.Label) != DirectionOf(RootLabel, p.Label).Opposite() {
				return fail("sibling on the target's side of the root")
			}
			sc = childRef{label: s.Label, digest: s.Digest}
		}
		switch DirectionOf(RootLabel, p.Label) {
		case DirLeft:
			d = interiorDigest(h, RootLabel, emptyChild(h), sc)
		default:
			d = interiorDigest(h, RootLabel, sc, emptyChild(h))
		}
	} else {
		term := p.Terminal.Label
		if term.IsPrefixOf(p.Label) {
			return fail("terminal node is on the target's path")
		}
		var parent NodeLabel
		if p.Siblings[0].Empty {
			parent = RootLabel
		} else {
			parent = LongestCommonPrefix(term, p.Siblings[0].Label)
		}
		if !parent.IsPrefixOf(p.Label) || DirectionOf(parent, p.Label) != DirectionOf(parent, term) {
			return fail("terminal node is not at the target's position")
		}
		if d, err = foldPath(h, term, p.Terminal.Digest, p.Siblings, p.Epoch); err != nil {
			return err
		}
	}
	if !bytes.Equal(h.HashRoot(p.Epoch, p.PrevRoot, d), root) {
		return ErrInvalidProof
	}
	return nil
}

// KeyHistoryProof proves the complete version history of a label up
// to an epoch.
type KeyHistoryProof struct {
	Entries    []ValueEntry
	Membership *MembershipProof
}

// ProveKeyHistory returns every version of label up to epoch together
// with a membership proof of the latest one.
func (t *Tree) ProveKeyHistory(label []byte, epoch uint64) (*KeyHistoryProof, error) {
	mp, err := t.ProveMembership(label, epoch)
	if err != nil {
		return nil, err
	}
	entries, err := t.values(mp.Label, mp.Entry.Version)
	if err != nil {
		return nil, err
	}
	p := &KeyHistoryProof{Membership: mp}
	for _, e := range entries {
		p.Entries = append(p.Entries, *e)
	}
	return p, nil
}

// Verify checks that the entries are exactly the label's versions
// committed to by the membership proof.
func (p *KeyHistoryProof) Verify(h hasher.TreeHasher, root []byte) error {
	if p.Membership == nil || len(p.Entries) == 0 {
		return &StructuralError{Op: "verify key history", Reason: "empty proof"}
	}
	if err := p.Membership.Verify(h, root); err != nil {
		return err
	}
	var chain []byte
	var prevEpoch uint64
	for i, e := range p.Entries {
		if e.Version != uint64(i+1) || e.Epoch < prevEpoch {
			return &StructuralError{Op: "verify key history", Label: p.Membership.Label,
				Reason: "versions out of order"}
		}
		prevEpoch = e.Epoch
		if i == len(p.Entries)-1 {
			break
		}
		chain = h.HashVersion(chain, e.Version, e.Epoch, h.Digest(e.Value))
	}
	last := p.Entries[len(p.Entries)-1]
	m := p.Membership.Entry
	if last.Version != m.Version || last.Epoch != m.Epoch || !bytes.Equal(last.Value, m.Value) ||
		!bytes.Equal(chain, p.Membership.PrevChain) {
		return ErrInvalidProof
	}
	return nil
}
