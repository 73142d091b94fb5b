package merkletree

import (
	"bytes"
	"fmt"

	"github.com/coniks-sys/keywitness/crypto/hasher"
)

// A Subtree is a node of the previous epoch's tree that no update
// of the step touches, given by its label and digest.
type Subtree struct {
	Label  NodeLabel
	Digest []byte
}

// EntryDigest is a new version of a label, hiding the value.
type EntryDigest struct {
	Version   uint64
	ValueHash []byte
}

// LeafDelta is one touched label: the head of its version chain in
// the previous epoch (empty for a new label) and the versions added.
type LeafDelta struct {
	Label      NodeLabel
	OldChain   []byte
	OldVersion uint64
	Entries    []EntryDigest
}

// A HistoryStep proves that root(Epoch) extends root(Epoch-1) by
// exactly the listed leaf updates. Unchanged and the old leaves
// together form a cut of the previous tree; BaseParentRoot is
// root(Epoch-2), which authenticates that cut against root(Epoch-1).
type HistoryStep struct {
	Epoch          uint64
	BaseParentRoot []byte
	Unchanged      []Subtree
	Leaves         []LeafDelta
}

// HistoryProof chains one step per epoch in (From, To].
type HistoryProof struct {
	From  uint64
	To    uint64
	Steps []HistoryStep
}

// ProveHistory proves that root(to) extends root(from).
// It requires from < to <= latest.
func (t *Tree) ProveHistory(from, to uint64) (*HistoryProof, error) {
	if from >= to || to > t.LatestEpoch() {
		return nil, ErrInvalidRange
	}
	p := &HistoryProof{From: from, To: to}
	for e := from + 1; e <= to; e++ {
		s, err := t.proveStep(e)
		if err != nil {
			return nil, err
		}
		p.Steps = append(p.Steps, *s)
	}
	return p, nil
}

func (t *Tree) proveStep(epoch uint64) (*HistoryStep, error) {
	rec, err := loadEpoch(t.store, epoch)
	if err != nil {
		return nil, err
	}
	prev, err := loadEpoch(t.store, epoch-1)
	if err != nil {
		return nil, err
	}
	s := &HistoryStep{Epoch: epoch, BaseParentRoot: prev.PrevRoot}
	touched := make(map[NodeLabel]bool, len(rec.Touched))
	for _, l := range rec.Touched {
		touched[l] = true
	}
	old := make(map[NodeLabel]*node)

	root, err := loadNode(t.store, RootLabel, epoch-1)
	if err != nil {
		return nil, err
	}
	var walk func(n *node) error
	walk = func(n *node) error {
		for _, d := range []Direction{DirLeft, DirRight} {
			c := n.child(d)
			if c == nil {
				continue
			}
			child, err := loadNode(t.store, *c, epoch-1)
			if err != nil {
				return err
			}
			switch {
			case child.leaf && touched[child.label]:
				old[child.label] = child
			case !child.leaf && prefixesAny(child.label, rec.Touched):
				if err := walk(child); err != nil {
					return err
				}
			default:
				s.Unchanged = append(s.Unchanged, Subtree{Label: child.label, Digest: child.digest})
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}

	for _, l := range rec.Touched {
		leaf, err := t.findLeaf(l, epoch)
		if err != nil {
			return nil, err
		}
		entries, err := t.values(l, leaf.version)
		if err != nil {
			return nil, err
		}
		delta := LeafDelta{Label: l}
		if o, ok := old[l]; ok {
			delta.OldChain = o.chain
			delta.OldVersion = o.version
		}
		for _, e := range entries[delta.OldVersion:] {
			delta.Entries = append(delta.Entries, EntryDigest{Version: e.Version, ValueHash: t.hasher.Digest(e.Value)})
		}
		s.Leaves = append(s.Leaves, delta)
	}
	return s, nil
}

func prefixesAny(p NodeLabel, ls []NodeLabel) bool {
	for _, l := range ls {
		if p.IsPrefixOf(l) {
			return true
		}
	}
	return false
}

// Apply verifies the step against the trusted root of the previous
// epoch and returns the root of s.Epoch.
func (s *HistoryStep) Apply(h hasher.TreeHasher, prevRoot []byte) ([]byte, error) {
	fail := func(l NodeLabel, reason string) error {
		return &StructuralError{Op: "verify history", Label: l, Epoch: s.Epoch, Reason: reason}
	}
	if s.Epoch == 0 {
		return nil, fail(RootLabel, "genesis has no predecessor")
	}
	base := make([]Subtree, 0, len(s.Unchanged)+len(s.Leaves))
	next := make([]Subtree, 0, len(s.Unchanged)+len(s.Leaves))
	for _, u := range s.Unchanged {
		if DirectionOf(RootLabel, u.Label) == DirNone {
			return nil, fail(u.Label, "subtree at the root")
		}
		for _, d := range s.Leaves {
			if u.Label.IsPrefixOf(d.Label) {
				return nil, fail(u.Label, "unchanged subtree contains updated label "+d.Label.String())
			}
		}
		base = append(base, u)
		next = append(next, u)
	}
	seen := make(map[NodeLabel]bool, len(s.Leaves))
	for _, d := range s.Leaves {
		if !d.Label.IsLeaf() {
			return nil, fail(d.Label, "not a leaf label")
		}
		if seen[d.Label] {
			return nil, fail(d.Label, "label updated twice")
		}
		seen[d.Label] = true
		if (d.OldVersion == 0) != (len(d.OldChain) == 0) {
			return nil, fail(d.Label, "old chain does not match old version")
		}
		if len(d.Entries) == 0 {
			return nil, fail(d.Label, "no new versions")
		}
		if d.OldVersion > 0 {
			base = append(base, Subtree{Label: d.Label, Digest: leafDigest(h, d.Label, d.OldChain)})
		}
		chain := d.OldChain
		for i, e := range d.Entries {
			if e.Version != d.OldVersion+uint64(i)+1 {
				return nil, fail(d.Label, fmt.Sprintf("version %d out of sequence", e.Version))
			}
			chain = h.HashVersion(chain, e.Version, s.Epoch, e.ValueHash)
		}
		next = append(next, Subtree{Label: d.Label, Digest: leafDigest(h, d.Label, chain)})
	}

	d0, err := BuildDigest(h, base)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(h.HashRoot(s.Epoch-1, s.BaseParentRoot, d0), prevRoot) {
		return nil, ErrInvalidProof
	}
	d1, err := BuildDigest(h, next)
	if err != nil {
		return nil, err
	}
	return h.HashRoot(s.Epoch, prevRoot, d1), nil
}

// Verify checks that toRoot extends fromRoot through every step.
func (p *HistoryProof) Verify(h hasher.TreeHasher, fromRoot, toRoot []byte) error {
	if p.From >= p.To || uint64(len(p.Steps)) != p.To-p.From {
		return &StructuralError{Op: "verify history", Epoch: p.To, Reason: "steps do not cover the range"}
	}
	trusted := fromRoot
	var parent []byte
	for i := range p.Steps {
		s := &p.Steps[i]
		if s.Epoch != p.From+uint64(i)+1 {
			return &StructuralError{Op: "verify history", Epoch: s.Epoch, Reason: "step out of order"}
		}
		if i > 0 && !bytes.Equal(s.BaseParentRoot, parent) {
			return &StructuralError{Op: "verify history", Epoch: s.Epoch, Reason: "step does not chain"}
		}
		r, err := s.Apply(h, trusted)
		if err != nil {
			return err
		}
		parent, trusted = trusted, r
	}
	if !bytes.Equal(trusted, toRoot) {
		return ErrInvalidProof
	}
	return nil
}

// BuildDigest computes the tree digest of the compressed prefix tree
// whose frontier is items. No item may be the root or prefix another.
func BuildDigest(h hasher.TreeHasher, items []Subtree) ([]byte, error) {
	labels := make([]NodeLabel, len(items))
	byLabel := make(map[NodeLabel][]byte, len(items))
	for i, it := range items {
		if DirectionOf(RootLabel, it.Label) == DirNone {
			return nil, &StructuralError{Op: "build", Label: it.Label, Reason: "item at the root"}
		}
		labels[i] = it.Label
		byLabel[it.Label] = it.Digest
	}
	labels = sortedLabels(labels)
	for i := 1; i < len(labels); i++ {
		if labels[i-1].IsPrefixOf(labels[i]) {
			return nil, &StructuralError{Op: "build", Label: labels[i-1],
				Reason: "item prefixes " + labels[i].String()}
		}
	}

	split := func(ls []NodeLabel, bit uint32) int {
		for i, l := range ls {
			if l.Bit(bit) == 1 {
				return i
			}
		}
		return len(ls)
	}
	var sub func(ls []NodeLabel) childRef
	sub = func(ls []NodeLabel) childRef {
		if len(ls) == 1 {
			return childRef{label: ls[0], digest: byLabel[ls[0]]}
		}
		p := LongestCommonPrefix(ls[0], ls[len(ls)-1])
		i := split(ls, p.Len)
		return childRef{label: p, digest: interiorDigest(h, p, sub(ls[:i]), sub(ls[i:]))}
	}

	i := split(labels, 0)
	left, right := emptyChild(h), emptyChild(h)
	if i > 0 {
		left = sub(labels[:i])
	}
	if i < len(labels) {
		right = sub(labels[i:])
	}
	return interiorDigest(h, RootLabel, left, right), nil
}
