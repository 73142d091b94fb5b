package merkletree

import (
	"github.com/coniks-sys/keywitness/crypto/hasher"
	"github.com/coniks-sys/keywitness/utils/codec"
)

// node is one version of a tree position. The root and interior
// nodes carry child labels; leaves carry the head of the label's
// version chain. A nil digest marks a node whose digest must be
// recomputed before commit.
type node struct {
	label NodeLabel
	epoch uint64

	leaf bool

	// interior
	left, right *NodeLabel

	// leaf
	chain   []byte
	version uint64

	digest []byte
}

func newLeaf(l NodeLabel, epoch uint64) *node {
	return &node{label: l, epoch: epoch, leaf: true}
}

func newInterior(l NodeLabel, epoch uint64) *node {
	return &node{label: l, epoch: epoch}
}

func (n *node) child(d Direction) *NodeLabel {
	switch d {
	case DirLeft:
		return n.left
	case DirRight:
		return n.right
	}
	return nil
}

func (n *node) setChild(d Direction, l NodeLabel) {
	switch d {
	case DirLeft:
		n.left = &l
	case DirRight:
		n.right = &l
	}
}

func (n *node) clone(epoch uint64) *node {
	c := *n
	c.epoch = epoch
	c.digest = nil
	if n.left != nil {
		l := *n.left
		c.left = &l
	}
	if n.right != nil {
		r := *n.right
		c.right = &r
	}
	return &c
}

// leafDigest is the digest of a leaf with the given chain head.
func leafDigest(h hasher.TreeHasher, l NodeLabel, chain []byte) []byte {
	return h.HashLeaf(l.Val[:], chain)
}

// childRef is a child as its parent's digest commits to it: the
// child's label and digest.
type childRef struct {
	label  NodeLabel
	digest []byte
}

// emptyChild stands for a missing child of the root. Its label is the
// root label, which no real child has.
func emptyChild(h hasher.TreeHasher) childRef {
	return childRef{label: RootLabel, digest: h.HashEmpty()}
}

// interiorDigest is the digest of an interior node or the root.
func interiorDigest(h hasher.TreeHasher, l NodeLabel, left, right childRef) []byte {
	return h.HashInterior(l.Val[:], l.Len, left.label.Encode(), left.digest,
		right.label.Encode(), right.digest)
}

func (n *node) encode() []byte {
	var b []byte
	b = codec.WriteFixed(b, n.label.Encode())
	b = codec.WriteInt(b, n.epoch)
	b = codec.WriteBool(b, n.leaf)
	if n.leaf {
		b = codec.WriteBytes(b, n.chain)
		b = codec.WriteInt(b, n.version)
	} else {
		b = writeChild(b, n.left)
		b = writeChild(b, n.right)
	}
	b = codec.WriteBytes(b, n.digest)
	return b
}

func writeChild(b []byte, c *NodeLabel) []byte {
	b = codec.WriteBool(b, c != nil)
	if c != nil {
		b = codec.WriteFixed(b, c.Encode())
	}
	return b
}

func readChild(r *codec.Reader) (*NodeLabel, error) {
	if !r.Bool() {
		return nil, nil
	}
	l, err := DecodeLabel(r.Fixed(uint64(len(RootLabel.Encode()))))
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// decodeNode parses a node record and checks that it is the record
// of want and that its children extend it on the correct sides.
func decodeNode(want NodeLabel, b []byte) (*node, error) {
	r := codec.NewReader(b)
	l, err := DecodeLabel(r.Fixed(uint64(len(RootLabel.Encode()))))
	if err != nil {
		return nil, err
	}
	n := &node{label: l}
	n.epoch = r.Int()
	n.leaf = r.Bool()
	if n.leaf {
		n.chain = r.Bytes()
		n.version = r.Int()
	} else {
		if n.left, err = readChild(r); err != nil {
			return nil, err
		}
		if n.right, err = readChild(r); err != nil {
			return nil, err
		}
	}
	n.digest = r.Bytes()
	if err := r.Done(); err != nil {
		return nil, &StructuralError{Op: "decode node", Label: want, Reason: err.Error()}
	}
	if n.label != want {
		return nil, &StructuralError{Op: "decode node", Label: want, Epoch: n.epoch,
			Reason: "record stored under another label"}
	}
	if err := n.checkShape(); err != nil {
		return nil, err
	}
	return n, nil
}

// checkShape enforces the trie invariants on a single node.
func (n *node) checkShape() error {
	fail := func(reason string) error {
		return &StructuralError{Op: "node", Label: n.label, Epoch: n.epoch, Reason: reason}
	}
	if n.leaf {
		if n.left != nil || n.right != nil {
			return fail("leaf with children")
		}
		if n.version == 0 {
			return fail("leaf without versions")
		}
		return nil
	}
	for _, d := range []Direction{DirLeft, DirRight} {
		c := n.child(d)
		if c == nil {
			if n.label != RootLabel {
				return fail("interior node missing a child")
			}
			continue
		}
		if DirectionOf(n.label, *c) != d {
			return fail("child " + c.String() + " does not extend parent on the " + d.String())
		}
	}
	return nil
}
