package merkletree

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/bits"

	"github.com/coniks-sys/keywitness/label"
)

// LabelBits is the length of a full (leaf) label in bits.
const LabelBits = label.Size * 8

// A NodeLabel is the bit prefix a node sits at: the first Len bits of
// Val. Bits of Val past Len are always zero. The root is the empty
// prefix; leaves have Len == LabelBits.
type NodeLabel struct {
	Val [label.Size]byte
	Len uint32
}

// RootLabel is the label of the root node.
var RootLabel = NodeLabel{}

// LeafLabel returns the leaf label for a 32-byte label.
func LeafLabel(b []byte) (NodeLabel, error) {
	var l NodeLabel
	if len(b) != label.Size {
		return l, &StructuralError{Op: "label", Reason: fmt.Sprintf("label has %d bytes", len(b))}
	}
	copy(l.Val[:], b)
	l.Len = LabelBits
	return l, nil
}

// Bit returns bit i (0 is the most significant bit of Val[0]).
func (l NodeLabel) Bit(i uint32) byte {
	return (l.Val[i/8] >> (7 - i%8)) & 1
}

// Prefix returns the first n bits of l.
func (l NodeLabel) Prefix(n uint32) NodeLabel {
	if n >= l.Len {
		return l
	}
	var p NodeLabel
	p.Len = n
	full := n / 8
	copy(p.Val[:full], l.Val[:full])
	if rem := n % 8; rem != 0 {
		p.Val[full] = l.Val[full] & (0xff << (8 - rem))
	}
	return p
}

// IsPrefixOf reports whether l is a (not necessarily proper) prefix of o.
func (l NodeLabel) IsPrefixOf(o NodeLabel) bool {
	return l.Len <= o.Len && o.Prefix(l.Len) == l
}

// IsLeaf reports whether l is a full label.
func (l NodeLabel) IsLeaf() bool {
	return l.Len == LabelBits
}

// LongestCommonPrefix returns the longest label that prefixes both a and b.
func LongestCommonPrefix(a, b NodeLabel) NodeLabel {
	n := a.Len
	if b.Len < n {
		n = b.Len
	}
	var i uint32
	for i < n {
		x := a.Val[i/8] ^ b.Val[i/8]
		if x == 0 {
			i += 8 - i%8
			continue
		}
		i = i - i%8 + uint32(bits.LeadingZeros8(x))
		break
	}
	if i > n {
		i = n
	}
	return a.Prefix(i)
}

// Encode returns the fixed-size encoding len || val used in
// storage keys.
func (l NodeLabel) Encode() []byte {
	b := make([]byte, 4+label.Size)
	binary.BigEndian.PutUint32(b, l.Len)
	copy(b[4:], l.Val[:])
	return b
}

// DecodeLabel parses Encode's output and checks the padding bits.
func DecodeLabel(b []byte) (NodeLabel, error) {
	var l NodeLabel
	if len(b) != 4+label.Size {
		return l, &StructuralError{Op: "decode label", Reason: "bad length"}
	}
	l.Len = binary.BigEndian.Uint32(b)
	copy(l.Val[:], b[4:])
	if l.Len > LabelBits || l.Prefix(l.Len) != l {
		return l, &StructuralError{Op: "decode label", Label: l, Reason: "non-canonical label"}
	}
	return l, nil
}

func (l NodeLabel) String() string {
	return fmt.Sprintf("%d:%s", l.Len, hex.EncodeToString(l.Val[:(l.Len+7)/8]))
}

type jsonLabel struct {
	Val []byte
	Len uint32
}

// MarshalJSON encodes the label value as base64.
func (l NodeLabel) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonLabel{Val: l.Val[:], Len: l.Len})
}

// UnmarshalJSON rejects over-long or non-canonical labels.
func (l *NodeLabel) UnmarshalJSON(b []byte) error {
	var j jsonLabel
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	if len(j.Val) != label.Size {
		return &StructuralError{Op: "decode label", Reason: "bad length"}
	}
	var tmp NodeLabel
	copy(tmp.Val[:], j.Val)
	tmp.Len = j.Len
	if tmp.Len > LabelBits || tmp.Prefix(tmp.Len) != tmp {
		return &StructuralError{Op: "decode label", Label: tmp, Reason: "non-canonical label"}
	}
	*l = tmp
	return nil
}

// Direction is the side of a parent a child hangs off.
type Direction uint8

const (
	// DirNone means the child does not extend the parent.
	DirNone Direction = iota
	// DirLeft means the child's next bit after the parent is 0.
	DirLeft
	// DirRight means the child's next bit after the parent is 1.
	DirRight
)

func (d Direction) String() string {
	switch d {
	case DirLeft:
		return "left"
	case DirRight:
		return "right"
	default:
		return "none"
	}
}

// Opposite returns the other side. The opposite of DirNone is DirNone.
func (d Direction) Opposite() Direction {
	switch d {
	case DirLeft:
		return DirRight
	case DirRight:
		return DirLeft
	default:
		return DirNone
	}
}

// DirectionOf returns which child slot of parent child belongs in,
// or DirNone if child is not strictly longer than parent or does not
// extend it.
func DirectionOf(parent, child NodeLabel) Direction {
	if child.Len <= parent.Len || !parent.IsPrefixOf(child) {
		return DirNone
	}
	if child.Bit(parent.Len) == 0 {
		return DirLeft
	}
	return DirRight
}
