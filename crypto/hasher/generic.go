package hasher

import "encoding/binary"

const (
	emptyIdentifier    = 'E'
	leafIdentifier     = 'L'
	interiorIdentifier = 'I'
	versionIdentifier  = 'V'
	rootIdentifier     = 'R'
)

// DigestFunc hashes the concatenation of all passed byte slices.
type DigestFunc func(ms ...[]byte) []byte

type generic struct {
	id     string
	size   int
	digest DigestFunc
}

// New builds a TreeHasher from a plain digest function. The tree
// encodings are shared by all hash functions; only the primitive
// differs.
func New(id string, size int, digest DigestFunc) TreeHasher {
	return &generic{id: id, size: size, digest: digest}
}

func (g *generic) ID() string { return g.id }

func (g *generic) Size() int { return g.size }

func (g *generic) Digest(ms ...[]byte) []byte { return g.digest(ms...) }

func (g *generic) HashInterior(prefix []byte, length uint32, leftLabel, left, rightLabel, right []byte) []byte {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], length)
	return g.digest([]byte{interiorIdentifier}, l[:], prefix, leftLabel, left, rightLabel, right)
}

func (g *generic) HashLeaf(label, chain []byte) []byte {
	return g.digest([]byte{leafIdentifier}, label, chain)
}

func (g *generic) HashEmpty() []byte {
	return g.digest([]byte{emptyIdentifier})
}

func (g *generic) HashVersion(prevChain []byte, version, epoch uint64, valueHash []byte) []byte {
	var v, e [8]byte
	binary.BigEndian.PutUint64(v[:], version)
	binary.BigEndian.PutUint64(e[:], epoch)
	return g.digest([]byte{versionIdentifier}, prevChain, v[:], e[:], valueHash)
}

func (g *generic) HashRoot(epoch uint64, prevRoot, treeDigest []byte) []byte {
	var e [8]byte
	binary.BigEndian.PutUint64(e[:], epoch)
	return g.digest([]byte{rootIdentifier}, e[:], prevRoot, treeDigest)
}
