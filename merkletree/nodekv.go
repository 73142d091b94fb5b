package merkletree

import (
	"encoding/binary"

	"github.com/coniks-sys/keywitness/storage"
	"github.com/coniks-sys/keywitness/utils/codec"
)

// Storage layout:
//
//	'N' || len || prefix || epoch  -> node record
//	'V' || label || version        -> value entry
//	'E' || epoch                   -> epoch record
//	'M'                            -> latest epoch
const (
	nodePrefix   = 'N'
	valuePrefix  = 'V'
	epochPrefix  = 'E'
	latestKeyTag = 'M'
)

func uint64Bytes(x uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, x)
	return b
}

func nodeKeyPrefix(l NodeLabel) []byte {
	return append([]byte{nodePrefix}, l.Encode()...)
}

func nodeKey(l NodeLabel, epoch uint64) []byte {
	return append(nodeKeyPrefix(l), uint64Bytes(epoch)...)
}

func valueKey(l NodeLabel, version uint64) []byte {
	b := append([]byte{valuePrefix}, l.Val[:]...)
	return append(b, uint64Bytes(version)...)
}

func epochKey(epoch uint64) []byte {
	return append([]byte{epochPrefix}, uint64Bytes(epoch)...)
}

var latestKey = []byte{latestKeyTag}

// loadNode returns the latest version of l with epoch <= epoch.
func loadNode(s *storage.Store, l NodeLabel, epoch uint64) (*node, error) {
	_, v, err := s.Latest(nodeKey(l, 0), nodeKey(l, epoch+1))
	if err != nil {
		return nil, err
	}
	n, err := decodeNode(l, v)
	if err != nil {
		return nil, err
	}
	if n.epoch > epoch {
		return nil, &StructuralError{Op: "load node", Label: l, Epoch: epoch,
			Reason: "record from a later epoch"}
	}
	return n, nil
}

// ValueEntry is one version of a label's value.
type ValueEntry struct {
	Version uint64
	Epoch   uint64
	Value   []byte
}

func (e *ValueEntry) encode() []byte {
	var b []byte
	b = codec.WriteInt(b, e.Version)
	b = codec.WriteInt(b, e.Epoch)
	b = codec.WriteBytes(b, e.Value)
	return b
}

func decodeValueEntry(b []byte) (*ValueEntry, error) {
	r := codec.NewReader(b)
	e := &ValueEntry{
		Version: r.Int(),
		Epoch:   r.Int(),
		Value:   r.Bytes(),
	}
	if err := r.Done(); err != nil {
		return nil, &StructuralError{Op: "decode value", Reason: err.Error()}
	}
	return e, nil
}

func loadValue(s *storage.Store, l NodeLabel, version uint64) (*ValueEntry, error) {
	v, err := s.Get(valueKey(l, version))
	if err != nil {
		return nil, err
	}
	e, err := decodeValueEntry(v)
	if err != nil {
		return nil, err
	}
	if e.Version != version {
		return nil, &StructuralError{Op: "load value", Label: l, Reason: "version mismatch"}
	}
	return e, nil
}

// EpochRecord summarizes a finalized epoch.
type EpochRecord struct {
	Epoch      uint64
	Root       []byte
	PrevRoot   []byte
	TreeDigest []byte
	// Touched lists the leaf labels updated in this epoch, in the
	// order they were applied.
	Touched []NodeLabel
}

func (r *EpochRecord) encode() []byte {
	var b []byte
	b = codec.WriteInt(b, r.Epoch)
	b = codec.WriteBytes(b, r.Root)
	b = codec.WriteBytes(b, r.PrevRoot)
	b = codec.WriteBytes(b, r.TreeDigest)
	b = codec.WriteSlice(b, r.Touched, func(b []byte, l NodeLabel) []byte {
		return codec.WriteFixed(b, l.Encode())
	})
	return b
}

func decodeEpochRecord(b []byte) (*EpochRecord, error) {
	r := codec.NewReader(b)
	rec := &EpochRecord{
		Epoch:      r.Int(),
		Root:       r.Bytes(),
		PrevRoot:   r.Bytes(),
		TreeDigest: r.Bytes(),
	}
	n := r.Len()
	for i := 0; i < n; i++ {
		l, err := DecodeLabel(r.Fixed(uint64(len(RootLabel.Encode()))))
		if err != nil {
			return nil, err
		}
		rec.Touched = append(rec.Touched, l)
	}
	if err := r.Done(); err != nil {
		return nil, &StructuralError{Op: "decode epoch", Epoch: rec.Epoch, Reason: err.Error()}
	}
	return rec, nil
}

func loadEpoch(s *storage.Store, epoch uint64) (*EpochRecord, error) {
	v, err := s.Get(epochKey(epoch))
	if err == storage.ErrNotFound {
		return nil, ErrUnknownEpoch
	}
	if err != nil {
		return nil, err
	}
	rec, err := decodeEpochRecord(v)
	if err != nil {
		return nil, err
	}
	if rec.Epoch != epoch {
		return nil, &StructuralError{Op: "load epoch", Epoch: epoch, Reason: "epoch mismatch"}
	}
	return rec, nil
}
