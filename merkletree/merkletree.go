package merkletree

import (
	"bytes"
	"sort"
	"sync"

	"github.com/coniks-sys/keywitness/crypto/hasher"
	"github.com/coniks-sys/keywitness/storage"
	"github.com/coniks-sys/keywitness/utils/codec"
)

// Tree is the authenticated history tree: a compressed binary
// prefix tree over 256-bit labels whose every epoch is persisted as
// an immutable set of node versions keyed by (prefix, epoch).
//
// Updates are staged with InsertOrUpdate and applied all at once by
// FinalizeEpoch. Reads of finalized epochs go straight to storage and
// never wait for staging or finalization.
type Tree struct {
	store  *storage.Store
	hasher hasher.TreeHasher

	// mu serializes staging and finalization.
	mu      sync.Mutex
	pending map[NodeLabel][][]byte
	order   []NodeLabel

	latestMu sync.RWMutex
	latest   *EpochRecord
}

// New opens the tree persisted in store, creating the empty
// genesis epoch 0 when the store is empty.
func New(store *storage.Store, h hasher.TreeHasher) (*Tree, error) {
	t := &Tree{
		store:   store,
		hasher:  h,
		pending: make(map[NodeLabel][][]byte),
	}
	v, err := store.Get(latestKey)
	switch {
	case err == storage.ErrNotFound:
		if err := t.genesis(); err != nil {
			return nil, err
		}
		return t, nil
	case err != nil:
		return nil, err
	}
	r := codec.NewReader(v)
	epoch := r.Int()
	if err := r.Done(); err != nil {
		return nil, &StructuralError{Op: "open", Reason: "malformed latest epoch"}
	}
	rec, err := loadEpoch(store, epoch)
	if err != nil {
		return nil, err
	}
	t.latest = rec
	return t, nil
}

// GenesisRoot returns the root of the empty epoch 0 under h, which
// every party knows without trusting the directory.
func GenesisRoot(h hasher.TreeHasher) []byte {
	return genesisRecord(h).Root
}

func genesisRecord(h hasher.TreeHasher) *EpochRecord {
	empty := emptyChild(h)
	rec := &EpochRecord{
		Epoch:      0,
		PrevRoot:   make([]byte, h.Size()),
		TreeDigest: interiorDigest(h, RootLabel, empty, empty),
	}
	rec.Root = h.HashRoot(0, rec.PrevRoot, rec.TreeDigest)
	return rec
}

func (t *Tree) genesis() error {
	rec := genesisRecord(t.hasher)
	root := newInterior(RootLabel, 0)
	root.digest = rec.TreeDigest

	txn := t.store.Begin()
	txn.Put(nodeKey(RootLabel, 0), root.encode())
	txn.Put(epochKey(0), rec.encode())
	txn.Put(latestKey, codec.WriteInt(nil, 0))
	if err := txn.Commit(); err != nil {
		return err
	}
	t.latest = rec
	return nil
}

// Hasher returns the tree's hash functions.
func (t *Tree) Hasher() hasher.TreeHasher {
	return t.hasher
}

// LatestEpoch returns the most recently finalized epoch.
func (t *Tree) LatestEpoch() uint64 {
	t.latestMu.RLock()
	defer t.latestMu.RUnlock()
	return t.latest.Epoch
}

// Epoch returns the record of a finalized epoch.
func (t *Tree) Epoch(epoch uint64) (*EpochRecord, error) {
	if err := t.checkEpoch(epoch); err != nil {
		return nil, err
	}
	return loadEpoch(t.store, epoch)
}

// Root returns the root digest of a finalized epoch.
func (t *Tree) Root(epoch uint64) ([]byte, error) {
	rec, err := t.Epoch(epoch)
	if err != nil {
		return nil, err
	}
	return rec.Root, nil
}

func (t *Tree) checkEpoch(epoch uint64) error {
	if epoch > t.LatestEpoch() {
		return ErrUnknownEpoch
	}
	return nil
}

// InsertOrUpdate stages value for the 32-byte label. Several values
// staged for one label before FinalizeEpoch become consecutive
// versions in staging order.
func (t *Tree) InsertOrUpdate(label, value []byte) error {
	l, err := LeafLabel(label)
	if err != nil {
		return err
	}
	if len(value) == 0 {
		return ErrEmptyValue
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stage(l, value)
	return nil
}

func (t *Tree) stage(l NodeLabel, value []byte) {
	if _, ok := t.pending[l]; !ok {
		t.order = append(t.order, l)
	}
	t.pending[l] = append(t.pending[l], append([]byte{}, value...))
}

// PendingCount returns the number of labels staged for the next epoch.
func (t *Tree) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

// DiscardPending drops every staged update.
func (t *Tree) DiscardPending() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = make(map[NodeLabel][][]byte)
	t.order = nil
}

// FinalizeEpoch applies all staged updates as the next epoch and
// returns its number and root. Either the whole epoch is committed
// or nothing is: on error the previous epoch stays the latest and
// the staged updates are kept.
func (t *Tree) FinalizeEpoch() (uint64, []byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.latestRecord()
	b := &builder{
		t:     t,
		epoch: prev.Epoch + 1,
		dirty: make(map[NodeLabel]*node),
	}
	txn := t.store.Begin()
	for _, l := range t.order {
		for _, value := range t.pending[l] {
			if err := b.insert(l, value, txn); err != nil {
				txn.Rollback()
				return 0, nil, err
			}
		}
	}
	digest, err := b.digest(RootLabel)
	if err != nil {
		txn.Rollback()
		return 0, nil, err
	}

	rec := &EpochRecord{
		Epoch:      b.epoch,
		PrevRoot:   prev.Root,
		TreeDigest: digest,
		Touched:    append([]NodeLabel{}, t.order...),
	}
	rec.Root = t.hasher.HashRoot(rec.Epoch, rec.PrevRoot, rec.TreeDigest)

	for l, n := range b.dirty {
		txn.Put(nodeKey(l, b.epoch), n.encode())
	}
	txn.Put(epochKey(rec.Epoch), rec.encode())
	txn.Put(latestKey, codec.WriteInt(nil, rec.Epoch))
	if err := txn.Commit(); err != nil {
		return 0, nil, err
	}

	t.latestMu.Lock()
	t.latest = rec
	t.latestMu.Unlock()
	t.pending = make(map[NodeLabel][][]byte)
	t.order = nil
	return rec.Epoch, rec.Root, nil
}

func (t *Tree) latestRecord() *EpochRecord {
	t.latestMu.RLock()
	defer t.latestMu.RUnlock()
	return t.latest
}

// builder holds the copy-on-write working set of one epoch.
type builder struct {
	t     *Tree
	epoch uint64
	dirty map[NodeLabel]*node
}

// get returns the working copy of l, loading and cloning the
// previous epoch's version on first touch.
func (b *builder) get(l NodeLabel) (*node, error) {
	if n, ok := b.dirty[l]; ok {
		return n, nil
	}
	n, err := loadNode(b.t.store, l, b.epoch-1)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, &StructuralError{Op: "finalize", Label: l, Epoch: b.epoch,
				Reason: "child record missing"}
		}
		return nil, err
	}
	c := n.clone(b.epoch)
	b.dirty[l] = c
	return c, nil
}

// peek returns the current version of l without marking it dirty.
func (b *builder) peek(l NodeLabel) (*node, error) {
	if n, ok := b.dirty[l]; ok {
		return n, nil
	}
	return loadNode(b.t.store, l, b.epoch-1)
}

func (b *builder) structural(l NodeLabel, reason string) error {
	return &StructuralError{Op: "finalize", Label: l, Epoch: b.epoch, Reason: reason}
}

// insert applies one value to the leaf at target.
func (b *builder) insert(target NodeLabel, value []byte, txn *storage.Txn) error {
	cur, err := b.get(RootLabel)
	if err != nil {
		return err
	}
	for {
		dir := DirectionOf(cur.label, target)
		if dir == DirNone {
			return b.structural(target, "label does not extend "+cur.label.String())
		}
		childLabel := cur.child(dir)
		if childLabel == nil {
			if cur.label != RootLabel {
				return b.structural(cur.label, "interior node missing a child")
			}
			return b.newLeaf(cur, dir, target, value, txn)
		}
		child, err := b.peek(*childLabel)
		if err != nil {
			return err
		}
		if child.leaf && child.label == target {
			leaf, err := b.get(target)
			if err != nil {
				return err
			}
			return b.appendVersion(leaf, value, txn)
		}
		if child.label.IsPrefixOf(target) && !child.leaf {
			if cur, err = b.get(child.label); err != nil {
				return err
			}
			continue
		}

		// split: a new interior node at the common prefix takes the
		// existing child and the new leaf.
		split := LongestCommonPrefix(child.label, target)
		oldDir := DirectionOf(split, child.label)
		newDir := DirectionOf(split, target)
		if oldDir == DirNone || newDir == DirNone || oldDir == newDir {
			return b.structural(target, "cannot split "+child.label.String()+" at "+split.String())
		}
		if DirectionOf(cur.label, split) != dir {
			return b.structural(split, "split point does not extend "+cur.label.String())
		}
		in := newInterior(split, b.epoch)
		in.setChild(oldDir, child.label)
		b.dirty[split] = in
		cur.setChild(dir, split)
		return b.newLeaf(in, newDir, target, value, txn)
	}
}

func (b *builder) newLeaf(parent *node, dir Direction, target NodeLabel, value []byte, txn *storage.Txn) error {
	if _, ok := b.dirty[target]; ok {
		return b.structural(target, "leaf created twice")
	}
	leaf := newLeaf(target, b.epoch)
	b.dirty[target] = leaf
	parent.setChild(dir, target)
	return b.appendVersion(leaf, value, txn)
}

func (b *builder) appendVersion(leaf *node, value []byte, txn *storage.Txn) error {
	if !leaf.leaf {
		return b.structural(leaf.label, "value for an interior node")
	}
	h := b.t.hasher
	leaf.version++
	leaf.chain = h.HashVersion(leaf.chain, leaf.version, b.epoch, h.Digest(value))
	leaf.digest = nil
	e := &ValueEntry{Version: leaf.version, Epoch: b.epoch, Value: value}
	txn.Put(valueKey(leaf.label, leaf.version), e.encode())
	return nil
}

// digest computes the digest of l in the new epoch, filling in the
// digests of dirty nodes bottom-up.
func (b *builder) digest(l NodeLabel) ([]byte, error) {
	n, ok := b.dirty[l]
	if !ok {
		stored, err := loadNode(b.t.store, l, b.epoch-1)
		if err != nil {
			return nil, err
		}
		return stored.digest, nil
	}
	if n.digest != nil {
		return n.digest, nil
	}
	if err := n.checkShape(); err != nil {
		return nil, err
	}
	h := b.t.hasher
	if n.leaf {
		n.digest = leafDigest(h, n.label, n.chain)
		return n.digest, nil
	}
	var cs [2]childRef
	for i, d := range []Direction{DirLeft, DirRight} {
		c := n.child(d)
		if c == nil {
			cs[i] = emptyChild(h)
			continue
		}
		cd, err := b.digest(*c)
		if err != nil {
			return nil, err
		}
		cs[i] = childRef{label: *c, digest: cd}
	}
	n.digest = interiorDigest(h, n.label, cs[0], cs[1])
	return n.digest, nil
}

// Lookup returns the latest value of label at epoch.
func (t *Tree) Lookup(label []byte, epoch uint64) (*ValueEntry, error) {
	l, err := LeafLabel(label)
	if err != nil {
		return nil, err
	}
	if err := t.checkEpoch(epoch); err != nil {
		return nil, err
	}
	leaf, err := t.findLeaf(l, epoch)
	if err != nil {
		return nil, err
	}
	return loadValue(t.store, l, leaf.version)
}

// findLeaf descends to the leaf at l, returning ErrNotFound if the
// path leaves the prefix of l or ends in an empty slot.
func (t *Tree) findLeaf(l NodeLabel, epoch uint64) (*node, error) {
	_, end, err := t.path(l, epoch)
	if err != nil {
		return nil, err
	}
	if end == nil || !end.leaf || end.label != l {
		return nil, ErrNotFound
	}
	return end, nil
}

// path returns the interior nodes from the root toward l at epoch and
// the node occupying l's position below the last of them (nil for an
// empty root slot).
func (t *Tree) path(l NodeLabel, epoch uint64) ([]*node, *node, error) {
	cur, err := loadNode(t.store, RootLabel, epoch)
	if err != nil {
		return nil, nil, err
	}
	var nodes []*node
	for {
		nodes = append(nodes, cur)
		dir := DirectionOf(cur.label, l)
		if dir == DirNone {
			return nil, nil, &StructuralError{Op: "path", Label: l, Epoch: epoch,
				Reason: "label does not extend " + cur.label.String()}
		}
		c := cur.child(dir)
		if c == nil {
			return nodes, nil, nil
		}
		child, err := loadNode(t.store, *c, epoch)
		if err != nil {
			return nil, nil, err
		}
		if child.leaf || !child.label.IsPrefixOf(l) {
			return nodes, child, nil
		}
		cur = child
	}
}

// values returns every value entry of l with version <= upto.
func (t *Tree) values(l NodeLabel, upto uint64) ([]*ValueEntry, error) {
	var out []*ValueEntry
	var err error
	scanErr := t.store.Scan(valueKey(l, 1), valueKey(l, upto+1), func(k, v []byte) bool {
		var e *ValueEntry
		if e, err = decodeValueEntry(v); err != nil {
			return false
		}
		out = append(out, e)
		return true
	})
	if err != nil {
		return nil, err
	}
	if scanErr != nil {
		return nil, scanErr
	}
	for i, e := range out {
		if e.Version != uint64(i+1) {
			return nil, &StructuralError{Op: "values", Label: l, Reason: "version gap"}
		}
	}
	return out, nil
}

// sortedLabels returns ls in label order.
func sortedLabels(ls []NodeLabel) []NodeLabel {
	out := append([]NodeLabel{}, ls...)
	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].Val[:], out[j].Val[:]); c != 0 {
			return c < 0
		}
		return out[i].Len < out[j].Len
	})
	return out
}
