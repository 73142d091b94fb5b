package merkletree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"
)

func populated(t *testing.T) (*Tree, []byte) {
	tree := NewTestTree(t)
	kvs := map[string]string{}
	for i := 0; i < 20; i++ {
		kvs[fmt.Sprintf("user%d", i)] = fmt.Sprintf("key%d", i)
	}
	publish(t, tree, kvs)
	_, root := publish(t, tree, map[string]string{"user3": "key3-rotated"})
	return tree, root
}

func TestMembershipProof(t *testing.T) {
	tree, root := populated(t)
	h := tree.Hasher()
	for i := 0; i < 20; i++ {
		p, err := tree.ProveMembership(TestLabel(fmt.Sprintf("user%d", i)), 2)
		if err != nil {
			t.Fatal(err)
		}
		if err := p.Verify(h, root); err != nil {
			t.Fatal("valid proof rejected for user", i, err)
		}
	}
	p, _ := tree.ProveMembership(TestLabel("user3"), 2)
	if string(p.Entry.Value) != "key3-rotated" || p.Entry.Version != 2 {
		t.Fatal("Unexpected entry", p.Entry)
	}
	if _, err := tree.ProveMembership(TestLabel("nobody"), 2); err != ErrNotFound {
		t.Fatal("Expect", ErrNotFound, "got", err)
	}
}

func TestMembershipProofTampering(t *testing.T) {
	tree, root := populated(t)
	h := tree.Hasher()
	fresh := func() *MembershipProof {
		p, err := tree.ProveMembership(TestLabel("user3"), 2)
		if err != nil {
			t.Fatal(err)
		}
		return p
	}

	p := fresh()
	p.Entry.Value = []byte("evil")
	if err := p.Verify(h, root); err != ErrInvalidProof {
		t.Error("tampered value accepted", err)
	}

	p = fresh()
	p.Siblings[0].Digest = bytes.Repeat([]byte{7}, 32)
	if err := p.Verify(h, root); err == nil {
		t.Error("tampered sibling accepted")
	}

	p = fresh()
	p.Siblings = p.Siblings[:len(p.Siblings)-1]
	if err := p.Verify(h, root); err == nil {
		t.Error("truncated path accepted")
	}

	// an old version of the value does not verify against the new root
	old, err := tree.ProveMembership(TestLabel("user3"), 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := old.Verify(h, root); err == nil {
		t.Error("stale proof accepted against the newer root")
	}
	r1, _ := tree.Root(1)
	if err := old.Verify(h, r1); err != nil {
		t.Error("proof rejected against its own epoch", err)
	}
}

func TestNonMembershipProof(t *testing.T) {
	tree, root := populated(t)
	h := tree.Hasher()
	for i := 0; i < 20; i++ {
		p, err := tree.ProveNonMembership(TestLabel(fmt.Sprintf("absent%d", i)), 2)
		if err != nil {
			t.Fatal(err)
		}
		if err := p.Verify(h, root); err != nil {
			t.Fatal("valid absence proof rejected", i, err)
		}
	}
	if _, err := tree.ProveNonMembership(TestLabel("user1"), 2); err != ErrLabelExists {
		t.Fatal("Expect", ErrLabelExists, "got", err)
	}
}

func TestNonMembershipCannotHidePresentLabel(t *testing.T) {
	tree, root := populated(t)
	h := tree.Hasher()
	present, _ := LeafLabel(TestLabel("user1"))

	// reuse the absence proof of another label for a present one
	p, err := tree.ProveNonMembership(TestLabel("absent0"), 2)
	if err != nil {
		t.Fatal(err)
	}
	p.Label = present
	if err := p.Verify(h, root); err == nil {
		t.Fatal("absence proof accepted for a present label")
	}

	// present the label's own leaf as the terminal node
	m, _ := tree.ProveMembership(TestLabel("user1"), 2)
	leaf, _ := loadNode(tree.store, present, 2)
	forged := &NonMembershipProof{
		Epoch:    2,
		Label:    present,
		Terminal: Sibling{Label: present, Digest: leaf.digest},
		Siblings: m.Siblings,
		PrevRoot: m.PrevRoot,
	}
	if err := forged.Verify(h, root); !IsStructural(err) {
		t.Fatal("Expect a structural error, got", err)
	}
}

func TestNonMembershipInEmptyTree(t *testing.T) {
	tree := NewTestTree(t)
	root, _ := tree.Root(0)
	p, err := tree.ProveNonMembership(TestLabel("alice"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Terminal.Empty {
		t.Fatal("Expect an empty terminal in the empty tree")
	}
	if err := p.Verify(tree.Hasher(), root); err != nil {
		t.Fatal(err)
	}
}

func TestKeyHistoryProof(t *testing.T) {
	tree := NewTestTree(t)
	publish(t, tree, map[string]string{"alice": "a1", "bob": "b1"})
	publish(t, tree, map[string]string{"alice": "a2"})
	_, root := publish(t, tree, map[string]string{"alice": "a3", "bob": "b2"})

	p, err := tree.ProveKeyHistory(TestLabel("alice"), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Entries) != 3 {
		t.Fatal("Expect 3 versions, got", len(p.Entries))
	}
	for i, want := range []string{"a1", "a2", "a3"} {
		if string(p.Entries[i].Value) != want || p.Entries[i].Epoch != uint64(i+1) {
			t.Fatal("Unexpected entry", i, p.Entries[i])
		}
	}
	if err := p.Verify(tree.Hasher(), root); err != nil {
		t.Fatal(err)
	}

	// rewriting an old version breaks the chain
	p.Entries[0].Value = []byte("evil")
	if err := p.Verify(tree.Hasher(), root); err != ErrInvalidProof {
		t.Fatal("Expect", ErrInvalidProof, "got", err)
	}

	// dropping an old version is detected
	p, _ = tree.ProveKeyHistory(TestLabel("alice"), 3)
	p.Entries = p.Entries[1:]
	if err := p.Verify(tree.Hasher(), root); err == nil {
		t.Fatal("truncated history accepted")
	}
}

func TestProofJSONRoundTrip(t *testing.T) {
	tree, root := populated(t)
	p, _ := tree.ProveMembership(TestLabel("user5"), 2)
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	var q MembershipProof
	if err := json.Unmarshal(b, &q); err != nil {
		t.Fatal(err)
	}
	if err := q.Verify(tree.Hasher(), root); err != nil {
		t.Fatal("decoded proof rejected", err)
	}
}

func rawLabel(t *testing.T, first byte) NodeLabel {
	b := make([]byte, 32)
	b[0] = first
	b[31] = 0x01
	l, err := LeafLabel(b)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

// relabelTree commits labels 0x00.., 0x50.. and 0x58.. in epoch 1.
// The root's left child is the 1-bit node "0", whose children are
// the leaf 0x00.. and the 4-bit node 0101 holding the other two.
func relabelTree(t *testing.T) (tree *Tree, root []byte, a, y1, y2 NodeLabel) {
	tree = NewTestTree(t)
	a, y1, y2 = rawLabel(t, 0x00), rawLabel(t, 0x50), rawLabel(t, 0x58)
	for _, l := range []NodeLabel{a, y1, y2} {
		if err := tree.InsertOrUpdate(l.Val[:], []byte("k")); err != nil {
			t.Fatal(err)
		}
	}
	_, root, err := tree.FinalizeEpoch()
	if err != nil {
		t.Fatal(err)
	}
	return tree, root, a, y1, y2
}

func digestAt(t *testing.T, tree *Tree, l NodeLabel, epoch uint64) []byte {
	n, err := loadNode(tree.store, l, epoch)
	if err != nil {
		t.Fatal(err)
	}
	return n.digest
}

func TestNonMembershipRejectsRelabeledTerminal(t *testing.T) {
	tree, root, a, y1, _ := relabelTree(t)
	h := tree.Hasher()
	subtree := y1.Prefix(4)
	moved := rawLabel(t, 0x60).Prefix(4)

	absent := rawLabel(t, 0x40)
	p, err := tree.ProveNonMembership(absent.Val[:], 1)
	if err != nil {
		t.Fatal(err)
	}
	if p.Terminal.Label != subtree {
		t.Fatal("Expect the 0101 subtree as terminal, got", p.Terminal.Label)
	}
	if err := p.Verify(h, root); err != nil {
		t.Fatal("valid proof rejected", err)
	}
	p.Terminal.Label = moved
	if err := p.Verify(h, root); err != ErrInvalidProof {
		t.Error("relabeled terminal accepted", err)
	}

	// the same subtree digest moved to 0110 would hide the present 0x50..
	rec, err := tree.Epoch(1)
	if err != nil {
		t.Fatal(err)
	}
	forged := &NonMembershipProof{
		Epoch:    1,
		Label:    y1,
		Terminal: Sibling{Label: moved, Digest: digestAt(t, tree, subtree, 1)},
		Siblings: []Sibling{{Label: a, Digest: digestAt(t, tree, a, 1)}, {Empty: true}},
		PrevRoot: rec.PrevRoot,
	}
	if err := forged.Verify(h, root); err != ErrInvalidProof {
		t.Error("absence of a present label accepted", err)
	}
}

func TestMembershipRejectsRelabeledSibling(t *testing.T) {
	tree, root, a, y1, _ := relabelTree(t)
	h := tree.Hasher()
	p, err := tree.ProveMembership(y1.Val[:], 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Siblings) != 3 || p.Siblings[1].Label != a {
		t.Fatal("Unexpected path", p.Siblings)
	}
	// 0x10.. sits on the same side of node "0" as 0x00..
	p.Siblings[1].Label = rawLabel(t, 0x10)
	if err := p.Verify(h, root); err != ErrInvalidProof {
		t.Error("relabeled sibling accepted", err)
	}
}
