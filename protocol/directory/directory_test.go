package directory

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coniks-sys/keywitness/crypto"
	"github.com/coniks-sys/keywitness/crypto/sign"
	"github.com/coniks-sys/keywitness/label"
	"github.com/coniks-sys/keywitness/merkletree"
	"github.com/coniks-sys/keywitness/protocol"
	"github.com/coniks-sys/keywitness/storage"
	"github.com/coniks-sys/keywitness/storage/kv/leveldbkv"
)

var quorum = []string{"w0", "w1", "w2"}

func update(identity, value string) protocol.Update {
	return protocol.Update{Identity: identity, Value: []byte(value)}
}

func TestLookup(t *testing.T) {
	d, signers := NewTestDirectory(t, 4)
	CertifyForTest(t, d, signers, []protocol.Update{update("alice", "key-a1")}, quorum...)

	p, err := d.Lookup("alice", 0)
	if err != nil {
		t.Fatal(err)
	}
	if p.Epoch != 1 || p.Membership == nil || p.NonMembership != nil {
		t.Fatal("Expect a membership proof at epoch 1, got", p)
	}
	if !bytes.Equal(p.Membership.Entry.Value, []byte("key-a1")) {
		t.Error("Unexpected value", p.Membership.Entry.Value)
	}
	h := d.Committee().Hasher()
	if err := p.Membership.Verify(h, p.Certificate.Root); err != nil {
		t.Error("Membership proof does not verify against the certificate:", err)
	}
	if err := label.Verify("alice", p.Label, p.VRFProof, d.Committee().VRFKey()); err != nil {
		t.Error(err)
	}

	p, err = d.Lookup("bob", 1)
	if err != nil {
		t.Fatal(err)
	}
	if p.Membership != nil || p.NonMembership == nil {
		t.Fatal("Expect a non-membership proof for bob")
	}
	if err := p.NonMembership.Verify(h, p.Certificate.Root); err != nil {
		t.Error(err)
	}
	if r := protocol.NewLookupResponse(p); r.Error != protocol.ReqNameNotFound {
		t.Error("Expect ReqNameNotFound, got", r.Error)
	}
}

func TestReadsNeedCertificates(t *testing.T) {
	d, signers := NewTestDirectory(t, 4)
	if _, err := d.Lookup("alice", 0); err != protocol.ErrEpochNotCertified {
		t.Error("Expect ErrEpochNotCertified before any certificate, got", err)
	}
	CertifyForTest(t, d, signers, []protocol.Update{update("alice", "a1")}, quorum...)
	if _, err := d.Publish(context.Background(), []protocol.Update{update("alice", "a2")}); err != nil {
		t.Fatal(err)
	}
	if d.LatestEpoch() != 2 || d.LatestCertified() != 1 {
		t.Fatal("Unexpected epochs", d.LatestEpoch(), d.LatestCertified())
	}
	if _, err := d.Lookup("alice", 2); err != protocol.ErrEpochNotCertified {
		t.Error("Expect ErrEpochNotCertified for epoch 2, got", err)
	}
	if _, err := d.KeyHistory("alice", 2); err != protocol.ErrEpochNotCertified {
		t.Error("Expect ErrEpochNotCertified for epoch 2, got", err)
	}
	if _, err := d.GetCertificate(2); err != protocol.ErrEpochNotCertified {
		t.Error("Expect ErrEpochNotCertified for epoch 2, got", err)
	}
	p, err := d.Lookup("alice", 0)
	if err != nil {
		t.Fatal(err)
	}
	if p.Epoch != 1 || !bytes.Equal(p.Membership.Entry.Value, []byte("a1")) {
		t.Error("Expect the value of the latest certified epoch")
	}
}

func TestPublishRejectsMalformedBatch(t *testing.T) {
	d, _ := NewTestDirectory(t, 4)
	ctx := context.Background()
	for _, batch := range [][]protocol.Update{
		{update("alice", "a1"), update("bob", "")},
		{update("", "x")},
	} {
		if _, err := d.Publish(ctx, batch); err != protocol.ErrMalformedUpdate {
			t.Error("Expect ErrMalformedUpdate, got", err)
		}
	}
	if d.LatestEpoch() != 0 {
		t.Fatal("A rejected batch must not create an epoch")
	}
	// nothing of the rejected batches is staged
	n, err := d.Publish(ctx, []protocol.Update{update("carol", "c1")})
	if err != nil {
		t.Fatal(err)
	}
	rec, err := d.tree.Epoch(n.Epoch)
	if err != nil {
		t.Fatal(err)
	}
	if n.Epoch != 1 || len(rec.Touched) != 1 {
		t.Error("Expect only carol in epoch 1, got", rec.Touched)
	}
}

func TestPublishSkipsIdenticalValues(t *testing.T) {
	d, signers := NewTestDirectory(t, 4)
	batch := []protocol.Update{update("alice", "a1"), update("alice", "a1")}
	CertifyForTest(t, d, signers, batch, quorum...)
	CertifyForTest(t, d, signers, batch[:1], quorum...)

	h, err := d.KeyHistory("alice", 0)
	if err != nil {
		t.Fatal(err)
	}
	if h.Epoch != 2 || len(h.History.Entries) != 1 {
		t.Fatal("Expect one version at epoch 2, got", h.History.Entries)
	}
	if err := h.History.Verify(d.Committee().Hasher(), h.Certificate.Root); err != nil {
		t.Error(err)
	}
	if _, err := d.KeyHistory("bob", 0); err != protocol.ErrNotFound {
		t.Error("Expect ErrNotFound for bob, got", err)
	}
}

func TestNotifications(t *testing.T) {
	d, signers := NewTestDirectory(t, 4)
	ctx := context.Background()
	n1 := CertifyForTest(t, d, signers, []protocol.Update{update("alice", "a1")}, quorum...)
	n2, err := d.Publish(ctx, []protocol.Update{update("bob", "b1")})
	if err != nil {
		t.Fatal(err)
	}
	n3, err := d.Publish(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}

	h := d.Committee().Hasher()
	if !bytes.Equal(n1.PrevRoot, merkletree.GenesisRoot(h)) {
		t.Error("Epoch 1 must extend the genesis root")
	}
	for _, n := range []*protocol.Notification{n1, n2, n3} {
		if !n.VerifySignature(d.Committee().PublisherKey()) {
			t.Error("Bad signature on epoch", n.Epoch)
		}
		if err := n.Proof.Verify(h, n.PrevRoot, n.Root); err != nil {
			t.Error("Bad history proof on epoch", n.Epoch, err)
		}
	}
	if !bytes.Equal(n3.PrevRoot, n2.Root) {
		t.Error("Notifications do not chain")
	}

	pending, err := d.PendingNotifications()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 || pending[0].Epoch != 2 || pending[1].Epoch != 3 {
		t.Fatal("Unexpected pending notifications", pending)
	}
	if !bytes.Equal(pending[1].Root, n3.Root) || !bytes.Equal(pending[1].Signature, n3.Signature) {
		t.Error("Stored notification differs from the published one")
	}
	if _, err := d.Notification(4); err != protocol.ErrNotFound {
		t.Error("Expect ErrNotFound for an unpublished epoch, got", err)
	}
}

func TestRecordCertificate(t *testing.T) {
	d, signers := NewTestDirectory(t, 4)
	ctx := context.Background()
	n1, err := d.Publish(ctx, []protocol.Update{update("alice", "a1")})
	if err != nil {
		t.Fatal(err)
	}
	n2, err := d.Publish(ctx, []protocol.Update{update("alice", "a2")})
	if err != nil {
		t.Fatal(err)
	}
	c := d.Committee()

	if err := d.RecordCertificate(protocol.NewTestCertificate(c, signers, 1, n1.Root, "w0", "w1")); err != protocol.ErrQuorumNotReached {
		t.Error("Expect ErrQuorumNotReached, got", err)
	}
	if err := d.RecordCertificate(protocol.NewTestCertificate(c, signers, 2, n2.Root, quorum...)); err != protocol.ErrOutOfOrder {
		t.Error("Expect ErrOutOfOrder, got", err)
	}
	forged := crypto.Digest([]byte("forged root"))
	if err := d.RecordCertificate(protocol.NewTestCertificate(c, signers, 1, forged, quorum...)); err != protocol.ErrCertificateMismatch {
		t.Error("Expect ErrCertificateMismatch, got", err)
	}

	cert := protocol.NewTestCertificate(c, signers, 1, n1.Root, quorum...)
	if err := d.RecordCertificate(cert); err != nil {
		t.Fatal(err)
	}
	if err := d.RecordCertificate(cert); err != nil {
		t.Error("Recording a certificate twice must be a no-op, got", err)
	}
	if err := d.RecordCertificate(protocol.NewTestCertificate(c, signers, 1, forged, quorum...)); err != protocol.ErrConflictingCertificate {
		t.Error("Expect ErrConflictingCertificate, got", err)
	}
	if err := d.RecordCertificate(protocol.NewTestCertificate(c, signers, 3, forged, quorum...)); err != protocol.ErrOutOfOrder {
		t.Error("Expect ErrOutOfOrder for an unpublished epoch, got", err)
	}
	got, err := d.GetCertificate(0)
	if err != nil {
		t.Fatal(err)
	}
	if got.Epoch != 1 || !bytes.Equal(got.Root, n1.Root) {
		t.Error("Unexpected latest certificate", got)
	}
}

func TestAudit(t *testing.T) {
	d, signers := NewTestDirectory(t, 4)
	CertifyForTest(t, d, signers, []protocol.Update{update("alice", "a1")}, quorum...)
	CertifyForTest(t, d, signers, []protocol.Update{update("bob", "b1")}, quorum...)
	CertifyForTest(t, d, signers, []protocol.Update{update("alice", "a2")}, "w1", "w2", "w3")

	a, err := d.Audit(0, 3)
	if err != nil {
		t.Fatal(err)
	}
	h := d.Committee().Hasher()
	if err := a.Proof.Verify(h, merkletree.GenesisRoot(h), a.Certificate.Root); err != nil {
		t.Error(err)
	}
	if err := a.Certificate.Verify(d.Committee()); err != nil {
		t.Error(err)
	}
	if _, err := d.Audit(2, 2); err != protocol.ErrMalformedMessage {
		t.Error("Expect ErrMalformedMessage, got", err)
	}
	if _, err := d.Audit(1, 4); err != protocol.ErrEpochNotCertified {
		t.Error("Expect ErrEpochNotCertified, got", err)
	}
}

func TestPublishOrder(t *testing.T) {
	d, _ := NewTestDirectory(t, 4)
	ctx := context.Background()
	var results []<-chan PublishResult
	for _, v := range []string{"a1", "a2", "a3", "a4", "a5"} {
		results = append(results, d.Submit(ctx, []protocol.Update{update("alice", v)}))
	}
	for i, ch := range results {
		r := <-ch
		if r.Err != nil {
			t.Fatal(r.Err)
		}
		if r.Notification.Epoch != uint64(i+1) {
			t.Error("Expect epoch", i+1, "got", r.Notification.Epoch)
		}
	}
	v, err := d.tree.Lookup(mustLabel(t, d, "alice"), 5)
	if err != nil {
		t.Fatal(err)
	}
	if v.Version != 5 || !bytes.Equal(v.Value, []byte("a5")) {
		t.Error("Unexpected latest version", v.Version, string(v.Value))
	}
}

func mustLabel(t *testing.T, d *Directory, identity string) []byte {
	l, _, err := d.deriver.Derive(identity)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestConcurrentReads(t *testing.T) {
	d, signers := NewTestDirectory(t, 4)
	CertifyForTest(t, d, signers, []protocol.Update{update("alice", "a1")}, quorum...)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				p, err := d.Lookup("alice", 1)
				if err != nil {
					t.Error(err)
					return
				}
				if !bytes.Equal(p.Membership.Entry.Value, []byte("a1")) {
					t.Error("Reads of a certified epoch must not change")
					return
				}
			}
		}()
	}
	for i := 0; i < 10; i++ {
		if _, err := d.Publish(context.Background(), []protocol.Update{update("alice", "next")}); err != nil {
			t.Error(err)
		}
	}
	wg.Wait()
}

func TestReopen(t *testing.T) {
	store := storage.New(leveldbkv.OpenMemory())
	c, signers := protocol.NewTestCommittee(4, "")
	conf := &Config{
		Store:      store,
		VRFKey:     crypto.NewStaticTestVRFKey(),
		SigningKey: crypto.NewStaticTestSigningKey(),
		Committee:  c,
	}
	d, err := New(conf)
	if err != nil {
		t.Fatal(err)
	}
	n := CertifyForTest(t, d, signers, []protocol.Update{update("alice", "a1")}, quorum...)
	if _, err := d.Publish(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	d.Close()
	if _, err := d.Publish(context.Background(), nil); err != ErrClosed {
		t.Error("Expect ErrClosed, got", err)
	}

	d, err = New(conf)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if d.LatestEpoch() != 2 || d.LatestCertified() != 1 {
		t.Fatal("Unexpected epochs after reopen", d.LatestEpoch(), d.LatestCertified())
	}
	cert, err := d.GetCertificate(1)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(cert.Root, n.Root) {
		t.Error("Certificate changed across reopen")
	}
}

func TestNewChecksKeys(t *testing.T) {
	c, _ := protocol.NewTestCommittee(4, "")
	other, err := sign.GenerateKey(bytes.NewReader(crypto.Digest([]byte("another publisher"))))
	if err != nil {
		t.Fatal(err)
	}
	_, err = New(&Config{
		Store:      storage.New(leveldbkv.OpenMemory()),
		VRFKey:     crypto.NewStaticTestVRFKey(),
		SigningKey: other,
		Committee:  c,
	})
	if err != ErrKeyMismatch {
		t.Error("Expect ErrKeyMismatch, got", err)
	}
}

func TestBatcher(t *testing.T) {
	var (
		mu      sync.Mutex
		batches [][]protocol.Update
	)
	b := NewBatcher(3, time.Hour, func(us []protocol.Update) {
		mu.Lock()
		batches = append(batches, us)
		mu.Unlock()
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()
	for i := 0; i < 7; i++ {
		if err := b.Add(context.Background(), update("alice", "v")); err != nil {
			t.Fatal(err)
		}
	}
	cancel()
	<-done
	if len(batches) != 3 || len(batches[0]) != 3 || len(batches[1]) != 3 || len(batches[2]) != 1 {
		t.Error("Unexpected batches", batches)
	}
}

func TestBatcherTimeout(t *testing.T) {
	sealed := make(chan []protocol.Update, 1)
	b := NewBatcher(100, 10*time.Millisecond, func(us []protocol.Update) { sealed <- us })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)
	if err := b.Add(ctx, update("alice", "a1")); err != nil {
		t.Fatal(err)
	}
	select {
	case us := <-sealed:
		if len(us) != 1 {
			t.Error("Expect one update in the batch, got", len(us))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Batch was never sealed")
	}
}
