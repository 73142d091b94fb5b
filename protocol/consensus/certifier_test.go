package consensus

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/coniks-sys/keywitness/crypto/multisig"
	"github.com/coniks-sys/keywitness/network/memnet"
	"github.com/coniks-sys/keywitness/protocol"
	"github.com/coniks-sys/keywitness/protocol/aggregator"
	"github.com/coniks-sys/keywitness/protocol/directory"
	"github.com/coniks-sys/keywitness/protocol/witness"
	"github.com/coniks-sys/keywitness/storage"
	"github.com/coniks-sys/keywitness/storage/kv/leveldbkv"
)

const publisher = "publisher"

type cluster struct {
	d         *directory.Directory
	signers   map[string]multisig.Signer
	hub       *memnet.Hub
	certifier *Certifier
	witnesses map[string]*witness.Witness
	ctx       context.Context
}

// newCluster starts a directory with four witnesses, of which only
// the named ones are online.
func newCluster(t *testing.T, timeout time.Duration, retries int, online ...string) *cluster {
	d, signers := directory.NewTestDirectory(t, 4)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	c := &cluster{
		d:         d,
		signers:   signers,
		hub:       memnet.NewHub(42),
		witnesses: make(map[string]*witness.Witness),
		ctx:       ctx,
	}
	c.certifier = New(&Config{
		Committee:  d.Committee(),
		Network:    c.hub.Join(publisher),
		Certs:      d,
		Name:       publisher,
		Timeout:    timeout,
		MaxRetries: retries,
	})
	for _, name := range online {
		c.start(t, name)
	}
	return c
}

func (c *cluster) start(t *testing.T, name string) {
	w, err := witness.New(&witness.Config{
		Name:      name,
		Signer:    c.signers[name],
		Committee: c.d.Committee(),
		Store:     storage.New(leveldbkv.OpenMemory()),
	})
	if err != nil {
		t.Fatal(err)
	}
	c.witnesses[name] = w
	go w.Run(c.ctx, c.hub.Join(name))
}

func (c *cluster) publish(t *testing.T, value string) *protocol.Notification {
	n, err := c.d.Publish(c.ctx, []protocol.Update{{Identity: "alice", Value: []byte(value)}})
	if err != nil {
		t.Fatal(err)
	}
	return n
}

// waitEpoch waits until witness name expects epoch next.
func (c *cluster) waitEpoch(t *testing.T, name string, epoch uint64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if c.witnesses[name].Status().NextEpoch == epoch {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("witness %s never reached epoch %d", name, epoch)
}

func TestCertify(t *testing.T) {
	c := newCluster(t, time.Second, 3, "w0", "w1", "w2", "w3")
	for i := 1; i <= 3; i++ {
		n := c.publish(t, fmt.Sprintf("a%d", i))
		cert, err := c.certifier.Certify(c.ctx, n)
		if err != nil {
			t.Fatal(err)
		}
		if cert.Epoch != n.Epoch || !bytes.Equal(cert.Root, n.Root) {
			t.Fatal("Unexpected certificate", cert)
		}
		if err := cert.Verify(c.d.Committee()); err != nil {
			t.Fatal(err)
		}
		if c.d.LatestCertified() != n.Epoch {
			t.Fatal("Certificate was not recorded")
		}
		if s, e := c.certifier.State(); s != Certified || e != n.Epoch {
			t.Error("Unexpected state", s, e)
		}
	}
	for name := range c.witnesses {
		c.waitEpoch(t, name, 4)
	}
}

func TestCertifyOrder(t *testing.T) {
	c := newCluster(t, time.Second, 3, "w0", "w1", "w2")
	n1 := c.publish(t, "a1")
	n2 := c.publish(t, "a2")
	if _, err := c.certifier.Certify(c.ctx, n2); err != protocol.ErrOutOfOrder {
		t.Fatal("Expect ErrOutOfOrder, got", err)
	}
	cert, err := c.certifier.Certify(c.ctx, n1)
	if err != nil {
		t.Fatal(err)
	}
	again, err := c.certifier.Certify(c.ctx, n1)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(again.Aggregate, cert.Aggregate) {
		t.Error("Certifying a certified epoch must return the stored certificate")
	}
	if _, err := c.certifier.Certify(c.ctx, n2); err != nil {
		t.Fatal(err)
	}
}

func TestTimeout(t *testing.T) {
	c := newCluster(t, 20*time.Millisecond, 2, "w0", "w1")
	n := c.publish(t, "a1")
	if _, err := c.certifier.Certify(c.ctx, n); err != protocol.ErrTimeout {
		t.Fatal("Expect ErrTimeout without a quorum, got", err)
	}
	if s, _ := c.certifier.State(); s != TimedOut {
		t.Error("Expect TimedOut, got", s)
	}
	if c.d.LatestCertified() != 0 {
		t.Fatal("A timeout must not certify anything")
	}

	// w0 and w1 repeat their locked votes once w2 comes online
	c.start(t, "w2")
	c.certifier.SetRetryPolicy(time.Second, -1)
	cert, err := c.certifier.Certify(c.ctx, n)
	if err != nil {
		t.Fatal(err)
	}
	if len(cert.Signers) != 3 {
		t.Error("Expect three signers, got", cert.Signers)
	}
}

func TestQuorumVoteCheckedAfterTimer(t *testing.T) {
	// every vote is still being checked when the only round times out
	appendVote = func(a *aggregator.Aggregator, v *protocol.Vote) (*protocol.Certificate, error) {
		time.Sleep(150 * time.Millisecond)
		return a.Append(v)
	}
	defer func() { appendVote = (*aggregator.Aggregator).Append }()

	c := newCluster(t, 50*time.Millisecond, 0, "w0", "w1", "w2")
	n := c.publish(t, "a1")
	cert, err := c.certifier.Certify(c.ctx, n)
	if err != nil {
		t.Fatal("Expect the late quorum to certify, got", err)
	}
	if !bytes.Equal(cert.Root, n.Root) || c.d.LatestCertified() != 1 {
		t.Error("Unexpected certificate", cert)
	}
}

func TestSyncLaggingWitness(t *testing.T) {
	c := newCluster(t, time.Second, 3, "w0", "w1", "w2")
	for i := 1; i <= 2; i++ {
		if _, err := c.certifier.Certify(c.ctx, c.publish(t, fmt.Sprintf("a%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	// w3 joins two epochs late and w0 goes silent: epoch 3 needs w3
	c.start(t, "w3")
	c.hub.SetFilter(func(from, to string, m *protocol.Message) bool {
		return from != "w0" && to != "w0"
	})
	cert, err := c.certifier.Certify(c.ctx, c.publish(t, "a3"))
	if err != nil {
		t.Fatal(err)
	}
	signed := false
	for _, s := range cert.Signers {
		signed = signed || s == "w3"
	}
	if !signed {
		t.Error("The lagging witness must be synchronized and vote, signers", cert.Signers)
	}
	c.waitEpoch(t, "w3", 4)
}

func TestCertifyUnderFaults(t *testing.T) {
	c := newCluster(t, 50*time.Millisecond, 40, "w0", "w1", "w2", "w3")
	c.hub.SetFaults(memnet.Faults{
		DropRate:      0.2,
		DuplicateRate: 0.3,
		MaxDelay:      5 * time.Millisecond,
	})
	for i := 1; i <= 3; i++ {
		n := c.publish(t, fmt.Sprintf("a%d", i))
		cert, err := c.certifier.Certify(c.ctx, n)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(cert.Root, n.Root) {
			t.Fatal("Certificate for the wrong root")
		}
	}
}

func TestAnswersCertificateRequests(t *testing.T) {
	c := newCluster(t, time.Second, 3, "w0", "w1", "w2")
	n1 := c.publish(t, "a1")
	if _, err := c.certifier.Certify(c.ctx, n1); err != nil {
		t.Fatal(err)
	}
	n2 := c.publish(t, "a2")

	// a client asks the publisher while a round is running
	client := c.hub.Join("client")
	if err := client.Send(c.ctx, publisher, protocol.NewCertificateRequest("client", 1)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.certifier.Certify(c.ctx, n2); err != nil {
		t.Fatal(err)
	}
	deadline := time.After(5 * time.Second)
	for {
		select {
		case m := <-client.Receive():
			if m.Type != protocol.CertificateType {
				continue
			}
			if m.Epoch == 1 && bytes.Equal(m.Certificate.Root, n1.Root) {
				return
			}
		case <-deadline:
			t.Fatal("No certificate for epoch 1")
		}
	}
}

func TestRun(t *testing.T) {
	c := newCluster(t, 20*time.Millisecond, 0, "w0", "w1")
	pending := make(chan *protocol.Notification, 2)
	errc := make(chan error, 1)
	go func() { errc <- c.certifier.Run(c.ctx, pending) }()

	pending <- c.publish(t, "a1")
	pending <- c.publish(t, "a2")
	// rounds keep timing out until a quorum is online
	time.Sleep(100 * time.Millisecond)
	if c.d.LatestCertified() != 0 {
		t.Fatal("Certified without a quorum")
	}
	c.start(t, "w2")
	for name := range map[string]bool{"w0": true, "w1": true, "w2": true} {
		c.waitEpoch(t, name, 3)
	}
	if c.d.LatestCertified() != 2 {
		t.Fatal("Expect both epochs certified, got", c.d.LatestCertified())
	}

	// idle, the certifier still answers certificate requests
	client := c.hub.Join("client")
	if err := client.Send(c.ctx, publisher, protocol.NewCertificateRequest("client", 2)); err != nil {
		t.Fatal(err)
	}
	select {
	case m := <-client.Receive():
		if m.Type != protocol.CertificateType || m.Epoch != 2 {
			t.Error("Unexpected reply", m)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("No reply")
	}

	close(pending)
	if err := <-errc; err != nil {
		t.Error(err)
	}
}
