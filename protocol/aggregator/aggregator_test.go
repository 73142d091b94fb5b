package aggregator

import (
	"fmt"
	"sync"
	"testing"

	"github.com/coniks-sys/keywitness/crypto"
	"github.com/coniks-sys/keywitness/crypto/multisig/bls"
	"github.com/coniks-sys/keywitness/protocol"
)

func TestQuorum(t *testing.T) {
	c, signers := protocol.NewTestCommittee(4, "")
	root := crypto.Digest([]byte("root"))
	a := New(c, 1, root)

	for _, name := range []string{"w0", "w1"} {
		cert, err := a.Append(protocol.NewVote(signers[name], name, 1, root))
		if err != nil || cert != nil {
			t.Fatal("certificate before the quorum", err)
		}
	}
	cert, err := a.Append(protocol.NewVote(signers["w3"], "w3", 1, root))
	if err != nil || cert == nil {
		t.Fatal("no certificate at the quorum", err)
	}
	if err := cert.Verify(c); err != nil {
		t.Fatal(err)
	}
	late, err := a.Append(protocol.NewVote(signers["w2"], "w2", 1, root))
	if err != nil || late != nil {
		t.Fatal("a late vote produced a second certificate", err)
	}
	if a.Certificate() != cert || a.Weight() != 3 {
		t.Fatal("Unexpected aggregator state")
	}
}

func TestRejectedVotes(t *testing.T) {
	c, signers := protocol.NewTestCommittee(4, "")
	root := crypto.Digest([]byte("root"))
	a := New(c, 1, root)

	if _, err := a.Append(protocol.NewVote(signers["w0"], "w0", 2, root)); err != protocol.ErrUnexpectedVote {
		t.Error("Expect", protocol.ErrUnexpectedVote, "got", err)
	}
	other := crypto.Digest([]byte("other"))
	if _, err := a.Append(protocol.NewVote(signers["w0"], "w0", 1, other)); err != protocol.ErrUnexpectedVote {
		t.Error("Expect", protocol.ErrUnexpectedVote, "got", err)
	}
	if _, err := a.Append(protocol.NewVote(signers["w0"], "mallory", 1, root)); err != protocol.ErrUnknownWitness {
		t.Error("Expect", protocol.ErrUnknownWitness, "got", err)
	}
	// w1 signing in w0's name
	if _, err := a.Append(protocol.NewVote(signers["w1"], "w0", 1, root)); err != protocol.ErrInvalidVote {
		t.Error("Expect", protocol.ErrInvalidVote, "got", err)
	}
	v := protocol.NewVote(signers["w0"], "w0", 1, root)
	if _, err := a.Append(v); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Append(v); err != protocol.ErrWitnessReuse {
		t.Error("Expect", protocol.ErrWitnessReuse, "got", err)
	}
	if a.Weight() != 1 {
		t.Error("rejected votes counted", a.Weight())
	}
}

func TestConcurrentVotesCertifyOnce(t *testing.T) {
	const n = 10
	c, signers := protocol.NewTestCommittee(n, bls.ID)
	root := crypto.Digest([]byte("root"))
	a := New(c, 7, root)

	var wg sync.WaitGroup
	certs := make(chan *protocol.Certificate, n*2)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("w%d", i)
		v := protocol.NewVote(signers[name], name, 7, root)
		// every vote is delivered twice
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				cert, err := a.Append(v)
				if err != nil && err != protocol.ErrWitnessReuse {
					t.Error(err)
				}
				if cert != nil {
					certs <- cert
				}
			}()
		}
	}
	wg.Wait()
	close(certs)
	var got []*protocol.Certificate
	for cert := range certs {
		got = append(got, cert)
	}
	if len(got) != 1 {
		t.Fatal("Expect exactly one certificate, got", len(got))
	}
	if err := got[0].Verify(c); err != nil {
		t.Fatal(err)
	}
	if uint64(len(got[0].Signers)) != c.QuorumThreshold() {
		t.Fatal("certificate carries more signers than the quorum", len(got[0].Signers))
	}
}
