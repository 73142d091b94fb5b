package memnet

import (
	"context"
	"testing"
	"time"

	"github.com/coniks-sys/keywitness/network"
	"github.com/coniks-sys/keywitness/protocol"
)

func recv(t *testing.T, e *Endpoint) *protocol.Message {
	t.Helper()
	select {
	case m := <-e.Receive():
		return m
	case <-time.After(time.Second):
		t.Fatal("no message delivered to", e.Name())
	}
	return nil
}

func TestSendBroadcast(t *testing.T) {
	hub := NewHub(1)
	a, b, c := hub.Join("a"), hub.Join("b"), hub.Join("c")
	ctx := context.Background()

	if err := a.Send(ctx, "b", protocol.NewCertificateRequest("a", 1)); err != nil {
		t.Fatal(err)
	}
	if m := recv(t, b); m.From != "a" || m.Epoch != 1 {
		t.Fatal("Unexpected message", m)
	}
	if err := a.Send(ctx, "nobody", protocol.NewCertificateRequest("a", 1)); err != network.ErrUnknownPeer {
		t.Fatal("Expect", network.ErrUnknownPeer, "got", err)
	}

	if err := c.Broadcast(ctx, protocol.NewCertificateRequest("c", 2)); err != nil {
		t.Fatal(err)
	}
	recv(t, a)
	recv(t, b)
	select {
	case <-c.Receive():
		t.Fatal("broadcast delivered to its sender")
	default:
	}
}

func TestFaults(t *testing.T) {
	hub := NewHub(7)
	a, b := hub.Join("a"), hub.Join("b")
	ctx := context.Background()

	hub.SetFaults(Faults{DropRate: 1})
	a.Send(ctx, "b", protocol.NewCertificateRequest("a", 1))
	hub.SetFaults(Faults{DuplicateRate: 1})
	a.Send(ctx, "b", protocol.NewCertificateRequest("a", 2))
	hub.SetFaults(Faults{MaxDelay: 10 * time.Millisecond})
	a.Send(ctx, "b", protocol.NewCertificateRequest("a", 3))
	hub.Wait()

	var got []uint64
	for len(got) < 3 {
		got = append(got, recv(t, b).Epoch)
	}
	if got[0] != 2 || got[1] != 2 || got[2] != 3 {
		t.Fatal("Unexpected deliveries", got)
	}

	hub.SetFaults(Faults{})
	hub.SetFilter(func(from, to string, m *protocol.Message) bool { return m.Epoch != 4 })
	a.Send(ctx, "b", protocol.NewCertificateRequest("a", 4))
	a.Send(ctx, "b", protocol.NewCertificateRequest("a", 5))
	if m := recv(t, b); m.Epoch != 5 {
		t.Fatal("filter did not drop epoch 4", m.Epoch)
	}

	b.Close()
	if err := b.Send(ctx, "a", protocol.NewCertificateRequest("b", 1)); err != network.ErrClosed {
		t.Fatal("Expect", network.ErrClosed, "got", err)
	}
}
