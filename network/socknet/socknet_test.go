package socknet

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/coniks-sys/keywitness/application"
	"github.com/coniks-sys/keywitness/application/testutil"
	"github.com/coniks-sys/keywitness/network"
	"github.com/coniks-sys/keywitness/protocol"
)

type party struct {
	ep   *Endpoint
	addr *application.ServerAddress
}

// newParties starts one endpoint per name, the first on tcp and the
// others on unix sockets.
func newParties(t *testing.T, names ...string) map[string]*party {
	dir := testutil.CreateTLSCertForTest(t)
	parties := make(map[string]*party)
	peers := make(map[string]*application.DialConfig)
	for i, name := range names {
		addr := &application.ServerAddress{Address: testutil.UnixAddress(t, name)}
		if i == 0 {
			addr = &application.ServerAddress{
				Address:     testutil.TCPAddress(t),
				TLSCertPath: filepath.Join(dir, testutil.CertFile),
				TLSKeyPath:  filepath.Join(dir, testutil.KeyFile),
			}
		}
		parties[name] = &party{addr: addr}
		peers[name] = &application.DialConfig{Address: addr.Address, CACertPath: addr.TLSCertPath}
	}
	for name, p := range parties {
		p.ep = New(&Config{Name: name, Peers: peers})
		sb := application.NewServerBase(application.NewCommonConfig("", "", nil), "Peer", nil)
		if err := sb.ListenAndServe(p.addr, p.ep.HandleConn); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() {
			p.ep.Close()
			sb.Shutdown()
		})
	}
	return parties
}

func recv(t *testing.T, ep *Endpoint) *protocol.Message {
	t.Helper()
	select {
	case m := <-ep.Receive():
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("No message received")
	}
	return nil
}

func TestSend(t *testing.T) {
	ps := newParties(t, "publisher", "w0")
	ctx := context.Background()

	if err := ps["w0"].ep.Send(ctx, "publisher", protocol.NewCertificateRequest("w0", 3)); err != nil {
		t.Fatal(err)
	}
	m := recv(t, ps["publisher"].ep)
	if m.From != "w0" || m.Type != protocol.CertificateRequestType || m.Epoch != 3 {
		t.Error("Unexpected message", m)
	}

	if err := ps["publisher"].ep.Send(ctx, "w0", protocol.NewErrorMessage("publisher", 2, protocol.ErrTimeout)); err != nil {
		t.Fatal(err)
	}
	if m := recv(t, ps["w0"].ep); m.Error != protocol.ErrTimeout {
		t.Error("Unexpected message", m)
	}

	if err := ps["w0"].ep.Send(ctx, "w9", protocol.NewCertificateRequest("w0", 1)); err != network.ErrUnknownPeer {
		t.Error("Expect ErrUnknownPeer, got", err)
	}
	ps["w0"].ep.Close()
	if err := ps["w0"].ep.Send(ctx, "publisher", protocol.NewCertificateRequest("w0", 1)); err != network.ErrClosed {
		t.Error("Expect ErrClosed, got", err)
	}
}

func TestBroadcast(t *testing.T) {
	ps := newParties(t, "publisher", "w0", "w1", "w2")
	if err := ps["publisher"].ep.Broadcast(context.Background(), protocol.NewCertificateRequest("publisher", 1)); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"w0", "w1", "w2"} {
		if m := recv(t, ps[name].ep); m.From != "publisher" {
			t.Error("Unexpected message", m)
		}
	}
	select {
	case m := <-ps["publisher"].ep.Receive():
		t.Error("Broadcast reached the sender", m)
	default:
	}
}

func TestBroadcastReportsUnreachable(t *testing.T) {
	ps := newParties(t, "publisher", "w0")
	peers := map[string]*application.DialConfig{
		"w0":   {Address: ps["w0"].addr.Address},
		"gone": {Address: testutil.UnixAddress(t, "gone")},
	}
	ep := New(&Config{Name: "publisher", Peers: peers})
	if err := ep.Broadcast(context.Background(), protocol.NewCertificateRequest("publisher", 1)); err == nil {
		t.Error("Expect an error for the unreachable peer")
	}
	if m := recv(t, ps["w0"].ep); m.From != "publisher" {
		t.Error("Unexpected message", m)
	}
}
