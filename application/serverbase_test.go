package application

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/coniks-sys/keywitness/application/testutil"
	"github.com/coniks-sys/keywitness/protocol"
)

func TestListen(t *testing.T) {
	dir := testutil.CreateTLSCertForTest(t)

	addr := &ServerAddress{
		Address:     testutil.TCPAddress(t),
		TLSCertPath: filepath.Join(dir, testutil.CertFile),
		TLSKeyPath:  filepath.Join(dir, testutil.KeyFile),
	}
	ln, err := addr.Listen()
	if err != nil {
		t.Fatal(err)
	}
	ln.Close()

	addr = &ServerAddress{Address: testutil.UnixAddress(t, "listen")}
	if ln, err = addr.Listen(); err != nil {
		t.Fatal(err)
	}
	ln.Close()

	// tcp without TLS material
	addr = &ServerAddress{Address: testutil.TCPAddress(t)}
	if _, err := addr.Listen(); err == nil {
		t.Error("Expect an error for tcp without a certificate")
	}
	addr = &ServerAddress{Address: "udp://127.0.0.1:3000"}
	if _, err := addr.Listen(); err != ErrUnknownNetwork {
		t.Error("Expect ErrUnknownNetwork, got", err)
	}
}

func newTestServerBase(t *testing.T, addrs ...*ServerAddress) *ServerBase {
	perms := make(map[*ServerAddress]map[int]bool)
	for _, addr := range addrs {
		perms[addr] = map[int]bool{protocol.CertificateQueryType: true}
	}
	sb := NewServerBase(NewCommonConfig("", "", nil), "Listen", perms)
	t.Cleanup(func() { sb.Shutdown() })
	handler := func(req *protocol.Request) *protocol.Response {
		q := req.Request.(*protocol.CertificateQuery)
		return protocol.NewResponse(&protocol.Certificate{Epoch: q.Epoch})
	}
	for _, addr := range addrs {
		if err := sb.ListenAndHandle(addr, handler); err != nil {
			t.Fatal(err)
		}
	}
	return sb
}

func exchange(t *testing.T, d *DialConfig, reqType int, req interface{}) *protocol.Response {
	msg, err := MarshalRequest(reqType, req)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := d.Exchange(ctx, msg)
	if err != nil {
		t.Fatal(err)
	}
	return UnmarshalResponse(reqType, res)
}

func TestListenAndHandle(t *testing.T) {
	dir := testutil.CreateTLSCertForTest(t)
	tcp := &ServerAddress{
		Address:     testutil.TCPAddress(t),
		TLSCertPath: filepath.Join(dir, testutil.CertFile),
		TLSKeyPath:  filepath.Join(dir, testutil.KeyFile),
	}
	unix := &ServerAddress{Address: testutil.UnixAddress(t, "handle")}
	newTestServerBase(t, tcp, unix)

	for _, d := range []*DialConfig{
		{Address: tcp.Address, CACertPath: tcp.TLSCertPath},
		{Address: tcp.Address},
		{Address: unix.Address},
	} {
		res := exchange(t, d, protocol.CertificateQueryType, &protocol.CertificateQuery{Epoch: 7})
		if err := res.Validate(); err != nil {
			t.Fatal(d.Address, err)
		}
		if c := res.DirectoryResponse.(*protocol.Certificate); c.Epoch != 7 {
			t.Error("Unexpected response", c)
		}

		res = exchange(t, d, protocol.LookupType, &protocol.LookupRequest{Identity: "alice"})
		if res.Error != protocol.ErrMalformedMessage {
			t.Error("Expect ErrMalformedMessage for a forbidden request, got", res.Error)
		}
	}
}

func TestShutdown(t *testing.T) {
	unix := &ServerAddress{Address: testutil.UnixAddress(t, "shutdown")}
	sb := newTestServerBase(t, unix)
	ran := make(chan struct{})
	sb.RunInBackground(func() {
		<-sb.Stopped()
		close(ran)
	})
	if err := sb.Shutdown(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-ran:
	default:
		t.Fatal("Shutdown returned before the background task")
	}
	d := &DialConfig{Address: unix.Address}
	if _, err := d.Exchange(context.Background(), []byte("{}")); err == nil {
		t.Error("Expect the listener to be closed")
	}
}
