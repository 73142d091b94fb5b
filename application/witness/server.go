// Package witness runs a committee member: it receives the
// publisher's notifications and certificates on its peer address,
// answers with votes, and serves the certificates it has stored to
// clients who want to cross-check the publisher.
package witness

import (
	"context"
	"sync"

	"github.com/coniks-sys/keywitness/application"
	"github.com/coniks-sys/keywitness/metrics"
	"github.com/coniks-sys/keywitness/network/socknet"
	"github.com/coniks-sys/keywitness/protocol"
	"github.com/coniks-sys/keywitness/protocol/witness"
	"github.com/coniks-sys/keywitness/storage"
)

// A Server runs one witness.
type Server struct {
	*application.ServerBase
	conf    *Config
	store   *storage.Store
	witness *witness.Witness
	peer    *socknet.Endpoint

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New opens the witness's storage and state.
func New(conf *Config) (*Server, error) {
	perms := make(map[*application.ServerAddress]map[int]bool)
	for _, addr := range conf.Addresses {
		perms[addr] = map[int]bool{protocol.CertificateQueryType: true}
	}
	sb := application.NewServerBase(conf.CommonConfig, "Listen", perms)

	store, err := conf.Storage.OpenStore(conf.Path)
	if err != nil {
		return nil, err
	}
	w, err := witness.New(&witness.Config{
		Name:      conf.Name,
		Signer:    conf.signer,
		Committee: conf.committee,
		Store:     store,
		Logger:    sb.Logger(),
		Metrics:   metrics.New(),
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		ServerBase: sb,
		conf:       conf,
		store:      store,
		witness:    w,
		peer: socknet.New(&socknet.Config{
			Name:   conf.Name,
			Peers:  map[string]*application.DialConfig{conf.PublisherName: conf.Publisher},
			Logger: sb.Logger(),
		}),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Witness returns the server's witness.
func (server *Server) Witness() *witness.Witness {
	return server.witness
}

// Run starts listening on the peer address and the client addresses.
func (server *Server) Run() error {
	if err := server.ListenAndServe(server.conf.Peer, server.peer.HandleConn); err != nil {
		return err
	}
	for _, addr := range server.conf.Addresses {
		if err := server.ListenAndHandle(addr, server.HandleRequests); err != nil {
			return err
		}
	}
	server.RunInBackground(func() {
		err := server.witness.Run(server.ctx, server.peer)
		if err != nil && server.ctx.Err() == nil {
			server.Logger().Error("Witness stopped", "error", err)
		}
	})
	s := server.witness.Status()
	server.Logger().Info("Witness ready", "name", server.conf.Name, "next epoch", s.NextEpoch)
	return nil
}

// HandleRequests answers certificate queries. Epoch 0 selects the
// latest certificate the witness has.
func (server *Server) HandleRequests(req *protocol.Request) *protocol.Response {
	q, ok := req.Request.(*protocol.CertificateQuery)
	if !ok {
		return protocol.NewErrorResponse(protocol.ErrMalformedMessage)
	}
	epoch := q.Epoch
	if epoch == 0 {
		epoch = server.witness.Status().NextEpoch - 1
	}
	c, err := server.witness.HandleCertificateRequest(epoch)
	if err != nil {
		return protocol.NewErrorResponse(protocol.ErrEpochNotCertified)
	}
	return protocol.NewResponse(c)
}

// Shutdown stops the witness and closes its storage.
func (server *Server) Shutdown() error {
	server.cancel()
	err := server.ServerBase.Shutdown()
	server.peer.Close()
	server.closeOnce.Do(func() { server.store.Close() })
	return err
}
