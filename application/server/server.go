// Package server implements the publisher: a key directory serving
// clients over sockets and HTTP, whose epochs are certified by the
// witness committee over the peer network.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/coniks-sys/keywitness/application"
	"github.com/coniks-sys/keywitness/application/gateway"
	"github.com/coniks-sys/keywitness/metrics"
	"github.com/coniks-sys/keywitness/network/socknet"
	"github.com/coniks-sys/keywitness/protocol"
	"github.com/coniks-sys/keywitness/protocol/consensus"
	"github.com/coniks-sys/keywitness/protocol/directory"
	"github.com/coniks-sys/keywitness/storage"
)

// A Server is the publisher. It wraps a Directory with a network
// layer which handles client requests, batches submitted updates into
// epochs, and drives the certification of every epoch.
type Server struct {
	*application.ServerBase
	conf      *Config
	store     *storage.Store
	dir       *directory.Directory
	peer      *socknet.Endpoint
	certifier *consensus.Certifier
	batcher   *directory.Batcher
	gateway   *gateway.Gateway
	limiter   *gateway.RedisLimiter
	metrics   *metrics.Metrics

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	// kick asks the feeder to look for uncertified epochs.
	kick    chan struct{}
	certify chan *protocol.Notification
}

// New opens the publisher's storage and directory.
func New(conf *Config) (*Server, error) {
	perms := make(map[*application.ServerAddress]map[int]bool)
	for _, addr := range conf.Addresses {
		perms[addr.ServerAddress] = map[int]bool{
			protocol.LookupType:           true,
			protocol.KeyHistoryType:       true,
			protocol.CertificateQueryType: true,
			protocol.AuditType:            true,
			protocol.PublishType:          addr.AllowPublish,
		}
	}
	sb := application.NewServerBase(conf.CommonConfig, "Listen", perms)

	store, err := conf.Storage.OpenStore(conf.Path)
	if err != nil {
		return nil, err
	}
	m := metrics.New()
	dir, err := directory.New(&directory.Config{
		Store:      store,
		VRFKey:     conf.Policies.vrfKey,
		SigningKey: conf.Policies.signKey,
		Committee:  conf.committee,
		Logger:     sb.Logger(),
		Metrics:    m,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	peer := socknet.New(&socknet.Config{
		Name:   conf.Name,
		Peers:  conf.peers(),
		Logger: sb.Logger(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	server := &Server{
		ServerBase: sb,
		conf:       conf,
		store:      store,
		dir:        dir,
		peer:       peer,
		certifier: consensus.New(&consensus.Config{
			Committee:  conf.committee,
			Network:    peer,
			Certs:      dir,
			Name:       conf.Name,
			Timeout:    conf.Policies.RoundTimeout(),
			MaxRetries: conf.Policies.MaxRetries,
			Logger:     sb.Logger(),
			Metrics:    m,
		}),
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		kick:    make(chan struct{}, 1),
		certify: make(chan *protocol.Notification),
	}
	server.batcher = directory.NewBatcher(conf.Policies.batchSize(),
		conf.Policies.EpochDeadline(), server.sealBatch)
	if g := conf.Gateway; g != nil {
		opts := gateway.Options{Logger: sb.Logger(), Metrics: m}
		if g.AllowPublish {
			opts.Submit = server.batcher.Add
		}
		if g.RedisAddress != "" {
			server.limiter, err = gateway.NewRedisLimiter(g.RedisAddress, g.RateLimit,
				time.Duration(g.WindowMs)*time.Millisecond)
			if err != nil {
				server.close()
				return nil, err
			}
			opts.Limiter = server.limiter
		}
		server.gateway = gateway.New(dir, opts)
	}
	return server, nil
}

// Directory returns the server's directory.
func (server *Server) Directory() *directory.Directory {
	return server.dir
}

// Run starts listening on every configured address and the peer
// address, and starts batching and certification. Epochs published
// before a restart and still uncertified are certified first.
func (server *Server) Run() error {
	if err := server.ListenAndServe(server.conf.Peer, server.peer.HandleConn); err != nil {
		return err
	}
	hasPublishPerm := false
	for _, addr := range server.conf.Addresses {
		hasPublishPerm = hasPublishPerm || addr.AllowPublish
		if err := server.ListenAndHandle(addr.ServerAddress, server.HandleRequests); err != nil {
			return err
		}
	}
	if !hasPublishPerm && (server.conf.Gateway == nil || !server.conf.Gateway.AllowPublish) {
		server.Logger().Warn("None of the addresses permit publishing")
	}
	if server.gateway != nil {
		server.RunInBackground(func() {
			if err := server.gateway.ListenAndServe(server.conf.Gateway.Address); err != nil {
				server.Logger().Error("Gateway stopped", "error", err)
			}
		})
	}

	server.RunInBackground(func() { server.batcher.Run(server.ctx) })
	server.RunInBackground(server.feed)
	server.RunInBackground(func() {
		if err := server.certifier.Run(server.ctx, server.certify); err != nil && server.ctx.Err() == nil {
			server.Logger().Error("Certification stopped", "error", err)
		}
	})
	server.RunInBackground(func() { server.HotReload(server.updatePolicies) })
	server.wake()
	return nil
}

// HandleRequests validates the request message and passes it to the
// appropriate operation handler according to the request type.
func (server *Server) HandleRequests(req *protocol.Request) *protocol.Response {
	switch msg := req.Request.(type) {
	case *protocol.LookupRequest:
		p, err := server.dir.Lookup(msg.Identity, msg.Epoch)
		if err != nil {
			return errorResponse(err)
		}
		return protocol.NewLookupResponse(p)
	case *protocol.KeyHistoryRequest:
		h, err := server.dir.KeyHistory(msg.Identity, msg.Epoch)
		if err != nil {
			return errorResponse(err)
		}
		return protocol.NewResponse(h)
	case *protocol.CertificateQuery:
		c, err := server.dir.GetCertificate(msg.Epoch)
		if err != nil {
			return errorResponse(err)
		}
		return protocol.NewResponse(c)
	case *protocol.AuditRequest:
		a, err := server.dir.Audit(msg.From, msg.To)
		if err != nil {
			return errorResponse(err)
		}
		return protocol.NewResponse(a)
	case *protocol.PublishRequest:
		n, err := server.dir.Publish(server.ctx, msg.Updates)
		if err != nil {
			return errorResponse(err)
		}
		server.wake()
		return protocol.NewResponse(&protocol.Published{Notification: n})
	}
	return protocol.NewErrorResponse(protocol.ErrMalformedMessage)
}

func errorResponse(err error) *protocol.Response {
	if code, ok := err.(protocol.ErrorCode); ok {
		return protocol.NewErrorResponse(code)
	}
	return protocol.NewErrorResponse(protocol.ErrDirectory)
}

func (server *Server) sealBatch(updates []protocol.Update) {
	n, err := server.dir.Publish(server.ctx, updates)
	if err != nil {
		server.Logger().Error("Batch not published", "updates", len(updates), "error", err)
		return
	}
	server.Logger().Info("Epoch published", "epoch", n.Epoch, "updates", len(updates))
	server.wake()
}

func (server *Server) wake() {
	select {
	case server.kick <- struct{}{}:
	default:
	}
}

// feed hands the uncertified epochs to the certifier in order. It
// looks again after every publish and every epoch deadline, so an
// epoch whose round failed is retried.
func (server *Server) feed() {
	ticker := time.NewTicker(server.conf.Policies.EpochDeadline())
	defer ticker.Stop()
	var next uint64
	for {
		select {
		case <-server.ctx.Done():
			return
		case <-server.kick:
		case <-ticker.C:
			next = 0
		}
		pending, err := server.dir.PendingNotifications()
		if err != nil {
			server.Logger().Error("Cannot read uncertified epochs", "error", err)
			continue
		}
		for _, n := range pending {
			if n.Epoch < next {
				continue
			}
			select {
			case server.certify <- n:
				next = n.Epoch + 1
			case <-server.ctx.Done():
				return
			}
		}
	}
}

func (server *Server) updatePolicies() {
	path, encoding := server.ConfigInfo()
	conf := new(Config)
	if err := conf.Load(path, encoding); err != nil {
		server.Logger().Error("Policies not reloaded", "error", err)
		return
	}
	server.certifier.SetRetryPolicy(conf.Policies.RoundTimeout(), conf.Policies.MaxRetries)
	server.conf.Policies.RoundTimeoutMs = conf.Policies.RoundTimeoutMs
	server.conf.Policies.MaxRetries = conf.Policies.MaxRetries
	server.Logger().Info("Policies reloaded!",
		"round timeout", conf.Policies.RoundTimeout(), "retries", conf.Policies.MaxRetries)
}

func (server *Server) close() {
	server.closeOnce.Do(func() {
		server.dir.Close()
		if server.limiter != nil {
			server.limiter.Close()
		}
		server.store.Close()
	})
}

// Shutdown stops accepting requests and votes, waits for the work in
// flight, and closes the directory and its storage.
func (server *Server) Shutdown() error {
	server.cancel()
	if server.gateway != nil {
		ctx, cancel := context.WithTimeout(context.Background(), application.ConnDeadline)
		server.gateway.Shutdown(ctx)
		cancel()
	}
	err := server.ServerBase.Shutdown()
	server.peer.Close()
	server.close()
	return err
}
