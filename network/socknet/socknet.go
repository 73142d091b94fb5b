// Package socknet carries protocol messages between the publisher and
// the witnesses over tcp+TLS or unix sockets. Every message travels on
// its own connection: the sender writes the JSON encoding and closes.
package socknet

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/coniks-sys/keywitness/application"
	"github.com/coniks-sys/keywitness/network"
	"github.com/coniks-sys/keywitness/protocol"
	"github.com/coniks-sys/keywitness/utils/binutils"
)

const inboxSize = 1024

// Config names the local party and where every other party listens.
type Config struct {
	Name   string
	Peers  map[string]*application.DialConfig
	Logger *binutils.Logger
}

// An Endpoint is one party's socket transport. Incoming connections
// reach it through HandleConn, which a ServerBase serves.
type Endpoint struct {
	name  string
	peers map[string]*application.DialConfig
	log   *binutils.Logger
	inbox chan *protocol.Message

	closeOnce sync.Once
	done      chan struct{}
}

var _ network.Network = (*Endpoint)(nil)

// New returns an endpoint for conf.Name. Peers named conf.Name are
// ignored.
func New(conf *Config) *Endpoint {
	logger := conf.Logger
	if logger == nil {
		logger = binutils.NewNopLogger()
	}
	peers := make(map[string]*application.DialConfig, len(conf.Peers))
	for name, d := range conf.Peers {
		if name != conf.Name {
			peers[name] = d
		}
	}
	return &Endpoint{
		name:  conf.Name,
		peers: peers,
		log:   logger.Named("socknet"),
		inbox: make(chan *protocol.Message, inboxSize),
		done:  make(chan struct{}),
	}
}

// Name returns the local party's name.
func (e *Endpoint) Name() string { return e.name }

// Broadcast sends m to every peer in parallel. The errors of the
// peers that could not be reached are joined.
func (e *Endpoint) Broadcast(ctx context.Context, m *protocol.Message) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for name := range e.peers {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := e.Send(ctx, name, m); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(name)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Send dials the peer named to and writes m.
func (e *Endpoint) Send(ctx context.Context, to string, m *protocol.Message) error {
	select {
	case <-e.done:
		return network.ErrClosed
	default:
	}
	d, ok := e.peers[to]
	if !ok {
		return network.ErrUnknownPeer
	}
	msg, err := application.MarshalMessage(m)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, application.ConnDeadline)
	defer cancel()
	conn, err := d.Dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	_, err = conn.Write(msg)
	return err
}

// HandleConn reads one message from conn and queues it for Receive.
// Malformed messages and messages claiming to come from the local
// party are dropped, and so are messages that find the inbox full.
func (e *Endpoint) HandleConn(conn net.Conn) {
	msg, err := application.ReadMessage(conn)
	if err != nil {
		e.log.Debug("read failed", "address", conn.RemoteAddr().String(), "error", err)
		return
	}
	m, err := application.UnmarshalMessage(msg)
	if err != nil || m.From == e.name {
		e.log.Warn("dropped malformed message", "address", conn.RemoteAddr().String())
		return
	}
	select {
	case <-e.done:
	case e.inbox <- m:
	default:
		e.log.Warn("inbox full, dropped message", "from", m.From, "type", m.Type)
	}
}

// Receive returns the endpoint's inbox.
func (e *Endpoint) Receive() <-chan *protocol.Message {
	return e.inbox
}

// Close stops sending and delivery.
func (e *Endpoint) Close() {
	e.closeOnce.Do(func() { close(e.done) })
}
