// Package memnet is an in-process network.Network for tests and
// single-binary deployments. A Hub connects named endpoints and can
// inject the faults a real network produces.
package memnet

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/coniks-sys/keywitness/network"
	"github.com/coniks-sys/keywitness/protocol"
)

// inboxSize bounds each endpoint's queue. Messages to a full inbox
// are dropped, like a congested link.
const inboxSize = 1024

// Faults configures fault injection. Rates are probabilities in [0, 1].
type Faults struct {
	DropRate      float64
	DuplicateRate float64
	MaxDelay      time.Duration
}

// A Filter decides whether a message from one party to another is
// delivered.
type Filter func(from, to string, m *protocol.Message) bool

// A Hub routes messages between its endpoints.
type Hub struct {
	mu        sync.Mutex
	endpoints map[string]*Endpoint
	faults    Faults
	filter    Filter
	rnd       *rand.Rand
	wg        sync.WaitGroup
}

// NewHub returns a reliable hub. seed makes fault injection
// reproducible.
func NewHub(seed int64) *Hub {
	return &Hub{
		endpoints: make(map[string]*Endpoint),
		rnd:       rand.New(rand.NewSource(seed)),
	}
}

// SetFaults replaces the fault configuration.
func (h *Hub) SetFaults(f Faults) {
	h.mu.Lock()
	h.faults = f
	h.mu.Unlock()
}

// SetFilter installs f; nil delivers everything.
func (h *Hub) SetFilter(f Filter) {
	h.mu.Lock()
	h.filter = f
	h.mu.Unlock()
}

// Join registers an endpoint named name, replacing any previous one.
func (h *Hub) Join(name string) *Endpoint {
	e := &Endpoint{
		hub:   h,
		name:  name,
		inbox: make(chan *protocol.Message, inboxSize),
		done:  make(chan struct{}),
	}
	h.mu.Lock()
	h.endpoints[name] = e
	h.mu.Unlock()
	return e
}

// Wait blocks until every delayed delivery has happened.
func (h *Hub) Wait() {
	h.wg.Wait()
}

func (h *Hub) route(from, to string, m *protocol.Message) error {
	h.mu.Lock()
	e, ok := h.endpoints[to]
	if !ok {
		h.mu.Unlock()
		return network.ErrUnknownPeer
	}
	if h.filter != nil && !h.filter(from, to, m) {
		h.mu.Unlock()
		return nil
	}
	copies := 1
	if h.rnd.Float64() < h.faults.DropRate {
		copies = 0
	} else if h.rnd.Float64() < h.faults.DuplicateRate {
		copies = 2
	}
	delays := make([]time.Duration, copies)
	if h.faults.MaxDelay > 0 {
		for i := range delays {
			delays[i] = time.Duration(h.rnd.Int63n(int64(h.faults.MaxDelay)))
		}
	}
	h.mu.Unlock()

	for _, d := range delays {
		if d == 0 {
			e.deliver(m)
			continue
		}
		h.wg.Add(1)
		time.AfterFunc(d, func() {
			defer h.wg.Done()
			e.deliver(m)
		})
	}
	return nil
}

func (h *Hub) peers(except string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.endpoints))
	for name := range h.endpoints {
		if name != except {
			out = append(out, name)
		}
	}
	return out
}

// An Endpoint is one party's view of the hub.
type Endpoint struct {
	hub   *Hub
	name  string
	inbox chan *protocol.Message

	closeOnce sync.Once
	done      chan struct{}
}

var _ network.Network = (*Endpoint)(nil)

// Name returns the endpoint's address.
func (e *Endpoint) Name() string { return e.name }

func (e *Endpoint) deliver(m *protocol.Message) {
	select {
	case <-e.done:
	case e.inbox <- m:
	default:
	}
}

// Broadcast sends m to every other endpoint.
func (e *Endpoint) Broadcast(ctx context.Context, m *protocol.Message) error {
	for _, to := range e.hub.peers(e.name) {
		if err := e.Send(ctx, to, m); err != nil && err != network.ErrUnknownPeer {
			return err
		}
	}
	return nil
}

// Send sends m to the endpoint named to.
func (e *Endpoint) Send(ctx context.Context, to string, m *protocol.Message) error {
	select {
	case <-e.done:
		return network.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return e.hub.route(e.name, to, m)
}

// Receive returns the endpoint's inbox.
func (e *Endpoint) Receive() <-chan *protocol.Message {
	return e.inbox
}

// Close stops delivery to the endpoint.
func (e *Endpoint) Close() {
	e.closeOnce.Do(func() { close(e.done) })
}
