// Package network defines the transport the publisher and the
// witnesses exchange protocol messages over. Delivery is unordered
// and at-least-once: messages may be dropped, duplicated or delayed,
// and the protocol tolerates all three.
package network

import (
	"context"
	"errors"

	"github.com/coniks-sys/keywitness/protocol"
)

// ErrUnknownPeer is returned by Send for an address nobody listens on.
var ErrUnknownPeer = errors.New("[network] Unknown peer")

// ErrClosed is returned after the endpoint is closed.
var ErrClosed = errors.New("[network] Endpoint closed")

// A Network is one party's endpoint.
type Network interface {
	// Broadcast sends m to every other party.
	Broadcast(ctx context.Context, m *protocol.Message) error
	// Send sends m to the party named to.
	Send(ctx context.Context, to string, m *protocol.Message) error
	// Receive returns the channel incoming messages are delivered on.
	Receive() <-chan *protocol.Message
}
