// Package consensus drives certification rounds on the publisher
// side: it broadcasts the notification of an epoch, aggregates the
// witnesses' votes into a certificate, and brings lagging witnesses up
// to date with the certificates they miss.
package consensus

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/coniks-sys/keywitness/metrics"
	"github.com/coniks-sys/keywitness/network"
	"github.com/coniks-sys/keywitness/protocol"
	"github.com/coniks-sys/keywitness/protocol/aggregator"
	"github.com/coniks-sys/keywitness/utils/binutils"
)

// Defaults for Config.
const (
	DefaultTimeout    = 2 * time.Second
	DefaultMaxRetries = 3
)

// CertificateStore is where the certifier reads and records
// certificates. *directory.Directory implements it.
type CertificateStore interface {
	LatestCertified() uint64
	GetCertificate(epoch uint64) (*protocol.Certificate, error)
	RecordCertificate(c *protocol.Certificate) error
}

// Config holds the certifier's committee, network and retry policy.
type Config struct {
	Committee  *protocol.Committee
	Network    network.Network
	Certs      CertificateStore
	Name       string
	Timeout    time.Duration
	MaxRetries int
	Logger     *binutils.Logger
	Metrics    *metrics.Metrics
}

// State is the phase of the current round.
type State int

// Round states.
const (
	Idle State = iota
	AwaitingVotes
	Certified
	TimedOut
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingVotes:
		return "awaiting votes"
	case Certified:
		return "certified"
	case TimedOut:
		return "timed out"
	}
	return "unknown"
}

// A Certifier runs one round at a time. It must be the only reader of
// its network's Receive channel.
type Certifier struct {
	conf    Config
	log     *binutils.Logger
	metrics *metrics.Metrics

	// round serializes Certify.
	round sync.Mutex

	mu    sync.Mutex
	state State
	epoch uint64
}

// New returns an idle certifier.
func New(conf *Config) *Certifier {
	c := *conf
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	logger := c.Logger
	if logger == nil {
		logger = binutils.NewNopLogger()
	}
	return &Certifier{
		conf:    c,
		log:     logger.Named("certifier"),
		metrics: c.Metrics,
	}
}

// State returns the state of the latest round and its epoch.
func (c *Certifier) State() (State, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.epoch
}

// SetRetryPolicy changes the timeout and the number of retries of the
// rounds that start afterwards. Non-positive timeouts and negative
// retries leave the current value.
func (c *Certifier) SetRetryPolicy(timeout time.Duration, retries int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if timeout > 0 {
		c.conf.Timeout = timeout
	}
	if retries >= 0 {
		c.conf.MaxRetries = retries
	}
}

func (c *Certifier) policy() (time.Duration, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conf.Timeout, c.conf.MaxRetries
}

func (c *Certifier) setState(s State, epoch uint64) {
	c.mu.Lock()
	c.state, c.epoch = s, epoch
	c.mu.Unlock()
	c.log.Debug("round", "epoch", epoch, "state", s.String())
}

// Certify gathers a certificate for n, which must be the notification
// of the epoch after the latest certified one. The notification is
// broadcast again after every timeout, up to MaxRetries times, before
// giving up with ErrTimeout. The certificate is recorded and then
// broadcast to the witnesses.
func (c *Certifier) Certify(ctx context.Context, n *protocol.Notification) (*protocol.Certificate, error) {
	c.round.Lock()
	defer c.round.Unlock()

	latest := c.conf.Certs.LatestCertified()
	if n.Epoch <= latest && n.Epoch > 0 {
		cert, err := c.conf.Certs.GetCertificate(n.Epoch)
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(cert.Root, n.Root) {
			return nil, protocol.ErrCertificateMismatch
		}
		return cert, nil
	}
	if n.Epoch != latest+1 {
		return nil, protocol.ErrOutOfOrder
	}

	timeout, retries := c.policy()
	start := time.Now()
	agg := aggregator.New(c.conf.Committee, n.Epoch, n.Root)
	msg := protocol.NewNotificationMessage(c.conf.Name, n)
	c.setState(AwaitingVotes, n.Epoch)
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			c.log.Info("rebroadcasting notification", "epoch", n.Epoch, "attempt", attempt,
				"weight", agg.Weight())
		}
		if err := c.conf.Network.Broadcast(ctx, msg); err != nil {
			c.log.Warn("broadcast failed", "epoch", n.Epoch, "error", err)
		}
		cert, err := c.collect(ctx, n, msg, agg, timeout)
		if err != nil {
			c.setState(Idle, n.Epoch)
			return nil, err
		}
		if cert != nil {
			return c.finish(ctx, cert, start)
		}
		c.metrics.RoundTimeout()
		c.log.Warn("round timed out", "epoch", n.Epoch, "attempt", attempt, "weight", agg.Weight(),
			"quorum", c.conf.Committee.QuorumThreshold())
	}
	c.setState(TimedOut, n.Epoch)
	return nil, protocol.ErrTimeout
}

func (c *Certifier) finish(ctx context.Context, cert *protocol.Certificate, start time.Time) (*protocol.Certificate, error) {
	if err := c.conf.Certs.RecordCertificate(cert); err != nil {
		c.log.Error("recording certificate failed", "epoch", cert.Epoch, "error", err)
		c.setState(Idle, cert.Epoch)
		return nil, err
	}
	c.metrics.EpochCertified(cert.Epoch, time.Since(start))
	c.setState(Certified, cert.Epoch)
	if err := c.conf.Network.Broadcast(ctx, protocol.NewCertificateMessage(c.conf.Name, cert)); err != nil {
		c.log.Warn("certificate broadcast failed", "epoch", cert.Epoch, "error", err)
	}
	c.log.Info("epoch certified", "epoch", cert.Epoch, "signers", cert.Signers,
		"took", time.Since(start))
	return cert, nil
}

var appendVote = (*aggregator.Aggregator).Append

type appended struct {
	vote *protocol.Vote
	cert *protocol.Certificate
	err  error
}

// collect serves messages until a certificate forms, the round's
// timeout fires (nil, nil), or ctx is done. Vote signatures are
// checked concurrently; when the timer fires, votes still being
// checked are waited for, since one of them may complete the quorum.
func (c *Certifier) collect(ctx context.Context, n *protocol.Notification,
	msg *protocol.Message, agg *aggregator.Aggregator, timeout time.Duration) (*protocol.Certificate, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	done := make(chan struct{})
	defer close(done)
	results := make(chan appended)
	var inflight sync.WaitGroup
	check := appendVote

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			inflight.Wait()
			return agg.Certificate(), nil
		case r := <-results:
			if r.err != nil {
				c.metrics.Vote(resultOf(r.err))
				c.log.Debug("vote rejected", "epoch", n.Epoch, "witness", r.vote.Witness, "error", r.err)
				continue
			}
			c.metrics.Vote("accepted")
			if r.cert != nil {
				return r.cert, nil
			}
		case m, ok := <-c.conf.Network.Receive():
			if !ok {
				return nil, network.ErrClosed
			}
			switch m.Type {
			case protocol.VoteType:
				if m.Vote == nil || m.Vote.Epoch != n.Epoch {
					continue
				}
				inflight.Add(1)
				go func(v *protocol.Vote) {
					cert, err := check(agg, v)
					inflight.Done()
					select {
					case results <- appended{vote: v, cert: cert, err: err}:
					case <-done:
					}
				}(m.Vote)
			case protocol.ErrorType:
				c.refused(ctx, m, n, msg)
			case protocol.CertificateRequestType:
				c.answer(ctx, m)
			}
		}
	}
}

// Run certifies the notifications received on pending, in order,
// until ctx is done or pending is closed. A notification whose round
// times out is tried again until it is certified. Between rounds Run
// answers the witnesses' certificate requests.
func (c *Certifier) Run(ctx context.Context, pending <-chan *protocol.Notification) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-c.conf.Network.Receive():
			if !ok {
				return network.ErrClosed
			}
			if m.Type == protocol.CertificateRequestType {
				c.answer(ctx, m)
			}
		case n, ok := <-pending:
			if !ok {
				return nil
			}
			if err := c.certifyUntilDone(ctx, n); err != nil {
				return err
			}
		}
	}
}

func (c *Certifier) certifyUntilDone(ctx context.Context, n *protocol.Notification) error {
	for {
		_, err := c.Certify(ctx, n)
		switch err {
		case nil:
			return nil
		case protocol.ErrTimeout:
			continue
		case context.Canceled, context.DeadlineExceeded, network.ErrClosed:
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Error("notification dropped", "epoch", n.Epoch, "error", err)
		return nil
	}
}

func (c *Certifier) refused(ctx context.Context, m *protocol.Message, n *protocol.Notification, msg *protocol.Message) {
	if m.Error != protocol.ErrMissingEarlierCertificates {
		if m.Epoch == n.Epoch {
			c.log.Warn("witness refused to vote", "epoch", n.Epoch, "witness", m.From,
				"reason", m.Error.Error())
		}
		return
	}
	if m.Epoch >= n.Epoch {
		return
	}
	if err := c.Sync(ctx, m.From, m.Epoch, n.Epoch-1); err != nil {
		c.log.Warn("synchronization failed", "witness", m.From, "error", err)
		return
	}
	if err := c.conf.Network.Send(ctx, m.From, msg); err != nil {
		c.log.Warn("notification not resent", "witness", m.From, "error", err)
	}
}

// Sync sends the certificates of epochs from through to to a lagging
// witness, in epoch order.
func (c *Certifier) Sync(ctx context.Context, to string, from, upto uint64) error {
	if from == 0 {
		from = 1
	}
	c.log.Info("synchronizing witness", "witness", to, "from", from, "to", upto)
	for e := from; e <= upto; e++ {
		cert, err := c.conf.Certs.GetCertificate(e)
		if err != nil {
			return err
		}
		if err := c.conf.Network.Send(ctx, to, protocol.NewCertificateMessage(c.conf.Name, cert)); err != nil {
			return err
		}
		c.metrics.CertificateSynced()
	}
	return nil
}

func (c *Certifier) answer(ctx context.Context, m *protocol.Message) {
	reply := protocol.NewErrorMessage(c.conf.Name, m.Epoch, protocol.ErrNotFound)
	if m.Epoch > 0 {
		if cert, err := c.conf.Certs.GetCertificate(m.Epoch); err == nil {
			reply = protocol.NewCertificateMessage(c.conf.Name, cert)
		}
	}
	if err := c.conf.Network.Send(ctx, m.From, reply); err != nil {
		c.log.Debug("reply not sent", "to", m.From, "error", err)
	}
}

func resultOf(err error) string {
	switch err {
	case protocol.ErrUnexpectedVote:
		return "unexpected_vote"
	case protocol.ErrUnknownWitness:
		return "unknown_witness"
	case protocol.ErrWitnessReuse:
		return "witness_reuse"
	case protocol.ErrInvalidVote:
		return "invalid_vote"
	}
	return "error"
}
