// Package witness implements the witness state machine: it checks
// every notification against the last certified root, votes for at
// most one root per epoch, and advances only on certificates.
package witness

import (
	"bytes"
	"context"
	"sync"

	"github.com/coniks-sys/keywitness/crypto/multisig"
	"github.com/coniks-sys/keywitness/merkletree"
	"github.com/coniks-sys/keywitness/metrics"
	"github.com/coniks-sys/keywitness/network"
	"github.com/coniks-sys/keywitness/protocol"
	"github.com/coniks-sys/keywitness/protocol/certlog"
	"github.com/coniks-sys/keywitness/storage"
	"github.com/coniks-sys/keywitness/utils/binutils"
)

// Config holds what a witness needs to run.
type Config struct {
	Name      string
	Signer    multisig.Signer
	Committee *protocol.Committee
	Store     *storage.Store
	Logger    *binutils.Logger
	Metrics   *metrics.Metrics
}

// A Witness votes on notifications and follows certificates.
type Witness struct {
	name      string
	signer    multisig.Signer
	committee *protocol.Committee
	store     *storage.Store
	certs     *certlog.Log
	log       *binutils.Logger
	metrics   *metrics.Metrics

	mu    sync.Mutex
	state *State
}

// New opens the witness state persisted in conf.Store, starting from
// the genesis root when there is none.
func New(conf *Config) (*Witness, error) {
	if _, ok := conf.Committee.Witness(conf.Name); !ok {
		return nil, protocol.ErrUnknownWitness
	}
	certs, err := certlog.Open(conf.Store)
	if err != nil {
		return nil, err
	}
	state, err := loadState(conf.Store)
	switch {
	case err == storage.ErrNotFound:
		state = &State{
			Root:      merkletree.GenesisRoot(conf.Committee.Hasher()),
			NextEpoch: 1,
		}
	case err != nil:
		return nil, err
	}
	logger := conf.Logger
	if logger == nil {
		logger = binutils.NewNopLogger()
	}
	return &Witness{
		name:      conf.Name,
		signer:    conf.Signer,
		committee: conf.Committee,
		store:     conf.Store,
		certs:     certs,
		log:       logger.With("witness", conf.Name),
		metrics:   conf.Metrics,
		state:     state,
	}, nil
}

// Name returns the witness's name in the committee.
func (w *Witness) Name() string { return w.name }

// Status returns a copy of the current state.
func (w *Witness) Status() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.clone()
}

func (w *Witness) abstain(n *protocol.Notification, code protocol.ErrorCode) error {
	w.log.Warn("refusing to vote", "epoch", n.Epoch, "root", n.Root, "reason", code.Error())
	w.metrics.Abstention(reasonOf(code))
	return code
}

// HandleNotification checks n and returns the witness's vote for it.
// A witness votes for at most one root per epoch: an identical
// notification gets the same vote again, a different one flags a
// conflict and is refused until a certificate settles the epoch.
// The first signed root of the epoch counts even when its proof
// fails, so a second root is a conflict whether or not the witness
// voted.
func (w *Witness) HandleNotification(n *protocol.Notification) (*protocol.Vote, error) {
	if !n.VerifySignature(w.committee.PublisherKey()) {
		return nil, w.abstain(n, protocol.ErrBadSignature)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.state
	switch {
	case n.Epoch < s.NextEpoch:
		return nil, w.abstain(n, protocol.ErrUnexpectedEpoch)
	case n.Epoch > s.NextEpoch:
		return nil, w.abstain(n, protocol.ErrMissingEarlierCertificates)
	}

	if s.Seen != nil && !bytes.Equal(s.Seen, n.Root) {
		if !s.Conflict {
			next := s.clone()
			next.Conflict = true
			if err := w.persist(&next, nil); err != nil {
				return nil, err
			}
			w.log.Error("publisher equivocated", "epoch", n.Epoch,
				"seen", s.Seen, "offered", n.Root)
		}
		return nil, w.abstain(n, protocol.ErrConflictingNotification)
	}
	if s.Lock != nil {
		v := *s.Lock
		return &v, nil
	}
	if s.Conflict {
		return nil, w.abstain(n, protocol.ErrConflictingNotification)
	}

	next := s.clone()
	next.Seen = append([]byte{}, n.Root...)
	if !bytes.Equal(n.PrevRoot, s.Root) || n.Proof == nil ||
		n.Proof.From != n.Epoch-1 || n.Proof.To != n.Epoch ||
		n.Proof.Verify(w.committee.Hasher(), s.Root, n.Root) != nil {
		if s.Seen == nil {
			if err := w.persist(&next, nil); err != nil {
				return nil, err
			}
		}
		return nil, w.abstain(n, protocol.ErrInvalidProof)
	}

	v := protocol.NewVote(w.signer, w.name, n.Epoch, n.Root)
	next.Lock = v
	if err := w.persist(&next, nil); err != nil {
		return nil, err
	}
	w.log.Info("voted", "epoch", n.Epoch, "root", n.Root)
	ret := *v
	return &ret, nil
}

// HandleCertificate verifies c and, if it certifies the next epoch,
// adopts its root whatever the witness voted for.
func (w *Witness) HandleCertificate(c *protocol.Certificate) error {
	if err := c.Verify(w.committee); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.state
	switch {
	case c.Epoch > s.NextEpoch:
		return protocol.ErrMissingEarlierCertificates
	case c.Epoch < s.NextEpoch:
		old, err := w.certs.Get(c.Epoch)
		if err == protocol.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		if !bytes.Equal(old.Root, c.Root) {
			w.log.Error("conflicting certificates", "epoch", c.Epoch,
				"stored", old.Root, "offered", c.Root)
			return protocol.ErrConflictingCertificate
		}
		return nil
	}

	if s.Lock != nil && !bytes.Equal(s.Lock.Root, c.Root) {
		w.log.Warn("certificate overrides the vote", "epoch", c.Epoch)
	}
	next := State{Root: append([]byte{}, c.Root...), NextEpoch: c.Epoch + 1}
	if err := w.persist(&next, c); err != nil {
		return err
	}
	w.log.Info("epoch certified", "epoch", c.Epoch, "root", c.Root)
	return nil
}

// HandleCertificateRequest returns the stored certificate of epoch.
func (w *Witness) HandleCertificateRequest(epoch uint64) (*protocol.Certificate, error) {
	return w.certs.Get(epoch)
}

// persist writes next, and c if not nil, in one transaction and makes
// next the current state. w.mu must be held.
func (w *Witness) persist(next *State, c *protocol.Certificate) error {
	txn := w.store.Begin()
	if c != nil {
		if err := w.certs.Stage(txn, c); err != nil {
			txn.Rollback()
			return err
		}
	}
	txn.Put(stateKey, next.encode())
	if err := txn.Commit(); err != nil {
		return err
	}
	if c != nil {
		w.certs.Committed(c)
	}
	w.state = next
	return nil
}

// Handle answers one protocol message. It returns nil when there is
// nothing to send back.
func (w *Witness) Handle(m *protocol.Message) *protocol.Message {
	switch m.Type {
	case protocol.NotificationType:
		if m.Notification == nil {
			return nil
		}
		v, err := w.HandleNotification(m.Notification)
		if err != nil {
			return w.errorReply(m.Notification.Epoch, err)
		}
		return protocol.NewVoteMessage(w.name, v)
	case protocol.CertificateType:
		if m.Certificate == nil {
			return nil
		}
		if err := w.HandleCertificate(m.Certificate); err != nil {
			if err == protocol.ErrMissingEarlierCertificates {
				return w.errorReply(m.Certificate.Epoch, err)
			}
			w.log.Warn("certificate rejected", "epoch", m.Certificate.Epoch, "error", err)
		}
	case protocol.CertificateRequestType:
		c, err := w.HandleCertificateRequest(m.Epoch)
		if err != nil {
			return protocol.NewErrorMessage(w.name, m.Epoch, protocol.ErrNotFound)
		}
		return protocol.NewCertificateMessage(w.name, c)
	}
	return nil
}

// errorReply reports a refusal. For missing certificates the epoch is
// the first one the witness lacks.
func (w *Witness) errorReply(epoch uint64, err error) *protocol.Message {
	code, ok := err.(protocol.ErrorCode)
	if !ok {
		w.log.Error("handling message failed", "epoch", epoch, "error", err)
		code = protocol.ErrDirectory
	}
	if code == protocol.ErrMissingEarlierCertificates {
		epoch = w.Status().NextEpoch
	}
	return protocol.NewErrorMessage(w.name, epoch, code)
}

// Run serves messages from n until ctx is done.
func (w *Witness) Run(ctx context.Context, n network.Network) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-n.Receive():
			if !ok {
				return network.ErrClosed
			}
			reply := w.Handle(m)
			if reply == nil {
				continue
			}
			if err := n.Send(ctx, m.From, reply); err != nil {
				w.log.Debug("reply not sent", "to", m.From, "error", err)
			}
		}
	}
}

func reasonOf(code protocol.ErrorCode) string {
	switch code {
	case protocol.ErrBadSignature:
		return "bad_signature"
	case protocol.ErrUnexpectedEpoch:
		return "unexpected_epoch"
	case protocol.ErrMissingEarlierCertificates:
		return "missing_certificates"
	case protocol.ErrConflictingNotification:
		return "conflicting_notification"
	case protocol.ErrInvalidProof:
		return "invalid_proof"
	}
	return "other"
}
