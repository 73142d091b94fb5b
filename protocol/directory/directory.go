// Package directory implements the key directory the publisher
// maintains: it turns batches of updates into epochs of the history
// tree, announces every epoch with a signed notification, and serves
// clients proofs for the epochs the witnesses have certified.
//
// Publishes are executed one at a time, in submission order, by a
// single worker goroutine. Queries only touch finalized epochs and
// run concurrently with publishing.
package directory

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"

	"github.com/coniks-sys/keywitness/crypto/sign"
	"github.com/coniks-sys/keywitness/crypto/vrf"
	"github.com/coniks-sys/keywitness/label"
	"github.com/coniks-sys/keywitness/merkletree"
	"github.com/coniks-sys/keywitness/metrics"
	"github.com/coniks-sys/keywitness/protocol"
	"github.com/coniks-sys/keywitness/protocol/certlog"
	"github.com/coniks-sys/keywitness/storage"
	"github.com/coniks-sys/keywitness/utils/binutils"
)

var (
	// ErrClosed is returned for work submitted after Close.
	ErrClosed = errors.New("[directory] Directory is closed")
	// ErrKeyMismatch indicates keys that differ from the committee's
	// record of the publisher.
	ErrKeyMismatch = errors.New("[directory] Keys do not match the committee")
)

// queueSize bounds the number of batches waiting to be published.
const queueSize = 64

// Config holds the directory's keys, storage and committee.
type Config struct {
	Store      *storage.Store
	VRFKey     vrf.PrivateKey
	SigningKey sign.PrivateKey
	Committee  *protocol.Committee
	Logger     *binutils.Logger
	Metrics    *metrics.Metrics
}

// PublishResult is the outcome of one submitted batch.
type PublishResult struct {
	Notification *protocol.Notification
	Err          error
}

type job struct {
	ctx     context.Context
	updates []protocol.Update
	result  chan PublishResult
}

// A Directory is the publisher's key directory.
type Directory struct {
	tree      *merkletree.Tree
	deriver   *label.Deriver
	sk        sign.PrivateKey
	committee *protocol.Committee
	store     *storage.Store
	certs     *certlog.Log
	log       *binutils.Logger
	metrics   *metrics.Metrics

	// certMu serializes RecordCertificate.
	certMu sync.Mutex

	queue     chan *job
	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}
}

// New opens the directory persisted in conf.Store and starts its
// publish worker.
func New(conf *Config) (*Directory, error) {
	if pk, ok := conf.SigningKey.Public(); !ok || !bytes.Equal(pk, conf.Committee.PublisherKey()) {
		return nil, ErrKeyMismatch
	}
	if conf.VRFKey.Public() != conf.Committee.VRFKey() {
		return nil, ErrKeyMismatch
	}
	tree, err := merkletree.New(conf.Store, conf.Committee.Hasher())
	if err != nil {
		return nil, err
	}
	certs, err := certlog.Open(conf.Store)
	if err != nil {
		return nil, err
	}
	logger := conf.Logger
	if logger == nil {
		logger = binutils.NewNopLogger()
	}
	d := &Directory{
		tree:      tree,
		deriver:   label.NewDeriver(conf.VRFKey),
		sk:        conf.SigningKey,
		committee: conf.Committee,
		store:     conf.Store,
		certs:     certs,
		log:       logger.Named("directory"),
		metrics:   conf.Metrics,
		queue:     make(chan *job, queueSize),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
	}
	go d.worker()
	return d, nil
}

// Close stops the publish worker after the batch in flight. Batches
// still queued fail with ErrClosed.
func (d *Directory) Close() {
	d.closeOnce.Do(func() { close(d.closing) })
	<-d.done
}

// Committee returns the directory's committee.
func (d *Directory) Committee() *protocol.Committee { return d.committee }

// LatestEpoch returns the latest finalized epoch, certified or not.
func (d *Directory) LatestEpoch() uint64 { return d.tree.LatestEpoch() }

// LatestCertified returns the latest certified epoch; 0 if only
// genesis is known.
func (d *Directory) LatestCertified() uint64 { return d.certs.Latest() }

func (d *Directory) worker() {
	defer close(d.done)
	for {
		select {
		case <-d.closing:
			for {
				select {
				case j := <-d.queue:
					j.result <- PublishResult{Err: ErrClosed}
				default:
					return
				}
			}
		case j := <-d.queue:
			if err := j.ctx.Err(); err != nil {
				j.result <- PublishResult{Err: err}
				continue
			}
			n, err := d.publish(j.updates)
			j.result <- PublishResult{Notification: n, Err: err}
		}
	}
}

// Submit queues a batch for publication and returns the channel its
// result is delivered on. Batches are published in the order Submit
// is called, one epoch each.
func (d *Directory) Submit(ctx context.Context, updates []protocol.Update) <-chan PublishResult {
	j := &job{ctx: ctx, updates: updates, result: make(chan PublishResult, 1)}
	select {
	case <-d.closing:
		j.result <- PublishResult{Err: ErrClosed}
	case <-ctx.Done():
		j.result <- PublishResult{Err: ctx.Err()}
	case d.queue <- j:
	}
	return j.result
}

// Publish publishes updates as the next epoch and returns its signed
// notification. If ctx ends before the batch is published the result
// is abandoned, but the batch may still be published.
func (d *Directory) Publish(ctx context.Context, updates []protocol.Update) (*protocol.Notification, error) {
	select {
	case r := <-d.Submit(ctx, updates):
		return r.Notification, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type staged struct {
	label []byte
	value []byte
}

// publish runs on the worker goroutine only.
func (d *Directory) publish(updates []protocol.Update) (*protocol.Notification, error) {
	batch := make([]staged, 0, len(updates))
	for _, u := range updates {
		if len(u.Value) == 0 {
			return nil, protocol.ErrMalformedUpdate
		}
		l, _, err := d.deriver.Derive(u.Identity)
		if err != nil {
			return nil, protocol.ErrMalformedUpdate
		}
		batch = append(batch, staged{label: l, value: u.Value})
	}

	latest := d.tree.LatestEpoch()
	current := make(map[string][]byte)
	for _, u := range batch {
		cur, ok := current[string(u.label)]
		if !ok {
			v, err := d.tree.Lookup(u.label, latest)
			switch {
			case err == nil:
				cur = v.Value
			case err != merkletree.ErrNotFound:
				return nil, err
			}
		}
		if bytes.Equal(cur, u.value) {
			continue
		}
		if err := d.tree.InsertOrUpdate(u.label, u.value); err != nil {
			d.tree.DiscardPending()
			return nil, err
		}
		current[string(u.label)] = u.value
	}

	epoch, _, err := d.tree.FinalizeEpoch()
	if err != nil {
		d.tree.DiscardPending()
		d.log.Error("finalize failed", "epoch", latest+1, "error", err)
		return nil, err
	}
	d.metrics.EpochPublished()
	n, err := d.notification(epoch)
	if err != nil {
		return nil, err
	}
	if err := d.storeNotification(n); err != nil {
		// the notification can always be rebuilt from the tree
		d.log.Warn("notification not persisted", "epoch", epoch, "error", err)
	}
	d.log.Info("published", "epoch", epoch, "updates", len(current), "root", n.Root)
	return n, nil
}

func (d *Directory) notification(epoch uint64) (*protocol.Notification, error) {
	rec, err := d.tree.Epoch(epoch)
	if err != nil {
		return nil, err
	}
	proof, err := d.tree.ProveHistory(epoch-1, epoch)
	if err != nil {
		return nil, err
	}
	n := &protocol.Notification{
		Epoch:    epoch,
		Root:     rec.Root,
		PrevRoot: rec.PrevRoot,
		Proof:    proof,
	}
	protocol.SignNotification(d.sk, n)
	return n, nil
}

const notificationKeyTag = 'P'

func notificationKey(epoch uint64) []byte {
	k := make([]byte, 9)
	k[0] = notificationKeyTag
	binary.BigEndian.PutUint64(k[1:], epoch)
	return k
}

func (d *Directory) storeNotification(n *protocol.Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	txn := d.store.Begin()
	txn.Put(notificationKey(n.Epoch), b)
	return txn.Commit()
}

// Notification returns the signed notification of a finalized epoch.
func (d *Directory) Notification(epoch uint64) (*protocol.Notification, error) {
	if epoch == 0 || epoch > d.tree.LatestEpoch() {
		return nil, protocol.ErrNotFound
	}
	b, err := d.store.Get(notificationKey(epoch))
	if err == nil {
		var n protocol.Notification
		if err := json.Unmarshal(b, &n); err == nil {
			return &n, nil
		}
	}
	return d.notification(epoch)
}

// PendingNotifications returns the notifications of the finalized
// epochs that are not certified yet, in epoch order.
func (d *Directory) PendingNotifications() ([]*protocol.Notification, error) {
	var out []*protocol.Notification
	for e := d.certs.Latest() + 1; e <= d.tree.LatestEpoch(); e++ {
		n, err := d.Notification(e)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// RecordCertificate verifies c and stores it. Certificates are
// recorded in epoch order; re-recording a stored certificate is a
// no-op.
func (d *Directory) RecordCertificate(c *protocol.Certificate) error {
	if err := c.Verify(d.committee); err != nil {
		return err
	}
	d.certMu.Lock()
	defer d.certMu.Unlock()
	if c.Epoch <= d.certs.Latest() {
		old, err := d.certs.Get(c.Epoch)
		if err != nil {
			return err
		}
		if !bytes.Equal(old.Root, c.Root) {
			return protocol.ErrConflictingCertificate
		}
		return nil
	}
	if c.Epoch != d.certs.Latest()+1 {
		return protocol.ErrOutOfOrder
	}
	root, err := d.tree.Root(c.Epoch)
	if err != nil {
		return protocol.ErrOutOfOrder
	}
	if !bytes.Equal(root, c.Root) {
		d.log.Error("certificate for a root never published", "epoch", c.Epoch)
		return protocol.ErrCertificateMismatch
	}
	if err := d.certs.Append(c); err != nil {
		return err
	}
	d.log.Info("certified", "epoch", c.Epoch, "signers", c.Signers)
	return nil
}

// GetCertificate returns the certificate of epoch, or of the latest
// certified epoch if epoch is 0.
func (d *Directory) GetCertificate(epoch uint64) (*protocol.Certificate, error) {
	epoch, err := d.certifiedEpoch(epoch)
	if err != nil {
		return nil, err
	}
	return d.certs.Get(epoch)
}

func (d *Directory) certifiedEpoch(epoch uint64) (uint64, error) {
	latest := d.certs.Latest()
	if epoch == 0 {
		epoch = latest
	}
	if epoch == 0 || epoch > latest {
		return 0, protocol.ErrEpochNotCertified
	}
	return epoch, nil
}

// Lookup returns a proof of identity's value, or of its absence, at a
// certified epoch. Epoch 0 selects the latest certified epoch.
func (d *Directory) Lookup(identity string, epoch uint64) (*protocol.LookupProof, error) {
	epoch, err := d.certifiedEpoch(epoch)
	if err != nil {
		return nil, err
	}
	l, vrfProof, err := d.deriver.Derive(identity)
	if err != nil {
		return nil, protocol.ErrMalformedMessage
	}
	cert, err := d.certs.Get(epoch)
	if err != nil {
		return nil, err
	}
	p := &protocol.LookupProof{
		Identity:    identity,
		Label:       l,
		VRFProof:    vrfProof,
		Epoch:       epoch,
		Certificate: cert,
	}
	p.Membership, err = d.tree.ProveMembership(l, epoch)
	switch {
	case err == merkletree.ErrNotFound:
		p.NonMembership, err = d.tree.ProveNonMembership(l, epoch)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}
	return p, nil
}

// KeyHistory returns every version of identity up to a certified
// epoch.
func (d *Directory) KeyHistory(identity string, epoch uint64) (*protocol.KeyHistory, error) {
	epoch, err := d.certifiedEpoch(epoch)
	if err != nil {
		return nil, err
	}
	l, vrfProof, err := d.deriver.Derive(identity)
	if err != nil {
		return nil, protocol.ErrMalformedMessage
	}
	cert, err := d.certs.Get(epoch)
	if err != nil {
		return nil, err
	}
	h, err := d.tree.ProveKeyHistory(l, epoch)
	if err == merkletree.ErrNotFound {
		return nil, protocol.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &protocol.KeyHistory{
		Identity:    identity,
		Label:       l,
		VRFProof:    vrfProof,
		Epoch:       epoch,
		History:     h,
		Certificate: cert,
	}, nil
}

// Audit proves that the root of certified epoch to extends the root
// of from. It requires from < to <= LatestCertified.
func (d *Directory) Audit(from, to uint64) (*protocol.Audit, error) {
	if from >= to {
		return nil, protocol.ErrMalformedMessage
	}
	if to > d.certs.Latest() {
		return nil, protocol.ErrEpochNotCertified
	}
	p, err := d.tree.ProveHistory(from, to)
	if err != nil {
		return nil, err
	}
	cert, err := d.certs.Get(to)
	if err != nil {
		return nil, err
	}
	return &protocol.Audit{Proof: p, Certificate: cert}, nil
}
