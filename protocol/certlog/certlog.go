// Package certlog persists certificates by epoch. The log is
// append-only and never pruned: epoch E is accepted only once E-1 is
// in the log.
package certlog

import (
	"encoding/binary"
	"sync"

	"github.com/coniks-sys/keywitness/protocol"
	"github.com/coniks-sys/keywitness/storage"
)

const certKeyTag = 'C'

func certKey(epoch uint64) []byte {
	k := make([]byte, 9)
	k[0] = certKeyTag
	binary.BigEndian.PutUint64(k[1:], epoch)
	return k
}

// A Log stores the certificates of one directory.
type Log struct {
	store *storage.Store

	mu     sync.RWMutex
	latest uint64
}

// Open loads the log persisted in store.
func Open(store *storage.Store) (*Log, error) {
	l := &Log{store: store}
	k, _, err := store.LatestWithPrefix([]byte{certKeyTag})
	switch {
	case err == storage.ErrNotFound:
		return l, nil
	case err != nil:
		return nil, err
	}
	l.latest = binary.BigEndian.Uint64(k[1:])
	return l, nil
}

// Latest returns the latest certified epoch, or 0 if nothing has been
// certified beyond genesis.
func (l *Log) Latest() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.latest
}

// Get returns the certificate of epoch, or protocol.ErrNotFound.
func (l *Log) Get(epoch uint64) (*protocol.Certificate, error) {
	v, err := l.store.Get(certKey(epoch))
	switch {
	case err == storage.ErrNotFound:
		return nil, protocol.ErrNotFound
	case err != nil:
		return nil, err
	}
	return protocol.DecodeCertificate(v)
}

// Append stores c, which must certify the epoch after Latest.
// Verifying c is the caller's job.
func (l *Log) Append(c *protocol.Certificate) error {
	txn := l.store.Begin()
	if err := l.Stage(txn, c); err != nil {
		txn.Rollback()
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	l.Committed(c)
	return nil
}

// Stage writes c into txn so it commits together with other state.
// The caller reports a successful commit with Committed.
func (l *Log) Stage(txn *storage.Txn, c *protocol.Certificate) error {
	if c.Epoch != l.Latest()+1 {
		return protocol.ErrOutOfOrder
	}
	txn.Put(certKey(c.Epoch), c.Encode())
	return nil
}

// Committed advances Latest after a transaction holding c committed.
func (l *Log) Committed(c *protocol.Certificate) {
	l.mu.Lock()
	if c.Epoch > l.latest {
		l.latest = c.Epoch
	}
	l.mu.Unlock()
}

// Range returns the certificates of epochs [from, to].
func (l *Log) Range(from, to uint64) ([]*protocol.Certificate, error) {
	var out []*protocol.Certificate
	var derr error
	err := l.store.Scan(certKey(from), certKey(to+1), func(_, v []byte) bool {
		c, err := protocol.DecodeCertificate(v)
		if err != nil {
			derr = err
			return false
		}
		out = append(out, c)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, derr
}
