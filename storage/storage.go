// Package storage provides the transactional contract the history
// tree, the certificate log and witnesses persist through. A Store
// wraps a kv.DB; a Txn buffers writes and commits them as one atomic
// batch. At most one transaction is open at a time.
package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/coniks-sys/keywitness/storage/kv"
)

// ErrNotFound is returned when a key is absent.
var ErrNotFound = errors.New("[storage] Not found")

// ErrTxnDone is returned when a committed or rolled back
// transaction is used again.
var ErrTxnDone = errors.New("[storage] Transaction already finished")

// Error wraps a failure of the underlying database.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("[storage] %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// A Store serializes transactions over a kv.DB.
type Store struct {
	db    kv.DB
	txnMu sync.Mutex
}

// New returns a Store backed by db.
func New(db kv.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database.
func (s *Store) DB() kv.DB {
	return s.db
}

// Get reads a committed value.
func (s *Store) Get(key []byte) ([]byte, error) {
	v, err := s.db.Get(key)
	switch {
	case err == s.db.ErrNotFound():
		return nil, ErrNotFound
	case err != nil:
		return nil, &Error{Op: "get", Err: err}
	}
	return v, nil
}

// Latest returns the greatest committed key in [start, limit) and its
// value, or ErrNotFound.
func (s *Store) Latest(start, limit []byte) ([]byte, []byte, error) {
	return s.latest(&kv.Range{Start: start, Limit: limit})
}

// LatestWithPrefix is Latest over the keys starting with prefix.
func (s *Store) LatestWithPrefix(prefix []byte) ([]byte, []byte, error) {
	return s.latest(kv.Prefix(prefix))
}

func (s *Store) latest(rg *kv.Range) ([]byte, []byte, error) {
	k, v, ok, err := kv.Latest(s.db, rg)
	if err != nil {
		return nil, nil, &Error{Op: "range", Err: err}
	}
	if !ok {
		return nil, nil, ErrNotFound
	}
	return k, v, nil
}

// Scan calls f on every committed entry in [start, limit) in key
// order, stopping early if f returns false.
func (s *Store) Scan(start, limit []byte, f func(k, v []byte) bool) error {
	return s.scan(&kv.Range{Start: start, Limit: limit}, f)
}

// ScanPrefix is Scan over the keys starting with prefix.
func (s *Store) ScanPrefix(prefix []byte, f func(k, v []byte) bool) error {
	return s.scan(kv.Prefix(prefix), f)
}

func (s *Store) scan(rg *kv.Range, f func(k, v []byte) bool) error {
	it := s.db.NewIterator(rg)
	defer it.Release()
	for ok := it.First(); ok; ok = it.Next() {
		if !f(append([]byte{}, it.Key()...), append([]byte{}, it.Value()...)) {
			break
		}
	}
	if err := it.Error(); err != nil {
		return &Error{Op: "scan", Err: err}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin opens a transaction. It blocks while another transaction is
// open; every transaction must end in Commit or Rollback.
func (s *Store) Begin() *Txn {
	s.txnMu.Lock()
	return &Txn{
		s:      s,
		batch:  s.db.NewBatch(),
		writes: make(map[string][]byte),
	}
}

// A Txn buffers writes until Commit.
type Txn struct {
	s      *Store
	batch  kv.Batch
	writes map[string][]byte
	done   bool
}

// Get reads key, observing the transaction's own writes.
func (t *Txn) Get(key []byte) ([]byte, error) {
	if v, ok := t.writes[string(key)]; ok {
		return v, nil
	}
	return t.s.Get(key)
}

// Put stages a write.
func (t *Txn) Put(key, value []byte) {
	t.writes[string(key)] = value
	t.batch.Put(key, value)
}

// Len returns the number of staged writes.
func (t *Txn) Len() int {
	return len(t.writes)
}

// Commit writes all staged puts atomically and ends the transaction.
func (t *Txn) Commit() error {
	if t.done {
		return ErrTxnDone
	}
	t.done = true
	defer t.s.txnMu.Unlock()
	if err := t.s.db.Write(t.batch); err != nil {
		return &Error{Op: "commit", Err: err}
	}
	return nil
}

// Rollback discards the staged writes and ends the transaction.
// Calling Rollback after Commit is a no-op.
func (t *Txn) Rollback() {
	if t.done {
		return
	}
	t.done = true
	t.batch.Reset()
	t.s.txnMu.Unlock()
}
