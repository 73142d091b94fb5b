// Package gormkv implements the kv interface on a single relational
// table through gorm, so a PostgreSQL deployment can host the
// directory, its certificates and witness state.
package gormkv

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coniks-sys/keywitness/storage/kv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Entry is one key-value row.
type Entry struct {
	Key   []byte `gorm:"type:bytea;primaryKey"`
	Value []byte `gorm:"type:bytea;not null"`
}

// TableName pins the table used by every deployment.
func (Entry) TableName() string { return "kv_entries" }

type gormkv struct {
	db *gorm.DB
}

// Open connects to the PostgreSQL database at dsn and migrates the
// kv table.
func Open(dsn string) (kv.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), config(log.New(os.Stderr, "\r\n", log.LstdFlags)))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return Wrap(gdb)
}

// config reports failed and slow statements to w. A missing key is a
// normal Get result, not a failure.
func config(w logger.Writer) *gorm.Config {
	return &gorm.Config{
		Logger: logger.New(w, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}
}

// Wrap uses an open gorm.DB as a kv.DB.
func Wrap(gdb *gorm.DB) (kv.DB, error) {
	if err := gdb.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrate kv table: %w", err)
	}
	return &gormkv{db: gdb}, nil
}

func (g *gormkv) Get(key []byte) ([]byte, error) {
	var e Entry
	if err := g.db.Where("key = ?", key).First(&e).Error; err != nil {
		return nil, err
	}
	return e.Value, nil
}

func (g *gormkv) Put(key, value []byte) error {
	return upsert(g.db, key, value)
}

func (g *gormkv) Delete(key []byte) error {
	return g.db.Where("key = ?", key).Delete(&Entry{}).Error
}

type op struct {
	key, value []byte
	del        bool
}

type batch struct {
	ops []op
}

func (b *batch) Reset() { b.ops = b.ops[:0] }

func (b *batch) Put(key, value []byte) {
	b.ops = append(b.ops, op{key: append([]byte{}, key...), value: append([]byte{}, value...)})
}

func (b *batch) Delete(key []byte) {
	b.ops = append(b.ops, op{key: append([]byte{}, key...), del: true})
}

func (g *gormkv) NewBatch() kv.Batch {
	return new(batch)
}

// Write applies the batch in one database transaction.
func (g *gormkv) Write(b kv.Batch) error {
	wb, ok := b.(*batch)
	if !ok {
		return fmt.Errorf("gormkv.Write: expected *gormkv.batch, got %T", b)
	}
	return g.db.Transaction(func(tx *gorm.DB) error {
		for _, o := range wb.ops {
			if o.del {
				if err := tx.Where("key = ?", o.key).Delete(&Entry{}).Error; err != nil {
					return err
				}
				continue
			}
			if err := upsert(tx, o.key, o.value); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsert(db *gorm.DB, key, value []byte) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&Entry{Key: key, Value: value}).Error
}

// NewIterator loads the range into memory. Ranges read by the
// directory are a single label's node versions or a short run of
// epochs.
func (g *gormkv) NewIterator(rg *kv.Range) kv.Iterator {
	q := g.db.Model(&Entry{}).Order("key")
	if rg != nil {
		if rg.Start != nil {
			q = q.Where("key >= ?", rg.Start)
		}
		if rg.Limit != nil {
			q = q.Where("key < ?", rg.Limit)
		}
	}
	var entries []Entry
	err := q.Find(&entries).Error
	it := &iterator{entries: entries, pos: -1, err: err}
	it.check()
	return it
}

func (g *gormkv) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (g *gormkv) ErrNotFound() error {
	return gorm.ErrRecordNotFound
}

type iterator struct {
	entries []Entry
	pos     int
	err     error
}

func (it *iterator) valid() bool { return it.pos >= 0 && it.pos < len(it.entries) }

func (it *iterator) Key() []byte {
	if !it.valid() {
		return nil
	}
	return it.entries[it.pos].Key
}

func (it *iterator) Value() []byte {
	if !it.valid() {
		return nil
	}
	return it.entries[it.pos].Value
}

func (it *iterator) First() bool {
	it.pos = 0
	return it.valid()
}

func (it *iterator) Next() bool {
	it.pos++
	return it.valid()
}

func (it *iterator) Last() bool {
	it.pos = len(it.entries) - 1
	return it.valid()
}

func (it *iterator) Release() { it.entries = nil }

func (it *iterator) Error() error { return it.err }

// sorted reports whether the entries are in key order; PostgreSQL
// orders bytea by unsigned byte comparison.
func sorted(entries []Entry) bool {
	for i := 1; i < len(entries); i++ {
		if bytes.Compare(entries[i-1].Key, entries[i].Key) >= 0 {
			return false
		}
	}
	return true
}

var errUnsorted = errors.New("[gormkv] range returned out of order")

func (it *iterator) check() {
	if it.err == nil && !sorted(it.entries) {
		it.err = errUnsorted
	}
}
