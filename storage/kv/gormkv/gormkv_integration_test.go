//go:build integration
// +build integration

package gormkv

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/coniks-sys/keywitness/storage/kv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) kv.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db, err := Wrap(gdb)
	if err != nil {
		t.Fatalf("wrap db: %v", err)
	}
	if err := gdb.Exec("DELETE FROM kv_entries").Error; err != nil {
		t.Fatalf("reset db: %v", err)
	}
	return db
}

func TestBatchAndLatest(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	b := db.NewBatch()
	b.Put([]byte("a1"), []byte("x"))
	b.Put([]byte("a2"), []byte("y"))
	b.Put([]byte("a2"), []byte("y2"))
	b.Put([]byte("b1"), []byte("z"))
	if err := db.Write(b); err != nil {
		t.Fatal(err)
	}

	k, v, ok, err := kv.Latest(db, kv.Prefix([]byte("a")))
	if err != nil || !ok {
		t.Fatal("Expect a key in range", err)
	}
	if !bytes.Equal(k, []byte("a2")) || !bytes.Equal(v, []byte("y2")) {
		t.Fatal("Unexpected latest entry", string(k), string(v))
	}
	if _, err := db.Get([]byte("missing")); err != db.ErrNotFound() {
		t.Fatal("Expect", db.ErrNotFound(), "got", err)
	}
}
