package leveldbkv

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/coniks-sys/keywitness/storage/kv"
)

func TestBatchAndRange(t *testing.T) {
	db := OpenMemory()
	defer db.Close()

	b := db.NewBatch()
	b.Put([]byte("a1"), []byte("x"))
	b.Put([]byte("a2"), []byte("y"))
	b.Put([]byte("b1"), []byte("z"))
	if err := db.Write(b); err != nil {
		t.Fatal(err)
	}

	k, v, ok, err := kv.Latest(db, kv.Prefix([]byte("a")))
	if err != nil || !ok {
		t.Fatal("Expect a key in range", err)
	}
	if !bytes.Equal(k, []byte("a2")) || !bytes.Equal(v, []byte("y")) {
		t.Fatal("Unexpected latest entry", string(k), string(v))
	}

	_, _, ok, err = kv.Latest(db, kv.Prefix([]byte("c")))
	if err != nil || ok {
		t.Fatal("Expect an empty range")
	}

	if _, err := db.Get([]byte("missing")); err != db.ErrNotFound() {
		t.Fatal("Expect", db.ErrNotFound(), "got", err)
	}
}

func TestPersistence(t *testing.T) {
	dir, err := os.MkdirTemp("", "leveldbkv")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "db")

	db, err := OpenDB(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = OpenDB(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	v, err := db.Get([]byte("k"))
	if err != nil || !bytes.Equal(v, []byte("v")) {
		t.Fatal("Value lost across reopen", err)
	}
}
