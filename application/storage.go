package application

import (
	"fmt"

	"github.com/coniks-sys/keywitness/storage"
	"github.com/coniks-sys/keywitness/storage/kv"
	"github.com/coniks-sys/keywitness/storage/kv/gormkv"
	"github.com/coniks-sys/keywitness/storage/kv/leveldbkv"
	"github.com/coniks-sys/keywitness/utils"
)

// Storage backends.
const (
	LevelDBBackend  = "leveldb"
	PostgresBackend = "postgres"
	MemoryBackend   = "memory"
)

// A StorageConfig selects where a server keeps its state: a leveldb
// directory, a PostgreSQL database, or memory (for tests).
type StorageConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path,omitempty"`
	DSN     string `toml:"dsn,omitempty"`
}

// OpenStore opens the configured backend. A relative leveldb path is
// resolved against the config file.
func (conf *StorageConfig) OpenStore(file string) (*storage.Store, error) {
	var (
		db  kv.DB
		err error
	)
	switch conf.Backend {
	case "", LevelDBBackend:
		if conf.Path == "" {
			return nil, fmt.Errorf("leveldb storage needs a path")
		}
		db, err = leveldbkv.OpenDB(utils.ResolvePath(conf.Path, file))
	case PostgresBackend:
		db, err = gormkv.Open(conf.DSN)
	case MemoryBackend:
		db = leveldbkv.OpenMemory()
	default:
		return nil, fmt.Errorf("Unknown storage backend %q", conf.Backend)
	}
	if err != nil {
		return nil, err
	}
	return storage.New(db), nil
}
