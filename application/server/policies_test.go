package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coniks-sys/keywitness/application"
)

func TestPoliciesDefaults(t *testing.T) {
	p := new(Policies)
	if p.EpochDeadline() != DefaultEpochDeadline || p.batchSize() != DefaultBatchSize {
		t.Error("Expect the defaults for a zero Policies")
	}
	if p.RoundTimeout() != 0 {
		t.Error("Expect the certifier's default round timeout")
	}
	p = NewPolicies(250*time.Millisecond, 8, 3*time.Second, 2, "vrf.priv", "sign.priv")
	if p.EpochDeadline() != 250*time.Millisecond || p.batchSize() != 8 || p.RoundTimeout() != 3*time.Second {
		t.Error("Unexpected policies", p)
	}
}

func TestLoadRequiresSections(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.toml")
	conf := NewConfig(file, "toml", nil, nil, "committee.toml",
		&application.StorageConfig{Backend: application.MemoryBackend},
		NewPolicies(time.Second, 1, time.Second, 1, "vrf.priv", "sign.priv"))
	if err := conf.Save(); err != nil {
		t.Fatal(err)
	}
	if err := new(Config).Load(file, "toml"); err == nil {
		t.Fatal("Expect an error without a [peer] section")
	}
}

func TestLoadMissingKeys(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.toml")
	conf := NewConfig(file, "toml", nil,
		&application.ServerAddress{Address: "unix:///tmp/peer.sock"}, "committee.toml",
		&application.StorageConfig{Backend: application.MemoryBackend},
		NewPolicies(time.Second, 1, time.Second, 1, "vrf.priv", "sign.priv"))
	if err := conf.Save(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sign.priv"), []byte("short"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := new(Config).Load(file, "toml"); err == nil {
		t.Fatal("Expect an error for a truncated signing key")
	}
}
