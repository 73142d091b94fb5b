package deploy

import (
	"os"
	"testing"
	"time"

	"github.com/coniks-sys/keywitness/application"
	"github.com/coniks-sys/keywitness/application/server"
	"github.com/coniks-sys/keywitness/application/witness"
)

// A Running committee is a publisher and some of its witnesses
// started from a Layout, for _tests_.
type Running struct {
	Layout    *Layout
	Server    *server.Server
	Config    *server.Config
	Witnesses map[string]*witness.Server
	// WitnessConfigs holds the configs of every witness, started or
	// not.
	WitnessConfigs map[string]*witness.Config
}

// RunForTest lays out a committee of n witnesses kept in memory,
// starts the publisher with a short round timeout and the named
// witnesses, and shuts everything down when the test ends.
func RunForTest(t testing.TB, n int, online ...string) *Running {
	// unix socket paths must stay short
	dir, err := os.MkdirTemp("", "kw")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	l, err := Local(Options{
		Dir:       dir,
		Witnesses: n,
		Storage:   application.MemoryBackend,
	})
	if err != nil {
		t.Fatal(err)
	}
	r := &Running{
		Layout:         l,
		Witnesses:      make(map[string]*witness.Server),
		WitnessConfigs: make(map[string]*witness.Config),
	}
	for name, file := range l.Witnesses {
		conf := new(witness.Config)
		if err := conf.Load(file, "toml"); err != nil {
			t.Fatal(err)
		}
		r.WitnessConfigs[name] = conf
	}
	for _, name := range online {
		r.StartWitness(t, name)
	}
	r.Config = new(server.Config)
	if err := r.Config.Load(l.Server, "toml"); err != nil {
		t.Fatal(err)
	}
	r.Config.Policies.RoundTimeoutMs = 200
	if r.Server, err = server.New(r.Config); err != nil {
		t.Fatal(err)
	}
	if err := r.Server.Run(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Server.Shutdown() })
	return r
}

// StartWitness starts the named witness.
func (r *Running) StartWitness(t testing.TB, name string) *witness.Server {
	w, err := witness.New(r.WitnessConfigs[name])
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Run(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Shutdown() })
	r.Witnesses[name] = w
	return w
}

// WaitCertified polls the publisher until epoch is certified.
func (r *Running) WaitCertified(t testing.TB, epoch uint64) {
	t.Helper()
	d := r.Server.Directory()
	deadline := time.Now().Add(5 * time.Second)
	for d.LatestCertified() < epoch {
		if time.Now().After(deadline) {
			t.Fatalf("Epoch %d not certified, latest is %d", epoch, d.LatestCertified())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
