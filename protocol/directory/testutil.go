package directory

import (
	"context"
	"testing"

	"github.com/coniks-sys/keywitness/crypto"
	"github.com/coniks-sys/keywitness/crypto/multisig"
	"github.com/coniks-sys/keywitness/protocol"
	"github.com/coniks-sys/keywitness/storage"
	"github.com/coniks-sys/keywitness/storage/kv/leveldbkv"
)

// NewTestDirectory returns a directory backed by memory with the
// static publisher keys and a committee of n unit-power witnesses
// using the naive scheme, for _tests_. The directory is closed when
// the test ends.
func NewTestDirectory(t testing.TB, n int) (*Directory, map[string]multisig.Signer) {
	c, signers := protocol.NewTestCommittee(n, "")
	d, err := New(&Config{
		Store:      storage.New(leveldbkv.OpenMemory()),
		VRFKey:     crypto.NewStaticTestVRFKey(),
		SigningKey: crypto.NewStaticTestSigningKey(),
		Committee:  c,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(d.Close)
	return d, signers
}

// CertifyForTest publishes updates and certifies the new epoch with
// the votes of the named witnesses, for _tests_.
func CertifyForTest(t testing.TB, d *Directory, signers map[string]multisig.Signer,
	updates []protocol.Update, names ...string) *protocol.Notification {
	n, err := d.Publish(context.Background(), updates)
	if err != nil {
		t.Fatal(err)
	}
	c := protocol.NewTestCertificate(d.Committee(), signers, n.Epoch, n.Root, names...)
	if err := d.RecordCertificate(c); err != nil {
		t.Fatal(err)
	}
	return n
}
