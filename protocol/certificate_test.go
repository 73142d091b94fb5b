package protocol

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/coniks-sys/keywitness/crypto"
	"github.com/coniks-sys/keywitness/crypto/multisig"
	"github.com/coniks-sys/keywitness/crypto/multisig/bls"
	"github.com/coniks-sys/keywitness/crypto/multisig/naive"
)

func TestThresholds(t *testing.T) {
	for _, tc := range []struct {
		n              int
		quorum, validy uint64
	}{
		{1, 1, 1},
		{3, 3, 1},
		{4, 3, 2},
		{7, 5, 3},
		{10, 7, 4},
	} {
		c, _ := NewTestCommittee(tc.n, "")
		if c.QuorumThreshold() != tc.quorum || c.ValidityThreshold() != tc.validy {
			t.Error("Unexpected thresholds for", tc.n, "witnesses:",
				c.QuorumThreshold(), c.ValidityThreshold())
		}
	}
}

func TestNewCommitteeValidation(t *testing.T) {
	c, _ := NewTestCommittee(2, "")
	good := c.Config()

	dup := c.Config()
	dup.Witnesses[1].Name = dup.Witnesses[0].Name
	noPower := c.Config()
	noPower.Witnesses[0].Power = 0
	badKey := c.Config()
	badKey.Witnesses[0].PublicKey = []byte{1, 2, 3}
	empty := c.Config()
	empty.Witnesses = nil
	for _, conf := range []CommitteeConfig{dup, noPower, badKey, empty} {
		conf := conf
		if _, err := NewCommittee(&conf); !errors.Is(err, ErrMalformedCommittee) {
			t.Error("Expect", ErrMalformedCommittee, "got", err)
		}
	}
	unknown := c.Config()
	unknown.Scheme = "rot13"
	if _, err := NewCommittee(&unknown); err == nil {
		t.Error("Expect an error for an unknown scheme")
	}
	if _, err := NewCommittee(&good); err != nil {
		t.Error(err)
	}
}

func testCertificates(t *testing.T, schemeID string) {
	c, signers := NewTestCommittee(4, schemeID)
	root := crypto.Digest([]byte("root"))

	cert := NewTestCertificate(c, signers, 3, root, "w0", "w2", "w3")
	if err := cert.Verify(c); err != nil {
		t.Fatal("valid certificate rejected", err)
	}

	below := NewTestCertificate(c, signers, 3, root, "w0", "w2")
	if err := below.Verify(c); err != ErrQuorumNotReached {
		t.Error("Expect", ErrQuorumNotReached, "got", err)
	}

	reuse := NewTestCertificate(c, signers, 3, root, "w0", "w2", "w2")
	if err := reuse.Verify(c); err != ErrWitnessReuse {
		t.Error("Expect", ErrWitnessReuse, "got", err)
	}

	stranger, _ := c.Scheme().GenerateKey(crypto.NewStaticTestSeed("stranger"))
	signers["mallory"] = stranger
	unknown := NewTestCertificate(c, signers, 3, root, "w0", "w2", "mallory")
	if err := unknown.Verify(c); err != ErrUnknownWitness {
		t.Error("Expect", ErrUnknownWitness, "got", err)
	}

	// the same certificate does not certify another epoch or root
	moved := *cert
	moved.Epoch = 4
	if err := moved.Verify(c); err != ErrBadSignature {
		t.Error("Expect", ErrBadSignature, "got", err)
	}
	moved = *cert
	moved.Root = crypto.Digest([]byte("other"))
	if err := moved.Verify(c); err != ErrBadSignature {
		t.Error("Expect", ErrBadSignature, "got", err)
	}
}

func TestCertificateNaive(t *testing.T) { testCertificates(t, naive.ID) }

func TestCertificateBLS(t *testing.T) { testCertificates(t, bls.ID) }

// Votes split between two roots never combine into a certificate for
// either of them.
func TestSplitRootCertificate(t *testing.T) {
	c, signers := NewTestCommittee(4, "")
	rootA := crypto.Digest([]byte("A"))
	rootB := crypto.Digest([]byte("B"))
	var shares []multisig.Share
	for _, v := range []struct {
		name string
		root []byte
	}{{"w0", rootA}, {"w1", rootA}, {"w2", rootB}} {
		shares = append(shares, multisig.Share{
			PublicKey: signers[v.name].Public(),
			Signature: signers[v.name].Sign(VoteMessage(5, v.root)),
		})
	}
	agg, _ := c.Scheme().Aggregate(shares)
	for _, root := range [][]byte{rootA, rootB} {
		cert := &Certificate{Epoch: 5, Root: root, Signers: []string{"w0", "w1", "w2"}, Aggregate: agg}
		if err := cert.Verify(c); err == nil {
			t.Fatal("split votes certified a root")
		}
	}
}

func TestCertificateEncoding(t *testing.T) {
	c, signers := NewTestCommittee(4, "")
	cert := NewTestCertificate(c, signers, 9, crypto.Digest([]byte("r")), "w1", "w2", "w3")
	got, err := DecodeCertificate(cert.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, cert) {
		t.Fatal("Decoded certificate differs", got, cert)
	}
	if _, err := DecodeCertificate(cert.Encode()[:20]); err == nil {
		t.Fatal("Expect an error for a truncated certificate")
	}
}

func TestVote(t *testing.T) {
	c, signers := NewTestCommittee(1, "")
	root := crypto.Digest([]byte("r"))
	v := NewVote(signers["w0"], "w0", 2, root)
	w, _ := c.Witness("w0")
	if !c.Scheme().VerifyShare(w.PublicKey, VoteMessage(2, root), v.Signature) {
		t.Fatal("vote does not verify")
	}
	got, err := DecodeVote(v.Encode())
	if err != nil || !got.Equal(v) {
		t.Fatal("Decoded vote differs", err)
	}
	if bytes.Equal(VoteMessage(2, root), VoteMessage(3, root)) {
		t.Fatal("vote message does not bind the epoch")
	}
}

func TestNotificationSignature(t *testing.T) {
	sk := crypto.NewStaticTestSigningKey()
	pk, _ := sk.Public()
	n := &Notification{Epoch: 1, Root: crypto.Digest([]byte("r"))}
	SignNotification(sk, n)
	if !n.VerifySignature(pk) {
		t.Fatal("notification signature rejected")
	}
	n.Root = crypto.Digest([]byte("forged"))
	if n.VerifySignature(pk) {
		t.Fatal("signature accepted for another root")
	}
}

func TestErrorKinds(t *testing.T) {
	for code, kind := range map[ErrorCode]ErrorKind{
		ReqSuccess:                 KindNone,
		ErrEpochNotCertified:       KindNotFound,
		ErrConflictingNotification: KindConsistency,
		ErrTimeout:                 KindTimeout,
		ErrMalformedUpdate:         KindMalformed,
	} {
		if code.Kind() != kind {
			t.Error("Unexpected kind for", code)
		}
	}
	if KindOf(errors.New("disk")) != KindInternal || KindOf(nil) != KindNone {
		t.Error("Unexpected kind for a plain error")
	}
	if !Errors[ErrTimeout] || Errors[ReqSuccess] {
		t.Error("Errors misclassifies codes")
	}
	resp := NewErrorResponse(ErrNotFound)
	if err := resp.Validate(); err != ErrNotFound {
		t.Error("Expect", ErrNotFound, "got", err)
	}
}
