package sign

import (
	"bytes"
	"testing"
)

func TestVerifySignature(t *testing.T) {
	key, err := GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}

	message := []byte("test message")
	sig := key.Sign(message)

	pk, ok := key.Public()
	if !ok {
		t.Errorf("bad PK?")
	}

	if !pk.Verify(message, sig) {
		t.Errorf("valid signature rejected")
	}

	wrongMessage := []byte("wrong message")
	if pk.Verify(wrongMessage, sig) {
		t.Errorf("signature of different message accepted")
	}
}

func TestDeterministicKey(t *testing.T) {
	seed := []byte("deterministic tests need 256 bit")
	k1, err := GenerateKey(bytes.NewReader(seed))
	if err != nil {
		t.Fatal(err)
	}
	k2, err := GenerateKey(bytes.NewReader(seed))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(k1, k2) {
		t.Fatal("Same seed gives different keys")
	}
}

func TestParsePrivateKey(t *testing.T) {
	if _, err := ParsePrivateKey(make([]byte, 3)); err != ErrMalformedKey {
		t.Fatal("Expect", ErrMalformedKey, "got", err)
	}
	key, _ := GenerateKey(nil)
	if _, err := ParsePrivateKey(key); err != nil {
		t.Fatal(err)
	}
}

func TestVerifyWrongKeyLength(t *testing.T) {
	if PublicKey([]byte{1, 2}).Verify([]byte("m"), make([]byte, SignatureSize)) {
		t.Fatal("Short key accepted")
	}
}
