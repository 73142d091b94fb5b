// Package sign wraps ed25519 for the publisher's notification
// signatures and the naive witness signature scheme.
package sign

import (
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/ed25519"
)

const (
	// PrivateKeySize is the size of a private key in bytes.
	PrivateKeySize = ed25519.PrivateKeySize
	// PublicKeySize is the size of a public key in bytes.
	PublicKeySize = ed25519.PublicKeySize
	// SignatureSize is the size of a signature in bytes.
	SignatureSize = ed25519.SignatureSize
)

// ErrMalformedKey indicates a key of the wrong length.
var ErrMalformedKey = errors.New("[sign] Malformed key")

// PrivateKey is an ed25519 private key.
type PrivateKey ed25519.PrivateKey

// PublicKey is an ed25519 public key.
type PublicKey ed25519.PublicKey

// GenerateKey creates a key pair using rnd for randomness.
// If rnd is nil, crypto/rand is used.
func GenerateKey(rnd io.Reader) (PrivateKey, error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	_, sk, err := ed25519.GenerateKey(rnd)
	return PrivateKey(sk), err
}

// ParsePrivateKey checks the length of b and returns it as a key.
func ParsePrivateKey(b []byte) (PrivateKey, error) {
	if len(b) != PrivateKeySize {
		return nil, ErrMalformedKey
	}
	return PrivateKey(b), nil
}

// Sign signs the message with key.
func (key PrivateKey) Sign(message []byte) []byte {
	return ed25519.Sign(ed25519.PrivateKey(key), message)
}

// Public returns the public half of key.
func (key PrivateKey) Public() (PublicKey, bool) {
	pk, ok := ed25519.PrivateKey(key).Public().(ed25519.PublicKey)
	return PublicKey(pk), ok
}

// Verify reports whether sig is a valid signature of message by pk.
func (pk PublicKey) Verify(message, sig []byte) bool {
	if len(pk) != PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pk), message, sig)
}
