package server

import (
	"time"

	"github.com/coniks-sys/keywitness/crypto/sign"
	"github.com/coniks-sys/keywitness/crypto/vrf"
)

// Defaults for the policies left out of the config file.
const (
	DefaultEpochDeadline = time.Second
	DefaultBatchSize     = 1024
)

// Policies contains the publisher's policies: how updates are batched
// into epochs, how long a certification round waits for votes, and
// the paths to the VRF and signing keys.
type Policies struct {
	// EpochDeadlineMs is how long the first update of a batch waits
	// for others before the batch is published.
	EpochDeadlineMs int64  `toml:"epoch_deadline_ms"`
	BatchSize       int    `toml:"batch_size"`
	RoundTimeoutMs  int64  `toml:"round_timeout_ms"`
	MaxRetries      int    `toml:"max_retries"`
	VRFKeyPath      string `toml:"vrf_key_path"`
	SignKeyPath     string `toml:"sign_key_path"`
	vrfKey          vrf.PrivateKey
	signKey         sign.PrivateKey
}

// NewPolicies initializes a new Policies struct.
func NewPolicies(epochDeadline time.Duration, batchSize int,
	roundTimeout time.Duration, maxRetries int,
	vrfKeyPath, signKeyPath string) *Policies {
	return &Policies{
		EpochDeadlineMs: epochDeadline.Milliseconds(),
		BatchSize:       batchSize,
		RoundTimeoutMs:  roundTimeout.Milliseconds(),
		MaxRetries:      maxRetries,
		VRFKeyPath:      vrfKeyPath,
		SignKeyPath:     signKeyPath,
	}
}

// EpochDeadline returns the batching deadline.
func (p *Policies) EpochDeadline() time.Duration {
	if p.EpochDeadlineMs <= 0 {
		return DefaultEpochDeadline
	}
	return time.Duration(p.EpochDeadlineMs) * time.Millisecond
}

// RoundTimeout returns how long a round waits before rebroadcasting.
// Zero selects the certifier's default.
func (p *Policies) RoundTimeout() time.Duration {
	return time.Duration(p.RoundTimeoutMs) * time.Millisecond
}

func (p *Policies) batchSize() int {
	if p.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return p.BatchSize
}
