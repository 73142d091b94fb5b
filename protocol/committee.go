package protocol

import (
	"errors"
	"fmt"

	"github.com/coniks-sys/keywitness/crypto/hasher"
	"github.com/coniks-sys/keywitness/crypto/multisig"
	"github.com/coniks-sys/keywitness/crypto/sign"
	"github.com/coniks-sys/keywitness/crypto/vrf"

	// registered tree hashers and signature schemes
	_ "github.com/coniks-sys/keywitness/crypto/hasher/blake3"
	_ "github.com/coniks-sys/keywitness/crypto/hasher/shake"
	_ "github.com/coniks-sys/keywitness/crypto/multisig/bls"
	_ "github.com/coniks-sys/keywitness/crypto/multisig/naive"
)

// ErrMalformedCommittee indicates an unusable committee configuration.
var ErrMalformedCommittee = errors.New("[keywitness] Malformed committee")

// WitnessInfo describes one enrolled witness.
type WitnessInfo struct {
	Name      string `toml:"name" json:"name"`
	Address   string `toml:"address" json:"address"`
	Power     uint64 `toml:"power" json:"power"`
	PublicKey []byte `toml:"public_key" json:"public_key"`
}

// CommitteeConfig is the serialized form of a Committee.
type CommitteeConfig struct {
	PublisherKey []byte        `toml:"publisher_key" json:"publisher_key"`
	VRFKey       []byte        `toml:"vrf_key" json:"vrf_key"`
	HashID       string        `toml:"hash_id" json:"hash_id"`
	Scheme       string        `toml:"scheme" json:"scheme"`
	Witnesses    []WitnessInfo `toml:"witness" json:"witnesses"`
}

// A Committee is the fixed configuration everyone agrees on: the
// publisher's keys, the tree hash, the signature scheme and the
// enrolled witnesses with their voting power.
type Committee struct {
	conf      CommitteeConfig
	publisher sign.PublicKey
	vrfKey    vrf.PublicKey
	hasher    hasher.TreeHasher
	scheme    multisig.Scheme
	byName    map[string]*WitnessInfo
	total     uint64
}

// NewCommittee validates conf and returns the committee it describes.
func NewCommittee(conf *CommitteeConfig) (*Committee, error) {
	if len(conf.PublisherKey) != sign.PublicKeySize || len(conf.VRFKey) != vrf.PublicKeySize {
		return nil, fmt.Errorf("%w: bad publisher keys", ErrMalformedCommittee)
	}
	if len(conf.Witnesses) == 0 {
		return nil, fmt.Errorf("%w: no witnesses", ErrMalformedCommittee)
	}
	h, err := hasher.Hasher(conf.HashID)
	if err != nil {
		return nil, err
	}
	scheme, err := multisig.Get(conf.Scheme)
	if err != nil {
		return nil, err
	}
	c := &Committee{
		conf:      *conf,
		publisher: sign.PublicKey(conf.PublisherKey),
		hasher:    h,
		scheme:    scheme,
		byName:    make(map[string]*WitnessInfo, len(conf.Witnesses)),
	}
	copy(c.vrfKey[:], conf.VRFKey)
	c.conf.Witnesses = append([]WitnessInfo{}, conf.Witnesses...)
	for i := range c.conf.Witnesses {
		w := &c.conf.Witnesses[i]
		if w.Name == "" || w.Power == 0 {
			return nil, fmt.Errorf("%w: witness %q needs a name and power", ErrMalformedCommittee, w.Name)
		}
		if _, ok := c.byName[w.Name]; ok {
			return nil, fmt.Errorf("%w: duplicate witness %q", ErrMalformedCommittee, w.Name)
		}
		if err := scheme.ValidatePublicKey(w.PublicKey); err != nil {
			return nil, fmt.Errorf("%w: witness %q: %v", ErrMalformedCommittee, w.Name, err)
		}
		c.byName[w.Name] = w
		c.total += w.Power
	}
	return c, nil
}

// Config returns a copy of the committee's configuration.
func (c *Committee) Config() CommitteeConfig {
	conf := c.conf
	conf.Witnesses = append([]WitnessInfo{}, c.conf.Witnesses...)
	return conf
}

// PublisherKey returns the key notifications are signed with.
func (c *Committee) PublisherKey() sign.PublicKey { return c.publisher }

// VRFKey returns the key labels are derived with.
func (c *Committee) VRFKey() vrf.PublicKey { return c.vrfKey }

// Hasher returns the tree hash functions.
func (c *Committee) Hasher() hasher.TreeHasher { return c.hasher }

// Scheme returns the witnesses' signature scheme.
func (c *Committee) Scheme() multisig.Scheme { return c.scheme }

// Witness looks up an enrolled witness by name.
func (c *Committee) Witness(name string) (WitnessInfo, bool) {
	w, ok := c.byName[name]
	if !ok {
		return WitnessInfo{}, false
	}
	return *w, true
}

// Witnesses returns the enrolled witnesses in configuration order.
func (c *Committee) Witnesses() []WitnessInfo {
	return append([]WitnessInfo{}, c.conf.Witnesses...)
}

// TotalPower is the sum of all voting power.
func (c *Committee) TotalPower() uint64 { return c.total }

// QuorumThreshold is the voting power a certificate needs:
// 2·total/3 + 1.
func (c *Committee) QuorumThreshold() uint64 {
	return 2*c.total/3 + 1
}

// ValidityThreshold is the voting power that contains at least one
// honest witness: ⌈total/3⌉.
func (c *Committee) ValidityThreshold() uint64 {
	return (c.total + 2) / 3
}
