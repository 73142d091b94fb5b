package server

import (
	"fmt"

	"github.com/coniks-sys/keywitness/application"
	"github.com/coniks-sys/keywitness/application/gateway"
	"github.com/coniks-sys/keywitness/protocol"
	"github.com/coniks-sys/keywitness/utils"
)

// DefaultName is the publisher's name on the peer network.
const DefaultName = "publisher"

// An Address describes a client connection of the server. Publishing
// has to be allowed explicitly; other requests are always allowed, so
// addresses are read-only by default.
type Address struct {
	*application.ServerAddress
	AllowPublish bool `toml:"allow_publish,omitempty"`
}

// A Config contains configuration values
// which are read at initialization time from
// a TOML format configuration file.
type Config struct {
	*application.CommonConfig
	// Name is the publisher's name on the peer network, the From of
	// its messages.
	Name string `toml:"name,omitempty"`
	// CommitteePath is the committee file.
	CommitteePath string                     `toml:"committee"`
	Storage       *application.StorageConfig `toml:"storage"`
	// Peer is where the witnesses send their votes.
	Peer *application.ServerAddress `toml:"peer"`
	// PeerCACert authenticates the witnesses' TLS certificates.
	PeerCACert string `toml:"peer_ca_cert,omitempty"`
	// Policies contains the publisher's policies.
	Policies *Policies `toml:"policies"`
	// Addresses contains the client connections.
	Addresses []*Address      `toml:"addresses"`
	Gateway   *gateway.Config `toml:"gateway,omitempty"`

	committee *protocol.Committee
}

var _ application.AppConfig = (*Config)(nil)

// NewConfig initializes a new server configuration.
func NewConfig(file, encoding string, addrs []*Address, peer *application.ServerAddress,
	committeePath string, storage *application.StorageConfig,
	policies *Policies) *Config {
	return &Config{
		CommonConfig:  application.NewCommonConfig(file, encoding, nil),
		Name:          DefaultName,
		CommitteePath: committeePath,
		Storage:       storage,
		Peer:          peer,
		Policies:      policies,
		Addresses:     addrs,
	}
}

// Load initializes a server configuration from the corresponding
// config file. It reads the signing and VRF keys and the committee,
// and resolves every path against the config file's directory.
func (conf *Config) Load(file, encoding string) error {
	conf.CommonConfig = application.NewCommonConfig(file, encoding, nil)
	if err := conf.GetLoader().Decode(conf); err != nil {
		return err
	}
	if conf.Name == "" {
		conf.Name = DefaultName
	}
	if conf.Policies == nil || conf.Peer == nil || conf.Storage == nil {
		return fmt.Errorf("Config needs [policies], [peer] and [storage]")
	}

	signKey, err := application.LoadSigningKey(conf.Policies.SignKeyPath, file)
	if err != nil {
		return err
	}
	vrfKey, err := application.LoadVRFKey(conf.Policies.VRFKeyPath, file)
	if err != nil {
		return err
	}
	committee, err := application.LoadCommittee(conf.CommitteePath, file)
	if err != nil {
		return err
	}
	conf.Policies.signKey = signKey
	conf.Policies.vrfKey = vrfKey
	conf.committee = committee

	conf.Peer.ResolvePaths(file)
	for _, addr := range conf.Addresses {
		addr.ResolvePaths(file)
	}
	if conf.PeerCACert != "" {
		conf.PeerCACert = utils.ResolvePath(conf.PeerCACert, file)
	}
	conf.ResolveLogPath()
	return nil
}

// Save writes the configuration to its path.
func (conf *Config) Save() error {
	return conf.GetLoader().Encode(conf)
}

// Committee returns the committee loaded by Load.
func (conf *Config) Committee() *protocol.Committee {
	return conf.committee
}

// peers returns the witnesses' addresses.
func (conf *Config) peers() map[string]*application.DialConfig {
	peers := make(map[string]*application.DialConfig)
	for _, w := range conf.committee.Witnesses() {
		peers[w.Name] = &application.DialConfig{Address: w.Address, CACertPath: conf.PeerCACert}
	}
	return peers
}
