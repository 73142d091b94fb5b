package client

import (
	"fmt"

	"github.com/coniks-sys/keywitness/application"
	"github.com/coniks-sys/keywitness/protocol"
)

// Config contains the client's configuration: the committee it
// verifies certificates against, the publisher's addresses for
// queries and for publishing, and optionally the witnesses' addresses
// for cross-checking certificates.
//
// If PublishAddress is empty, the client publishes to Address.
type Config struct {
	*application.CommonConfig

	CommitteePath  string                             `toml:"committee"`
	Address        *application.DialConfig            `toml:"address"`
	PublishAddress *application.DialConfig            `toml:"publish_address,omitempty"`
	Witnesses      map[string]*application.DialConfig `toml:"witnesses,omitempty"`

	committee *protocol.Committee
}

var _ application.AppConfig = (*Config)(nil)

// NewConfig initializes a new client configuration at the given file
// path, with the given config encoding, committee file and server
// addresses.
func NewConfig(file, encoding, committeePath string,
	addr, publishAddr *application.DialConfig) *Config {
	return &Config{
		CommonConfig:   application.NewCommonConfig(file, encoding, nil),
		CommitteePath:  committeePath,
		Address:        addr,
		PublishAddress: publishAddr,
	}
}

// Load initializes a client's configuration from the given file
// using the given encoding, and reads the committee.
func (conf *Config) Load(file, encoding string) error {
	conf.CommonConfig = application.NewCommonConfig(file, encoding, nil)
	if err := conf.GetLoader().Decode(conf); err != nil {
		return err
	}
	if conf.Address == nil {
		return fmt.Errorf("Config needs the server's [address]")
	}
	committee, err := application.LoadCommittee(conf.CommitteePath, file)
	if err != nil {
		return err
	}
	conf.committee = committee
	conf.Address.ResolvePaths(file)
	if conf.PublishAddress != nil {
		conf.PublishAddress.ResolvePaths(file)
	}
	for _, w := range conf.Witnesses {
		w.ResolvePaths(file)
	}
	conf.ResolveLogPath()
	return nil
}

// Save writes a client's configuration.
func (conf *Config) Save() error {
	return conf.GetLoader().Encode(conf)
}

// Committee returns the committee loaded by Load.
func (conf *Config) Committee() *protocol.Committee {
	return conf.committee
}
