package witness

import (
	"fmt"

	"github.com/coniks-sys/keywitness/application"
	"github.com/coniks-sys/keywitness/crypto/multisig"
	"github.com/coniks-sys/keywitness/protocol"
)

// DefaultPublisher is the publisher's name on the peer network.
const DefaultPublisher = "publisher"

// A Config contains the witness's configuration, read from a TOML
// file at initialization time.
type Config struct {
	*application.CommonConfig
	// Name is the witness's name in the committee.
	Name          string                     `toml:"name"`
	CommitteePath string                     `toml:"committee"`
	KeyPath       string                     `toml:"key_path"`
	Storage       *application.StorageConfig `toml:"storage"`
	// Peer is where the publisher sends notifications and
	// certificates.
	Peer          *application.ServerAddress `toml:"peer"`
	PublisherName string                     `toml:"publisher_name,omitempty"`
	Publisher     *application.DialConfig    `toml:"publisher"`
	// Addresses serve the witness's certificates to clients.
	Addresses []*application.ServerAddress `toml:"addresses,omitempty"`

	signer    multisig.Signer
	committee *protocol.Committee
}

var _ application.AppConfig = (*Config)(nil)

// NewConfig initializes a new witness configuration.
func NewConfig(file, encoding, name, committeePath, keyPath string,
	storage *application.StorageConfig, peer *application.ServerAddress,
	publisher *application.DialConfig) *Config {
	return &Config{
		CommonConfig:  application.NewCommonConfig(file, encoding, nil),
		Name:          name,
		CommitteePath: committeePath,
		KeyPath:       keyPath,
		Storage:       storage,
		Peer:          peer,
		PublisherName: DefaultPublisher,
		Publisher:     publisher,
	}
}

// Load initializes a witness configuration from the config file and
// reads the committee and the witness's signing key.
func (conf *Config) Load(file, encoding string) error {
	conf.CommonConfig = application.NewCommonConfig(file, encoding, nil)
	if err := conf.GetLoader().Decode(conf); err != nil {
		return err
	}
	if conf.Name == "" || conf.Peer == nil || conf.Publisher == nil || conf.Storage == nil {
		return fmt.Errorf("Config needs a name, [peer], [publisher] and [storage]")
	}
	if conf.PublisherName == "" {
		conf.PublisherName = DefaultPublisher
	}
	committee, err := application.LoadCommittee(conf.CommitteePath, file)
	if err != nil {
		return err
	}
	if _, ok := committee.Witness(conf.Name); !ok {
		return fmt.Errorf("%q is not a member of the committee", conf.Name)
	}
	signer, err := application.LoadWitnessKey(committee.Scheme(), conf.KeyPath, file)
	if err != nil {
		return err
	}
	conf.committee = committee
	conf.signer = signer

	conf.Peer.ResolvePaths(file)
	conf.Publisher.ResolvePaths(file)
	for _, addr := range conf.Addresses {
		addr.ResolvePaths(file)
	}
	conf.ResolveLogPath()
	return nil
}

// Save writes the configuration to its path.
func (conf *Config) Save() error {
	return conf.GetLoader().Encode(conf)
}
