package application

import (
	"fmt"
	"os"

	"github.com/coniks-sys/keywitness/crypto/multisig"
	"github.com/coniks-sys/keywitness/crypto/sign"
	"github.com/coniks-sys/keywitness/crypto/vrf"
	"github.com/coniks-sys/keywitness/protocol"
	"github.com/coniks-sys/keywitness/utils"
	"github.com/coniks-sys/keywitness/utils/binutils"
)

// AppConfig provides an abstraction of the
// underlying encoding format for the configs.
type AppConfig interface {
	Load(file, encoding string) error
	Save() error
	GetPath() string
}

// CommonConfig is the part every keywitness executable (publisher,
// witness, client) shares: the config file path, the logger
// configuration and the loader for the file's encoding.
type CommonConfig struct {
	Path     string                 `toml:"-"`
	Logger   *binutils.LoggerConfig `toml:"logger"`
	Encoding string                 `toml:"-"`
	loader   ConfigLoader
}

// NewCommonConfig initializes an application's config file path,
// its loader for the given encoding, and the logger configuration.
// Note: This constructor must be called in each Load() method
// implementation of an AppConfig.
func NewCommonConfig(file, encoding string, logger *binutils.LoggerConfig) *CommonConfig {
	if logger == nil {
		logger = &binutils.LoggerConfig{Environment: "development"}
	}
	return &CommonConfig{
		Path:     file,
		Logger:   logger,
		Encoding: encoding,
		loader:   newConfigLoader(encoding, file),
	}
}

// GetLoader returns the config's loader.
func (conf *CommonConfig) GetLoader() ConfigLoader {
	return conf.loader
}

// GetPath returns the config file path.
func (conf *CommonConfig) GetPath() string {
	return conf.Path
}

// ResolveLogPath makes the logger's output path relative to the
// config file.
func (conf *CommonConfig) ResolveLogPath() {
	if conf.Logger != nil && conf.Logger.Path != "" {
		conf.Logger.Path = utils.ResolvePath(conf.Logger.Path, conf.Path)
	}
}

func readKey(what, path, file string, size int) ([]byte, error) {
	b, err := os.ReadFile(utils.ResolvePath(path, file))
	if err != nil {
		return nil, fmt.Errorf("Cannot read %s: %v", what, err)
	}
	if size > 0 && len(b) != size {
		return nil, fmt.Errorf("%s must be %d bytes (got %d)", what, size, len(b))
	}
	return b, nil
}

// LoadSigningKey loads the publisher's signing key at path, resolved
// relative to the config file.
func LoadSigningKey(path, file string) (sign.PrivateKey, error) {
	b, err := readKey("signing key", path, file, sign.PrivateKeySize)
	if err != nil {
		return nil, err
	}
	return sign.ParsePrivateKey(b)
}

// LoadVRFKey loads the publisher's VRF key at path, resolved relative
// to the config file.
func LoadVRFKey(path, file string) (vrf.PrivateKey, error) {
	var sk vrf.PrivateKey
	b, err := readKey("VRF key", path, file, vrf.PrivateKeySize)
	if err != nil {
		return sk, err
	}
	copy(sk[:], b)
	return sk, nil
}

// LoadWitnessKey loads a witness's private key of the given scheme.
func LoadWitnessKey(scheme multisig.Scheme, path, file string) (multisig.Signer, error) {
	b, err := readKey("witness key", path, file, 0)
	if err != nil {
		return nil, err
	}
	s, err := scheme.ParsePrivateKey(b)
	if err != nil {
		return nil, fmt.Errorf("Cannot parse witness key: %v", err)
	}
	return s, nil
}

// LoadCommittee reads the toml-encoded committee at path, resolved
// relative to the config file.
func LoadCommittee(path, file string) (*protocol.Committee, error) {
	var conf protocol.CommitteeConfig
	if err := decodeToml(utils.ResolvePath(path, file), &conf); err != nil {
		return nil, fmt.Errorf("Failed to load committee: %v", err)
	}
	return protocol.NewCommittee(&conf)
}

// SaveCommittee writes conf to path in toml.
func SaveCommittee(conf *protocol.CommitteeConfig, path string) error {
	return encodeToml(conf, path)
}
