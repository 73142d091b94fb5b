package application

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/coniks-sys/keywitness/utils"
)

// ConfigLoader provides an interface for implementing
// different application configuration encodings.
type ConfigLoader interface {
	Encode(conf AppConfig) error
	Decode(conf AppConfig) error
}

// newConfigLoader constructs a new ConfigLoader for the given encoding.
// An empty encoding is taken from the extension of file. If the
// encoding is unsupported, newConfigLoader() returns a loader for the
// default encoding (TOML).
func newConfigLoader(encoding, file string) ConfigLoader {
	if encoding == "" {
		encoding = strings.TrimPrefix(filepath.Ext(file), ".")
	}
	loader := configEncodings[encoding]
	if loader == nil {
		loader = new(TomlLoader)
	}
	return loader
}

// TomlLoader implements a ConfigLoader for toml-encoded configurations.
// Decoding is strict: a key the config does not define is an error,
// so a misspelled policy is not silently replaced by its default.
type TomlLoader struct{}

var _ ConfigLoader = (*TomlLoader)(nil)

// Encode saves conf in toml encoding, refusing to overwrite an
// existing file.
func (ld *TomlLoader) Encode(conf AppConfig) error {
	return encodeToml(conf, conf.GetPath())
}

// Decode reads conf from its toml-encoded file.
func (ld *TomlLoader) Decode(conf AppConfig) error {
	if err := decodeToml(conf.GetPath(), conf); err != nil {
		return fmt.Errorf("Failed to load config: %v", err)
	}
	return nil
}

func decodeToml(path string, v interface{}) error {
	md, err := toml.DecodeFile(path, v)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

func encodeToml(v interface{}, path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(v); err != nil {
		return err
	}
	return utils.WriteFile(path, buf.Bytes(), 0644)
}

var configEncodings = map[string]ConfigLoader{
	"toml": new(TomlLoader),
}
