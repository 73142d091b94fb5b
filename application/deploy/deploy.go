// Package deploy generates the keys, the committee and the configs of
// a publisher and its witnesses, laid out in one directory so the
// whole committee can run on one machine.
package deploy

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/coniks-sys/keywitness/application"
	clientapp "github.com/coniks-sys/keywitness/application/client"
	"github.com/coniks-sys/keywitness/application/gateway"
	"github.com/coniks-sys/keywitness/application/server"
	"github.com/coniks-sys/keywitness/application/testutil"
	"github.com/coniks-sys/keywitness/application/witness"
	"github.com/coniks-sys/keywitness/crypto/hasher/shake"
	"github.com/coniks-sys/keywitness/crypto/multisig"
	"github.com/coniks-sys/keywitness/crypto/multisig/naive"
	"github.com/coniks-sys/keywitness/crypto/sign"
	"github.com/coniks-sys/keywitness/crypto/vrf"
	"github.com/coniks-sys/keywitness/protocol"
	"github.com/coniks-sys/keywitness/utils"
	"github.com/coniks-sys/keywitness/utils/binutils"
)

// File names inside a layout.
const (
	ConfigFile     = "config.toml"
	CommitteeFile  = "committee.toml"
	SigningKeyFile = "sign.priv"
	VRFKeyFile     = "vrf.priv"
	WitnessKeyFile = "witness.priv"
	PublisherDir   = server.DefaultName
)

// Options describe the generated committee.
type Options struct {
	Dir       string
	Witnesses int
	Scheme    string
	HashID    string
	// Storage is the backend of every server. Leveldb databases are
	// created next to each config.
	Storage string
	// TCP listens on localhost ports starting at BasePort, with a
	// generated self-signed certificate, instead of unix sockets in
	// Dir.
	TCP      bool
	BasePort int
	// Gateway is the publisher's HTTP address. Empty disables it.
	Gateway string
	Rand    io.Reader
}

// A Layout lists the generated config files.
type Layout struct {
	Committee      string
	Server         string
	Client         string
	Witnesses      map[string]string
	ClientAddress  string
	PublishAddress string
}

// Local writes a committee of opts.Witnesses witnesses and its
// publisher under opts.Dir.
func Local(opts Options) (*Layout, error) {
	if opts.Witnesses < 1 {
		return nil, fmt.Errorf("a committee needs at least one witness")
	}
	if opts.Scheme == "" {
		opts.Scheme = naive.ID
	}
	if opts.HashID == "" {
		opts.HashID = shake.ID
	}
	if opts.Storage == "" {
		opts.Storage = application.LevelDBBackend
	}
	if opts.BasePort == 0 {
		opts.BasePort = 3000
	}
	if opts.Rand == nil {
		opts.Rand = rand.Reader
	}
	scheme, err := multisig.Get(opts.Scheme)
	if err != nil {
		return nil, err
	}
	// socket and certificate paths are written as they are
	if opts.Dir, err = filepath.Abs(opts.Dir); err != nil {
		return nil, err
	}
	l := &Layout{
		Committee: filepath.Join(opts.Dir, CommitteeFile),
		Witnesses: make(map[string]string),
	}
	port := opts.BasePort
	address := func(name string) *application.ServerAddress {
		if !opts.TCP {
			return &application.ServerAddress{
				Address: "unix://" + filepath.Join(opts.Dir, name+".sock"),
			}
		}
		port++
		return &application.ServerAddress{
			Address:     fmt.Sprintf("tcp://127.0.0.1:%d", port-1),
			TLSCertPath: filepath.Join(opts.Dir, testutil.CertFile),
			TLSKeyPath:  filepath.Join(opts.Dir, testutil.KeyFile),
		}
	}
	var caCert string
	if opts.TCP {
		if err := testutil.CreateTLSCert(opts.Dir); err != nil {
			return nil, err
		}
		caCert = filepath.Join(opts.Dir, testutil.CertFile)
	}

	pubDir := filepath.Join(opts.Dir, PublisherDir)
	if err := os.MkdirAll(pubDir, 0700); err != nil {
		return nil, err
	}
	signKey, err := sign.GenerateKey(opts.Rand)
	if err != nil {
		return nil, err
	}
	vrfKey, err := vrf.GenerateKey(opts.Rand)
	if err != nil {
		return nil, err
	}
	if err := WriteSigningKey(signKey, pubDir); err != nil {
		return nil, err
	}
	if err := WriteVRFKey(vrfKey, pubDir); err != nil {
		return nil, err
	}
	pk, _ := signKey.Public()
	vrfPk := vrfKey.Public()
	committee := &protocol.CommitteeConfig{
		PublisherKey: pk,
		VRFKey:       vrfPk[:],
		HashID:       opts.HashID,
		Scheme:       opts.Scheme,
	}

	peer := address("publisher-peer")
	client := address("publisher")
	publisher := &application.DialConfig{Address: peer.Address, CACertPath: caCert}
	certAddrs := make(map[string]*application.DialConfig)
	for i := 0; i < opts.Witnesses; i++ {
		name := fmt.Sprintf("w%d", i)
		dir := filepath.Join(opts.Dir, name)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, err
		}
		s, err := scheme.GenerateKey(opts.Rand)
		if err != nil {
			return nil, err
		}
		if err := utils.WriteFile(filepath.Join(dir, WitnessKeyFile), s.Bytes(), 0600); err != nil {
			return nil, err
		}
		addr := address(name)
		committee.Witnesses = append(committee.Witnesses, protocol.WitnessInfo{
			Name:      name,
			Address:   addr.Address,
			Power:     1,
			PublicKey: s.Public(),
		})
		file := filepath.Join(dir, ConfigFile)
		conf := witness.NewConfig(file, "toml", name, filepath.Join("..", CommitteeFile), WitnessKeyFile,
			storageFor(opts.Storage, "db"), addr, publisher)
		conf.Logger = loggerFor(name)
		certs := address(name + "-certs")
		conf.Addresses = []*application.ServerAddress{certs}
		certAddrs[name] = &application.DialConfig{Address: certs.Address, CACertPath: caCert}
		if err := conf.Save(); err != nil {
			return nil, err
		}
		l.Witnesses[name] = file
	}
	if _, err := protocol.NewCommittee(committee); err != nil {
		return nil, err
	}
	if err := application.SaveCommittee(committee, l.Committee); err != nil {
		return nil, err
	}

	publish := address("publisher-admin")
	l.Server = filepath.Join(pubDir, ConfigFile)
	conf := server.NewConfig(l.Server, "toml",
		[]*server.Address{
			{ServerAddress: client},
			{ServerAddress: publish, AllowPublish: true},
		},
		peer, filepath.Join("..", CommitteeFile), storageFor(opts.Storage, "db"),
		server.NewPolicies(server.DefaultEpochDeadline, server.DefaultBatchSize, 0, 3,
			VRFKeyFile, SigningKeyFile))
	conf.Logger = loggerFor(server.DefaultName)
	conf.PeerCACert = caCert
	if opts.Gateway != "" {
		conf.Gateway = &gateway.Config{Address: opts.Gateway, AllowPublish: true}
	}
	if err := conf.Save(); err != nil {
		return nil, err
	}
	l.ClientAddress = client.Address
	l.PublishAddress = publish.Address

	clientDir := filepath.Join(opts.Dir, "client")
	if err := os.MkdirAll(clientDir, 0700); err != nil {
		return nil, err
	}
	l.Client = filepath.Join(clientDir, ConfigFile)
	cconf := clientapp.NewConfig(l.Client, "toml", filepath.Join("..", CommitteeFile),
		&application.DialConfig{Address: client.Address, CACertPath: caCert},
		&application.DialConfig{Address: publish.Address, CACertPath: caCert})
	cconf.Witnesses = certAddrs
	cconf.Logger = loggerFor("client")
	if err := cconf.Save(); err != nil {
		return nil, err
	}
	return l, nil
}

// WriteSigningKey writes the publisher's signing key pair to dir.
func WriteSigningKey(sk sign.PrivateKey, dir string) error {
	pk, _ := sk.Public()
	if err := utils.WriteFile(filepath.Join(dir, SigningKeyFile), sk, 0600); err != nil {
		return err
	}
	return utils.WriteFile(filepath.Join(dir, "sign.pub"), pk, 0644)
}

// WriteVRFKey writes the publisher's VRF key pair to dir.
func WriteVRFKey(sk vrf.PrivateKey, dir string) error {
	pk := sk.Public()
	if err := utils.WriteFile(filepath.Join(dir, VRFKeyFile), sk[:], 0600); err != nil {
		return err
	}
	return utils.WriteFile(filepath.Join(dir, "vrf.pub"), pk[:], 0644)
}

func storageFor(backend, path string) *application.StorageConfig {
	conf := &application.StorageConfig{Backend: backend}
	if backend == application.LevelDBBackend {
		conf.Path = path
	}
	return conf
}

func loggerFor(name string) *binutils.LoggerConfig {
	return &binutils.LoggerConfig{
		EnableStacktrace: true,
		Environment:      "development",
		Path:             name + ".log",
	}
}
