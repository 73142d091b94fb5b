package cmd

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/coniks-sys/keywitness/application"
	"github.com/coniks-sys/keywitness/application/deploy"
	"github.com/coniks-sys/keywitness/application/witness"
	"github.com/coniks-sys/keywitness/cli"
	"github.com/coniks-sys/keywitness/crypto/multisig"
	"github.com/coniks-sys/keywitness/crypto/multisig/naive"
	"github.com/coniks-sys/keywitness/protocol"
	"github.com/coniks-sys/keywitness/utils"
	"github.com/spf13/cobra"
)

var initCmd = cli.NewInitCommand("kwwitness",
	`Generate a witness key and a config to join an existing committee.

The public key is printed; the committee's operator adds it to the
committee file, which is expected next to the config.`, initRunFunc)

func init() {
	RootCmd.AddCommand(initCmd)
	initCmd.Flags().StringP("dir", "d", ".", "Location of directory for storing generated files")
	initCmd.Flags().StringP("name", "n", "", "The witness's name in the committee")
	initCmd.Flags().String("scheme", naive.ID, "Witness signature scheme")
	initCmd.Flags().String("listen", "tcp://0.0.0.0:3100", "Peer address the publisher sends to")
	initCmd.Flags().String("publisher", "tcp://127.0.0.1:3001", "The publisher's peer address")
}

func initRunFunc(cmd *cobra.Command, args []string) {
	dir := cmd.Flag("dir").Value.String()
	name := cmd.Flag("name").Value.String()
	if name == "" {
		exit("A witness needs a --name")
	}
	scheme, err := multisig.Get(cmd.Flag("scheme").Value.String())
	if err != nil {
		exit(err.Error())
	}
	s, err := scheme.GenerateKey(rand.Reader)
	if err != nil {
		exit(err.Error())
	}
	if err := utils.WriteFile(filepath.Join(dir, deploy.WitnessKeyFile), s.Bytes(), 0600); err != nil {
		exit(err.Error())
	}

	peer := &application.ServerAddress{Address: cmd.Flag("listen").Value.String()}
	if strings.HasPrefix(peer.Address, "tcp://") {
		peer.TLSCertPath = "server.pem"
		peer.TLSKeyPath = "server.key"
	}
	conf := witness.NewConfig(filepath.Join(dir, deploy.ConfigFile), "toml", name,
		deploy.CommitteeFile, deploy.WitnessKeyFile,
		&application.StorageConfig{Backend: application.LevelDBBackend, Path: "db"}, peer,
		&application.DialConfig{Address: cmd.Flag("publisher").Value.String()})
	if err := conf.Save(); err != nil {
		exit(err.Error())
	}
	entry := struct {
		Witnesses []protocol.WitnessInfo `toml:"witness"`
	}{[]protocol.WitnessInfo{{
		Name:      name,
		Address:   peer.Address,
		Power:     1,
		PublicKey: s.Public(),
	}}}
	fmt.Println("# add to the committee file:")
	if err := toml.NewEncoder(os.Stdout).Encode(entry); err != nil {
		exit(err.Error())
	}
}

func exit(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(-1)
}
