package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/coniks-sys/keywitness/application"
	"github.com/coniks-sys/keywitness/application/client"
	"github.com/coniks-sys/keywitness/cli"
	"github.com/spf13/cobra"
)

var initCmd = cli.NewInitCommand("kwclient", "", mkConfigOrExit)

func init() {
	RootCmd.AddCommand(initCmd)
	initCmd.Flags().StringP("dir", "d", ".", "Location of directory for storing generated files")
	initCmd.Flags().String("committee", "committee.toml", "The committee file, relative to the config")
	initCmd.Flags().String("address", "tcp://127.0.0.1:3000", "The publisher's client address")
	initCmd.Flags().String("publish", "", "The publisher's address accepting updates")
	initCmd.Flags().String("ca", "", "CA certificate of the publisher's TLS certificate")
}

func mkConfigOrExit(cmd *cobra.Command, args []string) {
	file := filepath.Join(cmd.Flag("dir").Value.String(), "config.toml")
	ca := cmd.Flag("ca").Value.String()
	var publish *application.DialConfig
	if addr := cmd.Flag("publish").Value.String(); addr != "" {
		publish = &application.DialConfig{Address: addr, CACertPath: ca}
	}
	conf := client.NewConfig(file, "toml", cmd.Flag("committee").Value.String(),
		&application.DialConfig{Address: cmd.Flag("address").Value.String(), CACertPath: ca},
		publish)
	if err := conf.Save(); err != nil {
		fmt.Println("Couldn't save config. Error message: [" + err.Error() + "]")
		os.Exit(-1)
	}
}
