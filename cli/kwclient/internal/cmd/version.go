package cmd

import (
	"github.com/coniks-sys/keywitness/cli"
)

var versionCmd = cli.NewVersionCommand("kwclient")

func init() {
	RootCmd.AddCommand(versionCmd)
}
