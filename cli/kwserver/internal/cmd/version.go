package cmd

import (
	"github.com/coniks-sys/keywitness/cli"
)

var versionCmd = cli.NewVersionCommand("kwserver")

func init() {
	RootCmd.AddCommand(versionCmd)
}
