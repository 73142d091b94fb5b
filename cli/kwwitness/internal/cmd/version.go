package cmd

import (
	"github.com/coniks-sys/keywitness/cli"
)

var versionCmd = cli.NewVersionCommand("kwwitness")

func init() {
	RootCmd.AddCommand(versionCmd)
}
