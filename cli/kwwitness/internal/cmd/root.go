// Package cmd implements the CLI commands for a keywitness witness.
package cmd

import (
	"github.com/coniks-sys/keywitness/cli"
)

// RootCmd represents the base "kwwitness" command when called without
// any subcommands.
var RootCmd = cli.NewRootCommand("kwwitness",
	"Witness of a key directory",
	`kwwitness checks every epoch the publisher announces against the
last certified one and votes for at most one root per epoch.`)
