// Package cmd implements the CLI commands for the keywitness
// publisher.
package cmd

import (
	"github.com/coniks-sys/keywitness/cli"
)

// RootCmd represents the base "kwserver" command when called without
// any subcommands.
var RootCmd = cli.NewRootCommand("kwserver",
	"Key directory publisher with witness certification",
	`kwserver publishes a key directory in epochs. Every epoch is
certified by a quorum of the witness committee before clients see it.`)
