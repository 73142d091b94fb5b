// Package cmd implements the CLI commands for a keywitness client.
package cmd

import (
	"github.com/coniks-sys/keywitness/cli"
)

// RootCmd represents the base "kwclient" command when called without
// any subcommands.
var RootCmd = cli.NewRootCommand("kwclient",
	"Verifying client of a key directory",
	`kwclient looks up keys in a key directory and checks every answer
against the witness committee's certificates.`)
