// Executable keywitness client. See README for usage instructions.
package main

import (
	"github.com/coniks-sys/keywitness/cli"
	"github.com/coniks-sys/keywitness/cli/kwclient/internal/cmd"
)

func main() {
	cli.Execute(cmd.RootCmd)
}
