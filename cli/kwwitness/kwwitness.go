// Executable keywitness witness. See README for usage instructions.
package main

import (
	"github.com/coniks-sys/keywitness/cli"
	"github.com/coniks-sys/keywitness/cli/kwwitness/internal/cmd"
)

func main() {
	cli.Execute(cmd.RootCmd)
}
