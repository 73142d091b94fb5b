// Package cli builds the cobra commands shared by the keywitness
// executables: root, init, run and version.
package cli

import (
	"github.com/spf13/cobra"
)

// cobraCommand is used to implement any type of cobra command
// for any of the keywitness command-line tools.
type cobraCommand interface {
	Build() *cobra.Command
}
