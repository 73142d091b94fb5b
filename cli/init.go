package cli

import (
	"github.com/spf13/cobra"
)

// An initCommand is used to create an executable's configuration.
type initCommand struct {
	appName string
	long    string
	runFunc func(cmd *cobra.Command, args []string)
}

var _ cobraCommand = (*initCommand)(nil)

// NewInitCommand constructs a new InitCommand for the given
// executable's appName and the runFunc implementing
// the initialization command. An empty long selects the default
// description.
func NewInitCommand(appName, long string, runFunc func(cmd *cobra.Command, args []string)) *cobra.Command {
	if long == "" {
		long = "Create a configuration file for " + appName + "."
	}
	initCmd := &initCommand{
		appName: appName,
		long:    long,
		runFunc: runFunc,
	}
	return initCmd.Build()
}

// Build constructs the cobra.Command according to the
// InitCommand's settings.
func (initCmd *initCommand) Build() *cobra.Command {
	cmd := cobra.Command{
		Use:   "init",
		Short: "Create a configuration file for " + initCmd.appName + ".",
		Long:  initCmd.long,
		Args:  cobra.NoArgs,
		Run:   initCmd.runFunc,
	}
	return &cmd
}
