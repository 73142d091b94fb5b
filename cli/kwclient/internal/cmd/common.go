package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/coniks-sys/keywitness/application/client"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh/terminal"
)

const configMissingUsage = `
Couldn't load client's config-file.

To create a valid config, run
  kwserver init
which generates a committee together with a client config in
client/config.toml, or
  kwclient init --committee <file> --address <publisher address>
to talk to an existing publisher.

The client looks for a file called 'config.toml' in its current
working directory. Use --config to load another file.
`

func loadConfigOrExit(cmd *cobra.Command) *client.Config {
	conf := &client.Config{}
	if err := conf.Load(cmd.Flag("config").Value.String(), "toml"); err != nil {
		fmt.Println(err)
		fmt.Print(configMissingUsage)
		os.Exit(-1)
	}
	return conf
}

// append "\r\n" to msg and then write to terminal in raw mode.
func writeLineInRawMode(term *terminal.Terminal, msg string, printTimestamp bool) {
	if printTimestamp {
		term.Write([]byte("<" + time.Now().Format("15:04:05.999999999") + "> "))
	}
	term.Write([]byte(msg + "\r\n"))
}
