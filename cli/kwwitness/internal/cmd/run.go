package cmd

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/coniks-sys/keywitness/application/witness"
	"github.com/coniks-sys/keywitness/cli"
	"github.com/spf13/cobra"
)

var runCmd = cli.NewRunCommand("kwwitness",
	`Run a witness.

This will look for config.toml in the current directory if not
specified differently.`, run)

func init() {
	RootCmd.AddCommand(runCmd)
}

func run(cmd *cobra.Command, args []string) {
	conf := &witness.Config{}
	if err := conf.Load(cmd.Flag("config").Value.String(), "toml"); err != nil {
		log.Fatal(err)
	}
	w, err := witness.New(conf)
	if err != nil {
		log.Fatal(err)
	}
	if err := w.Run(); err != nil {
		w.Shutdown()
		log.Fatal(err)
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
	w.Shutdown()
}
