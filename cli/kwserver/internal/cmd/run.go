package cmd

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path"
	"strconv"
	"syscall"

	"github.com/coniks-sys/keywitness/application/server"
	"github.com/coniks-sys/keywitness/cli"
	"github.com/spf13/cobra"
)

var runCmd = cli.NewRunCommand("kwserver",
	`Run the publisher.

This will look for config.toml in the current directory if not
specified differently. Send SIGUSR2 to reload the certification
round timeout and retries from the config file.`, run)

func init() {
	RootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolP("pid", "p", false, "Write down the process id to kwserver.pid in the current working directory")
}

func run(cmd *cobra.Command, args []string) {
	confPath := cmd.Flag("config").Value.String()
	// the flag parser reports malformed values
	if pid, _ := strconv.ParseBool(cmd.Flag("pid").Value.String()); pid {
		writePID("kwserver.pid")
	}

	conf := &server.Config{}
	if err := conf.Load(confPath, "toml"); err != nil {
		log.Fatal(err)
	}
	serv, err := server.New(conf)
	if err != nil {
		log.Fatal(err)
	}
	if err := serv.Run(); err != nil {
		serv.Shutdown()
		log.Fatal(err)
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
	serv.Shutdown()
}

func writePID(name string) {
	pidf, err := os.OpenFile(path.Join(".", name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		log.Printf("Cannot create %s: %v", name, err)
		return
	}
	defer pidf.Close()
	if _, err := fmt.Fprint(pidf, os.Getpid()); err != nil {
		log.Printf("Cannot write to pid file: %v", err)
	}
}
