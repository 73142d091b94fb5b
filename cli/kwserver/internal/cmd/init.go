package cmd

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/coniks-sys/keywitness/application/deploy"
	"github.com/coniks-sys/keywitness/cli"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var initCmd = cli.NewInitCommand("kwserver",
	`Generate a local committee: the publisher's signing and VRF keys,
one key per witness, the committee file, and the configs of the
publisher, every witness and a client.

Each server gets its own subdirectory of --dir.`, initRunFunc)

func init() {
	RootCmd.AddCommand(initCmd)
	initCmd.Flags().StringP("dir", "d", ".", "Location of directory for storing generated files")
	initCmd.Flags().IntP("witnesses", "w", 4, "Number of witnesses in the committee")
	initCmd.Flags().String("scheme", "", "Witness signature scheme (default ed25519-set)")
	initCmd.Flags().String("hash", "", "Tree hash (default SHAKE128)")
	initCmd.Flags().String("storage", "leveldb", "Storage backend: leveldb, postgres or memory")
	initCmd.Flags().String("gateway", "", "HTTP gateway address of the publisher, e.g. :8080")
	initCmd.Flags().BoolP("cert", "c", false, "Listen on localhost TCP with a generated self-signed certificate instead of unix sockets")
}

func initRunFunc(cmd *cobra.Command, args []string) {
	n, _ := strconv.Atoi(cmd.Flag("witnesses").Value.String())
	tcp, _ := strconv.ParseBool(cmd.Flag("cert").Value.String())
	l, err := deploy.Local(deploy.Options{
		Dir:       cmd.Flag("dir").Value.String(),
		Witnesses: n,
		Scheme:    cmd.Flag("scheme").Value.String(),
		HashID:    cmd.Flag("hash").Value.String(),
		Storage:   cmd.Flag("storage").Value.String(),
		Gateway:   cmd.Flag("gateway").Value.String(),
		TCP:       tcp,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Couldn't generate the committee: %v", err))
		os.Exit(-1)
	}
	bold := color.New(color.Bold)
	line := func(what, file string) {
		fmt.Println(color.GreenString("●  ") + bold.Sprintf("%-10s", what) + file)
	}
	line("committee", l.Committee)
	line("publisher", l.Server)
	names := make([]string, 0, len(l.Witnesses))
	for name := range l.Witnesses {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		line(name, l.Witnesses[name])
	}
	line("client", l.Client)
}
