package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coniks-sys/keywitness/application/client"
	"github.com/coniks-sys/keywitness/cli"
	"github.com/coniks-sys/keywitness/protocol"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh/terminal"
)

const help = "- lookup [identity]:\r\n" +
	"	Look up the certified value of an identity.\r\n" +
	"- history [identity]:\r\n" +
	"	List every certified value of an identity.\r\n" +
	"- publish [identity] [value]:\r\n" +
	"	Submit a new value for an identity.\r\n" +
	"- sync:\r\n" +
	"	Audit the directory up to its latest certified epoch.\r\n" +
	"- crosscheck:\r\n" +
	"	Compare the trusted root with the witnesses' certificates.\r\n" +
	"- enable timestamp:\r\n" +
	"	Print timestamp of format <15:04:05.999999999> along with the result.\r\n" +
	"- disable timestamp:\r\n" +
	"	Disable timestamp printing.\r\n" +
	"- help:\r\n" +
	"	Display this message.\r\n" +
	"- exit, q:\r\n" +
	"	Close the REPL and exit the client."

const requestTimeout = 5 * time.Second

var runCmd = cli.NewRunCommand("kwclient",
	"Run gives you a REPL to query and update the directory. Every answer is verified before it is shown. It supports:\n"+help, run)

func init() {
	RootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolP("debug", "d", false, "Turn on debugging mode")
}

func run(cmd *cobra.Command, args []string) {
	isDebugging, _ := strconv.ParseBool(cmd.Flag("debug").Value.String())
	conf := loadConfigOrExit(cmd)
	cc := client.New(conf)

	state, err := terminal.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		log.Fatal(err)
	}
	defer terminal.Restore(int(os.Stdin.Fd()), state)
	term := terminal.NewTerminal(os.Stdin, "kwclient> ")
	for {
		line, err := term.ReadLine()
		if err != nil {
			writeLineInRawMode(term, err.Error(), isDebugging)
			return
		}

		args := strings.Fields(line)
		if len(args) < 1 {
			writeLineInRawMode(term, `[!] Type "help" for more information.`, isDebugging)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		var msg string
		stamp := isDebugging
		switch cmd := args[0]; {
		case cmd == "exit" || cmd == "q":
			cancel()
			writeLineInRawMode(term, "[+] See ya.", isDebugging)
			return
		case cmd == "help":
			msg, stamp = help, false
		case (cmd == "enable" || cmd == "disable") && len(args) == 2 && args[1] == "timestamp":
			isDebugging = cmd == "enable"
		case cmd == "lookup" && len(args) == 2:
			msg = "[+] " + lookup(ctx, cc, args[1])
		case cmd == "history" && len(args) == 2:
			msg = "[+] " + history(ctx, cc, args[1])
		case cmd == "publish" && len(args) == 3:
			msg = "[+] " + publish(ctx, cc, args[1], args[2])
		case cmd == "sync" && len(args) == 1:
			msg = "[+] " + sync(ctx, cc)
		case cmd == "crosscheck" && len(args) == 1:
			msg = "[+] " + crossCheck(ctx, cc)
		default:
			msg = "[!] Unrecognized command: " + line
		}
		cancel()
		if msg != "" {
			writeLineInRawMode(term, msg, stamp)
		}
	}
}

func lookup(ctx context.Context, cc *client.Client, identity string) string {
	v, p, err := cc.Lookup(ctx, identity)
	if err != nil {
		return "Error: " + err.Error()
	}
	if v == nil {
		return fmt.Sprintf("%s has no value at epoch %d.", identity, p.Epoch)
	}
	return fmt.Sprintf("Found! Value bound to %s at epoch %d is: [%s]", identity, p.Epoch, v)
}

func history(ctx context.Context, cc *client.Client, identity string) string {
	h, err := cc.KeyHistory(ctx, identity)
	if err == protocol.ErrNotFound {
		return identity + " has no value."
	}
	if err != nil {
		return "Error: " + err.Error()
	}
	lines := []string{fmt.Sprintf("%s up to epoch %d:", identity, h.Epoch)}
	for _, e := range h.History.Entries {
		lines = append(lines, fmt.Sprintf("  epoch %d: [%s]", e.Epoch, e.Value))
	}
	return strings.Join(lines, "\r\n")
}

func publish(ctx context.Context, cc *client.Client, identity, value string) string {
	n, err := cc.Publish(ctx, []protocol.Update{{Identity: identity, Value: []byte(value)}})
	if err != nil {
		return "Error: " + err.Error()
	}
	return fmt.Sprintf("Published in epoch %d, waiting for certification.", n.Epoch)
}

func sync(ctx context.Context, cc *client.Client) string {
	epoch, err := cc.Sync(ctx)
	if err != nil {
		return "Error: " + err.Error()
	}
	return fmt.Sprintf("Audited up to epoch %d.", epoch)
}

func crossCheck(ctx context.Context, cc *client.Client) string {
	agreed, err := cc.CrossCheck(ctx)
	if err == protocol.ErrCertificateMismatch {
		return "A witness certified another root. The publisher equivocated!"
	}
	if err != nil {
		return "Error: " + err.Error()
	}
	epoch, _ := cc.Epoch()
	return fmt.Sprintf("%d witnesses agree on epoch %d.", agreed, epoch)
}
