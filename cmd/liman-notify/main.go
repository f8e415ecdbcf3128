// liman-notify is a terminal client for Liman notifications. It keeps a
// live list of the user's unread notifications, raises desktop alerts for
// new ones and acknowledges them to the server once displayed.
//
// Usage:
//
//	liman-notify [flags] [command]
//
// Commands:
//
//	login     authenticate and store the session in the system keyring
//	logout    revoke the stored session
//	watch     live notification panel (default)
//	unread    print the unread notifications once
//	read-all  mark every notification read
//	history   print the local delivery journal
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
)

type options struct {
	configPath string
	verbose    bool
	plain      bool
	limit      int
}

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, opts options) error
}

var commands = []command{
	{"login", "authenticate and store the session", runLogin},
	{"logout", "revoke the stored session", runLogout},
	{"watch", "live notification panel (default)", runWatch},
	{"unread", "print the unread notifications once", runUnread},
	{"read-all", "mark every notification read", runReadAll},
	{"history", "print the local delivery journal", runHistory},
}

func main() {
	if err := run(); err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options

	flagSet := pflag.NewFlagSet("liman-notify", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "config file (default ~/.config/liman-notify/config.yaml)")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	flagSet.BoolVar(&opts.plain, "plain", false, "watch: print deliveries as lines instead of the panel")
	flagSet.IntVarP(&opts.limit, "limit", "n", 50, "history: number of entries")
	flagSet.BoolP("help", "h", false, "show help")
	flagSet.SetInterspersed(true)

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	name := "watch"
	if args := flagSet.Args(); len(args) > 0 {
		name = args[0]
		if len(args) > 1 {
			return fmt.Errorf("unexpected argument: %s", args[1])
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, c := range commands {
		if c.name == name {
			return c.run(ctx, opts)
		}
	}
	return fmt.Errorf("unknown command %q (see --help)", name)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "liman-notify: Liman notifications in the terminal.\n\n")
	fmt.Fprintf(os.Stderr, "Usage:\n  liman-notify [flags] [command]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-9s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(os.Stderr, "\nFlags:\n")
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
