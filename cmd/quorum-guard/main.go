// cmd/quorum-guard/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, app *App, args []string) error
}

var commands = []command{
	{"charge", "add points to a user's balance", runCharge},
	{"use", "spend points from a user's balance", runUse},
	{"balance", "show a user's balance", runBalance},
	{"create-coupon", "create a coupon with a fixed quantity", runCreateCoupon},
	{"issue-coupon", "issue a coupon to a user", runIssueCoupon},
	{"coupon", "show a coupon", runGetCoupon},
	{"stress", "run concurrent operations against one key", runStress},
	{"clear-locks", "force-release locks matching a pattern", runClearLocks},
}

func usage(fs *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage: quorum-guard [flags] <command> [command flags]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-14s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(os.Stderr, "\nFlags:\n")
	fs.PrintDefaults()
}

func main() {
	fs := pflag.NewFlagSet("quorum-guard", pflag.ExitOnError)
	configPath := fs.StringP("config", "c", "", "path to a config file or directory")
	fs.SetInterspersed(false)
	fs.Usage = func() { usage(fs) }
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == fs.Arg(0) {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", fs.Arg(0))
		fs.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}

	err = cmd.run(ctx, app, fs.Args()[1:])
	app.Shutdown()
	if err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "%s: %v\n", cmd.name, err)
		}
		os.Exit(1)
	}
}
