// Command prepflow runs the notification preparation worker and submits, inspects and
// cancels preparations.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/notifyhub/prepflow/internal/config"
)

const usage = `usage: prepflow <command> [arguments]

commands:
  run [-submit input.json]   run the worker until interrupted
  submit input.json          start preparing a notification
  status <notification-id>   print the state of a notification
  cancel <notification-id>   cancel the preparation of a notification
  seed directory.json        load users and teams into the directory

configuration is read from PREPFLOW_ prefixed environment variables.
`

var errUsage = errors.New("invalid arguments")

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}

		fmt.Fprintln(os.Stderr, "prepflow:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := args[0], args[1:]
	switch cmd {
	case "run":
		fs := flag.NewFlagSet("run", flag.ContinueOnError)
		submit := fs.String("submit", "", "input file of a notification to submit once the worker runs")
		if err := fs.Parse(args); err != nil {
			return errUsage
		}

		return runWorker(ctx, cfg, *submit)

	case "submit":
		if len(args) != 1 {
			return errUsage
		}

		return withApp(ctx, cfg, func(a *app) error { return a.submitFile(ctx, args[0]) })

	case "status":
		if len(args) != 1 {
			return errUsage
		}

		return withApp(ctx, cfg, func(a *app) error { return a.printStatus(ctx, os.Stdout, args[0]) })

	case "cancel":
		if len(args) != 1 {
			return errUsage
		}

		return withApp(ctx, cfg, func(a *app) error { return a.cancel(ctx, args[0]) })

	case "seed":
		if len(args) != 1 {
			return errUsage
		}

		return withApp(ctx, cfg, func(a *app) error { return a.seed(ctx, args[0]) })
	}

	return errUsage
}

func withApp(ctx context.Context, cfg config.Config, f func(a *app) error) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	return errors.Join(f(a), a.Close(context.Background()))
}
