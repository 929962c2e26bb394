// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command portgate drops TCP frames addressed to one configurable
// destination port, in XDP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"grimm.is/portgate/cmd"
	"grimm.is/portgate/internal/errors"
	"grimm.is/portgate/internal/logging"
)

const usage = `Usage: portgate <command> [flags]

Commands:
  run      Load and attach the filter, serve the control API
  replay   Classify a pcap/pcapng capture offline
  port     get | set PORT | clear on a running daemon
  status   Show the health of a running daemon
  reload   Re-read the config file in a running daemon
  stop     Stop a running daemon
  init     Write a config file

Run "portgate <command> -h" for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	name, args := os.Args[1], os.Args[2:]
	var err error
	switch name {
	case "run":
		err = cmd.RunDaemon(ctx, args)
	case "replay":
		err = cmd.RunReplay(ctx, args, os.Stdout)
	case "port":
		err = cmd.RunPort(ctx, args, os.Stdout)
	case "status":
		err = cmd.RunStatus(ctx, args, os.Stdout)
	case "reload":
		err = cmd.RunReload(args, os.Stdout)
	case "stop":
		err = cmd.RunStop(args, os.Stdout)
	case "init":
		err = cmd.RunInit(args, os.Stdout)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n%s", name, usage)
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		logging.Error("Command failed", append([]any{"command", name}, errors.LogArgs(err)...)...)
		os.Exit(1)
	}
}
