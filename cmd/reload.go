// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"flag"
	"fmt"
	"io"
	"syscall"

	"grimm.is/portgate/internal/config"
	"grimm.is/portgate/internal/errors"
	"grimm.is/portgate/internal/install"
)

// RunReload validates the config file and asks the running daemon to
// re-read it.
func RunReload(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("reload", flag.ContinueOnError)
	fs.SetOutput(out)
	configFile := fs.String("config", install.ConfigPath(), "Path to config file")
	pidFile := fs.String("pidfile", install.PIDFile(), "Path to PID file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// 1. Validate the configuration first
	fmt.Fprintf(out, "Validating configuration: %s\n", *configFile)
	cfg, err := config.LoadFile(*configFile)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		return errors.Wrap(err, errors.GetKind(err), "configuration validation failed")
	}
	fmt.Fprintln(out, "Configuration is valid.")

	// 2. Find the running daemon
	pid, err := readPIDFile(*pidFile)
	if err != nil {
		return err
	}

	// 3. Send SIGHUP
	fmt.Fprintf(out, "Sending SIGHUP to process %d...\n", pid)
	if err := signalPID(pid, syscall.SIGHUP); err != nil {
		return err
	}

	fmt.Fprintln(out, "Reload signal sent successfully.")
	return nil
}
