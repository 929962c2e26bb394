// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"flag"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"grimm.is/portgate/internal/install"
)

// RunStop sends SIGTERM to the daemon and waits for it to remove its PID
// file, which it does after detaching.
func RunStop(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("stop", flag.ContinueOnError)
	fs.SetOutput(out)
	pidFile := fs.String("pidfile", install.PIDFile(), "Path to PID file")
	timeout := fs.Duration("timeout", 5*time.Second, "How long to wait for shutdown")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pid, err := readPIDFile(*pidFile)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Stopping portgate (PID: %d)...\n", pid)
	if err := signalPID(pid, syscall.SIGTERM); err != nil {
		return err
	}

	deadline := time.Now().Add(*timeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(*pidFile); os.IsNotExist(err) {
			fmt.Fprintln(out, "Stopped.")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Fprintln(out, "Warning: PID file still exists. Process might be stuck or slow to shutdown.")
	return nil
}
