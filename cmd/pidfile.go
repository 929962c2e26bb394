// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"grimm.is/portgate/internal/errors"
)

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to create run directory")
	}
	if pid, err := readPIDFile(path); err == nil && processAlive(pid) && pid != os.Getpid() {
		return errors.Attr(errors.Errorf(errors.KindValidation, "process already running (PID: %d)", pid), "pid_file", path)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return errors.Attr(errors.Wrap(err, errors.KindInternal, "failed to write PID file"), "pid_file", path)
	}
	return nil
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.Attr(errors.Errorf(errors.KindNotFound, "no PID file found at %s (is the daemon running?)", path), "pid_file", path)
		}
		return 0, errors.Wrap(err, errors.KindInternal, "failed to read PID file")
	}

	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return 0, errors.Errorf(errors.KindValidation, "invalid PID in file: %q", pidStr)
	}
	return pid, nil
}

// processAlive sends signal 0 to pid.
func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}

func signalPID(pid int, sig syscall.Signal) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return errors.Wrapf(err, errors.KindNotFound, "process %d not found", pid)
	}
	if err := p.Signal(sig); err != nil {
		return errors.Wrapf(err, errors.KindUnavailable, "failed to send %s to %d", sig, pid)
	}
	return nil
}
