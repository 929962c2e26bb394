// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package install resolves where portgate keeps its config and runtime
// files.
package install

import (
	"os"
	"path/filepath"
)

const (
	// EnvPrefix prefixes every path override variable.
	EnvPrefix = "PORTGATE"

	ConfigFileName = "portgate.hcl"
	PIDFileName    = "portgate.pid"
)

// Build-time path overrides (set via -ldflags).
var (
	BuildDefaultConfigDir = ""
	BuildDefaultRunDir    = ""
)

// GetConfigDir returns the config directory, checking env vars first.
// Priority: PORTGATE_CONFIG_DIR > PORTGATE_PREFIX/config > build default > /etc/portgate
func GetConfigDir() string {
	return resolve("_CONFIG_DIR", "config", BuildDefaultConfigDir, "/etc/portgate")
}

// GetRunDir returns the runtime directory for PID files.
// Priority: PORTGATE_RUN_DIR > PORTGATE_PREFIX/run > build default > /run/portgate
func GetRunDir() string {
	return resolve("_RUN_DIR", "run", BuildDefaultRunDir, "/run/portgate")
}

// ConfigPath is the config file the daemon reads when none is given.
func ConfigPath() string {
	return filepath.Join(GetConfigDir(), ConfigFileName)
}

// PIDFile is where the daemon records its PID for reload and stop.
func PIDFile() string {
	return filepath.Join(GetRunDir(), PIDFileName)
}

func resolve(envSuffix, prefixSub, build, fallback string) string {
	if dir := os.Getenv(EnvPrefix + envSuffix); dir != "" {
		return dir
	}
	if prefix := os.Getenv(EnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, prefixSub)
	}
	if build != "" {
		return build
	}
	return fallback
}
