// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads, validates and writes the portgate HCL configuration.
package config

import (
	"grimm.is/portgate/internal/logging"
)

// CurrentSchemaVersion defines the current schema version of the configuration.
const CurrentSchemaVersion = "1.0"

// DefaultAPIListen is the control API address used when none is configured.
const DefaultAPIListen = "127.0.0.1:8089"

// Config is the top-level portgate configuration.
type Config struct {
	// Schema version for backward compatibility.
	// @default: "1.0"
	SchemaVersion string `hcl:"schema_version,optional" json:"schema_version,omitempty"`

	// Interface the XDP program is attached to.
	// @example: "eth0"
	Interface string `hcl:"interface,optional" json:"interface,omitempty"`

	// XDP attach mode: generic, driver or offload.
	// @default: "generic"
	AttachMode string `hcl:"attach_mode,optional" json:"attach_mode,omitempty"`

	// TCP destination port to drop. Omitted means nothing is dropped.
	BlockedPort *int `hcl:"blocked_port,optional" json:"blocked_port,omitempty"`

	API *APIConfig `hcl:"api,block" json:"api,omitempty"`
	Log *LogConfig `hcl:"log,block" json:"log,omitempty"`
}

// APIConfig configures the local control API.
type APIConfig struct {
	// @default: true
	Enabled bool `hcl:"enabled,optional" json:"enabled"`
	// @default: "127.0.0.1:8089"
	Listen string `hcl:"listen,optional" json:"listen,omitempty"`
}

// LogConfig configures daemon logging.
type LogConfig struct {
	// debug, info, warn or error.
	Level string `hcl:"level,optional" json:"level,omitempty"`
	JSON  bool   `hcl:"json,optional" json:"json,omitempty"`
}

// Default returns a config with no interface and no blocked port.
func Default() *Config {
	return &Config{
		SchemaVersion: CurrentSchemaVersion,
		AttachMode:    "generic",
		API: &APIConfig{
			Enabled: true,
			Listen:  DefaultAPIListen,
		},
		Log: &LogConfig{Level: "info"},
	}
}

// applyDefaults fills fields a file left out.
func (c *Config) applyDefaults() {
	if c.SchemaVersion == "" {
		c.SchemaVersion = CurrentSchemaVersion
	}
	if c.AttachMode == "" {
		c.AttachMode = "generic"
	}
	if c.API != nil && c.API.Listen == "" {
		c.API.Listen = DefaultAPIListen
	}
	if c.Log == nil {
		c.Log = &LogConfig{}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Port returns the configured blocked port, if any. Call Validate first;
// out-of-range values report as unset.
func (c *Config) Port() (uint16, bool) {
	if c == nil || c.BlockedPort == nil {
		return 0, false
	}
	p := *c.BlockedPort
	if p < 0 || p > 65535 {
		return 0, false
	}
	return uint16(p), true
}

// SetPort sets the blocked port.
func (c *Config) SetPort(port uint16) {
	p := int(port)
	c.BlockedPort = &p
}

// APIEnabled reports whether the control API should be served.
func (c *Config) APIEnabled() bool {
	return c.API != nil && c.API.Enabled
}

// LoggingConfig converts the log block into a logging.Config. An
// unparseable level falls back to info.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	if c == nil || c.Log == nil {
		return cfg
	}
	if level, err := logging.ParseLevel(c.Log.Level); err == nil {
		cfg.Level = level
	}
	cfg.JSON = c.Log.JSON
	return cfg
}
