// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package cmd implements the portgate subcommands.
package cmd

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"grimm.is/portgate/internal/config"
	"grimm.is/portgate/internal/ebpf/controlplane"
	"grimm.is/portgate/internal/ebpf/interfaces"
	"grimm.is/portgate/internal/ebpf/loader"
	"grimm.is/portgate/internal/ebpf/programs"
	"grimm.is/portgate/internal/errors"
	"grimm.is/portgate/internal/install"
	"grimm.is/portgate/internal/logging"
	"grimm.is/portgate/internal/portcfg"
)

type overrides struct {
	iface  string
	mode   string
	port   string
	listen string
	noAPI  bool
}

// apply copies every non-empty override onto cfg. A port of "none" clears
// the configured port.
func (o overrides) apply(cfg *config.Config) error {
	if o.iface != "" {
		cfg.Interface = o.iface
	}
	if o.mode != "" {
		cfg.AttachMode = o.mode
	}
	switch strings.ToLower(o.port) {
	case "":
	case "none":
		cfg.BlockedPort = nil
	default:
		port, err := portcfg.ParsePort(o.port)
		if err != nil {
			return err
		}
		cfg.SetPort(port)
	}
	if o.listen != "" {
		cfg.API = &config.APIConfig{Enabled: true, Listen: o.listen}
	}
	if o.noAPI {
		cfg.API = nil
	}
	return nil
}

// loadConfig reads path, or the default path if it exists, or starts from
// config.Default. Overrides are applied before validation.
func loadConfig(path string, o overrides) (*config.Config, string, error) {
	if path == "" {
		if _, err := os.Stat(install.ConfigPath()); err == nil {
			path = install.ConfigPath()
		}
	}

	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.LoadFile(path); err != nil {
			return nil, path, err
		}
	}

	if err := o.apply(cfg); err != nil {
		return nil, path, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// applyPort writes the configured port, or clears it, in store.
func applyPort(store interfaces.PortStore, cfg *config.Config, logger *logging.Logger) error {
	if port, ok := cfg.Port(); ok {
		if err := store.SetBlockedPort(port); err != nil {
			return err
		}
		logger.Info("Blocking TCP destination port", "port", port)
		return nil
	}
	if err := store.ClearBlockedPort(); err != nil {
		return err
	}
	logger.Info("No blocked port configured; all traffic passes")
	return nil
}

// RunDaemon loads the XDP program, attaches it and serves the control API
// until ctx is cancelled. SIGHUP reloads the blocked port from the config
// file.
func RunDaemon(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file (default "+install.ConfigPath()+" if present)")
	pidFile := fs.String("pidfile", install.PIDFile(), "Path to PID file")
	var o overrides
	fs.StringVar(&o.iface, "iface", "", "Interface to attach to")
	fs.StringVar(&o.mode, "mode", "", "XDP attach mode: generic, driver or offload")
	fs.StringVar(&o.port, "port", "", "TCP destination port to drop, or none")
	fs.StringVar(&o.listen, "listen", "", "Control API listen address")
	fs.BoolVar(&o.noAPI, "no-api", false, "Disable the control API")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, path, err := loadConfig(*configPath, o)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.LoggingConfig())
	logging.SetDefault(logger)
	if err := SetProcessName("portgate"); err != nil {
		logger.Debug("Failed to set process name", "error", err)
	}

	d := &daemon{
		cfg:        cfg,
		configPath: path,
		overrides:  o,
		pidFile:    *pidFile,
		logger:     logger.WithComponent("daemon"),
	}
	return d.run(ctx)
}

type daemon struct {
	cfg        *config.Config
	configPath string
	overrides  overrides
	pidFile    string
	logger     *logging.Logger
}

func (d *daemon) run(ctx context.Context) error {
	if err := loader.VerifyKernelSupport(); err != nil {
		return err
	}
	if err := loader.RemoveMemlock(); err != nil {
		return err
	}

	mode, err := loader.ParseAttachMode(d.cfg.AttachMode)
	if err != nil {
		return err
	}

	l := loader.NewLoader(d.logger)
	if err := l.LoadCollection(programs.NewDropPortSpec()); err != nil {
		return err
	}
	defer func() {
		if err := l.Close(); err != nil {
			d.logger.Error("Failed to detach cleanly", errors.LogArgs(err)...)
		}
	}()

	pm, err := l.PortMap()
	if err != nil {
		return err
	}
	// Seed before attaching so the first frame already sees the port.
	if err := applyPort(pm, d.cfg, d.logger); err != nil {
		return err
	}

	if err := l.AttachXDP(programs.DropPortProgram, d.cfg.Interface, mode); err != nil {
		return err
	}

	if d.cfg.APIEnabled() {
		cp, err := controlplane.NewControlPlane(controlplane.Options{
			Store:  pm,
			Status: l,
			Logger: d.logger,
			Listen: d.cfg.API.Listen,
		})
		if err != nil {
			return err
		}
		if err := cp.Start(); err != nil {
			return err
		}
		defer cp.Stop()
	}

	if d.pidFile != "" {
		if err := writePIDFile(d.pidFile); err != nil {
			return err
		}
		defer os.Remove(d.pidFile)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	d.logger.Info("portgate running", "interface", d.cfg.Interface, "mode", mode)
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Shutting down")
			return nil
		case <-hup:
			d.reload(pm)
		}
	}
}

// reload re-reads the config file and applies its blocked port. Interface
// and mode changes need a restart.
func (d *daemon) reload(store interfaces.PortStore) {
	if d.configPath == "" {
		d.logger.Warn("Reload requested but no config file is in use")
		return
	}

	cfg, _, err := loadConfig(d.configPath, d.overrides)
	if err != nil {
		d.logger.Error("Reload failed; keeping current configuration", errors.LogArgs(err)...)
		return
	}
	if cfg.Interface != d.cfg.Interface || !strings.EqualFold(cfg.AttachMode, d.cfg.AttachMode) {
		d.logger.Warn("Interface or attach mode changed; restart to apply",
			"interface", cfg.Interface, "attach_mode", cfg.AttachMode)
	}
	if err := applyPort(store, cfg, d.logger); err != nil {
		d.logger.Error("Failed to apply reloaded port", errors.LogArgs(err)...)
		return
	}
	d.cfg.BlockedPort = cfg.BlockedPort
	d.logger.Info("Configuration reloaded", "path", d.configPath)
}
