// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"flag"
	"fmt"
	"io"
	"os"

	"grimm.is/portgate/internal/config"
	"grimm.is/portgate/internal/errors"
	"grimm.is/portgate/internal/install"
)

// RunInit writes a new config file.
func RunInit(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(out)
	path := fs.String("config", install.ConfigPath(), "Where to write the config file")
	force := fs.Bool("force", false, "Overwrite an existing file (kept as .bak)")
	var o overrides
	fs.StringVar(&o.iface, "iface", "", "Interface to attach to")
	fs.StringVar(&o.mode, "mode", "", "XDP attach mode: generic, driver or offload")
	fs.StringVar(&o.port, "port", "", "TCP destination port to drop")
	fs.StringVar(&o.listen, "listen", "", "Control API listen address")
	fs.BoolVar(&o.noAPI, "no-api", false, "Disable the control API")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := os.Stat(*path); err == nil && !*force {
		return errors.Attr(errors.Errorf(errors.KindValidation, "%s already exists (use -force to overwrite)", *path), "path", *path)
	}

	cfg := config.Default()
	if err := o.apply(cfg); err != nil {
		return err
	}
	if err := config.WriteFile(cfg, *path); err != nil {
		return err
	}

	fmt.Fprintf(out, "Wrote %s\n", *path)
	return nil
}
