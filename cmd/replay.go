// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"

	"grimm.is/portgate/internal/config"
	"grimm.is/portgate/internal/errors"
	"grimm.is/portgate/internal/filter"
	"grimm.is/portgate/internal/portcfg"
	"grimm.is/portgate/internal/replay"
)

// RunReplay classifies a recorded capture offline. Dropped frames are
// listed; -v lists every frame.
func RunReplay(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(out)
	pcapPath := fs.String("pcap", "", "Capture file (pcap or pcapng)")
	portFlag := fs.String("port", "", "TCP destination port to drop")
	configPath := fs.String("config", "", "Take the blocked port from this config file")
	verbose := fs.Bool("v", false, "List every frame, not just drops")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *pcapPath == "" && fs.NArg() > 0 {
		*pcapPath = fs.Arg(0)
	}
	if *pcapPath == "" {
		return errors.New(errors.KindValidation, "a capture file is required (-pcap FILE)")
	}

	var cell portcfg.Cell
	switch {
	case *portFlag != "":
		port, err := portcfg.ParsePort(*portFlag)
		if err != nil {
			return err
		}
		cell.Set(port)
	case *configPath != "":
		cfg, err := config.LoadFile(*configPath)
		if err != nil {
			return err
		}
		if cfg.BlockedPort != nil {
			port, err := portcfg.CheckPort(*cfg.BlockedPort)
			if err != nil {
				return errors.Attr(err, "path", *configPath)
			}
			cell.Set(port)
		}
	}

	if port, ok := cell.BlockedPort(); ok {
		fmt.Fprintf(out, "Replaying %s, blocking TCP port %d\n", *pcapPath, port)
	} else {
		fmt.Fprintf(out, "Replaying %s with no blocked port; every frame passes\n", *pcapPath)
	}

	sum, err := replay.RunFile(ctx, *pcapPath, &cell, func(r replay.Result) error {
		if *verbose || r.Verdict == filter.Drop {
			fmt.Fprintf(out, "%6d  %-4s  %-15s  %s\n", r.Index, r.Verdict, r.Gate, replay.Describe(r.Data))
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%d frames, %d dropped\n", sum.Frames, sum.Dropped)
	return nil
}
