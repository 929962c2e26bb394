// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"

	"grimm.is/portgate/internal/config"
	"grimm.is/portgate/internal/ebpf/controlplane"
	"grimm.is/portgate/internal/errors"
	"grimm.is/portgate/internal/portcfg"
)

// RunPort reads or changes the blocked port of a running daemon:
//
//	port [-api ADDR] get
//	port [-api ADDR] set PORT
//	port [-api ADDR] clear
func RunPort(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("port", flag.ContinueOnError)
	fs.SetOutput(out)
	api := fs.String("api", config.DefaultAPIListen, "Control API address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client := controlplane.NewClient(*api)
	rest := fs.Args()
	if len(rest) == 0 {
		rest = []string{"get"}
	}

	switch rest[0] {
	case "get":
		port, ok, err := client.GetPort(ctx)
		if err != nil {
			return err
		}
		printPort(out, port, ok)
		return nil

	case "set":
		if len(rest) != 2 {
			return errors.New(errors.KindValidation, "usage: port set PORT")
		}
		port, err := portcfg.ParsePort(rest[1])
		if err != nil {
			return err
		}
		if err := client.SetPort(ctx, port); err != nil {
			return err
		}
		printPort(out, port, true)
		return nil

	case "clear":
		if err := client.ClearPort(ctx); err != nil {
			return err
		}
		printPort(out, 0, false)
		return nil
	}
	return errors.Attr(errors.Errorf(errors.KindValidation, "unknown port command %q", rest[0]), "command", rest[0])
}

func printPort(out io.Writer, port uint16, ok bool) {
	if !ok {
		fmt.Fprintln(out, "blocked port: none")
		return
	}
	fmt.Fprintf(out, "blocked port: %d\n", port)
}
