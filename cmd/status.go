// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"grimm.is/portgate/internal/config"
	"grimm.is/portgate/internal/ebpf/controlplane"
	"grimm.is/portgate/internal/errors"
)

// RunStatus prints the health report of a running daemon. An unhealthy
// daemon is reported and returned as a KindUnavailable error.
func RunStatus(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(out)
	api := fs.String("api", config.DefaultAPIListen, "Control API address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	h, err := controlplane.NewClient(*api).Health(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "healthy: %s\n", yesNo(h.Healthy))
	fmt.Fprintf(out, "loaded:  %s\n", yesNo(h.Loaded))
	if h.Program != nil {
		fmt.Fprintf(out, "program: %s (%s, id %d, tag %s)\n", h.Program.Name, h.Program.Type, h.Program.ID, h.Program.Tag)
	}
	if h.Map != nil {
		fmt.Fprintf(out, "map:     %s (%s, key %d, value %d, %d entries)\n",
			h.Map.Name, h.Map.Type, h.Map.KeySize, h.Map.ValueSize, h.Map.MaxEntries)
	}
	for _, a := range h.Attachments {
		fmt.Fprintf(out, "attached: %s (ifindex %d, %s) since %s\n",
			a.Interface, a.Index, a.Mode, a.AttachedAt.Format(time.RFC3339))
	}

	if !h.Healthy {
		return errors.New(errors.KindUnavailable, "daemon is not healthy")
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
