// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package replay runs the port filter over a recorded capture so a port
// choice can be checked before it is deployed.
package replay

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"os"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"

	"grimm.is/portgate/internal/errors"
	"grimm.is/portgate/internal/filter"
)

// pcapngMagic is the block type of a pcapng section header.
const pcapngMagic = 0x0A0D0D0A

// Result is the verdict for one captured frame.
type Result struct {
	Index     int
	Timestamp time.Time
	Length    int
	Data      []byte
	Verdict   filter.Verdict
	Gate      filter.Gate
}

// Summary totals a replay.
type Summary struct {
	Frames  int
	Dropped int
}

type packetReader interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// RunFile replays the capture at path. See Run.
func RunFile(ctx context.Context, path string, src filter.PortSource, fn func(Result) error) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, errors.Attr(errors.Wrap(err, errors.KindNotFound, "failed to open capture"), "path", path)
	}
	defer f.Close()
	return Run(ctx, f, src, fn)
}

// Run classifies every frame of a pcap or pcapng stream against src and
// passes each result to fn, which may be nil. Only Ethernet captures are
// accepted. Result.Data is only valid during the callback. Iteration stops
// at the first error returned by fn.
func Run(ctx context.Context, r io.Reader, src filter.PortSource, fn func(Result) error) (Summary, error) {
	var sum Summary

	pr, ng, err := open(r)
	if err != nil {
		return sum, err
	}
	if lt := pr.LinkType(); lt != layers.LinkTypeEthernet {
		return sum, errors.Attr(errors.Errorf(errors.KindValidation, "unsupported link type %s", lt), "link_type", lt.String())
	}

	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		data, ci, err := pr.ReadPacketData()
		if err == io.EOF {
			return sum, nil
		}
		if err != nil {
			return sum, errors.Attr(errors.Wrap(err, errors.KindValidation, "failed to read frame"), "frame", sum.Frames)
		}

		if ng != nil {
			iface, err := ng.Interface(ci.InterfaceIndex)
			if err == nil && iface.LinkType != layers.LinkTypeEthernet {
				return sum, errors.Attr(errors.Errorf(errors.KindValidation, "unsupported link type %s", iface.LinkType), "frame", sum.Frames)
			}
		}

		verdict, gate := filter.Trace(data, src)
		res := Result{
			Index:     sum.Frames,
			Timestamp: ci.Timestamp,
			Length:    ci.Length,
			Data:      data,
			Verdict:   verdict,
			Gate:      gate,
		}
		sum.Frames++
		if verdict == filter.Drop {
			sum.Dropped++
		}

		if fn != nil {
			if err := fn(res); err != nil {
				return sum, err
			}
		}
	}
}

func open(r io.Reader) (packetReader, *pcapgo.NgReader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.KindValidation, "capture too short")
	}

	if binary.LittleEndian.Uint32(magic) == pcapngMagic {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, nil, errors.Wrap(err, errors.KindValidation, "invalid pcapng capture")
		}
		return ng, ng, nil
	}

	pr, err := pcapgo.NewReader(br)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.KindValidation, "invalid pcap capture")
	}
	return pr, nil, nil
}
