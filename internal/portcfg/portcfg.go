// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package portcfg holds the single blocked-port configuration cell.
//
// The cell is one 32-bit word: bit 16 marks a port as configured and the
// low 16 bits carry the port in host byte order. The zero word means no
// port is configured. The kernel map value uses the same layout.
package portcfg

import (
	"strconv"
	"strings"
	"sync/atomic"

	"grimm.is/portgate/internal/errors"
)

// PresentBit marks a cell word as holding a configured port.
const PresentBit uint32 = 1 << 16

// Encode packs a configured port into a cell word.
func Encode(port uint16) uint32 {
	return PresentBit | uint32(port)
}

// Decode unpacks a cell word. ok is false when no port is configured.
func Decode(word uint32) (port uint16, ok bool) {
	if word&PresentBit == 0 {
		return 0, false
	}
	return uint16(word), true
}

// Cell is the in-process configuration store. The zero value has no port
// configured and is ready to use. Reads and writes are single atomic word
// operations, so a read concurrent with Set sees either the old or the new
// port.
type Cell struct {
	word atomic.Uint32
}

// Set replaces the configured port. Every value, including 0, is accepted.
func (c *Cell) Set(port uint16) {
	c.word.Store(Encode(port))
}

// Get returns the configured port, if any.
func (c *Cell) Get() (uint16, bool) {
	return Decode(c.word.Load())
}

// Clear removes the configured port.
func (c *Cell) Clear() {
	c.word.Store(0)
}

// BlockedPort implements filter.PortSource.
func (c *Cell) BlockedPort() (uint16, bool) {
	return c.Get()
}

// ParsePort parses a decimal TCP port in 0..65535.
func ParsePort(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0, errors.Attr(errors.Wrapf(err, errors.KindValidation, "invalid port %q", s), "port", s)
	}
	return uint16(v), nil
}

// CheckPort validates an integer port coming from config or JSON input.
func CheckPort(v int) (uint16, error) {
	if v < 0 || v > 0xffff {
		return 0, errors.Attr(errors.Errorf(errors.KindValidation, "port %d out of range 0-65535", v), "port", v)
	}
	return uint16(v), nil
}
