// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package loader

import (
	"github.com/cilium/ebpf"

	"grimm.is/portgate/internal/ebpf/interfaces"
	"grimm.is/portgate/internal/errors"
	"grimm.is/portgate/internal/portcfg"
)

// MapWrapper wraps an eBPF map to implement the interfaces.Map interface
type MapWrapper struct {
	ebpfMap *ebpf.Map
}

// NewMapWrapper creates a new map wrapper
func NewMapWrapper(m *ebpf.Map) *MapWrapper {
	return &MapWrapper{ebpfMap: m}
}

// Info returns kernel information about the map
func (m *MapWrapper) Info() (interfaces.MapInfo, error) {
	info, err := m.ebpfMap.Info()
	if err != nil {
		return interfaces.MapInfo{}, err
	}

	return interfaces.MapInfo{
		Name:       info.Name,
		Type:       info.Type.String(),
		KeySize:    info.KeySize,
		ValueSize:  info.ValueSize,
		MaxEntries: info.MaxEntries,
	}, nil
}

// PortMap is the kernel-side blocked-port cell: slot 0 of a one-entry u32
// array holding a portcfg word. The kernel copies the aligned 4-byte value
// whole, so the XDP program sees either the old or the new port.
type PortMap struct {
	*MapWrapper
}

var portKey uint32

// NewPortMap validates m's layout and wraps it.
func NewPortMap(m *ebpf.Map) (*PortMap, error) {
	if m == nil {
		return nil, errors.New(errors.KindNotFound, "port map is nil")
	}
	if m.Type() != ebpf.Array || m.KeySize() != 4 || m.ValueSize() != 4 || m.MaxEntries() < 1 {
		return nil, errors.Errorf(errors.KindValidation,
			"port map must be a u32 array with at least one entry, got %s key=%d value=%d entries=%d",
			m.Type(), m.KeySize(), m.ValueSize(), m.MaxEntries())
	}
	return &PortMap{MapWrapper: NewMapWrapper(m)}, nil
}

// SetBlockedPort stores port in the kernel map.
func (p *PortMap) SetBlockedPort(port uint16) error {
	if err := p.ebpfMap.Update(portKey, portcfg.Encode(port), ebpf.UpdateAny); err != nil {
		return errors.Attr(errors.Wrap(err, errors.KindInternal, "failed to update port map"), "port", port)
	}
	return nil
}

// ClearBlockedPort stores the unset word.
func (p *PortMap) ClearBlockedPort() error {
	if err := p.ebpfMap.Update(portKey, uint32(0), ebpf.UpdateAny); err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to clear port map")
	}
	return nil
}

// BlockedPort reads the configured port back from the kernel map.
func (p *PortMap) BlockedPort() (uint16, bool, error) {
	var word uint32
	if err := p.ebpfMap.Lookup(portKey, &word); err != nil {
		return 0, false, errors.Wrap(err, errors.KindInternal, "failed to read port map")
	}
	port, ok := portcfg.Decode(word)
	return port, ok, nil
}
