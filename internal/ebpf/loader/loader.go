// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package loader loads eBPF collections into the kernel and attaches XDP
// programs to network interfaces.
package loader

import (
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/features"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/rlimit"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"grimm.is/portgate/internal/ebpf/interfaces"
	"grimm.is/portgate/internal/ebpf/programs"
	"grimm.is/portgate/internal/errors"
	"grimm.is/portgate/internal/logging"
)

// AttachMode selects how an XDP program is attached.
type AttachMode string

const (
	// ModeGeneric runs XDP in the kernel network stack (skb mode); works on
	// every driver.
	ModeGeneric AttachMode = "generic"
	// ModeDriver runs XDP in the NIC driver.
	ModeDriver AttachMode = "driver"
	// ModeOffload runs XDP on the NIC itself.
	ModeOffload AttachMode = "offload"
)

// ParseAttachMode parses a mode name. The empty string means generic.
func ParseAttachMode(s string) (AttachMode, error) {
	switch m := AttachMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeGeneric, nil
	case ModeGeneric, ModeDriver, ModeOffload:
		return m, nil
	}
	return "", errors.Attr(errors.Errorf(errors.KindValidation, "unknown attach mode %q", s), "attach_mode", s)
}

func (m AttachMode) flags() link.XDPAttachFlags {
	switch m {
	case ModeDriver:
		return link.XDPDriverMode
	case ModeOffload:
		return link.XDPOffloadMode
	default:
		return link.XDPGenericMode
	}
}

// Loader handles loading and attaching eBPF programs
type Loader struct {
	collection  *ebpf.Collection
	links       []link.Link
	attachments []interfaces.Attachment
	programs    map[string]*ebpf.Program
	maps        map[string]*ebpf.Map
	loadedAt    time.Time
	loaded      bool
	logger      *logging.Logger
	mutex       sync.Mutex
}

// NewLoader creates a new eBPF loader. A nil logger uses the default.
func NewLoader(logger *logging.Logger) *Loader {
	if logger == nil {
		logger = logging.Default()
	}
	return &Loader{
		programs: make(map[string]*ebpf.Program),
		maps:     make(map[string]*ebpf.Map),
		logger:   logger.WithComponent("loader"),
	}
}

// LoadCollection loads an eBPF collection from a spec
func (l *Loader) LoadCollection(spec *ebpf.CollectionSpec) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.loaded {
		return errors.New(errors.KindInternal, "collection already loaded")
	}

	collection, err := ebpf.NewCollection(spec)
	if err != nil {
		return errors.Wrap(err, errors.KindUnavailable, "failed to create collection")
	}

	l.collection = collection
	for name, program := range collection.Programs {
		l.programs[name] = program
	}
	for name, m := range collection.Maps {
		l.maps[name] = m
	}
	l.loadedAt = time.Now()
	l.loaded = true

	l.logger.Info("Loaded eBPF collection", "programs", len(l.programs), "maps", len(l.maps))
	return nil
}

// AttachXDP attaches the named program to iface.
func (l *Loader) AttachXDP(name, iface string, mode AttachMode) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if !l.loaded {
		return errors.New(errors.KindInternal, "no collection loaded")
	}

	prog, exists := l.programs[name]
	if !exists {
		return errors.Attr(errors.Errorf(errors.KindNotFound, "program %s not found in collection", name), "program", name)
	}

	index, err := l.resolveInterface(iface)
	if err != nil {
		return err
	}

	lnk, err := link.AttachXDP(link.XDPOptions{
		Program:   prog,
		Interface: index,
		Flags:     mode.flags(),
	})
	if err != nil {
		err = errors.Wrapf(err, errors.KindUnavailable, "failed to attach %s to %s", name, iface)
		err = errors.Attr(err, "interface", iface)
		return errors.Attr(err, "mode", string(mode))
	}

	l.links = append(l.links, lnk)
	l.attachments = append(l.attachments, interfaces.Attachment{
		Program:    name,
		Interface:  iface,
		Index:      index,
		Mode:       string(mode),
		AttachedAt: time.Now(),
	})

	l.logger.Info("Attached XDP program", "program", name, "interface", iface, "index", index, "mode", mode)
	return nil
}

// resolveInterface returns the ifindex of name. Down links are attached
// anyway, since XDP stays in place across link state changes.
func (l *Loader) resolveInterface(name string) (int, error) {
	lnk, err := netlink.LinkByName(name)
	if err != nil {
		err = errors.Wrapf(err, errors.KindNotFound, "failed to find interface %s", name)
		return 0, errors.Attr(err, "interface", name)
	}

	attrs := lnk.Attrs()
	if attrs.Flags&net.FlagUp == 0 {
		l.logger.Warn("Interface is down", "interface", name)
	}
	return attrs.Index, nil
}

func (l *Loader) programLocked(name string) (*ProgramWrapper, error) {
	prog, exists := l.programs[name]
	if !exists {
		return nil, errors.Errorf(errors.KindNotFound, "program %s not found", name)
	}

	var attached []string
	for _, a := range l.attachments {
		if a.Program == name {
			attached = append(attached, a.Interface)
		}
	}
	return NewProgramWrapper(prog, l.loadedAt, attached), nil
}

// GetMap returns a loaded eBPF map
func (l *Loader) GetMap(name string) (interfaces.Map, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	m, exists := l.maps[name]
	if !exists {
		return nil, errors.Errorf(errors.KindNotFound, "map %s not found", name)
	}
	return NewMapWrapper(m), nil
}

// GetMapInfo returns information about a map
func (l *Loader) GetMapInfo(name string) (interfaces.MapInfo, error) {
	m, err := l.GetMap(name)
	if err != nil {
		return interfaces.MapInfo{}, err
	}
	info, err := m.Info()
	if err != nil {
		return interfaces.MapInfo{}, errors.Attr(errors.Wrap(err, errors.KindUnavailable, "failed to read map info"), "map", name)
	}
	return info, nil
}

// PortMap returns the kernel blocked-port store of the loaded collection.
func (l *Loader) PortMap() (*PortMap, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	m, exists := l.maps[programs.DropPortMap]
	if !exists {
		return nil, errors.Errorf(errors.KindNotFound, "map %s not found", programs.DropPortMap)
	}
	return NewPortMap(m)
}

// GetProgramInfo returns information about a program
func (l *Loader) GetProgramInfo(name string) (interfaces.ProgramInfo, error) {
	l.mutex.Lock()
	prog, err := l.programLocked(name)
	l.mutex.Unlock()
	if err != nil {
		return interfaces.ProgramInfo{}, err
	}
	return prog.Info()
}

// Attachments returns a copy of the current XDP attachments.
func (l *Loader) Attachments() []interfaces.Attachment {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return append([]interfaces.Attachment(nil), l.attachments...)
}

// IsLoaded returns true if the collection is loaded
func (l *Loader) IsLoaded() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.loaded
}

// Close detaches all programs and releases the collection. The first
// detach error is returned.
func (l *Loader) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	var firstErr error
	for _, lnk := range l.links {
		if err := lnk.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, a := range l.attachments {
		l.logger.Info("Detached XDP program", "program", a.Program, "interface", a.Interface)
	}

	if l.collection != nil {
		l.collection.Close()
	}

	l.collection = nil
	l.loaded = false
	l.programs = make(map[string]*ebpf.Program)
	l.maps = make(map[string]*ebpf.Map)
	l.links = nil
	l.attachments = nil

	return firstErr
}

// RemoveMemlock lifts RLIMIT_MEMLOCK for kernels that still charge BPF
// memory against it (before 5.11).
func RemoveMemlock() error {
	if err := rlimit.RemoveMemlock(); err != nil {
		return errors.Wrap(err, errors.KindPermission, "failed to remove memlock limit")
	}
	return nil
}

// VerifyKernelSupport checks privileges and kernel support for XDP.
func VerifyKernelSupport() error {
	if unix.Geteuid() != 0 {
		return errors.New(errors.KindPermission, "loading XDP programs requires root")
	}
	if _, err := os.Stat("/proc/sys/net/core/bpf_jit_enable"); os.IsNotExist(err) {
		return errors.New(errors.KindUnavailable, "kernel does not support eBPF JIT")
	}
	if err := features.HaveProgramType(ebpf.XDP); err != nil {
		return errors.Wrap(err, errors.KindUnavailable, "kernel does not support XDP programs")
	}
	return nil
}
