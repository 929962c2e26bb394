// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package loader

import (
	"time"

	"github.com/cilium/ebpf"

	"grimm.is/portgate/internal/ebpf/interfaces"
)

// ProgramWrapper reports kernel information about a loaded program
type ProgramWrapper struct {
	program    *ebpf.Program
	loadedAt   time.Time
	attachedTo []string
}

// NewProgramWrapper creates a new program wrapper
func NewProgramWrapper(prog *ebpf.Program, loadedAt time.Time, attachedTo []string) *ProgramWrapper {
	return &ProgramWrapper{program: prog, loadedAt: loadedAt, attachedTo: attachedTo}
}

// Info returns kernel information about the program
func (p *ProgramWrapper) Info() (interfaces.ProgramInfo, error) {
	info, err := p.program.Info()
	if err != nil {
		return interfaces.ProgramInfo{}, err
	}

	id, _ := info.ID()
	attached := p.attachedTo
	if attached == nil {
		attached = []string{}
	}

	return interfaces.ProgramInfo{
		Name:       info.Name,
		Type:       info.Type.String(),
		Tag:        info.Tag,
		ID:         uint32(id),
		AttachedTo: attached,
		LoadedAt:   p.loadedAt,
	}, nil
}
