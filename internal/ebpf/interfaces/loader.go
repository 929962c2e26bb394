// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package interfaces

import (
	"time"
)

// Map represents a loaded eBPF map
type Map interface {
	Info() (MapInfo, error)
}

// ProgramInfo describes a loaded program
type ProgramInfo struct {
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Tag        string    `json:"tag"`
	ID         uint32    `json:"id"`
	AttachedTo []string  `json:"attached_to"`
	LoadedAt   time.Time `json:"loaded_at"`
}

// MapInfo describes a loaded map
type MapInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	KeySize    uint32 `json:"key_size"`
	ValueSize  uint32 `json:"value_size"`
	MaxEntries uint32 `json:"max_entries"`
}

// Attachment records a program attached to a network interface
type Attachment struct {
	Program    string    `json:"program"`
	Interface  string    `json:"interface"`
	Index      int       `json:"index"`
	Mode       string    `json:"mode"`
	AttachedAt time.Time `json:"attached_at"`
}

// PortStore is a blocked-port store whose operations can fail, such as the
// kernel array map read and written through bpf(2).
type PortStore interface {
	BlockedPort() (port uint16, ok bool, err error)
	SetBlockedPort(port uint16) error
	ClearBlockedPort() error
}

// Status reports what the loader currently has in the kernel
type Status interface {
	IsLoaded() bool
	Attachments() []Attachment
	GetProgramInfo(name string) (ProgramInfo, error)
	GetMapInfo(name string) (MapInfo, error)
}
