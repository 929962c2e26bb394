// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package programs assembles the kernel-side eBPF programs.
package programs

import (
	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"

	"grimm.is/portgate/internal/filter"
	"grimm.is/portgate/internal/portcfg"
)

const (
	// DropPortProgram is the XDP entry point.
	DropPortProgram = "xdp_drop_port"
	// DropPortMap is the one-entry array holding the encoded blocked port.
	DropPortMap = "drop_port"

	passLabel = "pass"
)

// xdp_md field offsets.
const (
	xdpMDData    = 0
	xdpMDDataEnd = 4
)

const (
	etherTypeOff = 12
	ipProtoOff   = filter.EthHeaderLen + 9
	tcpDstOff    = filter.EthHeaderLen + filter.IPv4HeaderLen + 2

	ethEnd = filter.EthHeaderLen
	ipEnd  = ethEnd + filter.IPv4HeaderLen
	tcpEnd = ipEnd + filter.TCPHeaderLen
)

// NewDropPortSpec returns the collection holding the XDP program and its
// port map. The program runs the same gate chain as filter.Classify.
func NewDropPortSpec() *ebpf.CollectionSpec {
	return &ebpf.CollectionSpec{
		Maps: map[string]*ebpf.MapSpec{
			DropPortMap: {
				Name:       DropPortMap,
				Type:       ebpf.Array,
				KeySize:    4,
				ValueSize:  4,
				MaxEntries: 1,
			},
		},
		Programs: map[string]*ebpf.ProgramSpec{
			DropPortProgram: {
				Name:         DropPortProgram,
				Type:         ebpf.XDP,
				License:      "GPL",
				Instructions: DropPortInstructions(),
			},
		},
	}
}

// DropPortInstructions assembles the XDP program. It contains only forward
// jumps, so the verifier sees a bounded straight-line path.
//
// Register use:
//
//	R2 packet start, R3 packet end, R4 bounds check, R5 scratch,
//	R6 destination port (host order, survives the helper call),
//	R7 configured word, R8 present flag.
func DropPortInstructions() asm.Instructions {
	return asm.Instructions{
		asm.LoadMem(asm.R2, asm.R1, xdpMDData, asm.Word).WithSymbol(DropPortProgram),
		asm.LoadMem(asm.R3, asm.R1, xdpMDDataEnd, asm.Word),

		// Ethernet
		asm.Mov.Reg(asm.R4, asm.R2),
		asm.Add.Imm(asm.R4, ethEnd),
		asm.JGT.Reg(asm.R4, asm.R3, passLabel),
		asm.LoadMem(asm.R5, asm.R2, etherTypeOff, asm.Half),
		asm.HostTo(asm.BE, asm.R5, asm.Half),
		asm.JNE.Imm(asm.R5, filter.EtherTypeIPv4, passLabel),

		// IPv4
		asm.Mov.Reg(asm.R4, asm.R2),
		asm.Add.Imm(asm.R4, ipEnd),
		asm.JGT.Reg(asm.R4, asm.R3, passLabel),
		asm.LoadMem(asm.R5, asm.R2, ipProtoOff, asm.Byte),
		asm.JNE.Imm(asm.R5, filter.ProtocolTCP, passLabel),

		// TCP
		asm.Mov.Reg(asm.R4, asm.R2),
		asm.Add.Imm(asm.R4, tcpEnd),
		asm.JGT.Reg(asm.R4, asm.R3, passLabel),
		asm.LoadMem(asm.R6, asm.R2, tcpDstOff, asm.Half),
		asm.HostTo(asm.BE, asm.R6, asm.Half),

		// drop_port[0]
		asm.StoreImm(asm.R10, -4, 0, asm.Word),
		asm.LoadMapPtr(asm.R1, 0).WithReference(DropPortMap),
		asm.Mov.Reg(asm.R2, asm.R10),
		asm.Add.Imm(asm.R2, -4),
		asm.FnMapLookupElem.Call(),
		asm.JEq.Imm(asm.R0, 0, passLabel),
		asm.LoadMem(asm.R7, asm.R0, 0, asm.Word),

		asm.Mov.Reg(asm.R8, asm.R7),
		asm.And.Imm(asm.R8, int32(portcfg.PresentBit)),
		asm.JEq.Imm(asm.R8, 0, passLabel),
		asm.And.Imm(asm.R7, 0xffff),
		asm.JNE.Reg(asm.R7, asm.R6, passLabel),

		asm.Mov.Imm(asm.R0, int32(filter.XDPDrop)),
		asm.Return(),

		asm.Mov.Imm(asm.R0, int32(filter.XDPPass)).WithSymbol(passLabel),
		asm.Return(),
	}
}
