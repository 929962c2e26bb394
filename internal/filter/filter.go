// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package filter classifies received Ethernet frames as pass or drop based on
// a single blocked TCP destination port.
//
// Classification is a fixed chain of gates. Every gate checks the cumulative
// frame length needed before it reads any field of its layer, and any
// failed gate passes the frame: truncated, malformed or foreign traffic is
// never dropped here.
package filter

import "encoding/binary"

// Header sizes. IPv4 and TCP options are not interpreted.
const (
	EthHeaderLen  = 14
	IPv4HeaderLen = 20
	TCPHeaderLen  = 20

	EtherTypeIPv4 = 0x0800
	ProtocolTCP   = 6
)

// Absolute frame offsets and the cumulative lengths that guard them.
const (
	etherTypeOff = 12
	ipProtoOff   = EthHeaderLen + 9
	tcpDstOff    = EthHeaderLen + IPv4HeaderLen + 2

	ethEnd = EthHeaderLen
	ipEnd  = ethEnd + IPv4HeaderLen
	tcpEnd = ipEnd + TCPHeaderLen
)

// PortSource supplies the currently configured blocked port.
type PortSource interface {
	BlockedPort() (port uint16, ok bool)
}

// Classify returns the verdict for one frame. It does not retain or modify
// frame, and a nil cfg means no port is configured.
func Classify(frame []byte, cfg PortSource) Verdict {
	v, _ := Trace(frame, cfg)
	return v
}

// Trace is Classify that also reports the gate which decided the verdict.
func Trace(frame []byte, cfg PortSource) (Verdict, Gate) {
	if len(frame) < ethEnd {
		return Pass, GateEthBounds
	}
	if binary.BigEndian.Uint16(frame[etherTypeOff:]) != EtherTypeIPv4 {
		return Pass, GateEtherType
	}
	if len(frame) < ipEnd {
		return Pass, GateIPBounds
	}
	if frame[ipProtoOff] != ProtocolTCP {
		return Pass, GateProtocol
	}
	if len(frame) < tcpEnd {
		return Pass, GateTCPBounds
	}
	if cfg == nil {
		return Pass, GatePortConfigured
	}
	port, ok := cfg.BlockedPort()
	if !ok {
		return Pass, GatePortConfigured
	}
	if binary.BigEndian.Uint16(frame[tcpDstOff:]) != port {
		return Pass, GatePortMatch
	}
	return Drop, GatePortMatch
}

// DestinationPort returns the TCP destination port of a frame that clears
// every structural gate. ok is false otherwise.
func DestinationPort(frame []byte) (port uint16, ok bool) {
	if len(frame) < tcpEnd ||
		binary.BigEndian.Uint16(frame[etherTypeOff:]) != EtherTypeIPv4 ||
		frame[ipProtoOff] != ProtocolTCP {
		return 0, false
	}
	return binary.BigEndian.Uint16(frame[tcpDstOff:]), true
}
