// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package filter

// Verdict is the outcome of classifying one frame.
type Verdict uint8

const (
	Pass Verdict = iota
	Drop
)

// XDP return codes from <linux/bpf.h>.
const (
	XDPDrop uint32 = 1
	XDPPass uint32 = 2
)

func (v Verdict) String() string {
	if v == Drop {
		return "DROP"
	}
	return "PASS"
}

// XDPAction maps the verdict to the XDP return code enforcing it.
func (v Verdict) XDPAction() uint32 {
	if v == Drop {
		return XDPDrop
	}
	return XDPPass
}

// Gate identifies the step of the classification chain that produced a
// verdict. Gates are evaluated in declaration order.
type Gate uint8

const (
	GateEthBounds Gate = iota
	GateEtherType
	GateIPBounds
	GateProtocol
	GateTCPBounds
	GatePortConfigured
	GatePortMatch
)

var gateNames = [...]string{
	GateEthBounds:      "eth_bounds",
	GateEtherType:      "ether_type",
	GateIPBounds:       "ip_bounds",
	GateProtocol:       "protocol",
	GateTCPBounds:      "tcp_bounds",
	GatePortConfigured: "port_configured",
	GatePortMatch:      "port_match",
}

func (g Gate) String() string {
	if int(g) < len(gateNames) {
		return gateNames[g]
	}
	return "unknown"
}
