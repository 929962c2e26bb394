// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package replay

import (
	"fmt"
	"net"
	"strconv"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// Describe renders a one-line summary of an Ethernet frame, such as
// "TCP 192.0.2.10:40000 > 192.0.2.20:22". It decodes fully and is meant
// for reports, not the filter path.
func Describe(data []byte) string {
	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.DecodeOptions{Lazy: true, NoCopy: true})

	var src, dst net.IP
	switch nl := pkt.NetworkLayer().(type) {
	case *layers.IPv4:
		src, dst = nl.SrcIP, nl.DstIP
	case *layers.IPv6:
		src, dst = nl.SrcIP, nl.DstIP
	default:
		if arp, ok := pkt.Layer(layers.LayerTypeARP).(*layers.ARP); ok {
			return fmt.Sprintf("ARP %s > %s", net.IP(arp.SourceProtAddress), net.IP(arp.DstProtAddress))
		}
		if eth, ok := pkt.LinkLayer().(*layers.Ethernet); ok {
			return fmt.Sprintf("%s %s > %s", eth.EthernetType, eth.SrcMAC, eth.DstMAC)
		}
		return fmt.Sprintf("undecodable (%d bytes)", len(data))
	}

	switch tl := pkt.TransportLayer().(type) {
	case *layers.TCP:
		return fmt.Sprintf("TCP %s > %s", hostPort(src, uint16(tl.SrcPort)), hostPort(dst, uint16(tl.DstPort)))
	case *layers.UDP:
		return fmt.Sprintf("UDP %s > %s", hostPort(src, uint16(tl.SrcPort)), hostPort(dst, uint16(tl.DstPort)))
	}
	return fmt.Sprintf("IP %s > %s", src, dst)
}

func hostPort(ip net.IP, port uint16) string {
	return net.JoinHostPort(ip.String(), strconv.Itoa(int(port)))
}
