// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package testutil builds test frames and gates tests that need a real
// kernel.
package testutil

import (
	"net"
	"os"
	"testing"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"golang.org/x/sys/unix"
)

var (
	srcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	dstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	srcIP4 = net.IPv4(192, 0, 2, 10)
	dstIP4 = net.IPv4(192, 0, 2, 20)
)

// RequireRoot skips the test unless it runs with an effective uid of 0.
// Setting PORTGATE_SKIP_KERNEL_TESTS skips it regardless.
func RequireRoot(t testing.TB) {
	t.Helper()
	if os.Getenv("PORTGATE_SKIP_KERNEL_TESTS") != "" {
		t.Skip("Skipping test: PORTGATE_SKIP_KERNEL_TESTS is set")
	}
	if unix.Geteuid() != 0 {
		t.Skip("Skipping test: requires root privileges")
	}
}

// TCPFrame returns an Ethernet/IPv4/TCP SYN addressed to dstPort.
func TCPFrame(t testing.TB, dstPort uint16) []byte {
	t.Helper()
	ip := ipv4(layers.IPProtocolTCP)
	tcp := &layers.TCP{
		SrcPort: 40000,
		DstPort: layers.TCPPort(dstPort),
		Seq:     1,
		SYN:     true,
		Window:  64240,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("Failed to set checksum layer: %v", err)
	}
	return serialize(t, ethernet(layers.EthernetTypeIPv4), ip, tcp)
}

// UDPFrame returns an Ethernet/IPv4/UDP datagram addressed to dstPort.
func UDPFrame(t testing.TB, dstPort uint16) []byte {
	t.Helper()
	ip := ipv4(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: 40000, DstPort: layers.UDPPort(dstPort)}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("Failed to set checksum layer: %v", err)
	}
	return serialize(t, ethernet(layers.EthernetTypeIPv4), ip, udp, gopacket.Payload("ping"))
}

// IPv6TCPFrame returns an Ethernet/IPv6/TCP SYN addressed to dstPort.
func IPv6TCPFrame(t testing.TB, dstPort uint16) []byte {
	t.Helper()
	ip := &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: layers.IPProtocolTCP,
		SrcIP:      net.ParseIP("2001:db8::10"),
		DstIP:      net.ParseIP("2001:db8::20"),
	}
	tcp := &layers.TCP{SrcPort: 40000, DstPort: layers.TCPPort(dstPort), SYN: true, Window: 64240}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("Failed to set checksum layer: %v", err)
	}
	return serialize(t, ethernet(layers.EthernetTypeIPv6), ip, tcp)
}

// ARPFrame returns an Ethernet ARP request.
func ARPFrame(t testing.TB) []byte {
	t.Helper()
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   srcMAC,
		SourceProtAddress: srcIP4.To4(),
		DstHwAddress:      make(net.HardwareAddr, 6),
		DstProtAddress:    dstIP4.To4(),
	}
	return serialize(t, ethernet(layers.EthernetTypeARP), arp)
}

func ethernet(et layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: et}
}

func ipv4(proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Flags:    layers.IPv4DontFragment,
		Protocol: proto,
		SrcIP:    srcIP4,
		DstIP:    dstIP4,
	}
}

func serialize(t testing.TB, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		t.Fatalf("Failed to serialize frame: %v", err)
	}
	return append([]byte(nil), buf.Bytes()...)
}
