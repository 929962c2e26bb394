// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package programs

import (
	"testing"

	"github.com/cilium/ebpf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/portgate/internal/filter"
	"grimm.is/portgate/internal/portcfg"
	"grimm.is/portgate/internal/testutil"
)

func TestDropPortSpecShape(t *testing.T) {
	spec := NewDropPortSpec()

	prog := spec.Programs[DropPortProgram]
	require.NotNil(t, prog)
	assert.Equal(t, ebpf.XDP, prog.Type)
	assert.Equal(t, "GPL", prog.License)

	m := spec.Maps[DropPortMap]
	require.NotNil(t, m)
	assert.Equal(t, ebpf.Array, m.Type)
	assert.Equal(t, uint32(4), m.KeySize)
	assert.Equal(t, uint32(4), m.ValueSize)
	assert.Equal(t, uint32(1), m.MaxEntries)
}

// Every jump must target a later instruction: no loops.
func TestDropPortInstructionsForwardOnly(t *testing.T) {
	insns := DropPortInstructions()

	symbols := make(map[string]int)
	for i, ins := range insns {
		if sym := ins.Symbol(); sym != "" {
			symbols[sym] = i
		}
	}
	require.Contains(t, symbols, passLabel)
	assert.Equal(t, 0, symbols[DropPortProgram])

	var mapRefs int
	for i, ins := range insns {
		ref := ins.Reference()
		if ref == "" {
			continue
		}
		if ins.IsLoadFromMap() {
			assert.Equal(t, DropPortMap, ref)
			mapRefs++
			continue
		}
		target, ok := symbols[ref]
		require.True(t, ok, "instruction %d references unknown symbol %q", i, ref)
		assert.Greater(t, target, i, "instruction %d jumps backwards to %q", i, ref)
	}
	assert.Equal(t, 1, mapRefs)
	assert.Less(t, len(insns), 64, "program should stay a short constant path")
}

func TestDropPortMatchesClassify(t *testing.T) {
	testutil.RequireRoot(t)

	coll, err := ebpf.NewCollection(NewDropPortSpec())
	if err != nil {
		t.Skipf("eBPF not supported: %v", err)
	}
	defer coll.Close()

	prog := coll.Programs[DropPortProgram]
	portMap := coll.Maps[DropPortMap]

	tcp22 := testutil.TCPFrame(t, 22)
	udpProto := append([]byte(nil), tcp22...)
	udpProto[23] = 17

	// The kernel refuses test runs shorter than an Ethernet header, so the
	// shortest frames are covered by the filter package alone.
	frames := map[string][]byte{
		"tcp 22":        tcp22,
		"tcp 80":        testutil.TCPFrame(t, 80),
		"tcp 0":         testutil.TCPFrame(t, 0),
		"tcp 65535":     testutil.TCPFrame(t, 65535),
		"tcp 5632":      testutil.TCPFrame(t, 0x1600),
		"udp 22":        testutil.UDPFrame(t, 22),
		"ipv6 tcp 22":   testutil.IPv6TCPFrame(t, 22),
		"arp":           testutil.ARPFrame(t),
		"proto rewrite": udpProto,
		"eth only":      tcp22[:14],
		"ip only":       tcp22[:34],
		"tcp truncated": tcp22[:53],
		"tcp minimal":   tcp22[:54],
	}

	configs := []struct {
		name string
		word uint32
	}{
		{name: "unset", word: 0},
		{name: "22", word: portcfg.Encode(22)},
		{name: "80", word: portcfg.Encode(80)},
		{name: "0", word: portcfg.Encode(0)},
		{name: "65535", word: portcfg.Encode(65535)},
	}

	for _, cfg := range configs {
		require.NoError(t, portMap.Update(uint32(0), cfg.word, ebpf.UpdateAny))

		var cell portcfg.Cell
		if port, ok := portcfg.Decode(cfg.word); ok {
			cell.Set(port)
		}

		for name, frame := range frames {
			t.Run(cfg.name+"/"+name, func(t *testing.T) {
				ret, err := prog.Run(&ebpf.RunOptions{Data: frame})
				require.NoError(t, err)
				assert.Equal(t, filter.Classify(frame, &cell).XDPAction(), ret)
			})
		}
	}
}
