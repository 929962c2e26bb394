// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/portgate/internal/config"
	"grimm.is/portgate/internal/ebpf/controlplane"
	"grimm.is/portgate/internal/ebpf/interfaces"
	"grimm.is/portgate/internal/ebpf/programs"
	"grimm.is/portgate/internal/errors"
	"grimm.is/portgate/internal/logging"
	"grimm.is/portgate/internal/portcfg"
	"grimm.is/portgate/internal/testutil"
)

type cellStore struct{ cell portcfg.Cell }

func (s *cellStore) BlockedPort() (uint16, bool, error) {
	p, ok := s.cell.BlockedPort()
	return p, ok, nil
}
func (s *cellStore) SetBlockedPort(p uint16) error { s.cell.Set(p); return nil }
func (s *cellStore) ClearBlockedPort() error       { s.cell.Clear(); return nil }

func quietLogger() *logging.Logger {
	return logging.New(logging.Config{Level: logging.LevelError, Output: &bytes.Buffer{}})
}

func TestOverridesApply(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, overrides{iface: "eth1", mode: "driver", port: "443", listen: "127.0.0.1:1"}.apply(cfg))
	assert.Equal(t, "eth1", cfg.Interface)
	assert.Equal(t, "driver", cfg.AttachMode)
	port, ok := cfg.Port()
	assert.True(t, ok)
	assert.Equal(t, uint16(443), port)
	assert.Equal(t, "127.0.0.1:1", cfg.API.Listen)

	require.NoError(t, overrides{port: "none", noAPI: true}.apply(cfg))
	_, ok = cfg.Port()
	assert.False(t, ok)
	assert.False(t, cfg.APIEnabled())
	assert.Equal(t, "eth1", cfg.Interface, "empty overrides leave fields alone")

	err := overrides{port: "70000"}.apply(cfg)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))
}

func TestLoadConfigWithOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portgate.hcl")
	require.NoError(t, os.WriteFile(path, []byte("blocked_port = 22\n"), 0o644))

	_, _, err := loadConfig(path, overrides{})
	assert.Equal(t, errors.KindValidation, errors.GetKind(err), "interface is required")

	cfg, used, err := loadConfig(path, overrides{iface: "lo"})
	require.NoError(t, err)
	assert.Equal(t, path, used)
	port, ok := cfg.Port()
	assert.True(t, ok)
	assert.Equal(t, uint16(22), port)

	cfg, _, err = loadConfig(path, overrides{iface: "lo", port: "none"})
	require.NoError(t, err)
	_, ok = cfg.Port()
	assert.False(t, ok)
}

func TestApplyPort(t *testing.T) {
	store := &cellStore{}
	cfg := config.Default()
	cfg.SetPort(8080)

	require.NoError(t, applyPort(store, cfg, quietLogger()))
	port, ok := store.cell.BlockedPort()
	assert.True(t, ok)
	assert.Equal(t, uint16(8080), port)

	cfg.BlockedPort = nil
	require.NoError(t, applyPort(store, cfg, quietLogger()))
	_, ok = store.cell.BlockedPort()
	assert.False(t, ok)
}

func TestRunInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "portgate.hcl")
	var out bytes.Buffer

	require.NoError(t, RunInit([]string{"-config", path, "-iface", "eth0", "-port", "22"}, &out))
	assert.Contains(t, out.String(), "Wrote "+path)

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "eth0", cfg.Interface)
	port, _ := cfg.Port()
	assert.Equal(t, uint16(22), port)

	err = RunInit([]string{"-config", path, "-iface", "eth0"}, &out)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))

	require.NoError(t, RunInit([]string{"-config", path, "-iface", "eth1", "-force"}, &out))
	cfg, err = config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "eth1", cfg.Interface)
	assert.FileExists(t, path+".bak")
}

func TestRunInitRequiresInterface(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portgate.hcl")
	err := RunInit([]string{"-config", path}, &bytes.Buffer{})
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))
	assert.NoFileExists(t, path)
}

func writeCapture(t *testing.T, frames ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	for _, frame := range frames {
		ci := gopacket.CaptureInfo{Timestamp: time.Unix(0, 0), CaptureLength: len(frame), Length: len(frame)}
		require.NoError(t, w.WritePacket(ci, frame))
	}
	return path
}

func TestRunReplay(t *testing.T) {
	path := writeCapture(t, testutil.TCPFrame(t, 22), testutil.TCPFrame(t, 80), testutil.ARPFrame(t))

	var out bytes.Buffer
	require.NoError(t, RunReplay(context.Background(), []string{"-pcap", path, "-port", "22"}, &out))
	s := out.String()
	assert.Contains(t, s, "blocking TCP port 22")
	assert.Contains(t, s, "DROP")
	assert.Contains(t, s, "192.0.2.20:22")
	assert.NotContains(t, s, "192.0.2.20:80")
	assert.Contains(t, s, "3 frames, 1 dropped")

	out.Reset()
	require.NoError(t, RunReplay(context.Background(), []string{"-v", path}, &out))
	s = out.String()
	assert.Contains(t, s, "every frame passes")
	assert.Contains(t, s, "192.0.2.20:80")
	assert.Contains(t, s, "3 frames, 0 dropped")
}

func TestRunReplayFromConfig(t *testing.T) {
	capture := writeCapture(t, testutil.TCPFrame(t, 8080))
	cfgPath := filepath.Join(t.TempDir(), "portgate.hcl")
	require.NoError(t, os.WriteFile(cfgPath, []byte("interface = \"lo\"\nblocked_port = 8080\n"), 0o644))

	var out bytes.Buffer
	require.NoError(t, RunReplay(context.Background(), []string{"-config", cfgPath, capture}, &out))
	assert.Contains(t, out.String(), "1 frames, 1 dropped")
}

func TestRunReplayRejectsOutOfRangeConfigPort(t *testing.T) {
	capture := writeCapture(t, testutil.TCPFrame(t, 22))
	cfgPath := filepath.Join(t.TempDir(), "portgate.hcl")
	require.NoError(t, os.WriteFile(cfgPath, []byte("interface = \"lo\"\nblocked_port = 70000\n"), 0o644))

	var out bytes.Buffer
	err := RunReplay(context.Background(), []string{"-config", cfgPath, capture}, &out)
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))
	assert.Equal(t, cfgPath, errors.GetAttributes(err)["path"])
	assert.NotContains(t, out.String(), "every frame passes")
}

func TestRunReplayErrors(t *testing.T) {
	err := RunReplay(context.Background(), nil, &bytes.Buffer{})
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))

	err = RunReplay(context.Background(), []string{"-port", "x", "a.pcap"}, &bytes.Buffer{})
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))

	err = RunReplay(context.Background(), []string{filepath.Join(t.TempDir(), "none.pcap")}, &bytes.Buffer{})
	assert.Equal(t, errors.KindNotFound, errors.GetKind(err))
}

func TestRunPort(t *testing.T) {
	store := &cellStore{}
	cp, err := controlplane.NewControlPlane(controlplane.Options{Store: store, Logger: quietLogger()})
	require.NoError(t, err)
	srv := httptest.NewServer(cp.Handler())
	defer srv.Close()

	ctx := context.Background()
	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		err := RunPort(ctx, append([]string{"-api", srv.URL}, args...), &out)
		return out.String(), err
	}

	out, err := run()
	require.NoError(t, err)
	assert.Equal(t, "blocked port: none\n", out)

	out, err = run("set", "8080")
	require.NoError(t, err)
	assert.Equal(t, "blocked port: 8080\n", out)

	out, err = run("get")
	require.NoError(t, err)
	assert.Equal(t, "blocked port: 8080\n", out)

	out, err = run("clear")
	require.NoError(t, err)
	assert.Equal(t, "blocked port: none\n", out)
	_, ok := store.cell.BlockedPort()
	assert.False(t, ok)

	_, err = run("set")
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))
	_, err = run("set", "65536")
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))
	_, err = run("flip")
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))
}

type attachedStatus struct{}

func (attachedStatus) IsLoaded() bool { return true }
func (attachedStatus) Attachments() []interfaces.Attachment {
	return []interfaces.Attachment{{
		Program:    programs.DropPortProgram,
		Interface:  "eth0",
		Index:      2,
		Mode:       "generic",
		AttachedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}}
}
func (attachedStatus) GetProgramInfo(name string) (interfaces.ProgramInfo, error) {
	return interfaces.ProgramInfo{Name: name, Type: "XDP", ID: 7, Tag: "abcd"}, nil
}
func (attachedStatus) GetMapInfo(name string) (interfaces.MapInfo, error) {
	return interfaces.MapInfo{Name: name, Type: "Array", KeySize: 4, ValueSize: 4, MaxEntries: 1}, nil
}

func TestRunStatus(t *testing.T) {
	serve := func(status interfaces.Status) string {
		cp, err := controlplane.NewControlPlane(controlplane.Options{Store: &cellStore{}, Status: status, Logger: quietLogger()})
		require.NoError(t, err)
		srv := httptest.NewServer(cp.Handler())
		t.Cleanup(srv.Close)
		return srv.URL
	}

	var out bytes.Buffer
	require.NoError(t, RunStatus(context.Background(), []string{"-api", serve(attachedStatus{})}, &out))
	s := out.String()
	assert.Contains(t, s, "healthy: yes")
	assert.Contains(t, s, "program: xdp_drop_port (XDP, id 7, tag abcd)")
	assert.Contains(t, s, "map:     drop_port (Array, key 4, value 4, 1 entries)")
	assert.Contains(t, s, "attached: eth0 (ifindex 2, generic) since 2026-01-02T03:04:05Z")

	out.Reset()
	err := RunStatus(context.Background(), []string{"-api", serve(nil)}, &out)
	assert.Equal(t, errors.KindUnavailable, errors.GetKind(err))
	assert.Contains(t, out.String(), "healthy: no")
}

func TestPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "portgate.pid")

	_, err := readPIDFile(path)
	assert.Equal(t, errors.KindNotFound, errors.GetKind(err))

	require.NoError(t, writePIDFile(path))
	pid, err := readPIDFile(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, processAlive(pid))

	// Our own stale PID does not block a rewrite.
	require.NoError(t, writePIDFile(path))

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
	_, err = readPIDFile(path)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))
}

func TestRunReload(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "portgate.hcl")
	pidPath := filepath.Join(dir, "portgate.pid")

	require.NoError(t, os.WriteFile(cfgPath, []byte("blocked_port = 22\n"), 0o644))
	err := RunReload([]string{"-config", cfgPath, "-pidfile", pidPath}, &bytes.Buffer{})
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))

	require.NoError(t, os.WriteFile(cfgPath, []byte("interface = \"lo\"\nblocked_port = 22\n"), 0o644))
	var out bytes.Buffer
	err = RunReload([]string{"-config", cfgPath, "-pidfile", pidPath}, &out)
	assert.Equal(t, errors.KindNotFound, errors.GetKind(err))
	assert.Contains(t, out.String(), "Configuration is valid.")
}

func TestRunStopWithoutDaemon(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "portgate.pid")
	err := RunStop([]string{"-pidfile", pidPath}, &bytes.Buffer{})
	assert.Equal(t, errors.KindNotFound, errors.GetKind(err))

	require.NoError(t, os.WriteFile(pidPath, []byte(strconv.Itoa(0)), 0o644))
	err = RunStop([]string{"-pidfile", pidPath}, &bytes.Buffer{})
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))
}

func newReloadDaemon(t *testing.T, path string, o overrides, logBuf *bytes.Buffer) *daemon {
	t.Helper()
	cfg := config.Default()
	cfg.Interface = "lo"
	cfg.SetPort(22)
	return &daemon{
		cfg:        cfg,
		configPath: path,
		overrides:  o,
		logger:     logging.New(logging.Config{Level: logging.LevelWarn, Output: logBuf}),
	}
}

func TestDaemonReloadAppliesFilePort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portgate.hcl")
	require.NoError(t, os.WriteFile(path, []byte("interface = \"lo\"\nblocked_port = 8080\n"), 0o644))

	store := &cellStore{}
	store.cell.Set(22)
	d := newReloadDaemon(t, path, overrides{}, &bytes.Buffer{})

	d.reload(store)
	port, ok := store.cell.BlockedPort()
	assert.True(t, ok)
	assert.Equal(t, uint16(8080), port)
	cfgPort, _ := d.cfg.Port()
	assert.Equal(t, uint16(8080), cfgPort)

	require.NoError(t, os.WriteFile(path, []byte("interface = \"lo\"\n"), 0o644))
	d.reload(store)
	_, ok = store.cell.BlockedPort()
	assert.False(t, ok, "removing blocked_port from the file clears it")
}

func TestDaemonReloadKeepsCommandLineOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portgate.hcl")
	require.NoError(t, os.WriteFile(path, []byte("interface = \"lo\"\nblocked_port = 8080\n"), 0o644))

	store := &cellStore{}
	store.cell.Set(443)
	d := newReloadDaemon(t, path, overrides{port: "443"}, &bytes.Buffer{})

	d.reload(store)
	port, ok := store.cell.BlockedPort()
	assert.True(t, ok)
	assert.Equal(t, uint16(443), port)

	d.overrides = overrides{port: "none"}
	d.reload(store)
	_, ok = store.cell.BlockedPort()
	assert.False(t, ok)
}

func TestDaemonReloadInvalidFileKeepsPort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portgate.hcl")

	for name, body := range map[string]string{
		"syntax":       "interface = ",
		"out of range": "interface = \"lo\"\nblocked_port = 70000\n",
		"no interface": "blocked_port = 8080\n",
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

			store := &cellStore{}
			store.cell.Set(22)
			var logBuf bytes.Buffer
			d := newReloadDaemon(t, path, overrides{}, &logBuf)

			d.reload(store)
			port, ok := store.cell.BlockedPort()
			assert.True(t, ok)
			assert.Equal(t, uint16(22), port)
			cfgPort, _ := d.cfg.Port()
			assert.Equal(t, uint16(22), cfgPort)
			assert.Contains(t, logBuf.String(), "Reload failed")
		})
	}
}

func TestDaemonReloadWithoutConfigFile(t *testing.T) {
	store := &cellStore{}
	store.cell.Set(22)
	var logBuf bytes.Buffer
	d := newReloadDaemon(t, "", overrides{}, &logBuf)

	d.reload(store)
	port, ok := store.cell.BlockedPort()
	assert.True(t, ok)
	assert.Equal(t, uint16(22), port)
	assert.Contains(t, logBuf.String(), "no config file is in use")
}
