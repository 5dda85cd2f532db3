package scanner

import (
	"bufio"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jlangch/aviron"
	"github.com/jlangch/aviron/queue"
	"github.com/jlangch/aviron/watch"
)

// fakeDaemon is a minimal clamd stand-in that understands VERSIONCOMMANDS
// (for capability gating) and replies OK to SCAN,
// mirroring the fake server used to exercise the root client package.
type fakeDaemon struct {
	listener net.Listener
	port     int
}

func newFakeDaemon(t *testing.T) *fakeDaemon {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	d := &fakeDaemon{listener: ln, port: port}
	go d.serve()
	return d
}

func (d *fakeDaemon) serve() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			return
		}
		go d.handle(conn)
	}
}

func (d *fakeDaemon) handle(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	var req strings.Builder
	for {
		b, err := reader.ReadByte()
		if err != nil {
			return
		}
		if b == 0 {
			break
		}
		req.WriteByte(b)
	}
	line := req.String()
	switch {
	case strings.HasPrefix(line, "zVERSIONCOMMANDS") || strings.HasPrefix(line, "nVERSIONCOMMANDS"):
		_, _ = conn.Write([]byte("COMMANDS: SCAN CONTSCAN MULTISCAN INSTREAM PING VERSION STATS RELOAD SHUTDOWN VERSIONCOMMANDS\x00"))
	case strings.HasPrefix(line, "zSCAN"):
		_, _ = conn.Write([]byte("/tmp/payload.txt: OK\x00"))
	default:
		_, _ = conn.Write([]byte("UNKNOWN COMMAND\x00"))
	}
}

func (d *fakeDaemon) Close() { _ = d.listener.Close() }

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %s", timeout)
	}
}

func TestScannerIsIdempotentOnStartAndStop(t *testing.T) {
	dir := t.TempDir()
	ep, err := aviron.NewBuilder().Build()
	require.NoError(t, err)
	client := aviron.NewClient(ep, zerolog.Nop())

	s := New(client, dir, zerolog.Nop())
	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	s.Stop()
	s.Stop()
}

func TestScannerDeletedEventRemovesQueuedPath(t *testing.T) {
	dir := t.TempDir()
	ep, err := aviron.NewBuilder().Build()
	require.NoError(t, err)
	client := aviron.NewClient(ep, zerolog.Nop())

	s := New(client, dir, zerolog.Nop())
	s.q = queue.New(DefaultQueueCapacity)

	s.onFileEvent(watch.FileWatchEvent{Path: "/tmp/x", Type: watch.EventCreated, Kind: watch.EntryFile})
	assert.Equal(t, 1, s.Queued())
	s.onFileEvent(watch.FileWatchEvent{Path: "/tmp/x", Type: watch.EventDeleted})
	assert.Equal(t, 0, s.Queued())
}

func TestScannerDirectoryEventsNeverQueued(t *testing.T) {
	dir := t.TempDir()
	ep, err := aviron.NewBuilder().Build()
	require.NoError(t, err)
	client := aviron.NewClient(ep, zerolog.Nop())

	s := New(client, dir, zerolog.Nop())
	s.q = queue.New(DefaultQueueCapacity)

	s.onFileEvent(watch.FileWatchEvent{Path: "/tmp/sub", Type: watch.EventCreated, Kind: watch.EntryDir})
	assert.Equal(t, 0, s.Queued())
}

func TestScannerApproverRejectionSkipsPush(t *testing.T) {
	dir := t.TempDir()
	ep, err := aviron.NewBuilder().Build()
	require.NoError(t, err)
	client := aviron.NewClient(ep, zerolog.Nop())

	s := New(client, dir, zerolog.Nop(), WithScanApprover(func(ev watch.FileWatchEvent) bool { return false }))
	s.q = queue.New(DefaultQueueCapacity)

	s.onFileEvent(watch.FileWatchEvent{Path: "/tmp/x", Type: watch.EventCreated, Kind: watch.EntryFile})
	assert.Equal(t, 0, s.Queued())
}

func TestScannerApproverPanicIsTreatedAsRejection(t *testing.T) {
	dir := t.TempDir()
	ep, err := aviron.NewBuilder().Build()
	require.NoError(t, err)
	client := aviron.NewClient(ep, zerolog.Nop())

	s := New(client, dir, zerolog.Nop(), WithScanApprover(func(ev watch.FileWatchEvent) bool { panic("boom") }))
	s.q = queue.New(DefaultQueueCapacity)

	s.onFileEvent(watch.FileWatchEvent{Path: "/tmp/x", Type: watch.EventCreated, Kind: watch.EntryFile})
	assert.Equal(t, 0, s.Queued())
}

func TestScannerSubprocessBackendIsSelectable(t *testing.T) {
	dir := t.TempDir()
	ep, err := aviron.NewBuilder().Build()
	require.NoError(t, err)
	client := aviron.NewClient(ep, zerolog.Nop())

	s := New(client, dir, zerolog.Nop(),
		WithSubprocessWatcher("aviron-nonexistent-fswatch-binary-xyz", "poll_monitor"))

	err = s.Start()
	require.Error(t, err, "subprocess backend must actually be attempted, not silently ignored")
	assert.Contains(t, err.Error(), "aviron-nonexistent-fswatch-binary-xyz")
	assert.Equal(t, backendSubprocess, s.backend)
}

func TestScannerEndToEndDeliversScanEvent(t *testing.T) {
	dir := t.TempDir()
	ln := newFakeDaemon(t)
	defer ln.Close()

	ep, err := aviron.NewBuilder().Port(ln.port).ConnectTimeout(time.Second).ReadTimeout(time.Second).Build()
	require.NoError(t, err)
	client := aviron.NewClient(ep, zerolog.Nop())

	var mu sync.Mutex
	var events []RealtimeScanEvent
	s := New(client, dir, zerolog.Nop(), WithIdleSleep(time.Second), WithScanListener(func(ev RealtimeScanEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}))
	require.NoError(t, s.Start())
	defer s.Stop()

	target := filepath.Join(dir, "payload.txt")
	require.NoError(t, os.WriteFile(target, []byte("hello"), 0o644))

	waitFor(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) > 0
	})
}
