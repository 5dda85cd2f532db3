package watch

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noLogger() zerolog.Logger { return zerolog.Nop() }

type collector struct {
	mu     sync.Mutex
	events []FileWatchEvent
}

func (c *collector) onEvent(ev FileWatchEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) snapshot() []FileWatchEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]FileWatchEvent, len(c.events))
	copy(out, c.events)
	return out
}

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

func TestNativeEmitsCreateAndWrite(t *testing.T) {
	dir := t.TempDir()
	w := NewNative(dir, true, zerolog.Nop())
	col := &collector{}
	w.SetFileListener(col.onEvent)
	require.NoError(t, w.Start())
	defer w.Close()

	file := filepath.Join(dir, "eicar.txt")
	require.NoError(t, os.WriteFile(file, []byte("hello"), 0o644))

	waitFor(t, 2*time.Second, func() bool {
		for _, ev := range col.snapshot() {
			if ev.Path == file {
				return true
			}
		}
		return false
	})
}

func TestNativeAutoRegistersNewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	w := NewNative(dir, true, zerolog.Nop())
	require.NoError(t, w.Start())
	defer w.Close()

	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))

	waitFor(t, 2*time.Second, func() bool {
		for _, p := range w.RegisteredPaths() {
			if p == sub {
				return true
			}
		}
		return false
	})
}

func TestNativeTerminationListenerFiresExactlyOnce(t *testing.T) {
	dir := t.TempDir()
	w := NewNative(dir, false, zerolog.Nop())
	var mu sync.Mutex
	count := 0
	w.SetTerminationListener(func(path string, cause error) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, w.Start())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestNativeStartIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w := NewNative(dir, false, zerolog.Nop())
	require.NoError(t, w.Start())
	require.NoError(t, w.Start())
	defer w.Close()
	assert.Len(t, w.RegisteredPaths(), 1)
}

func TestNativeCloseWithoutStartStillTerminates(t *testing.T) {
	dir := t.TempDir()
	w := NewNative(dir, false, zerolog.Nop())
	var fired bool
	w.SetTerminationListener(func(path string, cause error) { fired = true })
	require.NoError(t, w.Close())
	assert.True(t, fired)
}
