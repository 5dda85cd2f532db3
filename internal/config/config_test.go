package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jlangch/aviron"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aviron.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "{}\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, aviron.DefaultHost, cfg.Endpoint.Host)
	assert.Equal(t, aviron.DefaultPort, cfg.Endpoint.Port)
	assert.Equal(t, "native", cfg.Watcher.Backend)
	assert.Equal(t, 5, cfg.Scanner.IdleSleepSeconds)
	assert.Equal(t, "none", cfg.Quarantine.Action)
}

func TestLoadMissingFileIsConfigError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	var ce *aviron.ConfigError
	assert.ErrorAs(t, err, &ce)
}

func TestLoadParsesFullDocument(t *testing.T) {
	path := writeConfig(t, `
endpoint:
  host: clamav.internal
  port: 3310
  file_separator: unix
  connect_timeout_ms: 1000
  read_timeout_ms: 5000
watcher:
  backend: subprocess
  main_dir: /var/aviron/incoming
  secondary_dirs: ["/var/aviron/uploads"]
  fswatch_path: /usr/local/bin/fswatch
scanner:
  idle_sleep_seconds: 10
quarantine:
  action: move
  dir: /var/aviron/quarantine
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "clamav.internal", cfg.Endpoint.Host)
	assert.Equal(t, "subprocess", cfg.Watcher.Backend)
	assert.Equal(t, []string{"/var/aviron/uploads"}, cfg.Watcher.SecondaryDirs)
	assert.Equal(t, 10*time.Second, cfg.Scanner.IdleSleep())
	assert.Equal(t, "move", cfg.Quarantine.Action)
}

func TestBuildEndpointRejectsUnknownSeparator(t *testing.T) {
	path := writeConfig(t, "endpoint:\n  file_separator: bogus\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	_, err = cfg.BuildEndpoint()
	require.Error(t, err)
}

func TestBuildEndpointRejectsUnknownQuarantineAction(t *testing.T) {
	path := writeConfig(t, "quarantine:\n  action: bogus\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	_, err = cfg.BuildEndpoint()
	require.Error(t, err)
}

func TestBuildEndpointSucceedsWithDefaults(t *testing.T) {
	path := writeConfig(t, "{}\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	ep, err := cfg.BuildEndpoint()
	require.NoError(t, err)
	assert.Equal(t, aviron.DefaultHost, ep.Host())
}
