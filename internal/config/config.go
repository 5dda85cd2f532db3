// Package config loads the YAML configuration file shared by the
// aviron-demo and aviron-status binaries, per SPEC_FULL.md §6. It
// follows the ScoringConfig/loadScoringConfig shape of the pipeline
// this module grew out of: a single yaml.Unmarshal onto tagged structs,
// no reflection-based validation framework.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jlangch/aviron"
)

// Config is the root configuration document.
type Config struct {
	Endpoint   EndpointConfig   `yaml:"endpoint"`
	Watcher    WatcherConfig    `yaml:"watcher"`
	Scanner    ScannerConfig    `yaml:"scanner"`
	Quarantine QuarantineConfig `yaml:"quarantine"`
}

// EndpointConfig mirrors aviron.Builder's settable fields.
type EndpointConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	FileSeparator    string `yaml:"file_separator"`
	ConnectTimeoutMs int    `yaml:"connect_timeout_ms"`
	ReadTimeoutMs    int    `yaml:"read_timeout_ms"`
}

// WatcherConfig selects and configures the filesystem watcher backend.
type WatcherConfig struct {
	Backend       string   `yaml:"backend"` // native|subprocess
	MainDir       string   `yaml:"main_dir"`
	SecondaryDirs []string `yaml:"secondary_dirs"`
	FswatchPath   string   `yaml:"fswatch_path"`
	Monitor       string   `yaml:"monitor"`
}

// ScannerConfig configures the real-time scanner's worker behavior.
type ScannerConfig struct {
	IdleSleepSeconds int `yaml:"idle_sleep_seconds"`
}

// QuarantineConfig configures the quarantine directory and action.
type QuarantineConfig struct {
	Action string `yaml:"action"` // none|copy|move|remove
	Dir    string `yaml:"dir"`
}

// Load reads and parses the YAML configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &aviron.ConfigError{Field: "path", Err: err}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &aviron.ConfigError{Field: "yaml", Err: err}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Endpoint.Host == "" {
		c.Endpoint.Host = aviron.DefaultHost
	}
	if c.Endpoint.Port == 0 {
		c.Endpoint.Port = aviron.DefaultPort
	}
	if c.Endpoint.FileSeparator == "" {
		c.Endpoint.FileSeparator = "jvm"
	}
	if c.Watcher.Backend == "" {
		c.Watcher.Backend = "native"
	}
	if c.Scanner.IdleSleepSeconds <= 0 {
		c.Scanner.IdleSleepSeconds = 5
	}
	if c.Quarantine.Action == "" {
		c.Quarantine.Action = "none"
	}
}

// fileSeparator parses the configured file_separator string into an
// aviron.FileSeparator.
func (c *EndpointConfig) fileSeparator() (aviron.FileSeparator, error) {
	switch c.FileSeparator {
	case "local":
		return aviron.SeparatorLocal, nil
	case "unix":
		return aviron.SeparatorUnix, nil
	case "windows":
		return aviron.SeparatorWindows, nil
	case "jvm", "":
		return aviron.SeparatorJVM, nil
	default:
		return 0, fmt.Errorf("unknown file_separator %q", c.FileSeparator)
	}
}

func quarantineAction(s string) (aviron.QuarantineAction, error) {
	switch s {
	case "none", "":
		return aviron.QuarantineNone, nil
	case "copy":
		return aviron.QuarantineCopy, nil
	case "move":
		return aviron.QuarantineMove, nil
	case "remove":
		return aviron.QuarantineRemove, nil
	default:
		return 0, fmt.Errorf("unknown quarantine action %q", s)
	}
}

// BuildEndpoint constructs an aviron.Endpoint from the configuration,
// including the quarantine directory/action.
func (c *Config) BuildEndpoint() (*aviron.Endpoint, error) {
	sep, err := c.Endpoint.fileSeparator()
	if err != nil {
		return nil, &aviron.ConfigError{Field: "endpoint.file_separator", Err: err}
	}
	action, err := quarantineAction(c.Quarantine.Action)
	if err != nil {
		return nil, &aviron.ConfigError{Field: "quarantine.action", Err: err}
	}

	return aviron.NewBuilder().
		Host(c.Endpoint.Host).
		Port(c.Endpoint.Port).
		Separator(sep).
		ConnectTimeout(time.Duration(c.Endpoint.ConnectTimeoutMs) * time.Millisecond).
		ReadTimeout(time.Duration(c.Endpoint.ReadTimeoutMs) * time.Millisecond).
		Quarantine(action, c.Quarantine.Dir).
		Build()
}

// IdleSleep returns the configured idle sleep as a time.Duration.
func (c *ScannerConfig) IdleSleep() time.Duration {
	return time.Duration(c.IdleSleepSeconds) * time.Second
}
