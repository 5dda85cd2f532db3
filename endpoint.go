// Package aviron is a client for ClamAV's clamd scanning daemon. It wraps
// clamd's line-oriented command protocol, including the INSTREAM framed
// upload, behind a connection-per-command client.
package aviron

import (
	"fmt"
	"time"
)

// FileSeparator selects the path-separator flavor the remote daemon
// expects. Aviron never mutates the caller's local path; it only rewrites
// the separator characters of the string handed to clamd.
type FileSeparator int

const (
	// SeparatorJVM uses the separator of the platform Aviron itself runs
	// on (os.PathSeparator equivalent). This is the default, matching the
	// source client's JVM-flavor default.
	SeparatorJVM FileSeparator = iota
	// SeparatorLocal is an alias for SeparatorJVM, provided for callers
	// who want to name "whatever this OS uses" explicitly.
	SeparatorLocal
	// SeparatorUnix always rewrites to '/'.
	SeparatorUnix
	// SeparatorWindows always rewrites to '\\'.
	SeparatorWindows
)

func (s FileSeparator) String() string {
	switch s {
	case SeparatorUnix:
		return "unix"
	case SeparatorWindows:
		return "windows"
	case SeparatorLocal:
		return "local"
	default:
		return "jvm"
	}
}

const (
	// DefaultHost is used when Builder.Host is never called.
	DefaultHost = "localhost"
	// DefaultPort is clamd's conventional TCP port.
	DefaultPort = 3310
	// DefaultConnectTimeout matches the source client's default.
	DefaultConnectTimeout = 3 * time.Second
	// DefaultReadTimeout matches the source client's default.
	DefaultReadTimeout = 20 * time.Second
	// DefaultChunkSize is the INSTREAM chunk size used when a command
	// doesn't specify one.
	DefaultChunkSize = 2048
)

// QuarantineAction selects what a Quarantine does with an infected file.
// Defined here (rather than only in package quarantine) because Endpoint's
// builder validates it eagerly per spec.md §7 (ConfigError raised at
// construction, not at first use).
type QuarantineAction int

const (
	// QuarantineNone records nothing; used when quarantine is disabled.
	QuarantineNone QuarantineAction = iota
	// QuarantineCopy copies the infected file into the quarantine
	// directory, keeping the original in place.
	QuarantineCopy
	// QuarantineMove copies then deletes the original.
	QuarantineMove
	// QuarantineRemove deletes the original without preserving it.
	QuarantineRemove
)

// Endpoint is the immutable, reusable configuration for talking to one
// clamd instance. Build it once with Builder and share it across many
// commands; every command still opens its own fresh TCP connection per
// spec.md §4.1 — Endpoint carries no socket.
type Endpoint struct {
	host           string
	port           int
	fileSeparator  FileSeparator
	connectTimeout time.Duration
	readTimeout    time.Duration
	quarantineDir  string
	quarantineKind QuarantineAction
}

// Host returns the configured clamd hostname.
func (e *Endpoint) Host() string { return e.host }

// Port returns the configured clamd TCP port.
func (e *Endpoint) Port() int { return e.port }

// FileSeparator returns the path-separator flavor used for remote paths.
func (e *Endpoint) FileSeparator() FileSeparator { return e.fileSeparator }

// ConnectTimeout returns the TCP connect timeout (0 meaning indefinite).
func (e *Endpoint) ConnectTimeout() time.Duration { return e.connectTimeout }

// ReadTimeout returns the read timeout per command (0 meaning indefinite).
func (e *Endpoint) ReadTimeout() time.Duration { return e.readTimeout }

// QuarantineDir returns the configured quarantine directory, if any.
func (e *Endpoint) QuarantineDir() string { return e.quarantineDir }

// QuarantineActionKind returns the configured quarantine action.
func (e *Endpoint) QuarantineActionKind() QuarantineAction { return e.quarantineKind }

func (e *Endpoint) addr() string {
	return fmt.Sprintf("%s:%d", e.host, e.port)
}

// Builder constructs an Endpoint. Obtain one from NewBuilder, which seeds
// the defaults; a zero Builder has no defaults (empty host, port 0, no
// timeouts). Every setter returns the receiver for chaining, in the style
// of the source client's fluent builder.
type Builder struct {
	ep  Endpoint
	err error
}

// NewBuilder returns a Builder seeded with defaults matching spec.md §6.
func NewBuilder() *Builder {
	return &Builder{
		ep: Endpoint{
			host:           DefaultHost,
			port:           DefaultPort,
			fileSeparator:  SeparatorJVM,
			connectTimeout: DefaultConnectTimeout,
			readTimeout:    DefaultReadTimeout,
			quarantineKind: QuarantineNone,
		},
	}
}

// Host sets the clamd hostname.
func (b *Builder) Host(host string) *Builder {
	if host == "" {
		b.err = &ConfigError{Field: "serverHostname", Err: fmt.Errorf("must not be empty")}
		return b
	}
	b.ep.host = host
	return b
}

// Port sets the clamd TCP port.
func (b *Builder) Port(port int) *Builder {
	if port <= 0 || port > 65535 {
		b.err = &ConfigError{Field: "serverPort", Err: fmt.Errorf("%d out of range", port)}
		return b
	}
	b.ep.port = port
	return b
}

// Separator sets the remote path-separator flavor.
func (b *Builder) Separator(sep FileSeparator) *Builder {
	b.ep.fileSeparator = sep
	return b
}

// ConnectTimeout sets the TCP connect timeout; 0 means indefinite.
func (b *Builder) ConnectTimeout(d time.Duration) *Builder {
	if d < 0 {
		b.err = &ConfigError{Field: "connectionTimeoutMillis", Err: fmt.Errorf("must be >= 0")}
		return b
	}
	b.ep.connectTimeout = d
	return b
}

// ReadTimeout sets the per-command read timeout; 0 means indefinite.
func (b *Builder) ReadTimeout(d time.Duration) *Builder {
	if d < 0 {
		b.err = &ConfigError{Field: "readTimeoutMillis", Err: fmt.Errorf("must be >= 0")}
		return b
	}
	b.ep.readTimeout = d
	return b
}

// Quarantine configures the quarantine action and directory. dir must be
// non-empty when action is not QuarantineNone. Whether dir exists and is
// writable is not checked here; quarantine.New checks that.
func (b *Builder) Quarantine(action QuarantineAction, dir string) *Builder {
	if action != QuarantineNone && dir == "" {
		b.err = &ConfigError{Field: "quarantineDir", Err: fmt.Errorf("required when quarantineFileAction != NONE")}
		return b
	}
	b.ep.quarantineKind = action
	b.ep.quarantineDir = dir
	return b
}

// Build validates the accumulated settings and returns an Endpoint, or a
// *ConfigError describing the first invalid field encountered.
func (b *Builder) Build() (*Endpoint, error) {
	if b.err != nil {
		return nil, b.err
	}
	ep := b.ep
	return &ep, nil
}
