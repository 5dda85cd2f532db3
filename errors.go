package aviron

import "fmt"

// Sentinel errors usable with errors.Is. Each typed error below wraps one
// of these so callers can branch on error kind without inspecting message
// text.
var (
	// ErrConfig marks invalid build parameters for a Client, watcher, or
	// scanner.
	ErrConfig = fmt.Errorf("aviron: invalid configuration")

	// ErrNetwork marks a connect/read/write failure or timeout talking to
	// clamd.
	ErrNetwork = fmt.Errorf("aviron: network error")

	// ErrProtocol marks a reply that did not match the expected clamd
	// grammar.
	ErrProtocol = fmt.Errorf("aviron: protocol error")

	// ErrUnknownCommand marks a command the daemon did not advertise via
	// VERSIONCOMMANDS.
	ErrUnknownCommand = fmt.Errorf("aviron: unknown command")

	// ErrWatcher marks a filesystem watcher backend failure (start,
	// subprocess spawn, or registration).
	ErrWatcher = fmt.Errorf("aviron: watcher error")
)

// ConfigError reports an invalid build parameter.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("aviron: invalid configuration: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("aviron: invalid configuration: %s", e.Field)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

// NetworkError reports a transport-level failure for a given operation.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("aviron: network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Is reports whether target is ErrNetwork, allowing errors.Is(err,
// ErrNetwork) to succeed without needing to unwrap to the underlying net
// error as well.
func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// ProtocolError reports a reply that does not match clamd's grammar.
type ProtocolError struct {
	Reply string
	Err   error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("aviron: protocol error parsing %q: %v", e.Reply, e.Err)
	}
	return fmt.Sprintf("aviron: protocol error parsing %q", e.Reply)
}

func (e *ProtocolError) Unwrap() error { return ErrProtocol }

// UnknownCommandError reports a command not present in the daemon's
// advertised command set.
type UnknownCommandError struct {
	Command string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("aviron: command %q is not advertised by the daemon", e.Command)
}

func (e *UnknownCommandError) Unwrap() error { return ErrUnknownCommand }

// WatcherError reports a filesystem watcher backend failure: start,
// subprocess spawn, or directory registration.
type WatcherError struct {
	Path string
	Err  error
}

func (e *WatcherError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("aviron: watcher error on %q: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("aviron: watcher error: %v", e.Err)
}

func (e *WatcherError) Unwrap() error { return e.Err }

// Is reports whether target is ErrWatcher.
func (e *WatcherError) Is(target error) bool { return target == ErrWatcher }
