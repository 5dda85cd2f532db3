// Package watch presents a uniform file-watch event stream over two
// backends: a native kernel tree watch and an external fswatch
// subprocess, per spec.md §4.2.
package watch

import "time"

// EventType classifies a FileWatchEvent.
type EventType int

const (
	// EventCreated reports a new file or directory.
	EventCreated EventType = iota
	// EventModified reports a write to an existing file.
	EventModified
	// EventDeleted reports removal of a file or directory.
	EventDeleted
	// EventOverflow reports kernel-signaled loss of watch events; Path is
	// empty for this event type.
	EventOverflow
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "CREATED"
	case EventModified:
		return "MODIFIED"
	case EventDeleted:
		return "DELETED"
	case EventOverflow:
		return "OVERFLOW"
	default:
		return "UNKNOWN"
	}
}

// EntryKind classifies the filesystem entry a FileWatchEvent concerns.
type EntryKind int

const (
	// EntryFile denotes a regular file.
	EntryFile EntryKind = iota
	// EntryDir denotes a directory.
	EntryDir
	// EntryUnknown is used for OVERFLOW events and backends that cannot
	// determine the entry kind (e.g. a DELETED event for a path that no
	// longer exists to stat).
	EntryUnknown
)

// FileWatchEvent is the uniform event shape both watcher backends emit,
// per spec.md §3/§4.2.
type FileWatchEvent struct {
	Path      string
	Type      EventType
	Kind      EntryKind
	Timestamp time.Time
}

// FileListener receives filesystem change events.
type FileListener func(FileWatchEvent)

// ErrorListener receives out-of-band errors, keyed by the path that
// triggered them when known.
type ErrorListener func(path string, cause error)

// TerminationListener receives exactly one call when a watcher stops,
// successfully or not, per spec.md §3 ("must emit exactly one
// Termination").
type TerminationListener func(path string, cause error)

// FileWatcher is the capability set both backends implement, per
// spec.md §4.2 / §9 (the Go shape of the source's IFileWatcher
// polymorphism).
type FileWatcher interface {
	// SetFileListener registers the callback invoked for CREATED/
	// MODIFIED/DELETED/OVERFLOW events. Must be called before Start.
	SetFileListener(FileListener)

	// SetErrorListener registers the callback invoked for backend
	// errors that do not terminate the watcher.
	SetErrorListener(ErrorListener)

	// SetTerminationListener registers the callback invoked exactly once
	// when the watcher stops.
	SetTerminationListener(TerminationListener)

	// Start begins watching. Idempotent: a second call is a no-op.
	Start() error

	// Close stops watching and triggers the termination listener exactly
	// once. Must be called exactly once by the owner.
	Close() error

	// RegisteredPaths returns the directories currently registered for
	// watching. The native backend reports the main directory plus any
	// auto-registered subdirectories and secondary directories; the
	// subprocess backend reports the directories it was constructed with.
	RegisteredPaths() []string
}
