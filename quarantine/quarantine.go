// Package quarantine isolates infected files by copy, move, or removal,
// per spec.md §4.5. It generalizes the teacher pipeline's single
// os.Rename-into-quarantine-dir step into the full NONE/COPY/MOVE/REMOVE
// action set, with content-addressed dedup.
package quarantine

import (
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jlangch/aviron"
)

// ErrQuarantine is the sentinel all quarantine I/O failures wrap.
var ErrQuarantine = errors.New("quarantine")

// QuarantineError reports a failed quarantine action.
type QuarantineError struct {
	Path   string
	Action aviron.QuarantineAction
	Err    error
}

func (e *QuarantineError) Error() string {
	return fmt.Sprintf("quarantine: %s on %q: %v", actionLabel(e.Action), e.Path, e.Err)
}

func (e *QuarantineError) Unwrap() error { return ErrQuarantine }

func actionLabel(a aviron.QuarantineAction) string {
	switch a {
	case aviron.QuarantineCopy:
		return "COPY"
	case aviron.QuarantineMove:
		return "MOVE"
	case aviron.QuarantineRemove:
		return "REMOVE"
	default:
		return "NONE"
	}
}

// QuarantineFile describes one file that was isolated.
type QuarantineFile struct {
	OriginalPath   string
	Viruses        []string
	Action         aviron.QuarantineAction
	QuarantinePath string
	MimeType       string
	Timestamp      time.Time
}

// QuarantineEvent is delivered to the configured listener after every
// quarantine action, successful or not.
type QuarantineEvent struct {
	EventID uuid.UUID
	File    QuarantineFile
	Err     error
}

// QuarantineListener receives a QuarantineEvent per processed file.
type QuarantineListener func(QuarantineEvent)

// Quarantine applies a configured action to infected files found in a
// ScanResult, salting each content-addressed name and serializing its
// own mutating operations (per spec.md §5's "quarantine component
// serializes its mutating operations").
type Quarantine struct {
	dir      string
	action   aviron.QuarantineAction
	salt     string
	listener QuarantineListener
	logger   zerolog.Logger

	mu sync.Mutex
}

// New returns a Quarantine writing into dir under the given action. dir
// must already exist and be writable unless action is QuarantineNone.
func New(dir string, action aviron.QuarantineAction, logger zerolog.Logger, listener QuarantineListener) (*Quarantine, error) {
	if action != aviron.QuarantineNone {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, &QuarantineError{Path: dir, Action: action, Err: err}
		}
		if !info.IsDir() {
			return nil, &QuarantineError{Path: dir, Action: action, Err: fmt.Errorf("not a directory")}
		}
		probe := filepath.Join(dir, ".aviron-write-probe")
		if err := os.WriteFile(probe, []byte{}, 0o600); err != nil {
			return nil, &QuarantineError{Path: dir, Action: action, Err: fmt.Errorf("directory not writable: %w", err)}
		}
		_ = os.Remove(probe)
	}
	return &Quarantine{dir: dir, action: action, salt: uuid.NewString(), logger: logger, listener: listener}, nil
}

// Process applies the configured action to every infected path reported
// by result.
func (q *Quarantine) Process(result *aviron.ScanResult) {
	if result == nil {
		return
	}
	for _, path := range result.Paths() {
		viruses := result.Viruses(path)
		if len(viruses) == 0 {
			continue
		}
		q.processOne(path, viruses)
	}
}

func (q *Quarantine) processOne(path string, viruses []string) {
	file := QuarantineFile{
		OriginalPath: path,
		Viruses:      viruses,
		Action:       q.action,
		Timestamp:    time.Now(),
	}
	if mt, err := mimetype.DetectFile(path); err == nil {
		file.MimeType = mt.String()
	}

	err := q.apply(path, &file)
	q.deliver(QuarantineEvent{EventID: uuid.New(), File: file, Err: err})
}

func (q *Quarantine) apply(path string, file *QuarantineFile) error {
	switch q.action {
	case aviron.QuarantineNone:
		return nil
	case aviron.QuarantineCopy:
		return q.copyIn(path, file)
	case aviron.QuarantineMove:
		if err := q.copyIn(path, file); err != nil {
			return err
		}
		if err := os.Remove(path); err != nil {
			return &QuarantineError{Path: path, Action: q.action, Err: err}
		}
		return nil
	case aviron.QuarantineRemove:
		if err := os.Remove(path); err != nil {
			return &QuarantineError{Path: path, Action: q.action, Err: err}
		}
		return nil
	default:
		return &QuarantineError{Path: path, Action: q.action, Err: fmt.Errorf("unknown action")}
	}
}

// copyIn copies path into the quarantine directory under a
// content-addressed name, skipping the copy if an identical-hash file
// already exists there.
func (q *Quarantine) copyIn(path string, file *QuarantineFile) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	src, err := os.Open(path)
	if err != nil {
		return &QuarantineError{Path: path, Action: q.action, Err: err}
	}
	defer src.Close()

	hasher := md5.New()
	hasher.Write([]byte(q.salt))
	buf, err := io.ReadAll(src)
	if err != nil {
		return &QuarantineError{Path: path, Action: q.action, Err: err}
	}
	hasher.Write(buf)
	sum := fmt.Sprintf("%x", hasher.Sum(nil))

	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return &QuarantineError{Path: path, Action: q.action, Err: err}
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), sum+"_") {
			file.QuarantinePath = filepath.Join(q.dir, e.Name())
			return nil
		}
	}

	dstName := fmt.Sprintf("%s_%s", sum, filepath.Base(path))
	dst := filepath.Join(q.dir, dstName)
	file.QuarantinePath = dst

	if err := os.WriteFile(dst, buf, 0o600); err != nil {
		return &QuarantineError{Path: path, Action: q.action, Err: err}
	}
	return nil
}

func (q *Quarantine) deliver(ev QuarantineEvent) {
	if q.listener == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			q.logger.Warn().Interface("recover", r).Str("path", ev.File.OriginalPath).Msg("quarantine listener panicked")
		}
	}()
	q.listener(ev)
}
