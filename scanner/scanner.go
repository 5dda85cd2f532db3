// Package scanner wires a file watcher to a bounded dedup queue and a
// clamd client into a real-time scanning pipeline, per spec.md §4.4.
package scanner

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jlangch/aviron"
	"github.com/jlangch/aviron/queue"
	"github.com/jlangch/aviron/watch"
)

// BatchSize is the maximum number of paths the worker pops per loop
// iteration, per spec.md §4.4.
const BatchSize = 300

// DefaultQueueCapacity is the default bounded-queue size.
const DefaultQueueCapacity = 5000

// Watcher backend names, per spec.md §4.2's two-backend design.
const (
	backendNative     = "native"
	backendSubprocess = "subprocess"
)

var workerCounter int64

// ScanApprover decides whether a CREATED/MODIFIED event's path should be
// queued for scanning. A nil approver approves everything. Any panic
// from the approver is recovered and treated as a rejection.
type ScanApprover func(watch.FileWatchEvent) bool

// RealtimeScanEvent reports the outcome of scanning one path.
type RealtimeScanEvent struct {
	EventID   uuid.UUID
	Path      string
	Result    *aviron.ScanResult
	Err       error
	Timestamp time.Time
}

// ScanListener receives a RealtimeScanEvent per scanned path. Panics
// from the listener are recovered and swallowed, per spec.md §4.4.
type ScanListener func(RealtimeScanEvent)

// RealtimeScanner is the watcher → queue → worker → daemon pipeline.
type RealtimeScanner struct {
	client         *aviron.Client
	mainDir        string
	secondary      []string
	approver       ScanApprover
	listener       ScanListener
	idleSleep      time.Duration
	queueCap       int
	backend        string
	fswatchBinary  string
	fswatchMonitor string
	logger         zerolog.Logger

	watcher watch.FileWatcher
	q       *queue.BoundedDedupQueue

	running atomic.Bool
	wg      sync.WaitGroup
	stopCh  chan struct{}
}

// Option configures a RealtimeScanner at construction.
type Option func(*RealtimeScanner)

// WithSecondaryDirs registers additional directories for watching
// alongside the main directory.
func WithSecondaryDirs(dirs ...string) Option {
	return func(s *RealtimeScanner) { s.secondary = dirs }
}

// WithScanApprover sets the predicate gating which changed paths are
// queued for scanning.
func WithScanApprover(a ScanApprover) Option {
	return func(s *RealtimeScanner) { s.approver = a }
}

// WithScanListener sets the callback invoked with each scan's outcome.
func WithScanListener(l ScanListener) Option {
	return func(s *RealtimeScanner) { s.listener = l }
}

// WithIdleSleep sets how long the worker sleeps when the queue is empty,
// clamped to at least one second per spec.md §4.4.
func WithIdleSleep(d time.Duration) Option {
	return func(s *RealtimeScanner) {
		if d < time.Second {
			d = time.Second
		}
		s.idleSleep = d
	}
}

// WithQueueCapacity overrides the default bounded-queue capacity.
func WithQueueCapacity(n int) Option {
	return func(s *RealtimeScanner) { s.queueCap = n }
}

// WithSubprocessWatcher switches the scanner from the default native
// kernel watch to the external fswatch subprocess backend (spec.md
// §4.2.2). binary is the fswatch executable path ("fswatch" on PATH if
// empty); monitor selects fswatch's -m backend name (e.g.
// "fsevents_monitor", "inotify_monitor"), left to fswatch's own default
// when empty.
func WithSubprocessWatcher(binary, monitor string) Option {
	return func(s *RealtimeScanner) {
		s.backend = backendSubprocess
		s.fswatchBinary = binary
		s.fswatchMonitor = monitor
	}
}

// New returns a RealtimeScanner over mainDir, not yet started.
func New(client *aviron.Client, mainDir string, logger zerolog.Logger, opts ...Option) *RealtimeScanner {
	s := &RealtimeScanner{
		client:    client,
		mainDir:   mainDir,
		idleSleep: time.Second,
		queueCap:  DefaultQueueCapacity,
		backend:   backendNative,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins watching and scanning. Idempotent: a second call is a
// no-op, per spec.md §4.4.
func (s *RealtimeScanner) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}

	s.q = queue.New(s.queueCap)
	s.stopCh = make(chan struct{})

	w, err := s.startWatcher()
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("scanner: starting watcher: %w", err)
	}
	s.watcher = w

	n := atomic.AddInt64(&workerCounter, 1)
	s.wg.Add(1)
	go s.workerLoop(fmt.Sprintf("aviron-rtscan-%d", n))

	return nil
}

// startWatcher constructs and starts the configured backend (native by
// default, the fswatch subprocess when WithSubprocessWatcher was given),
// per spec.md §4.2.
func (s *RealtimeScanner) startWatcher() (watch.FileWatcher, error) {
	errListener := func(path string, cause error) {
		s.logger.Warn().Str("path", path).Err(cause).Msg("watcher error")
	}
	termListener := func(path string, cause error) {
		s.logger.Info().Str("path", path).AnErr("cause", cause).Msg("watcher terminated")
	}

	if s.backend == backendSubprocess {
		dirs := append([]string{s.mainDir}, s.secondary...)
		w := watch.NewSubprocess(s.fswatchBinary, dirs, true, s.logger)
		w.SetMonitor(s.fswatchMonitor)
		w.SetFileListener(s.onFileEvent)
		w.SetErrorListener(errListener)
		w.SetTerminationListener(termListener)
		if err := w.Start(); err != nil {
			return nil, err
		}
		return w, nil
	}

	w := watch.NewNative(s.mainDir, true, s.logger)
	w.SetFileListener(s.onFileEvent)
	w.SetErrorListener(errListener)
	w.SetTerminationListener(termListener)
	if err := w.Start(); err != nil {
		return nil, err
	}
	for _, dir := range s.secondary {
		if err := w.RegisterSecondary(dir); err != nil {
			s.logger.Warn().Str("dir", dir).Err(err).Msg("secondary directory registration failed")
		}
	}
	return w, nil
}

// Stop signals the worker to exit and closes the watcher. Idempotent.
func (s *RealtimeScanner) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	close(s.stopCh)
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	s.wg.Wait()
}

func (s *RealtimeScanner) onFileEvent(ev watch.FileWatchEvent) {
	switch ev.Type {
	case watch.EventCreated, watch.EventModified:
		if ev.Kind != watch.EntryFile {
			return
		}
		if !s.approve(ev) {
			return
		}
		s.q.Push(ev.Path)
	case watch.EventDeleted:
		s.q.Remove(ev.Path)
	case watch.EventOverflow:
		// Kernel already lost detail; upstream activity will re-trigger.
	}
}

func (s *RealtimeScanner) approve(ev watch.FileWatchEvent) (approved bool) {
	if s.approver == nil {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn().Interface("recover", r).Str("path", ev.Path).Msg("scan approver panicked")
			approved = false
		}
	}()
	return s.approver(ev)
}

func (s *RealtimeScanner) workerLoop(name string) {
	defer s.wg.Done()
	s.logger.Debug().Str("worker", name).Msg("real-time scan worker started")

	for s.running.Load() {
		s.runBatch(name)
	}

	s.logger.Debug().Str("worker", name).Msg("real-time scan worker exiting")
}

func (s *RealtimeScanner) runBatch(name string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("recover", r).Str("worker", name).Msg("worker batch panicked")
			s.sleepInterruptible(2 * time.Second)
		}
	}()

	paths := s.q.PopN(BatchSize)
	if len(paths) == 0 {
		s.sleepIdle()
		return
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		s.scanOne(path)
	}
}

func (s *RealtimeScanner) scanOne(path string) {
	res, err := s.client.Scan(context.Background(), path)
	s.deliver(RealtimeScanEvent{
		EventID:   uuid.New(),
		Path:      path,
		Result:    res,
		Err:       err,
		Timestamp: time.Now(),
	})
}

func (s *RealtimeScanner) deliver(ev RealtimeScanEvent) {
	if s.listener == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn().Interface("recover", r).Str("path", ev.Path).Msg("scan listener panicked")
		}
	}()
	s.listener(ev)
}

func (s *RealtimeScanner) sleepIdle() {
	s.sleepInterruptible(s.idleSleep)
}

// sleepInterruptible sleeps in 1-second slices so Stop is observed
// within at most one quantum, per spec.md §5.
func (s *RealtimeScanner) sleepInterruptible(total time.Duration) {
	deadline := time.Now().Add(total)
	for s.running.Load() && time.Now().Before(deadline) {
		select {
		case <-s.stopCh:
			return
		case <-time.After(time.Second):
		}
	}
}

// Queued returns the current number of paths awaiting scan, for
// diagnostics.
func (s *RealtimeScanner) Queued() int {
	if s.q == nil {
		return 0
	}
	return s.q.Size()
}

// OverflowCount returns the number of paths the bounded queue has
// dropped at capacity since the last ResetOverflowCount, for diagnostics.
func (s *RealtimeScanner) OverflowCount() int {
	if s.q == nil {
		return 0
	}
	return s.q.OverflowCount()
}
