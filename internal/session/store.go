// Package session persists wizard state across client restarts.
//
// The store mirrors the browser sessionStorage contract of the original
// admin app: a single JSON blob plus a separate epoch-ms timestamp key,
// a 24-hour absolute ceiling, and a short validity window after which the
// wizard data survives but the backend-side upload correlation does not.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/wkndplanning/planctl/internal/metrics"
	"github.com/wkndplanning/planctl/internal/models"
)

// Storage key names, kept identical to the web client's sessionStorage keys
// so a reader of either codebase finds the same state under the same name.
const (
	stateKey     = "weekendPlanningState"
	timestampKey = "weekendPlanningStateTimestamp"
)

// Default windows. All of them are injectable via Options for tests.
const (
	defaultSaveThrottle   = time.Second
	defaultValidityWindow = 5 * time.Minute
	defaultMaxAge         = 24 * time.Hour
	defaultSweepAge       = 12 * time.Hour
	defaultSweepInterval  = 30 * time.Minute
)

// UIState carries the derived presentation flags persisted alongside the
// session, so a restored client can show the same surface the operator left.
type UIState struct {
	DashboardVisible  bool   `json:"dashboardVisible"`
	Toast             string `json:"toast,omitempty"`
	FileInputDisabled bool   `json:"fileInputDisabled"`
}

// State is the persisted envelope.
type State struct {
	Session models.WizardSession `json:"session"`
	UI      UIState              `json:"ui"`
	// UploadPhase is the two-step upload protocol position, so a resumed
	// client re-enters the exact screen the operator left.
	UploadPhase int   `json:"uploadPhase"`
	Timestamp   int64 `json:"timestamp"` // epoch-ms, set on save
}

// Restored is the result of a successful Restore.
type Restored struct {
	State    State
	TimeAway time.Duration
	// Rekeyed is true when TimeAway exceeded the validity window: the
	// session carries a fresh ID and NeedsReupload is set.
	Rekeyed bool
}

// Options configures a Store. Zero values fall back to the defaults above.
type Options struct {
	Dir            string
	SaveThrottle   time.Duration
	ValidityWindow time.Duration
	MaxAge         time.Duration
	SweepAge       time.Duration
	SweepInterval  time.Duration
	Logger         *slog.Logger
	Metrics        *metrics.Collector
}

// Store is a debounced, file-backed state store. Persistence failures are
// logged and swallowed: the wizard must keep working with in-memory state
// only, so no Store method returns a write error to its caller.
type Store struct {
	opts Options
	log  *slog.Logger

	mu       sync.Mutex
	pending  *State
	timer    *time.Timer
	lastSave time.Time
}

// NewStore creates a store rooted at opts.Dir, creating the directory if
// needed.
func NewStore(opts Options) *Store {
	if opts.SaveThrottle <= 0 {
		opts.SaveThrottle = defaultSaveThrottle
	}
	if opts.ValidityWindow <= 0 {
		opts.ValidityWindow = defaultValidityWindow
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = defaultMaxAge
	}
	if opts.SweepAge <= 0 {
		opts.SweepAge = defaultSweepAge
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		log.Error("create state dir failed, persistence disabled", "dir", opts.Dir, "error", err)
	}
	return &Store{opts: opts, log: log}
}

func (s *Store) statePath() string     { return filepath.Join(s.opts.Dir, stateKey) }
func (s *Store) timestampPath() string { return filepath.Join(s.opts.Dir, timestampKey) }

// Save schedules a persist of the given state. At most one write happens per
// throttle window; a request arriving inside the window is deferred to fire
// once when the window elapses, replacing any earlier pending state
// (last-write-wins coalescing, not queueing).
func (s *Store) Save(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer == nil && time.Since(s.lastSave) >= s.opts.SaveThrottle {
		s.writeLocked(state)
		return
	}

	s.pending = &state
	if s.timer == nil {
		wait := s.opts.SaveThrottle - time.Since(s.lastSave)
		if wait < 0 {
			wait = 0
		}
		s.timer = time.AfterFunc(wait, s.flushPending)
	}
}

// SaveNow persists immediately, bypassing the throttle. Used after every
// state-changing network response and on shutdown, where losing the last
// step is not acceptable.
func (s *Store) SaveNow(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropTimerLocked()
	s.writeLocked(state)
}

// Flush writes any pending deferred state synchronously.
func (s *Store) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.pending != nil {
		state := *s.pending
		s.pending = nil
		s.writeLocked(state)
	}
}

func (s *Store) flushPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timer = nil
	if s.pending != nil {
		state := *s.pending
		s.pending = nil
		s.writeLocked(state)
	}
}

func (s *Store) dropTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
}

// writeLocked serializes both keys. On a write failure it purges the
// feature's files and retries exactly once, then gives up with a log line.
func (s *Store) writeLocked(state State) {
	if s.opts.Metrics != nil {
		start := time.Now()
		defer func() { s.opts.Metrics.Record(metrics.OpStoreSave, time.Since(start)) }()
	}

	now := time.Now()
	state.Timestamp = now.UnixMilli()

	blob, err := json.Marshal(state)
	if err != nil {
		s.log.Error("marshal wizard state failed", "error", err)
		return
	}

	if err := s.writeFiles(blob, state.Timestamp); err != nil {
		s.log.Warn("persist wizard state failed, purging and retrying", "error", err)
		s.purge()
		if err := s.writeFiles(blob, state.Timestamp); err != nil {
			s.log.Error("persist wizard state failed after purge", "error", err)
			return
		}
	}
	s.lastSave = now
}

func (s *Store) writeFiles(blob []byte, ts int64) error {
	if err := os.WriteFile(s.statePath(), blob, 0o644); err != nil {
		return err
	}
	return os.WriteFile(s.timestampPath(), []byte(strconv.FormatInt(ts, 10)), 0o644)
}

// Restore reads back the persisted state. It returns nil (and clears the
// store) when nothing usable is on disk: missing or unparsable timestamp, or
// state older than the absolute ceiling. When the time away exceeds the
// validity window the wizard data is still returned, but with a fresh session
// ID and NeedsReupload set, since the backend-side upload correlated to the
// old ID is assumed expired.
func (s *Store) Restore() *Restored {
	if s.opts.Metrics != nil {
		start := time.Now()
		defer func() { s.opts.Metrics.Record(metrics.OpStoreRestore, time.Since(start)) }()
	}

	tsRaw, err := os.ReadFile(s.timestampPath())
	if err != nil {
		s.Clear()
		return nil
	}
	ts, err := strconv.ParseInt(string(tsRaw), 10, 64)
	if err != nil {
		s.log.Warn("stored timestamp unparsable, discarding state", "error", err)
		s.Clear()
		return nil
	}

	timeAway := time.Since(time.UnixMilli(ts))
	if timeAway > s.opts.MaxAge {
		s.log.Info("stored state exceeded absolute ceiling, discarding", "age", timeAway)
		s.Clear()
		return nil
	}

	blob, err := os.ReadFile(s.statePath())
	if err != nil {
		s.Clear()
		return nil
	}
	var state State
	if err := json.Unmarshal(blob, &state); err != nil {
		s.log.Warn("stored state unparsable, discarding", "error", err)
		s.Clear()
		return nil
	}

	restored := &Restored{State: state, TimeAway: timeAway}
	if timeAway > s.opts.ValidityWindow {
		restored.State.Session.Rekey()
		restored.Rekeyed = true
		s.log.Info("session validity window exceeded, re-keyed session",
			"timeAway", timeAway, "window", s.opts.ValidityWindow)
	}
	return restored
}

// Clear removes both keys and drops any pending deferred save.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropTimerLocked()
	s.purge()
}

// purge removes every file belonging to this feature, best effort.
func (s *Store) purge() {
	for _, p := range []string{s.statePath(), s.timestampPath()} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			s.log.Warn("remove state file failed", "path", p, "error", err)
		}
	}
}

// RunSweeper garbage-collects stale state on a timer, independent of any
// restore attempt. It blocks until ctx is cancelled.
func (s *Store) RunSweeper(ctx context.Context) {
	s.log.Debug("state sweeper started", "interval", s.opts.SweepInterval)

	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("state sweeper stopped")
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep holds the store lock so it cannot interleave with a save and delete
// the timestamp out from under a freshly written state blob.
func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	tsRaw, err := os.ReadFile(s.timestampPath())
	if err != nil {
		return
	}
	ts, err := strconv.ParseInt(string(tsRaw), 10, 64)
	if err != nil {
		s.purge()
		return
	}
	if age := time.Since(time.UnixMilli(ts)); age > s.opts.SweepAge {
		s.log.Info("sweeping stale wizard state", "age", age)
		s.purge()
	}
}
