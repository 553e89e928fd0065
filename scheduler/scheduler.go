// Package scheduler owns one syncengine.Engine and drives it: an
// immediate sync on start, a fixed interval thereafter, wakeable by a
// manual trigger, suspendable by pause/resume. A secondary cron job
// rides alongside the main loop for housekeeping.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/liketrack/likesyncd/store"
	"github.com/liketrack/likesyncd/syncengine"
)

// runRetentionDays and unmatchedRetentionDays ground this
// package's housekeeping job in the teacher's own LogRetentionDays
// constant (sync/scheduler.go), generalized from one fixed 7-day
// window to two independently named windows for sync_runs and stale
// unmatched rows.
const (
	runRetentionDays       = 30
	unmatchedRetentionDays = 14
	unmatchedMaxAttempts   = 5
)

// housekeepingCron is the teacher's own daily cadence from
// sync/scheduler.go's runDailySync schedule ("0 3 * * *").
const housekeepingCron = "0 3 * * *"

// Config carries the sync-section settings the scheduler itself needs,
// distinct from syncengine.Config which the engine already owns.
type Config struct {
	IntervalSeconds int
	DefaultMode     store.RunMode

	// Logger receives scheduler/engine events — the caller passes the
	// sync sink's *slog.Logger here (see logging.Sinks.Sync) rather
	// than this package writing through slog.Default(), so routing a
	// log line to the sync-only JSON stream is a wiring decision, not a
	// runtime filter. Defaults to slog.Default() when nil.
	Logger *slog.Logger
}

// Scheduler drives one Engine on a timer, wakeable by TriggerNow and
// suspendable by Pause/Resume. All public operations are safe for
// concurrent use.
type Scheduler struct {
	engine *syncengine.Engine
	st     *store.Store
	cfg    Config
	cron   *cron.Cron

	mu       sync.Mutex
	running  bool
	paused   bool
	lastSync *time.Time
	nextSync *time.Time

	triggerCh chan *store.RunMode
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New builds a Scheduler around an already-constructed Engine.
func New(st *store.Store, engine *syncengine.Engine, cfg Config) *Scheduler {
	if cfg.IntervalSeconds <= 0 {
		cfg.IntervalSeconds = 300
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{st: st, engine: engine, cfg: cfg}
}

// Start launches the background loop and the housekeeping cron. It is
// an error to Start an already-running Scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.triggerCh = make(chan *store.RunMode, 1)
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(housekeepingCron, s.runHousekeeping); err != nil {
		return fmt.Errorf("scheduling housekeeping: %w", err)
	}
	s.cron.Start()

	go s.loop(ctx)
	return nil
}

// Stop signals the loop to end and blocks until it has, including
// whatever cycle was already in progress — there is no hard deadline,
// matching spec.md §4.5.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh
	if s.cron != nil {
		cronCtx := s.cron.Stop()
		<-cronCtx.Done()
	}
}

// TriggerNow wakes the loop for an out-of-band cycle. The trigger is
// edge-triggered: a second call before the first is consumed is a
// no-op, never a queue of two cycles.
func (s *Scheduler) TriggerNow(mode *store.RunMode) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return fmt.Errorf("scheduler is not running")
	}
	select {
	case s.triggerCh <- mode:
	default:
	}
	return nil
}

// Pause suspends future sync initiation: a cycle already running when
// Pause is called is left to finish undisturbed, matching
// sync/scheduler.py's pause() — only the loop's next iteration is
// skipped, there is no cancellation of in-flight work.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	s.cfg.Logger.Info("scheduler paused")
}

// Resume lifts a prior Pause. Triggers discarded while paused are not
// replayed; the next deadline or explicit TriggerNow starts a fresh one.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	s.cfg.Logger.Info("scheduler resumed")
}

// Status is the scheduler-half of the RPC surface's composed reply.
type Status struct {
	Running     bool          `json:"running"`
	Paused      bool          `json:"paused"`
	IntervalSec int           `json:"interval_seconds"`
	DefaultMode store.RunMode `json:"default_mode"`
	LastSync    *time.Time    `json:"last_sync,omitempty"`
	NextSync    *time.Time    `json:"next_sync,omitempty"`
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:     s.running,
		Paused:      s.paused,
		IntervalSec: s.cfg.IntervalSeconds,
		DefaultMode: s.cfg.DefaultMode,
		LastSync:    s.lastSync,
		NextSync:    s.nextSync,
	}
}

// loop is the three-signal select spec.md §9 describes: a deadline
// timer, an edge-triggered wake channel, and a stop channel — whichever
// fires first wins. An immediate cycle runs before the loop is entered.
func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.doneCh)

	s.runCycle(ctx, nil)

	interval := time.Duration(s.cfg.IntervalSeconds) * time.Second
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case mode := <-s.triggerCh:
			if s.isPaused() {
				continue
			}
			s.runCycle(ctx, mode)
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(interval)
		case <-timer.C:
			if !s.isPaused() {
				s.runCycle(ctx, nil)
			}
			timer.Reset(interval)
		}
	}
}

func (s *Scheduler) isPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *Scheduler) runCycle(ctx context.Context, mode *store.RunMode) {
	_, err := s.engine.RunSync(ctx, mode)

	finished := time.Now()
	next := finished.Add(time.Duration(s.cfg.IntervalSeconds) * time.Second)
	s.mu.Lock()
	s.lastSync = &finished
	s.nextSync = &next
	s.mu.Unlock()

	if err != nil && err != syncengine.ErrBusy {
		s.cfg.Logger.Error("sync cycle failed", "error", err)
	}
}

// runHousekeeping implements spec.md §4.5's secondary cron concern,
// grounded on the teacher's pruneOldSolverRuns: delete old sync_runs
// and stale exhausted unmatched rows, warn and continue on failure
// rather than disturbing the main loop.
func (s *Scheduler) runHousekeeping() {
	runCutoff := time.Now().AddDate(0, 0, -runRetentionDays)
	if n, err := s.st.PruneOldSyncRuns(runCutoff); err != nil {
		s.cfg.Logger.Warn("failed to prune old sync runs", "error", err)
	} else if n > 0 {
		s.cfg.Logger.Info("pruned old sync runs", "deleted", n)
	}

	unmatchedCutoff := time.Now().AddDate(0, 0, -unmatchedRetentionDays)
	if n, err := s.st.PruneStaleUnmatched(unmatchedCutoff, unmatchedMaxAttempts); err != nil {
		s.cfg.Logger.Warn("failed to prune stale unmatched rows", "error", err)
	} else if n > 0 {
		s.cfg.Logger.Info("pruned stale unmatched rows", "deleted", n)
	}
}
