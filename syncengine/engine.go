// Package syncengine is the sync engine: the single writer over the
// store, driving one bidirectional cycle at a time between service A
// and service B per spec.md §4.4.
package syncengine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/liketrack/likesyncd/remote"
	"github.com/liketrack/likesyncd/store"
)

// State is the engine's own lifecycle state, reported by the status
// surface alongside the scheduler's running/paused flags.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateError   State = "error"
)

// ErrBusy is returned by RunSync when a cycle is already in flight.
// It is a control-flow rejection, not a per-track failure, so it
// deliberately sits outside the syncerr.Kind taxonomy.
var ErrBusy = errors.New("sync already in progress")

// Config carries the sync-section settings this engine needs.
type Config struct {
	DefaultMode         store.RunMode
	PropagateDeletions  bool
	MaxUnmatchedRetries int
}

// Engine owns one bidirectional cycle between clientA and clientB,
// backed by st. At most one cycle runs at a time (the mu below is the
// process-wide single-flight lock spec.md §5 requires).
type Engine struct {
	st      *store.Store
	clientA remote.Client
	clientB remote.Client
	cfg     Config

	mu    sync.Mutex
	state State

	statusMu  sync.RWMutex
	lastStats *store.Stats
	lastErr   string
}

// New builds an Engine. cfg.MaxUnmatchedRetries defaults to 5 (the
// spec.md glossary's bounded attempt counter) when zero.
func New(st *store.Store, clientA, clientB remote.Client, cfg Config) *Engine {
	if cfg.MaxUnmatchedRetries == 0 {
		cfg.MaxUnmatchedRetries = 5
	}
	return &Engine{st: st, clientA: clientA, clientB: clientB, cfg: cfg, state: StateIdle}
}

// Status is the engine-half of the RPC surface's composed status reply.
type Status struct {
	State     State        `json:"state"`
	LastStats *store.Stats `json:"last_stats,omitempty"`
	LastError string       `json:"last_error,omitempty"`
}

func (e *Engine) Status() Status {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return Status{State: e.state, LastStats: e.lastStats, LastError: e.lastErr}
}

func (e *Engine) setState(s State) {
	e.statusMu.Lock()
	e.state = s
	e.statusMu.Unlock()
}

// RunSync is the engine's only public entry. It fails fast with
// ErrBusy if a cycle is already running; otherwise it resolves the
// effective mode, opens a SyncRun, drives the cycle to completion (or
// failure), and always closes the run before returning.
func (e *Engine) RunSync(ctx context.Context, modeOverride *store.RunMode) (*store.SyncRun, error) {
	if !e.mu.TryLock() {
		return nil, ErrBusy
	}
	defer e.mu.Unlock()

	e.setState(StateSyncing)

	mode, err := e.effectiveMode(modeOverride)
	if err != nil {
		e.setState(StateError)
		return nil, err
	}

	run, err := e.st.StartRun(store.DirectionBidirectional, mode, "")
	if err != nil {
		e.setState(StateError)
		return nil, err
	}

	stats, cycleErr := e.runCycle(ctx, mode)

	finishStatus := store.RunCompleted
	errMsg := ""
	if cycleErr != nil {
		finishStatus = store.RunFailed
		errMsg = cycleErr.Error()
	}
	if err := e.st.FinishRun(run.ID, finishStatus, stats, errMsg); err != nil {
		cycleErr = errors.Join(cycleErr, err)
	}

	e.statusMu.Lock()
	e.lastStats = stats
	e.lastErr = errMsg
	e.statusMu.Unlock()

	if cycleErr != nil {
		e.setState(StateError)
		return run, cycleErr
	}
	e.setState(StateIdle)
	return run, nil
}

// effectiveMode implements spec.md §4.4's three-way precedence: full
// is forced when no successful run exists yet, regardless of override
// or config.
func (e *Engine) effectiveMode(modeOverride *store.RunMode) (store.RunMode, error) {
	last, err := e.st.LastSuccessfulRun()
	if err != nil {
		return "", err
	}
	if last == nil {
		return store.ModeFull, nil
	}
	if modeOverride != nil {
		return *modeOverride, nil
	}
	return e.cfg.DefaultMode, nil
}

func lastSuccessfulFinishedAt(st *store.Store) (*time.Time, error) {
	last, err := st.LastSuccessfulRun()
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, nil
	}
	return last.FinishedAt, nil
}
