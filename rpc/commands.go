package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/liketrack/likesyncd/scheduler"
	"github.com/liketrack/likesyncd/store"
	"github.com/liketrack/likesyncd/syncengine"
)

// Status is the composed reply to the "status" command: scheduler
// state, engine state, and store aggregate counts, per spec.md §4.6.
type Status struct {
	Scheduler scheduler.Status      `json:"scheduler"`
	Engine    syncengine.Status     `json:"engine"`
	Counts    *store.AggregateCounts `json:"counts"`
}

// Daemon is the set of collaborators the command dispatcher needs.
// ShutdownFunc is called by the "shutdown" command to signal the owning
// process; it must not block waiting for shutdown to complete.
type Daemon struct {
	Scheduler    *scheduler.Scheduler
	Engine       *syncengine.Engine
	Store        *store.Store
	ShutdownFunc func()
}

type syncNowParams struct {
	Mode string `json:"mode,omitempty"`
}

// NewHandler builds the rpc.Handler that dispatches the command set
// spec.md §4.6 names: ping, status, health, sync_now, pause, resume,
// shutdown. Unknown commands produce ok=false with an error string.
func NewHandler(d Daemon) Handler {
	return func(req Request) Response {
		switch req.Cmd {
		case "ping":
			return ok(map[string]string{"pong": "ok"})
		case "health":
			return ok(map[string]string{"status": "healthy"})
		case "status":
			return handleStatus(d)
		case "sync_now":
			return handleSyncNow(d, req)
		case "pause":
			d.Scheduler.Pause()
			return ok(nil)
		case "resume":
			d.Scheduler.Resume()
			return ok(nil)
		case "shutdown":
			if d.ShutdownFunc != nil {
				go d.ShutdownFunc()
			}
			return ok(map[string]string{"message": "shutting down"})
		default:
			return fail(fmt.Sprintf("unknown command %q", req.Cmd))
		}
	}
}

func handleStatus(d Daemon) Response {
	counts, err := d.Store.AggregateCounts()
	if err != nil {
		return fail(err.Error())
	}
	status := Status{
		Scheduler: d.Scheduler.Status(),
		Engine:    d.Engine.Status(),
		Counts:    counts,
	}
	return ok(status)
}

func handleSyncNow(d Daemon, req Request) Response {
	var params syncNowParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return fail(fmt.Sprintf("invalid params: %v", err))
		}
	}

	var mode *store.RunMode
	switch params.Mode {
	case "":
		// no override; the engine's configured default mode applies.
	case string(store.ModeFull):
		m := store.ModeFull
		mode = &m
	case string(store.ModeIncremental):
		m := store.ModeIncremental
		mode = &m
	default:
		return fail(fmt.Sprintf("sync.mode: invalid value %q", params.Mode))
	}

	if err := d.Scheduler.TriggerNow(mode); err != nil {
		return fail(err.Error())
	}
	return ok(map[string]string{"message": "sync triggered"})
}

func ok(data interface{}) Response {
	return Response{OK: true, Data: data}
}

func fail(msg string) Response {
	return Response{OK: false, Error: msg}
}
