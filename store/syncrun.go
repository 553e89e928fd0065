package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"github.com/liketrack/likesyncd/syncerr"
)

// Stats accumulates one cycle's counters. Field names generalize the
// data model's sp_added/ym_added/sp_removed/ym_removed pairs (named
// for two concrete streaming services in the original system) to the
// service-agnostic A/B split this daemon uses throughout.
type Stats struct {
	AddedA       int `json:"added_a"`
	AddedB       int `json:"added_b"`
	RemovedA     int `json:"removed_a"`
	RemovedB     int `json:"removed_b"`
	CrossMatched int `json:"cross_matched"`
	Unmatched    int `json:"unmatched"`
	RetriedOK    int `json:"retried_ok"`
	Errors       int `json:"errors"`
}

// SyncRun records one engine cycle: exactly one status transition out
// of running, and finished_at is set iff status != running.
type SyncRun struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   *time.Time
	CollectionID string
	Direction    RunDirection
	Mode         RunMode
	Status       RunStatus
	Stats        *Stats
	Error        string
}

func syncRunFromRecord(r *core.Record) *SyncRun {
	run := &SyncRun{
		ID:           r.Id,
		StartedAt:    r.GetDateTime("started_at").Time(),
		CollectionID: r.GetString("collection_id"),
		Direction:    RunDirection(r.GetString("direction")),
		Mode:         RunMode(r.GetString("mode")),
		Status:       RunStatus(r.GetString("status")),
		Error:        r.GetString("error"),
	}
	if finished := r.GetDateTime("finished_at").Time(); !finished.IsZero() {
		run.FinishedAt = &finished
	}
	if raw := r.GetString("stats"); raw != "" && raw != "null" {
		var stats Stats
		if err := json.Unmarshal([]byte(raw), &stats); err == nil {
			run.Stats = &stats
		}
	}
	return run
}

// StartRun opens a SyncRun row in the running state.
func (s *Store) StartRun(direction RunDirection, mode RunMode, collectionID string) (*SyncRun, error) {
	app := s.pb
	collection, err := app.FindCollectionByNameOrId(collSyncRuns)
	if err != nil {
		return nil, syncerr.New(syncerr.KindStore, err)
	}
	record := core.NewRecord(collection)
	record.Set("started_at", now())
	record.Set("direction", string(direction))
	record.Set("mode", string(mode))
	record.Set("status", string(RunRunning))
	if collectionID != "" {
		record.Set("collection_id", collectionID)
	}
	if err := app.Save(record); err != nil {
		return nil, syncerr.New(syncerr.KindStore, fmt.Errorf("start run: %w", err))
	}
	return syncRunFromRecord(record), nil
}

// FinishRun closes a SyncRun exactly once, transitioning it out of
// running into status with the final stats payload and/or error.
func (s *Store) FinishRun(id string, status RunStatus, stats *Stats, runErr string) error {
	app := s.pb
	record, err := app.FindRecordById(collSyncRuns, id)
	if err != nil {
		return syncerr.New(syncerr.KindStore, err)
	}
	record.Set("finished_at", now())
	record.Set("status", string(status))
	if stats != nil {
		raw, err := json.Marshal(stats)
		if err != nil {
			return syncerr.New(syncerr.KindStore, err)
		}
		record.Set("stats", string(raw))
	}
	if runErr != "" {
		record.Set("error", runErr)
	}
	if err := app.Save(record); err != nil {
		return syncerr.New(syncerr.KindStore, fmt.Errorf("finish run: %w", err))
	}
	return nil
}

// LastSuccessfulRun returns the most recently completed SyncRun, or
// nil if none exists yet (the engine treats this as "first-ever sync").
func (s *Store) LastSuccessfulRun() (*SyncRun, error) {
	records, err := s.pb.FindRecordsByFilter(
		collSyncRuns, "status = {:status}", "-finished_at", 1, 0,
		dbx.Params{"status": string(RunCompleted)},
	)
	if err != nil {
		return nil, syncerr.New(syncerr.KindStore, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return syncRunFromRecord(records[0]), nil
}

// ListRuns returns a page of SyncRuns, most recent first.
func (s *Store) ListRuns(limit, offset int) ([]*SyncRun, error) {
	records, err := s.pb.FindRecordsByFilter(collSyncRuns, "", "-started_at", limit, offset, nil)
	if err != nil {
		return nil, syncerr.New(syncerr.KindStore, err)
	}
	out := make([]*SyncRun, 0, len(records))
	for _, r := range records {
		out = append(out, syncRunFromRecord(r))
	}
	return out, nil
}

// AggregateCounts reports the current row counts used by the status
// surface: total mappings, active memberships per collection, and
// pending unmatched rows.
type AggregateCounts struct {
	Mappings       int `json:"mappings"`
	ActiveTracksA  int `json:"active_tracks_a"`
	ActiveTracksB  int `json:"active_tracks_b"`
	PendingUnmatch int `json:"pending_unmatched"`
}

func (s *Store) AggregateCounts() (*AggregateCounts, error) {
	app := s.pb
	counts := &AggregateCounts{}

	if n, err := countAll(app, collMappings); err != nil {
		return nil, err
	} else {
		counts.Mappings = n
	}
	if n, err := countUnmatched(app); err != nil {
		return nil, err
	} else {
		counts.PendingUnmatch = n
	}
	for _, svc := range []Service{ServiceA, ServiceB} {
		// Looked up, not ensured: a liked collection that does not exist
		// yet counts as empty and nothing is written here.
		liked, err := app.FindFirstRecordByFilter(
			collCollections, "service = {:service} && kind = {:kind}",
			dbx.Params{"service": string(svc), "kind": string(KindLiked)},
		)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, syncerr.New(syncerr.KindStore, err)
		}
		active, err := s.ListCollectionTracks(liked.Id, false)
		if err != nil {
			return nil, err
		}
		if svc == ServiceA {
			counts.ActiveTracksA = len(active)
		} else {
			counts.ActiveTracksB = len(active)
		}
	}
	return counts, nil
}

func countAll(app core.App, collection string) (int, error) {
	records, err := app.FindRecordsByFilter(collection, "", "", -1, 0, nil)
	if err != nil {
		return 0, syncerr.New(syncerr.KindStore, err)
	}
	return len(records), nil
}

func countUnmatched(app core.App) (int, error) {
	return countAll(app, collUnmatched)
}
