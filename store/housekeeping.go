package store

import (
	"fmt"
	"time"

	"github.com/pocketbase/dbx"

	"github.com/liketrack/likesyncd/syncerr"
)

// PruneOldSyncRuns deletes finished sync_runs rows older than cutoff,
// mirroring the teacher's pruneOldSolverRuns: find-then-delete-in-loop,
// one bad delete never aborts the rest. Returns the number removed.
func (s *Store) PruneOldSyncRuns(cutoff time.Time) (int, error) {
	records, err := s.pb.FindRecordsByFilter(
		collSyncRuns, "started_at < {:cutoff} && status != {:running}", "-started_at", 1000, 0,
		dbx.Params{"cutoff": cutoff.UTC().Format(time.RFC3339), "running": string(RunRunning)},
	)
	if err != nil {
		return 0, syncerr.New(syncerr.KindStore, fmt.Errorf("find old sync runs: %w", err))
	}
	deleted := 0
	for _, r := range records {
		if err := s.pb.Delete(r); err != nil {
			continue
		}
		deleted++
	}
	return deleted, nil
}

// PruneStaleUnmatched deletes unmatched rows that have exhausted their
// retry budget (attempts >= maxAttempts) and have aged past cutoff —
// rows the retry pass will never touch again.
func (s *Store) PruneStaleUnmatched(cutoff time.Time, maxAttempts int) (int, error) {
	records, err := s.pb.FindRecordsByFilter(
		collUnmatched, "last_attempt_at < {:cutoff} && attempts >= {:max}", "-last_attempt_at", 1000, 0,
		dbx.Params{"cutoff": cutoff.UTC().Format(time.RFC3339), "max": maxAttempts},
	)
	if err != nil {
		return 0, syncerr.New(syncerr.KindStore, fmt.Errorf("find stale unmatched: %w", err))
	}
	deleted := 0
	for _, r := range records {
		if err := s.pb.Delete(r); err != nil {
			continue
		}
		deleted++
	}
	return deleted, nil
}
