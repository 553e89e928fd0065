package syncengine

import (
	"context"

	"github.com/liketrack/likesyncd/match"
	"github.com/liketrack/likesyncd/store"
)

// retryUnmatched implements spec.md §4.4 (g), full cycles only: every
// Unmatched row under the attempt ceiling gets one more search on the
// opposite side. A hit upserts the mapping, likes the target, adds
// target-side membership, and deletes the row; a miss bumps attempts
// through the same insert-on-conflict path AddUnmatched already uses
// for a fresh miss (spec.md §9's open question on this shared path).
func (e *Engine) retryUnmatched(ctx context.Context, likedA, likedB *store.Collection, stats *store.Stats) error {
	rows, err := e.st.ListRetryableUnmatched(e.cfg.MaxUnmatchedRetries)
	if err != nil {
		return err
	}

	for _, row := range rows {
		targetClient := e.clientB
		targetCollection := likedB
		remoteIDAIsSource := true
		if row.SourceService == store.ServiceB {
			targetClient = e.clientA
			targetCollection = likedA
			remoteIDAIsSource = false
		}

		found, err := targetClient.Search(ctx, row.Artist, row.Title)
		if err != nil {
			stats.Errors++
			continue
		}
		var confidence float64
		var ok bool
		if found != nil {
			ok, confidence = match.MatchConfidence(row.Artist, row.Title, nil, found.Artist, found.Title, found.DurationMs)
		}
		if found == nil || !ok {
			if _, err := e.st.AddUnmatched(row.SourceService, row.SourceRemoteID, row.Artist, row.Title); err != nil {
				stats.Errors++
			}
			continue
		}

		var remoteIDA, remoteIDB *string
		if remoteIDAIsSource {
			remoteIDA, remoteIDB = &row.SourceRemoteID, &found.RemoteID
		} else {
			remoteIDA, remoteIDB = &found.RemoteID, &row.SourceRemoteID
		}

		mapping, err := e.st.UpsertMapping(row.Artist, row.Title, remoteIDA, remoteIDB, confidence)
		if err != nil {
			stats.Errors++
			continue
		}
		if err := targetClient.Like(ctx, []string{found.RemoteID}); err != nil {
			stats.Errors++
			continue
		}
		if err := e.addMembership(targetCollection, mapping.ID, *found); err != nil {
			stats.Errors++
			continue
		}
		if err := e.st.ResolveUnmatched(row.SourceService, row.SourceRemoteID); err != nil {
			stats.Errors++
			continue
		}
		stats.RetriedOK++
	}
	return nil
}
