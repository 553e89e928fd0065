package syncengine

import (
	"context"

	"github.com/liketrack/likesyncd/match"
	"github.com/liketrack/likesyncd/remote"
	"github.com/liketrack/likesyncd/store"
)

// runCycle is steps (b)-(g) of spec.md §4.4: both client sessions are
// acquired in one nested scope so they're released together on every
// exit path, including an early return from inside the cycle body.
func (e *Engine) runCycle(ctx context.Context, mode store.RunMode) (*store.Stats, error) {
	stats := &store.Stats{}

	err := e.clientA.WithSession(ctx, func(ctx context.Context) error {
		return e.clientB.WithSession(ctx, func(ctx context.Context) error {
			likedA, likedB, err := e.ensurePairedLikedCollections()
			if err != nil {
				return err
			}

			if mode == store.ModeFull {
				return e.runFullCycle(ctx, likedA, likedB, stats)
			}
			return e.runIncrementalCycle(ctx, likedA, likedB, stats)
		})
	})
	return stats, err
}

func (e *Engine) ensurePairedLikedCollections() (*store.Collection, *store.Collection, error) {
	likedA, err := e.st.EnsureLikedCollection(store.ServiceA)
	if err != nil {
		return nil, nil, err
	}
	likedB, err := e.st.EnsureLikedCollection(store.ServiceB)
	if err != nil {
		return nil, nil, err
	}
	if likedA.PairedID != likedB.ID || likedB.PairedID != likedA.ID {
		if err := e.st.PairCollections(likedA.ID, likedB.ID); err != nil {
			return nil, nil, err
		}
	}
	return likedA, likedB, nil
}

// runFullCycle implements spec.md §4.4 (d): fetch both full liked sets
// in parallel, partition into known/new against current DB membership,
// cross-match the new tracks, propagate deletions when enabled,
// propagate additions for the rest, then retry the held-back unmatched
// queue.
func (e *Engine) runFullCycle(ctx context.Context, likedA, likedB *store.Collection, stats *store.Stats) error {
	remoteA, remoteB, err := fetchBothLiked(ctx, e.clientA, e.clientB, nil)
	if err != nil {
		return err
	}

	memberA, indexA, err := e.loadMembership(likedA)
	if err != nil {
		return err
	}
	memberB, indexB, err := e.loadMembership(likedB)
	if err != nil {
		return err
	}

	newA, removedA := partition(remoteA, indexA, memberA)
	newB, removedB := partition(remoteB, indexB, memberB)

	matches, unmatchedA, unmatchedB := match.CrossMatch(newA, newB, func(t remote.Track) (string, string) {
		return t.Artist, t.Title
	})

	existingAIDs := remoteIDSet(remoteA)
	existingBIDs := remoteIDSet(remoteB)

	for _, m := range matches {
		mapping, err := e.st.UpsertMapping(m.Left.Artist, m.Left.Title, &m.Left.RemoteID, &m.Right.RemoteID, 1.0)
		if err != nil {
			stats.Errors++
			continue
		}
		if err := e.addMembership(likedA, mapping.ID, m.Left); err != nil {
			stats.Errors++
		}
		if err := e.addMembership(likedB, mapping.ID, m.Right); err != nil {
			stats.Errors++
		}
		stats.CrossMatched++
	}

	if e.cfg.PropagateDeletions {
		e.propagateRemovals(ctx, likedA, likedB, removedA, removedB, stats)
	}

	e.propagateAdditions(ctx, store.ServiceA, likedA, likedB, e.clientB, unmatchedA, existingBIDs, stats, &stats.AddedB)
	e.propagateAdditions(ctx, store.ServiceB, likedB, likedA, e.clientA, unmatchedB, existingAIDs, stats, &stats.AddedA)

	return e.retryUnmatched(ctx, likedA, likedB, stats)
}

// runIncrementalCycle implements spec.md §4.4 (e): the fetch is scoped
// to tracks newer than the last successful run, and only cross-match
// plus addition propagation run — no partition, no deletion
// propagation, no unmatched retry.
func (e *Engine) runIncrementalCycle(ctx context.Context, likedA, likedB *store.Collection, stats *store.Stats) error {
	since, err := lastSuccessfulFinishedAt(e.st)
	if err != nil {
		return err
	}

	newA, newB, err := fetchBothLiked(ctx, e.clientA, e.clientB, since)
	if err != nil {
		return err
	}

	matches, unmatchedA, unmatchedB := match.CrossMatch(newA, newB, func(t remote.Track) (string, string) {
		return t.Artist, t.Title
	})

	existingAIDs := remoteIDSet(newA)
	existingBIDs := remoteIDSet(newB)

	for _, m := range matches {
		mapping, err := e.st.UpsertMapping(m.Left.Artist, m.Left.Title, &m.Left.RemoteID, &m.Right.RemoteID, 1.0)
		if err != nil {
			stats.Errors++
			continue
		}
		if err := e.addMembership(likedA, mapping.ID, m.Left); err != nil {
			stats.Errors++
		}
		if err := e.addMembership(likedB, mapping.ID, m.Right); err != nil {
			stats.Errors++
		}
		stats.CrossMatched++
	}

	e.propagateAdditions(ctx, store.ServiceA, likedA, likedB, e.clientB, unmatchedA, existingBIDs, stats, &stats.AddedB)
	e.propagateAdditions(ctx, store.ServiceB, likedB, likedA, e.clientA, unmatchedB, existingAIDs, stats, &stats.AddedA)
	return nil
}

func (e *Engine) addMembership(collection *store.Collection, mappingID string, track remote.Track) error {
	_, err := e.st.AddToCollection(collection.ID, mappingID, nil, track.AddedAt)
	return err
}

func remoteIDSet(tracks []remote.Track) map[string]bool {
	out := make(map[string]bool, len(tracks))
	for _, t := range tracks {
		out[t.RemoteID] = true
	}
	return out
}
