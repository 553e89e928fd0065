package syncengine

import (
	"context"

	"github.com/liketrack/likesyncd/match"
	"github.com/liketrack/likesyncd/remote"
	"github.com/liketrack/likesyncd/store"
)

// propagateAdditions implements spec.md §4.4 (f) for every source
// track that cross-match left unmatched: record it locally, search the
// target side, and either like the found track or fall back to an
// Unmatched row. existingTargetIDs is updated in place so a later
// track in the same loop never issues a second like for a remote id
// this pass already liked.
func (e *Engine) propagateAdditions(
	ctx context.Context,
	sourceService store.Service,
	sourceCollection, targetCollection *store.Collection,
	targetClient remote.Client,
	sourceTracks []remote.Track,
	existingTargetIDs map[string]bool,
	stats *store.Stats,
	addedCounter *int,
) {
	for _, src := range sourceTracks {
		if err := e.propagateOneAddition(ctx, sourceService, sourceCollection, targetCollection, targetClient, src, existingTargetIDs, addedCounter); err != nil {
			stats.Errors++
		}
	}
}

func (e *Engine) propagateOneAddition(
	ctx context.Context,
	sourceService store.Service,
	sourceCollection, targetCollection *store.Collection,
	targetClient remote.Client,
	src remote.Track,
	existingTargetIDs map[string]bool,
	addedCounter *int,
) error {
	var remoteIDA, remoteIDB *string
	if sourceService == store.ServiceA {
		remoteIDA = &src.RemoteID
	} else {
		remoteIDB = &src.RemoteID
	}

	// Confidence 0 here: this mapping only records the source side's
	// remote id so far, not an accepted pairing. The search below either
	// overwrites it with a real grade or leaves it unresolved as an
	// Unmatched row.
	mapping, err := e.st.UpsertMapping(src.Artist, src.Title, remoteIDA, remoteIDB, 0)
	if err != nil {
		return err
	}
	if err := e.addMembership(sourceCollection, mapping.ID, src); err != nil {
		return err
	}

	found, err := targetClient.Search(ctx, src.Artist, src.Title)
	if err != nil {
		return err
	}

	if found != nil {
		ok, confidence := match.MatchConfidence(src.Artist, src.Title, src.DurationMs, found.Artist, found.Title, found.DurationMs)
		if ok {
			if !existingTargetIDs[found.RemoteID] {
				if err := targetClient.Like(ctx, []string{found.RemoteID}); err != nil {
					return err
				}
				*addedCounter++
				existingTargetIDs[found.RemoteID] = true
			}

			aID, bID := remoteIDA, remoteIDB
			if sourceService == store.ServiceA {
				bID = &found.RemoteID
			} else {
				aID = &found.RemoteID
			}
			mapping, err = e.st.UpsertMapping(src.Artist, src.Title, aID, bID, confidence)
			if err != nil {
				return err
			}
			return e.addMembership(targetCollection, mapping.ID, *found)
		}
	}

	_, err = e.st.AddUnmatched(sourceService, src.RemoteID, src.Artist, src.Title)
	return err
}

// propagateRemovals implements spec.md §4.4 (d.5): mark local
// membership removed for every mapping absent from a fresh full
// fetch, and, when the counterpart remote id is known, unlike it on
// the other service and mark that side removed too. Every failure is
// counted, never aborts the cycle.
func (e *Engine) propagateRemovals(ctx context.Context, likedA, likedB *store.Collection, removedA, removedB []string, stats *store.Stats) {
	e.propagateOneSideRemovals(ctx, likedA, likedB, removedA, e.clientB, store.ServiceB, stats, &stats.RemovedA)
	e.propagateOneSideRemovals(ctx, likedB, likedA, removedB, e.clientA, store.ServiceA, stats, &stats.RemovedB)
}

func (e *Engine) propagateOneSideRemovals(
	ctx context.Context,
	sourceCollection, counterpartCollection *store.Collection,
	removedMappingIDs []string,
	counterpartClient remote.Client,
	counterpartService store.Service,
	stats *store.Stats,
	removedCounter *int,
) {
	if len(removedMappingIDs) == 0 {
		return
	}
	mappings, err := e.st.GetMappingsByIDs(removedMappingIDs)
	if err != nil {
		stats.Errors++
		return
	}

	for _, m := range mappings {
		if err := e.st.MarkRemoved(sourceCollection.ID, m.ID); err != nil {
			stats.Errors++
			continue
		}
		*removedCounter++

		counterpartRemoteID := m.RemoteIDA
		if counterpartService == store.ServiceB {
			counterpartRemoteID = m.RemoteIDB
		}
		if counterpartRemoteID == "" {
			continue
		}
		if err := counterpartClient.Unlike(ctx, []string{counterpartRemoteID}); err != nil {
			stats.Errors++
			continue
		}
		if err := e.st.MarkRemoved(counterpartCollection.ID, m.ID); err != nil {
			stats.Errors++
		}
	}
}
