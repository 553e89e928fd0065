package syncengine

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/liketrack/likesyncd/remote"
	"github.com/liketrack/likesyncd/store"
)

// fetchBothLiked runs both services' FetchLiked concurrently, per
// spec.md §5's "the two service fetches in step (d.1) run
// concurrently". A failure on either side aborts the other via ctx
// cancellation and the whole cycle fails.
func fetchBothLiked(ctx context.Context, clientA, clientB remote.Client, since *time.Time) ([]remote.Track, []remote.Track, error) {
	g, gctx := errgroup.WithContext(ctx)

	var tracksA, tracksB []remote.Track
	g.Go(func() error {
		t, err := clientA.FetchLiked(gctx, since)
		tracksA = t
		return err
	})
	g.Go(func() error {
		t, err := clientB.FetchLiked(gctx, since)
		tracksB = t
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return tracksA, tracksB, nil
}

// membershipIndex maps a mapping's remote id on this side to the
// mapping row, built from current DB membership for index building
// (spec.md §4.4 (d.2)).
type membershipIndex struct {
	byRemoteID map[string]*store.TrackMapping
}

// loadMembership loads a collection's active membership and the
// mappings it references, returning both the raw CollectionTrack rows
// and a remote-id index for partitioning the freshly fetched remote
// list.
func (e *Engine) loadMembership(collection *store.Collection) ([]*store.CollectionTrack, membershipIndex, error) {
	tracks, err := e.st.ListCollectionTracks(collection.ID, false)
	if err != nil {
		return nil, membershipIndex{}, err
	}

	ids := make([]string, 0, len(tracks))
	for _, t := range tracks {
		ids = append(ids, t.MappingID)
	}
	mappings, err := e.st.GetMappingsByIDs(ids)
	if err != nil {
		return nil, membershipIndex{}, err
	}

	// Only this collection's own side of each mapping is relevant: a
	// collection's remote list is compared against its own service's
	// remote ids, never the counterpart's.
	byRemoteID := make(map[string]*store.TrackMapping, len(mappings))
	for _, m := range mappings {
		remoteID := m.RemoteIDA
		if collection.Service == store.ServiceB {
			remoteID = m.RemoteIDB
		}
		if remoteID != "" {
			byRemoteID[remoteID] = m
		}
	}
	return tracks, membershipIndex{byRemoteID: byRemoteID}, nil
}

// partition splits remoteList into tracks whose remote id already maps
// to a stored row (known, simply skipped — already reconciled) and
// tracks that are genuinely new, and separately computes which
// currently-stored mappings (by their membership rows) are no longer
// present in remoteList at all (removed).
func partition(remoteList []remote.Track, index membershipIndex, membership []*store.CollectionTrack) (newTracks []remote.Track, removedMappingIDs []string) {
	seen := make(map[string]bool, len(remoteList))
	for _, t := range remoteList {
		seen[t.RemoteID] = true
		if _, known := index.byRemoteID[t.RemoteID]; !known {
			newTracks = append(newTracks, t)
		}
	}

	remoteIDOf := func() map[string]string {
		out := make(map[string]string, len(index.byRemoteID))
		for remoteID, m := range index.byRemoteID {
			out[m.ID] = remoteID
		}
		return out
	}()

	for _, row := range membership {
		remoteID, ok := remoteIDOf[row.MappingID]
		if !ok {
			continue
		}
		if !seen[remoteID] {
			removedMappingIDs = append(removedMappingIDs, row.MappingID)
		}
	}
	return newTracks, removedMappingIDs
}
