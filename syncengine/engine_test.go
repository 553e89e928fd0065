package syncengine

import (
	"context"
	"sync"
	"testing"

	"github.com/liketrack/likesyncd/remote"
	"github.com/liketrack/likesyncd/store"
)

func newTestEngine(t *testing.T, clientA, clientB remote.Client, cfg Config) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return New(st, clientA, clientB, cfg), st
}

// Scenario 1: first sync forces full, single addition propagates A->B.
func TestRunSync_FirstSyncForcesFull(t *testing.T) {
	clientA := newFakeClient(store.ServiceA, []remote.Track{
		{Service: store.ServiceA, RemoteID: "sp1", Artist: "Artist A", Title: "Song One"},
	})
	clientB := newFakeClient(store.ServiceB, nil).
		withSearchResult("Artist A", "Song One", remote.Track{Service: store.ServiceB, RemoteID: "ym1", Artist: "Artist A", Title: "Song One"})

	engine, st := newTestEngine(t, clientA, clientB, Config{DefaultMode: store.ModeIncremental})

	run, err := engine.RunSync(context.Background(), nil)
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if run.Mode != store.ModeFull {
		t.Fatalf("expected first run to force full mode, got %v", run.Mode)
	}

	if len(clientB.likeCalls) != 1 || len(clientB.likeCalls[0]) != 1 || clientB.likeCalls[0][0] != "ym1" {
		t.Fatalf("expected exactly one like([ym1]) call on B, got %+v", clientB.likeCalls)
	}

	mapping, err := st.FindMappingByRemote(store.ServiceA, "sp1")
	if err != nil {
		t.Fatalf("find mapping: %v", err)
	}
	if mapping == nil || mapping.RemoteIDB != "ym1" {
		t.Fatalf("expected mapping sp1 to carry remote_id_b=ym1, got %+v", mapping)
	}
}

// Scenario 2: cross-match pairs sp1/ym1 exactly; sp2 has no counterpart
// and no search hit, so it becomes an Unmatched row; no like calls.
func TestRunSync_CrossMatchAndUnmatched(t *testing.T) {
	clientA := newFakeClient(store.ServiceA, []remote.Track{
		{Service: store.ServiceA, RemoteID: "sp1", Artist: "Artist A", Title: "Song One"},
		{Service: store.ServiceA, RemoteID: "sp2", Artist: "Artist B", Title: "Song Two"},
	})
	clientB := newFakeClient(store.ServiceB, []remote.Track{
		{Service: store.ServiceB, RemoteID: "ym1", Artist: "Artist A", Title: "Song One"},
	})

	engine, st := newTestEngine(t, clientA, clientB, Config{DefaultMode: store.ModeIncremental})

	run, err := engine.RunSync(context.Background(), nil)
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if run.Stats == nil || run.Stats.CrossMatched != 1 {
		t.Fatalf("expected cross_matched=1, got %+v", run.Stats)
	}
	if len(clientA.likeCalls) != 0 || len(clientB.likeCalls) != 0 {
		t.Fatalf("expected no like calls, got A=%+v B=%+v", clientA.likeCalls, clientB.likeCalls)
	}

	retryable, err := st.ListRetryableUnmatched(5)
	if err != nil {
		t.Fatalf("list unmatched: %v", err)
	}
	found := false
	for _, u := range retryable {
		if u.SourceService == store.ServiceA && u.SourceRemoteID == "sp2" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an Unmatched row for (A, sp2), got %+v", retryable)
	}

	mapping, err := st.FindMappingByRemote(store.ServiceA, "sp1")
	if err != nil || mapping == nil || mapping.RemoteIDB != "ym1" {
		t.Fatalf("expected cross-matched mapping sp1<->ym1, got %+v err=%v", mapping, err)
	}
}

// Scenario 3: a new track on each side, neither overlapping the
// other's cross-match key, both propagate through search in the same
// cycle — one A->B, one B->A.
func TestRunSync_BidirectionalAdditions(t *testing.T) {
	clientA := newFakeClient(store.ServiceA, []remote.Track{
		{Service: store.ServiceA, RemoteID: "sp1", Artist: "Artist A", Title: "Song One"},
	}).withSearchResult("Artist C", "Song Three", remote.Track{Service: store.ServiceA, RemoteID: "sp2", Artist: "Artist C", Title: "Song Three"})
	clientB := newFakeClient(store.ServiceB, []remote.Track{
		{Service: store.ServiceB, RemoteID: "ym2", Artist: "Artist C", Title: "Song Three"},
	}).withSearchResult("Artist A", "Song One", remote.Track{Service: store.ServiceB, RemoteID: "ym1", Artist: "Artist A", Title: "Song One"})

	engine, st := newTestEngine(t, clientA, clientB, Config{DefaultMode: store.ModeIncremental})

	run, err := engine.RunSync(context.Background(), nil)
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if run.Stats == nil || run.Stats.CrossMatched != 0 {
		t.Fatalf("expected no cross-match (disjoint keys), got %+v", run.Stats)
	}
	if len(clientB.likeCalls) != 1 || clientB.likeCalls[0][0] != "ym1" {
		t.Fatalf("expected B.like([ym1]) for sp1's A->B propagation, got %+v", clientB.likeCalls)
	}
	if len(clientA.likeCalls) != 1 || clientA.likeCalls[0][0] != "sp2" {
		t.Fatalf("expected A.like([sp2]) for ym2's B->A propagation, got %+v", clientA.likeCalls)
	}
	if run.Stats.AddedA != 1 || run.Stats.AddedB != 1 {
		t.Fatalf("expected added_a=1 added_b=1, got %+v", run.Stats)
	}

	mA, err := st.FindMappingByRemote(store.ServiceA, "sp1")
	if err != nil || mA == nil || mA.RemoteIDB != "ym1" {
		t.Fatalf("expected sp1<->ym1 mapping, got %+v err=%v", mA, err)
	}
	mB, err := st.FindMappingByRemote(store.ServiceB, "ym2")
	if err != nil || mB == nil || mB.RemoteIDA != "sp2" {
		t.Fatalf("expected ym2<->sp2 mapping, got %+v err=%v", mB, err)
	}
}

// Scenario 4: full-mode deletion propagation unlikes the counterpart
// and marks both sides removed.
func TestRunSync_FullModeDeletionPropagation(t *testing.T) {
	clientA := newFakeClient(store.ServiceA, nil)
	clientB := newFakeClient(store.ServiceB, nil)
	engine, st := newTestEngine(t, clientA, clientB, Config{DefaultMode: store.ModeFull, PropagateDeletions: true})

	// Seed an existing paired mapping with active membership on both
	// sides, as if a prior cycle had created it.
	likedA, err := st.EnsureLikedCollection(store.ServiceA)
	if err != nil {
		t.Fatalf("ensure A: %v", err)
	}
	likedB, err := st.EnsureLikedCollection(store.ServiceB)
	if err != nil {
		t.Fatalf("ensure B: %v", err)
	}
	mapping, err := st.UpsertMapping("Art", "Song", strPtr("sp1"), strPtr("ym1"), 1.0)
	if err != nil {
		t.Fatalf("seed mapping: %v", err)
	}
	if _, err := st.AddToCollection(likedA.ID, mapping.ID, nil, nil); err != nil {
		t.Fatalf("seed membership A: %v", err)
	}
	if _, err := st.AddToCollection(likedB.ID, mapping.ID, nil, nil); err != nil {
		t.Fatalf("seed membership B: %v", err)
	}

	run, err := engine.RunSync(context.Background(), nil)
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if run.Stats == nil || run.Stats.RemovedA != 1 {
		t.Fatalf("expected removed_a=1, got %+v", run.Stats)
	}
	if len(clientB.unlikeCalls) != 1 || clientB.unlikeCalls[0][0] != "ym1" {
		t.Fatalf("expected B.unlike([ym1]), got %+v", clientB.unlikeCalls)
	}

	activeA, err := st.ListCollectionTracks(likedA.ID, false)
	if err != nil || len(activeA) != 0 {
		t.Fatalf("expected A membership removed, got %+v err=%v", activeA, err)
	}
	activeB, err := st.ListCollectionTracks(likedB.ID, false)
	if err != nil || len(activeB) != 0 {
		t.Fatalf("expected B membership removed, got %+v err=%v", activeB, err)
	}
}

func strPtr(s string) *string { return &s }

// Scenario 5: an incremental cycle with empty fetches never unlikes
// anything, even with a pre-existing paired mapping.
func TestRunSync_IncrementalSkipsRemovals(t *testing.T) {
	clientA := newFakeClient(store.ServiceA, nil)
	clientB := newFakeClient(store.ServiceB, nil)
	engine, st := newTestEngine(t, clientA, clientB, Config{DefaultMode: store.ModeIncremental, PropagateDeletions: true})

	likedA, _ := st.EnsureLikedCollection(store.ServiceA)
	likedB, _ := st.EnsureLikedCollection(store.ServiceB)
	mapping, err := st.UpsertMapping("Art", "Song", strPtr("sp1"), strPtr("ym1"), 1.0)
	if err != nil {
		t.Fatalf("seed mapping: %v", err)
	}
	st.AddToCollection(likedA.ID, mapping.ID, nil, nil)
	st.AddToCollection(likedB.ID, mapping.ID, nil, nil)

	// Prime a completed run so the next one is not forced to full.
	priorRun, err := st.StartRun(store.DirectionBidirectional, store.ModeFull, "")
	if err != nil {
		t.Fatalf("prior run: %v", err)
	}
	if err := st.FinishRun(priorRun.ID, store.RunCompleted, &store.Stats{}, ""); err != nil {
		t.Fatalf("finish prior run: %v", err)
	}

	run, err := engine.RunSync(context.Background(), nil)
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if run.Mode != store.ModeIncremental {
		t.Fatalf("expected incremental mode, got %v", run.Mode)
	}
	if len(clientB.unlikeCalls) != 0 || len(clientA.unlikeCalls) != 0 {
		t.Fatalf("expected no unlike calls in incremental mode, got A=%+v B=%+v", clientA.unlikeCalls, clientB.unlikeCalls)
	}
	if run.Stats.RemovedA != 0 || run.Stats.RemovedB != 0 {
		t.Fatalf("expected removed_a=0 removed_b=0, got %+v", run.Stats)
	}
}

// Scenario 6: retrying a held-back Unmatched row on a full cycle.
func TestRunSync_RetryUnmatched(t *testing.T) {
	clientA := newFakeClient(store.ServiceA, nil)
	clientB := newFakeClient(store.ServiceB, nil).
		withSearchResult("Art", "Song", remote.Track{Service: store.ServiceB, RemoteID: "ym_found", Artist: "Art", Title: "Song"})
	engine, st := newTestEngine(t, clientA, clientB, Config{DefaultMode: store.ModeIncremental})

	if _, err := st.AddUnmatched(store.ServiceA, "sp1", "Art", "Song"); err != nil {
		t.Fatalf("seed unmatched: %v", err)
	}

	run, err := engine.RunSync(context.Background(), nil)
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if run.Mode != store.ModeFull {
		t.Fatalf("expected first-ever run to force full mode, got %v", run.Mode)
	}
	if run.Stats == nil || run.Stats.RetriedOK != 1 {
		t.Fatalf("expected retried_ok=1, got %+v", run.Stats)
	}
	if len(clientB.likeCalls) != 1 || clientB.likeCalls[0][0] != "ym_found" {
		t.Fatalf("expected B.like([ym_found]), got %+v", clientB.likeCalls)
	}

	retryable, err := st.ListRetryableUnmatched(5)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, u := range retryable {
		if u.SourceRemoteID == "sp1" {
			t.Fatalf("expected the retried Unmatched row to be deleted")
		}
	}
}

// Single-flight: two concurrent RunSync calls yield exactly one
// execution; the loser gets ErrBusy.
func TestRunSync_SingleFlight(t *testing.T) {
	clientA := newFakeClient(store.ServiceA, nil)
	clientB := newFakeClient(store.ServiceB, nil)
	engine, _ := newTestEngine(t, clientA, clientB, Config{DefaultMode: store.ModeIncremental})

	engine.mu.Lock() // simulate a cycle already in flight
	var wg sync.WaitGroup
	var err error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err = engine.RunSync(context.Background(), nil)
	}()
	wg.Wait()
	engine.mu.Unlock()

	if err != ErrBusy {
		t.Fatalf("expected ErrBusy for a concurrent call, got %v", err)
	}
}

// Mode gating: with no successful run, effective mode is full even
// when an incremental override is passed explicitly.
func TestRunSync_ModeGatingIgnoresOverride(t *testing.T) {
	clientA := newFakeClient(store.ServiceA, nil)
	clientB := newFakeClient(store.ServiceB, nil)
	engine, _ := newTestEngine(t, clientA, clientB, Config{DefaultMode: store.ModeIncremental})

	override := store.ModeIncremental
	run, err := engine.RunSync(context.Background(), &override)
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if run.Mode != store.ModeFull {
		t.Fatalf("expected mode gating to force full on first run, got %v", run.Mode)
	}
}
