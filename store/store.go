// Package store is the durable local state layer: five tabular entities
// backed by PocketBase's embedded SQLite, running headless (no HTTP
// server, no JS hooks) purely for its WAL-mode record/collection engine
// and query builder.
package store

import (
	"fmt"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"

	"github.com/liketrack/likesyncd/syncerr"
)

// Store owns all tabular state. The sync engine is its only writer;
// the RPC surface only issues read queries and aggregate counts.
type Store struct {
	pb *pocketbase.PocketBase
}

// Open bootstraps a PocketBase application rooted at dataDir without
// starting its HTTP server or any JS-hook plugin, then ensures the
// five collections this daemon needs exist with the right fields,
// uniqueness constraints and foreign keys.
func Open(dataDir string) (*Store, error) {
	pb := pocketbase.NewWithConfig(pocketbase.Config{
		DefaultDataDir: dataDir,
	})
	if err := pb.Bootstrap(); err != nil {
		return nil, syncerr.New(syncerr.KindStore, fmt.Errorf("bootstrap: %w", err))
	}
	s := &Store{pb: pb}
	if err := s.ensureCollections(); err != nil {
		return nil, err
	}
	return s, nil
}

// App exposes the underlying core.App for callers (principally tests)
// that need direct access to PocketBase's query builder.
func (s *Store) App() core.App {
	return s.pb
}

// Close checkpoints the write-ahead log and releases the database
// file handles. Grounded on kindred's ForceWALCheckpoint in
// sync/base_sync.go, generalized from a mid-sync helper into a
// shutdown step.
func (s *Store) Close() error {
	if _, err := s.pb.DB().NewQuery("PRAGMA wal_checkpoint(FULL)").Execute(); err != nil {
		return syncerr.New(syncerr.KindStore, fmt.Errorf("wal checkpoint: %w", err))
	}
	return s.pb.ResetBootstrapState()
}

func now() time.Time {
	return time.Now().UTC()
}

const (
	collMappings         = "track_mappings"
	collCollections      = "collections"
	collCollectionTracks = "collection_tracks"
	collUnmatched        = "unmatched"
	collSyncRuns         = "sync_runs"
)

// Service is a sync-source tag, A or B, stored as a short string so the
// schema never has to change when a service gets renamed.
type Service string

const (
	ServiceA Service = "A"
	ServiceB Service = "B"
)

// CollectionKind distinguishes the one liked-tracks pseudo-playlist we
// always maintain per service from ordinary playlists/albums the spec
// data model leaves room for but this daemon doesn't populate yet.
type CollectionKind string

const (
	KindLiked    CollectionKind = "liked"
	KindPlaylist CollectionKind = "playlist"
	KindAlbum    CollectionKind = "album"
)

// RunDirection and RunMode mirror the SyncRun enums from the data
// model exactly.
type RunDirection string

const (
	DirectionAToB        RunDirection = "A_to_B"
	DirectionBToA        RunDirection = "B_to_A"
	DirectionBidirectional RunDirection = "bidirectional"
)

type RunMode string

const (
	ModeFull        RunMode = "full"
	ModeIncremental RunMode = "incremental"
)

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)
