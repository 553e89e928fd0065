package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"github.com/liketrack/likesyncd/syncerr"
)

// CollectionTrack is one membership row: a mapping's presence in a
// collection, with position, add/sync timestamps, and a soft-delete
// removed_at. removed_at null is the sole membership-active signal.
type CollectionTrack struct {
	ID           string
	CollectionID string
	MappingID    string
	Position     int
	AddedAt      time.Time
	SyncedAt     time.Time
	RemovedAt    *time.Time
}

func collectionTrackFromRecord(r *core.Record) *CollectionTrack {
	ct := &CollectionTrack{
		ID:           r.Id,
		CollectionID: r.GetString("collection_id"),
		MappingID:    r.GetString("mapping_id"),
		Position:     r.GetInt("position"),
		AddedAt:      r.GetDateTime("added_at").Time(),
		SyncedAt:     r.GetDateTime("synced_at").Time(),
	}
	if removed := r.GetDateTime("removed_at").Time(); !removed.IsZero() {
		ct.RemovedAt = &removed
	}
	return ct
}

// AddToCollection upserts membership of mappingID in collectionID:
// clears removed_at and refreshes synced_at on an existing row, or
// creates one with addedAt defaulting to now.
func (s *Store) AddToCollection(collectionID, mappingID string, position *int, addedAt *time.Time) (*CollectionTrack, error) {
	app := s.pb
	existing, err := app.FindFirstRecordByFilter(
		collCollectionTracks, "collection_id = {:c} && mapping_id = {:m}",
		dbx.Params{"c": collectionID, "m": mappingID},
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, syncerr.New(syncerr.KindStore, err)
	}

	record := existing
	if record == nil {
		collection, err := app.FindCollectionByNameOrId(collCollectionTracks)
		if err != nil {
			return nil, syncerr.New(syncerr.KindStore, err)
		}
		record = core.NewRecord(collection)
		record.Set("collection_id", collectionID)
		record.Set("mapping_id", mappingID)
		at := now()
		if addedAt != nil {
			at = *addedAt
		}
		record.Set("added_at", at)
	}
	if position != nil {
		record.Set("position", *position)
	}
	record.Set("synced_at", now())
	record.Set("removed_at", nil)

	if err := app.Save(record); err != nil {
		return nil, syncerr.New(syncerr.KindStore, fmt.Errorf("add to collection: %w", err))
	}
	return collectionTrackFromRecord(record), nil
}

// MarkRemoved soft-deletes a membership row by setting removed_at to
// now. A no-op (not an error) if the row doesn't exist.
func (s *Store) MarkRemoved(collectionID, mappingID string) error {
	app := s.pb
	record, err := app.FindFirstRecordByFilter(
		collCollectionTracks, "collection_id = {:c} && mapping_id = {:m}",
		dbx.Params{"c": collectionID, "m": mappingID},
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return syncerr.New(syncerr.KindStore, err)
	}
	record.Set("removed_at", now())
	if err := app.Save(record); err != nil {
		return syncerr.New(syncerr.KindStore, fmt.Errorf("mark removed: %w", err))
	}
	return nil
}

// ListCollectionTracks returns a collection's membership, active rows
// only unless includeRemoved is set.
func (s *Store) ListCollectionTracks(collectionID string, includeRemoved bool) ([]*CollectionTrack, error) {
	filter := "collection_id = {:c}"
	params := dbx.Params{"c": collectionID}
	if !includeRemoved {
		filter += " && removed_at = ''"
	}
	records, err := s.pb.FindRecordsByFilter(collCollectionTracks, filter, "position", -1, 0, params)
	if err != nil {
		return nil, syncerr.New(syncerr.KindStore, err)
	}
	out := make([]*CollectionTrack, 0, len(records))
	for _, r := range records {
		out = append(out, collectionTrackFromRecord(r))
	}
	return out, nil
}
