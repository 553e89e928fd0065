package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"github.com/liketrack/likesyncd/syncerr"
)

// TrackMapping is the pairing of a track as seen on service A and/or
// service B, with the matcher's confidence in that pairing. is_good_match
// itself stays a predicate, not a ranker (spec.md §4.2's explicit
// tie-breaking note) — but match.MatchConfidence reports which tier
// accepted a search hit, and the engine records that grade here: 1.0
// for a cross-match or tier-1 containment hit, 0.95 for tier-2
// (transliterated) containment, or the tier-3 fuzzy ratio itself for a
// fuzzy accept. Confidence is never used to re-rank or second-guess an
// accepted match; it's an audit trail column, the same role
// storage/models.py's TrackMapping.match_confidence plays in the real
// original.
type TrackMapping struct {
	ID         string
	RemoteIDA  string
	RemoteIDB  string
	Artist     string
	Title      string
	Confidence float64
}

func mappingFromRecord(r *core.Record) *TrackMapping {
	return &TrackMapping{
		ID:         r.Id,
		RemoteIDA:  r.GetString("remote_id_a"),
		RemoteIDB:  r.GetString("remote_id_b"),
		Artist:     r.GetString("artist"),
		Title:      r.GetString("title"),
		Confidence: r.GetFloat("confidence"),
	}
}

// UpsertMapping inserts a new TrackMapping, or, when either remote id
// already belongs to a row, fills in the null counterpart and refreshes
// artist/title/confidence on the existing row.
func (s *Store) UpsertMapping(artist, title string, remoteIDA, remoteIDB *string, confidence float64) (*TrackMapping, error) {
	app := s.pb
	collection, err := app.FindCollectionByNameOrId(collMappings)
	if err != nil {
		return nil, syncerr.New(syncerr.KindStore, err)
	}

	existing, err := findMappingRecord(app, remoteIDA, remoteIDB)
	if err != nil {
		return nil, err
	}

	record := existing
	if record == nil {
		record = core.NewRecord(collection)
	}
	if remoteIDA != nil && record.GetString("remote_id_a") == "" {
		record.Set("remote_id_a", *remoteIDA)
	}
	if remoteIDB != nil && record.GetString("remote_id_b") == "" {
		record.Set("remote_id_b", *remoteIDB)
	}
	record.Set("artist", artist)
	record.Set("title", title)
	record.Set("confidence", confidence)

	if err := app.Save(record); err != nil {
		return nil, syncerr.New(syncerr.KindStore, fmt.Errorf("upsert mapping: %w", err))
	}
	return mappingFromRecord(record), nil
}

func findMappingRecord(app core.App, remoteIDA, remoteIDB *string) (*core.Record, error) {
	if remoteIDA != nil {
		r, err := app.FindFirstRecordByFilter(collMappings, "remote_id_a = {:id}", dbx.Params{"id": *remoteIDA})
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, syncerr.New(syncerr.KindStore, err)
		}
		if r != nil {
			return r, nil
		}
	}
	if remoteIDB != nil {
		r, err := app.FindFirstRecordByFilter(collMappings, "remote_id_b = {:id}", dbx.Params{"id": *remoteIDB})
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, syncerr.New(syncerr.KindStore, err)
		}
		if r != nil {
			return r, nil
		}
	}
	return nil, nil
}

// FindMappingByRemote returns the mapping owning remoteID on the given
// service, or nil if none exists.
func (s *Store) FindMappingByRemote(service Service, remoteID string) (*TrackMapping, error) {
	field := "remote_id_a"
	if service == ServiceB {
		field = "remote_id_b"
	}
	r, err := s.pb.FindFirstRecordByFilter(collMappings, field+" = {:id}", dbx.Params{"id": remoteID})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, syncerr.New(syncerr.KindStore, err)
	}
	return mappingFromRecord(r), nil
}

// GetMappingsByIDs bulk-fetches mappings for index building; missing
// ids are silently omitted from the result.
func (s *Store) GetMappingsByIDs(ids []string) ([]*TrackMapping, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	collection, err := s.pb.FindCollectionByNameOrId(collMappings)
	if err != nil {
		return nil, syncerr.New(syncerr.KindStore, err)
	}
	records, err := s.pb.FindRecordsByIds(collection, ids)
	if err != nil {
		return nil, syncerr.New(syncerr.KindStore, err)
	}
	out := make([]*TrackMapping, 0, len(records))
	for _, r := range records {
		out = append(out, mappingFromRecord(r))
	}
	return out, nil
}
