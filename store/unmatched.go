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

// Unmatched holds a source-service track the matcher couldn't place on
// the other side yet. attempts starts at 1 and is bumped on every
// failed retry; a row is deleted once a later attempt succeeds.
type Unmatched struct {
	ID             string
	SourceService  Service
	SourceRemoteID string
	Artist         string
	Title          string
	Attempts       int
	LastAttemptAt  time.Time
}

func unmatchedFromRecord(r *core.Record) *Unmatched {
	return &Unmatched{
		ID:             r.Id,
		SourceService:  Service(r.GetString("source_service")),
		SourceRemoteID: r.GetString("source_remote_id"),
		Artist:         r.GetString("artist"),
		Title:          r.GetString("title"),
		Attempts:       r.GetInt("attempts"),
		LastAttemptAt:  r.GetDateTime("last_attempt_at").Time(),
	}
}

// AddUnmatched inserts a new Unmatched row, or, on a (source_service,
// source_remote_id) conflict, increments attempts and touches
// last_attempt_at on the existing one.
func (s *Store) AddUnmatched(service Service, sourceRemoteID, artist, title string) (*Unmatched, error) {
	app := s.pb
	existing, err := app.FindFirstRecordByFilter(
		collUnmatched, "source_service = {:s} && source_remote_id = {:id}",
		dbx.Params{"s": string(service), "id": sourceRemoteID},
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, syncerr.New(syncerr.KindStore, err)
	}

	record := existing
	if record == nil {
		collection, err := app.FindCollectionByNameOrId(collUnmatched)
		if err != nil {
			return nil, syncerr.New(syncerr.KindStore, err)
		}
		record = core.NewRecord(collection)
		record.Set("source_service", string(service))
		record.Set("source_remote_id", sourceRemoteID)
		record.Set("artist", artist)
		record.Set("title", title)
		record.Set("attempts", 1)
	} else {
		record.Set("attempts", record.GetInt("attempts")+1)
	}
	record.Set("last_attempt_at", now())

	if err := app.Save(record); err != nil {
		return nil, syncerr.New(syncerr.KindStore, fmt.Errorf("add unmatched: %w", err))
	}
	return unmatchedFromRecord(record), nil
}

// ResolveUnmatched deletes the Unmatched row for (service, sourceRemoteID).
// A no-op if no such row exists.
func (s *Store) ResolveUnmatched(service Service, sourceRemoteID string) error {
	app := s.pb
	record, err := app.FindFirstRecordByFilter(
		collUnmatched, "source_service = {:s} && source_remote_id = {:id}",
		dbx.Params{"s": string(service), "id": sourceRemoteID},
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return syncerr.New(syncerr.KindStore, err)
	}
	if err := app.Delete(record); err != nil {
		return syncerr.New(syncerr.KindStore, fmt.Errorf("resolve unmatched: %w", err))
	}
	return nil
}

// ListRetryableUnmatched returns every Unmatched row with attempts
// below maxAttempts, for the full-cycle retry pass.
func (s *Store) ListRetryableUnmatched(maxAttempts int) ([]*Unmatched, error) {
	records, err := s.pb.FindRecordsByFilter(
		collUnmatched, "attempts < {:max}", "created", -1, 0, dbx.Params{"max": maxAttempts},
	)
	if err != nil {
		return nil, syncerr.New(syncerr.KindStore, err)
	}
	out := make([]*Unmatched, 0, len(records))
	for _, r := range records {
		out = append(out, unmatchedFromRecord(r))
	}
	return out, nil
}
