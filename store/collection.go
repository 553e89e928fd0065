package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"github.com/liketrack/likesyncd/syncerr"
)

// Collection is a side's playlist-shaped container: the data model
// gives every service exactly one "liked" Collection, plus room for
// ordinary playlists/albums this daemon doesn't populate.
type Collection struct {
	ID       string
	Service  Service
	Kind     CollectionKind
	RemoteID string
	Title    string
	PairedID string
}

func collectionFromRecord(r *core.Record) *Collection {
	return &Collection{
		ID:       r.Id,
		Service:  Service(r.GetString("service")),
		Kind:     CollectionKind(r.GetString("kind")),
		RemoteID: r.GetString("remote_id"),
		Title:    r.GetString("title"),
		PairedID: r.GetString("paired_id"),
	}
}

// EnsureLikedCollection returns the service's single liked-tracks
// Collection, creating it if absent. The (service, kind=liked)
// uniqueness invariant is enforced by the schema's composite index.
func (s *Store) EnsureLikedCollection(service Service) (*Collection, error) {
	app := s.pb
	existing, err := app.FindFirstRecordByFilter(
		collCollections, "service = {:service} && kind = {:kind}",
		dbx.Params{"service": string(service), "kind": string(KindLiked)},
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, syncerr.New(syncerr.KindStore, err)
	}
	if existing != nil {
		return collectionFromRecord(existing), nil
	}

	collection, err := app.FindCollectionByNameOrId(collCollections)
	if err != nil {
		return nil, syncerr.New(syncerr.KindStore, err)
	}
	record := core.NewRecord(collection)
	record.Set("service", string(service))
	record.Set("kind", string(KindLiked))
	record.Set("title", fmt.Sprintf("Liked tracks (%s)", service))
	if err := app.Save(record); err != nil {
		return nil, syncerr.New(syncerr.KindStore, fmt.Errorf("create liked collection: %w", err))
	}
	return collectionFromRecord(record), nil
}

// PairCollections sets each side's paired_id to the other, atomically.
func (s *Store) PairCollections(aID, bID string) error {
	app := s.pb
	return app.RunInTransaction(func(txApp core.App) error {
		a, err := txApp.FindRecordById(collCollections, aID)
		if err != nil {
			return syncerr.New(syncerr.KindStore, err)
		}
		b, err := txApp.FindRecordById(collCollections, bID)
		if err != nil {
			return syncerr.New(syncerr.KindStore, err)
		}
		a.Set("paired_id", bID)
		b.Set("paired_id", aID)
		if err := txApp.Save(a); err != nil {
			return syncerr.New(syncerr.KindStore, err)
		}
		if err := txApp.Save(b); err != nil {
			return syncerr.New(syncerr.KindStore, err)
		}
		return nil
	})
}
