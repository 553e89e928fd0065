package store

import (
	"fmt"

	"github.com/pocketbase/pocketbase/core"

	"github.com/liketrack/likesyncd/syncerr"
)

// ensureCollections defines the five tabular entities programmatically
// (no JS migrations ship with this daemon) and saves whichever ones
// don't already exist. Re-running Open against an existing data
// directory is a no-op here: FindCollectionByNameOrId succeeding means
// a prior Open already laid out the schema.
func (s *Store) ensureCollections() error {
	app := s.pb

	mappings, err := getOrCreate(app, collMappings, func(c *core.Collection) {
		c.Fields.Add(
			&core.TextField{Name: "remote_id_a"},
			&core.TextField{Name: "remote_id_b"},
			&core.TextField{Name: "artist", Required: true},
			&core.TextField{Name: "title", Required: true},
			&core.NumberField{Name: "confidence", Required: true, Min: floatPtr(0), Max: floatPtr(1)},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		c.AddIndex("idx_mappings_remote_a", true, "remote_id_a", "")
		c.AddIndex("idx_mappings_remote_b", true, "remote_id_b", "")
	})
	if err != nil {
		return err
	}

	collections, err := getOrCreate(app, collCollections, func(c *core.Collection) {
		c.Fields.Add(
			&core.SelectField{Name: "service", Required: true, Values: []string{string(ServiceA), string(ServiceB)}, MaxSelect: 1},
			&core.SelectField{Name: "kind", Required: true, Values: []string{string(KindLiked), string(KindPlaylist), string(KindAlbum)}, MaxSelect: 1},
			&core.TextField{Name: "remote_id"},
			&core.TextField{Name: "title", Required: true},
			&core.RelationField{Name: "paired_id", CollectionId: "", MaxSelect: 1},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		c.AddIndex("idx_collections_service_kind_remote", true, "service", "kind", "remote_id", "")
	})
	if err != nil {
		return err
	}
	// RelationField.CollectionId is self-referential and can only be
	// filled in once the collection itself has an id.
	if rel, ok := collections.Fields.GetByName("paired_id").(*core.RelationField); ok && rel.CollectionId == "" {
		rel.CollectionId = collections.Id
		if err := app.Save(collections); err != nil {
			return syncerr.New(syncerr.KindStore, fmt.Errorf("wire paired_id relation: %w", err))
		}
	}

	if _, err := getOrCreate(app, collCollectionTracks, func(c *core.Collection) {
		c.Fields.Add(
			&core.RelationField{Name: "collection_id", CollectionId: collections.Id, Required: true, MaxSelect: 1, CascadeDelete: true},
			&core.RelationField{Name: "mapping_id", CollectionId: mappings.Id, Required: true, MaxSelect: 1, CascadeDelete: true},
			&core.NumberField{Name: "position"},
			&core.DateField{Name: "added_at", Required: true},
			&core.DateField{Name: "synced_at"},
			&core.DateField{Name: "removed_at"},
		)
		c.AddIndex("idx_collection_tracks_unique", true, "collection_id", "mapping_id", "")
	}); err != nil {
		return err
	}

	if _, err := getOrCreate(app, collUnmatched, func(c *core.Collection) {
		c.Fields.Add(
			&core.SelectField{Name: "source_service", Required: true, Values: []string{string(ServiceA), string(ServiceB)}, MaxSelect: 1},
			&core.TextField{Name: "source_remote_id", Required: true},
			&core.TextField{Name: "artist", Required: true},
			&core.TextField{Name: "title", Required: true},
			&core.NumberField{Name: "attempts", Required: true, Min: floatPtr(1)},
			&core.DateField{Name: "last_attempt_at", Required: true},
			&core.AutodateField{Name: "created", OnCreate: true},
		)
		c.AddIndex("idx_unmatched_source", true, "source_service", "source_remote_id", "")
	}); err != nil {
		return err
	}

	if _, err := getOrCreate(app, collSyncRuns, func(c *core.Collection) {
		c.Fields.Add(
			&core.DateField{Name: "started_at", Required: true},
			&core.DateField{Name: "finished_at"},
			&core.RelationField{Name: "collection_id", CollectionId: collections.Id, MaxSelect: 1},
			&core.SelectField{Name: "direction", Required: true, Values: []string{
				string(DirectionAToB), string(DirectionBToA), string(DirectionBidirectional),
			}, MaxSelect: 1},
			&core.SelectField{Name: "mode", Required: true, Values: []string{string(ModeFull), string(ModeIncremental)}, MaxSelect: 1},
			&core.SelectField{Name: "status", Required: true, Values: []string{
				string(RunRunning), string(RunCompleted), string(RunFailed), string(RunCancelled),
			}, MaxSelect: 1},
			&core.JSONField{Name: "stats"},
			&core.TextField{Name: "error"},
		)
	}); err != nil {
		return err
	}

	return nil
}

func getOrCreate(app core.App, name string, define func(*core.Collection)) (*core.Collection, error) {
	if existing, err := app.FindCollectionByNameOrId(name); err == nil {
		return existing, nil
	}
	c := core.NewBaseCollection(name)
	define(c)
	if err := app.Save(c); err != nil {
		return nil, syncerr.New(syncerr.KindStore, fmt.Errorf("create collection %s: %w", name, err))
	}
	return c, nil
}

func floatPtr(f float64) *float64 { return &f }
