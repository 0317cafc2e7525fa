// Package repository implements the persistent store behind collections,
// entries and lap records: a database/sql store for postgres and sqlite, and
// an in-process store for tests and ephemeral runs.
package repository

import (
	"context"

	"github.com/okian/pitwall/internal/domain/leaderboard"
	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/internal/domain/ordering"
)

// Operation names used in errors and metric labels.
const (
	opCreateCollection = "store.create_collection"
	opGetCollection    = "store.get_collection"
	opListEntries      = "store.list_entries"
	opGetEntry         = "store.get_entry"
	opUpdatePayload    = "store.update_payload"
	opMutate           = "store.mutate"
	opInsertEntry      = "store.insert_entry"
	opDeleteEntry      = "store.delete_entry"
	opSetPositions     = "store.set_positions"
	opInsertLap        = "store.insert_lap"
	opListLaps         = "store.list_laps"
	opPing             = "store.ping"
)

// Store provides read/write access to collections, entries and laps.
type Store interface {
	ordering.Store
	leaderboard.LapSource

	// CreateCollection persists a new, empty collection.
	CreateCollection(ctx context.Context, c model.Collection) error

	// GetCollection returns a collection by id.
	// Returns ErrNotFound if the collection is unknown.
	GetCollection(ctx context.Context, id string) (model.Collection, error)

	// GetEntry returns an entry by id.
	// Returns ErrNotFound if the entry is unknown.
	GetEntry(ctx context.Context, id string) (model.Entry, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

var (
	_ Store = (*MemStore)(nil)
	_ Store = (*SQLStore)(nil)
)
