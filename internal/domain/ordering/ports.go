// Package ordering maintains the dense 1..N position sequence of run lists
// and race rosters: append, remove with renumbering, payload edits and
// atomic reorders.
package ordering

import (
	"context"
	"time"

	"github.com/okian/pitwall/internal/domain/model"
)

// Store is the persistence port the Manager mutates through.
type Store interface {
	// Mutate runs fn inside one transaction that holds the collection's
	// lock. The transaction commits only when fn returns nil; any error
	// rolls back every write made through tx. Mutate returns ErrNotFound
	// when the collection does not exist.
	Mutate(ctx context.Context, collectionID string, fn func(ctx context.Context, tx CollectionTx) error) error

	// ListEntries returns a collection's entries ordered by position.
	ListEntries(ctx context.Context, collectionID string) ([]model.Entry, error)

	// UpdatePayload merges fields into an entry's payload without touching
	// its position.
	UpdatePayload(ctx context.Context, entryID string, fields model.Payload, now time.Time) (model.Entry, error)
}

// CollectionTx is the view of one locked collection inside Store.Mutate.
// Reads observe the transaction's own earlier writes.
type CollectionTx interface {
	// Entries returns the collection's entries ordered by position.
	Entries(ctx context.Context) ([]model.Entry, error)
	// Insert adds a new entry at the position it carries.
	Insert(ctx context.Context, e model.Entry) error
	// Delete removes an entry of this collection.
	Delete(ctx context.Context, entryID string) error
	// SetPositions applies a batch of position writes as one step, so a
	// permutation never collides with the unique (collection, position) key.
	SetPositions(ctx context.Context, updates []model.PositionUpdate) error
}
