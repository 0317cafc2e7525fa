package ordering

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vimeo/go-clocks"
	"github.com/vimeo/go-retry"

	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
)

// Operation names used in errors, logs and metric labels.
const (
	OpAppend        = "ordering.append"
	OpRemove        = "ordering.remove"
	OpUpdatePayload = "ordering.update_payload"
	OpReorder       = "ordering.reorder"
	OpList          = "ordering.list"
)

const (
	defaultMaxReorder   = 500
	defaultRetryBackoff = 50 * time.Millisecond
	// Reorders get one retry on a transient store error.
	reorderAttempts = 2
)

// Manager owns every mutation of a collection's ordering. Each call runs in a
// single store transaction and leaves the collection's positions dense.
type Manager struct {
	store        Store
	clock        clocks.Clock
	logger       logger.Logger
	newID        func() string
	maxReorder   int
	retryBackoff time.Duration
}

// NewManager creates a Manager over store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:        store,
		clock:        clocks.DefaultClock(),
		logger:       logger.Discard(),
		newID:        uuid.NewString,
		maxReorder:   defaultMaxReorder,
		retryBackoff: defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Append adds a new entry at position N+1 of the collection.
func (m *Manager) Append(ctx context.Context, collectionID string, payload model.Payload) (model.Entry, error) {
	if strings.TrimSpace(collectionID) == "" {
		return model.Entry{}, model.Invalid(OpAppend, "collection id is required")
	}

	var created model.Entry
	err := m.store.Mutate(ctx, collectionID, func(ctx context.Context, tx CollectionTx) error {
		current, err := tx.Entries(ctx)
		if err != nil {
			return err
		}
		if err := CheckDense(current); err != nil {
			return model.Wrap(OpAppend, err)
		}

		now := m.clock.Now().UTC()
		created = model.Entry{
			ID:           m.newID(),
			CollectionID: collectionID,
			Position:     NextPosition(current),
			Payload:      payload.Clone(),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.Insert(ctx, created); err != nil {
			return err
		}
		return m.verify(ctx, OpAppend, tx)
	})
	if err = m.finish(ctx, OpAppend, collectionID, err); err != nil {
		return model.Entry{}, err
	}

	m.logger.Debug(ctx, "entry appended",
		logger.String("collection_id", collectionID),
		logger.String("entry_id", created.ID),
		logger.Int("position", created.Position))
	return created, nil
}

// Remove deletes entryID from the collection and moves every later entry up
// by one. It fails with ErrNotFound when the entry is not in this collection.
func (m *Manager) Remove(ctx context.Context, collectionID, entryID string) error {
	if strings.TrimSpace(collectionID) == "" || strings.TrimSpace(entryID) == "" {
		return model.Invalid(OpRemove, "collection id and entry id are required")
	}

	var removed model.Entry
	err := m.store.Mutate(ctx, collectionID, func(ctx context.Context, tx CollectionTx) error {
		current, err := tx.Entries(ctx)
		if err != nil {
			return err
		}
		if err := CheckDense(current); err != nil {
			return model.Wrap(OpRemove, err)
		}

		var updates []model.PositionUpdate
		removed, updates, err = PlanRemoval(OpRemove, current, entryID)
		if err != nil {
			return err
		}
		if err := tx.Delete(ctx, entryID); err != nil {
			return err
		}
		if len(updates) > 0 {
			if err := tx.SetPositions(ctx, updates); err != nil {
				return err
			}
		}
		return m.verify(ctx, OpRemove, tx)
	})
	if err = m.finish(ctx, OpRemove, collectionID, err); err != nil {
		return err
	}

	m.logger.Debug(ctx, "entry removed",
		logger.String("collection_id", collectionID),
		logger.String("entry_id", entryID),
		logger.Int("position", removed.Position))
	return nil
}

// UpdatePayload merges fields into the entry's payload. A field set to JSON
// null is removed. Position never changes.
func (m *Manager) UpdatePayload(ctx context.Context, entryID string, fields model.Payload) (model.Entry, error) {
	if strings.TrimSpace(entryID) == "" {
		return model.Entry{}, model.Invalid(OpUpdatePayload, "entry id is required")
	}
	if len(fields) == 0 {
		return model.Entry{}, model.Invalid(OpUpdatePayload, "no fields to update")
	}

	e, err := m.store.UpdatePayload(ctx, entryID, fields, m.clock.Now().UTC())
	if err = m.finish(ctx, OpUpdatePayload, e.CollectionID, err); err != nil {
		return model.Entry{}, err
	}
	return e, nil
}

// Reorder applies ids as the new leading order of the collection. Ids not
// listed keep their relative order after the listed ones. The whole move is
// one transaction; a transient store failure is retried once. It returns the
// collection's entries in their new order.
func (m *Manager) Reorder(ctx context.Context, collectionID string, ids []string) ([]model.Entry, error) {
	if strings.TrimSpace(collectionID) == "" {
		return nil, model.Invalid(OpReorder, "collection id is required")
	}
	if err := ValidateOrdering(OpReorder, ids, m.maxReorder); err != nil {
		return nil, m.finish(ctx, OpReorder, collectionID, err)
	}

	var ordered []model.Entry
	attempt := func(ctx context.Context) error {
		return m.store.Mutate(ctx, collectionID, func(ctx context.Context, tx CollectionTx) error {
			current, err := tx.Entries(ctx)
			if err != nil {
				return err
			}
			if err := CheckDense(current); err != nil {
				return model.Wrap(OpReorder, err)
			}

			updates, err := PlanReorder(OpReorder, current, ids)
			if err != nil {
				return err
			}
			if len(updates) > 0 {
				if err := tx.SetPositions(ctx, updates); err != nil {
					return err
				}
			}

			after, err := tx.Entries(ctx)
			if err != nil {
				return err
			}
			if err := CheckDense(after); err != nil {
				return model.Wrap(OpReorder, err)
			}
			ordered = after
			return nil
		})
	}

	err := m.retryTransient(ctx, collectionID, attempt)
	if err = m.finish(ctx, OpReorder, collectionID, err); err != nil {
		return nil, err
	}

	m.logger.Debug(ctx, "collection reordered",
		logger.String("collection_id", collectionID),
		logger.Int("listed", len(ids)),
		logger.Int("entries", len(ordered)))
	return ordered, nil
}

// Entries returns the collection's entries ordered by position.
func (m *Manager) Entries(ctx context.Context, collectionID string) ([]model.Entry, error) {
	entries, err := m.store.ListEntries(ctx, collectionID)
	if err != nil {
		return nil, model.Wrap(OpList, err)
	}
	return entries, nil
}

// retryTransient runs fn, and once more after a backoff if the first attempt
// failed with ErrTransientStore.
func (m *Manager) retryTransient(ctx context.Context, collectionID string, fn func(context.Context) error) error {
	b := retry.DefaultBackoff()
	b.MinBackoff = m.retryBackoff
	if b.MaxBackoff < m.retryBackoff {
		b.MaxBackoff = m.retryBackoff
	}

	var err error
	for attempt := 1; attempt <= reorderAttempts; attempt++ {
		err = fn(ctx)
		if err == nil || !errors.Is(err, model.ErrTransientStore) || attempt == reorderAttempts {
			return err
		}

		metrics.RecordReorderRetry()
		m.logger.Warn(ctx, "reorder hit a transient store error, retrying",
			logger.String("collection_id", collectionID),
			logger.Int("attempt", attempt),
			logger.Error(err))

		if m.retryBackoff > 0 && !m.clock.SleepFor(ctx, b.Next()) {
			return model.WrapKind(OpReorder, model.ErrTransientStore, ctx.Err())
		}
	}
	return err
}

// verify re-reads the collection inside the transaction and rejects the
// commit if the positions are no longer dense.
func (m *Manager) verify(ctx context.Context, op string, tx CollectionTx) error {
	after, err := tx.Entries(ctx)
	if err != nil {
		return err
	}
	if err := CheckDense(after); err != nil {
		return model.Wrap(op, err)
	}
	return nil
}

// finish records the outcome of op and surfaces invariant breaches loudly.
func (m *Manager) finish(ctx context.Context, op, collectionID string, err error) error {
	if err == nil {
		metrics.RecordCollectionMutation(op, "ok")
		return nil
	}

	kind := model.KindOf(err)
	metrics.RecordCollectionMutation(op, kind)
	if errors.Is(err, model.ErrConsistencyViolation) {
		metrics.RecordConsistencyViolation(op)
		m.logger.Error(ctx, "position invariant violated",
			logger.String("event", "consistency_violation"),
			logger.String("op", op),
			logger.String("collection_id", collectionID),
			logger.Error(err))
	}

	var merr *model.Error
	if errors.As(err, &merr) && strings.HasPrefix(merr.Op, "ordering.") {
		return err
	}
	return model.Wrap(op, err)
}
