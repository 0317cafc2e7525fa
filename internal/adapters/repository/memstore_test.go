package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/internal/domain/ordering"
)

func TestMemStore_FaultAtCommitLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	var failCommit bool
	s := NewMemStore(WithFaultInjector(func(point string) error {
		if failCommit && point == "mutate.commit" {
			return model.WrapKind("test", model.ErrTransientStore, errors.New("lock timeout"))
		}
		return nil
	}))
	newCollection(t, s, "c1")
	seed(t, s, "c1", "a", "b", "c")

	failCommit = true
	err := s.Mutate(ctx, "c1", func(ctx context.Context, tx ordering.CollectionTx) error {
		return tx.SetPositions(ctx, []model.PositionUpdate{{EntryID: "c", Position: 1}, {EntryID: "a", Position: 3}})
	})
	assert.True(t, errors.Is(err, model.ErrTransientStore), "got %v", err)
	assert.Equal(t, []string{"a", "b", "c"}, order(t, s, "c1"))
}

func TestMemStore_CanceledContext(t *testing.T) {
	s := NewMemStore()
	newCollection(t, s, "c1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Mutate(ctx, "c1", func(context.Context, ordering.CollectionTx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemStore_CancelInsideCallbackRollsBack(t *testing.T) {
	s := NewMemStore()
	newCollection(t, s, "c1")

	ctx, cancel := context.WithCancel(context.Background())
	err := s.Mutate(ctx, "c1", func(ctx context.Context, tx ordering.CollectionTx) error {
		if err := tx.Insert(ctx, model.Entry{ID: "a", CollectionID: "c1", Position: 1}); err != nil {
			return err
		}
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, order(t, s, "c1"))
}

func TestMemStore_ClosedIsTransient(t *testing.T) {
	s := NewMemStore()
	require.NoError(t, s.Close())

	err := s.Ping(context.Background())
	assert.True(t, errors.Is(err, model.ErrTransientStore), "got %v", err)
	_, err = s.ListLaps(context.Background(), model.Scope{CarID: "a", TrackID: "b"})
	assert.True(t, errors.Is(err, model.ErrTransientStore), "got %v", err)
}

func TestMemStore_TxUnusableAfterMutate(t *testing.T) {
	s := NewMemStore()
	newCollection(t, s, "c1")

	var leaked ordering.CollectionTx
	require.NoError(t, s.Mutate(context.Background(), "c1", func(_ context.Context, tx ordering.CollectionTx) error {
		leaked = tx
		return nil
	}))
	_, err := leaked.Entries(context.Background())
	assert.Error(t, err)
}

func TestMemStore_PayloadEditDuringMutateSurvivesCommit(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	newCollection(t, s, "c1")
	seed(t, s, "c1", "a", "b")

	err := s.Mutate(ctx, "c1", func(ctx context.Context, tx ordering.CollectionTx) error {
		if _, err := s.UpdatePayload(ctx, "a", model.Payload{"notes": json.RawMessage(`"pole"`)}, t0); err != nil {
			return err
		}
		return tx.SetPositions(ctx, []model.PositionUpdate{{EntryID: "b", Position: 1}, {EntryID: "a", Position: 2}})
	})
	require.NoError(t, err)

	e, err := s.GetEntry(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, e.Position)
	assert.Equal(t, `"pole"`, string(e.Payload["notes"]))
}

func TestMemStore_ConcurrentMutationsAcrossCollections(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	const collections, perCollection = 16, 25
	for c := 0; c < collections; c++ {
		newCollection(t, s, fmt.Sprintf("c%d", c))
	}

	var wg sync.WaitGroup
	for c := 0; c < collections; c++ {
		for i := 0; i < perCollection; i++ {
			wg.Add(1)
			go func(c, i int) {
				defer wg.Done()
				cid := fmt.Sprintf("c%d", c)
				err := s.Mutate(ctx, cid, func(ctx context.Context, tx ordering.CollectionTx) error {
					cur, err := tx.Entries(ctx)
					if err != nil {
						return err
					}
					return tx.Insert(ctx, model.Entry{
						ID:           fmt.Sprintf("%s-e%d", cid, i),
						CollectionID: cid,
						Position:     len(cur) + 1,
					})
				})
				assert.NoError(t, err)
			}(c, i)
		}
	}
	wg.Wait()

	for c := 0; c < collections; c++ {
		assert.Len(t, order(t, s, fmt.Sprintf("c%d", c)), perCollection)
	}
}

func TestMemStore_LapsCopyOnRead(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	scope := model.Scope{CarID: "gt3", TrackID: "spa"}
	require.NoError(t, s.InsertLap(ctx, model.LapRecord{ID: "l1", CarID: "gt3", TrackID: "spa", DriverID: "A", ElapsedMS: 1}))

	first, err := s.ListLaps(ctx, scope)
	require.NoError(t, err)
	first[0].ElapsedMS = 999

	again, err := s.ListLaps(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, int64(1), again[0].ElapsedMS)
}

func BenchmarkMemStore_MutateAppend(b *testing.B) {
	ctx := context.Background()
	s := NewMemStore()
	if err := s.CreateCollection(ctx, model.Collection{ID: "bench", Kind: model.KindRace}); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		err := s.Mutate(ctx, "bench", func(ctx context.Context, tx ordering.CollectionTx) error {
			cur, err := tx.Entries(ctx)
			if err != nil {
				return err
			}
			return tx.Insert(ctx, model.Entry{ID: fmt.Sprintf("e%d", i), CollectionID: "bench", Position: len(cur) + 1})
		})
		if err != nil {
			b.Fatal(err)
		}
	}
}
