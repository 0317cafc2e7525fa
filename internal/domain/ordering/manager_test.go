package ordering_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/vimeo/go-clocks/fake"

	"github.com/okian/pitwall/internal/adapters/repository"
	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/internal/domain/ordering"
	"github.com/okian/pitwall/pkg/logger"
)

var start = time.Date(2026, 6, 14, 10, 0, 0, 0, time.UTC)

// captureLogger records error-level events.
type captureLogger struct {
	mu     sync.Mutex
	events []map[string]any
}

func (c *captureLogger) Error(_ context.Context, msg string, fields ...logger.Field) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev := map[string]any{"msg": msg}
	for _, f := range fields {
		ev[f.Key] = f.Value
	}
	c.events = append(c.events, ev)
}
func (c *captureLogger) Info(context.Context, string, ...logger.Field)  {}
func (c *captureLogger) Debug(context.Context, string, ...logger.Field) {}
func (c *captureLogger) Warn(context.Context, string, ...logger.Field)  {}
func (c *captureLogger) Fatal(context.Context, string, ...logger.Field) {}
func (c *captureLogger) Named(string) logger.Logger                     { return c }
func (c *captureLogger) With(...logger.Field) logger.Logger             { return c }

func (c *captureLogger) count(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev["event"] == event {
			n++
		}
	}
	return n
}

// gappyStore reports the last entry one position too far, as if an earlier
// write had been lost.
type gappyStore struct{ *repository.MemStore }

func (g gappyStore) Mutate(ctx context.Context, id string, fn func(context.Context, ordering.CollectionTx) error) error {
	return g.MemStore.Mutate(ctx, id, func(ctx context.Context, tx ordering.CollectionTx) error {
		return fn(ctx, gappyTx{tx})
	})
}

type gappyTx struct{ ordering.CollectionTx }

func (g gappyTx) Entries(ctx context.Context) ([]model.Entry, error) {
	es, err := g.CollectionTx.Entries(ctx)
	if len(es) > 0 {
		es[len(es)-1].Position++
	}
	return es, err
}

type fixture struct {
	ctx   context.Context
	store *repository.MemStore
	mgr   *ordering.Manager
	clock *fake.Clock
	log   *captureLogger
}

func newFixture(opts ...repository.MemOption) *fixture {
	f := &fixture{
		ctx:   context.Background(),
		store: repository.NewMemStore(opts...),
		clock: fake.NewClock(start),
		log:   &captureLogger{},
	}
	var seq atomic.Int64
	f.mgr = ordering.NewManager(f.store,
		ordering.WithClock(f.clock),
		ordering.WithLogger(f.log),
		ordering.WithRetryBackoff(0),
		ordering.WithMaxReorderEntries(8),
		ordering.WithIDGenerator(func() string { return fmt.Sprintf("e%d", seq.Add(1)) }),
	)
	So(f.store.CreateCollection(f.ctx, model.Collection{ID: "c1", Kind: model.KindRace, CreatedAt: start}), ShouldBeNil)
	So(f.store.CreateCollection(f.ctx, model.Collection{ID: "c2", Kind: model.KindRunList, CreatedAt: start}), ShouldBeNil)
	return f
}

func (f *fixture) append(collectionID string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		e, err := f.mgr.Append(f.ctx, collectionID, model.Payload{"slot": json.RawMessage(fmt.Sprint(i))})
		So(err, ShouldBeNil)
		ids[i] = e.ID
	}
	return ids
}

func (f *fixture) order(collectionID string) []string {
	es, err := f.mgr.Entries(f.ctx, collectionID)
	So(err, ShouldBeNil)
	ids := make([]string, len(es))
	for i, e := range es {
		So(e.Position, ShouldEqual, i+1)
		ids[i] = e.ID
	}
	return ids
}

func idsOf(es []model.Entry) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.ID
	}
	return out
}

func TestManager_Append(t *testing.T) {
	Convey("Given an empty collection", t, func() {
		f := newFixture()

		Convey("When entries are appended", func() {
			first, err := f.mgr.Append(f.ctx, "c1", nil)
			So(err, ShouldBeNil)
			second, err := f.mgr.Append(f.ctx, "c1", model.Payload{"car": json.RawMessage(`"gt3"`)})
			So(err, ShouldBeNil)

			Convey("Then they take positions 1 and 2", func() {
				So(first.Position, ShouldEqual, 1)
				So(second.Position, ShouldEqual, 2)
				So(second.CollectionID, ShouldEqual, "c1")
				So(string(second.Payload["car"]), ShouldEqual, `"gt3"`)
				So(second.CreatedAt.Equal(start), ShouldBeTrue)
				So(f.order("c1"), ShouldResemble, []string{first.ID, second.ID})
			})

			Convey("Then other collections are unaffected", func() {
				So(f.order("c2"), ShouldBeEmpty)
			})
		})

		Convey("When appending to an unknown collection", func() {
			_, err := f.mgr.Append(f.ctx, "nope", nil)

			Convey("Then it fails with not found", func() {
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When two appends race", func() {
			var wg sync.WaitGroup
			results := make([]model.Entry, 2)
			errs := make([]error, 2)
			for i := 0; i < 2; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i], errs[i] = f.mgr.Append(f.ctx, "c1", nil)
				}(i)
			}
			wg.Wait()

			Convey("Then one lands at 1 and the other at 2", func() {
				So(errs[0], ShouldBeNil)
				So(errs[1], ShouldBeNil)
				So(results[0].Position+results[1].Position, ShouldEqual, 3)
				So(results[0].Position, ShouldNotEqual, results[1].Position)
			})
		})

		Convey("When many appends race", func() {
			const n = 64
			var wg sync.WaitGroup
			errs := make([]error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = f.mgr.Append(f.ctx, "c1", nil)
				}(i)
			}
			wg.Wait()

			Convey("Then positions are exactly 1..n", func() {
				for _, err := range errs {
					So(err, ShouldBeNil)
				}
				So(f.order("c1"), ShouldHaveLength, n)
			})
		})
	})
}

func TestManager_Remove(t *testing.T) {
	Convey("Given a collection with positions 1..4", t, func() {
		f := newFixture()
		ids := f.append("c1", 4)

		Convey("When the entry at position 2 is removed", func() {
			So(f.mgr.Remove(f.ctx, "c1", ids[1]), ShouldBeNil)

			Convey("Then the rest close the gap in order", func() {
				es, err := f.mgr.Entries(f.ctx, "c1")
				So(err, ShouldBeNil)
				So(idsOf(es), ShouldResemble, []string{ids[0], ids[2], ids[3]})
				So(es[0].Position, ShouldEqual, 1)
				So(es[1].Position, ShouldEqual, 2)
				So(es[2].Position, ShouldEqual, 3)
			})

			Convey("Then removing it again is not found", func() {
				err := f.mgr.Remove(f.ctx, "c1", ids[1])
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the last entry is removed", func() {
			So(f.mgr.Remove(f.ctx, "c1", ids[3]), ShouldBeNil)

			Convey("Then nothing else moves", func() {
				So(f.order("c1"), ShouldResemble, ids[:3])
			})
		})

		Convey("When removing through the wrong collection", func() {
			err := f.mgr.Remove(f.ctx, "c2", ids[0])

			Convey("Then it is not found and nothing changes", func() {
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
				So(f.order("c1"), ShouldResemble, ids)
			})
		})

		Convey("When the renumbering write fails", func() {
			f := newFixture(repository.WithFaultInjector(func(point string) error {
				if point == "tx.set_positions" {
					return errors.New("disk full")
				}
				return nil
			}))
			ids := f.append("c1", 4)
			err := f.mgr.Remove(f.ctx, "c1", ids[0])

			Convey("Then the delete is rolled back too", func() {
				So(err, ShouldNotBeNil)
				So(f.order("c1"), ShouldResemble, ids)
			})
		})
	})
}

func TestManager_Reorder(t *testing.T) {
	Convey("Given a collection of five entries", t, func() {
		f := newFixture()
		ids := f.append("c1", 5)

		Convey("When reordered with a full ordering", func() {
			want := []string{ids[4], ids[2], ids[0], ids[3], ids[1]}
			got, err := f.mgr.Reorder(f.ctx, "c1", want)
			So(err, ShouldBeNil)

			Convey("Then the result and a fresh read follow the input", func() {
				So(idsOf(got), ShouldResemble, want)
				So(f.order("c1"), ShouldResemble, want)
			})

			Convey("Then repeating it yields the same positions", func() {
				again, err := f.mgr.Reorder(f.ctx, "c1", want)
				So(err, ShouldBeNil)
				So(again, ShouldResemble, got)
			})
		})

		Convey("When reordered with a partial ordering", func() {
			got, err := f.mgr.Reorder(f.ctx, "c1", []string{ids[3], ids[1]})
			So(err, ShouldBeNil)

			Convey("Then unlisted entries follow in their old relative order", func() {
				So(idsOf(got), ShouldResemble, []string{ids[3], ids[1], ids[0], ids[2], ids[4]})
			})
		})

		Convey("When the ordering is malformed", func() {
			cases := map[string][]string{
				"empty ordering":                           {},
				"duplicate entry id":                       {ids[0], ids[1], ids[0]},
				"entry does not belong to this collection": {ids[0], "stranger"},
				"ordering exceeds maximum length":          {"a", "b", "c", "d", "e", "f", "g", "h", "i"},
			}

			Convey("Then each is rejected without touching positions", func() {
				for msg, in := range cases {
					_, err := f.mgr.Reorder(f.ctx, "c1", in)
					So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
					So(err.Error(), ShouldContainSubstring, msg)
				}
				So(f.order("c1"), ShouldResemble, ids)
			})
		})

		Convey("When an entry of another collection is listed", func() {
			other := f.append("c2", 1)
			_, err := f.mgr.Reorder(f.ctx, "c1", []string{ids[1], other[0]})

			Convey("Then it is rejected as foreign", func() {
				So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "entry does not belong to this collection")
			})
		})

		Convey("When the collection does not exist", func() {
			_, err := f.mgr.Reorder(f.ctx, "ghost", []string{ids[0]})

			Convey("Then it is not found", func() {
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestManager_ReorderRetry(t *testing.T) {
	Convey("Given a store whose commits fail transiently", t, func() {
		var failures atomic.Int32
		transient := model.WrapKind("test", model.ErrTransientStore, errors.New("could not obtain lock"))
		f := newFixture(repository.WithFaultInjector(func(point string) error {
			if point == "mutate.commit" && failures.Load() > 0 {
				failures.Add(-1)
				return transient
			}
			return nil
		}))
		ids := f.append("c1", 3)
		reversed := []string{ids[2], ids[1], ids[0]}

		Convey("When one commit fails", func() {
			failures.Store(1)
			got, err := f.mgr.Reorder(f.ctx, "c1", reversed)

			Convey("Then the retry applies the ordering", func() {
				So(err, ShouldBeNil)
				So(idsOf(got), ShouldResemble, reversed)
				So(f.order("c1"), ShouldResemble, reversed)
			})
		})

		Convey("When both attempts fail", func() {
			failures.Store(2)
			_, err := f.mgr.Reorder(f.ctx, "c1", reversed)

			Convey("Then the transient error surfaces and nothing moved", func() {
				So(errors.Is(err, model.ErrTransientStore), ShouldBeTrue)
				So(f.order("c1"), ShouldResemble, ids)
			})
		})

		Convey("When the retry waits on a backoff", func() {
			clock := fake.NewClock(start)
			mgr := ordering.NewManager(f.store, ordering.WithClock(clock), ordering.WithRetryBackoff(100*time.Millisecond))
			failures.Store(1)

			done := make(chan error, 1)
			go func() {
				_, err := mgr.Reorder(f.ctx, "c1", reversed)
				done <- err
			}()
			clock.AwaitSleepers(1)
			clock.Advance(time.Minute)

			Convey("Then it proceeds once the clock moves", func() {
				So(<-done, ShouldBeNil)
				So(f.order("c1"), ShouldResemble, reversed)
			})
		})

		Convey("When the caller gives up during the backoff", func() {
			clock := fake.NewClock(start)
			mgr := ordering.NewManager(f.store, ordering.WithClock(clock), ordering.WithRetryBackoff(100*time.Millisecond))
			failures.Store(1)

			ctx, cancel := context.WithCancel(f.ctx)
			done := make(chan error, 1)
			go func() {
				_, err := mgr.Reorder(ctx, "c1", reversed)
				done <- err
			}()
			clock.AwaitSleepers(1)
			cancel()

			Convey("Then it stops without applying anything", func() {
				So(errors.Is(<-done, model.ErrTransientStore), ShouldBeTrue)
				So(f.order("c1"), ShouldResemble, ids)
			})
		})
	})
}

func TestManager_ConsistencyViolation(t *testing.T) {
	Convey("Given a collection whose stored positions have a gap", t, func() {
		ctx := context.Background()
		mem := repository.NewMemStore()
		So(mem.CreateCollection(ctx, model.Collection{ID: "c1", Kind: model.KindRace}), ShouldBeNil)
		seeded := ordering.NewManager(mem)
		for i := 0; i < 3; i++ {
			_, err := seeded.Append(ctx, "c1", nil)
			So(err, ShouldBeNil)
		}
		before, err := mem.ListEntries(ctx, "c1")
		So(err, ShouldBeNil)

		log := &captureLogger{}
		mgr := ordering.NewManager(gappyStore{mem}, ordering.WithLogger(log))

		Convey("When any mutation is attempted", func() {
			_, appendErr := mgr.Append(ctx, "c1", nil)
			removeErr := mgr.Remove(ctx, "c1", before[0].ID)
			_, reorderErr := mgr.Reorder(ctx, "c1", []string{before[2].ID})

			Convey("Then each fails as a consistency violation", func() {
				So(errors.Is(appendErr, model.ErrConsistencyViolation), ShouldBeTrue)
				So(errors.Is(removeErr, model.ErrConsistencyViolation), ShouldBeTrue)
				So(errors.Is(reorderErr, model.ErrConsistencyViolation), ShouldBeTrue)
			})

			Convey("Then nothing is repaired or written", func() {
				after, err := mem.ListEntries(ctx, "c1")
				So(err, ShouldBeNil)
				So(after, ShouldResemble, before)
			})

			Convey("Then each is logged as a distinct event", func() {
				So(log.count("consistency_violation"), ShouldEqual, 3)
			})
		})
	})
}

func TestManager_UpdatePayload(t *testing.T) {
	Convey("Given a collection with entries", t, func() {
		f := newFixture()
		ids := f.append("c1", 3)

		Convey("When a payload is edited", func() {
			f.clock.Advance(time.Hour)
			e, err := f.mgr.UpdatePayload(f.ctx, ids[1], model.Payload{
				"notes": json.RawMessage(`"bring wets"`),
				"slot":  json.RawMessage(`null`),
			})
			So(err, ShouldBeNil)

			Convey("Then fields merge and the position stays", func() {
				So(e.Position, ShouldEqual, 2)
				So(string(e.Payload["notes"]), ShouldEqual, `"bring wets"`)
				So(e.Payload, ShouldNotContainKey, "slot")
				So(e.UpdatedAt.Equal(start.Add(time.Hour)), ShouldBeTrue)
				So(f.order("c1"), ShouldResemble, ids)
			})
		})

		Convey("When the entry is unknown", func() {
			_, err := f.mgr.UpdatePayload(f.ctx, "ghost", model.Payload{"x": json.RawMessage(`1`)})
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("When no fields are given", func() {
			_, err := f.mgr.UpdatePayload(f.ctx, ids[0], model.Payload{})
			So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
		})
	})
}

func TestManager_DenseAfterRandomOperations(t *testing.T) {
	Convey("Positions stay dense across a random mix of appends, removals and reorders", t, func() {
		f := newFixture()
		rng := rand.New(rand.NewSource(7))

		// f.order asserts density on every read.

		for step := 0; step < 300; step++ {
			current := f.order("c1")
			switch op := rng.Intn(3); {
			case op == 0 || len(current) == 0:
				_, err := f.mgr.Append(f.ctx, "c1", nil)
				So(err, ShouldBeNil)
			case op == 1:
				So(f.mgr.Remove(f.ctx, "c1", current[rng.Intn(len(current))]), ShouldBeNil)
			default:
				perm := rng.Perm(len(current))
				k := 1 + rng.Intn(len(current))
				if k > 8 {
					k = 8
				}
				ordered := make([]string, k)
				for i := 0; i < k; i++ {
					ordered[i] = current[perm[i]]
				}
				got, err := f.mgr.Reorder(f.ctx, "c1", ordered)
				So(err, ShouldBeNil)
				So(idsOf(got)[:k], ShouldResemble, ordered)
			}
		}
		f.order("c1")
	})
}

func TestManager_CanceledRequest(t *testing.T) {
	Convey("Given a canceled request context", t, func() {
		f := newFixture()
		ids := f.append("c1", 2)
		ctx, cancel := context.WithCancel(f.ctx)
		cancel()

		Convey("When reordering", func() {
			_, err := f.mgr.Reorder(ctx, "c1", []string{ids[1], ids[0]})

			Convey("Then nothing is applied", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(f.order("c1"), ShouldResemble, ids)
			})
		})
	})
}
