package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/vimeo/go-clocks"

	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/internal/domain/ordering"
	"github.com/okian/pitwall/pkg/metrics"
)

// In-memory, transactional Store implementation.
//
// Mutations of one collection are serialized by a striped lock chosen by
// hashing the collection id. Inside Mutate every write goes to a private
// staging copy; the copy is folded into shared state only when the callback
// succeeds, so a failed or canceled mutation leaves nothing behind.

const lockStripes = 64

// MemStore keeps collections, entries and laps in process memory.
type MemStore struct {
	mu          sync.RWMutex
	collections map[string]model.Collection
	entries     map[string]map[string]model.Entry // collection id -> entry id -> entry
	owner       map[string]string                 // entry id -> collection id

	stripes [lockStripes]sync.Mutex

	laps   *xsync.MapOf[model.Scope, []model.LapRecord]
	closed atomic.Bool

	faults FaultInjector
	clock  clocks.Clock
}

// NewMemStore creates an empty MemStore.
func NewMemStore(opts ...MemOption) *MemStore {
	s := &MemStore{
		collections: make(map[string]model.Collection),
		entries:     make(map[string]map[string]model.Entry),
		owner:       make(map[string]string),
		laps:        xsync.NewMapOf[model.Scope, []model.LapRecord](),
		clock:       clocks.DefaultClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemStore) stripe(collectionID string) *sync.Mutex {
	return &s.stripes[xxhash.Sum64String(collectionID)%lockStripes]
}

func (s *MemStore) fault(point string) error {
	if s.faults == nil {
		return nil
	}
	return s.faults(point)
}

func (s *MemStore) observe(op string, start time.Time, err error) {
	metrics.RecordStoreOperation(op, float64(s.clock.Now().Sub(start).Microseconds())/1000.0, errKind(err))
}

func (s *MemStore) ready(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

// CreateCollection persists a new, empty collection.
func (s *MemStore) CreateCollection(ctx context.Context, c model.Collection) (err error) {
	defer func(start time.Time) { s.observe(opCreateCollection, start, err) }(s.clock.Now())
	if err := s.ready(ctx); err != nil {
		return classify(opCreateCollection, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.collections[c.ID]; exists {
		return model.WrapKind(opCreateCollection, model.ErrConsistencyViolation, fmt.Errorf("collection %s already exists", c.ID))
	}
	s.collections[c.ID] = c
	s.entries[c.ID] = make(map[string]model.Entry)
	return nil
}

// GetCollection returns a collection by id.
func (s *MemStore) GetCollection(ctx context.Context, id string) (model.Collection, error) {
	if err := s.ready(ctx); err != nil {
		return model.Collection{}, classify(opGetCollection, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[id]
	if !ok {
		return model.Collection{}, model.WrapKind(opGetCollection, model.ErrNotFound, fmt.Errorf("collection %s", id))
	}
	return c, nil
}

// ListEntries returns a collection's entries ordered by position.
func (s *MemStore) ListEntries(ctx context.Context, collectionID string) (out []model.Entry, err error) {
	defer func(start time.Time) { s.observe(opListEntries, start, err) }(s.clock.Now())
	if err := s.ready(ctx); err != nil {
		return nil, classify(opListEntries, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.collections[collectionID]; !ok {
		return nil, model.WrapKind(opListEntries, model.ErrNotFound, fmt.Errorf("collection %s", collectionID))
	}
	return sortedEntries(s.entries[collectionID]), nil
}

// GetEntry returns an entry by id.
func (s *MemStore) GetEntry(ctx context.Context, id string) (model.Entry, error) {
	if err := s.ready(ctx); err != nil {
		return model.Entry{}, classify(opGetEntry, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	cid, ok := s.owner[id]
	if !ok {
		return model.Entry{}, model.WrapKind(opGetEntry, model.ErrNotFound, fmt.Errorf("entry %s", id))
	}
	return cloneEntry(s.entries[cid][id]), nil
}

// UpdatePayload merges fields into an entry's payload.
func (s *MemStore) UpdatePayload(ctx context.Context, entryID string, fields model.Payload, now time.Time) (out model.Entry, err error) {
	defer func(start time.Time) { s.observe(opUpdatePayload, start, err) }(s.clock.Now())
	if err := s.ready(ctx); err != nil {
		return model.Entry{}, classify(opUpdatePayload, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cid, ok := s.owner[entryID]
	if !ok {
		return model.Entry{}, model.WrapKind(opUpdatePayload, model.ErrNotFound, fmt.Errorf("entry %s", entryID))
	}
	e := s.entries[cid][entryID]
	e.Payload = e.Payload.Merge(fields)
	e.UpdatedAt = now
	s.entries[cid][entryID] = e
	return cloneEntry(e), nil
}

// Mutate runs fn against a staged view of the collection and commits the
// staged writes only if fn succeeds.
func (s *MemStore) Mutate(ctx context.Context, collectionID string, fn func(ctx context.Context, tx ordering.CollectionTx) error) (err error) {
	defer func(start time.Time) { s.observe(opMutate, start, err) }(s.clock.Now())
	if err := s.ready(ctx); err != nil {
		return classify(opMutate, err)
	}

	lock := s.stripe(collectionID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	_, ok := s.collections[collectionID]
	working := make(map[string]model.Entry, len(s.entries[collectionID]))
	for id, e := range s.entries[collectionID] {
		working[id] = cloneEntry(e)
	}
	s.mu.RUnlock()
	if !ok {
		return model.WrapKind(opMutate, model.ErrNotFound, fmt.Errorf("collection %s", collectionID))
	}

	if err := s.fault("mutate.begin"); err != nil {
		return classify(opMutate, err)
	}

	tx := &memTx{
		store:        s,
		collectionID: collectionID,
		working:      working,
		inserted:     make(map[string]struct{}),
		deleted:      make(map[string]struct{}),
		moved:        make(map[string]int),
	}
	defer func() { tx.done = true }()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := s.ready(ctx); err != nil {
		return classify(opMutate, err)
	}
	if err := s.fault("mutate.commit"); err != nil {
		return classify(opMutate, err)
	}

	s.commit(tx)
	return nil
}

// commit folds a successful transaction's staged writes into shared state.
// Payloads are left alone so concurrent UpdatePayload calls are not lost.
func (s *MemStore) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.entries[tx.collectionID]
	for id := range tx.deleted {
		delete(rows, id)
		delete(s.owner, id)
	}
	for id := range tx.inserted {
		rows[id] = tx.working[id]
		s.owner[id] = tx.collectionID
	}
	for id, pos := range tx.moved {
		if _, fresh := tx.inserted[id]; fresh {
			continue
		}
		e, ok := rows[id]
		if !ok {
			continue
		}
		e.Position = pos
		rows[id] = e
	}
}

// InsertLap stores a lap record under its scope.
func (s *MemStore) InsertLap(ctx context.Context, rec model.LapRecord) (err error) {
	defer func(start time.Time) { s.observe(opInsertLap, start, err) }(s.clock.Now())
	if err := s.ready(ctx); err != nil {
		return classify(opInsertLap, err)
	}

	scope := model.Scope{CarID: rec.CarID, TrackID: rec.TrackID}
	s.laps.Compute(scope, func(old []model.LapRecord, _ bool) ([]model.LapRecord, bool) {
		next := make([]model.LapRecord, len(old), len(old)+1)
		copy(next, old)
		return append(next, rec), false
	})
	return nil
}

// ListLaps returns every lap recorded for scope, oldest first.
func (s *MemStore) ListLaps(ctx context.Context, scope model.Scope) (out []model.LapRecord, err error) {
	defer func(start time.Time) { s.observe(opListLaps, start, err) }(s.clock.Now())
	if err := s.ready(ctx); err != nil {
		return nil, classify(opListLaps, err)
	}

	recs, _ := s.laps.Load(scope)
	out = make([]model.LapRecord, len(recs))
	copy(out, recs)
	return out, nil
}

// Ping reports whether the store is open.
func (s *MemStore) Ping(ctx context.Context) error {
	return classify(opPing, s.ready(ctx))
}

// Close marks the store closed; later calls fail as transient.
func (s *MemStore) Close() error {
	s.closed.Store(true)
	return nil
}

// memTx is the staged view handed to a Mutate callback.
type memTx struct {
	store        *MemStore
	collectionID string
	working      map[string]model.Entry
	inserted     map[string]struct{}
	deleted      map[string]struct{}
	moved        map[string]int
	done         bool
}

func (tx *memTx) check(ctx context.Context, op string) error {
	if tx.done {
		return model.WrapKind(op, model.ErrTransientStore, ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return classify(op, err)
	}
	return nil
}

func (tx *memTx) Entries(ctx context.Context) ([]model.Entry, error) {
	if err := tx.check(ctx, opListEntries); err != nil {
		return nil, err
	}
	return sortedEntries(tx.working), nil
}

func (tx *memTx) Insert(ctx context.Context, e model.Entry) error {
	if err := tx.check(ctx, opInsertEntry); err != nil {
		return err
	}
	if err := tx.store.fault("tx.insert"); err != nil {
		return classify(opInsertEntry, err)
	}
	if e.CollectionID != tx.collectionID {
		return model.Invalid(opInsertEntry, "entry belongs to another collection")
	}
	if e.Position < 1 {
		return model.Invalid(opInsertEntry, "position must be positive")
	}

	tx.store.mu.RLock()
	_, taken := tx.store.owner[e.ID]
	tx.store.mu.RUnlock()
	if _, staged := tx.working[e.ID]; taken || staged {
		return model.WrapKind(opInsertEntry, model.ErrConsistencyViolation, fmt.Errorf("duplicate entry id %s", e.ID))
	}
	for _, other := range tx.working {
		if other.Position == e.Position {
			return model.WrapKind(opInsertEntry, model.ErrConsistencyViolation,
				fmt.Errorf("position %d already taken by %s", e.Position, other.ID))
		}
	}

	e.Payload = e.Payload.Clone()
	tx.working[e.ID] = e
	tx.inserted[e.ID] = struct{}{}
	return nil
}

func (tx *memTx) Delete(ctx context.Context, entryID string) error {
	if err := tx.check(ctx, opDeleteEntry); err != nil {
		return err
	}
	if err := tx.store.fault("tx.delete"); err != nil {
		return classify(opDeleteEntry, err)
	}
	if _, ok := tx.working[entryID]; !ok {
		return model.WrapKind(opDeleteEntry, model.ErrNotFound, fmt.Errorf("entry %s", entryID))
	}

	delete(tx.working, entryID)
	delete(tx.moved, entryID)
	if _, fresh := tx.inserted[entryID]; fresh {
		delete(tx.inserted, entryID)
		return nil
	}
	tx.deleted[entryID] = struct{}{}
	return nil
}

func (tx *memTx) SetPositions(ctx context.Context, updates []model.PositionUpdate) error {
	if err := tx.check(ctx, opSetPositions); err != nil {
		return err
	}
	if err := tx.store.fault("tx.set_positions"); err != nil {
		return classify(opSetPositions, err)
	}

	next := make(map[string]int, len(updates))
	for _, u := range updates {
		if _, ok := tx.working[u.EntryID]; !ok {
			return model.WrapKind(opSetPositions, model.ErrConsistencyViolation,
				fmt.Errorf("entry %s is not in collection %s", u.EntryID, tx.collectionID))
		}
		next[u.EntryID] = u.Position
	}

	seen := make(map[int]string, len(tx.working))
	for id, e := range tx.working {
		pos := e.Position
		if p, ok := next[id]; ok {
			pos = p
		}
		if prev, dup := seen[pos]; dup {
			return model.WrapKind(opSetPositions, model.ErrConsistencyViolation,
				fmt.Errorf("entries %s and %s both at position %d", prev, id, pos))
		}
		seen[pos] = id
	}

	for id, pos := range next {
		e := tx.working[id]
		e.Position = pos
		tx.working[id] = e
		tx.moved[id] = pos
	}
	return nil
}

func sortedEntries(rows map[string]model.Entry) []model.Entry {
	out := make([]model.Entry, 0, len(rows))
	for _, e := range rows {
		out = append(out, cloneEntry(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func cloneEntry(e model.Entry) model.Entry {
	e.Payload = e.Payload.Clone()
	return e
}
