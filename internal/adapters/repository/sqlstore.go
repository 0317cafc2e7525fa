package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vimeo/go-clocks"

	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/internal/domain/ordering"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
)

// SQLStore is a Store over database/sql, speaking postgres (lib/pq) or
// sqlite (modernc.org/sqlite).
//
// Every collection mutation runs in one transaction that first bumps the
// collection row's version. On postgres that takes the row lock, so
// mutations of one collection serialize while others proceed; on sqlite the
// immediate transaction already holds the database write lock.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	logger  logger.Logger
	clock   clocks.Clock
	migrate bool
}

const entryColumns = "id, collection_id, position, payload, created_at, updated_at"

// OpenSQL opens a pool for dialect and wraps it in a SQLStore.
func OpenSQL(ctx context.Context, dialectName, dsn string, maxOpenConns int, opts ...SQLOption) (*SQLStore, error) {
	if _, err := dialectFor(dialectName); err != nil {
		return nil, err
	}
	db, err := sql.Open(dialectName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialectName, err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns)
	}

	s, err := NewSQLStore(ctx, db, dialectName, opts...)
	if err != nil {
		db.Close() //nolint:errcheck // best effort on failed startup
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open pool. Unless disabled with WithMigrate(false), it
// pings the database and creates the schema.
func NewSQLStore(ctx context.Context, db *sql.DB, dialectName string, opts ...SQLOption) (*SQLStore, error) {
	d, err := dialectFor(dialectName)
	if err != nil {
		return nil, err
	}
	s := &SQLStore{
		db:      db,
		dialect: d,
		logger:  logger.Discard(),
		clock:   clocks.DefaultClock(),
		migrate: true,
	}
	for _, opt := range opts {
		opt(s)
	}

	if !s.migrate {
		return s, nil
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping %s: %w", d.name, err)
	}
	if err := s.migrateSchema(ctx); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "sql store ready", logger.String("dialect", d.name))
	return s, nil
}

func (s *SQLStore) observe(op string, start time.Time, err error) {
	metrics.RecordStoreOperation(op, float64(s.clock.Now().Sub(start).Microseconds())/1000.0, errKind(err))
}

func (s *SQLStore) q(query string) string { return s.dialect.rebind(query) }

// CreateCollection persists a new, empty collection.
func (s *SQLStore) CreateCollection(ctx context.Context, c model.Collection) (err error) {
	defer func(start time.Time) { s.observe(opCreateCollection, start, err) }(s.clock.Now())

	_, err = s.db.ExecContext(ctx,
		s.q(`INSERT INTO collection (id, kind, name, owner_id, version, created_at) VALUES (?, ?, ?, ?, 0, ?)`),
		c.ID, string(c.Kind), c.Name, c.OwnerID, toNanos(c.CreatedAt))
	return classify(opCreateCollection, err)
}

// GetCollection returns a collection by id.
func (s *SQLStore) GetCollection(ctx context.Context, id string) (c model.Collection, err error) {
	defer func(start time.Time) { s.observe(opGetCollection, start, err) }(s.clock.Now())

	var (
		kind    string
		created int64
	)
	err = s.db.QueryRowContext(ctx,
		s.q(`SELECT id, kind, name, owner_id, created_at FROM collection WHERE id = ?`), id).
		Scan(&c.ID, &kind, &c.Name, &c.OwnerID, &created)
	if err != nil {
		return model.Collection{}, classify(opGetCollection, err)
	}
	c.Kind = model.CollectionKind(kind)
	c.CreatedAt = fromNanos(created)
	return c, nil
}

// ListEntries returns a collection's entries ordered by position.
func (s *SQLStore) ListEntries(ctx context.Context, collectionID string) (out []model.Entry, err error) {
	defer func(start time.Time) { s.observe(opListEntries, start, err) }(s.clock.Now())

	out, err = queryEntries(ctx, s.db, s.q(`SELECT `+entryColumns+` FROM entry WHERE collection_id = ? ORDER BY position`), collectionID)
	if err != nil {
		return nil, classify(opListEntries, err)
	}
	if len(out) > 0 {
		return out, nil
	}

	// An empty result needs telling apart from a missing collection.
	var one int
	err = s.db.QueryRowContext(ctx, s.q(`SELECT 1 FROM collection WHERE id = ?`), collectionID).Scan(&one)
	if err != nil {
		return nil, classify(opListEntries, err)
	}
	return out, nil
}

// GetEntry returns an entry by id.
func (s *SQLStore) GetEntry(ctx context.Context, id string) (e model.Entry, err error) {
	defer func(start time.Time) { s.observe(opGetEntry, start, err) }(s.clock.Now())

	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+entryColumns+` FROM entry WHERE id = ?`), id)
	e, err = scanEntry(row)
	if err != nil {
		return model.Entry{}, classify(opGetEntry, err)
	}
	return e, nil
}

// UpdatePayload merges fields into an entry's payload in one transaction.
func (s *SQLStore) UpdatePayload(ctx context.Context, entryID string, fields model.Payload, now time.Time) (e model.Entry, err error) {
	defer func(start time.Time) { s.observe(opUpdatePayload, start, err) }(s.clock.Now())

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, s.q(`SELECT `+entryColumns+` FROM entry WHERE id = ?`+s.dialect.forUpdate), entryID)
		cur, err := scanEntry(row)
		if err != nil {
			return err
		}

		cur.Payload = cur.Payload.Merge(fields)
		cur.UpdatedAt = now
		raw, err := encodePayload(cur.Payload)
		if err != nil {
			return model.WrapKind(opUpdatePayload, model.ErrInvalidArgument, err)
		}
		if _, err := tx.ExecContext(ctx,
			s.q(`UPDATE entry SET payload = ?, updated_at = ? WHERE id = ?`),
			raw, toNanos(now), entryID); err != nil {
			return err
		}
		e = cur
		return nil
	})
	if err != nil {
		return model.Entry{}, classify(opUpdatePayload, err)
	}
	return e, nil
}

// Mutate runs fn inside a transaction holding the collection's lock.
func (s *SQLStore) Mutate(ctx context.Context, collectionID string, fn func(ctx context.Context, tx ordering.CollectionTx) error) (err error) {
	defer func(start time.Time) { s.observe(opMutate, start, err) }(s.clock.Now())

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`UPDATE collection SET version = version + 1 WHERE id = ?`), collectionID)
		if err != nil {
			return classify(opMutate, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return classify(opMutate, err)
		}
		if n == 0 {
			return model.WrapKind(opMutate, model.ErrNotFound, fmt.Errorf("collection %s", collectionID))
		}
		return fn(ctx, &sqlTx{tx: tx, store: s, collectionID: collectionID})
	})
	return classify(opMutate, err)
}

// inTx runs fn in a transaction, rolling back on any error or panic.
func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback() //nolint:errcheck // re-panicking
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Warn(ctx, "rollback failed", logger.Error(rbErr))
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// InsertLap stores a lap record.
func (s *SQLStore) InsertLap(ctx context.Context, rec model.LapRecord) (err error) {
	defer func(start time.Time) { s.observe(opInsertLap, start, err) }(s.clock.Now())

	_, err = s.db.ExecContext(ctx,
		s.q(`INSERT INTO lap_record (id, driver_id, car_id, track_id, elapsed_ms, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.DriverID, rec.CarID, rec.TrackID, rec.ElapsedMS, toNanos(rec.CreatedAt))
	return classify(opInsertLap, err)
}

// ListLaps returns every lap recorded for scope, oldest first.
func (s *SQLStore) ListLaps(ctx context.Context, scope model.Scope) (out []model.LapRecord, err error) {
	defer func(start time.Time) { s.observe(opListLaps, start, err) }(s.clock.Now())

	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT id, driver_id, car_id, track_id, elapsed_ms, created_at
			FROM lap_record WHERE car_id = ? AND track_id = ? ORDER BY created_at, id`),
		scope.CarID, scope.TrackID)
	if err != nil {
		return nil, classify(opListLaps, err)
	}
	defer rows.Close()

	out = []model.LapRecord{}
	for rows.Next() {
		var (
			r       model.LapRecord
			created int64
		)
		if err := rows.Scan(&r.ID, &r.DriverID, &r.CarID, &r.TrackID, &r.ElapsedMS, &created); err != nil {
			return nil, classify(opListLaps, err)
		}
		r.CreatedAt = fromNanos(created)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(opListLaps, err)
	}
	return out, nil
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return classify(opPing, s.db.PingContext(ctx))
}

// Close closes the underlying pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// sqlTx is the CollectionTx handed to Mutate callbacks.
type sqlTx struct {
	tx           *sql.Tx
	store        *SQLStore
	collectionID string
}

func (t *sqlTx) Entries(ctx context.Context) ([]model.Entry, error) {
	out, err := queryEntries(ctx, t.tx,
		t.store.q(`SELECT `+entryColumns+` FROM entry WHERE collection_id = ? ORDER BY position`+t.store.dialect.forUpdate),
		t.collectionID)
	return out, classify(opListEntries, err)
}

func (t *sqlTx) Insert(ctx context.Context, e model.Entry) error {
	if e.CollectionID != t.collectionID {
		return model.Invalid(opInsertEntry, "entry belongs to another collection")
	}
	raw, err := encodePayload(e.Payload)
	if err != nil {
		return model.WrapKind(opInsertEntry, model.ErrInvalidArgument, err)
	}
	_, err = t.tx.ExecContext(ctx,
		t.store.q(`INSERT INTO entry (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?)`),
		e.ID, e.CollectionID, e.Position, raw, toNanos(e.CreatedAt), toNanos(e.UpdatedAt))
	return classify(opInsertEntry, err)
}

func (t *sqlTx) Delete(ctx context.Context, entryID string) error {
	res, err := t.tx.ExecContext(ctx, t.store.q(`DELETE FROM entry WHERE id = ? AND collection_id = ?`), entryID, t.collectionID)
	if err != nil {
		return classify(opDeleteEntry, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(opDeleteEntry, err)
	}
	if n == 0 {
		return model.WrapKind(opDeleteEntry, model.ErrNotFound, fmt.Errorf("entry %s", entryID))
	}
	return nil
}

// SetPositions moves every listed entry out of the positive range first and
// then writes the targets, so no intermediate state trips the unique
// (collection_id, position) key.
func (t *sqlTx) SetPositions(ctx context.Context, updates []model.PositionUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	args := make([]any, 0, len(updates)+1)
	args = append(args, t.collectionID)
	for _, u := range updates {
		args = append(args, u.EntryID)
	}
	res, err := t.tx.ExecContext(ctx,
		t.store.q(`UPDATE entry SET position = -position WHERE collection_id = ? AND id IN (`+placeholders(len(updates))+`)`),
		args...)
	if err != nil {
		return classify(opSetPositions, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return classify(opSetPositions, err)
	} else if n != int64(len(updates)) {
		return model.WrapKind(opSetPositions, model.ErrConsistencyViolation,
			fmt.Errorf("%d of %d entries found in collection %s", n, len(updates), t.collectionID))
	}

	stmt, err := t.tx.PrepareContext(ctx, t.store.q(`UPDATE entry SET position = ? WHERE collection_id = ? AND id = ?`))
	if err != nil {
		return classify(opSetPositions, err)
	}
	defer stmt.Close()

	for _, u := range updates {
		res, err := stmt.ExecContext(ctx, u.Position, t.collectionID, u.EntryID)
		if err != nil {
			return classify(opSetPositions, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return classify(opSetPositions, err)
		} else if n != 1 {
			return model.WrapKind(opSetPositions, model.ErrConsistencyViolation,
				fmt.Errorf("entry %s not updated", u.EntryID))
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryEntries(ctx context.Context, db querier, query string, args ...any) ([]model.Entry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(row rowScanner) (model.Entry, error) {
	var (
		e                model.Entry
		raw              string
		created, updated int64
	)
	if err := row.Scan(&e.ID, &e.CollectionID, &e.Position, &raw, &created, &updated); err != nil {
		return model.Entry{}, err
	}
	e.Payload = model.Payload{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &e.Payload); err != nil {
			return model.Entry{}, fmt.Errorf("decode payload of %s: %w", e.ID, err)
		}
	}
	e.CreatedAt = fromNanos(created)
	e.UpdatedAt = fromNanos(updated)
	return e, nil
}

func encodePayload(p model.Payload) (string, error) {
	if len(p) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func toNanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }
