package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Dialects understood by SQLStore. They double as database/sql driver names.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// schema is portable between postgres and sqlite. Positions go negative for
// an instant inside SetPositions, so they carry no sign check.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS collection (
		id         TEXT PRIMARY KEY,
		kind       TEXT NOT NULL CHECK (kind IN ('run_list', 'race')),
		name       TEXT NOT NULL DEFAULT '',
		owner_id   TEXT NOT NULL DEFAULT '',
		version    BIGINT NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS entry (
		id            TEXT PRIMARY KEY,
		collection_id TEXT NOT NULL REFERENCES collection(id) ON DELETE CASCADE,
		position      INTEGER NOT NULL,
		payload       TEXT NOT NULL DEFAULT '{}',
		created_at    BIGINT NOT NULL,
		updated_at    BIGINT NOT NULL,
		UNIQUE (collection_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS lap_record (
		id         TEXT PRIMARY KEY,
		driver_id  TEXT NOT NULL,
		car_id     TEXT NOT NULL,
		track_id   TEXT NOT NULL,
		elapsed_ms BIGINT NOT NULL CHECK (elapsed_ms > 0),
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_lap_record_scope ON lap_record (car_id, track_id)`,
}

// dialect captures the few places postgres and sqlite differ.
type dialect struct {
	name string
	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool
	// suffix appended to locking reads
	forUpdate string
}

func dialectFor(name string) (dialect, error) {
	switch name {
	case DialectPostgres:
		return dialect{name: name, numbered: true, forUpdate: " FOR UPDATE"}, nil
	case DialectSQLite:
		// Transactions start IMMEDIATE via the DSN, which already holds the
		// database write lock.
		return dialect{name: name}, nil
	default:
		return dialect{}, fmt.Errorf("%w: %q", ErrUnknownDialect, name)
	}
}

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// migrateSchema creates every table and index that does not exist yet.
func (s *SQLStore) migrateSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}
