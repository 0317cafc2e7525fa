// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"time"
)

// CollectionKind names what a collection orders.
type CollectionKind string

// Known collection kinds.
const (
	KindRunList CollectionKind = "run_list"
	KindRace    CollectionKind = "race"
)

// Valid reports whether k is a known kind.
func (k CollectionKind) Valid() bool {
	return k == KindRunList || k == KindRace
}

// Collection is an ordered container of entries: a run list or a race roster.
type Collection struct {
	ID        string         `json:"id"`
	Kind      CollectionKind `json:"kind"`
	Name      string         `json:"name"`
	OwnerID   string         `json:"owner_id"`
	CreatedAt time.Time      `json:"created_at"`
}

// Payload is the opaque part of an entry: track/car/settings references,
// notes, member ids. Ordering logic never looks inside it.
type Payload map[string]json.RawMessage

// Merge returns a copy of p with fields applied. A field whose value is JSON
// null removes the key.
func (p Payload) Merge(fields Payload) Payload {
	out := make(Payload, len(p)+len(fields))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range fields {
		if isNull(v) {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// Clone returns a deep copy of p.
func (p Payload) Clone() Payload {
	if p == nil {
		return Payload{}
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

func isNull(v json.RawMessage) bool {
	return len(v) == 0 || string(v) == "null"
}

// Entry is one ordered item of a collection. Position is 1-based and, across
// a collection, always forms the dense range 1..N.
type Entry struct {
	ID           string    `json:"id"`
	CollectionID string    `json:"collection_id"`
	Position     int       `json:"position"`
	Payload      Payload   `json:"payload"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PositionUpdate moves one entry to a new position.
type PositionUpdate struct {
	EntryID  string
	Position int
}

// CollectionWithEntries is a collection and its entries ordered by position.
type CollectionWithEntries struct {
	Collection Collection `json:"collection"`
	Entries    []Entry    `json:"entries"`
}
