package ordering

import (
	"fmt"

	"github.com/okian/pitwall/internal/domain/model"
)

// Messages carried by ErrInvalidArgument failures of a reorder.
const (
	msgEmptyOrdering = "empty ordering"
	msgDuplicateID   = "duplicate entry id"
	msgForeignEntry  = "entry does not belong to this collection"
	msgTooManyIDs    = "ordering exceeds maximum length"
	msgBlankID       = "blank entry id"
)

// CheckDense verifies that entries, sorted by position, carry exactly the
// positions 1..len(entries). It never repairs anything.
func CheckDense(entries []model.Entry) error {
	for i, e := range entries {
		if e.Position != i+1 {
			return fmt.Errorf("%w: entry %s at position %d, expected %d of %d",
				model.ErrConsistencyViolation, e.ID, e.Position, i+1, len(entries))
		}
	}
	return nil
}

// NextPosition returns the position a newly appended entry takes.
func NextPosition(entries []model.Entry) int {
	top := 0
	for _, e := range entries {
		if e.Position > top {
			top = e.Position
		}
	}
	return top + 1
}

// ValidateOrdering checks the parts of a reorder request that do not need
// the collection's current state: non-empty, bounded, no blanks, no repeats.
// maxLen <= 0 disables the length bound.
func ValidateOrdering(op string, ids []string, maxLen int) error {
	if len(ids) == 0 {
		return model.Invalid(op, msgEmptyOrdering)
	}
	if maxLen > 0 && len(ids) > maxLen {
		return model.Invalid(op, fmt.Sprintf("%s (%d > %d)", msgTooManyIDs, len(ids), maxLen))
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			return model.Invalid(op, msgBlankID)
		}
		if _, dup := seen[id]; dup {
			return model.Invalid(op, fmt.Sprintf("%s: %s", msgDuplicateID, id))
		}
		seen[id] = struct{}{}
	}
	return nil
}

// PlanReorder computes the position writes that bring current (sorted by
// position) into the order given by ids. Ids take positions 1..len(ids) in
// input order; entries not mentioned follow in their existing relative order.
// Only entries whose position actually changes are returned, so applying the
// same ordering twice yields no writes the second time.
func PlanReorder(op string, current []model.Entry, ids []string) ([]model.PositionUpdate, error) {
	if err := ValidateOrdering(op, ids, 0); err != nil {
		return nil, err
	}

	index := make(map[string]int, len(current))
	for i, e := range current {
		index[e.ID] = i
	}

	target := make([]int, len(current))
	mentioned := make([]bool, len(current))
	for i, id := range ids {
		at, ok := index[id]
		if !ok {
			return nil, model.Invalid(op, fmt.Sprintf("%s: %s", msgForeignEntry, id))
		}
		mentioned[at] = true
		target[at] = i + 1
	}

	next := len(ids) + 1
	for i := range current {
		if !mentioned[i] {
			target[i] = next
			next++
		}
	}

	var updates []model.PositionUpdate
	for i, e := range current {
		if e.Position != target[i] {
			updates = append(updates, model.PositionUpdate{EntryID: e.ID, Position: target[i]})
		}
	}
	return updates, nil
}

// PlanRemoval finds entryID in current (sorted by position) and returns it
// together with the writes that close the gap it leaves: every later entry
// moves up by one.
func PlanRemoval(op string, current []model.Entry, entryID string) (model.Entry, []model.PositionUpdate, error) {
	at := -1
	for i, e := range current {
		if e.ID == entryID {
			at = i
			break
		}
	}
	if at < 0 {
		return model.Entry{}, nil, model.WrapKind(op, model.ErrNotFound, fmt.Errorf("entry %s", entryID))
	}

	removed := current[at]
	updates := make([]model.PositionUpdate, 0, len(current)-at-1)
	for _, e := range current[at+1:] {
		updates = append(updates, model.PositionUpdate{EntryID: e.ID, Position: e.Position - 1})
	}
	return removed, updates, nil
}
