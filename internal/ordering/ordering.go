// Package ordering maintains dense, zero-based positions for the children of
// a container (cards in a list, lists on a board). Positions are recomputed
// in full on every structural change rather than gap-allocated, which keeps
// collisions impossible at the cost of extra writes per reorder. Containers
// are small, so the trade is cheap.
package ordering

import "errors"

var (
	ErrUnknownContainer = errors.New("ordering: unknown container")
	ErrIndexOutOfRange  = errors.New("ordering: index out of range")
	ErrStaleMove        = errors.New("ordering: item not at source index")
)

// Item is one positioned child of a container.
type Item struct {
	ID        string
	Container string
	Position  int
}

// Move describes a completed drag-drop outcome in index space.
type Move struct {
	ItemID        string
	FromContainer string
	FromIndex     int
	ToContainer   string
	ToIndex       int
}

// Update is a single persisted consequence of a move: the item identified by
// ID now lives in Container at Position.
type Update struct {
	ID        string
	Container string
	Position  int
}

// NextPosition returns the append position for a container given its current
// position values: one past the max, or 0 when empty. Callers are expected to
// have already mapped absent values to 0.
func NextPosition(existing []int) int {
	if len(existing) == 0 {
		return 0
	}
	maxPos := 0
	for _, pos := range existing {
		if pos > maxPos {
			maxPos = pos
		}
	}
	return maxPos + 1
}

// Reorder applies a move to the given containers and returns the updates that
// must be persisted: exactly the items whose position or container changed.
// Each container's slice must be in display order (position ascending). The
// input is not mutated.
//
// A move where source and destination coincide returns an empty update set
// before anything else is checked, so callers can skip persistence and
// activity recording entirely.
func Reorder(containers map[string][]Item, move Move) ([]Update, error) {
	if move.FromContainer == move.ToContainer && move.FromIndex == move.ToIndex {
		return nil, nil
	}

	source, ok := containers[move.FromContainer]
	if !ok {
		return nil, ErrUnknownContainer
	}
	// A named item that is not at FromIndex means the client acted on an old
	// view of the container; that includes an index the container has since
	// shrunk past.
	if move.FromIndex < 0 || move.FromIndex >= len(source) {
		if move.ItemID != "" {
			return nil, ErrStaleMove
		}
		return nil, ErrIndexOutOfRange
	}
	if move.ItemID != "" && source[move.FromIndex].ID != move.ItemID {
		return nil, ErrStaleMove
	}

	if move.FromContainer == move.ToContainer {
		if move.ToIndex < 0 || move.ToIndex >= len(source) {
			return nil, ErrIndexOutOfRange
		}
		reordered := splice(source, move.FromIndex, move.ToIndex)
		return repack(nil, reordered, move.FromContainer), nil
	}

	dest, ok := containers[move.ToContainer]
	if !ok {
		return nil, ErrUnknownContainer
	}
	if move.ToIndex < 0 || move.ToIndex > len(dest) {
		return nil, ErrIndexOutOfRange
	}

	moved := source[move.FromIndex]
	remainder := make([]Item, 0, len(source)-1)
	remainder = append(remainder, source[:move.FromIndex]...)
	remainder = append(remainder, source[move.FromIndex+1:]...)

	inserted := make([]Item, 0, len(dest)+1)
	inserted = append(inserted, dest[:move.ToIndex]...)
	inserted = append(inserted, moved)
	inserted = append(inserted, dest[move.ToIndex:]...)

	updates := repack(nil, remainder, move.FromContainer)
	updates = repack(updates, inserted, move.ToContainer)
	return updates, nil
}

// splice removes the item at from and reinserts it at to, returning a new
// slice in the resulting order.
func splice(items []Item, from, to int) []Item {
	out := make([]Item, 0, len(items))
	out = append(out, items[:from]...)
	out = append(out, items[from+1:]...)
	tail := make([]Item, len(out[to:]))
	copy(tail, out[to:])
	out = append(out[:to], items[from])
	return append(out, tail...)
}

// repack assigns dense positions 0..n-1 across items in slice order and
// appends an update for every item whose position or container differs from
// its current state.
func repack(updates []Update, items []Item, container string) []Update {
	for index, item := range items {
		if item.Position == index && item.Container == container {
			continue
		}
		updates = append(updates, Update{ID: item.ID, Container: container, Position: index})
	}
	return updates
}
