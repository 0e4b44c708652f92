// Package activity defines the card activity vocabulary and the display-time
// reconciliation of legacy entries. Records themselves are append-only rows;
// nothing in this package mutates or persists them.
package activity

import (
	"fmt"
	"time"
)

// ActionType is the closed set of semantic card events. Two generations
// coexist in stored data: the structured set written today and a legacy set
// from an earlier logging scheme that carried little or no detail.
type ActionType string

const (
	ActionCardCreated      ActionType = "card_created"
	ActionCardMoved        ActionType = "card_moved"
	ActionMarkedComplete   ActionType = "marked_complete"
	ActionMarkedIncomplete ActionType = "marked_incomplete"

	// Legacy scheme
	ActionLegacyCreated ActionType = "created"
	ActionLegacyMoved   ActionType = "moved"

	ActionUnknown ActionType = "unknown"
)

// PlaceholderDetails is the literal filler the legacy scheme stored when it
// had nothing to say.
const PlaceholderDetails = "No additional details were provided."

// Normalize maps a stored action_type string onto the enum, folding anything
// unrecognized into ActionUnknown so callers can switch exhaustively.
func Normalize(value string) ActionType {
	switch ActionType(value) {
	case ActionCardCreated, ActionCardMoved, ActionMarkedComplete, ActionMarkedIncomplete,
		ActionLegacyCreated, ActionLegacyMoved:
		return ActionType(value)
	default:
		return ActionUnknown
	}
}

// IsLegacy reports whether the action type belongs to the old scheme.
func (a ActionType) IsLegacy() bool {
	return a == ActionLegacyCreated || a == ActionLegacyMoved
}

// structuredFor returns the structured action type that supersedes a legacy
// one, or ActionUnknown when there is no pairing.
func structuredFor(legacy ActionType) ActionType {
	switch legacy {
	case ActionLegacyCreated:
		return ActionCardCreated
	case ActionLegacyMoved:
		return ActionCardMoved
	default:
		return ActionUnknown
	}
}

// Record is one immutable entry in a card's history.
type Record struct {
	ID         string
	CardID     string
	ActionType ActionType
	// Description is the short human-readable headline; Details carries the
	// full sentence with list titles and 1-based positions.
	Description string
	Details     string
	CreatedBy   string
	CreatedAt   time.Time
}

// Entry builders. Positions and indices arrive zero-based and are rendered
// 1-based, matching how users count cards.

func Created(cardTitle, listTitle string, position int) (description, details string) {
	description = fmt.Sprintf("Card created in list %q", listTitle)
	details = fmt.Sprintf("Card %q was created in list %q at position %d.", cardTitle, listTitle, position+1)
	return description, details
}

func MovedWithin(listTitle string, fromIndex, toIndex int) (description, details string) {
	description = fmt.Sprintf("Card moved within list %q", listTitle)
	details = fmt.Sprintf("Card was moved from position %d to position %d in list %q.", fromIndex+1, toIndex+1, listTitle)
	return description, details
}

func MovedAcross(sourceTitle, destTitle string, fromIndex, toIndex int) (description, details string) {
	description = fmt.Sprintf("Card moved from list %q to list %q", sourceTitle, destTitle)
	details = fmt.Sprintf("Card was moved from position %d in list %q to position %d in list %q.", fromIndex+1, sourceTitle, toIndex+1, destTitle)
	return description, details
}

func CompletionToggled(complete bool) (actionType ActionType, description, details string) {
	if complete {
		return ActionMarkedComplete, "Card marked as complete", "Card was completed by user."
	}
	return ActionMarkedIncomplete, "Card marked as incomplete", "Card was marked as incomplete by user."
}

// Reconcile collapses legacy records that duplicate a newer structured record
// for the same event. A legacy record with empty or placeholder details is
// dropped when any other record of the paired structured type exists for the
// same card within the window; everything else passes through in input order.
//
// No foreign key links the two schemes, so temporal proximity of the two
// writes is the only correlation signal. The result is for display only and
// is stable under repeated application: structured records are never removed,
// so a second pass finds the same matches.
func Reconcile(records []Record, window time.Duration) []Record {
	if window <= 0 {
		window = 2 * time.Second
	}
	out := make([]Record, 0, len(records))
	for _, record := range records {
		if superseded(record, records, window) {
			continue
		}
		out = append(out, record)
	}
	return out
}

func superseded(record Record, records []Record, window time.Duration) bool {
	if !record.ActionType.IsLegacy() {
		return false
	}
	if record.Details != "" && record.Details != PlaceholderDetails {
		return false
	}
	want := structuredFor(record.ActionType)
	for _, other := range records {
		if other.ID == record.ID {
			continue
		}
		if other.ActionType != want || other.CardID != record.CardID {
			continue
		}
		delta := record.CreatedAt.Sub(other.CreatedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta < window {
			return true
		}
	}
	return false
}
