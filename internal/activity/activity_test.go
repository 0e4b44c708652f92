package activity

import (
	"testing"
	"time"
)

var base = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func record(id string, action ActionType, details string, at time.Time) Record {
	return Record{
		ID:         id,
		CardID:     "card_1",
		ActionType: action,
		Details:    details,
		CreatedAt:  at,
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]ActionType{
		"card_created":      ActionCardCreated,
		"card_moved":        ActionCardMoved,
		"marked_complete":   ActionMarkedComplete,
		"marked_incomplete": ActionMarkedIncomplete,
		"created":           ActionLegacyCreated,
		"moved":             ActionLegacyMoved,
		"":                  ActionUnknown,
		"card_deleted":      ActionUnknown,
	}
	for input, want := range cases {
		if got := Normalize(input); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestDescriptions(t *testing.T) {
	desc, details := Created("Ship it", "Doing", 0)
	if desc != `Card created in list "Doing"` {
		t.Errorf("create description: %q", desc)
	}
	if details != `Card "Ship it" was created in list "Doing" at position 1.` {
		t.Errorf("create details: %q", details)
	}

	desc, details = MovedWithin("Doing", 0, 2)
	if desc != `Card moved within list "Doing"` {
		t.Errorf("same-list description: %q", desc)
	}
	if details != `Card was moved from position 1 to position 3 in list "Doing".` {
		t.Errorf("same-list details: %q", details)
	}

	desc, details = MovedAcross("Doing", "Done", 1, 0)
	if desc != `Card moved from list "Doing" to list "Done"` {
		t.Errorf("cross-list description: %q", desc)
	}
	if details != `Card was moved from position 2 in list "Doing" to position 1 in list "Done".` {
		t.Errorf("cross-list details: %q", details)
	}

	action, desc, _ := CompletionToggled(true)
	if action != ActionMarkedComplete || desc != "Card marked as complete" {
		t.Errorf("complete toggle: %q %q", action, desc)
	}
	action, desc, _ = CompletionToggled(false)
	if action != ActionMarkedIncomplete || desc != "Card marked as incomplete" {
		t.Errorf("incomplete toggle: %q %q", action, desc)
	}
}

func TestReconcileDropsSupersededLegacyRecord(t *testing.T) {
	// Legacy "created" with the placeholder, structured record 500ms later.
	records := []Record{
		record("a1", ActionLegacyCreated, PlaceholderDetails, base),
		record("a2", ActionCardCreated, `Card "X" was created in list "Todo" at position 1.`, base.Add(500*time.Millisecond)),
	}
	out := Reconcile(records, 2*time.Second)
	if len(out) != 1 || out[0].ID != "a2" {
		t.Fatalf("expected only the structured record, got %+v", out)
	}
}

func TestReconcileKeepsLegacyOutsideWindow(t *testing.T) {
	records := []Record{
		record("a1", ActionLegacyCreated, "", base),
		record("a2", ActionCardCreated, "details", base.Add(3*time.Second)),
	}
	out := Reconcile(records, 2*time.Second)
	if len(out) != 2 {
		t.Fatalf("expected both records kept, got %+v", out)
	}
}

func TestReconcileTypePairing(t *testing.T) {
	// A legacy "moved" is not superseded by card_created, only by card_moved.
	records := []Record{
		record("a1", ActionLegacyMoved, "", base),
		record("a2", ActionCardCreated, "details", base.Add(100*time.Millisecond)),
	}
	out := Reconcile(records, 2*time.Second)
	if len(out) != 2 {
		t.Fatalf("mismatched types must not suppress, got %+v", out)
	}

	records = append(records, record("a3", ActionCardMoved, "details", base.Add(200*time.Millisecond)))
	out = Reconcile(records, 2*time.Second)
	if len(out) != 2 || out[0].ID != "a2" || out[1].ID != "a3" {
		t.Fatalf("expected legacy moved dropped, got %+v", out)
	}
}

func TestReconcileKeepsLegacyWithRealDetails(t *testing.T) {
	// A legacy record that actually says something is never suppressed.
	records := []Record{
		record("a1", ActionLegacyMoved, "moved to the top by the on-call", base),
		record("a2", ActionCardMoved, "details", base.Add(100*time.Millisecond)),
	}
	out := Reconcile(records, 2*time.Second)
	if len(out) != 2 {
		t.Fatalf("legacy record with details was dropped: %+v", out)
	}
}

func TestReconcilePassesThroughOtherTypes(t *testing.T) {
	records := []Record{
		record("a1", ActionMarkedComplete, "", base),
		record("a2", ActionUnknown, "", base),
		record("a3", ActionMarkedIncomplete, PlaceholderDetails, base),
	}
	out := Reconcile(records, 2*time.Second)
	if len(out) != 3 {
		t.Fatalf("non-legacy records must pass through, got %+v", out)
	}
}

func TestReconcileDifferentCards(t *testing.T) {
	other := record("b1", ActionCardCreated, "details", base.Add(100*time.Millisecond))
	other.CardID = "card_2"
	records := []Record{
		record("a1", ActionLegacyCreated, "", base),
		other,
	}
	out := Reconcile(records, 2*time.Second)
	if len(out) != 2 {
		t.Fatalf("records for another card must not suppress, got %+v", out)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	records := []Record{
		record("a1", ActionLegacyCreated, PlaceholderDetails, base),
		record("a2", ActionCardCreated, "details", base.Add(500*time.Millisecond)),
		record("a3", ActionLegacyMoved, "", base.Add(10*time.Second)),
		record("a4", ActionCardMoved, "details", base.Add(10500*time.Millisecond)),
		record("a5", ActionMarkedComplete, "details", base.Add(20*time.Second)),
	}
	once := Reconcile(records, 2*time.Second)
	twice := Reconcile(once, 2*time.Second)
	if len(once) != len(twice) {
		t.Fatalf("reconcile not idempotent: %d then %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].ID != twice[i].ID {
			t.Fatalf("reconcile reordered records on second pass")
		}
	}
}

func TestReconcilePreservesOrder(t *testing.T) {
	records := []Record{
		record("a5", ActionMarkedComplete, "x", base.Add(4*time.Second)),
		record("a4", ActionCardMoved, "x", base.Add(3*time.Second)),
		record("a2", ActionCardCreated, "x", base.Add(1*time.Second)),
		record("a1", ActionLegacyCreated, "", base.Add(900*time.Millisecond)),
	}
	out := Reconcile(records, 2*time.Second)
	want := []string{"a5", "a4", "a2"}
	if len(out) != len(want) {
		t.Fatalf("got %d records, want %d", len(out), len(want))
	}
	for i, id := range want {
		if out[i].ID != id {
			t.Fatalf("order changed: got %s at %d, want %s", out[i].ID, i, id)
		}
	}
}
