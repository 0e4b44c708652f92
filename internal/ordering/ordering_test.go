package ordering

import (
	"math/rand"
	"testing"
)

func items(container string, ids ...string) []Item {
	out := make([]Item, 0, len(ids))
	for i, id := range ids {
		out = append(out, Item{ID: id, Container: container, Position: i})
	}
	return out
}

func applyUpdates(containers map[string][]Item, updates []Update) map[string][]Item {
	flat := make(map[string]Item)
	for _, list := range containers {
		for _, item := range list {
			flat[item.ID] = item
		}
	}
	for _, update := range updates {
		item := flat[update.ID]
		item.Container = update.Container
		item.Position = update.Position
		flat[item.ID] = item
	}
	// Keep every original container key: a cross-container move may empty a
	// container, and it must stay addressable for later moves.
	next := make(map[string][]Item, len(containers))
	for container := range containers {
		next[container] = []Item{}
	}
	for _, item := range flat {
		next[item.Container] = append(next[item.Container], item)
	}
	for container, list := range next {
		sorted := make([]Item, len(list))
		for _, item := range list {
			sorted[item.Position] = item
		}
		next[container] = sorted
	}
	return next
}

func assertDense(t *testing.T, list []Item, container string) {
	t.Helper()
	seen := make(map[int]bool)
	for _, item := range list {
		if item.Container != container {
			t.Fatalf("item %s has container %s, want %s", item.ID, item.Container, container)
		}
		if item.Position < 0 || item.Position >= len(list) {
			t.Fatalf("item %s position %d out of [0,%d)", item.ID, item.Position, len(list))
		}
		if seen[item.Position] {
			t.Fatalf("duplicate position %d in container %s", item.Position, container)
		}
		seen[item.Position] = true
	}
}

func TestNextPosition(t *testing.T) {
	if got := NextPosition(nil); got != 0 {
		t.Fatalf("empty container: got %d, want 0", got)
	}
	if got := NextPosition([]int{0}); got != 1 {
		t.Fatalf("single card: got %d, want 1", got)
	}
	if got := NextPosition([]int{0, 1, 2}); got != 3 {
		t.Fatalf("got %d, want 3", got)
	}
	// Gaps and unordered input still append after the max.
	if got := NextPosition([]int{5, 0, 2}); got != 6 {
		t.Fatalf("got %d, want 6", got)
	}
	// Values mapped to 0 for absent positions never win over real ones.
	if got := NextPosition([]int{0, 0, 4}); got != 5 {
		t.Fatalf("got %d, want 5", got)
	}
}

func TestReorderNoOp(t *testing.T) {
	containers := map[string][]Item{"L1": items("L1", "A", "B", "C")}
	updates, err := Reorder(containers, Move{ItemID: "A", FromContainer: "L1", FromIndex: 0, ToContainer: "L1", ToIndex: 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(updates) != 0 {
		t.Fatalf("no-op move produced %d updates", len(updates))
	}
}

func TestReorderNoOpBeatsValidation(t *testing.T) {
	// Identical source and destination short-circuits before the container
	// is even looked up.
	updates, err := Reorder(nil, Move{ItemID: "A", FromContainer: "missing", FromIndex: 3, ToContainer: "missing", ToIndex: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(updates) != 0 {
		t.Fatalf("expected empty update set, got %d", len(updates))
	}
}

func TestReorderSameContainer(t *testing.T) {
	// L1 = [0:A, 1:B, 2:C]; moving A from 0 to 2 yields [0:B, 1:C, 2:A].
	containers := map[string][]Item{"L1": items("L1", "A", "B", "C")}
	updates, err := Reorder(containers, Move{ItemID: "A", FromContainer: "L1", FromIndex: 0, ToContainer: "L1", ToIndex: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	next := applyUpdates(containers, updates)
	want := []string{"B", "C", "A"}
	for i, id := range want {
		if next["L1"][i].ID != id {
			t.Fatalf("position %d: got %s, want %s", i, next["L1"][i].ID, id)
		}
	}
	assertDense(t, next["L1"], "L1")

	// Every shifted item is in the update set, nothing else.
	if len(updates) != 3 {
		t.Fatalf("got %d updates, want 3", len(updates))
	}
}

func TestReorderSameContainerUp(t *testing.T) {
	containers := map[string][]Item{"L1": items("L1", "A", "B", "C", "D")}
	updates, err := Reorder(containers, Move{ItemID: "D", FromContainer: "L1", FromIndex: 3, ToContainer: "L1", ToIndex: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	next := applyUpdates(containers, updates)
	want := []string{"A", "D", "B", "C"}
	for i, id := range want {
		if next["L1"][i].ID != id {
			t.Fatalf("position %d: got %s, want %s", i, next["L1"][i].ID, id)
		}
	}
	// A stays at 0 and must not be rewritten.
	for _, update := range updates {
		if update.ID == "A" {
			t.Fatalf("unchanged item A appeared in update set")
		}
	}
}

func TestReorderCrossContainer(t *testing.T) {
	// L1=[0:A,1:B], L2=[0:C]; moving A to L2 index 0 yields L1=[0:B],
	// L2=[0:A,1:C] with A owned by L2.
	containers := map[string][]Item{
		"L1": items("L1", "A", "B"),
		"L2": items("L2", "C"),
	}
	updates, err := Reorder(containers, Move{ItemID: "A", FromContainer: "L1", FromIndex: 0, ToContainer: "L2", ToIndex: 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	next := applyUpdates(containers, updates)
	if len(next["L1"]) != 1 || next["L1"][0].ID != "B" {
		t.Fatalf("source container wrong: %+v", next["L1"])
	}
	if len(next["L2"]) != 2 || next["L2"][0].ID != "A" || next["L2"][1].ID != "C" {
		t.Fatalf("destination container wrong: %+v", next["L2"])
	}
	assertDense(t, next["L1"], "L1")
	assertDense(t, next["L2"], "L2")

	var movedUpdate *Update
	for i := range updates {
		if updates[i].ID == "A" {
			movedUpdate = &updates[i]
		}
	}
	if movedUpdate == nil || movedUpdate.Container != "L2" {
		t.Fatalf("moved item did not change container: %+v", updates)
	}
}

func TestReorderCrossContainerAppendsAtEnd(t *testing.T) {
	containers := map[string][]Item{
		"L1": items("L1", "A"),
		"L2": items("L2", "B", "C"),
	}
	// ToIndex == len(dest) appends.
	updates, err := Reorder(containers, Move{ItemID: "A", FromContainer: "L1", FromIndex: 0, ToContainer: "L2", ToIndex: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	next := applyUpdates(containers, updates)
	if len(next["L2"]) != 3 || next["L2"][2].ID != "A" {
		t.Fatalf("expected A appended to L2: %+v", next["L2"])
	}
}

func TestReorderValidation(t *testing.T) {
	containers := map[string][]Item{"L1": items("L1", "A", "B")}

	if _, err := Reorder(containers, Move{FromContainer: "nope", FromIndex: 0, ToContainer: "L1", ToIndex: 1}); err != ErrUnknownContainer {
		t.Fatalf("got %v, want ErrUnknownContainer", err)
	}
	if _, err := Reorder(containers, Move{FromContainer: "L1", FromIndex: 5, ToContainer: "L1", ToIndex: 0}); err != ErrIndexOutOfRange {
		t.Fatalf("got %v, want ErrIndexOutOfRange", err)
	}
	if _, err := Reorder(containers, Move{FromContainer: "L1", FromIndex: 0, ToContainer: "nope", ToIndex: 0}); err != ErrUnknownContainer {
		t.Fatalf("got %v, want ErrUnknownContainer", err)
	}
	if _, err := Reorder(containers, Move{ItemID: "B", FromContainer: "L1", FromIndex: 0, ToContainer: "L1", ToIndex: 1}); err != ErrStaleMove {
		t.Fatalf("got %v, want ErrStaleMove", err)
	}
}

func TestReorderStaleIndexBeyondContainer(t *testing.T) {
	// A named item whose claimed index the container has shrunk past is a
	// stale client view, not a malformed request.
	containers := map[string][]Item{"L1": items("L1", "A")}
	if _, err := Reorder(containers, Move{ItemID: "A", FromContainer: "L1", FromIndex: 3, ToContainer: "L1", ToIndex: 0}); err != ErrStaleMove {
		t.Fatalf("got %v, want ErrStaleMove", err)
	}
	// Without an item identity there is nothing to be stale against.
	if _, err := Reorder(containers, Move{FromContainer: "L1", FromIndex: 3, ToContainer: "L1", ToIndex: 0}); err != ErrIndexOutOfRange {
		t.Fatalf("got %v, want ErrIndexOutOfRange", err)
	}
}

func TestReorderIntoEmptiedContainer(t *testing.T) {
	// Draining a container and then moving an item back into it must work:
	// an emptied container is still a container.
	containers := map[string][]Item{
		"L1": items("L1", "A"),
		"L2": items("L2", "B"),
	}
	updates, err := Reorder(containers, Move{ItemID: "A", FromContainer: "L1", FromIndex: 0, ToContainer: "L2", ToIndex: 0})
	if err != nil {
		t.Fatalf("drain move: %v", err)
	}
	containers = applyUpdates(containers, updates)
	if got, ok := containers["L1"]; !ok || len(got) != 0 {
		t.Fatalf("emptied container missing or non-empty: %v, present=%v", got, ok)
	}

	updates, err = Reorder(containers, Move{ItemID: "B", FromContainer: "L2", FromIndex: 1, ToContainer: "L1", ToIndex: 0})
	if err != nil {
		t.Fatalf("refill move: %v", err)
	}
	containers = applyUpdates(containers, updates)
	if len(containers["L1"]) != 1 || containers["L1"][0].ID != "B" {
		t.Fatalf("refill failed: %+v", containers["L1"])
	}
	assertDense(t, containers["L1"], "L1")
	assertDense(t, containers["L2"], "L2")
}

func TestReorderInputNotMutated(t *testing.T) {
	containers := map[string][]Item{"L1": items("L1", "A", "B", "C")}
	_, err := Reorder(containers, Move{ItemID: "A", FromContainer: "L1", FromIndex: 0, ToContainer: "L1", ToIndex: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, id := range []string{"A", "B", "C"} {
		if containers["L1"][i].ID != id || containers["L1"][i].Position != i {
			t.Fatalf("input mutated: %+v", containers["L1"])
		}
	}
}

// Random sequences of moves must keep every container dense and gap-free and
// must never create or lose an item.
func TestReorderSequenceStaysDense(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	containers := map[string][]Item{
		"L1": items("L1", "a1", "a2", "a3", "a4"),
		"L2": items("L2", "b1", "b2"),
		"L3": items("L3", "c1", "c2", "c3"),
	}
	names := []string{"L1", "L2", "L3"}
	total := 9

	for step := 0; step < 200; step++ {
		from := names[rng.Intn(len(names))]
		if len(containers[from]) == 0 {
			continue
		}
		to := names[rng.Intn(len(names))]
		fromIndex := rng.Intn(len(containers[from]))
		limit := len(containers[to])
		if to == from {
			limit = len(containers[to]) - 1
		}
		toIndex := 0
		if limit > 0 {
			toIndex = rng.Intn(limit + 1)
		}

		move := Move{
			ItemID:        containers[from][fromIndex].ID,
			FromContainer: from,
			FromIndex:     fromIndex,
			ToContainer:   to,
			ToIndex:       toIndex,
		}
		updates, err := Reorder(containers, move)
		if err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
		containers = applyUpdates(containers, updates)

		count := 0
		for _, name := range names {
			assertDense(t, containers[name], name)
			count += len(containers[name])
		}
		if count != total {
			t.Fatalf("step %d: item count drifted to %d", step, count)
		}
	}
}
