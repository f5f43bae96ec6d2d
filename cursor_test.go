package spanz

import (
	"context"
	"errors"
	"testing"
)

func TestCursorGenesisIsLazy(t *testing.T) {
	tracer, _ := newTestTracer(t)
	cur := tracer.NewCursor()

	if cur.Genesis() != nil {
		t.Error("Expected no genesis before first use")
	}
	assertEqual(t, tracer.Stats().RecordsCreated, uint64(0))

	g := cur.Current()
	if g == nil {
		t.Fatal("Expected a genesis record")
	}
	if cur.Current() != g {
		t.Error("Expected genesis to be cached")
	}
	assertEqual(t, g.Label(), GenesisLabel)
	assertEqual(t, g.ThreadID(), cur.ID())
	assertEqual(t, g.Parent() == nil, true)
	assertEqual(t, g.Previous() == nil, true)
	assertEqual(t, g.StartTime().IsZero(), true)
	assertEqual(t, tracer.Stats().ActiveCursors, int64(1))

	if err := cur.Close(); err != nil {
		t.Fatalf("Unexpected close error: %v", err)
	}
	assertEqual(t, tracer.Stats().ActiveCursors, int64(0))
}

func TestCursorIDsAreIndependent(t *testing.T) {
	tracer, _ := newTestTracer(t)
	a := tracer.NewCursor()
	b := tracer.NewCursor()
	defer a.Close()
	defer b.Close()

	if a.ID() == b.ID() {
		t.Errorf("Expected distinct thread IDs, both %d", a.ID())
	}
	if a.Current() == b.Current() {
		t.Error("Expected each cursor to have its own genesis")
	}
}

func TestCursorLIFORestore(t *testing.T) {
	tracer, _ := newTestTracer(t)
	cur := tracer.NewCursor()
	defer cur.Close()

	var (
		before  []*Record
		handles []*Handle
	)
	for _, label := range []string{"one", "two", "three", "four"} {
		before = append(before, cur.Current())
		h := cur.Start(label)
		if cur.Current() != h.Record() {
			t.Fatalf("Expected %s to be current", label)
		}
		handles = append(handles, h)
	}
	assertEqual(t, cur.Depth(), 4)

	for i := len(handles) - 1; i >= 0; i-- {
		handles[i].End()
		if cur.Current() != before[i] {
			t.Errorf("After ending %s: expected current %s, got %s",
				handles[i].Record().Label(), before[i].Label(), cur.Current().Label())
		}
	}
	assertEqual(t, cur.Depth(), 0)
}

func TestCursorABCScenario(t *testing.T) {
	tracer, _ := newTestTracer(t)
	cur := tracer.NewCursor()
	defer cur.Close()

	genesis := cur.Current()

	a := cur.StartRoot("A")
	b := cur.Start("B")
	c := cur.Start("C")

	assertEqual(t, a.Record().Level(), -1)
	assertEqual(t, b.Record().Level(), 0)
	assertEqual(t, c.Record().Level(), 1)

	c.End()
	b.End()
	a.End()

	if cur.Current() != genesis {
		t.Errorf("Expected genesis to be current, got %s", cur.Current().Label())
	}
}

func TestCursorCloseWithOpenSpans(t *testing.T) {
	tracer, _ := newTestTracer(t)
	cur := tracer.NewCursor()

	var violations []error
	tracer.OnViolation(func(v Violation) {
		violations = append(violations, v.Err)
	})

	h := cur.Start("dangling")
	err := cur.Close()
	if !errors.Is(err, ErrOpenScopes) {
		t.Fatalf("Expected ErrOpenScopes, got %v", err)
	}
	if cur.Genesis() != nil {
		t.Error("Expected cursor to be reset")
	}

	// The handle still stamps its end time but leaves the closed cursor alone.
	h.End()
	if !h.Record().Ended() {
		t.Error("Expected dangling span to end")
	}
	if len(violations) != 0 {
		t.Errorf("Expected no violations, got %v", violations)
	}
	assertEqual(t, tracer.Stats().LiveRecords, uint64(0))

	// Closing again is a no-op.
	if err := cur.Close(); err != nil {
		t.Errorf("Expected nil on second close, got %v", err)
	}

	// A closed cursor starts over like a new goroutine.
	g := cur.Current()
	assertEqual(t, g.Kind(), KindGenesis)
	_ = cur.Close()
}

func TestCursorContext(t *testing.T) {
	tracer, _ := newTestTracer(t)
	cur := tracer.NewCursor()
	defer cur.Close()

	if CursorFrom(context.Background()) != nil {
		t.Error("Expected no cursor in empty context")
	}
	if RecordFrom(context.Background()) != nil {
		t.Error("Expected no record in empty context")
	}
	//nolint:staticcheck // Nil context handling is part of the contract.
	if CursorFrom(nil) != nil {
		t.Error("Expected no cursor in nil context")
	}

	h := cur.Start("ctx")
	ctx := h.Context(context.Background())

	if CursorFrom(ctx) != cur {
		t.Error("Expected cursor to round trip through context")
	}
	if RecordFrom(ctx) != h.Record() {
		t.Error("Expected current record from context")
	}
	h.End()

	if RecordFrom(ctx) != cur.Genesis() {
		t.Error("Expected context to follow the cursor after End")
	}
}
