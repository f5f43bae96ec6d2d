package spanz

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func collectTree(t *testing.T, build func(tracer *Tracer, cur *Cursor, clock fakeClock)) []*Node {
	t.Helper()
	tracer, clock := newTestTracer(t)
	collector := NewCollector("tree", 100)
	collector.SetSyncMode(true)
	defer collector.Close()
	tracer.AddCollector(collector)

	cur := tracer.NewCursor()
	defer cur.Close()
	build(tracer, cur, clock)
	return BuildTree(collector.Export())
}

func TestBuildTree(t *testing.T) {
	roots := collectTree(t, func(_ *Tracer, cur *Cursor, clock fakeClock) {
		a := cur.StartRoot("A")
		clock.Advance(time.Millisecond)
		b := cur.Start("B")
		clock.Advance(time.Millisecond)
		c := cur.Start("C")
		c.End()
		b.End()
		clock.Advance(time.Millisecond)
		d := cur.Start("D")
		d.End()
		a.End()
	})

	if len(roots) != 1 {
		t.Fatalf("Expected 1 root, got %d", len(roots))
	}
	a := roots[0]
	assertEqual(t, a.Span.Label, "A")
	assertEqual(t, a.Count(), 4)
	if len(a.Children) != 2 {
		t.Fatalf("Expected 2 children of A, got %d", len(a.Children))
	}
	assertEqual(t, a.Children[0].Span.Label, "B")
	assertEqual(t, a.Children[1].Span.Label, "D")
	assertEqual(t, a.Children[0].Children[0].Span.Label, "C")
}

func TestBuildTreeOrphans(t *testing.T) {
	// Spans whose parent is a genesis record are not in the set.
	roots := collectTree(t, func(_ *Tracer, cur *Cursor, clock fakeClock) {
		cur.Start("first").End()
		clock.Advance(time.Millisecond)
		cur.Start("second").End()
	})

	assertEqual(t, len(roots), 2)
	assertEqual(t, roots[0].Span.Label, "first")
	assertEqual(t, roots[1].Span.Label, "second")
}

func TestNodeWalkSkipChildren(t *testing.T) {
	roots := collectTree(t, func(_ *Tracer, cur *Cursor, _ fakeClock) {
		a := cur.StartRoot("A")
		b := cur.Start("B")
		cur.Start("C").End()
		b.End()
		a.End()
	})

	var visited []string
	err := roots[0].Walk(func(n *Node, _ int) error {
		visited = append(visited, n.Span.Label)
		if n.Span.Label == "B" {
			return SkipChildren
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	assertEqual(t, visited, []string{"A", "B"})

	stop := errors.New("stop")
	err = roots[0].Walk(func(*Node, int) error { return stop })
	if !errors.Is(err, stop) {
		t.Errorf("Expected walk error to propagate, got %v", err)
	}
}

func TestRender(t *testing.T) {
	roots := collectTree(t, func(tracer *Tracer, cur *Cursor, clock fakeClock) {
		a := cur.StartRoot("A")
		other := tracer.NewCursor()
		anon := other.Continue(a)
		clock.Advance(2 * time.Millisecond)
		anon.End()
		a.End()
		_ = other.Close()
	})

	var buf bytes.Buffer
	if err := Render(&buf, roots); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[0], "A [thread=") || !strings.Contains(lines[0], "level=-1 2ms parent=none]") {
		t.Errorf("Unexpected root line %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "  (anonymous) [thread=") || !strings.Contains(lines[1], "level=0 2ms parent=open]") {
		t.Errorf("Unexpected child line %q", lines[1])
	}
}
