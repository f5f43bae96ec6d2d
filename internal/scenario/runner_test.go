package scenario

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zoobzio/spanz"
)

func runCollected(t *testing.T, ctx context.Context, sc *Scenario) ([]spanz.Span, spanz.Stats, error) {
	t.Helper()
	tracer := spanz.New()
	defer tracer.Close()

	collector := spanz.NewCollector("scenario", 100)
	collector.SetSyncMode(true)
	defer collector.Close()
	tracer.AddCollector(collector)

	r := &Runner{Tracer: tracer}
	err := r.Run(ctx, sc)
	tracer.Wait()
	return collector.Export(), tracer.Stats(), err
}

func byLabel(spans []spanz.Span) map[string]spanz.Span {
	m := make(map[string]spanz.Span, len(spans))
	for _, s := range spans {
		m[s.Label] = s
	}
	return m
}

func TestRunDefaultScenario(t *testing.T) {
	spans, stats, err := runCollected(t, context.Background(), Default())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(spans) != 6 {
		t.Fatalf("Expected 6 spans, got %d", len(spans))
	}
	if stats.LiveRecords != 0 || stats.OpenSpans != 0 || stats.Violations != 0 {
		t.Errorf("Expected a clean run, got %+v", stats)
	}

	s := byLabel(spans)
	parents := map[string]string{
		"parentContext":         "grandParent",
		"childContext":          "parentContext",
		"childContext2":         "childContext",
		"detachedChildContext3": "childContext",
		"detachedChildContext4": "childContext",
	}
	for child, parent := range parents {
		if s[child].ParentID != s[parent].ID {
			t.Errorf("Expected %s to parent on %s", child, parent)
		}
	}

	if s["childContext"].ThreadID == s["parentContext"].ThreadID {
		t.Error("Expected spawned step on its own thread")
	}
	if s["childContext"].ParentThreadID != s["parentContext"].ThreadID {
		t.Error("Expected parent thread to follow the parent span")
	}
	if s["grandParent"].Level != 0 || s["detachedChildContext4"].Level != 3 {
		t.Errorf("Unexpected levels %d and %d", s["grandParent"].Level, s["detachedChildContext4"].Level)
	}

	// The 200ms hold outlives childContext, which only joins childContext2.
	if s["detachedChildContext4"].ParentState != spanz.ParentClosed {
		t.Errorf("Expected detached span to see its parent closed, got %s", s["detachedChildContext4"].ParentState)
	}
	if !s["detachedChildContext4"].EndTime.After(s["grandParent"].EndTime) {
		t.Error("Expected detached span to end after the grandparent")
	}
}

func TestRunRootStep(t *testing.T) {
	sc, err := Parse([]byte(`
[[span]]
label = "outer"

  [[span.span]]
  label = "fresh"
  root = true

    [[span.span.span]]
    label = "leaf"
`))
	if err != nil {
		t.Fatal(err)
	}

	spans, _, err := runCollected(t, context.Background(), sc)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	s := byLabel(spans)
	if s["fresh"].ParentID != "" || s["fresh"].Kind != spanz.KindRoot {
		t.Errorf("Expected fresh to be a root, got %+v", s["fresh"])
	}
	if s["fresh"].PreviousID != s["outer"].ID {
		t.Error("Expected root to remember the span it interrupted")
	}
	if s["leaf"].ParentID != s["fresh"].ID || s["leaf"].Level != 0 {
		t.Errorf("Unexpected leaf %+v", s["leaf"])
	}
}

func TestRunCancelled(t *testing.T) {
	sc, err := Parse([]byte(`
[[span]]
label = "waits"
hold = "1h"

  [[span.span]]
  label = "detached"
  mode = "detach"
  hold = "1h"
`))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	done := make(chan struct{})
	var (
		spans []spanz.Span
		stats spanz.Stats
	)
	go func() {
		defer close(done)
		spans, stats, err = runCollected(t, ctx, sc)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if len(spans) != 2 {
		t.Errorf("Expected both spans to end, got %d", len(spans))
	}
	if stats.OpenSpans != 0 {
		t.Errorf("Expected no open spans, got %d", stats.OpenSpans)
	}
}
