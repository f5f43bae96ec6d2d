package spanz

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/zoobzio/clockz"
)

func assertEqual[T any](t *testing.T, have, want T) {
	t.Helper()
	if !cmp.Equal(have, want) {
		t.Fatal(cmp.Diff(want, have))
	}
}

// assertSame compares identities; records and cursors are not deep-comparable.
func assertSame[T comparable](t *testing.T, have, want T) {
	t.Helper()
	if have != want {
		t.Fatalf("have %v, want %v", have, want)
	}
}

// fakeClock is the part of clockz's fake clock the tests drive.
type fakeClock interface {
	clockz.Clock
	Advance(d time.Duration)
}

// newTestTracer returns a tracer on a fake clock, closed at test end.
func newTestTracer(t *testing.T, opts ...Option) (*Tracer, fakeClock) {
	t.Helper()
	clock := clockz.NewFakeClock()
	tracer := New(append([]Option{WithClock(clock)}, opts...)...)
	t.Cleanup(tracer.Close)
	return tracer, clock
}

// recordingSink captures events in order.
type recordingSink struct {
	events []string
}

func (r *recordingSink) OnSpanStart(s Span) { r.events = append(r.events, "start:"+s.Label) }
func (r *recordingSink) OnSpanEnd(s Span)   { r.events = append(r.events, "end:"+s.Label) }

// waitFor polls cond until it holds or the timeout passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
