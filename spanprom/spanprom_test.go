package spanprom

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/zoobzio/clockz"

	"github.com/zoobzio/spanz"
)

func TestCollectorReportsStats(t *testing.T) {
	clock := clockz.NewFakeClock()
	tracer := spanz.New(spanz.WithClock(clock))
	defer tracer.Close()

	c := New(tracer, "spanz")
	defer c.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(c)

	cur := tracer.NewCursor()
	outer := cur.StartRoot("outer")
	inner := cur.Start("inner")
	clock.Advance(50 * time.Millisecond)
	inner.End()

	expected := `
# HELP spanz_records_live Span records created and not yet released.
# TYPE spanz_records_live gauge
spanz_records_live 2
# HELP spanz_spans_open Spans opened and not yet ended.
# TYPE spanz_spans_open gauge
spanz_spans_open 1
# HELP spanz_spans_started_total Spans opened.
# TYPE spanz_spans_started_total counter
spanz_spans_started_total 2
# HELP spanz_cursors_active Cursors with a live genesis record.
# TYPE spanz_cursors_active gauge
spanz_cursors_active 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"spanz_records_live", "spanz_spans_open", "spanz_spans_started_total", "spanz_cursors_active")
	if err != nil {
		t.Error(err)
	}

	outer.End()
	if err := cur.Close(); err != nil {
		t.Fatalf("Unexpected close error: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Unexpected gather error: %v", err)
	}
	var samples uint64
	for _, mf := range families {
		if mf.GetName() != "spanz_span_duration_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			samples += m.GetHistogram().GetSampleCount()
		}
	}
	if samples != 2 {
		t.Errorf("Expected 2 duration samples, got %d", samples)
	}
}

func TestCollectorCloseStopsDurations(t *testing.T) {
	tracer := spanz.New()
	defer tracer.Close()

	c := New(tracer, "")
	c.Close()

	cur := tracer.NewCursor()
	cur.Start("ignored").End()
	_ = cur.Close()

	if n := testutil.CollectAndCount(c.durations); n != 0 {
		t.Errorf("Expected no duration series after Close, got %d", n)
	}
	if n := testutil.CollectAndCount(c, "spans_ended_total"); n != 1 {
		t.Errorf("Expected spans_ended_total to keep reporting, got %d", n)
	}
}
