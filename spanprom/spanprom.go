// Package spanprom exposes tracer counters and span durations as Prometheus
// metrics.
package spanprom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zoobzio/spanz"
)

// Collector is a prometheus.Collector reading a tracer's Stats on every
// scrape. It also records the duration of every ended span by kind.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	tracer    *spanz.Tracer
	handlerID uint64

	recordsCreated  *prometheus.Desc
	recordsReleased *prometheus.Desc
	liveRecords     *prometheus.Desc
	spansStarted    *prometheus.Desc
	spansEnded      *prometheus.Desc
	openSpans       *prometheus.Desc
	violations      *prometheus.Desc
	droppedEvents   *prometheus.Desc
	activeCursors   *prometheus.Desc

	durations *prometheus.HistogramVec
}

// New returns a collector for tracer with metric names under namespace.
// Call Close to detach it from the tracer.
func New(tracer *spanz.Tracer, namespace string) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
	}
	c := &Collector{
		tracer:          tracer,
		recordsCreated:  desc("records_created_total", "Span records created, genesis records included."),
		recordsReleased: desc("records_released_total", "Span records whose last owner let go."),
		liveRecords:     desc("records_live", "Span records created and not yet released."),
		spansStarted:    desc("spans_started_total", "Spans opened."),
		spansEnded:      desc("spans_ended_total", "Spans ended."),
		openSpans:       desc("spans_open", "Spans opened and not yet ended."),
		violations:      desc("violations_total", "Out of order, repeated or too deep span usage."),
		droppedEvents:   desc("dropped_events_total", "Async handler events dropped by a full worker queue."),
		activeCursors:   desc("cursors_active", "Cursors with a live genesis record."),
		durations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "span_duration_seconds",
				Help:      "Duration of ended spans.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
	}
	c.handlerID = tracer.OnSpanEnd(c.observe)
	return c
}

func (c *Collector) observe(s spanz.Span) {
	c.durations.WithLabelValues(s.Kind.String()).Observe(s.Duration.Seconds())
}

// Close stops recording span durations. Counters keep reporting.
func (c *Collector) Close() {
	c.tracer.RemoveHandler(c.handlerID)
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.recordsCreated
	ch <- c.recordsReleased
	ch <- c.liveRecords
	ch <- c.spansStarted
	ch <- c.spansEnded
	ch <- c.openSpans
	ch <- c.violations
	ch <- c.droppedEvents
	ch <- c.activeCursors
	c.durations.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.tracer.Stats()
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	counter(c.recordsCreated, s.RecordsCreated)
	counter(c.recordsReleased, s.RecordsReleased)
	gauge(c.liveRecords, float64(s.LiveRecords))
	counter(c.spansStarted, s.SpansStarted)
	counter(c.spansEnded, s.SpansEnded)
	gauge(c.openSpans, float64(s.OpenSpans))
	counter(c.violations, s.Violations)
	counter(c.droppedEvents, s.DroppedEvents)
	gauge(c.activeCursors, float64(s.ActiveCursors))
	c.durations.Collect(ch)
}
