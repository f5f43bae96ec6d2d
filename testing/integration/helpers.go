// Package integration exercises spanz end to end, across goroutines and
// through collectors, the way an application would use it.
package integration

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/spanz"
)

// MockCollector wraps a real collector with test utilities.
// Provides synchronous collection and verification helpers.
//
//nolint:govet // Field alignment optimized for test helper readability
type MockCollector struct {
	exported []spanz.Span
	*spanz.Collector
	t  *testing.T
	mu sync.Mutex
}

// NewMockCollector creates a synchronous collector attached to tracer.
func NewMockCollector(t *testing.T, tracer *spanz.Tracer, bufferSize int) *MockCollector {
	t.Helper()
	collector := spanz.NewCollector(t.Name(), bufferSize)
	collector.SetSyncMode(true)
	tracer.AddCollector(collector)
	t.Cleanup(collector.Close)
	return &MockCollector{Collector: collector, t: t}
}

// GetAll returns every span collected so far without losing earlier exports.
func (m *MockCollector) GetAll() []spanz.Span {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.exported = append(m.exported, m.Collector.Export()...)
	all := make([]spanz.Span, len(m.exported))
	copy(all, m.exported)
	return all
}

// AssertSpanCount verifies the number of collected spans.
func (m *MockCollector) AssertSpanCount(expected int) {
	m.t.Helper()
	if got := len(m.GetAll()); got != expected {
		m.t.Errorf("Expected %d spans, got %d", expected, got)
	}
}

// AssertSpanLabelled returns the only span with label, failing otherwise.
func (m *MockCollector) AssertSpanLabelled(label string) spanz.Span {
	m.t.Helper()
	matches := NewTraceAnalyzer(m.GetAll()).GetSpansByLabel(label)
	if len(matches) != 1 {
		m.t.Fatalf("Expected one span labelled %q, got %d", label, len(matches))
	}
	return matches[0]
}

// AssertParentChild verifies that child's parent is parent.
func (m *MockCollector) AssertParentChild(parentLabel, childLabel string) {
	m.t.Helper()
	parent := m.AssertSpanLabelled(parentLabel)
	child := m.AssertSpanLabelled(childLabel)
	if child.ParentID != parent.ID {
		m.t.Errorf("Expected %s to be the parent of %s", parentLabel, childLabel)
	}
	if child.Level != parent.Level+1 {
		m.t.Errorf("Expected %s at level %d, got %d", childLabel, parent.Level+1, child.Level)
	}
}

// TraceAnalyzer answers structural questions about a set of spans.
type TraceAnalyzer struct {
	spans []spanz.Span
	byID  map[string]spanz.Span
	roots []*spanz.Node
}

// NewTraceAnalyzer indexes spans.
func NewTraceAnalyzer(spans []spanz.Span) *TraceAnalyzer {
	a := &TraceAnalyzer{
		spans: spans,
		byID:  make(map[string]spanz.Span, len(spans)),
		roots: spanz.BuildTree(spans),
	}
	for _, s := range spans {
		a.byID[s.ID] = s
	}
	return a
}

// GetSpan returns the span with the given ID.
func (a *TraceAnalyzer) GetSpan(id string) (spanz.Span, bool) {
	s, ok := a.byID[id]
	return s, ok
}

// GetSpansByLabel returns spans with label in start order.
func (a *TraceAnalyzer) GetSpansByLabel(label string) []spanz.Span {
	var out []spanz.Span
	for _, s := range a.spans {
		if s.Label == label {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// CountSpans returns the number of spans.
func (a *TraceAnalyzer) CountSpans() int {
	return len(a.spans)
}

// CountTrees returns the number of disconnected trees.
func (a *TraceAnalyzer) CountTrees() int {
	return len(a.roots)
}

// VerifyChain checks that labels form a parent to child chain.
func (a *TraceAnalyzer) VerifyChain(labels ...string) error {
	for i := 1; i < len(labels); i++ {
		parents := a.GetSpansByLabel(labels[i-1])
		children := a.GetSpansByLabel(labels[i])
		if len(parents) == 0 || len(children) == 0 {
			return fmt.Errorf("chain %s: missing %s or %s", strings.Join(labels, " > "), labels[i-1], labels[i])
		}
		if !linked(parents, children) {
			return fmt.Errorf("chain %s: no %s is a child of %s", strings.Join(labels, " > "), labels[i], labels[i-1])
		}
	}
	return nil
}

func linked(parents, children []spanz.Span) bool {
	for _, c := range children {
		for _, p := range parents {
			if c.ParentID == p.ID {
				return true
			}
		}
	}
	return false
}

// GetCriticalPath returns the root to leaf path with the longest total
// duration.
func (a *TraceAnalyzer) GetCriticalPath() []spanz.Span {
	var best []spanz.Span
	for _, root := range a.roots {
		if path := longestPath(root); pathDuration(path) > pathDuration(best) {
			best = path
		}
	}
	return best
}

func longestPath(n *spanz.Node) []spanz.Span {
	var best []spanz.Span
	for _, c := range n.Children {
		if path := longestPath(c); pathDuration(path) > pathDuration(best) {
			best = path
		}
	}
	return append([]spanz.Span{n.Span}, best...)
}

func pathDuration(path []spanz.Span) time.Duration {
	var total time.Duration
	for _, s := range path {
		total += s.Duration
	}
	return total
}

// MockService is a traced dependency with configurable latency. Each call
// opens a span on the caller's cursor.
type MockService struct {
	tracer  *spanz.Tracer
	name    string
	latency time.Duration
	failAt  int
	calls   int
	mu      sync.Mutex
}

// NewMockService creates a service that answers immediately.
func NewMockService(name string, tracer *spanz.Tracer) *MockService {
	return &MockService{name: name, tracer: tracer}
}

// SetLatency sets how long each call holds its span.
func (m *MockService) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

// FailEvery makes every nth call fail. Zero disables failures.
func (m *MockService) FailEvery(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAt = n
}

// Call opens a span labelled service.operation on c for the call.
func (m *MockService) Call(c *spanz.Cursor, operation string) error {
	m.mu.Lock()
	m.calls++
	latency, fail := m.latency, m.failAt > 0 && m.calls%m.failAt == 0
	m.mu.Unlock()

	h := c.Start(m.name + "." + operation)
	defer h.End()

	if latency > 0 {
		<-m.tracer.Clock().After(latency)
	}
	if fail {
		return fmt.Errorf("%s: %s failed", m.name, operation)
	}
	return nil
}
