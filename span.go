package spanz

import (
	"time"
)

// Span is an immutable copy of a record taken at one instant. Handlers,
// collectors and the tree renderer only ever see spans, never records.
//
//nolint:govet // Field alignment optimized for JSON serialization order
type Span struct {
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time,omitempty"`
	Duration       time.Duration `json:"duration"`
	ID             string        `json:"id"`
	ParentID       string        `json:"parent_id,omitempty"`
	PreviousID     string        `json:"previous_id,omitempty"`
	Label          Label         `json:"label"`
	Kind           Kind          `json:"kind"`
	Level          int           `json:"level"`
	ThreadID       ThreadID      `json:"thread_id"`
	ParentThreadID ThreadID      `json:"parent_thread_id,omitempty"`
	ParentState    ParentState   `json:"parent_state"`
	Refs           int32         `json:"refs"`
}

// Ended reports whether the span had ended when the snapshot was taken.
func (s Span) Ended() bool {
	return !s.EndTime.IsZero()
}

// SpanHandler is called with a snapshot when a span event fires.
type SpanHandler func(span Span)

// Observer receives span start and end events.
type Observer interface {
	OnSpanStart(span Span)
	OnSpanEnd(span Span)
}
