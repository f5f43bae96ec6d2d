package spanz

import (
	"context"
)

// SpanConfig describes a span to open on a cursor.
type SpanConfig struct {
	// Parent is the parent record. When nil and Root is false, the cursor's
	// current record is used.
	Parent *Record

	// Label is used verbatim; an empty label is an anonymous span.
	Label Label

	// Root opens a span without a parent. Parent is ignored.
	Root bool
}

// Handle is an open span. End it exactly once, after every span opened
// after it on the same cursor has ended.
//
// A handle may be passed to another goroutine to parent spans opened there,
// but must not be used from two goroutines at once.
type Handle struct {
	scope *scope
}

// Open is the single factory behind every way of starting a span.
func (c *Cursor) Open(cfg SpanConfig) *Handle {
	parent, kind := cfg.Parent, KindChild
	switch {
	case cfg.Root:
		parent, kind = nil, KindRoot
	case parent == nil:
		parent = c.Current()
	}
	return &Handle{scope: openScope(c, parent, cfg.Label, kind)}
}

// Span opens a span under the current record with DefaultLabel.
func (c *Cursor) Span() *Handle {
	return c.Open(SpanConfig{Label: DefaultLabel})
}

// Start opens a labelled span under the current record.
func (c *Cursor) Start(label Label) *Handle {
	return c.Open(SpanConfig{Label: label})
}

// Continue opens an anonymous span under the record of another handle,
// typically one created on a different goroutine.
func (c *Cursor) Continue(parent *Handle) *Handle {
	return c.Open(SpanConfig{Parent: parent.Record()})
}

// StartFrom opens a labelled span under the record of another handle. The
// new record carries this cursor's thread ID while its parent keeps the
// thread ID of the goroutine that created it.
func (c *Cursor) StartFrom(parent *Handle, label Label) *Handle {
	return c.Open(SpanConfig{Parent: parent.Record(), Label: label})
}

// StartRoot opens a labelled span with no parent. Root spans share level -1
// with genesis records but report KindRoot.
func (c *Cursor) StartRoot(label Label) *Handle {
	return c.Open(SpanConfig{Root: true, Label: label})
}

// Record returns the handle's record.
func (h *Handle) Record() *Record {
	return h.scope.record
}

// Cursor returns the cursor the handle was opened on.
func (h *Handle) Cursor() *Cursor {
	return h.scope.cursor
}

// End closes the span: the cursor is restored to the record that was current
// when the span opened and the end time is stamped. Ending twice reports
// ErrAlreadyEnded and does nothing else.
func (h *Handle) End() {
	h.scope.close()
}

// Ended reports whether End has been called.
func (h *Handle) Ended() bool {
	return h.scope.ended.Load()
}

// Context returns a context carrying the handle's cursor.
func (h *Handle) Context(parent context.Context) context.Context {
	return WithCursor(parent, h.scope.cursor)
}
