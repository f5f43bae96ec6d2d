package spanz

import (
	"context"
	"fmt"
)

// cursorKeyType is a private type for context keys to avoid collisions.
type cursorKeyType string

const (
	cursorKey cursorKeyType = "spanz"
)

// Cursor tracks the current span of one goroutine.
// Cursors are NOT safe for concurrent use - each goroutine needs its own.
type Cursor struct {
	tracer  *Tracer
	current *Record
	genesis *Record
	id      ThreadID
	depth   int
	gen     uint64 // bumped by Close
}

// NewCursor returns a cursor with a fresh thread ID. The cursor owns no
// record until it is first asked for its current span.
func (t *Tracer) NewCursor() *Cursor {
	c := &Cursor{
		tracer: t,
		id:     ThreadID(t.nextThread.Add(1)),
	}
	return c
}

// ID returns the thread ID stamped on records created through the cursor.
func (c *Cursor) ID() ThreadID {
	return c.id
}

// Tracer returns the tracer that created the cursor.
func (c *Cursor) Tracer() *Tracer {
	return c.tracer
}

// Current returns the record currently active on the cursor, creating the
// genesis record on first use.
func (c *Cursor) Current() *Record {
	if c.current == nil {
		// The cursor's reference is the one newRecord hands out.
		c.genesis = newRecord(c.tracer, nil, GenesisLabel, KindGenesis, c.id)
		c.current = c.genesis
		c.tracer.cursors.Add(1)
	}
	return c.current
}

// Genesis returns the cursor's genesis record, or nil if the cursor has not
// been used yet.
func (c *Cursor) Genesis() *Record {
	return c.genesis
}

// Depth returns the number of spans opened on the cursor and not yet ended.
func (c *Cursor) Depth() int {
	return c.depth
}

// setCurrent replaces the current record without validation and moves the
// cursor's reference from the old record to the new one.
func (c *Cursor) setCurrent(r *Record) {
	if r != nil {
		r.acquire()
	}
	old := c.current
	c.current = r
	if old != nil {
		old.release()
	}
}

// Close releases the cursor's hold on its current record and returns the
// cursor to its unused state; a later call to Current starts a new genesis
// record. Close returns ErrOpenScopes if spans opened on the cursor have not
// ended, but releases the record regardless; those spans still stamp their
// end time but no longer touch the cursor. Closing twice is a no-op.
func (c *Cursor) Close() error {
	if c.current == nil {
		return nil
	}

	open := c.depth
	c.setCurrent(nil)
	c.genesis = nil
	c.depth = 0
	c.gen++
	c.tracer.cursors.Add(-1)

	if open > 0 {
		return fmt.Errorf("thread %d: %d spans: %w", c.id, open, ErrOpenScopes)
	}
	return nil
}

// WithCursor returns a context carrying the cursor.
func WithCursor(ctx context.Context, c *Cursor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, cursorKey, c)
}

// CursorFrom extracts the cursor from a context.
// Returns nil if no cursor is present.
func CursorFrom(ctx context.Context) *Cursor {
	if ctx == nil {
		return nil
	}

	if c, ok := ctx.Value(cursorKey).(*Cursor); ok {
		return c
	}

	return nil
}

// RecordFrom returns the current record of the context's cursor.
// Returns nil if no cursor is present.
func RecordFrom(ctx context.Context) *Record {
	if c := CursorFrom(ctx); c != nil {
		return c.Current()
	}
	return nil
}
