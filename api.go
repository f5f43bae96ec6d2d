// Package spanz provides a minimal, in-process span tree for tracing nested
// units of work across goroutines.
//
// spanz focuses on the causal tree itself: who is whose parent, when each
// span started and ended, and how long each record stays alive. There is no
// sampling, no persistence and no wire export.
//
// Core Components:
//   - Tracer: Owns the clock, the ID pool and the event handlers.
//   - Cursor: Per-goroutine tracker of the "current" span.
//   - Handle: An open span. End it exactly once, in LIFO order.
//   - Record: The identity of one span, shared by everything that needs it.
//
// Basic Usage:
//
//	tracer := spanz.New()
//	defer tracer.Close()
//
//	cur := tracer.NewCursor()
//	defer cur.Close()
//
//	parent := cur.Start("request")
//	defer parent.End()
//
//	// Cross-goroutine parenting.
//	tracer.Go(func(c *spanz.Cursor) {
//		child := c.StartFrom(parent, "worker")
//		defer child.End()
//	})
//
// Cursors:
//
// A Cursor belongs to exactly one goroutine. It lazily creates a level -1
// genesis record the first time it is asked for its current span, and every
// span opened on it is published as current until it ends. Cursors hold no
// locks; sharing one between goroutines is a caller error.
//
// Record Lifetime:
//
// A Record is owned by the scope that created it, by any record that points
// at it as parent or previous, and by a cursor while it is current. The
// record is released once the last owner lets go, which can happen long after
// its handle ended if a detached goroutine still holds a child. Reading a
// released record is always safe.
//
// Caller Errors:
//
// Ending a handle twice, ending handles out of LIFO order and exceeding the
// configured depth bound are reported as Violations to OnViolation handlers
// and the logger. They never panic and never return errors.
package spanz

// Label represents a span label.
type Label = string

// ThreadID identifies the cursor, and so the goroutine, that created a record.
type ThreadID uint64

const (
	// GenesisLevel is the level of records created without a parent.
	GenesisLevel = -1

	// DefaultLabel is used by Cursor.Span when no label is supplied.
	DefaultLabel Label = "noname"

	// GenesisLabel is the label of the implicit per-cursor genesis record.
	GenesisLabel Label = "thread"
)
