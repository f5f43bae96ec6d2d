package spanz

import (
	"sync/atomic"
)

// scope owns one record and one publish/restore cycle on the cursor that
// opened it.
type scope struct {
	cursor *Cursor
	record *Record
	gen    uint64
	ended  atomic.Bool
}

// openScope creates a record under parent, stamps its start time and
// publishes it as the cursor's current record. A nil parent yields a level -1
// record.
func openScope(c *Cursor, parent *Record, label Label, kind Kind) *scope {
	t := c.tracer

	// The previous record may live on another cursor's tree entirely; it is
	// only what this cursor must return to.
	previous := c.Current()

	r := newRecord(t, parent, label, kind, c.id)
	previous.acquire()
	r.previous = previous
	r.start = t.clock.Now()

	c.setCurrent(r)
	c.depth++

	s := &scope{cursor: c, record: r, gen: c.gen}
	t.spanStarted(r)

	if t.maxDepth > 0 && r.level >= t.maxDepth {
		t.violation(ErrDepthExceeded, r)
	}

	return s
}

// close restores the cursor to the record that was current when the scope
// opened, stamps the end time and drops the scope's reference.
func (s *scope) close() {
	r := s.record
	t := s.cursor.tracer

	if !s.ended.CompareAndSwap(false, true) {
		t.violation(ErrAlreadyEnded, r)
		return
	}

	c := s.cursor
	if c.gen == s.gen {
		if c.current != r {
			t.violation(ErrOutOfOrder, r)
		}
		c.setCurrent(r.previous)
		c.depth--
	}

	now := t.clock.Now()
	r.end.Store(&now)

	t.spanEnded(r)
	r.release()
}
