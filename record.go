package spanz

import (
	"fmt"
	"sync/atomic"
	"time"
	"unique"
)

// Kind distinguishes implicit genesis records from user-created spans.
type Kind uint8

const (
	// KindGenesis is the implicit record a cursor creates on first use.
	KindGenesis Kind = iota
	// KindRoot is a user-created span with no parent.
	KindRoot
	// KindChild is a span with a parent.
	KindChild
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindGenesis:
		return "genesis"
	case KindRoot:
		return "root"
	case KindChild:
		return "child"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	for _, c := range []Kind{KindGenesis, KindRoot, KindChild} {
		if c.String() == string(text) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown span kind %q", text)
}

// ParentState reports whether a record's parent is still open.
type ParentState int8

const (
	// NoParent means the record is a genesis or root record.
	NoParent ParentState = -1
	// ParentClosed means the parent's end time has been stamped.
	ParentClosed ParentState = 0
	// ParentOpen means the parent has not ended yet.
	ParentOpen ParentState = 1
)

// String implements fmt.Stringer.
func (s ParentState) String() string {
	switch s {
	case NoParent:
		return "none"
	case ParentClosed:
		return "closed"
	case ParentOpen:
		return "open"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s ParentState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ParentState) UnmarshalText(text []byte) error {
	for _, c := range []ParentState{NoParent, ParentClosed, ParentOpen} {
		if c.String() == string(text) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown parent state %q", text)
}

// Record is the identity of one span. Everything except the end time is
// fixed before the record is published; the end time is written once, by the
// scope that owns the record.
//
// Records are safe to read from any goroutine.
//
//nolint:govet // Field order follows construction order
type Record struct {
	tracer   *Tracer
	parent   *Record
	previous *Record
	label    unique.Handle[string]
	id       string
	kind     Kind
	level    int
	thread   ThreadID
	start    time.Time
	end      atomic.Pointer[time.Time]
	refs     atomic.Int32
}

// newRecord creates a record holding one reference for its creator and
// acquires its parent. Level is -1 when parent is nil.
func newRecord(t *Tracer, parent *Record, label Label, kind Kind, thread ThreadID) *Record {
	r := &Record{
		tracer: t,
		parent: parent,
		label:  unique.Make(label),
		id:     t.generateID(),
		kind:   kind,
		level:  GenesisLevel,
		thread: thread,
	}
	if parent != nil {
		r.level = parent.level + 1
		parent.acquire()
	}
	r.refs.Store(1)
	t.recordCreated(r)
	return r
}

// ID returns the unique identifier of the record.
func (r *Record) ID() string { return r.id }

// Label returns the record's label.
func (r *Record) Label() Label { return r.label.Value() }

// Parent returns the parent record, or nil for genesis and root records.
func (r *Record) Parent() *Record { return r.parent }

// Previous returns the record that was current on the creating cursor when
// this record was opened, or nil for genesis records.
func (r *Record) Previous() *Record { return r.previous }

// Level returns the depth of the record: -1 without a parent, otherwise the
// parent's level plus one.
func (r *Record) Level() int { return r.level }

// ThreadID returns the ID of the cursor that created the record.
func (r *Record) ThreadID() ThreadID { return r.thread }

// Kind returns the kind of the record.
func (r *Record) Kind() Kind { return r.kind }

// StartTime returns the time the record's scope opened. Genesis records have
// a zero start time.
func (r *Record) StartTime() time.Time { return r.start }

// EndTime returns the time the record's scope closed, if it has.
func (r *Record) EndTime() (time.Time, bool) {
	if end := r.end.Load(); end != nil {
		return *end, true
	}
	return time.Time{}, false
}

// Ended reports whether the record's scope has closed.
func (r *Record) Ended() bool {
	return r.end.Load() != nil
}

// Duration returns end minus start for ended records, and the time elapsed
// since start on the tracer's clock otherwise.
func (r *Record) Duration() time.Duration {
	if r.start.IsZero() {
		return 0
	}
	if end, ok := r.EndTime(); ok {
		return end.Sub(r.start)
	}
	return r.tracer.clock.Since(r.start)
}

// ParentState reports whether the parent is still open.
func (r *Record) ParentState() ParentState {
	switch {
	case r.parent == nil:
		return NoParent
	case r.parent.Ended():
		return ParentClosed
	default:
		return ParentOpen
	}
}

// Refs returns the number of owners currently holding the record.
func (r *Record) Refs() int32 {
	return r.refs.Load()
}

// Released reports whether every owner has let go of the record.
func (r *Record) Released() bool {
	return r.refs.Load() <= 0
}

// Snapshot returns an immutable copy of the record as it is now.
func (r *Record) Snapshot() Span {
	s := Span{
		ID:          r.id,
		Label:       r.Label(),
		Kind:        r.kind,
		Level:       r.level,
		ThreadID:    r.thread,
		ParentState: r.ParentState(),
		Refs:        r.refs.Load(),
		StartTime:   r.start,
	}
	if r.parent != nil {
		s.ParentID = r.parent.id
		s.ParentThreadID = r.parent.thread
	}
	if r.previous != nil {
		s.PreviousID = r.previous.id
	}
	if end, ok := r.EndTime(); ok {
		s.EndTime = end
		s.Duration = end.Sub(r.start)
	}
	return s
}

// acquire adds an owner.
func (r *Record) acquire() {
	r.refs.Add(1)
}

// release drops an owner. Records whose last owner let go are released and
// drop their own hold on parent and previous. The walk is iterative so long
// previous chains do not grow the stack.
func (r *Record) release() {
	pending := []*Record{r}
	for len(pending) > 0 {
		x := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		n := x.refs.Add(-1)
		switch {
		case n > 0:
			continue
		case n < 0:
			panic("spanz: record " + x.id + " released more times than acquired")
		}

		x.tracer.recordReleased(x)
		if x.parent != nil {
			pending = append(pending, x.parent)
		}
		if x.previous != nil {
			pending = append(pending, x.previous)
		}
	}
}
