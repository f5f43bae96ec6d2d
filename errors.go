package spanz

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfOrder is reported when a handle ends while a span opened after
	// it on the same cursor is still current.
	ErrOutOfOrder = errors.New("span ended out of order")

	// ErrAlreadyEnded is reported when a handle is ended more than once.
	ErrAlreadyEnded = errors.New("span already ended")

	// ErrOpenScopes is returned by Cursor.Close when spans are still open.
	ErrOpenScopes = errors.New("cursor closed with open spans")

	// ErrDepthExceeded is reported when a span opens deeper than the
	// tracer's configured maximum depth.
	ErrDepthExceeded = errors.New("span depth exceeded")
)

// Violation describes a caller contract violation detected by the tracer.
// The offending operation still completes.
type Violation struct {
	Err    error
	Span   Span
	Thread ThreadID
}

// Error implements error.
func (v Violation) Error() string {
	return fmt.Sprintf("thread %d: %q: %v", v.Thread, v.Span.Label, v.Err)
}

// Unwrap returns the sentinel error.
func (v Violation) Unwrap() error {
	return v.Err
}

// ViolationHandler is called when a violation is detected.
type ViolationHandler func(v Violation)
