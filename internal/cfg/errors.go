package cfg

import (
	"errors"
	"fmt"

	"github.com/cwbudde/markedpoint/internal/mark"
)

// ErrInvalidMarkReference matches every *MarkReferenceError.
// Use errors.Is(err, ErrInvalidMarkReference) to check for it.
var ErrInvalidMarkReference = &MarkReferenceError{}

// MarkReferenceError reports a change that names a mark the configuration
// does not hold, or adds one it already holds.
type MarkReferenceError struct {
	Op     string
	ID     mark.ID
	Reason string
}

func (e *MarkReferenceError) Error() string {
	if e.Op == "" {
		return "invalid mark reference"
	}
	return fmt.Sprintf("%s mark %d: %s", e.Op, e.ID, e.Reason)
}

func (e *MarkReferenceError) Is(target error) bool {
	_, ok := target.(*MarkReferenceError)
	return ok
}

// ErrInvariant matches every *InvariantError.
var ErrInvariant = &InvariantError{}

// InvariantError reports internal corruption, such as the spatial index
// disagreeing with the mark set. It is never recoverable.
type InvariantError struct {
	Invariant string
	Err       error
}

func (e *InvariantError) Error() string {
	if e.Invariant == "" {
		return "invariant violated"
	}
	if e.Err == nil {
		return "invariant violated: " + e.Invariant
	}
	return fmt.Sprintf("invariant violated: %s: %v", e.Invariant, e.Err)
}

func (e *InvariantError) Unwrap() error {
	return e.Err
}

func (e *InvariantError) Is(target error) bool {
	_, ok := target.(*InvariantError)
	return ok
}

// ErrStaleCandidate is returned by Commit when the configuration changed
// after the candidate was evaluated.
var ErrStaleCandidate = errors.New("candidate evaluated against an older generation")

// ErrDegenerateMark is returned when a change adds a mark with zero extent.
var ErrDegenerateMark = errors.New("degenerate mark")
