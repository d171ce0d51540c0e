package referrers

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTargets is returned when Build is called without target addresses
	ErrNoTargets = errors.New("no target addresses given")

	// ErrCancelled is returned when the build's context is cancelled.
	// It wraps the context error so errors.Is(err, context.Canceled) also holds.
	ErrCancelled = errors.New("referrer build cancelled")
)

// SnapshotReadError reports a failure of the Inspector while reading the heap.
// It is fatal to the build that observed it.
type SnapshotReadError struct {
	Op      string
	Address Address
	Err     error
}

func (e *SnapshotReadError) Error() string {
	if e.Address != 0 {
		return fmt.Sprintf("snapshot read failed during %s at 0x%x: %v", e.Op, uint64(e.Address), e.Err)
	}
	return fmt.Sprintf("snapshot read failed during %s: %v", e.Op, e.Err)
}

func (e *SnapshotReadError) Unwrap() error {
	return e.Err
}

func cancelled(cause error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}
