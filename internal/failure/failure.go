// Package failure defines the error taxonomy shared by the comparison engine.
//
// Errors are plain sentinels wrapped with fmt.Errorf("%w: ...") at the point
// of failure. Classify reduces any error chain to a Kind, which is what unit
// states, log records and metric labels carry.
package failure

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrStructuralInput marks a corrupt, unreadable or zero-area raster, or
	// rasters whose dimensions/channels cannot be combined.
	ErrStructuralInput = errors.New("structural input error")

	// ErrResourceExhausted marks a raster that exceeds the configured memory
	// budget. The unit can be resubmitted with different parameters.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrTimeout marks a page unit that exceeded its time budget.
	ErrTimeout = errors.New("unit timeout")

	// ErrCancelled marks a page unit that was never started because its job
	// was cancelled.
	ErrCancelled = errors.New("cancelled")

	// ErrPrecondition marks a job rejected before any dispatch.
	ErrPrecondition = errors.New("precondition violation")
)

// Kind is the coarse classification of a failure.
type Kind string

const (
	KindNone              Kind = ""
	KindStructuralInput   Kind = "structural_input"
	KindResourceExhausted Kind = "resource_exhausted"
	KindTimeout           Kind = "timeout"
	KindCancelled         Kind = "cancelled"
	KindPrecondition      Kind = "precondition"
	KindInternal          Kind = "internal"
)

// Classify maps an error chain onto a Kind. Context errors are folded into
// timeout and cancelled respectively.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrStructuralInput):
		return KindStructuralInput
	case errors.Is(err, ErrResourceExhausted):
		return KindResourceExhausted
	case errors.Is(err, ErrPrecondition):
		return KindPrecondition
	}
	return KindInternal
}

// Retryable reports whether a unit that failed with kind k may succeed when
// resubmitted, possibly with different parameters.
func Retryable(k Kind) bool {
	return k == KindResourceExhausted || k == KindTimeout || k == KindCancelled
}

// Panic converts a recovered panic value into an internal error.
func Panic(v any) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", v)
}
