package pass

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes pipeline execution errors.
type ErrorCode string

const (
	// ErrCodePassFailed is an ordinary pass failure: the failing pass
	// reported an internal error and the pipeline aborted.
	ErrCodePassFailed ErrorCode = "PASS_FAILED"

	// ErrCodeVerifyFailed is a structural-invariant violation reported by
	// the invariant-checker pass.
	ErrCodeVerifyFailed ErrorCode = "VERIFY_FAILED"

	// ErrCodeFixedPointExceeded means a fixed-point sub-pipeline hit its
	// iteration cap without reaching a no-change iteration. Distinct from
	// PASS_FAILED: the passes themselves succeeded but perpetually
	// re-triggered each other.
	ErrCodeFixedPointExceeded ErrorCode = "FIXED_POINT_EXCEEDED"
)

// PipelineError reports a failed pipeline execution: which pipeline, which
// pass, at which position. It wraps the originating error.
type PipelineError struct {
	Code     ErrorCode
	Pipeline string
	Pass     string
	// Index is the position of the failing pass within its pipeline, or
	// the iteration count for FIXED_POINT_EXCEEDED.
	Index int
	Err   error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	switch {
	case e.Code == ErrCodeFixedPointExceeded:
		return fmt.Sprintf("%s: pipeline %q did not converge after %d iterations", e.Code, e.Pipeline, e.Index)
	case e.Pass != "":
		return fmt.Sprintf("%s: pipeline %q pass %q (#%d): %v", e.Code, e.Pipeline, e.Pass, e.Index, e.Err)
	default:
		return fmt.Sprintf("%s: pipeline %q: %v", e.Code, e.Pipeline, e.Err)
	}
}

// Unwrap exposes the originating error for errors.Is / errors.As.
func (e *PipelineError) Unwrap() error { return e.Err }

// IsFixedPointExceeded reports whether err is a capped-iteration error.
// Uses errors.As to handle wrapped errors.
func IsFixedPointExceeded(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe) && pe.Code == ErrCodeFixedPointExceeded
}

// IsVerifyFailed reports whether err is a structural-invariant violation.
func IsVerifyFailed(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe) && pe.Code == ErrCodeVerifyFailed
}
