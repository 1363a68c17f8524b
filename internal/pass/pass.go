// Package pass provides the pipeline executor the compiler composes its
// optimizations with.
//
// A Pass is the unit of work: it borrows a module, attempts a rewrite, and
// reports whether anything changed. A Pipeline runs passes once, in exactly
// insertion order, short-circuiting on the first failure. FixedPoint wraps
// a pass (usually a pipeline) and re-runs it until an iteration reports no
// change, bounded by an iteration cap.
//
// Execution is strictly single-threaded per module: no pass suspends, and
// no two passes ever run concurrently on the same module. Mutations are not
// transactional - after a failure the module may be partially transformed,
// and callers must not retry on the same module.
package pass

import "github.com/cinder-ml/cinder/internal/ir"

// Pass is a single rewrite or verification operation over a module.
//
// Run returns whether the pass changed the module. The changed flag must be
// accurate: fixed-point execution terminates only when an entire iteration
// reports no change, so a pass that reports changed without changing
// anything can spin a sub-pipeline up to its iteration cap.
type Pass interface {
	// Name identifies the pass in diagnostics and trace records.
	Name() string

	// Run mutates the module in place. The pass borrows the module for the
	// duration of the call and must not retain it.
	Run(m *ir.Module) (changed bool, err error)
}

// Observer receives a record for every pass execution. The trace store
// implements it; a nil observer disables recording.
type Observer interface {
	// PassRan is called after each pass completes, including failures.
	PassRan(rec Record)
}

// Record describes one pass execution inside one pipeline run.
type Record struct {
	Pipeline string
	Pass     string
	// Seq is the zero-based position of this execution within one
	// pipeline run.
	Seq     int
	Changed bool
	Err     error
}
