package pass

import "github.com/cinder-ml/cinder/internal/ir"

// DefaultMaxIterations bounds fixed-point execution when no explicit cap
// is configured. Interacting rewrites converge within a handful of
// iterations in practice; a pipeline still changing after this many is
// assumed to be oscillating.
const DefaultMaxIterations = 25

// FixedPoint re-runs an inner pass until an entire iteration reports no
// change, or the iteration cap is hit.
//
// Many rewrites interact - a reshape-motion rewrite and an algebraic
// simplification can each re-enable the other - so running to a fixed
// point avoids ordering artifacts a single linear sweep would leave
// behind. The cap converts a perpetual mutual re-trigger into a reported
// FIXED_POINT_EXCEEDED error instead of a hang.
type FixedPoint struct {
	inner Pass
	max   int
}

// Fix wraps a pass in fixed-point execution. maxIterations <= 0 selects
// DefaultMaxIterations.
func Fix(inner Pass, maxIterations int) *FixedPoint {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &FixedPoint{inner: inner, max: maxIterations}
}

// Name implements Pass.
func (f *FixedPoint) Name() string { return f.inner.Name() }

// Run implements Pass. Returns whether any iteration changed the module.
// An inner failure aborts immediately with that iteration's error.
func (f *FixedPoint) Run(m *ir.Module) (bool, error) {
	everChanged := false
	for i := 0; i < f.max; i++ {
		changed, err := f.inner.Run(m)
		everChanged = everChanged || changed
		if err != nil {
			return everChanged, err
		}
		if !changed {
			return everChanged, nil
		}
	}
	return everChanged, &PipelineError{
		Code:     ErrCodeFixedPointExceeded,
		Pipeline: f.inner.Name(),
		Index:    f.max,
	}
}
