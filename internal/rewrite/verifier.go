package rewrite

import "github.com/cinder-ml/cinder/internal/ir"

// Verifier is the non-mutating structural-invariant check that opens every
// pipeline. A violation aborts the pipeline with a VERIFY_FAILED error.
type Verifier struct{}

// Name implements pass.Pass.
func (Verifier) Name() string { return "verifier" }

// Run implements pass.Pass. Never mutates the module.
func (Verifier) Run(m *ir.Module) (bool, error) {
	return false, ir.Verify(m)
}
