package rewrite

import "github.com/cinder-ml/cinder/internal/ir"

// SolverExpander rewrites dense-solver primitives into solver-library
// custom calls. Historically colocated with the convolution rewrites even
// though it is unrelated to convolutions: both must run before padding
// legalization freezes the custom-call roster.
type SolverExpander struct{}

// Name implements pass.Pass.
func (SolverExpander) Name() string { return "solver-expander" }

// Run implements pass.Pass.
func (SolverExpander) Run(m *ir.Module) (bool, error) {
	changed := false
	for _, c := range m.Computations {
		for _, in := range append([]*ir.Instruction(nil), c.Instructions...) {
			if in.Op != ir.OpCholesky {
				continue
			}
			replaceWithTupleCall(c, in, CholeskyTarget)
			changed = true
		}
	}
	return changed, nil
}

// TriangularSolveRewriter turns triangular-solve operations into custom
// calls so buffer assignment can attach temporary scratch memory to them.
// Runs after the shared base pipeline: it depends on finalized layouts.
type TriangularSolveRewriter struct{}

// Name implements pass.Pass.
func (TriangularSolveRewriter) Name() string { return "triangular-solve-rewriter" }

// Run implements pass.Pass.
func (TriangularSolveRewriter) Run(m *ir.Module) (bool, error) {
	changed := false
	for _, c := range m.Computations {
		for _, in := range append([]*ir.Instruction(nil), c.Instructions...) {
			if in.Op != ir.OpTriangularSolve {
				continue
			}
			replaceWithTupleCall(c, in, TriangularSolveTarget)
			changed = true
		}
	}
	return changed, nil
}

// replaceWithTupleCall substitutes an instruction with a custom call
// returning (result, scratch) plus a get-tuple-element extracting the
// result. Opcode-specific attributes (window, triangular form) carry over
// onto the call.
func replaceWithTupleCall(c *ir.Computation, in *ir.Instruction, target string) *ir.Instruction {
	call := c.InsertBefore(in, &ir.Instruction{
		Op:               ir.OpCustomCall,
		CustomCallTarget: target,
		Shape:            ir.MakeTupleShape(in.Shape.Clone(), scratchShape()),
		Operands:         append([]*ir.Instruction(nil), in.Operands...),
		Window:           in.Window.Clone(),
		Lower:            in.Lower,
	})
	result := c.InsertAfter(call, &ir.Instruction{
		Op:       ir.OpGetTupleElement,
		Shape:    in.Shape.Clone(),
		Operands: []*ir.Instruction{call},
	})
	c.ReplaceUses(in, result)
	c.Remove(in)
	return result
}

// replaceAndRemove rewires every user of in to replacement and deletes
// in from the computation. Leaving the replaced instruction behind would
// let later sweeps match it again and report spurious changes.
func replaceAndRemove(c *ir.Computation, in, replacement *ir.Instruction) {
	c.ReplaceUses(in, replacement)
	c.Remove(in)
}
