package rewrite

import "github.com/cinder-ml/cinder/internal/ir"

// CallInliner splices callee computations into their call sites. The
// convolution rewrites leave behind wrapper calls; inlining them exposes
// the tuple plumbing for TupleSimplifier to clean up.
//
// Computations left without callers are dropped from the module.
type CallInliner struct{}

// Name implements pass.Pass.
func (CallInliner) Name() string { return "call-inliner" }

// Run implements pass.Pass.
func (CallInliner) Run(m *ir.Module) (bool, error) {
	changed := false
	// Nested calls surface as new call instructions after inlining, so
	// sweep until quiescent. Recursion is impossible: call targets are
	// declared before their callers.
	for {
		inlined := false
		for _, c := range m.Computations {
			for _, in := range append([]*ir.Instruction(nil), c.Instructions...) {
				if in.Op != ir.OpCall {
					continue
				}
				inlineCall(c, in)
				inlined = true
			}
		}
		if !inlined {
			break
		}
		changed = true
	}
	if changed {
		dropUncalledComputations(m)
	}
	return changed, nil
}

// inlineCall clones the callee body before the call site, wiring
// parameters to the call's operands.
func inlineCall(c *ir.Computation, call *ir.Instruction) {
	callee := call.ToApply
	cloneMap := make(map[*ir.Instruction]*ir.Instruction, len(callee.Instructions))

	for _, in := range callee.Instructions {
		if in.Op == ir.OpParameter {
			cloneMap[in] = call.Operands[in.Parameter]
			continue
		}
		clone := &ir.Instruction{
			Op:               in.Op,
			Shape:            in.Shape.Clone(),
			Literal:          append([]float64(nil), in.Literal...),
			Window:           in.Window.Clone(),
			CustomCallTarget: in.CustomCallTarget,
			Dimensions:       append([]int64(nil), in.Dimensions...),
			TupleIndex:       in.TupleIndex,
			Padding:          append([]ir.PadDim(nil), in.Padding...),
			ToApply:          in.ToApply,
			Lower:            in.Lower,
		}
		for _, operand := range in.Operands {
			clone.Operands = append(clone.Operands, cloneMap[operand])
		}
		c.InsertBefore(call, clone)
		cloneMap[in] = clone
	}

	c.ReplaceUses(call, cloneMap[callee.Root])
	c.Remove(call)
}

// dropUncalledComputations removes non-entry computations no call
// references anymore.
func dropUncalledComputations(m *ir.Module) {
	called := make(map[*ir.Computation]bool)
	for _, c := range m.Computations {
		for _, in := range c.Instructions {
			if in.ToApply != nil {
				called[in.ToApply] = true
			}
		}
	}
	kept := m.Computations[:0]
	for _, c := range m.Computations {
		if c == m.Entry() || called[c] {
			kept = append(kept, c)
		}
	}
	m.Computations = kept
}
