package rewrite

import "github.com/cinder-ml/cinder/internal/ir"

// TupleSimplifier removes tuple/get-tuple-element round trips:
//
//	get-tuple-element(tuple(a, b), 1)        -> b
//	tuple(gte(t, 0), ..., gte(t, n-1))       -> t
//
// The rewriting and inlining steps leave these pairs behind.
type TupleSimplifier struct{}

// Name implements pass.Pass.
func (TupleSimplifier) Name() string { return "tuple-simplifier" }

// Run implements pass.Pass.
func (TupleSimplifier) Run(m *ir.Module) (bool, error) {
	changed := false
	for _, c := range m.Computations {
		for _, in := range append([]*ir.Instruction(nil), c.Instructions...) {
			switch in.Op {
			case ir.OpGetTupleElement:
				if source := in.Operands[0]; source.Op == ir.OpTuple {
					replaceAndRemove(c, in, source.Operands[in.TupleIndex])
					changed = true
				}
			case ir.OpTuple:
				if original := fullTupleRebuild(in); original != nil {
					replaceAndRemove(c, in, original)
					changed = true
				}
			}
		}
	}
	return changed, nil
}

// fullTupleRebuild detects a tuple that reassembles every element of one
// tuple-shaped instruction in order, and returns that instruction.
func fullTupleRebuild(tuple *ir.Instruction) *ir.Instruction {
	if len(tuple.Operands) == 0 {
		return nil
	}
	var source *ir.Instruction
	for i, operand := range tuple.Operands {
		if operand.Op != ir.OpGetTupleElement || operand.TupleIndex != i {
			return nil
		}
		if source == nil {
			source = operand.Operands[0]
		} else if operand.Operands[0] != source {
			return nil
		}
	}
	if len(source.Shape.Tuple) != len(tuple.Operands) {
		return nil
	}
	return source
}
