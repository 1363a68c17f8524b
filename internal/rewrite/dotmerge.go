package rewrite

import "github.com/cinder-ml/cinder/internal/ir"

// DotDimensionMerger collapses multiple batch dimensions of a dot into a
// single one, bracketing the dot with reshapes. The device matmul library
// takes at most one batch dimension; a dot's Dimensions attribute holds
// its batch dimension count.
type DotDimensionMerger struct{}

// Name implements pass.Pass.
func (DotDimensionMerger) Name() string { return "dot-dimension-merger" }

// Run implements pass.Pass.
func (DotDimensionMerger) Run(m *ir.Module) (bool, error) {
	changed := false
	for _, c := range m.Computations {
		for _, in := range append([]*ir.Instruction(nil), c.Instructions...) {
			if in.Op != ir.OpDot || len(in.Operands) != 2 || len(in.Dimensions) != 1 {
				continue
			}
			// A batch count beyond any participating rank is malformed
			// input; leave it for the verifier rather than slicing past
			// the shape.
			batch := in.Dimensions[0]
			if batch <= 1 || batch > int64(in.Shape.Rank()) ||
				batch > int64(in.Operands[0].Shape.Rank()) ||
				batch > int64(in.Operands[1].Shape.Rank()) {
				continue
			}
			mergeDotBatchDims(c, in)
			changed = true
		}
	}
	return changed, nil
}

func mergeDotBatchDims(c *ir.Computation, dot *ir.Instruction) {
	batch := int(dot.Dimensions[0])

	operands := make([]*ir.Instruction, 2)
	for i, operand := range dot.Operands[:2] {
		operands[i] = c.InsertBefore(dot, &ir.Instruction{
			Op:       ir.OpReshape,
			Shape:    mergeLeadingDims(operand.Shape, batch),
			Operands: []*ir.Instruction{operand},
		})
	}
	merged := c.InsertBefore(dot, &ir.Instruction{
		Op:         ir.OpDot,
		Shape:      mergeLeadingDims(dot.Shape, batch),
		Operands:   operands,
		Dimensions: []int64{1},
	})
	restored := c.InsertBefore(dot, &ir.Instruction{
		Op:       ir.OpReshape,
		Shape:    dot.Shape.Clone(),
		Operands: []*ir.Instruction{merged},
	})
	replaceAndRemove(c, dot, restored)
}

// mergeLeadingDims folds the first n dimensions into one.
func mergeLeadingDims(s ir.Shape, n int) ir.Shape {
	folded := int64(1)
	for _, d := range s.Dims[:n] {
		folded *= d
	}
	dims := append([]int64{folded}, s.Dims[n:]...)
	return ir.MakeShape(s.Element, dims...)
}
