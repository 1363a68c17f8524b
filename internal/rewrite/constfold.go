package rewrite

import (
	"math"

	"github.com/cinder-ml/cinder/internal/ir"
)

// ConstantFolding evaluates instructions whose operands are all constants
// and replaces them with the resulting constant. Folding is restricted to
// operations the host can evaluate exactly on float64 literals; anything
// involving device-specific semantics (convolutions, custom calls) is left
// alone.
type ConstantFolding struct{}

// Name implements pass.Pass.
func (ConstantFolding) Name() string { return "constant-folding" }

// Run implements pass.Pass.
func (f ConstantFolding) Run(m *ir.Module) (bool, error) {
	changed := false
	for _, c := range m.Computations {
		for _, in := range append([]*ir.Instruction(nil), c.Instructions...) {
			if f.fold(c, in) {
				changed = true
			}
		}
	}
	return changed, nil
}

func (f ConstantFolding) fold(c *ir.Computation, in *ir.Instruction) bool {
	for _, operand := range in.Operands {
		if operand.Op != ir.OpConstant {
			return false
		}
	}

	switch {
	case in.Op.IsElementwiseBinary():
		return f.foldBinary(c, in)
	case in.Op == ir.OpNegate || in.Op == ir.OpExp:
		return f.foldUnary(c, in)
	case in.Op == ir.OpReshape:
		// A reshape of a constant reorders nothing: the flattened literal
		// is the value in both shapes.
		return f.emit(c, in, append([]float64(nil), in.Operands[0].Literal...))
	case in.Op == ir.OpPad:
		return f.foldPad(c, in)
	}
	return false
}

// foldPad expands pad(constant, constant) into the padded literal:
// edge padding outside, interior padding between neighboring input
// elements, the pad value everywhere no input element lands.
func (f ConstantFolding) foldPad(c *ir.Computation, in *ir.Instruction) bool {
	if len(in.Operands) != 2 || len(in.Padding) != in.Shape.Rank() {
		return false
	}
	input, value := in.Operands[0], in.Operands[1]
	rank := input.Shape.Rank()
	if rank != in.Shape.Rank() || len(value.Literal) != 1 {
		return false
	}
	if int64(len(input.Literal)) != input.Shape.NumElements() {
		return false
	}
	for i, p := range in.Padding {
		if p.Low < 0 || p.High < 0 || p.Interior < 0 {
			return false
		}
		want := p.Low + p.High + input.Shape.Dims[i]
		if input.Shape.Dims[i] > 1 {
			want += (input.Shape.Dims[i] - 1) * p.Interior
		}
		if want != in.Shape.Dims[i] {
			return false
		}
	}

	values := make([]float64, in.Shape.NumElements())
	for i := range values {
		values[i] = value.Literal[0]
	}

	strides := make([]int64, rank)
	stride := int64(1)
	for i := rank - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= in.Shape.Dims[i]
	}
	index := make([]int64, rank)
	for flat, v := range input.Literal {
		rem := int64(flat)
		for i := rank - 1; i >= 0; i-- {
			index[i] = rem % input.Shape.Dims[i]
			rem /= input.Shape.Dims[i]
		}
		pos := int64(0)
		for i := 0; i < rank; i++ {
			pos += (in.Padding[i].Low + index[i]*(in.Padding[i].Interior+1)) * strides[i]
		}
		values[pos] = v
	}
	return f.emit(c, in, values)
}

func (f ConstantFolding) foldBinary(c *ir.Computation, in *ir.Instruction) bool {
	a, b := in.Operands[0].Literal, in.Operands[1].Literal
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	values := make([]float64, len(a))
	for i := range a {
		switch in.Op {
		case ir.OpAdd:
			values[i] = a[i] + b[i]
		case ir.OpSubtract:
			values[i] = a[i] - b[i]
		case ir.OpMultiply:
			values[i] = a[i] * b[i]
		case ir.OpDivide:
			values[i] = a[i] / b[i]
		case ir.OpMaximum:
			values[i] = math.Max(a[i], b[i])
		case ir.OpMinimum:
			values[i] = math.Min(a[i], b[i])
		default:
			return false
		}
	}
	return f.emit(c, in, values)
}

func (f ConstantFolding) foldUnary(c *ir.Computation, in *ir.Instruction) bool {
	a := in.Operands[0].Literal
	if len(a) == 0 {
		return false
	}
	values := make([]float64, len(a))
	for i := range a {
		if in.Op == ir.OpNegate {
			values[i] = -a[i]
		} else {
			values[i] = math.Exp(a[i])
		}
	}
	return f.emit(c, in, values)
}

func (f ConstantFolding) emit(c *ir.Computation, in *ir.Instruction, values []float64) bool {
	folded := c.InsertBefore(in, &ir.Instruction{
		Op:      ir.OpConstant,
		Shape:   in.Shape.Clone(),
		Literal: values,
	})
	replaceAndRemove(c, in, folded)
	return true
}
