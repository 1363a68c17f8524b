package rewrite

import (
	"math"

	"github.com/cinder-ml/cinder/internal/ir"
)

// SimplifierOptions tunes the algebraic simplifier. The compositions
// disable individual rules where they would interfere with shapes another
// pass just produced.
type SimplifierOptions struct {
	// IsLayoutSensitive makes identity-removal rules respect layouts:
	// a copy or reshape that changes only the layout is preserved.
	IsLayoutSensitive bool

	// SupportsNonCanonicalDots permits rules that produce dots in
	// non-canonical operand order (transpose-of-dot folding). Post-layout
	// pipelines disable it: the base pipeline's dot rewriter requires
	// canonical form.
	SupportsNonCanonicalDots bool

	// EnableOperandSwap canonicalizes commutative operations by moving
	// constants to the right operand. Disabled around convolution
	// canonicalization, where it would disturb just-rewritten shapes.
	EnableOperandSwap bool

	// EnableReduceOfConcat distributes a sum-reduction over a
	// concatenation. Disabled in the same places as operand swap.
	EnableReduceOfConcat bool

	// MinMaxPropagateNaN makes constant min/max folding propagate NaN
	// ("slow" min/max). When false, NaN operands block folding entirely
	// rather than guessing at the device's fast-min-max behavior.
	MinMaxPropagateNaN bool
}

// DefaultSimplifierOptions enables everything.
func DefaultSimplifierOptions() SimplifierOptions {
	return SimplifierOptions{
		SupportsNonCanonicalDots: true,
		EnableOperandSwap:        true,
		EnableReduceOfConcat:     true,
	}
}

// AlgebraicSimplifier applies local algebraic identities. One Run is a
// single sweep; the compositions wrap it in a fixed point where rules can
// cascade.
type AlgebraicSimplifier struct {
	Options SimplifierOptions
}

// Name implements pass.Pass.
func (AlgebraicSimplifier) Name() string { return "algebraic-simplifier" }

// Run implements pass.Pass.
func (s AlgebraicSimplifier) Run(m *ir.Module) (bool, error) {
	changed := false
	for _, c := range m.Computations {
		for _, in := range append([]*ir.Instruction(nil), c.Instructions...) {
			if s.simplify(c, in) {
				changed = true
			}
		}
	}
	return changed, nil
}

func (s AlgebraicSimplifier) simplify(c *ir.Computation, in *ir.Instruction) bool {
	switch in.Op {
	case ir.OpAdd:
		if isZero(in.Operands[1]) && in.Operands[0].Shape.Equal(in.Shape) {
			replaceAndRemove(c, in, in.Operands[0])
			return true
		}
		if isZero(in.Operands[0]) && in.Operands[1].Shape.Equal(in.Shape) {
			replaceAndRemove(c, in, in.Operands[1])
			return true
		}
		return s.maybeSwapOperands(in)

	case ir.OpMultiply:
		if isOne(in.Operands[1]) && in.Operands[0].Shape.Equal(in.Shape) {
			replaceAndRemove(c, in, in.Operands[0])
			return true
		}
		if isOne(in.Operands[0]) && in.Operands[1].Shape.Equal(in.Shape) {
			replaceAndRemove(c, in, in.Operands[1])
			return true
		}
		return s.maybeSwapOperands(in)

	case ir.OpMaximum, ir.OpMinimum:
		if s.foldScalarMinMax(c, in) {
			return true
		}
		return s.maybeSwapOperands(in)

	case ir.OpReshape:
		return s.simplifyReshape(c, in)

	case ir.OpTranspose:
		return s.simplifyTranspose(c, in)

	case ir.OpConvert:
		if in.Shape.Element == in.Operands[0].Shape.Element {
			replaceAndRemove(c, in, in.Operands[0])
			return true
		}

	case ir.OpCopy:
		if !s.Options.IsLayoutSensitive || in.Shape.Equal(in.Operands[0].Shape) {
			replaceAndRemove(c, in, in.Operands[0])
			return true
		}

	case ir.OpPad:
		if isNoopPadding(in.Padding) {
			replaceAndRemove(c, in, in.Operands[0])
			return true
		}

	case ir.OpReduce:
		if s.Options.EnableReduceOfConcat {
			return s.distributeReduceOfConcat(c, in)
		}
	}
	return false
}

// maybeSwapOperands moves a constant left operand to the right on
// commutative operations.
func (s AlgebraicSimplifier) maybeSwapOperands(in *ir.Instruction) bool {
	if !s.Options.EnableOperandSwap {
		return false
	}
	if in.Operands[0].Op == ir.OpConstant && in.Operands[1].Op != ir.OpConstant {
		in.Operands[0], in.Operands[1] = in.Operands[1], in.Operands[0]
		return true
	}
	return false
}

func (s AlgebraicSimplifier) simplifyReshape(c *ir.Computation, in *ir.Instruction) bool {
	operand := in.Operands[0]
	// reshape(reshape(x)) -> reshape(x)
	if operand.Op == ir.OpReshape {
		in.Operands[0] = operand.Operands[0]
		return true
	}
	// Identity reshape.
	if s.shapesMatch(in.Shape, operand.Shape) {
		replaceAndRemove(c, in, operand)
		return true
	}
	return false
}

func (s AlgebraicSimplifier) simplifyTranspose(c *ir.Computation, in *ir.Instruction) bool {
	operand := in.Operands[0]
	// transpose(transpose(x)) -> transpose with composed permutation.
	if operand.Op == ir.OpTranspose {
		composed := make([]int64, len(in.Dimensions))
		for i, d := range in.Dimensions {
			composed[i] = operand.Dimensions[d]
		}
		in.Dimensions = composed
		in.Operands[0] = operand.Operands[0]
		return true
	}
	if isIdentityPermutation(in.Dimensions) && s.shapesMatch(in.Shape, operand.Shape) {
		replaceAndRemove(c, in, operand)
		return true
	}
	// transpose(dot(a, b)) -> dot(transpose(b), transpose(a)) for plain
	// 2-D dots. Produces a non-canonical dot, so gated.
	if s.Options.SupportsNonCanonicalDots &&
		operand.Op == ir.OpDot && len(operand.Dimensions) == 0 &&
		operand.Shape.Rank() == 2 && isSwapPermutation(in.Dimensions) &&
		len(c.Users(operand)) == 1 {
		a, b := operand.Operands[0], operand.Operands[1]
		ta := c.InsertBefore(in, &ir.Instruction{
			Op:         ir.OpTranspose,
			Shape:      ir.MakeShape(b.Shape.Element, b.Shape.Dims[1], b.Shape.Dims[0]),
			Operands:   []*ir.Instruction{b},
			Dimensions: []int64{1, 0},
		})
		tb := c.InsertBefore(in, &ir.Instruction{
			Op:         ir.OpTranspose,
			Shape:      ir.MakeShape(a.Shape.Element, a.Shape.Dims[1], a.Shape.Dims[0]),
			Operands:   []*ir.Instruction{a},
			Dimensions: []int64{1, 0},
		})
		dot := c.InsertBefore(in, &ir.Instruction{
			Op:       ir.OpDot,
			Shape:    in.Shape.Clone(),
			Operands: []*ir.Instruction{ta, tb},
		})
		replaceAndRemove(c, in, dot)
		return true
	}
	return false
}

// foldScalarMinMax folds min/max of scalar constants, honoring the NaN
// propagation option.
func (s AlgebraicSimplifier) foldScalarMinMax(c *ir.Computation, in *ir.Instruction) bool {
	a, b := in.Operands[0], in.Operands[1]
	if a.Op != ir.OpConstant || b.Op != ir.OpConstant ||
		len(a.Literal) != 1 || len(b.Literal) != 1 {
		return false
	}
	x, y := a.Literal[0], b.Literal[0]
	var v float64
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		if !s.Options.MinMaxPropagateNaN {
			// Fast min/max: the device picks an operand; don't guess.
			return false
		}
		v = math.NaN()
	case in.Op == ir.OpMaximum:
		v = math.Max(x, y)
	default:
		v = math.Min(x, y)
	}
	folded := c.InsertBefore(in, &ir.Instruction{
		Op:      ir.OpConstant,
		Shape:   in.Shape.Clone(),
		Literal: []float64{v},
	})
	replaceAndRemove(c, in, folded)
	return true
}

// distributeReduceOfConcat rewrites sum-reduce(concat(a, b)) over the
// concatenation dimension into reduce(a) + reduce(b).
func (s AlgebraicSimplifier) distributeReduceOfConcat(c *ir.Computation, in *ir.Instruction) bool {
	if len(in.Operands) != 2 {
		return false
	}
	concat, init := in.Operands[0], in.Operands[1]
	if concat.Op != ir.OpConcatenate || len(concat.Operands) != 2 || len(concat.Dimensions) != 1 {
		return false
	}
	reduced := false
	for _, d := range in.Dimensions {
		if d == concat.Dimensions[0] {
			reduced = true
		}
	}
	if !reduced {
		return false
	}

	zero := c.InsertBefore(in, &ir.Instruction{
		Op:      ir.OpConstant,
		Shape:   ir.MakeShape(in.Shape.Element),
		Literal: []float64{0},
	})
	left := c.InsertBefore(in, &ir.Instruction{
		Op:         ir.OpReduce,
		Shape:      in.Shape.Clone(),
		Operands:   []*ir.Instruction{concat.Operands[0], init},
		Dimensions: append([]int64(nil), in.Dimensions...),
	})
	right := c.InsertBefore(in, &ir.Instruction{
		Op:         ir.OpReduce,
		Shape:      in.Shape.Clone(),
		Operands:   []*ir.Instruction{concat.Operands[1], zero},
		Dimensions: append([]int64(nil), in.Dimensions...),
	})
	sum := c.InsertBefore(in, &ir.Instruction{
		Op:       ir.OpAdd,
		Shape:    in.Shape.Clone(),
		Operands: []*ir.Instruction{left, right},
	})
	replaceAndRemove(c, in, sum)
	return true
}

// shapesMatch compares shapes with or without layout depending on the
// layout-sensitivity option.
func (s AlgebraicSimplifier) shapesMatch(a, b ir.Shape) bool {
	if s.Options.IsLayoutSensitive {
		return a.Equal(b)
	}
	return a.EqualIgnoringLayout(b)
}

func isOne(in *ir.Instruction) bool {
	if in.Op == ir.OpBroadcast {
		return isOne(in.Operands[0])
	}
	if in.Op != ir.OpConstant || len(in.Literal) == 0 {
		return false
	}
	for _, v := range in.Literal {
		if v != 1 {
			return false
		}
	}
	return true
}

func isNoopPadding(padding []ir.PadDim) bool {
	for _, p := range padding {
		if p.Low != 0 || p.High != 0 || p.Interior != 0 {
			return false
		}
	}
	return true
}

func isIdentityPermutation(perm []int64) bool {
	for i, p := range perm {
		if p != int64(i) {
			return false
		}
	}
	return true
}

func isSwapPermutation(perm []int64) bool {
	return len(perm) == 2 && perm[0] == 1 && perm[1] == 0
}
