package rewrite

import "github.com/cinder-ml/cinder/internal/ir"

// ReshapeMoverOptions tunes the reshape mover.
type ReshapeMoverOptions struct {
	// ReshapeOf1DBroadcastIsCheap treats a broadcast of a scalar or 1-D
	// value as free to re-broadcast, letting an elementwise operation with
	// one reshaped operand and one broadcast operand still hoist the
	// reshape.
	ReshapeOf1DBroadcastIsCheap bool
}

// ReshapeMover hoists reshapes past elementwise operations, toward the
// data-flow root:
//
//	op(reshape(a), reshape(b)) -> reshape(op(a, b))
//
// The convolution rewrites introduce reshapes and transposes around the
// new custom calls; moving them together lets the simplifier cancel them.
// One Run is a single sweep; run under a fixed point together with the
// simplifier, which it relies on for cleanup.
type ReshapeMover struct {
	Options ReshapeMoverOptions
}

// Name implements pass.Pass.
func (ReshapeMover) Name() string { return "reshape-mover" }

// Run implements pass.Pass.
func (r ReshapeMover) Run(m *ir.Module) (bool, error) {
	changed := false
	for _, c := range m.Computations {
		for _, in := range append([]*ir.Instruction(nil), c.Instructions...) {
			if r.hoist(c, in) {
				changed = true
			}
		}
	}
	return changed, nil
}

func (r ReshapeMover) hoist(c *ir.Computation, in *ir.Instruction) bool {
	if !in.IsElementwise() || in.Op == ir.OpConvert {
		// Converts belong to the convert mover; hoisting them here would
		// fight it rewrite-by-rewrite.
		return false
	}

	// Every operand must either be a reshape from one common source shape
	// or a cheap re-broadcastable value.
	var sourceShape *ir.Shape
	hasReshape := false
	for _, operand := range in.Operands {
		switch {
		case operand.Op == ir.OpReshape:
			os := operand.Operands[0].Shape
			if sourceShape != nil && !sourceShape.EqualIgnoringLayout(os) {
				return false
			}
			sourceShape = &os
			hasReshape = true
		case r.isCheapOperand(operand):
			// Re-broadcast below.
		default:
			return false
		}
	}
	if !hasReshape {
		return false
	}

	// Build op over pre-reshape operands, then a single reshape on top.
	newOperands := make([]*ir.Instruction, len(in.Operands))
	for i, operand := range in.Operands {
		if operand.Op == ir.OpReshape {
			newOperands[i] = operand.Operands[0]
			continue
		}
		newOperands[i] = c.InsertBefore(in, &ir.Instruction{
			Op:       ir.OpBroadcast,
			Shape:    sourceShape.WithElement(operand.Shape.Element),
			Operands: []*ir.Instruction{broadcastSource(operand)},
		})
	}
	hoisted := c.InsertBefore(in, &ir.Instruction{
		Op:       in.Op,
		Shape:    sourceShape.WithElement(in.Shape.Element),
		Operands: newOperands,
	})
	reshaped := c.InsertBefore(in, &ir.Instruction{
		Op:       ir.OpReshape,
		Shape:    in.Shape.Clone(),
		Operands: []*ir.Instruction{hoisted},
	})
	replaceAndRemove(c, in, reshaped)
	return true
}

// isCheapOperand reports whether an operand can be re-broadcast to the
// pre-reshape shape for free.
func (r ReshapeMover) isCheapOperand(in *ir.Instruction) bool {
	if in.Op == ir.OpConstant && in.Shape.Rank() == 0 {
		return true
	}
	if !r.Options.ReshapeOf1DBroadcastIsCheap {
		return false
	}
	return in.Op == ir.OpBroadcast && in.Operands[0].Shape.Rank() <= 1
}

func broadcastSource(in *ir.Instruction) *ir.Instruction {
	if in.Op == ir.OpBroadcast {
		return in.Operands[0]
	}
	return in
}

// ConvertMover pushes type conversions toward the leaves of the graph:
//
//	convert(reshape(x)) -> reshape(convert(x))
//	convert(broadcast(x)) -> broadcast(convert(x))
//	convert(constant)    -> retyped constant
//
// The reshape mover moves structure the other way; each must reach its
// own fixed point rather than alternate rewrite-by-rewrite, which is why
// the compositions run them in separate fixed-point sub-pipelines.
type ConvertMover struct{}

// Name implements pass.Pass.
func (ConvertMover) Name() string { return "convert-mover" }

// Run implements pass.Pass.
func (cm ConvertMover) Run(m *ir.Module) (bool, error) {
	changed := false
	for _, c := range m.Computations {
		for _, in := range append([]*ir.Instruction(nil), c.Instructions...) {
			if cm.sink(c, in) {
				changed = true
			}
		}
	}
	return changed, nil
}

func (cm ConvertMover) sink(c *ir.Computation, in *ir.Instruction) bool {
	if in.Op != ir.OpConvert {
		return false
	}
	operand := in.Operands[0]
	switch operand.Op {
	case ir.OpConstant:
		// Converting a float literal is value-preserving here: literals
		// are stored as float64 regardless of element type.
		retyped := c.InsertBefore(in, &ir.Instruction{
			Op:      ir.OpConstant,
			Shape:   in.Shape.Clone(),
			Literal: append([]float64(nil), operand.Literal...),
		})
		replaceAndRemove(c, in, retyped)
		return true

	case ir.OpReshape, ir.OpBroadcast:
		if len(c.Users(operand)) != 1 {
			return false
		}
		converted := c.InsertBefore(in, &ir.Instruction{
			Op:       ir.OpConvert,
			Shape:    operand.Operands[0].Shape.WithElement(in.Shape.Element),
			Operands: []*ir.Instruction{operand.Operands[0]},
		})
		moved := c.InsertBefore(in, &ir.Instruction{
			Op:         operand.Op,
			Shape:      in.Shape.Clone(),
			Operands:   []*ir.Instruction{converted},
			Dimensions: append([]int64(nil), operand.Dimensions...),
		})
		replaceAndRemove(c, in, moved)
		return true
	}
	return false
}
