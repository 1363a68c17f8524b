package rewrite

import (
	"github.com/cinder-ml/cinder/internal/device"
	"github.com/cinder-ml/cinder/internal/ir"
)

// ConvRewriter rewrites convolution instructions into the generic
// forward-convolution custom-call form the device library expects. The
// call returns a (result, scratch) tuple; users are rewired through a
// get-tuple-element.
type ConvRewriter struct{}

// Name implements pass.Pass.
func (ConvRewriter) Name() string { return "conv-rewriter" }

// Run implements pass.Pass.
func (ConvRewriter) Run(m *ir.Module) (bool, error) {
	changed := false
	for _, c := range m.Computations {
		for _, in := range append([]*ir.Instruction(nil), c.Instructions...) {
			if in.Op != ir.OpConvolution {
				continue
			}
			replaceWithTupleCall(c, in, ConvForwardTarget)
			changed = true
		}
	}
	return changed, nil
}

// FusedConvRewriter fuses conv+bias+relu chains into the fused
// convolution kernel on devices that provide one.
//
// Pattern, anchored at the relu:
//
//	maximum(zeros, add(get-tuple-element(convForward(...)), bias))
//
// becomes convBiasActivationForward(input, kernel, bias). The conv call
// must have no other users, otherwise fusion would duplicate work.
type FusedConvRewriter struct {
	Capability device.Capability
}

// Name implements pass.Pass.
func (FusedConvRewriter) Name() string { return "fused-conv-rewriter" }

// Run implements pass.Pass.
func (r FusedConvRewriter) Run(m *ir.Module) (bool, error) {
	if !r.Capability.FusedConv {
		return false, nil
	}
	changed := false
	for _, c := range m.Computations {
		for _, in := range append([]*ir.Instruction(nil), c.Instructions...) {
			if r.fuseRelu(c, in) {
				changed = true
			}
		}
	}
	return changed, nil
}

func (r FusedConvRewriter) fuseRelu(c *ir.Computation, relu *ir.Instruction) bool {
	if relu.Op != ir.OpMaximum {
		return false
	}
	var add *ir.Instruction
	for _, operand := range relu.Operands {
		if operand.Op == ir.OpAdd {
			add = operand
		} else if !isZero(operand) {
			return false
		}
	}
	if add == nil {
		return false
	}

	var gte, bias *ir.Instruction
	for _, operand := range add.Operands {
		if operand.Op == ir.OpGetTupleElement && operand.TupleIndex == 0 &&
			operand.Operands[0].CustomCallTarget == ConvForwardTarget {
			gte = operand
		} else {
			bias = operand
		}
	}
	if gte == nil || bias == nil {
		return false
	}
	conv := gte.Operands[0]
	if len(c.Users(conv)) != 1 || len(c.Users(gte)) != 1 || len(c.Users(add)) != 1 {
		return false
	}

	fused := c.InsertBefore(relu, &ir.Instruction{
		Op:               ir.OpCustomCall,
		CustomCallTarget: ConvBiasActivationTarget,
		Shape:            conv.Shape.Clone(),
		Operands:         append(append([]*ir.Instruction(nil), conv.Operands...), bias),
		Window:           conv.Window.Clone(),
	})
	result := c.InsertAfter(fused, &ir.Instruction{
		Op:       ir.OpGetTupleElement,
		Shape:    relu.Shape.Clone(),
		Operands: []*ir.Instruction{fused},
	})
	c.ReplaceUses(relu, result)
	c.Remove(relu)
	c.Remove(add)
	c.Remove(gte)
	c.Remove(conv)
	return true
}

// isZero recognizes an all-zero constant, possibly behind a broadcast.
func isZero(in *ir.Instruction) bool {
	if in.Op == ir.OpBroadcast {
		return isZero(in.Operands[0])
	}
	if in.Op != ir.OpConstant {
		return false
	}
	for _, v := range in.Literal {
		if v != 0 {
			return false
		}
	}
	return len(in.Literal) > 0
}
