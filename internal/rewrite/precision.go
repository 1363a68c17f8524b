package rewrite

import (
	"github.com/cinder-ml/cinder/internal/device"
	"github.com/cinder-ml/cinder/internal/ir"
)

// PrecisionSupport answers whether an instruction may keep reduced
// floating point operands and outputs on the current target.
//
// Only convolutions are restricted: every other opcode handles low
// precision in software. Whether convolutions are comes from the device
// catalog, keyed by generation, instead of a constructor-time constant -
// a target without the feature gets its convolutions widened rather than
// silently miscompiled.
type PrecisionSupport struct {
	LowPrecisionConv bool
}

// PrecisionSupportFor derives support from a capability descriptor.
func PrecisionSupportFor(capability device.Capability) PrecisionSupport {
	return PrecisionSupport{LowPrecisionConv: capability.LowPrecisionConv}
}

// SupportsLowPrecisionOperand reports whether the instruction may take a
// reduced floating point operand.
func (s PrecisionSupport) SupportsLowPrecisionOperand(in *ir.Instruction, _ int) bool {
	return in.Op != ir.OpConvolution || s.LowPrecisionConv
}

// SupportsLowPrecisionOutput reports whether the instruction may produce a
// reduced floating point result.
func (s PrecisionSupport) SupportsLowPrecisionOutput(in *ir.Instruction) bool {
	return in.Op != ir.OpConvolution || s.LowPrecisionConv
}

// PrecisionNormalization widens unsupported reduced-precision convolution
// operands and outputs to f32, bracketed by converts so the rest of the
// graph keeps its types.
type PrecisionNormalization struct {
	Support PrecisionSupport
}

// Name implements pass.Pass.
func (PrecisionNormalization) Name() string { return "precision-normalization" }

// Run implements pass.Pass.
func (p PrecisionNormalization) Run(m *ir.Module) (bool, error) {
	changed := false
	for _, c := range m.Computations {
		// Snapshot: the loop inserts converts while walking.
		instructions := append([]*ir.Instruction(nil), c.Instructions...)
		for _, in := range instructions {
			if p.normalizeOperands(c, in) {
				changed = true
			}
			if p.normalizeOutput(c, in) {
				changed = true
			}
		}
	}
	return changed, nil
}

func (p PrecisionNormalization) normalizeOperands(c *ir.Computation, in *ir.Instruction) bool {
	changed := false
	for i, operand := range in.Operands {
		if !operand.Shape.Element.IsLowPrecision() {
			continue
		}
		if p.Support.SupportsLowPrecisionOperand(in, i) {
			continue
		}
		widened := c.InsertBefore(in, &ir.Instruction{
			Op:       ir.OpConvert,
			Shape:    operand.Shape.WithElement(ir.F32),
			Operands: []*ir.Instruction{operand},
		})
		in.Operands[i] = widened
		changed = true
	}
	return changed
}

func (p PrecisionNormalization) normalizeOutput(c *ir.Computation, in *ir.Instruction) bool {
	if !in.Shape.Element.IsLowPrecision() || p.Support.SupportsLowPrecisionOutput(in) {
		return false
	}
	original := in.Shape.Element
	in.Shape = in.Shape.WithElement(ir.F32)
	narrowed := c.InsertAfter(in, &ir.Instruction{
		Op:       ir.OpConvert,
		Shape:    in.Shape.WithElement(original),
		Operands: []*ir.Instruction{in},
	})
	c.ReplaceUses(in, narrowed)
	// ReplaceUses also rewrote the convert's own operand; restore it.
	narrowed.Operands[0] = in
	return true
}
