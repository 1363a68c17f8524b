package rewrite

import "github.com/cinder-ml/cinder/internal/ir"

// ReshapeDecomposer splits a reshape between non-default layouts into a
// copy to default layout, a default-layout reshape, and a copy back. The
// attention matcher only understands default-layout reshapes; decomposing
// first isolates the layout changes into copies it can see past.
type ReshapeDecomposer struct{}

// Name implements pass.Pass.
func (ReshapeDecomposer) Name() string { return "reshape-decomposer" }

// Run implements pass.Pass.
func (ReshapeDecomposer) Run(m *ir.Module) (bool, error) {
	changed := false
	for _, c := range m.Computations {
		for _, in := range append([]*ir.Instruction(nil), c.Instructions...) {
			if in.Op != ir.OpReshape {
				continue
			}
			operand := in.Operands[0]
			inDefault := operand.Shape.HasDefaultLayout()
			outDefault := in.Shape.HasDefaultLayout()
			if inDefault && outDefault {
				continue
			}

			source := operand
			if !inDefault {
				source = c.InsertBefore(in, &ir.Instruction{
					Op:       ir.OpCopy,
					Shape:    defaultLayoutShape(operand.Shape),
					Operands: []*ir.Instruction{operand},
				})
			}
			reshaped := c.InsertBefore(in, &ir.Instruction{
				Op:       ir.OpReshape,
				Shape:    defaultLayoutShape(in.Shape),
				Operands: []*ir.Instruction{source},
			})
			result := reshaped
			if !outDefault {
				result = c.InsertBefore(in, &ir.Instruction{
					Op:       ir.OpCopy,
					Shape:    in.Shape.Clone(),
					Operands: []*ir.Instruction{reshaped},
				})
			}
			replaceAndRemove(c, in, result)
			changed = true
		}
	}
	return changed, nil
}

// LayoutNormalization rewrites instructions carrying non-default layouts
// into default-layout form, materializing the assigned layout as an
// explicit copy on the output. Parameters keep their layout: their shape
// is part of the module's calling convention.
type LayoutNormalization struct{}

// Name implements pass.Pass.
func (LayoutNormalization) Name() string { return "layout-normalization" }

// Run implements pass.Pass.
func (LayoutNormalization) Run(m *ir.Module) (bool, error) {
	changed := false
	for _, c := range m.Computations {
		for _, in := range append([]*ir.Instruction(nil), c.Instructions...) {
			if in.Op == ir.OpParameter || in.Op == ir.OpCopy || in.Shape.IsTuple() {
				continue
			}
			if in.Shape.HasDefaultLayout() {
				continue
			}
			assigned := in.Shape.Clone()
			in.Shape = defaultLayoutShape(in.Shape)
			restored := c.InsertAfter(in, &ir.Instruction{
				Op:       ir.OpCopy,
				Shape:    assigned,
				Operands: []*ir.Instruction{in},
			})
			c.ReplaceUses(in, restored)
			// ReplaceUses also rewrote the copy's own operand; restore it.
			restored.Operands[0] = in
			changed = true
		}
	}
	return changed, nil
}

func defaultLayoutShape(s ir.Shape) ir.Shape {
	c := s.Clone()
	c.Layout = ir.DefaultLayout(c.Rank())
	return c
}
