package rewrite

import "github.com/cinder-ml/cinder/internal/ir"

// DeadCodeElimination removes instructions not reachable from a
// computation's root. Parameters are always kept: they are part of the
// computation's signature even when unused.
type DeadCodeElimination struct{}

// Name implements pass.Pass.
func (DeadCodeElimination) Name() string { return "dce" }

// Run implements pass.Pass.
func (DeadCodeElimination) Run(m *ir.Module) (bool, error) {
	changed := false
	for _, c := range m.Computations {
		live := make(map[*ir.Instruction]bool, len(c.Instructions))
		var mark func(in *ir.Instruction)
		mark = func(in *ir.Instruction) {
			if live[in] {
				return
			}
			live[in] = true
			for _, operand := range in.Operands {
				mark(operand)
			}
		}
		if c.Root != nil {
			mark(c.Root)
		}

		kept := c.Instructions[:0]
		for _, in := range c.Instructions {
			if live[in] || in.Op == ir.OpParameter {
				kept = append(kept, in)
				continue
			}
			changed = true
		}
		c.Instructions = kept
	}
	return changed, nil
}
