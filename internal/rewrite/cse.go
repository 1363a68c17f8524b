package rewrite

import (
	"fmt"
	"strings"

	"github.com/cinder-ml/cinder/internal/ir"
)

// CommonSubexpressionElimination deduplicates structurally identical
// instructions within a computation, rewiring later duplicates onto the
// first occurrence. Identity covers opcode, shape, operand pointers, and
// every opcode-specific attribute; parameters are never merged.
type CommonSubexpressionElimination struct {
	// IsLayoutSensitive includes layouts in the identity key. Post-layout
	// pipelines must not merge instructions that differ only in layout.
	IsLayoutSensitive bool
}

// Name implements pass.Pass.
func (CommonSubexpressionElimination) Name() string { return "cse" }

// Run implements pass.Pass.
func (p CommonSubexpressionElimination) Run(m *ir.Module) (bool, error) {
	changed := false
	for _, c := range m.Computations {
		seen := make(map[string]*ir.Instruction, len(c.Instructions))
		for _, in := range append([]*ir.Instruction(nil), c.Instructions...) {
			if in.Op == ir.OpParameter {
				continue
			}
			key := p.key(in)
			if first, ok := seen[key]; ok {
				replaceAndRemove(c, in, first)
				changed = true
				continue
			}
			seen[key] = in
		}
	}
	return changed, nil
}

// key serializes everything that determines an instruction's value.
// Operands are identified by pointer: by the time an instruction is
// visited, equal operands have already been merged.
func (p CommonSubexpressionElimination) key(in *ir.Instruction) string {
	var b strings.Builder
	b.WriteString(in.Op.String())
	b.WriteByte('|')
	b.WriteString(p.shapeKey(in.Shape))
	for _, operand := range in.Operands {
		fmt.Fprintf(&b, "|%p", operand)
	}
	fmt.Fprintf(&b, "|d%v|t%d|l%v|p%v|w%s|b%t|cc%s|ca%p",
		in.Dimensions, in.TupleIndex, in.Literal, in.Padding,
		windowKey(in.Window), in.Lower, in.CustomCallTarget, in.ToApply)
	return b.String()
}

func windowKey(w *ir.Window) string {
	if w == nil {
		return ""
	}
	return fmt.Sprintf("%v", *w)
}

func (p CommonSubexpressionElimination) shapeKey(s ir.Shape) string {
	if p.IsLayoutSensitive {
		return s.String()
	}
	stripped := s.Clone()
	stripLayouts(&stripped)
	return stripped.String()
}

func stripLayouts(s *ir.Shape) {
	s.Layout = nil
	for i := range s.Tuple {
		stripLayouts(&s.Tuple[i])
	}
}
