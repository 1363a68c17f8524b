package rewrite

import (
	"github.com/cinder-ml/cinder/internal/device"
	"github.com/cinder-ml/cinder/internal/ir"
)

// AttentionFusion matches a scaled-dot-product attention body and replaces
// it with the fused attention kernel. The match is anchored at the output
// dot and walks back through the softmax:
//
//	scores  = dot(q, k)
//	weights = divide(exp(scores), broadcast(reduce(exp(scores), zero)))
//	out     = dot(weights, v)
//
// becomes fusedAttention(q, k, v). Every interior value must have a single
// user; a reused softmax would otherwise be computed twice.
//
// The kernel exists only on devices reporting fused attention support; on
// anything older the pass is a no-op and the unfused graph runs as is.
type AttentionFusion struct {
	Capability device.Capability
}

// Name implements pass.Pass.
func (AttentionFusion) Name() string { return "attention-fusion" }

// Run implements pass.Pass.
func (p AttentionFusion) Run(m *ir.Module) (bool, error) {
	if !p.Capability.FusedAttention {
		return false, nil
	}
	changed := false
	for _, c := range m.Computations {
		for _, in := range append([]*ir.Instruction(nil), c.Instructions...) {
			if p.fuse(c, in) {
				changed = true
			}
		}
	}
	return changed, nil
}

func (p AttentionFusion) fuse(c *ir.Computation, out *ir.Instruction) bool {
	if out.Op != ir.OpDot || len(out.Operands) != 2 {
		return false
	}
	weights, v := out.Operands[0], out.Operands[1]
	if weights.Op != ir.OpDivide || len(c.Users(weights)) != 1 {
		return false
	}

	exp, norm := weights.Operands[0], weights.Operands[1]
	if exp.Op != ir.OpExp || norm.Op != ir.OpBroadcast || len(norm.Operands) != 1 {
		return false
	}
	// The exponential feeds both the numerator and the reduction.
	if len(c.Users(exp)) != 2 || len(c.Users(norm)) != 1 {
		return false
	}
	sum := norm.Operands[0]
	if sum.Op != ir.OpReduce || len(sum.Operands) != 2 ||
		sum.Operands[0] != exp || !isZero(sum.Operands[1]) ||
		len(c.Users(sum)) != 1 {
		return false
	}

	scores := exp.Operands[0]
	if scores.Op != ir.OpDot || len(scores.Operands) != 2 || len(c.Users(scores)) != 1 {
		return false
	}
	q, k := scores.Operands[0], scores.Operands[1]

	fused := c.InsertBefore(out, &ir.Instruction{
		Op:               ir.OpCustomCall,
		CustomCallTarget: AttentionTarget,
		Shape:            ir.MakeTupleShape(out.Shape.Clone(), scratchShape()),
		Operands:         []*ir.Instruction{q, k, v},
	})
	result := c.InsertAfter(fused, &ir.Instruction{
		Op:       ir.OpGetTupleElement,
		Shape:    out.Shape.Clone(),
		Operands: []*ir.Instruction{fused},
	})
	c.ReplaceUses(out, result)
	for _, dead := range []*ir.Instruction{out, weights, norm, sum, exp, scores} {
		c.Remove(dead)
	}
	return true
}
