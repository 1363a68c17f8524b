package rewrite

import "github.com/cinder-ml/cinder/internal/ir"

// Device library entry points produced by the canonicalization rewrites.
// Code generation lowers these custom-call targets to library kernels.
const (
	// ConvForwardTarget is the plain forward-convolution kernel. The call
	// returns a (result, scratch) tuple so buffer assignment can attach
	// workspace memory.
	ConvForwardTarget = "__cinder$convForward"

	// ConvBiasActivationTarget is the fused conv+bias+relu kernel.
	ConvBiasActivationTarget = "__cinder$convBiasActivationForward"

	// CholeskyTarget is the dense Cholesky factorization solver kernel.
	CholeskyTarget = "__cinder$cholesky"

	// TriangularSolveTarget is the triangular-solve solver kernel. Also a
	// (result, scratch) tuple, for the same workspace reason.
	TriangularSolveTarget = "__cinder$triangularSolve"

	// AttentionTarget is the fused multi-headed attention kernel.
	AttentionTarget = "__cinder$fusedAttention"
)

// IsConvCustomCall reports whether the instruction is one of the
// convolution custom calls introduced by canonicalization.
func IsConvCustomCall(in *ir.Instruction) bool {
	if in.Op != ir.OpCustomCall {
		return false
	}
	return in.CustomCallTarget == ConvForwardTarget ||
		in.CustomCallTarget == ConvBiasActivationTarget
}

// scratchShape is the placeholder workspace attached to library calls
// until buffer assignment sizes it.
func scratchShape() ir.Shape {
	return ir.MakeShape(ir.S32, 0)
}
