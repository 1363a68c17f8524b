package compiler

import (
	"fmt"

	"github.com/cinder-ml/cinder/internal/device"
	"github.com/cinder-ml/cinder/internal/ir"
	"github.com/cinder-ml/cinder/internal/pass"
	"github.com/cinder-ml/cinder/internal/rewrite"
)

// convSimplifierOptions is the simplifier configuration used throughout
// convolution canonicalization: operand swapping and the reduce-of-concat
// rewrite are off because both would disturb the convolution-specific
// shapes the rewriters just produced.
func convSimplifierOptions() rewrite.SimplifierOptions {
	opts := rewrite.DefaultSimplifierOptions()
	opts.EnableOperandSwap = false
	opts.EnableReduceOfConcat = false
	return opts
}

// OptimizeConvCanonicalization rewrites the module's convolutions into
// the canonical device custom-call form and legalizes their padding. The
// composition is fixed:
//
//	verify, precision normalization, solver expansion, conv rewriting,
//	fused-conv rewriting, padding legalization, inlining and tuple
//	cleanup, one simplifier sweep, the reshape-motion fixed point, the
//	convert-motion fixed point, constant folding.
//
// A failing step aborts with the offending pass identified; the module is
// left partially transformed, never rolled back.
func (c *Compiler) OptimizeConvCanonicalization(m *ir.Module) error {
	target := m.Target
	maxIters := m.Config.Debug.MaxFixedPointIterations
	simplifier := rewrite.AlgebraicSimplifier{Options: convSimplifierOptions()}

	reshapeMotion := pass.Fix(
		pass.NewPipeline("reshape-motion", c.pipelineOptions()...).Add(
			rewrite.ReshapeMover{Options: rewrite.ReshapeMoverOptions{ReshapeOf1DBroadcastIsCheap: true}},
			simplifier,
		), maxIters)
	convertMotion := pass.Fix(
		pass.NewPipeline("convert-motion", c.pipelineOptions()...).Add(
			rewrite.ConvertMover{},
			simplifier,
		), maxIters)

	p := pass.NewPipeline("conv-canonicalization", c.pipelineOptions()...).Add(
		rewrite.Verifier{},
		rewrite.PrecisionNormalization{Support: rewrite.PrecisionSupportFor(target)},
		rewrite.SolverExpander{},
		rewrite.ConvRewriter{},
		rewrite.FusedConvRewriter{Capability: target},
		rewrite.ConvPaddingLegalization{},
		rewrite.CallInliner{},
		rewrite.TupleSimplifier{},
		simplifier,
		reshapeMotion,
		convertMotion,
		rewrite.ConstantFolding{},
	)

	if _, err := p.Run(m); err != nil {
		return fmt.Errorf("conv canonicalization of %s: %w", m.Name, err)
	}
	return nil
}

// layoutSimplifierOptions is the layout-sensitive simplifier used around
// attention fusion. Non-canonical dots are disallowed because the base
// pipeline's dot rewriter requires canonical form, and NaN propagation
// through min/max follows the fast-min-max setting.
func layoutSimplifierOptions(debug ir.DebugOptions) rewrite.SimplifierOptions {
	return rewrite.SimplifierOptions{
		IsLayoutSensitive:  true,
		MinMaxPropagateNaN: !debug.EnableFastMinMax,
	}
}

// OptimizePostLayoutAssignment performs the layout-sensitive rewrites
// around the shared base pipeline:
//
//	attention-fusion pre-pipeline (gated by configuration, run once),
//	dot dimension merging and constant folding, the base pipeline
//	delegation, then triangular-solve rewriting.
//
// Dot merging and the pre-pipeline must precede the base pipeline, which
// depends on their normalized form; triangular-solve rewriting must
// follow it because it depends on finalized layouts.
func (c *Compiler) OptimizePostLayoutAssignment(m *ir.Module, exec device.Executor, opts CompileOptions, pool Pool) error {
	debug := m.Config.Debug

	if debug.EnableAttentionFusion {
		simplifier := rewrite.AlgebraicSimplifier{Options: layoutSimplifierOptions(debug)}
		pre := pass.NewPipeline("attention-fusion-pre", c.pipelineOptions()...)
		if debug.NormalizeLayouts {
			pre.Add(rewrite.ReshapeDecomposer{}, rewrite.LayoutNormalization{})
		}
		pre.Add(
			rewrite.CommonSubexpressionElimination{IsLayoutSensitive: true},
			simplifier,
			rewrite.CommonSubexpressionElimination{IsLayoutSensitive: true},
			rewrite.DeadCodeElimination{},
			rewrite.AttentionFusion{Capability: exec.Capability()},
			simplifier,
			rewrite.DeadCodeElimination{},
			rewrite.CommonSubexpressionElimination{IsLayoutSensitive: true},
		)
		if _, err := pre.Run(m); err != nil {
			return fmt.Errorf("attention fusion of %s: %w", m.Name, err)
		}
	}

	merge := pass.NewPipeline("post-layout", c.pipelineOptions()...).Add(
		rewrite.DotDimensionMerger{},
		rewrite.ConstantFolding{},
	)
	if _, err := merge.Run(m); err != nil {
		return fmt.Errorf("post-layout rewrites of %s: %w", m.Name, err)
	}

	if err := c.base.RunPostLayoutAssignment(m, exec, opts, c.target, pool); err != nil {
		return err
	}

	post := pass.NewPipeline("post-base", c.pipelineOptions()...).Add(
		rewrite.TriangularSolveRewriter{},
	)
	if _, err := post.Run(m); err != nil {
		return fmt.Errorf("triangular solve rewriting of %s: %w", m.Name, err)
	}
	return nil
}
