package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinder-ml/cinder/internal/codegen"
	"github.com/cinder-ml/cinder/internal/compiler"
	"github.com/cinder-ml/cinder/internal/device"
	"github.com/cinder-ml/cinder/internal/ir"
	"github.com/cinder-ml/cinder/internal/pass"
	"github.com/cinder-ml/cinder/internal/rewrite"
	"github.com/cinder-ml/cinder/internal/testutil"
)

// convModule builds conv(input, kernel) with symmetric window padding.
func convModule(t *testing.T) *ir.Module {
	t.Helper()
	m := ir.NewModule("conv_main")
	c := ir.NewComputation("main")
	m.AddComputation(c)

	input := c.Add(&ir.Instruction{Name: "input", Op: ir.OpParameter, Shape: ir.MakeShape(ir.F32, 1, 8, 8, 4)})
	kernel := c.Add(&ir.Instruction{Name: "kernel", Op: ir.OpParameter, Parameter: 1, Shape: ir.MakeShape(ir.F32, 3, 3, 4, 4)})
	c.Root = c.Add(&ir.Instruction{
		Name:     "conv",
		Op:       ir.OpConvolution,
		Shape:    ir.MakeShape(ir.F32, 1, 8, 8, 4),
		Operands: []*ir.Instruction{input, kernel},
		Window: &ir.Window{
			Sizes:   []int64{3, 3},
			Strides: []int64{1, 1},
			PadLow:  []int64{1, 1},
			PadHigh: []int64{1, 1},
		},
	})
	return m
}

func TestConvCanonicalization_ProducesLegalCalls(t *testing.T) {
	c := compiler.New()
	m := convModule(t)

	require.NoError(t, c.OptimizeConvCanonicalization(m))

	root := m.Entry().Root
	require.Equal(t, ir.OpGetTupleElement, root.Op)
	call := root.Operands[0]
	assert.Equal(t, rewrite.ConvForwardTarget, call.CustomCallTarget)
	assert.Equal(t, []int64{0, 0}, call.Window.PadLow, "padding was legalized away")
	assert.Equal(t, ir.OpPad, call.Operands[0].Op, "padding is explicit on the input")
	require.NoError(t, ir.Verify(m))
}

func TestConvCanonicalization_Idempotent(t *testing.T) {
	c := compiler.New()
	m := convModule(t)

	require.NoError(t, c.OptimizeConvCanonicalization(m))
	first := ir.Fingerprint(m)

	require.NoError(t, c.OptimizeConvCanonicalization(m))
	assert.Equal(t, first, ir.Fingerprint(m), "second run is a structural no-op")
}

func TestConvCanonicalization_ReportsFailingPass(t *testing.T) {
	c := compiler.New()
	m := ir.NewModule("no_entry")

	err := c.OptimizeConvCanonicalization(m)
	require.Error(t, err)
	assert.True(t, pass.IsVerifyFailed(err))

	var pe *pass.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "conv-canonicalization", pe.Pipeline)
	assert.Equal(t, "verifier", pe.Pass)
}

func TestConvCanonicalization_ObserverSeesEverySeq(t *testing.T) {
	rec := &testutil.Recorder{}
	c := compiler.New(compiler.WithObserver(rec))

	require.NoError(t, c.OptimizeConvCanonicalization(convModule(t)))

	names := rec.PassNames()
	assert.Contains(t, names, "verifier")
	assert.Contains(t, names, "conv-rewriter")
	assert.Contains(t, names, "conv-padding-legalization")
	assert.Contains(t, names, "constant-folding")
	assert.Less(t,
		indexOf(t, names, "conv-rewriter"),
		indexOf(t, names, "conv-padding-legalization"),
		"rewriting precedes legalization")
}

func indexOf(t *testing.T, names []string, name string) int {
	t.Helper()
	for i, n := range names {
		if n == name {
			return i
		}
	}
	t.Fatalf("pass %s not observed", name)
	return -1
}

// recordingBase captures the module state the base pipeline sees.
type recordingBase struct {
	calls                 int
	sawAttentionCall      bool
	sawRawTriangularSolve bool
}

func (b *recordingBase) RunPostLayoutAssignment(m *ir.Module, _ device.Executor, _ compiler.CompileOptions, _ compiler.TargetConfig, _ compiler.Pool) error {
	b.calls++
	for _, in := range m.Entry().Instructions {
		if in.CustomCallTarget == rewrite.AttentionTarget {
			b.sawAttentionCall = true
		}
		if in.Op == ir.OpTriangularSolve {
			b.sawRawTriangularSolve = true
		}
	}
	return nil
}

// postLayoutModule chains attention into a triangular solve.
func postLayoutModule(t *testing.T) *ir.Module {
	t.Helper()
	m := ir.NewModule("post_layout")
	c := ir.NewComputation("main")
	m.AddComputation(c)

	q := c.Add(&ir.Instruction{Name: "q", Op: ir.OpParameter, Shape: ir.MakeShape(ir.F32, 8, 8)})
	k := c.Add(&ir.Instruction{Name: "k", Op: ir.OpParameter, Parameter: 1, Shape: ir.MakeShape(ir.F32, 8, 8)})
	v := c.Add(&ir.Instruction{Name: "v", Op: ir.OpParameter, Parameter: 2, Shape: ir.MakeShape(ir.F32, 8, 8)})
	a := c.Add(&ir.Instruction{Name: "a", Op: ir.OpParameter, Parameter: 3, Shape: ir.MakeShape(ir.F32, 8, 8)})

	scores := c.Add(&ir.Instruction{Op: ir.OpDot, Shape: ir.MakeShape(ir.F32, 8, 8), Operands: []*ir.Instruction{q, k}})
	exp := c.Add(&ir.Instruction{Op: ir.OpExp, Shape: ir.MakeShape(ir.F32, 8, 8), Operands: []*ir.Instruction{scores}})
	zero := c.Add(&ir.Instruction{Op: ir.OpConstant, Shape: ir.MakeShape(ir.F32), Literal: []float64{0}})
	sum := c.Add(&ir.Instruction{Op: ir.OpReduce, Shape: ir.MakeShape(ir.F32, 8), Operands: []*ir.Instruction{exp, zero}, Dimensions: []int64{1}})
	norm := c.Add(&ir.Instruction{Op: ir.OpBroadcast, Shape: ir.MakeShape(ir.F32, 8, 8), Operands: []*ir.Instruction{sum}, Dimensions: []int64{0}})
	weights := c.Add(&ir.Instruction{Op: ir.OpDivide, Shape: ir.MakeShape(ir.F32, 8, 8), Operands: []*ir.Instruction{exp, norm}})
	attn := c.Add(&ir.Instruction{Op: ir.OpDot, Shape: ir.MakeShape(ir.F32, 8, 8), Operands: []*ir.Instruction{weights, v}})
	c.Root = c.Add(&ir.Instruction{
		Name:     "solve",
		Op:       ir.OpTriangularSolve,
		Shape:    ir.MakeShape(ir.F32, 8, 8),
		Operands: []*ir.Instruction{a, attn},
		Lower:    true,
	})
	return m
}

func TestPostLayoutAssignment_Orchestration(t *testing.T) {
	base := &recordingBase{}
	c := compiler.New(compiler.WithBasePipeline(base))
	m := postLayoutModule(t)
	exec := &device.StaticExecutor{DeviceName: "test", Cap: device.Capability{FusedAttention: true}}

	require.NoError(t, c.OptimizePostLayoutAssignment(m, exec, compiler.CompileOptions{}, nil))

	assert.Equal(t, 1, base.calls)
	assert.True(t, base.sawAttentionCall, "attention fused before the base pipeline ran")
	assert.True(t, base.sawRawTriangularSolve, "triangular solve still raw when the base pipeline ran")

	solve := m.Entry().Root
	require.Equal(t, ir.OpGetTupleElement, solve.Op)
	assert.Equal(t, rewrite.TriangularSolveTarget, solve.Operands[0].CustomCallTarget,
		"triangular solve rewritten after the base pipeline")
	require.NoError(t, ir.Verify(m))
}

func TestPostLayoutAssignment_FusionToggle(t *testing.T) {
	base := &recordingBase{}
	c := compiler.New(compiler.WithBasePipeline(base))
	m := postLayoutModule(t)
	m.Config.Debug.EnableAttentionFusion = false
	exec := &device.StaticExecutor{DeviceName: "test", Cap: device.Capability{FusedAttention: true}}

	require.NoError(t, c.OptimizePostLayoutAssignment(m, exec, compiler.CompileOptions{}, nil))
	assert.False(t, base.sawAttentionCall, "pre-pipeline disabled by configuration")
}

func TestPostLayoutAssignment_DotMerging(t *testing.T) {
	c := compiler.New()
	m := ir.NewModule("batched_dot")
	comp := ir.NewComputation("main")
	m.AddComputation(comp)
	m.Config.Debug.EnableAttentionFusion = false

	a := comp.Add(&ir.Instruction{Name: "a", Op: ir.OpParameter, Shape: ir.MakeShape(ir.F32, 2, 3, 4, 5)})
	b := comp.Add(&ir.Instruction{Name: "b", Op: ir.OpParameter, Parameter: 1, Shape: ir.MakeShape(ir.F32, 2, 3, 5, 6)})
	comp.Root = comp.Add(&ir.Instruction{
		Op:         ir.OpDot,
		Shape:      ir.MakeShape(ir.F32, 2, 3, 4, 6),
		Operands:   []*ir.Instruction{a, b},
		Dimensions: []int64{2},
	})

	exec := &device.StaticExecutor{DeviceName: "test"}
	require.NoError(t, c.OptimizePostLayoutAssignment(m, exec, compiler.CompileOptions{}, nil))

	dots := 0
	for _, in := range comp.Instructions {
		if in.Op == ir.OpDot {
			dots++
			assert.Equal(t, []int64{1}, in.Dimensions, "batch dimensions merged")
		}
	}
	assert.Equal(t, 1, dots)
}

// Parseable but structurally invalid dots must fail validation up front
// and leave the post-layout rewrites untouched rather than crash them.
func TestPostLayoutAssignment_SurvivesMalformedDots(t *testing.T) {
	texts := map[string]string{
		"one operand": `module m {
  entry main {
    p0 = f32[4,4] parameter(0)
    ROOT d = f32[4,4] dot(p0)
  }
}
`,
		"batch count beyond rank": `module m {
  entry main {
    a = f32[4,4] parameter(0)
    b = f32[4,4] parameter(1)
    ROOT d = f32[4,4] dot(a, b), dimensions={5}
  }
}
`,
	}
	for name, text := range texts {
		t.Run(name, func(t *testing.T) {
			m, err := ir.Parse(text)
			require.NoError(t, err)
			require.Error(t, ir.Verify(m))

			c := compiler.New()
			exec := &device.StaticExecutor{DeviceName: "test", Cap: device.Capability{FusedAttention: true}}
			before := ir.Print(m)
			require.NoError(t, c.OptimizePostLayoutAssignment(m, exec, compiler.CompileOptions{}, nil))
			assert.Equal(t, before, ir.Print(m), "malformed dot left alone")
		})
	}
}

// failingGenerator makes codegen error paths observable.
type failingGenerator struct{}

func (failingGenerator) Generate(*ir.Module, device.Capability, codegen.Options) ([]byte, error) {
	return nil, assert.AnError
}

func TestCompileTargetBinary_CodegenErrorPropagates(t *testing.T) {
	c := compiler.New(compiler.WithGenerator(failingGenerator{}))
	m := convModule(t)

	_, err := c.CompileTargetBinary(m.Config, m, device.Capability{}, false, m, compiler.CompileOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}
