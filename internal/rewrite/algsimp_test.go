package rewrite_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinder-ml/cinder/internal/ir"
	"github.com/cinder-ml/cinder/internal/rewrite"
)

func singleComputation(t *testing.T) (*ir.Module, *ir.Computation) {
	t.Helper()
	m := ir.NewModule("simp")
	c := ir.NewComputation("main")
	m.AddComputation(c)
	return m, c
}

func defaultSimplifier() rewrite.AlgebraicSimplifier {
	return rewrite.AlgebraicSimplifier{Options: rewrite.DefaultSimplifierOptions()}
}

func TestSimplifier_AddZero(t *testing.T) {
	m, c := singleComputation(t)
	p0 := c.Add(&ir.Instruction{Name: "p0", Op: ir.OpParameter, Shape: ir.MakeShape(ir.F32, 4)})
	zero := c.Add(&ir.Instruction{Op: ir.OpConstant, Shape: ir.MakeShape(ir.F32), Literal: []float64{0}})
	zeros := c.Add(&ir.Instruction{Op: ir.OpBroadcast, Shape: ir.MakeShape(ir.F32, 4), Operands: []*ir.Instruction{zero}})
	c.Root = c.Add(&ir.Instruction{Op: ir.OpAdd, Shape: ir.MakeShape(ir.F32, 4), Operands: []*ir.Instruction{p0, zeros}})

	changed, err := defaultSimplifier().Run(m)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Same(t, p0, c.Root)

	changed, err = defaultSimplifier().Run(m)
	require.NoError(t, err)
	assert.False(t, changed, "nothing left to simplify")
}

func TestSimplifier_MultiplyByOne(t *testing.T) {
	m, c := singleComputation(t)
	p0 := c.Add(&ir.Instruction{Name: "p0", Op: ir.OpParameter, Shape: ir.MakeShape(ir.F32, 4)})
	one := c.Add(&ir.Instruction{Op: ir.OpConstant, Shape: ir.MakeShape(ir.F32, 4), Literal: []float64{1, 1, 1, 1}})
	c.Root = c.Add(&ir.Instruction{Op: ir.OpMultiply, Shape: ir.MakeShape(ir.F32, 4), Operands: []*ir.Instruction{one, p0}})

	changed, err := defaultSimplifier().Run(m)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Same(t, p0, c.Root)
}

func TestSimplifier_OperandSwapCanonicalization(t *testing.T) {
	m, c := singleComputation(t)
	p0 := c.Add(&ir.Instruction{Name: "p0", Op: ir.OpParameter, Shape: ir.MakeShape(ir.F32, 4)})
	k := c.Add(&ir.Instruction{Op: ir.OpConstant, Shape: ir.MakeShape(ir.F32, 4), Literal: []float64{2, 2, 2, 2}})
	add := c.Add(&ir.Instruction{Op: ir.OpAdd, Shape: ir.MakeShape(ir.F32, 4), Operands: []*ir.Instruction{k, p0}})
	c.Root = add

	changed, err := defaultSimplifier().Run(m)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Same(t, p0, add.Operands[0], "constant moved to the right")
	assert.Same(t, k, add.Operands[1])

	s := rewrite.AlgebraicSimplifier{}
	add.Operands[0], add.Operands[1] = add.Operands[1], add.Operands[0]
	changed, err = s.Run(m)
	require.NoError(t, err)
	assert.False(t, changed, "swap rule is off by default options zero value")
}

func TestSimplifier_ReshapeOfReshape(t *testing.T) {
	m, c := singleComputation(t)
	p0 := c.Add(&ir.Instruction{Name: "p0", Op: ir.OpParameter, Shape: ir.MakeShape(ir.F32, 2, 3)})
	r1 := c.Add(&ir.Instruction{Op: ir.OpReshape, Shape: ir.MakeShape(ir.F32, 6), Operands: []*ir.Instruction{p0}})
	r2 := c.Add(&ir.Instruction{Op: ir.OpReshape, Shape: ir.MakeShape(ir.F32, 3, 2), Operands: []*ir.Instruction{r1}})
	c.Root = r2

	changed, err := defaultSimplifier().Run(m)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Same(t, p0, r2.Operands[0], "inner reshape bypassed")
}

func TestSimplifier_IdentityReshape(t *testing.T) {
	m, c := singleComputation(t)
	p0 := c.Add(&ir.Instruction{Name: "p0", Op: ir.OpParameter, Shape: ir.MakeShape(ir.F32, 2, 3)})
	c.Root = c.Add(&ir.Instruction{Op: ir.OpReshape, Shape: ir.MakeShape(ir.F32, 2, 3), Operands: []*ir.Instruction{p0}})

	changed, err := defaultSimplifier().Run(m)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Same(t, p0, c.Root)
}

func TestSimplifier_TransposeComposition(t *testing.T) {
	m, c := singleComputation(t)
	p0 := c.Add(&ir.Instruction{Name: "p0", Op: ir.OpParameter, Shape: ir.MakeShape(ir.F32, 2, 3)})
	t1 := c.Add(&ir.Instruction{Op: ir.OpTranspose, Shape: ir.MakeShape(ir.F32, 3, 2), Operands: []*ir.Instruction{p0}, Dimensions: []int64{1, 0}})
	t2 := c.Add(&ir.Instruction{Op: ir.OpTranspose, Shape: ir.MakeShape(ir.F32, 2, 3), Operands: []*ir.Instruction{t1}, Dimensions: []int64{1, 0}})
	c.Root = t2

	// First sweep composes the permutations; the identity transpose that
	// results cancels on the next sweep.
	changed, err := defaultSimplifier().Run(m)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []int64{0, 1}, t2.Dimensions)
	assert.Same(t, p0, t2.Operands[0])

	changed, err = defaultSimplifier().Run(m)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Same(t, p0, c.Root)
}

func TestSimplifier_TransposeOfDot(t *testing.T) {
	build := func() (*ir.Module, *ir.Computation) {
		m, c := singleComputation(t)
		a := c.Add(&ir.Instruction{Name: "a", Op: ir.OpParameter, Shape: ir.MakeShape(ir.F32, 2, 3)})
		b := c.Add(&ir.Instruction{Name: "b", Op: ir.OpParameter, Parameter: 1, Shape: ir.MakeShape(ir.F32, 3, 4)})
		dot := c.Add(&ir.Instruction{Op: ir.OpDot, Shape: ir.MakeShape(ir.F32, 2, 4), Operands: []*ir.Instruction{a, b}})
		c.Root = c.Add(&ir.Instruction{Op: ir.OpTranspose, Shape: ir.MakeShape(ir.F32, 4, 2), Operands: []*ir.Instruction{dot}, Dimensions: []int64{1, 0}})
		return m, c
	}

	m, c := build()
	changed, err := defaultSimplifier().Run(m)
	require.NoError(t, err)
	assert.True(t, changed)
	root := c.Root
	require.Equal(t, ir.OpDot, root.Op)
	assert.Equal(t, ir.OpTranspose, root.Operands[0].Op)
	assert.Equal(t, "b", root.Operands[0].Operands[0].Name, "operands swapped and transposed")
	assert.Equal(t, "a", root.Operands[1].Operands[0].Name)

	m, c = build()
	gated := rewrite.AlgebraicSimplifier{Options: rewrite.SimplifierOptions{}}
	changed, err = gated.Run(m)
	require.NoError(t, err)
	assert.False(t, changed, "rule requires non-canonical dot support")
	assert.Equal(t, ir.OpTranspose, c.Root.Op)
}

func TestSimplifier_MinMaxNaN(t *testing.T) {
	build := func() (*ir.Module, *ir.Computation) {
		m, c := singleComputation(t)
		a := c.Add(&ir.Instruction{Op: ir.OpConstant, Shape: ir.MakeShape(ir.F32), Literal: []float64{2}})
		b := c.Add(&ir.Instruction{Op: ir.OpConstant, Shape: ir.MakeShape(ir.F32), Literal: []float64{math.NaN()}})
		c.Root = c.Add(&ir.Instruction{Op: ir.OpMaximum, Shape: ir.MakeShape(ir.F32), Operands: []*ir.Instruction{a, b}})
		return m, c
	}

	m, c := build()
	fast := rewrite.AlgebraicSimplifier{}
	changed, err := fast.Run(m)
	require.NoError(t, err)
	assert.False(t, changed, "fast min/max leaves NaN operands alone")
	assert.Equal(t, ir.OpMaximum, c.Root.Op)

	m, c = build()
	slow := rewrite.AlgebraicSimplifier{Options: rewrite.SimplifierOptions{MinMaxPropagateNaN: true}}
	changed, err = slow.Run(m)
	require.NoError(t, err)
	assert.True(t, changed)
	require.Equal(t, ir.OpConstant, c.Root.Op)
	assert.True(t, math.IsNaN(c.Root.Literal[0]))
}

func TestSimplifier_NoopPad(t *testing.T) {
	m, c := singleComputation(t)
	p0 := c.Add(&ir.Instruction{Name: "p0", Op: ir.OpParameter, Shape: ir.MakeShape(ir.F32, 4)})
	zero := c.Add(&ir.Instruction{Op: ir.OpConstant, Shape: ir.MakeShape(ir.F32), Literal: []float64{0}})
	c.Root = c.Add(&ir.Instruction{
		Op:       ir.OpPad,
		Shape:    ir.MakeShape(ir.F32, 4),
		Operands: []*ir.Instruction{p0, zero},
		Padding:  []ir.PadDim{{}},
	})

	changed, err := defaultSimplifier().Run(m)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Same(t, p0, c.Root)
}

func TestSimplifier_LayoutSensitiveCopy(t *testing.T) {
	m, c := singleComputation(t)
	p0 := c.Add(&ir.Instruction{Name: "p0", Op: ir.OpParameter, Shape: ir.Shape{Element: ir.F32, Dims: []int64{2, 3}, Layout: []int{0, 1}}})
	copyOut := c.Add(&ir.Instruction{Op: ir.OpCopy, Shape: ir.MakeShape(ir.F32, 2, 3), Operands: []*ir.Instruction{p0}})
	c.Root = copyOut

	sensitive := rewrite.AlgebraicSimplifier{Options: rewrite.SimplifierOptions{IsLayoutSensitive: true}}
	changed, err := sensitive.Run(m)
	require.NoError(t, err)
	assert.False(t, changed, "layout-changing copy is preserved")

	changed, err = defaultSimplifier().Run(m)
	require.NoError(t, err)
	assert.True(t, changed, "layout-insensitive run removes it")
	assert.Same(t, p0, c.Root)
}

func TestSimplifier_ReduceOfConcat(t *testing.T) {
	m, c := singleComputation(t)
	a := c.Add(&ir.Instruction{Name: "a", Op: ir.OpParameter, Shape: ir.MakeShape(ir.F32, 4)})
	b := c.Add(&ir.Instruction{Name: "b", Op: ir.OpParameter, Parameter: 1, Shape: ir.MakeShape(ir.F32, 4)})
	concat := c.Add(&ir.Instruction{Op: ir.OpConcatenate, Shape: ir.MakeShape(ir.F32, 8), Operands: []*ir.Instruction{a, b}, Dimensions: []int64{0}})
	zero := c.Add(&ir.Instruction{Op: ir.OpConstant, Shape: ir.MakeShape(ir.F32), Literal: []float64{0}})
	c.Root = c.Add(&ir.Instruction{Op: ir.OpReduce, Shape: ir.MakeShape(ir.F32), Operands: []*ir.Instruction{concat, zero}, Dimensions: []int64{0}})

	changed, err := defaultSimplifier().Run(m)
	require.NoError(t, err)
	assert.True(t, changed)

	root := c.Root
	require.Equal(t, ir.OpAdd, root.Op)
	assert.Equal(t, ir.OpReduce, root.Operands[0].Op)
	assert.Equal(t, ir.OpReduce, root.Operands[1].Op)
	assert.Same(t, a, root.Operands[0].Operands[0])
	assert.Same(t, b, root.Operands[1].Operands[0])
}
