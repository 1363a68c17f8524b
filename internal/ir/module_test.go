package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputation_ReplaceUses(t *testing.T) {
	c := NewComputation("main")
	a := c.Add(&Instruction{Name: "a", Op: OpParameter, Shape: MakeShape(F32, 2)})
	b := c.Add(&Instruction{Name: "b", Op: OpNegate, Shape: MakeShape(F32, 2), Operands: []*Instruction{a}})
	sum := c.Add(&Instruction{Name: "sum", Op: OpAdd, Shape: MakeShape(F32, 2), Operands: []*Instruction{a, b}})
	c.Root = sum

	replacement := c.Add(&Instruction{Name: "r", Op: OpCopy, Shape: MakeShape(F32, 2), Operands: []*Instruction{a}})
	c.ReplaceUses(sum, replacement)

	assert.Same(t, replacement, c.Root, "root reference must follow the replacement")

	c.ReplaceUses(a, replacement)
	assert.Same(t, replacement, b.Operands[0])
	assert.Same(t, replacement, sum.Operands[0])
}

func TestComputation_Users(t *testing.T) {
	c := NewComputation("main")
	a := c.Add(&Instruction{Name: "a", Op: OpParameter, Shape: MakeShape(F32, 2)})
	b := c.Add(&Instruction{Name: "b", Op: OpNegate, Shape: MakeShape(F32, 2), Operands: []*Instruction{a}})
	d := c.Add(&Instruction{Name: "d", Op: OpAdd, Shape: MakeShape(F32, 2), Operands: []*Instruction{a, a}})
	c.Root = d

	users := c.Users(a)
	require.Len(t, users, 2, "duplicate operand references count once per user")
	assert.Same(t, b, users[0])
	assert.Same(t, d, users[1])
}

func TestComputation_InsertBefore(t *testing.T) {
	c := NewComputation("main")
	a := c.Add(&Instruction{Name: "a", Op: OpParameter, Shape: MakeShape(F32, 2)})
	b := c.Add(&Instruction{Name: "b", Op: OpNegate, Shape: MakeShape(F32, 2), Operands: []*Instruction{a}})
	c.Root = b

	mid := c.InsertBefore(b, &Instruction{Op: OpCopy, Shape: MakeShape(F32, 2), Operands: []*Instruction{a}})
	require.Len(t, c.Instructions, 3)
	assert.Same(t, mid, c.Instructions[1], "inserted instruction sits before its anchor")
	assert.NotEmpty(t, mid.Name, "Add/InsertBefore assign fresh names")
}

func TestModule_Clone_Independent(t *testing.T) {
	m := buildConvModule(t)
	clone := m.Clone()

	require.Equal(t, Print(m), Print(clone))

	// Mutating the clone must not touch the original.
	clone.Entry().Find("conv").Window.PadLow[0] = 9
	clone.Entry().Find("input").Name = "renamed"
	assert.Equal(t, int64(1), m.Entry().Find("conv").Window.PadLow[0])
	assert.NotNil(t, m.Entry().Find("input"))
}

func TestModule_Clone_RemapsCallTargets(t *testing.T) {
	text := `module calls {
  computation helper {
    hp = f32[2] parameter(0)
    ROOT hx = f32[2] exponential(hp)
  }
  entry main {
    p0 = f32[2] parameter(0)
    ROOT call.0 = f32[2] call(p0), to_apply=helper
  }
}
`
	m, err := Parse(text)
	require.NoError(t, err)

	clone := m.Clone()
	call := clone.Entry().Find("call.0")
	require.NotNil(t, call)
	assert.Same(t, clone.FindComputation("helper"), call.ToApply,
		"cloned call must reference the cloned computation, not the original")
}

func TestShape_Equal(t *testing.T) {
	a := MakeShape(F32, 4, 8)
	b := MakeShape(F32, 4, 8)
	b.Layout = []int{1, 0} // explicit default layout
	assert.True(t, a.Equal(b), "nil layout equals explicit default layout")

	b.Layout = []int{0, 1}
	assert.False(t, a.Equal(b))
	assert.True(t, a.EqualIgnoringLayout(b))

	assert.False(t, a.Equal(MakeShape(BF16, 4, 8)))
}

func TestDefaultLayout(t *testing.T) {
	assert.Equal(t, []int{2, 1, 0}, DefaultLayout(3))
	assert.Empty(t, DefaultLayout(0))
}
