package ir

import (
	"fmt"

	"github.com/cinder-ml/cinder/internal/device"
)

// PadDim is the padding configuration for one dimension of a pad
// instruction: edge padding plus interior (dilation) padding.
type PadDim struct {
	Low      int64
	High     int64
	Interior int64
}

// Window is the spatial configuration of a convolution: one entry per
// spatial dimension.
type Window struct {
	Sizes    []int64
	Strides  []int64
	PadLow   []int64
	PadHigh  []int64
}

// Clone returns a deep copy of the window.
func (w *Window) Clone() *Window {
	if w == nil {
		return nil
	}
	return &Window{
		Sizes:   append([]int64(nil), w.Sizes...),
		Strides: append([]int64(nil), w.Strides...),
		PadLow:  append([]int64(nil), w.PadLow...),
		PadHigh: append([]int64(nil), w.PadHigh...),
	}
}

// Instruction is one node of the data-flow graph. Instructions are owned by
// exactly one computation and reference their operands by pointer.
//
// Attribute fields beyond Operands are opcode-specific; unused fields stay
// at their zero value. The verifier enforces which fields each opcode
// requires.
type Instruction struct {
	Name     string
	Op       Opcode
	Shape    Shape
	Operands []*Instruction

	// Parameter holds the parameter index for OpParameter.
	Parameter int

	// Literal holds the flattened constant values for OpConstant.
	Literal []float64

	// Window configures OpConvolution.
	Window *Window

	// CustomCallTarget names the device library entry for OpCustomCall.
	CustomCallTarget string

	// Dimensions parameterizes OpTranspose (permutation), OpBroadcast
	// (broadcast dimensions), OpReduce (reduced dimensions), OpConcatenate
	// and OpDot (single concatenation / batch dimension count).
	Dimensions []int64

	// TupleIndex is the element index for OpGetTupleElement.
	TupleIndex int

	// Padding configures OpPad, one entry per result dimension.
	Padding []PadDim

	// ToApply is the called computation for OpCall.
	ToApply *Computation

	// Lower selects the triangular form for OpTriangularSolve and
	// OpCholesky.
	Lower bool
}

// IsElementwise reports whether the instruction is elementwise.
func (in *Instruction) IsElementwise() bool {
	return in.Op.IsElementwiseBinary() || in.Op.IsElementwiseUnary()
}

// Computation is an ordered list of instructions with a designated root.
// Execution order is exactly insertion order; operands always precede
// their users.
type Computation struct {
	Name         string
	Instructions []*Instruction
	Root         *Instruction

	nextID int
}

// NewComputation creates an empty computation.
func NewComputation(name string) *Computation {
	return &Computation{Name: name}
}

// Add appends an instruction, assigning a unique name if none is set, and
// returns it.
func (c *Computation) Add(in *Instruction) *Instruction {
	if in.Name == "" {
		in.Name = c.uniqueName(in.Op.String())
	}
	c.Instructions = append(c.Instructions, in)
	return in
}

// uniqueName derives a fresh instruction name from a base string.
func (c *Computation) uniqueName(base string) string {
	for {
		name := fmt.Sprintf("%s.%d", base, c.nextID)
		c.nextID++
		if c.Find(name) == nil {
			return name
		}
	}
}

// Find returns the instruction with the given name, or nil.
func (c *Computation) Find(name string) *Instruction {
	for _, in := range c.Instructions {
		if in.Name == name {
			return in
		}
	}
	return nil
}

// ReplaceUses rewrites every operand reference to old with new, including
// the root. The old instruction stays in the list; dead-code elimination
// removes it later.
func (c *Computation) ReplaceUses(old, new *Instruction) {
	for _, in := range c.Instructions {
		for i, op := range in.Operands {
			if op == old {
				in.Operands[i] = new
			}
		}
	}
	if c.Root == old {
		c.Root = new
	}
}

// Users returns the instructions that use the given instruction as an
// operand, in insertion order.
func (c *Computation) Users(target *Instruction) []*Instruction {
	var users []*Instruction
	for _, in := range c.Instructions {
		for _, op := range in.Operands {
			if op == target {
				users = append(users, in)
				break
			}
		}
	}
	return users
}

// InsertBefore inserts a new instruction immediately before an anchor
// instruction, preserving the operands-precede-users invariant.
func (c *Computation) InsertBefore(anchor, in *Instruction) *Instruction {
	if in.Name == "" {
		in.Name = c.uniqueName(in.Op.String())
	}
	for i, existing := range c.Instructions {
		if existing == anchor {
			c.Instructions = append(c.Instructions, nil)
			copy(c.Instructions[i+1:], c.Instructions[i:])
			c.Instructions[i] = in
			return in
		}
	}
	// Anchor not found: fall back to append.
	c.Instructions = append(c.Instructions, in)
	return in
}

// InsertAfter inserts a new instruction immediately after an anchor
// instruction.
func (c *Computation) InsertAfter(anchor, in *Instruction) *Instruction {
	if in.Name == "" {
		in.Name = c.uniqueName(in.Op.String())
	}
	for i, existing := range c.Instructions {
		if existing == anchor {
			c.Instructions = append(c.Instructions, nil)
			copy(c.Instructions[i+2:], c.Instructions[i+1:])
			c.Instructions[i+1] = in
			return in
		}
	}
	c.Instructions = append(c.Instructions, in)
	return in
}

// Remove deletes an instruction from the list. The caller must have
// rewritten all uses first.
func (c *Computation) Remove(target *Instruction) {
	for i, in := range c.Instructions {
		if in == target {
			c.Instructions = append(c.Instructions[:i], c.Instructions[i+1:]...)
			return
		}
	}
}

// Module is one compilation unit: computations, configuration, and the
// target descriptor. The entry computation is the module's program root.
type Module struct {
	Name         string
	Computations []*Computation
	Config       ModuleConfig

	// Target describes the device the module is being compiled for. It is
	// immutable for the lifetime of the compilation.
	Target device.Capability

	entry *Computation
}

// NewModule creates a module with default configuration.
func NewModule(name string) *Module {
	return &Module{Name: name, Config: DefaultModuleConfig()}
}

// AddComputation appends a computation; the first one added becomes the
// entry unless SetEntry overrides it.
func (m *Module) AddComputation(c *Computation) *Computation {
	m.Computations = append(m.Computations, c)
	if m.entry == nil {
		m.entry = c
	}
	return c
}

// SetEntry designates the entry computation.
func (m *Module) SetEntry(c *Computation) { m.entry = c }

// Entry returns the entry computation, or nil for an empty module.
func (m *Module) Entry() *Computation { return m.entry }

// FindComputation returns the computation with the given name, or nil.
func (m *Module) FindComputation(name string) *Computation {
	for _, c := range m.Computations {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Clone returns a deep copy of the module. The copy shares no instruction
// pointers with the original; config and target are value-copied.
func (m *Module) Clone() *Module {
	clone := &Module{
		Name:   m.Name,
		Config: m.Config.Clone(),
		Target: m.Target,
	}
	compMap := make(map[*Computation]*Computation, len(m.Computations))
	// First materialize empty computations so OpCall can reference them
	// regardless of declaration order.
	for _, c := range m.Computations {
		compMap[c] = &Computation{Name: c.Name, nextID: c.nextID}
	}
	for _, c := range m.Computations {
		cc := compMap[c]
		instMap := make(map[*Instruction]*Instruction, len(c.Instructions))
		for _, in := range c.Instructions {
			ci := &Instruction{
				Name:             in.Name,
				Op:               in.Op,
				Shape:            in.Shape.Clone(),
				Parameter:        in.Parameter,
				Literal:          append([]float64(nil), in.Literal...),
				Window:           in.Window.Clone(),
				CustomCallTarget: in.CustomCallTarget,
				Dimensions:       append([]int64(nil), in.Dimensions...),
				TupleIndex:       in.TupleIndex,
				Padding:          append([]PadDim(nil), in.Padding...),
				Lower:            in.Lower,
			}
			if in.ToApply != nil {
				ci.ToApply = compMap[in.ToApply]
			}
			for _, op := range in.Operands {
				ci.Operands = append(ci.Operands, instMap[op])
			}
			instMap[in] = ci
			cc.Instructions = append(cc.Instructions, ci)
		}
		cc.Root = instMap[c.Root]
		clone.Computations = append(clone.Computations, cc)
	}
	if m.entry != nil {
		clone.entry = compMap[m.entry]
	}
	return clone
}
