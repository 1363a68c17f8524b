// Package codegen lowers canonicalized modules to device kernel binaries.
//
// The emitter consumes the custom-call form the rewrite passes produce;
// primitives with library kernels (convolution, the dense solvers) must
// already have been rewritten away, and the generator rejects modules
// that still carry them.
package codegen

import (
	"fmt"

	"github.com/cinder-ml/cinder/internal/device"
	"github.com/cinder-ml/cinder/internal/ir"
)

// Options control one generation run.
type Options struct {
	// Relocatable assembles the binary for later linking instead of
	// standalone loading.
	Relocatable bool
}

// Generator turns an optimized module into a device binary.
type Generator interface {
	Generate(m *ir.Module, target device.Capability, opts Options) ([]byte, error)
}

// KernelGenerator is the reference Generator. It emits one section per
// computation, one record per instruction, in execution order; values are
// referenced by dense result IDs assigned in the same order.
type KernelGenerator struct{}

// NewKernelGenerator returns the reference generator.
func NewKernelGenerator() *KernelGenerator { return &KernelGenerator{} }

// Generate implements Generator.
func (g *KernelGenerator) Generate(m *ir.Module, target device.Capability, opts Options) ([]byte, error) {
	if err := ir.Verify(m); err != nil {
		return nil, fmt.Errorf("codegen input: %w", err)
	}

	w := &binaryWriter{generation: target.Generation}
	if opts.Relocatable {
		w.flags |= FlagRelocatable
	}

	for _, c := range m.Computations {
		section, err := emitComputation(c)
		if err != nil {
			return nil, fmt.Errorf("computation %s: %w", c.Name, err)
		}
		w.addSection(section)
	}
	return w.bytes(), nil
}

// emitComputation encodes one computation: a name record, then one record
// per instruction.
func emitComputation(c *ir.Computation) ([]uint32, error) {
	ids := make(map[*ir.Instruction]uint32, len(c.Instructions))

	var words []uint32
	header := &recordBuilder{}
	header.addString(c.Name)
	header.addWord(uint32(len(c.Instructions)))
	words = append(words, header.build(sectionOpcode).encode()...)

	for i, in := range c.Instructions {
		ids[in] = uint32(i)
		rec, err := emitInstruction(in, ids)
		if err != nil {
			return nil, err
		}
		words = append(words, rec.encode()...)
	}
	return words, nil
}

func emitInstruction(in *ir.Instruction, ids map[*ir.Instruction]uint32) (record, error) {
	switch in.Op {
	case ir.OpConvolution, ir.OpCholesky, ir.OpTriangularSolve:
		return record{}, fmt.Errorf("%s %s was not rewritten to a library call", in.Op, in.Name)
	case ir.OpCall:
		return record{}, fmt.Errorf("call %s was not inlined", in.Name)
	}

	b := &recordBuilder{}
	b.addWord(ids[in])
	emitShape(b, in.Shape)
	b.addWord(uint32(len(in.Operands)))
	for _, operand := range in.Operands {
		b.addWords(ids[operand])
	}

	switch in.Op {
	case ir.OpParameter:
		b.addWord(uint32(in.Parameter))
	case ir.OpConstant:
		for _, v := range in.Literal {
			b.addWord(floatBits(v))
		}
	case ir.OpCustomCall:
		b.addString(in.CustomCallTarget)
	case ir.OpGetTupleElement:
		b.addWord(uint32(in.TupleIndex))
	case ir.OpPad:
		for _, p := range in.Padding {
			b.addWords(uint32(p.Low), uint32(p.High), uint32(p.Interior))
		}
	}
	for _, d := range in.Dimensions {
		b.addWord(uint32(d))
	}
	if in.Window != nil {
		for i := range in.Window.Sizes {
			b.addWords(uint32(in.Window.Sizes[i]), uint32(in.Window.Strides[i]),
				uint32(in.Window.PadLow[i]), uint32(in.Window.PadHigh[i]))
		}
	}
	return b.build(uint16(in.Op)), nil
}

// emitShape encodes element type, rank, and dimensions. Tuples encode
// their element count and then each element shape.
func emitShape(b *recordBuilder, s ir.Shape) {
	b.addWord(uint32(s.Element))
	if s.IsTuple() {
		b.addWord(uint32(len(s.Tuple)))
		for _, e := range s.Tuple {
			emitShape(b, e)
		}
		return
	}
	b.addWord(uint32(s.Rank()))
	for _, d := range s.Dims {
		b.addWord(uint32(d))
	}
}
