package ir

import "fmt"

// VerifyError describes one structural-invariant violation found in a
// module.
type VerifyError struct {
	Message     string
	Computation string
	Instruction string
}

// Error implements the error interface.
func (e VerifyError) Error() string {
	if e.Computation != "" && e.Instruction != "" {
		return fmt.Sprintf("in %s, instruction %s: %s", e.Computation, e.Instruction, e.Message)
	}
	if e.Computation != "" {
		return fmt.Sprintf("in %s: %s", e.Computation, e.Message)
	}
	return e.Message
}

// Verify checks the module's structural invariants:
//   - the module has an entry computation with a root
//   - instruction names are unique within a computation
//   - every operand belongs to the same computation and precedes its user
//   - opcode-specific attributes are present and consistent
//
// Verify never mutates the module. It returns the first violation found.
func Verify(m *Module) error {
	if m == nil {
		return VerifyError{Message: "module is nil"}
	}
	if m.Entry() == nil {
		return VerifyError{Message: "module has no entry computation"}
	}
	for _, c := range m.Computations {
		if err := verifyComputation(m, c); err != nil {
			return err
		}
	}
	return nil
}

func verifyComputation(m *Module, c *Computation) error {
	fail := func(in *Instruction, format string, args ...any) error {
		e := VerifyError{Message: fmt.Sprintf(format, args...), Computation: c.Name}
		if in != nil {
			e.Instruction = in.Name
		}
		return e
	}

	if c.Root == nil {
		return fail(nil, "computation has no root")
	}

	seen := make(map[string]bool, len(c.Instructions))
	defined := make(map[*Instruction]bool, len(c.Instructions))
	rootFound := false
	for _, in := range c.Instructions {
		if seen[in.Name] {
			return fail(in, "duplicate instruction name")
		}
		seen[in.Name] = true
		if in == c.Root {
			rootFound = true
		}

		for i, op := range in.Operands {
			if op == nil {
				return fail(in, "operand %d is nil", i)
			}
			if !defined[op] {
				return fail(in, "operand %s does not precede its user", op.Name)
			}
		}

		if err := verifyInstruction(m, c, in); err != nil {
			return err
		}
		defined[in] = true
	}
	if !rootFound {
		return fail(nil, "root %s is not a member of the computation", c.Root.Name)
	}
	return nil
}

func verifyInstruction(m *Module, c *Computation, in *Instruction) error {
	fail := func(format string, args ...any) error {
		return VerifyError{
			Message:     fmt.Sprintf(format, args...),
			Computation: c.Name,
			Instruction: in.Name,
		}
	}

	arity := func(n int) error {
		if len(in.Operands) != n {
			return fail("%s expects %d operands, has %d", in.Op, n, len(in.Operands))
		}
		return nil
	}

	switch in.Op {
	case OpParameter:
		if err := arity(0); err != nil {
			return err
		}
		if in.Parameter < 0 {
			return fail("negative parameter index %d", in.Parameter)
		}
	case OpConstant:
		if err := arity(0); err != nil {
			return err
		}
		if !in.Shape.IsTuple() && int64(len(in.Literal)) != in.Shape.NumElements() {
			return fail("literal has %d values for shape %s", len(in.Literal), in.Shape)
		}
	case OpConvolution:
		if err := arity(2); err != nil {
			return err
		}
		if in.Window == nil {
			return fail("convolution has no window")
		}
	case OpDot:
		if err := arity(2); err != nil {
			return err
		}
		if len(in.Dimensions) > 1 {
			return fail("dot carries %d batch counts", len(in.Dimensions))
		}
		if len(in.Dimensions) == 1 {
			batch := in.Dimensions[0]
			lhs := int64(in.Operands[0].Shape.Rank())
			rhs := int64(in.Operands[1].Shape.Rank())
			if batch < 0 || batch > lhs || batch > rhs {
				return fail("batch dimension count %d out of range for operand ranks %d and %d", batch, lhs, rhs)
			}
			if batch > int64(in.Shape.Rank()) {
				return fail("batch dimension count %d exceeds result rank %d", batch, in.Shape.Rank())
			}
		}
	case OpBroadcast:
		if err := arity(1); err != nil {
			return err
		}
	case OpCustomCall:
		if in.CustomCallTarget == "" {
			return fail("custom-call has no target")
		}
	case OpGetTupleElement:
		if err := arity(1); err != nil {
			return err
		}
		operand := in.Operands[0]
		if !operand.Shape.IsTuple() {
			return fail("get-tuple-element operand %s is not a tuple", operand.Name)
		}
		if in.TupleIndex < 0 || in.TupleIndex >= len(operand.Shape.Tuple) {
			return fail("tuple index %d out of range for %s", in.TupleIndex, operand.Shape)
		}
	case OpTuple:
		if len(in.Shape.Tuple) != len(in.Operands) {
			return fail("tuple shape has %d elements for %d operands", len(in.Shape.Tuple), len(in.Operands))
		}
	case OpPad:
		if err := arity(2); err != nil {
			return err
		}
		if len(in.Padding) != in.Shape.Rank() {
			return fail("padding config has %d entries for rank %d", len(in.Padding), in.Shape.Rank())
		}
	case OpConvert:
		if err := arity(1); err != nil {
			return err
		}
		if in.Shape.IsTuple() {
			return fail("convert result cannot be a tuple")
		}
	case OpCall:
		if in.ToApply == nil {
			return fail("call has no target computation")
		}
		if m.FindComputation(in.ToApply.Name) == nil {
			return fail("call target %s is not in the module", in.ToApply.Name)
		}
	case OpTranspose:
		if err := arity(1); err != nil {
			return err
		}
		if len(in.Dimensions) != in.Shape.Rank() {
			return fail("transpose permutation has %d entries for rank %d", len(in.Dimensions), in.Shape.Rank())
		}
	}

	if in.Op.IsElementwiseBinary() {
		if err := arity(2); err != nil {
			return err
		}
	}
	if in.Op.IsElementwiseUnary() {
		if err := arity(1); err != nil {
			return err
		}
	}
	return nil
}
