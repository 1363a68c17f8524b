package ir

import "fmt"

// Opcode identifies the operation an instruction performs.
type Opcode uint8

const (
	OpParameter Opcode = iota
	OpConstant
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpMaximum
	OpMinimum
	OpExp
	OpNegate
	OpConvert
	OpCopy
	OpReshape
	OpTranspose
	OpBroadcast
	OpPad
	OpSlice
	OpConcatenate
	OpReduce
	OpDot
	OpConvolution
	OpCholesky
	OpTriangularSolve
	OpCustomCall
	OpTuple
	OpGetTupleElement
	OpCall
)

var opcodeNames = map[Opcode]string{
	OpParameter:       "parameter",
	OpConstant:        "constant",
	OpAdd:             "add",
	OpSubtract:        "subtract",
	OpMultiply:        "multiply",
	OpDivide:          "divide",
	OpMaximum:         "maximum",
	OpMinimum:         "minimum",
	OpExp:             "exponential",
	OpNegate:          "negate",
	OpConvert:         "convert",
	OpCopy:            "copy",
	OpReshape:         "reshape",
	OpTranspose:       "transpose",
	OpBroadcast:       "broadcast",
	OpPad:             "pad",
	OpSlice:           "slice",
	OpConcatenate:     "concatenate",
	OpReduce:          "reduce",
	OpDot:             "dot",
	OpConvolution:     "convolution",
	OpCholesky:        "cholesky",
	OpTriangularSolve: "triangular-solve",
	OpCustomCall:      "custom-call",
	OpTuple:           "tuple",
	OpGetTupleElement: "get-tuple-element",
	OpCall:            "call",
}

// String returns the textual-format name of the opcode.
func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("invalid(%d)", uint8(op))
}

// OpcodeFromString parses a textual opcode name.
func OpcodeFromString(s string) (Opcode, bool) {
	for op, name := range opcodeNames {
		if name == s {
			return op, true
		}
	}
	return 0, false
}

// IsElementwiseBinary reports whether the opcode is a two-operand
// elementwise operation. Reshape and convert movers rely on this set.
func (op Opcode) IsElementwiseBinary() bool {
	switch op {
	case OpAdd, OpSubtract, OpMultiply, OpDivide, OpMaximum, OpMinimum:
		return true
	}
	return false
}

// IsElementwiseUnary reports whether the opcode is a one-operand
// elementwise operation.
func (op Opcode) IsElementwiseUnary() bool {
	switch op {
	case OpExp, OpNegate, OpConvert, OpCopy:
		return true
	}
	return false
}
