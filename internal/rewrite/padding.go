package rewrite

import (
	"fmt"

	"github.com/cinder-ml/cinder/internal/ir"
)

// ConvPaddingLegalization moves window padding off convolution custom
// calls into explicit pad instructions on the input. The device kernels
// only accept calls with zero window padding, so this must run after the
// convolutions have been rewritten into custom-call form - running it
// earlier leaves the calls carrying illegal padding.
//
// Layout convention is NHWC: dimension 0 is batch, the last dimension is
// features, everything between is spatial and lines up with the window.
type ConvPaddingLegalization struct{}

// Name implements pass.Pass.
func (ConvPaddingLegalization) Name() string { return "conv-padding-legalization" }

// Run implements pass.Pass.
func (ConvPaddingLegalization) Run(m *ir.Module) (bool, error) {
	changed := false
	for _, c := range m.Computations {
		for _, in := range append([]*ir.Instruction(nil), c.Instructions...) {
			if !IsConvCustomCall(in) || in.Window == nil {
				continue
			}
			legalized, err := legalizeConvPadding(c, in)
			if err != nil {
				return changed, err
			}
			changed = changed || legalized
		}
	}
	return changed, nil
}

func legalizeConvPadding(c *ir.Computation, call *ir.Instruction) (bool, error) {
	window := call.Window
	hasPadding := false
	for i := range window.PadLow {
		if window.PadLow[i] < 0 || window.PadHigh[i] < 0 {
			return false, fmt.Errorf("conv %s has negative window padding", call.Name)
		}
		if window.PadLow[i] != 0 || window.PadHigh[i] != 0 {
			hasPadding = true
		}
	}
	if !hasPadding {
		return false, nil
	}

	input := call.Operands[0]
	rank := input.Shape.Rank()
	if len(window.PadLow) != rank-2 {
		return false, fmt.Errorf("conv %s: window rank %d does not match input rank %d",
			call.Name, len(window.PadLow), rank)
	}

	padding := make([]ir.PadDim, rank)
	paddedDims := append([]int64(nil), input.Shape.Dims...)
	for i := 0; i < rank-2; i++ {
		padding[i+1] = ir.PadDim{Low: window.PadLow[i], High: window.PadHigh[i]}
		paddedDims[i+1] += window.PadLow[i] + window.PadHigh[i]
	}

	zero := c.InsertBefore(call, &ir.Instruction{
		Op:      ir.OpConstant,
		Shape:   ir.MakeShape(input.Shape.Element),
		Literal: []float64{0},
	})
	padded := c.InsertBefore(call, &ir.Instruction{
		Op:       ir.OpPad,
		Shape:    ir.Shape{Element: input.Shape.Element, Dims: paddedDims},
		Operands: []*ir.Instruction{input, zero},
		Padding:  padding,
	})
	call.Operands[0] = padded
	for i := range window.PadLow {
		window.PadLow[i] = 0
		window.PadHigh[i] = 0
	}
	return true, nil
}
