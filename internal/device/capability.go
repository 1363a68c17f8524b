// Package device describes compilation targets.
//
// A Capability is an immutable value describing one device generation and
// the features the compiler may rely on when rewriting a module for it.
// Capabilities are shared by reference across passes and code generation
// and are never mutated during a compilation.
package device

import "fmt"

// Capability describes one target device generation.
//
// All feature decisions in the compiler go through this descriptor rather
// than through hardcoded booleans, so an unsupported target is rejected (or
// normalized around) instead of silently miscompiled.
type Capability struct {
	// Name is the catalog key for this device, e.g. "xe_hpc".
	Name string

	// Generation is the hardware generation number. Passes that are only
	// correct from a given generation onward gate on AtLeast.
	Generation int

	// LowPrecisionConv reports whether convolutions may keep reduced
	// floating point operands and outputs. When false, the precision
	// normalization pass widens convolution operands to full precision.
	LowPrecisionConv bool

	// FusedConv reports whether the device library provides a fused
	// conv+bias+activation kernel.
	FusedConv bool

	// FusedAttention reports whether the device library provides a fused
	// multi-headed attention kernel.
	FusedAttention bool
}

// AtLeast reports whether the device is of the given generation or newer.
func (c Capability) AtLeast(generation int) bool {
	return c.Generation >= generation
}

// String returns a short diagnostic form, e.g. "xe_hpc(gen12)".
func (c Capability) String() string {
	return fmt.Sprintf("%s(gen%d)", c.Name, c.Generation)
}

// Executor is an opaque handle to a live device. The compiler core never
// drives it directly; it is threaded through to the attention-fusion
// rewriter and the shared base pipeline, which may query the device.
type Executor interface {
	// Name identifies the executor for diagnostics.
	Name() string

	// Capability returns the descriptor of the attached device.
	Capability() Capability
}

// StaticExecutor is an Executor backed by a fixed capability descriptor.
// Used when compiling ahead of time, without a live device.
type StaticExecutor struct {
	DeviceName string
	Cap        Capability
}

// Name implements Executor.
func (e *StaticExecutor) Name() string { return e.DeviceName }

// Capability implements Executor.
func (e *StaticExecutor) Capability() Capability { return e.Cap }
