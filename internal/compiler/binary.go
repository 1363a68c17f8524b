package compiler

import (
	"fmt"

	"github.com/cinder-ml/cinder/internal/codegen"
	"github.com/cinder-ml/cinder/internal/device"
	"github.com/cinder-ml/cinder/internal/ir"
)

// TargetBinary is the sealed compilation artifact: the device payload and
// an auxiliary symbol label. The label is reserved for backends that need
// one and is currently always empty.
type TargetBinary struct {
	Label  string
	Binary []byte
}

// CompileTargetBinary assembles the final device binary for a module.
//
// debugModule carries the module identity used for override matching and
// debug dumps. When it is nil, only structural compilation was requested:
// no code generation happens and the returned binary is empty. Otherwise
// the generated IR - or a matching operator-supplied override - is handed
// to the code generator.
func (c *Compiler) CompileTargetBinary(
	config ir.ModuleConfig,
	generated *ir.Module,
	capability device.Capability,
	relocatable bool,
	debugModule *ir.Module,
	opts CompileOptions,
) (TargetBinary, error) {
	if debugModule == nil {
		return TargetBinary{}, nil
	}

	selected := generated
	if override := c.maybeLoadIRFromFile(config, debugModule); override != nil {
		selected = override
	}

	payload, err := c.generator.Generate(selected, capability, codegen.Options{
		Relocatable: relocatable,
	})
	if err != nil {
		return TargetBinary{}, fmt.Errorf("code generation for %s: %w", debugModule.Name, err)
	}

	if _, err := ir.DumpText(selected, "codegen"); err != nil {
		c.logger.Warn("could not dump codegen input", "module", debugModule.Name, "err", err)
	}
	return TargetBinary{Binary: payload}, nil
}
