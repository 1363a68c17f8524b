package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Pipeline names a scenario may run, in any order.
const (
	PipelineConvCanonicalization = "conv-canonicalization"
	PipelinePostLayout           = "post-layout"
)

// Scenario defines one conformance scenario: a module, a target device,
// and the pipelines to run over it.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario pins down.
	Description string `yaml:"description"`

	// Module is the path to the IR text file, relative to the scenario
	// file location.
	Module string `yaml:"module"`

	// Device is the catalog name of the target device.
	Device string `yaml:"device"`

	// Pipelines lists the named pipelines to run, in order.
	Pipelines []string `yaml:"pipelines"`

	// Options tweaks the module's debug options before running.
	Options *ScenarioOptions `yaml:"options,omitempty"`

	// Expect holds substring assertions against the final IR text.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ScenarioOptions mirrors the externally configurable debug options.
type ScenarioOptions struct {
	// AttentionFusion toggles the attention-fusion pre-pipeline. Nil
	// keeps the compiler default (on).
	AttentionFusion *bool `yaml:"attention_fusion,omitempty"`

	FastMinMax              bool `yaml:"fast_minmax,omitempty"`
	SkipLayoutNormalization bool `yaml:"skip_layout_normalization,omitempty"`
	MaxFixedPointIterations int  `yaml:"max_fixed_point_iterations,omitempty"`
}

// ExpectClause holds substring assertions over the final IR text.
// Subset checks only; the golden file pins the full text.
type ExpectClause struct {
	// Contains lists substrings that must appear in the final text.
	Contains []string `yaml:"contains,omitempty"`

	// Absent lists substrings that must not appear.
	Absent []string `yaml:"absent,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly instead of silently relaxing a scenario.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	if err := scenario.validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &scenario, nil
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("missing name")
	}
	if s.Module == "" {
		return fmt.Errorf("missing module")
	}
	if s.Device == "" {
		return fmt.Errorf("missing device")
	}
	if len(s.Pipelines) == 0 {
		return fmt.Errorf("no pipelines to run")
	}
	for _, p := range s.Pipelines {
		switch p {
		case PipelineConvCanonicalization, PipelinePostLayout:
		default:
			return fmt.Errorf("unknown pipeline %q", p)
		}
	}
	return nil
}
