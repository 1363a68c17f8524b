// Package harness runs YAML conformance scenarios against the compiler
// pipelines and compares the resulting IR against golden files.
//
// Each scenario loads a textual IR module, resolves a device from the
// catalog, runs the named pipelines through a real compiler instance, and
// checks substring expectations plus a full golden dump. The golden files
// pin the canonicalization contract: a rewrite change that alters the
// final IR shows up as a golden diff, not as a silently different binary.
package harness

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cinder-ml/cinder/internal/compiler"
	"github.com/cinder-ml/cinder/internal/device"
	"github.com/cinder-ml/cinder/internal/ir"
)

// Result is the outcome of one scenario run.
type Result struct {
	Scenario    string
	Module      string
	Device      string
	Fingerprint string

	// Text is the final IR in textual form, the payload golden files pin.
	Text string

	// Failures lists expectation violations. Empty means the scenario's
	// Expect clause held; the golden comparison happens separately.
	Failures []string
}

// Passed reports whether every expectation held.
func (r *Result) Passed() bool { return len(r.Failures) == 0 }

// Run executes a scenario. Module paths resolve relative to baseDir,
// which is normally the directory holding the scenario file.
func Run(scenario *Scenario, baseDir string) (*Result, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, scenario.Module))
	if err != nil {
		return nil, fmt.Errorf("scenario %s: read module: %w", scenario.Name, err)
	}
	m, err := ir.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("scenario %s: parse module: %w", scenario.Name, err)
	}

	catalog, err := device.LoadCatalog()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	capability, ok := catalog.Lookup(scenario.Device)
	if !ok {
		return nil, fmt.Errorf("scenario %s: unknown device %q", scenario.Name, scenario.Device)
	}
	m.Target = capability
	applyOptions(&m.Config.Debug, scenario.Options)

	// Scenario runs are silent; failures surface through the result.
	c := compiler.New(compiler.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	exec := &device.StaticExecutor{DeviceName: scenario.Device, Cap: capability}

	for _, pipeline := range scenario.Pipelines {
		switch pipeline {
		case PipelineConvCanonicalization:
			err = c.OptimizeConvCanonicalization(m)
		case PipelinePostLayout:
			err = c.OptimizePostLayoutAssignment(m, exec, compiler.CompileOptions{}, nil)
		default:
			err = fmt.Errorf("unknown pipeline %q", pipeline)
		}
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
		}
	}

	result := &Result{
		Scenario:    scenario.Name,
		Module:      m.Name,
		Device:      capability.String(),
		Fingerprint: ir.Fingerprint(m),
		Text:        ir.Print(m),
	}
	checkExpectations(result, scenario.Expect)
	return result, nil
}

func applyOptions(debug *ir.DebugOptions, opts *ScenarioOptions) {
	if opts == nil {
		return
	}
	if opts.AttentionFusion != nil {
		debug.EnableAttentionFusion = *opts.AttentionFusion
	}
	debug.EnableFastMinMax = opts.FastMinMax
	debug.NormalizeLayouts = !opts.SkipLayoutNormalization
	debug.MaxFixedPointIterations = opts.MaxFixedPointIterations
}

func checkExpectations(result *Result, expect *ExpectClause) {
	if expect == nil {
		return
	}
	for _, want := range expect.Contains {
		if !strings.Contains(result.Text, want) {
			result.Failures = append(result.Failures,
				fmt.Sprintf("expected substring %q not found in final IR", want))
		}
	}
	for _, banned := range expect.Absent {
		if strings.Contains(result.Text, banned) {
			result.Failures = append(result.Failures,
				fmt.Sprintf("forbidden substring %q present in final IR", banned))
		}
	}
}
