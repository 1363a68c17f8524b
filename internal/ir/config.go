package ir

// ModuleConfig holds per-module compilation configuration. It travels with
// the module and is read, never written, by passes.
type ModuleConfig struct {
	Debug DebugOptions
}

// DebugOptions are the externally configurable switches this compiler
// surfaces. Only EnableAttentionFusion changes optimization behavior; the
// rest control debugging aids.
type DebugOptions struct {
	// IROverrideFiles lists candidate files holding operator-supplied IR
	// text. At binary-assembly time the first file whose basename starts
	// with the module's filename prefix replaces the generated IR.
	IROverrideFiles []string

	// EnableAttentionFusion gates the multi-headed attention fusion
	// pre-pipeline. Default true.
	EnableAttentionFusion bool

	// EnableFastMinMax trades NaN propagation through min/max for speed.
	// When false, the layout-sensitive simplifier propagates NaN.
	EnableFastMinMax bool

	// NormalizeLayouts requests reshape decomposition and layout
	// normalization ahead of attention fusion. Default true.
	NormalizeLayouts bool

	// DumpDir, when set, receives textual dumps of intermediate IR.
	DumpDir string

	// MaxFixedPointIterations caps fixed-point sub-pipelines. Zero means
	// the executor default.
	MaxFixedPointIterations int
}

// DefaultDebugOptions returns the options every fresh module starts with.
func DefaultDebugOptions() DebugOptions {
	return DebugOptions{
		EnableAttentionFusion: true,
		NormalizeLayouts:      true,
	}
}

// DefaultModuleConfig returns a config with default debug options.
func DefaultModuleConfig() ModuleConfig {
	return ModuleConfig{Debug: DefaultDebugOptions()}
}

// Clone returns a deep copy of the config.
func (c ModuleConfig) Clone() ModuleConfig {
	clone := c
	clone.Debug.IROverrideFiles = append([]string(nil), c.Debug.IROverrideFiles...)
	return clone
}
