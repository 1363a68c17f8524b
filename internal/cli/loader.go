package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cinder-ml/cinder/internal/device"
	"github.com/cinder-ml/cinder/internal/ir"
)

// EnvDisableAttentionFusion disables the attention-fusion pre-pipeline for
// every compilation started by this process. The environment is read here
// and nowhere else; the compiler core only sees the resolved DebugOptions.
const EnvDisableAttentionFusion = "CINDER_DISABLE_ATTENTION_FUSION"

// ModuleOptions holds the flags shared by commands that load an IR module
// and compile it for a device.
type ModuleOptions struct {
	Device       string
	CatalogFiles []string

	AttentionFusion bool
	FastMinMax      bool
	SkipLayoutNorm  bool
	DumpDir         string
	MaxFixedPoint   int
	OverrideFiles   []string
}

// addModuleFlags registers the shared module/device flags on a command.
func addModuleFlags(cmd *cobra.Command, opts *ModuleOptions) {
	cmd.Flags().StringVar(&opts.Device, "device", "xe_hpc", "target device name from the catalog")
	cmd.Flags().StringSliceVar(&opts.CatalogFiles, "catalog", nil, "extra CUE catalog files to merge")
	cmd.Flags().BoolVar(&opts.AttentionFusion, "attention-fusion", attentionFusionDefault(),
		"enable the attention-fusion pre-pipeline")
	cmd.Flags().BoolVar(&opts.FastMinMax, "fast-minmax", false,
		"trade NaN propagation through min/max for speed")
	cmd.Flags().BoolVar(&opts.SkipLayoutNorm, "skip-layout-normalization", false,
		"skip layout normalization ahead of attention fusion")
	cmd.Flags().StringVar(&opts.DumpDir, "dump-dir", "", "directory for intermediate IR dumps")
	cmd.Flags().IntVar(&opts.MaxFixedPoint, "max-fixed-point-iterations", 0,
		"cap for fixed-point sub-pipelines (0 = default)")
	cmd.Flags().StringSliceVar(&opts.OverrideFiles, "ir-override", nil,
		"candidate files holding replacement IR for codegen")
}

// attentionFusionDefault resolves the flag default from the environment.
func attentionFusionDefault() bool {
	return os.Getenv(EnvDisableAttentionFusion) == ""
}

// debugOptions converts the resolved flags into module debug options.
func (o *ModuleOptions) debugOptions() ir.DebugOptions {
	return ir.DebugOptions{
		IROverrideFiles:         o.OverrideFiles,
		EnableAttentionFusion:   o.AttentionFusion,
		EnableFastMinMax:        o.FastMinMax,
		NormalizeLayouts:        !o.SkipLayoutNorm,
		DumpDir:                 o.DumpDir,
		MaxFixedPointIterations: o.MaxFixedPoint,
	}
}

// loadModule reads an IR text file, resolves the target device, and
// returns the module configured for compilation. The error code names
// which stage failed.
func loadModule(path string, opts *ModuleOptions) (*ir.Module, device.Capability, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, device.Capability{}, ErrCodeRead, WrapExitError(ExitCommandError, "cannot read module", err)
	}

	m, err := ir.Parse(string(data))
	if err != nil {
		return nil, device.Capability{}, ErrCodeParse, WrapExitError(ExitFailure, fmt.Sprintf("parsing %s", path), err)
	}

	catalog, err := device.LoadCatalog(opts.CatalogFiles...)
	if err != nil {
		return nil, device.Capability{}, ErrCodeDevice, WrapExitError(ExitCommandError, "loading device catalog", err)
	}
	capability, ok := catalog.Lookup(opts.Device)
	if !ok {
		return nil, device.Capability{}, ErrCodeDevice, NewExitError(ExitCommandError,
			fmt.Sprintf("unknown device %q (known: %v)", opts.Device, catalog.Names()))
	}

	m.Target = capability
	m.Config.Debug = opts.debugOptions()
	return m, capability, "", nil
}

// commandLogger builds the slog logger handed to the compiler. Quiet by
// default; verbose mode surfaces per-pipeline debug logging on stderr.
func commandLogger(errWriter io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(errWriter, &slog.HandlerOptions{Level: level}))
}
