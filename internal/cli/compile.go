package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cinder-ml/cinder/internal/compiler"
	"github.com/cinder-ml/cinder/internal/device"
	"github.com/cinder-ml/cinder/internal/ir"
	"github.com/cinder-ml/cinder/internal/store"
)

// CompileCmdOptions holds flags for the compile command.
type CompileCmdOptions struct {
	*RootOptions
	Module        ModuleOptions
	Output        string
	Relocatable   bool
	SkipExpensive bool
	TraceDB       string
}

// CompileResult summarizes one successful compilation.
type CompileResult struct {
	Module      string `json:"module"`
	Device      string `json:"device"`
	Fingerprint string `json:"fingerprint"`
	Output      string `json:"output"`
	BinarySize  int    `json:"binary_size"`
	TraceID     string `json:"trace_id,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileCmdOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <module.txt>",
		Short: "Compile an IR module to a device binary",
		Long: `Compile a textual IR module for a target device.

Runs convolution canonicalization, the post-layout-assignment rewrites,
and binary assembly, then writes the device payload to the output file.

Examples:
  cinder compile model.txt --device xe_hpc -o model.bin
  cinder compile model.txt --device gen9 --trace-db ./traces.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	addModuleFlags(cmd, &opts.Module)
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default <module>.bin)")
	cmd.Flags().BoolVar(&opts.Relocatable, "relocatable", false, "emit a relocatable payload")
	cmd.Flags().BoolVar(&opts.SkipExpensive, "skip-expensive", false, "skip expensive base-pipeline passes")
	cmd.Flags().StringVar(&opts.TraceDB, "trace-db", "", "SQLite database recording the pass trace")

	return cmd
}

func runCompile(opts *CompileCmdOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	m, capability, code, err := loadModule(path, &opts.Module)
	if err != nil {
		return outputCommandError(formatter, code, err)
	}
	formatter.VerboseLog("compiling %s for %s", m.Name, capability)

	fingerprint := ir.Fingerprint(m)

	var trace *store.Trace
	compilerOpts := []compiler.Option{
		compiler.WithLogger(commandLogger(cmd.ErrOrStderr(), opts.Verbose)),
	}
	if opts.TraceDB != "" {
		st, err := store.Open(opts.TraceDB)
		if err != nil {
			return outputCommandError(formatter, ErrCodeDatabase,
				WrapExitError(ExitCommandError, "opening trace store", err))
		}
		defer st.Close()

		trace, err = st.BeginCompilation(context.Background(), m.Name, fingerprint, capability.String())
		if err != nil {
			return outputCommandError(formatter, ErrCodeDatabase,
				WrapExitError(ExitCommandError, "recording compilation", err))
		}
		compilerOpts = append(compilerOpts, compiler.WithObserver(trace))
	}

	c := compiler.New(compilerOpts...)
	exec := &device.StaticExecutor{DeviceName: opts.Module.Device, Cap: capability}

	if err := c.OptimizeConvCanonicalization(m); err != nil {
		return outputCompileError(formatter, ErrCodeCompile, err)
	}
	compileOpts := compiler.CompileOptions{SkipExpensivePasses: opts.SkipExpensive}
	if err := c.OptimizePostLayoutAssignment(m, exec, compileOpts, nil); err != nil {
		return outputCompileError(formatter, ErrCodeCompile, err)
	}

	binary, err := c.CompileTargetBinary(m.Config, m, capability, opts.Relocatable, m, compileOpts)
	if err != nil {
		return outputCompileError(formatter, ErrCodeCodegen, err)
	}

	output := opts.Output
	if output == "" {
		output = ir.FilenameFor(m) + ".bin"
	}
	if err := os.WriteFile(output, binary.Binary, 0o644); err != nil {
		return outputCommandError(formatter, ErrCodeRead,
			WrapExitError(ExitCommandError, "writing output", err))
	}

	if trace != nil {
		if err := trace.Err(); err != nil {
			formatter.VerboseLog("trace incomplete: %v", err)
		}
		formatter.VerboseLog("recorded %d pass runs as %s", trace.Written(), trace.ID())
	}

	result := CompileResult{
		Module:      m.Name,
		Device:      capability.String(),
		Fingerprint: fingerprint,
		Output:      output,
		BinarySize:  len(binary.Binary),
	}
	if trace != nil {
		result.TraceID = trace.ID()
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Compiled %s for %s\n", result.Module, result.Device)
	fmt.Fprintf(formatter.Writer, "  %s (%d bytes)\n", result.Output, result.BinarySize)
	if result.TraceID != "" {
		fmt.Fprintf(formatter.Writer, "  trace %s\n", result.TraceID)
	}
	return nil
}

// outputCommandError reports a setup failure (exit code 2 unless the
// wrapped error says otherwise).
func outputCommandError(formatter *OutputFormatter, code string, err error) error {
	_ = formatter.Error(code, err.Error(), nil)
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	return WrapExitError(ExitCommandError, code, err)
}

// outputCompileError reports an optimization or codegen failure (exit
// code 1).
func outputCompileError(formatter *OutputFormatter, code string, err error) error {
	_ = formatter.Error(code, err.Error(), nil)
	return WrapExitError(ExitFailure, code, err)
}
