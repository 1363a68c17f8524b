package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cinder-ml/cinder/internal/compiler"
	"github.com/cinder-ml/cinder/internal/ir"
)

// CanonicalizeCmdOptions holds flags for the canonicalize command.
type CanonicalizeCmdOptions struct {
	*RootOptions
	Module ModuleOptions
	Output string
}

// CanonicalizeResult is the JSON payload of a canonicalize run.
type CanonicalizeResult struct {
	Module      string `json:"module"`
	Device      string `json:"device"`
	Fingerprint string `json:"fingerprint"`
	Text        string `json:"text"`
}

// NewCanonicalizeCommand creates the canonicalize command.
func NewCanonicalizeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CanonicalizeCmdOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "canonicalize <module.txt>",
		Short: "Run convolution canonicalization and print the result",
		Long: `Run the convolution canonicalization pipeline on a module and
print the canonical IR text. Useful for inspecting what the compiler will
hand to layout assignment, and for producing golden files.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCanonicalize(opts, args[0], cmd)
		},
	}

	addModuleFlags(cmd, &opts.Module)
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write canonical IR to a file instead of stdout")

	return cmd
}

func runCanonicalize(opts *CanonicalizeCmdOptions, path string, cmd *cobra.Command) error {
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

	c := compiler.New(compiler.WithLogger(commandLogger(cmd.ErrOrStderr(), opts.Verbose)))
	if err := c.OptimizeConvCanonicalization(m); err != nil {
		return outputCompileError(formatter, ErrCodeCompile, err)
	}

	text := ir.Print(m)
	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(text), 0o644); err != nil {
			return outputCommandError(formatter, ErrCodeRead,
				WrapExitError(ExitCommandError, "writing output", err))
		}
	}

	if opts.Format == "json" {
		return formatter.Success(CanonicalizeResult{
			Module:      m.Name,
			Device:      capability.String(),
			Fingerprint: ir.Fingerprint(m),
			Text:        text,
		})
	}
	if opts.Output == "" {
		fmt.Fprint(formatter.Writer, text)
	} else {
		fmt.Fprintf(formatter.Writer, "✓ Canonicalized %s into %s\n", m.Name, opts.Output)
	}
	return nil
}
