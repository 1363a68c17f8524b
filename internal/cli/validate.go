package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cinder-ml/cinder/internal/ir"
)

// ValidationIssue is one problem found in one input file.
type ValidationIssue struct {
	File    string `json:"file"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult holds validation results across all inputs.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Files  int               `json:"files"`
	Issues []ValidationIssue `json:"issues,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <module.txt>...",
		Short: "Parse and verify IR modules without compiling",
		Long: `Parse textual IR modules and run structural verification.

Checks operand ordering, name uniqueness, and per-opcode attributes
without running any optimization. Faster than compile for iterating on
hand-written IR.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	var issues []ValidationIssue
	for _, path := range paths {
		formatter.VerboseLog("validating %s", path)

		data, err := os.ReadFile(path)
		if err != nil {
			_ = formatter.Error(ErrCodeRead, err.Error(), nil)
			return WrapExitError(ExitCommandError, "cannot read module", err)
		}

		m, err := ir.Parse(string(data))
		if err != nil {
			issues = append(issues, ValidationIssue{File: path, Code: ErrCodeParse, Message: err.Error()})
			continue
		}
		if err := ir.Verify(m); err != nil {
			issues = append(issues, ValidationIssue{File: path, Code: ErrCodeVerify, Message: err.Error()})
		}
	}

	result := ValidationResult{Valid: len(issues) == 0, Files: len(paths), Issues: issues}

	if len(issues) > 0 {
		if opts.Format == "json" {
			_ = formatter.Error(issues[0].Code, issues[0].Message, result)
		} else {
			fmt.Fprintln(formatter.Writer, "✗ Validation failed")
			for _, issue := range issues {
				fmt.Fprintf(formatter.Writer, "  %s: [%s] %s\n", issue.File, issue.Code, issue.Message)
			}
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d issue(s)", len(issues)))
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ %d module(s) valid\n", len(paths))
	return nil
}
