package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/buildhub/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                     `json:"valid"`
	Path     string                   `json:"path"`
	Builds   int                      `json:"builds,omitempty"`
	Builders int                      `json:"builders,omitempty"`
	Errors   []config.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the config without building",
		Long: `Load and validate buildhub.yaml or buildhub.cue.

YAML is decoded strictly, so misspelled fields are reported. CUE is
checked against the closed config schema. Both are then checked for
consistency: every build must name a declared builder and the log
limits must leave room for a window.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, path, err := loadConfig(f, opts, ExitFailure)
	if err != nil {
		return err
	}

	result := ValidationResult{
		Valid:    true,
		Path:     path,
		Builds:   len(cfg.Builds),
		Builders: len(cfg.Builders),
	}
	if f.IsJSON() {
		return f.Success(result)
	}

	fmt.Fprintf(f.Writer, "✓ Config valid: %s\n", path)
	fmt.Fprintf(f.Writer, "  %d build(s), %d builder(s)\n", result.Builds, result.Builders)
	return nil
}

// outputValidationErrors prints every config problem in the configured
// format.
func outputValidationErrors(f *OutputFormatter, path string, errs config.ValidationErrors) error {
	if f.IsJSON() {
		encoder := json.NewEncoder(f.Writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Path: path, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		})
	}

	fmt.Fprintf(f.Writer, "✗ Invalid config: %s\n", path)
	fmt.Fprintln(f.Writer)
	for _, e := range errs {
		if e.Line > 0 {
			fmt.Fprintf(f.Writer, "line %d\n", e.Line)
		}
		fmt.Fprintf(f.Writer, "  %s: %s: %s\n\n", e.Code, e.Field, e.Message)
	}
	return nil
}
