package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/thinker/internal/harness"
)

// FileValidation holds the validation result of one scenario file.
type FileValidation struct {
	Path   string                    `json:"path"`
	Valid  bool                      `json:"valid"`
	Errors []harness.ValidationError `json:"errors,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario-file|scenarios-dir>",
		Short: "Validate scenarios without running them",
		Long: `Validate scenario files against the scenario schema.

Performs YAML syntax checking, CUE schema validation, and consistency
checks (unknown thinkers, steps past the last tick) without running
anything.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	files, err := FindScenarioFiles(path, "")
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputValidateError(formatter, ErrCodeGeneric, err.Error())
	}
	if len(files) == 0 {
		return outputValidateError(formatter, ErrCodeNoFiles, fmt.Sprintf("no scenario files found in %s", path))
	}

	result := ValidationResult{Valid: true, Files: make([]FileValidation, 0, len(files))}
	for _, file := range files {
		formatter.VerboseLog("Validating %s", file)
		fv := validateFile(file)
		if !fv.Valid {
			result.Valid = false
		}
		result.Files = append(result.Files, fv)
	}

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return formatter.Success(result, fmt.Sprintf("✓ All scenarios valid (%d file(s))", len(files)))
}

// validateFile validates one scenario file.
func validateFile(path string) FileValidation {
	fv := FileValidation{Path: path, Valid: true}

	data, err := os.ReadFile(path)
	if err != nil {
		fv.Valid = false
		fv.Errors = []harness.ValidationError{{Field: "file", Message: err.Error(), Code: ErrCodeGeneric}}
		return fv
	}

	if _, err := harness.ParseScenario(data); err != nil {
		fv.Valid = false
		fv.Errors = validationErrors(err)
		if fv.Errors == nil {
			fv.Errors = []harness.ValidationError{{Field: "scenario", Message: err.Error(), Code: harness.ErrSchemaViolation}}
		}
	}
	return fv
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	// Missing or empty inputs are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs the failing files and their errors.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	count := 0
	var first harness.ValidationError
	for _, fv := range result.Files {
		if count == 0 && len(fv.Errors) > 0 {
			first = fv.Errors[0]
		}
		count += len(fv.Errors)
	}

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    first.Code,
				Message: first.Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", count))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	for _, fv := range result.Files {
		if fv.Valid {
			continue
		}
		fmt.Fprintln(formatter.Writer)
		fmt.Fprintln(formatter.Writer, fv.Path)
		for _, err := range fv.Errors {
			if err.Line > 0 {
				fmt.Fprintf(formatter.Writer, "  line %d: %s: %s (%s)\n", err.Line, err.Code, err.Message, err.Field)
				continue
			}
			fmt.Fprintf(formatter.Writer, "  %s: %s (%s)\n", err.Code, err.Message, err.Field)
		}
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", count))
}
