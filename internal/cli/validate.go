package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/roach88/storekeeper/internal/schema"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool     `json:"valid"`
	Name        string   `json:"name,omitempty"`
	Version     int64    `json:"version,omitempty"`
	Collections []string `json:"collections,omitempty"`
	Errors      []string `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema-file>",
		Short: "Validate a schema file without opening a database",
		Long: `Parse and validate a schema file (.yaml, .json or .cue).

Reports every problem at once: malformed or non-normalized names, duplicate
index names, malformed key paths, and seed records without a usable key.`,
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
	formatter := newFormatter(cmd, opts)
	formatter.VerboseLog("Validating schema %s", path)

	file, err := schema.Load(path)
	if err != nil {
		var merr *multierror.Error
		if errors.As(err, &merr) {
			return outputValidationErrors(formatter, merr.Errors)
		}
		return outputValidateError(formatter, ErrCodeSchema, err.Error(), nil)
	}

	return outputValidateSuccess(formatter, file)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, file *schema.File) error {
	if formatter.Format == "json" {
		result := ValidationResult{
			Valid:       true,
			Name:        file.Name,
			Version:     file.Version,
			Collections: file.Collections.Names(),
		}
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Schema valid (%d collection(s))\n", len(file.Collections))
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Unreadable schemas are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []error) error {
	messages := make([]string, len(errs))
	for i, err := range errs {
		messages[i] = err.Error()
	}

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data: ValidationResult{
				Valid:  false,
				Errors: messages,
			},
			Error: &CLIError{
				Code:    ErrCodeSchema,
				Message: messages[0],
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, msg := range messages {
		fmt.Fprintf(formatter.Writer, "  %s: %s\n", ErrCodeSchema, msg)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
