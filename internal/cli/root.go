package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/storekeeper/internal/logging"
	"github.com/roach88/storekeeper/internal/schema"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose   bool
	Format    string // "json" | "text"
	LogFormat string // "text" | "json"

	Dir     string // directory holding the database files
	Name    string // database name
	Version int64  // declared version
	Schema  string // schema file; empty uses the default descriptor
	Legacy  bool   // open without upgrading, then upgrade through set-version
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the storekeeper CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "storekeeper",
		Short: "storekeeper - schema-aware embedded store",
		Long: `Open, migrate and query embedded databases described by a versioned schema.

Every command opens the database at the declared version. When the stored
version is lower, the stored collections are reconciled with the schema first.`,
		SilenceUsage:  true,
		SilenceErrors: true, // main prints errors not already reported
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				formatter := &OutputFormatter{Format: "text", Writer: cmd.ErrOrStderr()}
				return formatter.Fail(ExitCommandError, ErrCodeUsage, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats), nil)
			}
			formatter := newFormatter(cmd, opts)
			if opts.Version < 1 {
				return formatter.Fail(ExitCommandError, ErrCodeUsage, fmt.Sprintf("invalid version %d: must be at least 1", opts.Version), nil)
			}
			if err := logging.Setup(cmd.ErrOrStderr(), opts.Verbose, opts.LogFormat); err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeUsage, "invalid log format", err)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "text", "log format on stderr (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Dir, "dir", ".storekeeper", "directory holding the database files")
	cmd.PersistentFlags().StringVar(&opts.Name, "name", schema.DefaultName, "database name")
	cmd.PersistentFlags().Int64Var(&opts.Version, "db-version", schema.InitialVersion, "declared database version")
	cmd.PersistentFlags().StringVarP(&opts.Schema, "schema", "s", "", "schema file (.yaml, .json or .cue); default declares defaultStore")
	cmd.PersistentFlags().BoolVar(&opts.Legacy, "legacy", false, "open first and upgrade afterwards, as legacy engines do")

	// Add subcommands
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))
	cmd.AddCommand(NewFindCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewDropCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
