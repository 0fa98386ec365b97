package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/storekeeper/internal/database"
)

// MigrateResult reports the database after opening it.
type MigrateResult struct {
	Database    string         `json:"database"`
	Version     int64          `json:"version"`
	Collections []string       `json:"collections"`
	Created     []string       `json:"created,omitempty"`
	Seeded      map[string]int `json:"seeded,omitempty"`
	Indexes     []string       `json:"indexes,omitempty"`
	Deleted     []string       `json:"deleted,omitempty"`
}

func (r MigrateResult) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "database %s at version %d\n", r.Database, r.Version)
	if len(r.Created) == 0 && len(r.Indexes) == 0 && len(r.Deleted) == 0 {
		fmt.Fprintln(w, "schema up to date")
	}
	for _, name := range r.Created {
		fmt.Fprintf(w, "created %s (%d seed records)\n", name, r.Seeded[name])
	}
	for _, name := range r.Indexes {
		fmt.Fprintf(w, "created index %s\n", name)
	}
	for _, name := range r.Deleted {
		fmt.Fprintf(w, "deleted %s\n", name)
	}
	_, err := fmt.Fprintf(w, "collections: %s\n", strings.Join(r.Collections, ", "))
	return err
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Open the database and reconcile it with the schema",
		Long: `Open the database at the declared version. When the stored version is
lower, missing collections and indexes are created, undeclared collections
are deleted, and at version 1 new collections receive their seed records.

Example:
  storekeeper migrate --schema notes.yaml --db-version 2`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, rootOpts, func(s *session, c *database.Connection, done func(any, error)) {
				done(MigrateResult{
					Database:    c.Name(),
					Version:     c.Version(),
					Collections: c.Collections(),
					Created:     s.report.Created,
					Seeded:      s.report.Seeded,
					Indexes:     s.report.Indexes,
					Deleted:     s.report.Deleted,
				}, nil)
			})
		},
	}
}

// IndexInfo describes one index in inspect output.
type IndexInfo struct {
	Name    string `json:"name"`
	KeyPath string `json:"keyPath"`
	Unique  bool   `json:"unique"`
}

// CollectionInfo describes one collection in inspect output.
type CollectionInfo struct {
	Name          string      `json:"name"`
	KeyPath       string      `json:"keyPath,omitempty"`
	AutoIncrement bool        `json:"autoIncrement"`
	Indexes       []IndexInfo `json:"indexes"`
}

// InspectResult is the stored structure of a database.
type InspectResult struct {
	Database    string           `json:"database"`
	Version     int64            `json:"version"`
	Collections []CollectionInfo `json:"collections"`
}

func (r InspectResult) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "database %s (version %d)\n", r.Database, r.Version)
	for _, c := range r.Collections {
		keyPath := c.KeyPath
		if keyPath == "" {
			keyPath = "(out of line)"
		}
		fmt.Fprintf(w, "\n%s\n", c.Name)
		fmt.Fprintf(w, "  keyPath:       %s\n", keyPath)
		fmt.Fprintf(w, "  autoIncrement: %t\n", c.AutoIncrement)
		for _, idx := range c.Indexes {
			unique := ""
			if idx.Unique {
				unique = " unique"
			}
			fmt.Fprintf(w, "  index %s on %s%s\n", idx.Name, idx.KeyPath, unique)
		}
	}
	return nil
}

func inspect(c *database.Connection) InspectResult {
	result := InspectResult{
		Database:    c.Name(),
		Version:     c.Version(),
		Collections: []CollectionInfo{},
	}
	db := c.Database()
	for _, name := range c.Collections() {
		info, ok := db.ObjectStoreInfo(name)
		if !ok {
			continue
		}
		ci := CollectionInfo{
			Name:          name,
			KeyPath:       info.KeyPath,
			AutoIncrement: info.AutoIncrement,
			Indexes:       []IndexInfo{},
		}
		for _, idx := range info.Indexes {
			ci.Indexes = append(ci.Indexes, IndexInfo{Name: idx.Name, KeyPath: idx.KeyPath, Unique: idx.Unique})
		}
		sort.Slice(ci.Indexes, func(i, j int) bool { return ci.Indexes[i].Name < ci.Indexes[j].Name })
		result.Collections = append(result.Collections, ci)
	}
	return result
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "inspect",
		Short:         "Print the collections, key paths and indexes of the database",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, rootOpts, func(_ *session, c *database.Connection, done func(any, error)) {
				done(inspect(c), nil)
			})
		},
	}
}

// DropResult reports a deleted database.
type DropResult struct {
	Database   string `json:"database"`
	OldVersion int64  `json:"oldVersion"`
}

func (r DropResult) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "dropped %s (was version %d)\n", r.Database, r.OldVersion)
	return err
}

// NewDropCommand creates the drop command.
func NewDropCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "drop",
		Short:         "Delete the database",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, rootOpts, func(_ *session, c *database.Connection, done func(any, error)) {
				c.Destroy().
					OnSuccess(func(oldVersion int64) {
						done(DropResult{Database: c.Name(), OldVersion: oldVersion}, nil)
					}).
					OnError(func(err error) { done(nil, err) })
			})
		},
	}
}
