package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/storekeeper/internal/database"
	"github.com/roach88/storekeeper/internal/engine"
	"github.com/roach88/storekeeper/internal/value"
)

// changeResult reports a write.
type changeResult struct {
	Action     string `json:"action"` // "stored" | "deleted" | "cleared"
	Collection string `json:"collection"`
	Key        any    `json:"key,omitempty"`

	key value.Value
}

func (r changeResult) WriteText(w io.Writer) error {
	if r.key == nil {
		_, err := fmt.Fprintf(w, "%s %s\n", r.Action, r.Collection)
		return err
	}
	_, err := fmt.Fprintf(w, "%s %s %s\n", r.Action, r.Collection, value.Format(r.key))
	return err
}

func newChange(action, collection string, key value.Value) changeResult {
	return changeResult{Action: action, Collection: collection, Key: value.ToGo(key), key: key}
}

// recordResult is one record read by key.
type recordResult struct {
	Collection string `json:"collection"`
	Key        any    `json:"key"`
	Record     any    `json:"record"`

	record value.Value
}

func (r recordResult) WriteText(w io.Writer) error {
	_, err := fmt.Fprintln(w, value.Format(r.record))
	return err
}

// recordsResult lists records in cursor order.
type recordsResult struct {
	Collection string `json:"collection"`
	Records    []any  `json:"records"`

	values []value.Value
}

func (r recordsResult) WriteText(w io.Writer) error {
	if len(r.values) == 0 {
		_, err := fmt.Fprintln(w, "(no records)")
		return err
	}
	for _, v := range r.values {
		if _, err := fmt.Fprintln(w, value.Format(v)); err != nil {
			return err
		}
	}
	return nil
}

// parseArg reads a command-line value as JSON, falling back to a plain
// string so that `get notes abc` needs no quoting.
func parseArg(arg string) value.Value {
	v, err := value.Parse([]byte(arg))
	if err != nil {
		return value.String(arg)
	}
	return v
}

// committed reports a write once its transaction commits. A transaction
// that aborts after the request succeeded reports the abort instead.
func committed(done func(any, error), result func(*engine.Request) any) database.Callbacks {
	return database.Callbacks{
		OnSuccess: func(r *engine.Request) {
			data := result(r)
			r.Transaction().
				OnComplete(func() { done(data, nil) }).
				OnAbort(func(err error) { done(nil, err) })
		},
		OnError: func(err error) { done(nil, err) },
	}
}

// collect drains a cursor request into a recordsResult.
func collect(collection string, done func(any, error)) database.Callbacks {
	result := recordsResult{Collection: collection, Records: []any{}}
	return database.Callbacks{
		OnSuccess: func(r *engine.Request) {
			cur := r.Cursor()
			if cur == nil {
				done(result, nil)
				return
			}
			result.values = append(result.values, cur.Value())
			result.Records = append(result.Records, value.ToGo(cur.Value()))
			if err := cur.Continue(); err != nil {
				done(nil, err)
			}
		},
		OnError: func(err error) { done(nil, err) },
	}
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "put <collection> <json>",
		Short: "Store a record, replacing any record with the same key",
		Long: `Store a JSON record in a collection. Collections that generate keys
assign one when the record has none; the stored key is printed.

Example:
  storekeeper put notes '{"text": "buy milk"}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			collection := args[0]
			rec, err := value.Parse([]byte(args[1]))
			if err != nil {
				return report(newFormatter(cmd, rootOpts), usageError("record is not valid JSON", err))
			}
			return execute(cmd, rootOpts, func(_ *session, c *database.Connection, done func(any, error)) {
				c.Create(collection, rec, committed(done, func(r *engine.Request) any {
					return newChange("stored", collection, r.Key())
				}))
			})
		},
	}
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <collection> <key>",
		Short: "Print the record stored under a key",
		Long: `Print the record stored under a key. The key is read as JSON when it
parses (42, "42", [1,"a"]) and as a string otherwise.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			collection, key := args[0], parseArg(args[1])
			return execute(cmd, rootOpts, func(_ *session, c *database.Connection, done func(any, error)) {
				c.Read(collection, key, database.Callbacks{
					OnSuccess: func(r *engine.Request) {
						rec := r.Value()
						if rec == nil {
							done(nil, notFoundError(fmt.Sprintf("no record in %q under key %s", collection, value.Format(key))))
							return
						}
						done(recordResult{Collection: collection, Key: value.ToGo(key), Record: value.ToGo(rec), record: rec}, nil)
					},
					OnError: func(err error) { done(nil, err) },
				})
			})
		},
	}
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list <collection>",
		Short:         "Print every record from key 0 upward",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			collection := args[0]
			return execute(cmd, rootOpts, func(_ *session, c *database.Connection, done func(any, error)) {
				c.ReadAll(collection, collect(collection, done))
			})
		},
	}
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <collection> <key>",
		Short:         "Delete the record stored under a key",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			collection, key := args[0], parseArg(args[1])
			return execute(cmd, rootOpts, func(_ *session, c *database.Connection, done func(any, error)) {
				c.Remove(collection, key, committed(done, func(*engine.Request) any {
					return newChange("deleted", collection, key)
				}))
			})
		},
	}
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "clear <collection>",
		Short:         "Delete every record in a collection",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			collection := args[0]
			return execute(cmd, rootOpts, func(_ *session, c *database.Connection, done func(any, error)) {
				c.Empty(collection, committed(done, func(*engine.Request) any {
					return newChange("cleared", collection, nil)
				}))
			})
		},
	}
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "find <collection> <index> <term>",
		Short: "Print the records whose index key matches a term",
		Long: `Print the records whose index key matches a term, in index order.

A term is a single key, matched exactly, or a [low, high] pair matched
inclusively. A bound of 0 leaves that side open:

  storekeeper find people byAge '[18, 65]'   # 18 <= age <= 65
  storekeeper find people byAge '[0, 18]'    # age <= 18
  storekeeper find people byAge '[65, 0]'    # age >= 65
  storekeeper find people byCity oslo`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			collection, index, term := args[0], args[1], parseArg(args[2])
			if _, err := database.BuildRange(term); err != nil {
				return report(newFormatter(cmd, rootOpts), usageError("invalid find term", err))
			}
			return execute(cmd, rootOpts, func(_ *session, c *database.Connection, done func(any, error)) {
				c.Find(collection, index, term, collect(collection, done))
			})
		},
	}
}
