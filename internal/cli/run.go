package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/storekeeper/internal/database"
	"github.com/roach88/storekeeper/internal/engine"
	"github.com/roach88/storekeeper/internal/reconcile"
	"github.com/roach88/storekeeper/internal/schema"
)

// stageError attaches an output code and exit code to a failure.
type stageError struct {
	exit    int
	code    string
	message string
	err     error
}

func (e *stageError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}
	return e.message
}

func (e *stageError) Unwrap() error {
	return e.err
}

func usageError(message string, err error) error {
	return &stageError{exit: ExitCommandError, code: ErrCodeUsage, message: message, err: err}
}

func notFoundError(message string) error {
	return &stageError{exit: ExitFailure, code: ErrCodeNotFound, message: message}
}

// operation runs against a ready connection on the engine loop. It must
// call done exactly once.
type operation func(s *session, c *database.Connection, done func(data any, err error))

// session is one command's run of the engine loop.
type session struct {
	opts     *RootOptions
	name     string
	version  int64
	declared schema.Descriptor
	report   reconcile.Report
}

// newSession loads the schema file, if any. A name or version set in the
// file applies unless the matching flag was given.
func newSession(cmd *cobra.Command, opts *RootOptions) (*session, error) {
	s := &session{opts: opts, name: opts.Name, version: opts.Version}
	if opts.Schema == "" {
		return s, nil
	}
	file, err := schema.Load(opts.Schema)
	if err != nil {
		return nil, &stageError{exit: ExitCommandError, code: ErrCodeSchema, message: "failed to load schema", err: err}
	}
	s.declared = file.Collections
	if file.Name != "" && !cmd.Flags().Changed("name") {
		s.name = file.Name
	}
	if file.Version != 0 && !cmd.Flags().Changed("db-version") {
		s.version = file.Version
	}
	return s, nil
}

func (s *session) factory() *engine.Factory {
	var fopts []engine.Option
	if s.opts.Legacy {
		fopts = append(fopts, engine.WithLegacyVersioning())
	}
	return engine.NewFactory(s.opts.Dir, fopts...)
}

type outcome struct {
	data any
	err  error
}

// run opens the database, waits until it is ready, and runs op. The engine
// loop, the signal watcher and the result collector run in one errgroup;
// work the loop still holds when op finishes (commits, closing the
// connection) is drained before the factory closes.
func (s *session) run(parent context.Context, op operation) (any, error) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	f := s.factory()
	results := make(chan outcome, 1)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := f.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			select {
			case results <- outcome{err: fmt.Errorf("interrupted by %s", sig)}:
			default:
			}
		case <-gctx.Done():
		}
		return nil
	})

	var out outcome
	g.Go(func() error {
		select {
		case out = <-results:
		case <-gctx.Done():
			out = outcome{err: gctx.Err()}
		}
		cancel()
		return nil
	})

	if !f.Post(func() { s.open(f, op, results) }) {
		cancel()
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("engine loop: %w", err)
	}

	// The loop has stopped; finish pending commits and connection closes
	// on this goroutine.
	f.Flush()
	if err := f.Close(); err != nil {
		slog.Error("error closing databases", "error", err)
	}
	return out.data, out.err
}

// open runs on the loop goroutine.
func (s *session) open(f *engine.Factory, op operation, results chan<- outcome) {
	var c *database.Connection
	finished := false
	finish := func(data any, err error) {
		if finished {
			return
		}
		finished = true
		c.Close()
		select {
		case results <- outcome{data: data, err: err}:
		default:
		}
	}
	start := func() {
		op(s, c, finish)
	}

	c = database.Open(f, s.name, s.version, s.declared,
		database.WithStrictGate(),
		database.WithOpening(start),
		database.WithUpgrade(func(*engine.VersionChangeEvent) { start() }),
		database.WithReconciled(func(r reconcile.Report) { s.report = r }),
		database.WithOpenFailed(func(err error) {
			finish(nil, &stageError{exit: ExitCommandError, code: ErrCodeOpen, message: "failed to open database", err: err})
		}),
	)
}

// execute runs op in a session and writes its result with the formatter.
func execute(cmd *cobra.Command, opts *RootOptions, op operation) error {
	formatter := newFormatter(cmd, opts)

	s, err := newSession(cmd, opts)
	if err != nil {
		return report(formatter, err)
	}
	formatter.VerboseLog("opening %q at version %d in %s", s.name, s.version, opts.Dir)

	data, err := s.run(cmd.Context(), op)
	if err != nil {
		return report(formatter, err)
	}
	return formatter.Success(data)
}

func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// report writes err and converts it to an ExitError.
func report(formatter *OutputFormatter, err error) error {
	var se *stageError
	if errors.As(err, &se) {
		return formatter.Fail(se.exit, se.code, se.message, se.err)
	}
	return formatter.Fail(ExitFailure, ErrCodeOperation, "operation failed", err)
}
