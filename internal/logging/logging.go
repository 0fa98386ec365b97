// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
)

// Formats lists the accepted log formats.
var Formats = []string{"text", "json"}

// New builds a logger writing to w. Verbose enables debug records;
// otherwise only warnings and errors are written.
func New(w io.Writer, verbose bool, format string) (*slog.Logger, error) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	switch format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: must be one of %v", format, Formats)
	}
}

// Setup installs the logger from New as the slog default.
func Setup(w io.Writer, verbose bool, format string) error {
	logger, err := New(w, verbose, format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}
