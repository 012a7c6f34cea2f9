// Command sightline runs the sightline language server, or builds a
// workspace from the command line.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "sightline:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serve := newServeCmd()
	root := &cobra.Command{
		Use:           "sightline",
		Short:         "Code intelligence language server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		// Editors launch the binary without a subcommand.
		RunE: serve.RunE,
	}
	root.Flags().AddFlagSet(serve.Flags())

	root.PersistentFlags().String("log-level", "info", "log level (debug|info|warn|error)")
	root.PersistentFlags().String("log-format", "auto", "log format (auto|text|json)")
	root.PersistentFlags().Bool("trace", false, "export request spans and metrics to stderr")

	root.AddCommand(serve, newBuildCmd())
	return root
}

// newLogger builds the process logger from the persistent flags. Logs go to
// stderr: stdout may be the protocol stream.
func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	return loggerFor(cmd, os.Stderr)
}

func loggerFor(cmd *cobra.Command, w io.Writer) (*slog.Logger, error) {
	flags := cmd.Root().PersistentFlags()
	levelStr, err := flags.GetString("log-level")
	if err != nil {
		return nil, err
	}
	format, err := flags.GetString("log-format")
	if err != nil {
		return nil, err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", levelStr, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(format) {
	case "auto":
		if f, ok := w.(*os.File); ok && isTerminal(f) {
			return slog.New(slog.NewTextHandler(w, opts)), nil
		}
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("invalid --log-format %q", format)
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
