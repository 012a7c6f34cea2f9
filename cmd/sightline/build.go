package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gossip-lsp/sightline/build"
	"github.com/gossip-lsp/sightline/config"
	"github.com/gossip-lsp/sightline/document"
	"github.com/gossip-lsp/sightline/protocol"
	"github.com/gossip-lsp/sightline/serial"
	"github.com/gossip-lsp/sightline/settings"
	"github.com/gossip-lsp/sightline/treesitter"
	"github.com/gossip-lsp/sightline/tsengine"
)

var errBuildFailed = errors.New("build failed")

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [dir]",
		Short: "Build a run configuration of a workspace and print its messages",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runBuild,
	}
	f := cmd.Flags()
	f.String("config", "default", "run configuration id")
	f.Bool("force", false, "check every file, not only changed ones")
	f.Bool("ignore-errors", false, "ignore the exit status of the external checker")
	f.String("color", "auto", "colorize output (auto|on|off)")
	return cmd
}

func runBuild(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	f := cmd.Flags()
	id, _ := f.GetString("config")
	force, _ := f.GetBool("force")
	ignoreErrors, _ := f.GetBool("ignore-errors")
	mode, _ := f.GetString("color")
	switch mode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "auto":
		color.NoColor = !isTerminal(os.Stdout)
	default:
		return fmt.Errorf("invalid --color %q", mode)
	}

	defaults := settings.Default()
	cfg, err := config.LoadTOML(filepath.Join(root, settings.FileName), &defaults)
	if err != nil {
		return err
	}

	q := serial.New(logger)
	defer q.Close()

	ctx := cmd.Context()
	reg := treesitter.NewRegistry(treesitter.DefaultConfig())
	index := tsengine.New(tsengine.WithLogger(logger), tsengine.WithRegistry(reg))
	if err := index.Load(ctx, q, root); err != nil {
		return err
	}
	compiler := tsengine.NewCompiler(index, q, func() *settings.Settings { return cfg },
		tsengine.WithCompilerLogger(logger))

	out := newConsole(cmd.OutOrStdout(), root)
	o := build.New(compiler, q, out, build.WithLogger(logger))
	res := o.Build(ctx, protocol.BuildProjectParams{
		ID:               id,
		ForceMakeProject: force,
		IgnoreErrors:     ignoreErrors,
	})
	if !res.Started {
		return fmt.Errorf("run configuration %q was not built", id)
	}

	select {
	case r := <-out.finished:
		out.summary(r)
		if !r.Succeeded() {
			return errBuildFailed
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// console prints build notifications as file:line:col lines.
type console struct {
	w        io.Writer
	root     string
	finished chan protocol.BuildResult

	errColor  *color.Color
	warnColor *color.Color
	infoColor *color.Color
	dimColor  *color.Color
}

func newConsole(w io.Writer, root string) *console {
	return &console{
		w:         w,
		root:      root,
		finished:  make(chan protocol.BuildResult, 1),
		errColor:  color.New(color.FgRed, color.Bold),
		warnColor: color.New(color.FgYellow, color.Bold),
		infoColor: color.New(color.FgCyan),
		dimColor:  color.New(color.Faint),
	}
}

func (c *console) WarnNoToolchain(context.Context) {
	c.warnColor.Fprintln(c.w, "warning: no toolchain configured; set build.toolchain in "+settings.FileName)
}

func (c *console) BuildMessages(_ context.Context, msg protocol.BuildMessages) {
	name := "<workspace>"
	if msg.URI != "" {
		name = document.PathFromURI(msg.URI)
		if rel, err := filepath.Rel(c.root, name); err == nil {
			name = rel
		}
	}
	for _, d := range msg.Diagnostics {
		var label string
		switch d.Severity {
		case protocol.SeverityError:
			label = c.errColor.Sprint("error")
		case protocol.SeverityWarning:
			label = c.warnColor.Sprint("warning")
		case protocol.SeverityInformation:
			label = c.infoColor.Sprint("info")
		default:
			c.dimColor.Fprintf(c.w, "%s\n", d.Message)
			continue
		}
		fmt.Fprintf(c.w, "%s:%d:%d: %s: %s\n", name, d.Range.Start.Line+1, d.Range.Start.Character+1, label, d.Message)
	}
}

func (c *console) BuildFinished(_ context.Context, p protocol.BuildFinishedParams) {
	select {
	case c.finished <- p.Result:
	default:
	}
}

func (c *console) summary(r protocol.BuildResult) {
	switch {
	case r.Aborted:
		c.errColor.Fprintln(c.w, "build aborted")
	case r.Errors > 0:
		c.errColor.Fprintf(c.w, "build failed: %d error(s), %d warning(s)\n", r.Errors, r.Warnings)
	default:
		color.New(color.FgGreen, color.Bold).Fprintf(c.w, "build succeeded: %d warning(s)\n", r.Warnings)
	}
}
