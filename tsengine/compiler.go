package tsengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/gossip-lsp/sightline/document"
	"github.com/gossip-lsp/sightline/engine"
	"github.com/gossip-lsp/sightline/protocol"
	"github.com/gossip-lsp/sightline/serial"
	"github.com/gossip-lsp/sightline/settings"
	"github.com/gossip-lsp/sightline/treesitter"
)

var errNoToolchain = errors.New("tsengine: no toolchain configured")

// todoCheck flags TODO and FIXME comments.
var todoCheck = treesitter.Check{
	Name:     "todo",
	Pattern:  "(comment) @comment",
	Severity: protocol.SeverityInformation,
	Filter: func(c treesitter.Capture) bool {
		return strings.Contains(c.Text, "TODO") || strings.Contains(c.Text, "FIXME")
	},
	Message: func(c treesitter.Capture) string { return commentText(strings.TrimSpace(c.Text)) },
}

// Languages whose grammar has comment nodes.
var commentLanguages = map[string]bool{langGo: true, langPython: true, "yaml": true}

// toolOutput matches "file:line:col: message" and "file:line: message".
var toolOutput = regexp.MustCompile(`^(.+?):(\d+):(?:(\d+):)?\s*(.+)$`)

// ExecFunc runs an external toolchain command in dir.
type ExecFunc func(ctx context.Context, dir string, argv []string) ([]byte, error)

func runCommand(ctx context.Context, dir string, argv []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithCompilerLogger sets the compiler's logger.
func WithCompilerLogger(l *slog.Logger) CompilerOption {
	return func(c *Compiler) { c.logger = l }
}

// WithExec replaces how external toolchain commands are run.
func WithExec(fn ExecFunc) CompilerOption {
	return func(c *Compiler) { c.exec = fn }
}

// Compiler is the build subsystem over an Index. Builds run a syntax pass
// over the selected files, then the configured external command. Files that
// passed unchanged since the last build are skipped unless the build is
// forced.
type Compiler struct {
	index    *Index
	queue    *serial.Queue
	settings func() *settings.Settings
	logger   *slog.Logger
	exec     ExecFunc

	// content hash per file at its last clean build; owned by queue
	built map[protocol.DocumentURI]uint64
}

// NewCompiler creates a compiler for the files of x. cfg returns the
// current settings.
func NewCompiler(x *Index, q *serial.Queue, cfg func() *settings.Settings, opts ...CompilerOption) *Compiler {
	c := &Compiler{
		index:    x,
		queue:    q,
		settings: cfg,
		logger:   slog.Default(),
		exec:     runCommand,
		built:    make(map[protocol.DocumentURI]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Toolchain returns the configured toolchain, or nil.
func (c *Compiler) Toolchain() *engine.Toolchain {
	s := c.settings()
	if s == nil || s.Build.Toolchain == "" {
		return nil
	}
	return &engine.Toolchain{Name: s.Build.Toolchain, Command: s.Build.Command}
}

// RunConfiguration looks up a run configuration from settings.
func (c *Compiler) RunConfiguration(id string) (engine.RunConfiguration, bool) {
	s := c.settings()
	if s == nil {
		return engine.RunConfiguration{}, false
	}
	rc, ok := s.RunConfiguration(id)
	if !ok {
		return engine.RunConfiguration{}, false
	}
	return engine.RunConfiguration{
		ID:                      rc.ID,
		Name:                    rc.Name,
		Paths:                   rc.Paths,
		SkipCompileBeforeLaunch: rc.SkipCompileBeforeLaunch(),
	}, true
}

// NewBuildTask fails when the configuration selects no indexed files.
func (c *Compiler) NewBuildTask(cfg engine.RunConfiguration, force, ignoreErrors bool) (*engine.BuildTask, error) {
	if len(c.selectFiles(cfg.Paths)) == 0 {
		return nil, fmt.Errorf("tsengine: run configuration %q selects no sources", cfg.ID)
	}
	return &engine.BuildTask{Configuration: cfg, Force: force, IgnoreErrors: ignoreErrors}, nil
}

// Refresh brings closed files in line with the disk and indexes new ones.
func (c *Compiler) Refresh() {
	x := c.index
	for _, f := range x.sortedFiles() {
		if f.open {
			continue
		}
		src, err := x.readFile(document.PathFromURI(f.uri))
		if err != nil {
			x.remove(f.uri)
			continue
		}
		if xxhash.Sum64(src) != f.hash {
			x.reload(f.uri)
		}
	}
	for _, root := range x.roots {
		paths, err := x.sources(root)
		if err != nil {
			c.logger.Warn("tsengine: refresh scan failed", "root", root, "error", err)
			continue
		}
		for _, p := range paths {
			if uri := document.URIFromPath(p); x.files[uri] == nil {
				x.reload(uri)
			}
		}
	}
}

func (c *Compiler) workDir() string {
	if len(c.index.roots) > 0 {
		return c.index.roots[0]
	}
	return ""
}

// selectFiles returns the files under paths, relative to the first
// workspace root. No paths selects everything.
func (c *Compiler) selectFiles(paths []string) []*fileIndex {
	all := c.index.sortedFiles()
	if len(paths) == 0 {
		return all
	}
	var prefixes []string
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(c.workDir(), p)
		}
		prefixes = append(prefixes, string(document.URIFromPath(p)))
	}
	var out []*fileIndex
	for _, f := range all {
		for _, prefix := range prefixes {
			if string(f.uri) == prefix || strings.HasPrefix(string(f.uri), prefix+"/") {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// unit is a file snapshot handed to the build goroutine.
type unit struct {
	uri  protocol.DocumentURI
	lang string
	text string
	hash uint64
}

// SubmitBuild snapshots the files to build and runs the build in the
// background. Results are delivered on the queue.
func (c *Compiler) SubmitBuild(task *engine.BuildTask, sessionID int64, onDiagnostics func(engine.CompileContext), onComplete func(engine.TaskResult)) error {
	tc := c.Toolchain()
	if tc == nil {
		return errNoToolchain
	}
	files := c.selectFiles(task.Configuration.Paths)
	var units []unit
	for _, f := range files {
		if !task.Force && c.built[f.uri] == f.hash {
			continue
		}
		units = append(units, unit{uri: f.uri, lang: f.lang, text: f.src.text, hash: f.hash})
	}

	j := job{
		task:          task,
		sessionID:     sessionID,
		toolchain:     *tc,
		units:         units,
		total:         len(files),
		dir:           c.workDir(),
		onDiagnostics: onDiagnostics,
		onComplete:    onComplete,
	}
	if s := c.settings(); s != nil {
		j.timeout = s.Build.Timeout.Std()
	}
	c.logger.Info("tsengine: build started",
		"session", sessionID,
		"config", task.Configuration.ID,
		"files", len(units),
		"force", task.Force,
	)
	go c.run(j)
	return nil
}

// job is one build running in the background.
type job struct {
	task          *engine.BuildTask
	sessionID     int64
	toolchain     engine.Toolchain
	units         []unit
	total         int
	dir           string
	timeout       time.Duration
	onDiagnostics func(engine.CompileContext)
	onComplete    func(engine.TaskResult)
}

func (c *Compiler) run(j job) {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	start := time.Now()
	msgs := newMessages()
	clean := make(map[protocol.DocumentURI]uint64)
	aborted := false
	for _, u := range j.units {
		if ctx.Err() != nil {
			aborted = true
			break
		}
		if c.check(u, msgs) == 0 {
			clean[u.uri] = u.hash
		}
	}

	tc := j.toolchain
	if !aborted && len(tc.Command) > 0 {
		out, err := c.exec(ctx, j.dir, tc.Command)
		parsed := parseToolOutput(out, j.dir, tc.Name, msgs)
		switch {
		case ctx.Err() != nil:
			aborted = true
			msgs.add(engine.CompilerMessage{
				Category: engine.CategoryError,
				Message:  fmt.Sprintf("%s timed out after %s", tc.Command[0], j.timeout),
				Prefix:   tc.Name,
			})
		case err != nil && parsed == 0 && !j.task.IgnoreErrors:
			msgs.add(engine.CompilerMessage{
				Category: engine.CategoryError,
				Message:  fmt.Sprintf("%s: %v", strings.Join(tc.Command, " "), err),
				Prefix:   tc.Name,
			})
		}
	}

	msgs.add(engine.CompilerMessage{
		Category: engine.CategoryStatistics,
		Message:  fmt.Sprintf("%d of %d files checked in %s", len(j.units), j.total, time.Since(start).Round(time.Millisecond)),
		Prefix:   tc.Name,
	})
	result := engine.TaskResult{
		Errors:   len(msgs.Messages(engine.CategoryError)),
		Warnings: len(msgs.Messages(engine.CategoryWarning)),
		Aborted:  aborted,
	}

	err := c.queue.Submit(func(context.Context) {
		for uri, h := range clean {
			c.built[uri] = h
		}
		j.onDiagnostics(msgs)
		j.onComplete(result)
	})
	if err != nil {
		c.logger.Warn("tsengine: build results dropped", "session", j.sessionID, "error", err)
	}
}

// check runs the syntax pass over one file and returns its error count.
func (c *Compiler) check(u unit, msgs *messages) int {
	lang, err := c.index.registry.LanguageForURI(string(u.uri), u.lang)
	if err != nil {
		return 0
	}
	tree, err := treesitter.Parse(lang, []byte(u.text))
	if err != nil {
		msgs.add(engine.CompilerMessage{Category: engine.CategoryError, Message: err.Error(), URI: u.uri, Prefix: "syntax"})
		return 1
	}
	defer tree.Close()

	src := newSource(u.text)
	errs := 0
	for _, d := range treesitter.SyntaxErrors(tree) {
		pos := src.fromPoint(d.Range).Start
		msgs.add(engine.CompilerMessage{
			Category: engine.CategoryError,
			Message:  d.Message,
			URI:      u.uri,
			Line:     pos.Line,
			Column:   pos.Character,
			Prefix:   d.Source,
		})
		errs++
	}
	if commentLanguages[u.lang] {
		diags, err := todoCheck.Run(tree, lang)
		if err != nil {
			c.logger.Debug("tsengine: todo check failed", "uri", u.uri, "error", err)
		}
		for _, d := range diags {
			pos := src.fromPoint(d.Range).Start
			msgs.add(engine.CompilerMessage{
				Category: engine.CategoryInformation,
				Message:  d.Message,
				URI:      u.uri,
				Line:     pos.Line,
				Column:   pos.Character,
				Prefix:   d.Source,
			})
		}
	}
	return errs
}

// parseToolOutput adds a message per recognised output line and returns
// how many it added. Positions in tool output are one-based.
func parseToolOutput(out []byte, dir, prefix string, msgs *messages) int {
	n := 0
	for _, line := range strings.Split(string(out), "\n") {
		m := toolOutput.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		path := m[1]
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		lineNo, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		cat := engine.CategoryError
		if strings.HasPrefix(strings.ToLower(m[4]), "warning") {
			cat = engine.CategoryWarning
		}
		msgs.add(engine.CompilerMessage{
			Category: cat,
			Message:  m[4],
			URI:      document.URIFromPath(path),
			Line:     toUint32(max(lineNo-1, 0)),
			Column:   toUint32(max(col-1, 0)),
			Prefix:   prefix,
		})
		n++
	}
	return n
}

// messages is the CompileContext of one build.
type messages struct {
	mu    sync.Mutex
	byCat map[engine.MessageCategory][]engine.CompilerMessage
}

func newMessages() *messages {
	return &messages{byCat: make(map[engine.MessageCategory][]engine.CompilerMessage)}
}

func (m *messages) add(msg engine.CompilerMessage) {
	m.mu.Lock()
	m.byCat[msg.Category] = append(m.byCat[msg.Category], msg)
	m.mu.Unlock()
}

func (m *messages) Messages(c engine.MessageCategory) []engine.CompilerMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]engine.CompilerMessage(nil), m.byCat[c]...)
}

var _ engine.BuildSubsystem = (*Compiler)(nil)
