package sightline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/gossip-lsp/sightline/build"
	"github.com/gossip-lsp/sightline/command"
	"github.com/gossip-lsp/sightline/config"
	"github.com/gossip-lsp/sightline/definition"
	"github.com/gossip-lsp/sightline/document"
	"github.com/gossip-lsp/sightline/hover"
	"github.com/gossip-lsp/sightline/jsonrpc"
	"github.com/gossip-lsp/sightline/protocol"
	"github.com/gossip-lsp/sightline/serial"
	"github.com/gossip-lsp/sightline/settings"
	"github.com/gossip-lsp/sightline/treesitter"
	"github.com/gossip-lsp/sightline/tsengine"
	"github.com/gossip-lsp/sightline/usages"
)

// IntelligenceOption configures NewIntelligence.
type IntelligenceOption func(*intelligenceConfig)

type intelligenceConfig struct {
	workers   int
	tp        trace.TracerProvider
	mp        metric.MeterProvider
	exec      tsengine.ExecFunc
	hoverCost int64
	stateHook func(int64, build.State)
}

// WithCommandWorkers bounds how many commands run at once.
func WithCommandWorkers(n int) IntelligenceOption {
	return func(c *intelligenceConfig) { c.workers = n }
}

// WithTelemetry routes command spans and metrics to tp and mp instead of
// the global providers.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) IntelligenceOption {
	return func(c *intelligenceConfig) { c.tp, c.mp = tp, mp }
}

// WithBuildExec replaces how external toolchain commands are run.
func WithBuildExec(fn tsengine.ExecFunc) IntelligenceOption {
	return func(c *intelligenceConfig) { c.exec = fn }
}

// WithHoverCache sets the hover cache budget in bytes; 0 disables it.
func WithHoverCache(maxCost int64) IntelligenceOption {
	return func(c *intelligenceConfig) { c.hoverCost = maxCost }
}

// WithBuildStateHook observes build state transitions.
func WithBuildStateHook(fn func(sessionID int64, s build.State)) IntelligenceOption {
	return func(c *intelligenceConfig) { c.stateHook = fn }
}

// Intelligence connects the code-intelligence packages to a Server. All
// engine state is owned by one serial queue; requests run as commands on a
// bounded executor.
type Intelligence struct {
	server   *Server
	logger   *slog.Logger
	settings *config.Store[settings.Settings]

	queue      *serial.Queue
	index      *tsengine.Index
	compiler   *tsengine.Compiler
	executor   *command.Executor
	definition *definition.Pipeline
	usages     *usages.Finder
	hover      *hover.Adapter
	build      *build.Orchestrator

	ctx    context.Context
	cancel context.CancelFunc
}

// NewIntelligence registers definition, references, hover and the build
// protocol on s. The workspace is indexed once the client sends
// initialized. Settings come from WithConfig[settings.Settings] when the
// server has it, and settings.Default otherwise.
func NewIntelligence(s *Server, opts ...IntelligenceOption) (*Intelligence, error) {
	cfg := intelligenceConfig{
		workers:   runtime.GOMAXPROCS(0),
		hoverCost: 8 << 20,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	store := ConfigStore[settings.Settings](s)
	if store == nil {
		defaults := settings.Default()
		store = config.NewStore(&defaults)
	}

	logger := s.logger
	var reg *treesitter.Registry
	if s.tsManager != nil {
		reg = s.tsManager.Registry()
	}

	i := &Intelligence{
		server:   s,
		logger:   logger,
		settings: store,
		queue:    serial.New(logger),
	}
	i.ctx, i.cancel = context.WithCancel(context.Background())

	i.index = tsengine.New(tsengine.WithLogger(logger), tsengine.WithRegistry(reg))
	compilerOpts := []tsengine.CompilerOption{tsengine.WithCompilerLogger(logger)}
	if cfg.exec != nil {
		compilerOpts = append(compilerOpts, tsengine.WithExec(cfg.exec))
	}
	i.compiler = tsengine.NewCompiler(i.index, i.queue, store.Get, compilerOpts...)

	execOpts := []command.Option{command.WithLogger(logger)}
	if cfg.tp != nil {
		execOpts = append(execOpts, command.WithTracerProvider(cfg.tp))
	}
	if cfg.mp != nil {
		execOpts = append(execOpts, command.WithMeterProvider(cfg.mp))
	}
	var err error
	if i.executor, err = command.NewExecutor(cfg.workers, execOpts...); err != nil {
		i.queue.Close()
		return nil, fmt.Errorf("command executor: %w", err)
	}

	i.definition = definition.New(i.index, i.queue, definition.WithLogger(logger))
	i.usages = usages.NewFinder(i.index, i.queue, logger)
	i.hover, err = hover.New(i.index, i.queue,
		hover.WithLogger(logger),
		hover.WithCacheSize(cfg.hoverCost),
		hover.WithTagFunc(func(languageID string) string {
			return store.Get().HoverTag(languageID)
		}),
	)
	if err != nil {
		i.executor.Close()
		i.queue.Close()
		return nil, fmt.Errorf("hover adapter: %w", err)
	}

	buildOpts := []build.Option{build.WithLogger(logger)}
	if cfg.stateHook != nil {
		buildOpts = append(buildOpts, build.WithStateHook(cfg.stateHook))
	}
	i.build = build.New(i.compiler, i.queue, clientNotifier{s}, buildOpts...)

	if s.tsManager != nil {
		i.index.Attach(s.tsManager, s.docStore, i.queue)
	}
	i.register()
	s.OnClose(i.Close)
	return i, nil
}

// Index returns the workspace index. Its methods must run on Queue.
func (i *Intelligence) Index() *tsengine.Index { return i.index }

// Queue returns the serial queue owning the engine state.
func (i *Intelligence) Queue() *serial.Queue { return i.queue }

// Close stops background work. In-flight commands are waited for.
func (i *Intelligence) Close() {
	i.cancel()
	i.executor.Close()
	i.hover.Close()
	i.queue.Close()
}

func (i *Intelligence) register() {
	s := i.server
	s.OnInitialized(func(ctx *Context) error {
		var roots []string
		for _, f := range ctx.WorkspaceFolders() {
			roots = append(roots, document.PathFromURI(f.URI))
		}
		go i.load(roots...)
		return nil
	})
	s.OnDidChangeWorkspaceFolders(func(ctx *Context, p *protocol.DidChangeWorkspaceFoldersParams) error {
		for _, f := range p.Event.Removed {
			root := document.PathFromURI(f.URI)
			if err := i.queue.Submit(func(context.Context) { i.index.Forget(root) }); err != nil {
				return err
			}
		}
		var added []string
		for _, f := range p.Event.Added {
			added = append(added, document.PathFromURI(f.URI))
		}
		if len(added) > 0 {
			go i.load(added...)
		}
		return nil
	})
	s.OnDidChangeWatchedFiles(func(ctx *Context, p *protocol.DidChangeWatchedFilesParams) error {
		return i.queue.Submit(func(context.Context) { i.compiler.Refresh() })
	})

	s.OnDefinition(func(ctx *Context, p *protocol.DefinitionParams) ([]protocol.Location, error) {
		ec := i.executionContext(ctx, p.TextDocument.URI, &p.Position, nil)
		return run(ctx, i, "definition", i.definition.Command(), ec)
	})
	s.OnReferences(func(ctx *Context, p *protocol.ReferenceParams) ([]protocol.Location, error) {
		ec := i.executionContext(ctx, p.TextDocument.URI, &p.Position, nil)
		return run(ctx, i, "usages", i.usages.Command(), ec)
	})
	s.OnHover(func(ctx *Context, p *protocol.HoverParams) (*protocol.Hover, error) {
		ec := i.executionContext(ctx, p.TextDocument.URI, &p.Position, nil)
		ms, err := run(ctx, i, "hover", i.hover.Command(), ec)
		if err != nil {
			return nil, err
		}
		// Nothing to document still answers with the tag and empty content.
		return &protocol.Hover{Contents: ms}, nil
	})

	s.HandleRequest(protocol.MethodBuildProject, func(ctx *Context, params json.RawMessage) (interface{}, error) {
		return i.buildProject(ctx, params)
	})
	s.HandleCommand(protocol.CommandBuildProject, func(ctx *Context, args []json.RawMessage) (interface{}, error) {
		p, err := buildParamsFromArgs(args)
		if err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
		}
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		return i.buildProject(ctx, raw)
	})
}

func (i *Intelligence) load(roots ...string) {
	if err := i.index.Load(i.ctx, i.queue, roots...); err != nil {
		i.logger.Error("workspace indexing failed", "roots", roots, "error", err)
	}
}

func (i *Intelligence) executionContext(ctx *Context, file protocol.DocumentURI, pos *protocol.Position, params json.RawMessage) *command.ExecutionContext {
	return command.NewExecutionContext(ctx.Documents, file, ctx.WorkspaceFor(file), pos, params)
}

func (i *Intelligence) buildProject(ctx *Context, params json.RawMessage) (protocol.BuildProjectResult, error) {
	ec := i.executionContext(ctx, "", nil, params)
	res, err := run(ctx, i, "buildProject", i.build.Command(), ec)
	if err != nil {
		return res, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
	}
	return res, nil
}

// run executes cmd on the executor and waits for it, giving up when the
// request is cancelled.
func run[T any](ctx *Context, i *Intelligence, name string, cmd command.Command[T], ec *command.ExecutionContext) (T, error) {
	return command.Submit(i.executor, ctx, name, cmd, ec).Wait(ctx)
}

// buildParamsFromArgs accepts either one BuildProjectParams object or the
// positional form id, forceMakeProject, ignoreErrors[, sessionId].
func buildParamsFromArgs(args []json.RawMessage) (protocol.BuildProjectParams, error) {
	var p protocol.BuildProjectParams
	if len(args) == 0 {
		return p, fmt.Errorf("%s: missing run configuration id", protocol.CommandBuildProject)
	}
	if len(args) == 1 && len(args[0]) > 0 && args[0][0] == '{' {
		if err := json.Unmarshal(args[0], &p); err != nil {
			return p, fmt.Errorf("%s: %w", protocol.CommandBuildProject, err)
		}
		return p, nil
	}
	targets := []any{&p.ID, &p.ForceMakeProject, &p.IgnoreErrors, &p.SessionID}
	if len(args) > len(targets) {
		return p, fmt.Errorf("%s: too many arguments", protocol.CommandBuildProject)
	}
	for n, arg := range args {
		if err := json.Unmarshal(arg, targets[n]); err != nil {
			return p, fmt.Errorf("%s: argument %d: %w", protocol.CommandBuildProject, n, err)
		}
	}
	return p, nil
}

// clientNotifier sends build events through whichever client is connected.
type clientNotifier struct{ s *Server }

func (n clientNotifier) WarnNoToolchain(ctx context.Context) {
	if c := n.s.Client(); c != nil {
		c.WarnNoToolchain(ctx)
	}
}

func (n clientNotifier) BuildMessages(ctx context.Context, msg protocol.BuildMessages) {
	if c := n.s.Client(); c != nil {
		c.BuildMessages(ctx, msg)
	}
}

func (n clientNotifier) BuildFinished(ctx context.Context, params protocol.BuildFinishedParams) {
	if c := n.s.Client(); c != nil {
		c.BuildFinished(ctx, params)
	}
}
