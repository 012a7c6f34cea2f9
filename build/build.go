// Package build triggers asynchronous builds and reports their progress over
// two channels: per-file compiler messages while the build runs, and one
// summary when it finishes.
package build

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"

	"github.com/gossip-lsp/sightline/command"
	"github.com/gossip-lsp/sightline/engine"
	"github.com/gossip-lsp/sightline/protocol"
	"github.com/gossip-lsp/sightline/serial"
)

// errSubmit marks a task the subsystem refused; the cause is logged where it
// happens.
var errSubmit = errors.New("build: submission failed")

// State is the phase of one build request.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateSubmitted
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateSubmitted:
		return "submitted"
	case StateSucceeded:
		return "completed(success)"
	case StateFailed:
		return "completed(failure)"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Notifier delivers build events to the client.
type Notifier interface {
	// WarnNoToolchain tells the user that building is impossible.
	WarnNoToolchain(ctx context.Context)
	BuildMessages(ctx context.Context, msg protocol.BuildMessages)
	BuildFinished(ctx context.Context, params protocol.BuildFinishedParams)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithStateHook registers fn to observe state transitions.
func WithStateHook(fn func(sessionID int64, s State)) Option {
	return func(o *Orchestrator) { o.hook = fn }
}

// Orchestrator validates build requests and hands them to the build
// subsystem without waiting for them to finish.
type Orchestrator struct {
	sub      engine.BuildSubsystem
	queue    *serial.Queue
	notifier Notifier
	logger   *slog.Logger
	hook     func(int64, State)

	lastID atomic.Int64
}

// New creates an orchestrator. Subsystem calls are made on q.
func New(sub engine.BuildSubsystem, q *serial.Queue, n Notifier, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sub:      sub,
		queue:    q,
		notifier: n,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewSessionID mints a build session id. Ids are positive and unique for
// the orchestrator's lifetime.
func (o *Orchestrator) NewSessionID() int64 { return o.lastID.Add(1) }

func (o *Orchestrator) transition(sessionID int64, id string, s State) {
	o.logger.Info("build: state changed",
		"config", id,
		"session", sessionID,
		"state", s.String(),
	)
	if o.hook != nil {
		o.hook(sessionID, s)
	}
}

// Build validates p and hands the task to the subsystem. It returns as soon
// as the subsystem accepts it; results arrive through the Notifier. A task
// the subsystem refuses yields Started:false and no BuildFinished.
func (o *Orchestrator) Build(ctx context.Context, p protocol.BuildProjectParams) (result protocol.BuildProjectResult) {
	sessionID := p.SessionID
	o.transition(sessionID, p.ID, StateIdle)

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("build: submission panicked",
				"config", p.ID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			o.transition(sessionID, p.ID, StateFailed)
			result = protocol.BuildProjectResult{}
		}
	}()

	noToolchain := false
	err := o.queue.Invoke(ctx, func(context.Context) error {
		o.transition(sessionID, p.ID, StateValidating)
		if o.sub.Toolchain() == nil {
			noToolchain = true
			return nil
		}
		cfg, ok := o.sub.RunConfiguration(p.ID)
		if !ok {
			return fmt.Errorf("run configuration %q not found", p.ID)
		}
		if cfg.SkipCompileBeforeLaunch {
			return fmt.Errorf("run configuration %q skips compile before launch", p.ID)
		}
		t, err := o.sub.NewBuildTask(cfg, p.ForceMakeProject, p.IgnoreErrors)
		if err != nil {
			return fmt.Errorf("new build task: %w", err)
		}
		if t == nil {
			return fmt.Errorf("run configuration %q has nothing to build", p.ID)
		}
		if sessionID == 0 {
			sessionID = o.NewSessionID()
		}
		o.sub.Refresh()
		// Submitted is recorded first: a fast build may finish before
		// SubmitBuild returns.
		o.transition(sessionID, p.ID, StateSubmitted)
		if err := o.submit(context.WithoutCancel(ctx), t, sessionID, p.ID); err != nil {
			o.logger.Error("build: subsystem refused task", "config", p.ID, "session", sessionID, "error", err)
			return errSubmit
		}
		return nil
	})
	if noToolchain {
		o.logger.Warn("build: no toolchain configured", "config", p.ID)
		o.notifier.WarnNoToolchain(ctx)
		o.transition(sessionID, p.ID, StateFailed)
		return protocol.BuildProjectResult{}
	}
	if err != nil {
		if !errors.Is(err, errSubmit) {
			o.logger.Warn("build: rejected", "config", p.ID, "error", err)
		}
		o.transition(sessionID, p.ID, StateFailed)
		return protocol.BuildProjectResult{}
	}
	return protocol.BuildProjectResult{Started: true, SessionID: sessionID}
}

// submit hands task to the subsystem. It runs on the queue and must not wait
// for the build: completion is itself delivered on the queue. A panic in
// SubmitBuild is returned as an error.
func (o *Orchestrator) submit(ctx context.Context, task *engine.BuildTask, sessionID int64, id string) (err error) {
	var finished atomic.Bool
	onDiagnostics := func(cc engine.CompileContext) {
		for _, msg := range Group(sessionID, cc) {
			o.notifier.BuildMessages(ctx, msg)
		}
	}
	onComplete := func(r engine.TaskResult) {
		if !finished.CompareAndSwap(false, true) {
			o.logger.Warn("build: duplicate completion ignored", "session", sessionID)
			return
		}
		res := protocol.BuildResult{Errors: r.Errors, Warnings: r.Warnings, Aborted: r.Aborted}
		if res.Succeeded() {
			o.transition(sessionID, id, StateSucceeded)
		} else {
			o.transition(sessionID, id, StateFailed)
		}
		o.notifier.BuildFinished(ctx, protocol.BuildFinishedParams{SessionID: sessionID, Result: res})
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return o.sub.SubmitBuild(task, sessionID, onDiagnostics, onComplete)
}

// Group turns the messages of every category into one BuildMessages per
// file, in order of first appearance. Messages without a file are grouped
// under the empty URI.
func Group(sessionID int64, cc engine.CompileContext) []protocol.BuildMessages {
	var (
		order  []protocol.DocumentURI
		byFile = make(map[protocol.DocumentURI][]protocol.Diagnostic)
	)
	for _, cat := range []engine.MessageCategory{
		engine.CategoryStatistics,
		engine.CategoryInformation,
		engine.CategoryWarning,
		engine.CategoryError,
	} {
		for _, m := range cc.Messages(cat) {
			if _, ok := byFile[m.URI]; !ok {
				order = append(order, m.URI)
			}
			byFile[m.URI] = append(byFile[m.URI], Diagnostic(m))
		}
	}

	out := make([]protocol.BuildMessages, 0, len(order))
	for _, uri := range order {
		out = append(out, protocol.BuildMessages{
			SessionID:   sessionID,
			URI:         uri,
			Diagnostics: byFile[uri],
		})
	}
	return out
}

// Diagnostic converts a compiler message. The range is the empty range at
// the message position.
func Diagnostic(m engine.CompilerMessage) protocol.Diagnostic {
	pos := protocol.Position{Line: m.Line, Character: m.Column}
	return protocol.Diagnostic{
		Range:    protocol.Range{Start: pos, End: pos},
		Severity: Severity(m.Category),
		Source:   m.Prefix,
		Message:  m.Message,
	}
}

// Severity maps a message category to a diagnostic severity.
func Severity(c engine.MessageCategory) protocol.DiagnosticSeverity {
	switch c {
	case engine.CategoryStatistics:
		return protocol.SeverityHint
	case engine.CategoryInformation:
		return protocol.SeverityInformation
	case engine.CategoryWarning:
		return protocol.SeverityWarning
	default:
		return protocol.SeverityError
	}
}

// Command adapts the orchestrator to the command framework. Params holds a
// JSON BuildProjectParams.
func (o *Orchestrator) Command() command.Command[protocol.BuildProjectResult] {
	return command.Func[protocol.BuildProjectResult](func(ctx context.Context, ec *command.ExecutionContext) (protocol.BuildProjectResult, error) {
		var p protocol.BuildProjectParams
		if len(ec.Params) > 0 {
			if err := json.Unmarshal(ec.Params, &p); err != nil {
				return protocol.BuildProjectResult{}, fmt.Errorf("decode build params: %w", err)
			}
		}
		return o.Build(ctx, p), nil
	})
}
