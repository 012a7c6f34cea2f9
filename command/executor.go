package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

const instrumentationName = "github.com/gossip-lsp/sightline/command"

// ErrExecutorClosed completes futures submitted after Close.
var ErrExecutorClosed = errors.New("command: executor closed")

// PanicError is the failure of a command that panicked.
type PanicError struct {
	Command string
	Value   any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("command %s panicked: %v", e.Command, e.Value)
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor's logger.
func WithLogger(l *slog.Logger) Option {
	return func(x *Executor) { x.logger = l }
}

// WithTracerProvider sets where command spans go. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(x *Executor) { x.tp = tp }
}

// WithMeterProvider sets where command metrics go. Defaults to the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(x *Executor) { x.mp = mp }
}

// Executor runs commands on at most N goroutines at a time.
type Executor struct {
	sem    *semaphore.Weighted
	logger *slog.Logger
	tp     trace.TracerProvider
	mp     metric.MeterProvider

	tracer   trace.Tracer
	total    metric.Int64Counter
	duration metric.Float64Histogram

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewExecutor creates an executor running up to workers commands concurrently.
func NewExecutor(workers int, opts ...Option) (*Executor, error) {
	if workers < 1 {
		workers = 1
	}
	x := &Executor{
		sem:    semaphore.NewWeighted(int64(workers)),
		logger: slog.Default(),
		tp:     otel.GetTracerProvider(),
		mp:     otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(x)
	}

	x.tracer = x.tp.Tracer(instrumentationName)
	meter := x.mp.Meter(instrumentationName)
	var err error
	x.total, err = meter.Int64Counter("sightline.commands",
		metric.WithDescription("Number of commands executed"))
	if err != nil {
		return nil, err
	}
	x.duration, err = meter.Float64Histogram("sightline.command.duration_seconds",
		metric.WithDescription("Command execution time in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return x, nil
}

// Submit schedules cmd and returns its future without waiting. The command
// runs detached from ctx's cancellation; ctx only contributes values such as
// the parent span. Failures and panics complete the future with an error.
func Submit[T any](x *Executor, ctx context.Context, name string, cmd Command[T], ec *ExecutionContext) *Future[T] {
	f := newFuture[T]()

	x.mu.RLock()
	if x.closed {
		x.mu.RUnlock()
		var zero T
		f.complete(zero, ErrExecutorClosed)
		return f
	}
	x.wg.Add(1)
	x.mu.RUnlock()

	go func() {
		defer x.wg.Done()
		ctx := context.WithoutCancel(ctx)
		// Acquire cannot fail on a context without cancellation.
		_ = x.sem.Acquire(ctx, 1)
		defer x.sem.Release(1)

		value, err := execute(x, ctx, name, cmd, ec)
		f.complete(value, err)
	}()
	return f
}

func execute[T any](x *Executor, ctx context.Context, name string, cmd Command[T], ec *ExecutionContext) (value T, err error) {
	ctx, span := x.tracer.Start(ctx, "command "+name,
		trace.WithAttributes(
			attribute.String("command.name", name),
			attribute.String("command.file", string(ec.File)),
		),
	)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			x.logger.Error("panic recovered in command",
				"command", name,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			var zero T
			value, err = zero, &PanicError{Command: name, Value: r}
		}

		attrs := metric.WithAttributes(
			attribute.String("command.name", name),
			attribute.Bool("success", err == nil),
		)
		x.total.Add(ctx, 1, attrs)
		x.duration.Record(ctx, time.Since(start).Seconds(), attrs)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			x.logger.Debug("command failed", "command", name, "file", ec.File, "error", err)
		}
		span.End()
	}()

	return cmd.Execute(ctx, ec)
}

// Close rejects new submissions and waits for in-flight commands.
func (x *Executor) Close() {
	x.mu.Lock()
	x.closed = true
	x.mu.Unlock()
	x.wg.Wait()
}
