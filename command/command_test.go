package command_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/gossip-lsp/sightline/command"
	"github.com/gossip-lsp/sightline/document"
	"github.com/gossip-lsp/sightline/protocol"
)

type countingSource struct {
	reads atomic.Int32
	text  string
}

func (s *countingSource) Read(uri protocol.DocumentURI) (document.Snapshot, error) {
	s.reads.Add(1)
	return document.Snapshot{URI: uri, Text: s.text}, nil
}

func newExecutor(t *testing.T, workers int, opts ...command.Option) *command.Executor {
	t.Helper()
	x, err := command.NewExecutor(workers, opts...)
	require.NoError(t, err)
	t.Cleanup(x.Close)
	return x
}

func TestOffsetComputedOnce(t *testing.T) {
	src := &countingSource{text: "package a\nfunc f() {}\n"}
	ec := command.NewExecutionContext(src, "file:///a.go", "file:///", &protocol.Position{Line: 1, Character: 5}, nil)

	for i := 0; i < 3; i++ {
		off, err := ec.Offset()
		require.NoError(t, err)
		assert.Equal(t, 15, off)
	}
	assert.Equal(t, int32(1), src.reads.Load())
}

func TestOffsetWithoutPosition(t *testing.T) {
	ec := command.NewExecutionContext(&countingSource{}, "file:///a.go", "", nil, nil)
	_, err := ec.Offset()
	assert.ErrorIs(t, err, command.ErrNoPosition)
}

func TestSubmitDeliversValue(t *testing.T) {
	x := newExecutor(t, 2)
	ec := command.NewExecutionContext(nil, "file:///a.go", "", nil, nil)
	f := command.Submit(x, context.Background(), "answer", command.Func[int](func(context.Context, *command.ExecutionContext) (int, error) {
		return 42, nil
	}), ec)

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestSubmitNeverBlocksCaller(t *testing.T) {
	x := newExecutor(t, 1)
	release := make(chan struct{})
	blocker := command.Func[struct{}](func(context.Context, *command.ExecutionContext) (struct{}, error) {
		<-release
		return struct{}{}, nil
	})
	ec := command.NewExecutionContext(nil, "", "", nil, nil)

	start := time.Now()
	var futures []*command.Future[struct{}]
	for i := 0; i < 20; i++ {
		futures = append(futures, command.Submit(x, context.Background(), "block", blocker, ec))
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	close(release)
	for _, f := range futures {
		_, err := f.Wait(context.Background())
		require.NoError(t, err)
	}
}

func TestFailuresCompleteExceptionally(t *testing.T) {
	x := newExecutor(t, 1)
	ec := command.NewExecutionContext(nil, "", "", nil, nil)
	sentinel := errors.New("engine exploded")

	_, err := command.Submit(x, context.Background(), "err", command.Func[int](func(context.Context, *command.ExecutionContext) (int, error) {
		return 0, sentinel
	}), ec).Wait(context.Background())
	assert.ErrorIs(t, err, sentinel)

	_, err = command.Submit(x, context.Background(), "panic", command.Func[int](func(context.Context, *command.ExecutionContext) (int, error) {
		panic("oops")
	}), ec).Wait(context.Background())
	var pe *command.PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "panic", pe.Command)
}

func TestCommandIgnoresCallerCancellation(t *testing.T) {
	x := newExecutor(t, 1)
	ec := command.NewExecutionContext(nil, "", "", nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	f := command.Submit(x, ctx, "slow", command.Func[string](func(ctx context.Context, _ *command.ExecutionContext) (string, error) {
		close(started)
		time.Sleep(20 * time.Millisecond)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "finished", nil
	}), ec)
	<-started
	cancel()

	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "finished", v)
}

func TestSubmitAfterClose(t *testing.T) {
	x, err := command.NewExecutor(1)
	require.NoError(t, err)
	x.Close()
	_, err = command.Submit(x, context.Background(), "late", command.Func[int](func(context.Context, *command.ExecutionContext) (int, error) {
		return 1, nil
	}), command.NewExecutionContext(nil, "", "", nil, nil)).Wait(context.Background())
	assert.ErrorIs(t, err, command.ErrExecutorClosed)
}

func TestCompletedFuture(t *testing.T) {
	f := command.Completed("done", nil)
	select {
	case <-f.Done():
	default:
		t.Fatal("completed future is not done")
	}
	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestConcurrentWaitersSeeSameResult(t *testing.T) {
	x := newExecutor(t, 4)
	var runs atomic.Int32
	f := command.Submit(x, context.Background(), "once", command.Func[int32](func(context.Context, *command.ExecutionContext) (int32, error) {
		return runs.Add(1), nil
	}), command.NewExecutionContext(nil, "", "", nil, nil))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := f.Wait(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, int32(1), v)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), runs.Load())
}

func TestTelemetry(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	x := newExecutor(t, 1, command.WithTracerProvider(tp), command.WithMeterProvider(mp))

	ec := command.NewExecutionContext(nil, "file:///a.go", "", nil, nil)
	command.Submit(x, context.Background(), "hover", command.Func[int](func(context.Context, *command.ExecutionContext) (int, error) {
		return 1, nil
	}), ec).Wait(context.Background())
	command.Submit(x, context.Background(), "hover", command.Func[int](func(context.Context, *command.ExecutionContext) (int, error) {
		return 0, errors.New("x")
	}), ec).Wait(context.Background())

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "command hover", spans[0].Name())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	counts := map[bool]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "sightline.commands" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				ok, _ := dp.Attributes.Value("success")
				counts[ok.AsBool()] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(1), counts[true])
	assert.Equal(t, int64(1), counts[false])
}
