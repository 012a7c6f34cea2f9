package serial_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gossip-lsp/sightline/serial"
)

func newQueue(t *testing.T) *serial.Queue {
	t.Helper()
	q := serial.New(nil)
	t.Cleanup(q.Close)
	return q
}

func TestSubmitRunsInOrder(t *testing.T) {
	q := newQueue(t)
	var mu sync.Mutex
	var got []int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		require.NoError(t, q.Submit(func(ctx context.Context) {
			defer wg.Done()
			assert.True(t, serial.OnQueue(ctx))
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	wg.Wait()
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestSubmitDoesNotBlockWhileWorkerBusy(t *testing.T) {
	q := newQueue(t)
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, q.Submit(func(context.Context) {
		close(started)
		<-release
	}))
	<-started

	start := time.Now()
	for i := 0; i < 1000; i++ {
		require.NoError(t, q.Submit(func(context.Context) {}))
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1000, q.Len())
	close(release)
}

func TestInvokeReturnsResultAndError(t *testing.T) {
	q := newQueue(t)
	var value int
	require.NoError(t, q.Invoke(context.Background(), func(ctx context.Context) error {
		value = 42
		return nil
	}))
	assert.Equal(t, 42, value)

	sentinel := errors.New("nope")
	err := q.Invoke(context.Background(), func(context.Context) error { return sentinel })
	assert.ErrorIs(t, err, sentinel)
}

func TestInvokeIsReentrant(t *testing.T) {
	q := newQueue(t)
	done := make(chan error, 1)
	go func() {
		done <- q.Invoke(context.Background(), func(ctx context.Context) error {
			return q.Invoke(ctx, func(inner context.Context) error {
				if !serial.OnQueue(inner) {
					return errors.New("inner call left the queue")
				}
				return nil
			})
		})
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("nested Invoke deadlocked")
	}
}

type ctxKey struct{}

func TestInvokeCarriesCallerValues(t *testing.T) {
	q := newQueue(t)
	ctx := context.WithValue(context.Background(), ctxKey{}, "span")
	require.NoError(t, q.Invoke(ctx, func(qctx context.Context) error {
		assert.Equal(t, "span", qctx.Value(ctxKey{}))
		return nil
	}))
}

func TestInvokeRecoversPanics(t *testing.T) {
	q := newQueue(t)
	err := q.Invoke(context.Background(), func(context.Context) error { panic("boom") })
	var pe *serial.PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "boom", pe.Value)

	// The worker survives.
	require.NoError(t, q.Invoke(context.Background(), func(context.Context) error { return nil }))
}

func TestSubmitPanicKeepsWorkerAlive(t *testing.T) {
	q := newQueue(t)
	require.NoError(t, q.Submit(func(context.Context) { panic("lost") }))
	require.NoError(t, q.Invoke(context.Background(), func(context.Context) error { return nil }))
}

func TestInvokeStopsWaitingOnCancel(t *testing.T) {
	q := newQueue(t)
	release := make(chan struct{})
	defer close(release)
	require.NoError(t, q.Submit(func(context.Context) { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ran := false
	err := q.Invoke(ctx, func(context.Context) error { ran = true; return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ran)
}

func TestCloseDrainsAndRejects(t *testing.T) {
	q := serial.New(nil)
	var ran int
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Submit(func(context.Context) { ran++ }))
	}
	q.Close()
	assert.Equal(t, 10, ran)
	assert.ErrorIs(t, q.Submit(func(context.Context) {}), serial.ErrClosed)
	assert.ErrorIs(t, q.Invoke(context.Background(), func(context.Context) error { return nil }), serial.ErrClosed)
	q.Close()
}
