// Package serial provides the single serialized execution context that owns
// all live engine state. Work is sent to it as closures; one goroutine runs
// them in submission order.
package serial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// ErrClosed is returned when work is sent to a closed queue.
var ErrClosed = errors.New("serial: queue closed")

// PanicError carries a panic recovered from a task.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("serial: task panicked: %v", e.Value) }

type queueKey struct{}

// task is a single unit of work. ctx carries the queue marker.
type task struct {
	ctx context.Context
	run func(ctx context.Context)
}

// Queue is a single-worker task queue. Submit never blocks: the mailbox is
// unbounded.
type Queue struct {
	logger *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []task
	closed bool

	done chan struct{}
}

// New starts a queue and its worker goroutine.
func New(logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		logger: logger,
		done:   make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// OnQueue reports whether ctx belongs to a task running on any queue.
func OnQueue(ctx context.Context) bool {
	_, ok := ctx.Value(queueKey{}).(*Queue)
	return ok
}

func (q *Queue) owns(ctx context.Context) bool {
	owner, _ := ctx.Value(queueKey{}).(*Queue)
	return owner == q
}

// Submit enqueues fn and returns immediately. fn runs on the worker with a
// context marked as belonging to q. A panic in fn is logged.
func (q *Queue) Submit(fn func(ctx context.Context)) error {
	return q.enqueue(context.Background(), fn)
}

func (q *Queue) enqueue(parent context.Context, fn func(ctx context.Context)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.tasks = append(q.tasks, task{
		ctx: context.WithValue(context.WithoutCancel(parent), queueKey{}, q),
		run: fn,
	})
	q.cond.Signal()
	return nil
}

// Invoke runs fn on the queue and waits for its result. Values carried by
// ctx, such as trace spans, are visible to fn. Called from a task already
// running on q, fn runs inline instead of deadlocking. If ctx is done before
// fn starts, fn is skipped; once started it runs to completion.
func (q *Queue) Invoke(ctx context.Context, fn func(ctx context.Context) error) error {
	if q.owns(ctx) {
		return call(ctx, fn)
	}

	reply := make(chan error, 1)
	err := q.enqueue(ctx, func(qctx context.Context) {
		if ctx.Err() != nil {
			reply <- ctx.Err()
			return
		}
		reply <- call(qctx, fn)
	})
	if err != nil {
		return err
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func call(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ctx)
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return
		}
		t := q.tasks[0]
		q.tasks[0] = task{}
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		q.runTask(t)
	}
}

func (q *Queue) runTask(t task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("panic recovered in queued task",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	t.run(t.ctx)
}

// Len returns the number of tasks waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close stops accepting work, runs everything already queued, and waits for
// the worker to exit. It must not be called from a task running on q.
// Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	<-q.done
}
