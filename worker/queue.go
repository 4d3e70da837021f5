package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

const defaultQueueDepth = 64

// ErrQueueClosed is returned for requests dispatched after Close.
var ErrQueueClosed = errors.New("worker: queue closed")

// Handler executes one request to completion and returns its result.
type Handler func(ctx context.Context, req Request) (any, error)

// Queue serializes requests through a single consumer goroutine. Messages
// are processed strictly in arrival order, one at a time: the consumer does
// not pick up the next message until the previous handler has fully
// returned. This is what makes the non-reentrant engine underneath safe to
// call without locks.
type Queue struct {
	tasks   chan task
	stopped chan struct{}
	logger  *slog.Logger

	// mu fences enqueues against Close so a dispatch racing a shutdown
	// gets ErrQueueClosed instead of a send on a closed channel.
	mu     sync.Mutex
	closed bool
}

type task struct {
	ctx context.Context
	req Request
	out chan Response
}

// NewQueue starts the consumer goroutine. depth bounds how many messages
// may wait; <= 0 selects the default.
func NewQueue(handler Handler, depth int, logger *slog.Logger) *Queue {
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		tasks:   make(chan task, depth),
		stopped: make(chan struct{}),
		logger:  logger,
	}
	go q.consume(handler)
	return q
}

func (q *Queue) consume(handler Handler) {
	defer close(q.stopped)
	for t := range q.tasks {
		result, err := q.run(handler, t)
		t.out <- Response{ID: t.req.ID, Result: result, Err: err}
	}
}

// run executes the handler for one message. A panicking handler is
// converted into an error response; nothing in the queue is fatal to the
// worker itself.
func (q *Queue) run(handler Handler, t task) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("handler panicked", "id", t.req.ID, "panic", r)
			err = fmt.Errorf("worker: handler panicked: %v", r)
		}
	}()
	if err := t.ctx.Err(); err != nil {
		return nil, err
	}
	return handler(t.ctx, t.req)
}

// Dispatch enqueues req and returns a channel that receives exactly one
// Response. Dispatch blocks while the queue is full; after Close it
// resolves with ErrQueueClosed.
func (q *Queue) Dispatch(ctx context.Context, req Request) <-chan Response {
	out := make(chan Response, 1)
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		out <- Response{ID: req.ID, Err: ErrQueueClosed}
		return out
	}
	select {
	case q.tasks <- task{ctx: ctx, req: req, out: out}:
	case <-ctx.Done():
		out <- Response{ID: req.ID, Err: ctx.Err()}
	}
	q.mu.Unlock()
	return out
}

// Wait dispatches req and blocks for its response.
func (q *Queue) Wait(ctx context.Context, req Request) (any, error) {
	select {
	case resp := <-q.Dispatch(ctx, req):
		return resp.Result, resp.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting messages and waits for in-flight work to drain.
// Safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()
	<-q.stopped
}
