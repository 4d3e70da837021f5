package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kinotek/vecsearch/engine"
	"github.com/kinotek/vecsearch/fetch"
)

// DBWorker binds a FIFO queue to a database engine. Every engine operation
// flows through the queue, so at most one operation touches the engine at a
// time even when callers dispatch concurrently.
type DBWorker struct {
	eng   *engine.Engine
	queue *Queue
}

// NewDB wraps eng in a serialized worker. depth bounds the queue; <= 0
// selects the default.
func NewDB(eng *engine.Engine, depth int, logger *slog.Logger) *DBWorker {
	w := &DBWorker{eng: eng}
	w.queue = NewQueue(w.handle, depth, logger)
	return w
}

// Dispatch enqueues req; the returned channel receives exactly one
// response tagged with the request's id.
func (w *DBWorker) Dispatch(ctx context.Context, req Request) <-chan Response {
	return w.queue.Dispatch(ctx, req)
}

// Wait dispatches req and blocks for its response.
func (w *DBWorker) Wait(ctx context.Context, req Request) (any, error) {
	return w.queue.Wait(ctx, req)
}

// Close drains the queue and closes the engine.
func (w *DBWorker) Close() error {
	w.queue.Close()
	return w.eng.Close()
}

func (w *DBWorker) handle(ctx context.Context, req Request) (any, error) {
	switch p := req.Payload.(type) {
	case InitPayload:
		url := p.URL
		if p.Base != "" {
			resolved, err := fetch.JoinBase(p.Base, p.URL)
			if err != nil {
				return nil, err
			}
			url = resolved
		}
		count, err := w.eng.Init(ctx, url)
		if err != nil {
			return nil, err
		}
		return InitResult{TotalEntities: count, Dimensions: w.eng.Dimensions()}, nil
	case AttachPayload:
		count, err := w.eng.Attach(ctx, p.URL)
		if err != nil {
			return nil, err
		}
		return AttachResult{AttachedCount: count, Dimensions: w.eng.Dimensions(), Model: w.eng.AttachedModel()}, nil
	case DetachPayload:
		was, err := w.eng.Detach(ctx)
		if err != nil {
			return nil, err
		}
		return DetachResult{WasAttached: was}, nil
	case ExecPayload:
		return w.eng.Exec(ctx, p.Query, p.Args...)
	case QueryByIDsPayload:
		return w.eng.QueryByIDs(ctx, p.IDs, p.Query, p.Args...)
	case VectorSearchPayload:
		return w.eng.VectorSearch(ctx, p.Vector, p.K, p.Filter, p.FilterArgs...)
	default:
		return nil, fmt.Errorf("worker: unknown request kind %T", req.Payload)
	}
}

// InitResult reports a completed image load.
type InitResult struct {
	TotalEntities int64
	Dimensions    int
}

// AttachResult reports a completed embeddings attach.
type AttachResult struct {
	AttachedCount int64
	Dimensions    int
	Model         string
}

// DetachResult reports a completed detach.
type DetachResult struct {
	WasAttached bool
}
