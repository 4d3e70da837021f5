package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/kinotek/vecsearch/engine"
	"github.com/kinotek/vecsearch/worker"
)

// ErrStaleResponse marks a response that completed against an image
// generation that has since been replaced. The caller should retry against
// the current generation.
var ErrStaleResponse = errors.New("search: response from a superseded image generation")

// dispatcher is the request-side surface both workers share.
type dispatcher interface {
	Dispatch(ctx context.Context, req worker.Request) <-chan worker.Response
}

// Coordinator drives the two workers as one search pipeline: it generates
// request ids, correlates responses, and stamps every request with the
// image generation it was issued under so responses that raced a reload
// are discarded rather than served from the wrong catalog.
type Coordinator struct {
	db      *worker.DBWorker
	encoder *worker.EmbedWorker
	pending *worker.Pending
	logger  *slog.Logger

	// generation increments on every image load; it only ever grows.
	generation atomic.Uint64
}

// NewCoordinator wires the two workers together.
func NewCoordinator(db *worker.DBWorker, encoder *worker.EmbedWorker, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		db:      db,
		encoder: encoder,
		pending: worker.NewPending(logger),
		logger:  logger,
	}
}

// Generation returns the current image generation counter.
func (c *Coordinator) Generation() uint64 { return c.generation.Load() }

// call dispatches one request, routes its response through the correlation
// table, and rejects results that crossed a generation boundary.
func (c *Coordinator) call(ctx context.Context, d dispatcher, p worker.Payload) (any, error) {
	id := uuid.NewString()
	gen := c.generation.Load()

	ch, err := c.pending.Register(id)
	if err != nil {
		return nil, err
	}

	go func() {
		resp := <-d.Dispatch(ctx, worker.Request{ID: id, Payload: p})
		c.pending.Resolve(resp)
	}()

	select {
	case resp := <-ch:
		if resp.Err != nil {
			return nil, resp.Err
		}
		if c.generation.Load() != gen {
			c.logger.Warn("discarding stale response", "id", id, "kind", p.Kind(), "generation", gen)
			return nil, ErrStaleResponse
		}
		return resp.Result, nil
	case <-ctx.Done():
		c.pending.Abandon(id)
		return nil, ctx.Err()
	}
}

// Init loads the database image at url, optionally resolved against base,
// and advances the generation so in-flight responses against the old image
// are discarded.
func (c *Coordinator) Init(ctx context.Context, url, base string) (worker.InitResult, error) {
	c.generation.Add(1)
	result, err := c.call(ctx, c.db, worker.InitPayload{URL: url, Base: base})
	if err != nil {
		return worker.InitResult{}, err
	}
	return result.(worker.InitResult), nil
}

// Attach maps the embeddings image at url alongside the primary image.
func (c *Coordinator) Attach(ctx context.Context, url string) (worker.AttachResult, error) {
	result, err := c.call(ctx, c.db, worker.AttachPayload{URL: url})
	if err != nil {
		return worker.AttachResult{}, err
	}
	return result.(worker.AttachResult), nil
}

// Detach unmaps the embeddings image.
func (c *Coordinator) Detach(ctx context.Context) (worker.DetachResult, error) {
	result, err := c.call(ctx, c.db, worker.DetachPayload{})
	if err != nil {
		return worker.DetachResult{}, err
	}
	return result.(worker.DetachResult), nil
}

// InitEncoder loads (or switches to) an encoder variant.
func (c *Coordinator) InitEncoder(ctx context.Context, variant string) (worker.InitEncoderResult, error) {
	result, err := c.call(ctx, c.encoder, worker.InitEncoderPayload{Variant: variant})
	if err != nil {
		return worker.InitEncoderResult{}, err
	}
	return result.(worker.InitEncoderResult), nil
}

// Embed converts text into a normalized vector without searching.
func (c *Coordinator) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := c.call(ctx, c.encoder, worker.EmbedPayload{Text: text})
	if err != nil {
		return nil, err
	}
	return result.(worker.EmbedResult).Vector, nil
}

// Search embeds text and returns the k nearest catalog rows, optionally
// restricted by a SQL predicate over the entity table (alias m).
func (c *Coordinator) Search(ctx context.Context, text string, k int, filter string, filterArgs ...any) ([]engine.Row, error) {
	vec, err := c.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	result, err := c.call(ctx, c.db, worker.VectorSearchPayload{
		Vector:     vec,
		K:          k,
		Filter:     filter,
		FilterArgs: filterArgs,
	})
	if err != nil {
		return nil, err
	}
	return result.([]engine.Row), nil
}

// Lookup fetches catalog rows by id, preserving the requested order.
func (c *Coordinator) Lookup(ctx context.Context, ids []int64) ([]engine.Row, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	query := fmt.Sprintf("SELECT * FROM movies WHERE id IN (%s)", placeholders)
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	result, err := c.call(ctx, c.db, worker.QueryByIDsPayload{IDs: ids, Query: query, Args: args})
	if err != nil {
		return nil, err
	}
	return result.([]engine.Row), nil
}

// Exec runs an arbitrary parameterized read query against the primary image.
func (c *Coordinator) Exec(ctx context.Context, query string, args ...any) ([]engine.Row, error) {
	result, err := c.call(ctx, c.db, worker.ExecPayload{Query: query, Args: args})
	if err != nil {
		return nil, err
	}
	return result.([]engine.Row), nil
}

// Dispose releases the encoder session.
func (c *Coordinator) Dispose(ctx context.Context) error {
	_, err := c.call(ctx, c.encoder, worker.DisposePayload{})
	return err
}

// Close shuts both workers down, draining their queues.
func (c *Coordinator) Close() error {
	c.encoder.Close()
	return c.db.Close()
}
