package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kinotek/vecsearch/embed"
)

// EmbedWorker binds a FIFO queue to an embedding encoder. Like the
// database worker, it guarantees the encoder only ever sees one operation
// at a time, in arrival order.
type EmbedWorker struct {
	enc   *embed.Encoder
	queue *Queue
}

// NewEmbed wraps enc in a serialized worker. depth bounds the queue; <= 0
// selects the default.
func NewEmbed(enc *embed.Encoder, depth int, logger *slog.Logger) *EmbedWorker {
	w := &EmbedWorker{enc: enc}
	w.queue = NewQueue(w.handle, depth, logger)
	return w
}

// Dispatch enqueues req; the returned channel receives exactly one
// response tagged with the request's id.
func (w *EmbedWorker) Dispatch(ctx context.Context, req Request) <-chan Response {
	return w.queue.Dispatch(ctx, req)
}

// Wait dispatches req and blocks for its response.
func (w *EmbedWorker) Wait(ctx context.Context, req Request) (any, error) {
	return w.queue.Wait(ctx, req)
}

// Close drains the queue and disposes the encoder.
func (w *EmbedWorker) Close() {
	w.queue.Close()
	w.enc.Dispose()
}

func (w *EmbedWorker) handle(ctx context.Context, req Request) (any, error) {
	switch p := req.Payload.(type) {
	case InitEncoderPayload:
		if err := w.enc.Init(ctx, p.Variant); err != nil {
			return nil, err
		}
		return InitEncoderResult{Variant: w.enc.Variant()}, nil
	case EmbedPayload:
		vec, err := w.enc.Embed(ctx, p.Text)
		if err != nil {
			return nil, err
		}
		return EmbedResult{Vector: vec}, nil
	case DisposePayload:
		w.enc.Dispose()
		return DisposeResult{}, nil
	default:
		return nil, fmt.Errorf("worker: unknown request kind %T", req.Payload)
	}
}

// InitEncoderResult reports a completed encoder load.
type InitEncoderResult struct {
	Variant string
}

// EmbedResult carries one normalized embedding vector.
type EmbedResult struct {
	Vector []float32
}

// DisposeResult reports a completed encoder teardown.
type DisposeResult struct{}
