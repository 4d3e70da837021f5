package worker

import (
	"fmt"
	"log/slog"
	"sync"
)

// Pending correlates asynchronous responses to dispatched requests by id.
// Each id resolves exactly once; a response with no matching id is a
// standalone fault that is logged and dropped rather than crashing the
// worker.
type Pending struct {
	mu     sync.Mutex
	waits  map[string]chan Response
	logger *slog.Logger
}

// NewPending creates an empty correlation table.
func NewPending(logger *slog.Logger) *Pending {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pending{
		waits:  make(map[string]chan Response),
		logger: logger,
	}
}

// Register reserves id and returns the channel its response will arrive
// on. Ids must be unique for the lifetime of the record.
func (p *Pending) Register(id string) (<-chan Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.waits[id]; exists {
		return nil, fmt.Errorf("worker: duplicate request id %q", id)
	}
	ch := make(chan Response, 1)
	p.waits[id] = ch
	return ch, nil
}

// Resolve delivers resp to its registered waiter and deletes the record.
func (p *Pending) Resolve(resp Response) {
	p.mu.Lock()
	ch, ok := p.waits[resp.ID]
	if ok {
		delete(p.waits, resp.ID)
	}
	p.mu.Unlock()
	if !ok {
		p.logger.Warn("response with no matching request id", "id", resp.ID, "error", resp.Err)
		return
	}
	ch <- resp
}

// Abandon removes id without resolving it; the caller has stopped waiting.
func (p *Pending) Abandon(id string) {
	p.mu.Lock()
	delete(p.waits, id)
	p.mu.Unlock()
}

// Len reports how many requests are still awaiting resolution.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waits)
}
