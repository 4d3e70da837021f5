package embed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/kinotek/vecsearch/fetch"
	"github.com/kinotek/vecsearch/vector"
)

// State describes the encoder lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// DefaultVariant is the encoder loaded by an implicit init.
const DefaultVariant = "bge-small"

const defaultMaxSeqLen = 256

// ProgressFunc receives fractional load progress in [0, 1] for a variant.
type ProgressFunc func(variant string, fraction float64)

// Encoder turns natural-language text into normalized fixed-length
// vectors. One tokenizer vocabulary and one model session are live per
// active variant; switching variants disposes the old session first.
type Encoder struct {
	fetcher   fetch.Fetcher
	logger    *slog.Logger
	progress  ProgressFunc
	maxSeqLen int
	fallback  string

	mu      sync.Mutex
	state   State
	variant string
	vocab   *Vocabulary
	session *Session

	group singleflight.Group
}

// EncoderOption configures an Encoder.
type EncoderOption func(*Encoder)

// WithProgress installs a load-progress callback.
func WithProgress(fn ProgressFunc) EncoderOption {
	return func(e *Encoder) { e.progress = fn }
}

// WithDefaultVariant overrides the variant used by an implicit init.
func WithDefaultVariant(variant string) EncoderOption {
	return func(e *Encoder) { e.fallback = variant }
}

// WithMaxSequenceLength overrides the model's maximum token count.
func WithMaxSequenceLength(n int) EncoderOption {
	return func(e *Encoder) {
		if n > 2 {
			e.maxSeqLen = n
		}
	}
}

// NewEncoder creates an uninitialized Encoder. fetcher defaults to a plain
// resolver and logger to slog.Default when nil.
func NewEncoder(fetcher fetch.Fetcher, logger *slog.Logger, opts ...EncoderOption) *Encoder {
	if fetcher == nil {
		fetcher = fetch.New("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Encoder{
		fetcher:   fetcher,
		logger:    logger,
		maxSeqLen: defaultMaxSeqLen,
		fallback:  DefaultVariant,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current lifecycle state.
func (e *Encoder) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Variant returns the active encoder variant, empty before the first init.
func (e *Encoder) Variant() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.variant
}

// Init loads the tokenizer vocabulary and model session for variant,
// replacing any active variant (the old session is disposed). Concurrent
// Init calls for the same variant coalesce into a single load. Progress is
// reported at fixed checkpoints: load start, vocabulary fetched, session
// constructed.
func (e *Encoder) Init(ctx context.Context, variant string) error {
	if variant == "" {
		variant = e.fallback
	}

	e.mu.Lock()
	if e.state == StateReady && e.variant == variant {
		e.mu.Unlock()
		return nil
	}
	e.state = StateLoading
	e.mu.Unlock()

	_, err, _ := e.group.Do(variant, func() (any, error) {
		return nil, e.load(ctx, variant)
	})
	if err != nil {
		e.mu.Lock()
		if e.session == nil {
			e.state = StateUninitialized
		} else {
			e.state = StateReady
		}
		e.mu.Unlock()
		return err
	}
	return nil
}

func (e *Encoder) load(ctx context.Context, variant string) error {
	e.report(variant, 0)

	vocabData, err := e.fetcher.Fetch(ctx, vocabAsset(variant))
	if err != nil {
		return fmt.Errorf("embed: fetching vocabulary for %s: %w", variant, err)
	}
	vocab, err := ParseVocabulary(vocabData)
	if err != nil {
		return err
	}
	e.report(variant, 0.5)

	modelData, err := e.fetcher.Fetch(ctx, modelAsset(variant))
	if err != nil {
		return fmt.Errorf("embed: fetching model for %s: %w", variant, err)
	}
	session, err := NewSession(modelData)
	if err != nil {
		return err
	}
	e.report(variant, 1)

	e.mu.Lock()
	if e.session != nil {
		e.session.Close()
	}
	e.vocab = vocab
	e.session = session
	e.variant = variant
	e.state = StateReady
	e.mu.Unlock()

	e.logger.Info("encoder ready",
		"variant", variant,
		"vocabulary", len(vocab.IDs),
		"dimensions", session.Dimensions(),
	)
	return nil
}

func (e *Encoder) report(variant string, fraction float64) {
	if e.progress != nil {
		e.progress(variant, fraction)
	}
}

// Embed converts text into an L2-normalized vector. Calling Embed before
// any Init performs an implicit init with the default variant, so the
// inference path tolerates ordering races from the caller. Ownership of
// the returned vector passes to the caller.
func (e *Encoder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	ready := e.state == StateReady
	e.mu.Unlock()
	if !ready {
		if err := e.Init(ctx, ""); err != nil {
			return nil, err
		}
	}

	e.mu.Lock()
	vocab, session := e.vocab, e.session
	e.mu.Unlock()
	if vocab == nil || session == nil {
		return nil, fmt.Errorf("embed: encoder is not ready")
	}

	ids := Tokenize(vocab, Clean(text), e.maxSeqLen)
	vec, err := session.Run(ids)
	if err != nil {
		return nil, fmt.Errorf("embed: inference failed: %w", err)
	}
	vector.Normalize(vec)
	return vec, nil
}

// Dispose releases the session and tokenizer. A later Embed triggers a
// fresh init rather than touching stale state.
func (e *Encoder) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Close()
	}
	e.session = nil
	e.vocab = nil
	e.variant = ""
	e.state = StateUninitialized
}

func vocabAsset(variant string) string { return "vocab-" + variant + ".txt" }
func modelAsset(variant string) string { return "model-" + variant + ".bin" }
