package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Fetcher retrieves an immutable byte artifact (database image, embeddings
// image, vocabulary, model asset) by URL. Implementations surface transport
// errors verbatim and never retry; retry policy belongs to the caller.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Resolver routes fetches by URL scheme and resolves relative references
// against an optional base URL. Fetched payloads are transparently
// decompressed when they carry a known compression framing.
type Resolver struct {
	base    string
	http    Fetcher
	file    Fetcher
	object  Fetcher
	inflate bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithObjectFetcher installs a fetcher for s3:// URLs.
func WithObjectFetcher(f Fetcher) Option {
	return func(r *Resolver) { r.object = f }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.http = &HTTPFetcher{Client: c} }
}

// WithoutDecompression disables compression sniffing, returning payloads
// exactly as stored.
func WithoutDecompression() Option {
	return func(r *Resolver) { r.inflate = false }
}

// New creates a Resolver. base may be empty; when set, relative URLs are
// resolved against it before routing.
func New(base string, opts ...Option) *Resolver {
	r := &Resolver{
		base:    base,
		http:    &HTTPFetcher{},
		file:    &FileFetcher{},
		inflate: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fetch retrieves rawURL, resolving it against the base when relative, and
// inflates compressed payloads unless disabled.
func (r *Resolver) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	resolved, err := r.resolve(rawURL)
	if err != nil {
		return nil, err
	}
	f, err := r.route(resolved)
	if err != nil {
		return nil, err
	}
	data, err := f.Fetch(ctx, resolved)
	if err != nil {
		return nil, err
	}
	if r.inflate {
		return Decompress(data)
	}
	return data, nil
}

func (r *Resolver) resolve(rawURL string) (string, error) {
	return JoinBase(r.base, rawURL)
}

// JoinBase resolves rawURL against base. An absolute rawURL or empty base
// passes through unchanged; an absolute base resolves by reference, a
// filesystem base joins as a path.
func JoinBase(base, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("fetch: invalid URL %q: %w", rawURL, err)
	}
	if u.IsAbs() || base == "" {
		return rawURL, nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("fetch: invalid base URL %q: %w", base, err)
	}
	if b.IsAbs() {
		return b.ResolveReference(u).String(), nil
	}
	// Filesystem base path.
	return filepath.Join(base, rawURL), nil
}

func (r *Resolver) route(resolved string) (Fetcher, error) {
	switch {
	case strings.HasPrefix(resolved, "http://"), strings.HasPrefix(resolved, "https://"):
		return r.http, nil
	case strings.HasPrefix(resolved, "s3://"):
		if r.object == nil {
			return nil, fmt.Errorf("fetch: no object fetcher configured for %q", resolved)
		}
		return r.object, nil
	default:
		return r.file, nil
	}
}

// HTTPFetcher fetches artifacts over HTTP(S).
type HTTPFetcher struct {
	Client *http.Client
}

// Fetch issues a single GET; a non-2xx status is an error. No internal
// retries.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: building request for %q: %w", rawURL, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch: GET %s: unexpected status %s", rawURL, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch: reading body of %s: %w", rawURL, err)
	}
	return data, nil
}

// FileFetcher fetches artifacts from the local filesystem. Accepts plain
// paths and file:// URLs.
type FileFetcher struct{}

// Fetch reads the file at rawURL.
func (f *FileFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := strings.TrimPrefix(rawURL, "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fetch: reading %s: %w", path, err)
	}
	return data, nil
}
