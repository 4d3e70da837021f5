package engine

import (
	"fmt"
	"os"
	"sync"
)

// arena materializes a fetched byte image into an engine-owned backing file.
// One arena exists per mapped image; the attached embeddings image gets its
// own independent arena. The engine, not the caller, reclaims the backing
// storage: Close removes the file exactly once, and further Close calls are
// no-ops.
type arena struct {
	path string
	size int64

	closeOnce sync.Once
	closeErr  error
}

// newArena writes data into a fresh temp file labeled for diagnostics.
// Allocation failures report the attempted byte size.
func newArena(data []byte, label string) (*arena, error) {
	f, err := os.CreateTemp("", "vecsearch-"+label+"-*.img")
	if err != nil {
		return nil, fmt.Errorf("engine: allocating %d byte arena for %s: %w", len(data), label, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("engine: copying %d bytes into %s arena: %w", len(data), label, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("engine: finalizing %s arena: %w", label, err)
	}
	return &arena{path: f.Name(), size: int64(len(data))}, nil
}

// Close reclaims the arena's backing storage. Safe to call more than once;
// only the first call takes effect.
func (a *arena) Close() error {
	if a == nil {
		return nil
	}
	a.closeOnce.Do(func() {
		a.closeErr = os.Remove(a.path)
	})
	return a.closeErr
}
