package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned when an operation requires a loaded
	// database image and none is mapped.
	ErrNotInitialized = errors.New("engine: not initialized")

	// ErrNoEmbeddings is returned by vector search when no embeddings image
	// is attached.
	ErrNoEmbeddings = errors.New("engine: no embeddings image attached")
)

// DimensionError reports a query vector whose length does not match the
// dimensionality declared by the attached embeddings image. It is always
// raised before any parameter binding occurs.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("engine: vector dimension mismatch: expected %d, got %d", e.Want, e.Got)
}

// IsDimensionError reports whether err wraps a DimensionError.
func IsDimensionError(err error) bool {
	var de *DimensionError
	return errors.As(err, &de)
}
