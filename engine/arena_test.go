package engine

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArenaLifecycle(t *testing.T) {
	data := []byte("image bytes")
	a, err := newArena(data, "test")
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), a.size)

	got, err := os.ReadFile(a.path)
	require.NoError(t, err)
	require.Equal(t, data, got)

	require.NoError(t, a.Close())
	_, err = os.Stat(a.path)
	require.True(t, os.IsNotExist(err))
}

func TestArenaCloseIsIdempotent(t *testing.T) {
	a, err := newArena([]byte("x"), "test")
	require.NoError(t, err)

	first := a.Close()
	second := a.Close()
	require.NoError(t, first)
	// The second close must not attempt a second removal.
	require.Equal(t, first, second)
}

func TestArenaNilClose(t *testing.T) {
	var a *arena
	require.NoError(t, a.Close())
}
