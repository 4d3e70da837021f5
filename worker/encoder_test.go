package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kinotek/vecsearch/embed"
	"github.com/kinotek/vecsearch/fetch"
)

func testEmbedWorker(t *testing.T) *EmbedWorker {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vocab-test.txt"),
		[]byte("[PAD]\n[UNK]\n[CLS]\n[SEP]\nquiet\ndrama"), 0o644))

	weights := make([]int8, 6*4)
	for i := range weights {
		weights[i] = int8(i%7 - 3)
	}
	model, err := embed.EncodeSessionAsset(4, 0.1, weights)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model-test.bin"), model, 0o644))

	enc := embed.NewEncoder(fetch.New(dir), testLogger(), embed.WithDefaultVariant("test"))
	w := NewEmbed(enc, 0, testLogger())
	t.Cleanup(w.Close)
	return w
}

func TestEmbedWorkerLifecycle(t *testing.T) {
	w := testEmbedWorker(t)
	ctx := context.Background()

	result, err := w.Wait(ctx, Request{ID: "1", Payload: InitEncoderPayload{Variant: "test"}})
	require.NoError(t, err)
	require.Equal(t, "test", result.(InitEncoderResult).Variant)

	result, err = w.Wait(ctx, Request{ID: "2", Payload: EmbedPayload{Text: "a quiet drama"}})
	require.NoError(t, err)
	require.Len(t, result.(EmbedResult).Vector, 4)

	_, err = w.Wait(ctx, Request{ID: "3", Payload: DisposePayload{}})
	require.NoError(t, err)

	// Embed after dispose re-initializes implicitly.
	result, err = w.Wait(ctx, Request{ID: "4", Payload: EmbedPayload{Text: "a quiet drama"}})
	require.NoError(t, err)
	require.Len(t, result.(EmbedResult).Vector, 4)
}

func TestEmbedWorkerMissingVariant(t *testing.T) {
	w := testEmbedWorker(t)

	_, err := w.Wait(context.Background(), Request{ID: "1", Payload: InitEncoderPayload{Variant: "absent"}})
	require.Error(t, err)
}
