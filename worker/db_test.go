package worker

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kinotek/vecsearch/engine"
	"github.com/kinotek/vecsearch/fetch"
	"github.com/kinotek/vecsearch/vector"
)

// buildImages writes a small catalog image plus a matching embeddings image
// and returns both paths. The modernc driver is registered by the engine
// package import.
func buildImages(t *testing.T) (primary, embeddings string) {
	t.Helper()
	dir := t.TempDir()

	primary = filepath.Join(dir, "movies.img")
	db, err := sql.Open("sqlite", primary)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE movies (id INTEGER PRIMARY KEY, title TEXT NOT NULL, year INTEGER, genre TEXT, overview TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO movies(id, title, year, genre, overview) VALUES
		(1, 'Solar Drift', 2019, 'sci-fi', ''),
		(2, 'The Quiet Harbor', 2021, 'drama', ''),
		(3, 'Midnight Ledger', 2018, 'thriller', '')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	embeddings = filepath.Join(dir, "embeddings.img")
	db, err = sql.Open("sqlite", embeddings)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE movie_embeddings (movie_id INTEGER PRIMARY KEY, embedding BLOB NOT NULL)`)
	require.NoError(t, err)
	for id, vec := range map[int64][]float32{
		1: {1, 0},
		2: {0, 1},
		3: {0.7071, 0.7071},
	} {
		_, err = db.Exec(`INSERT INTO movie_embeddings(movie_id, embedding) VALUES(?, ?)`, id, vector.EncodeEmbedding(vec))
		require.NoError(t, err)
	}
	_, err = db.Exec(`CREATE TABLE embedding_meta (key TEXT PRIMARY KEY, value TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO embedding_meta(key, value) VALUES('dimensions', '2'), ('model', 'test-encoder')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	return primary, embeddings
}

func testDBWorker(t *testing.T) *DBWorker {
	t.Helper()
	w := NewDB(engine.New(fetch.New(""), testLogger()), 0, testLogger())
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestDBWorkerLifecycle(t *testing.T) {
	primary, embeddings := buildImages(t)
	w := testDBWorker(t)
	ctx := context.Background()

	result, err := w.Wait(ctx, Request{ID: "1", Payload: InitPayload{URL: primary}})
	require.NoError(t, err)
	init := result.(InitResult)
	require.Equal(t, int64(3), init.TotalEntities)

	result, err = w.Wait(ctx, Request{ID: "2", Payload: AttachPayload{URL: embeddings}})
	require.NoError(t, err)
	attach := result.(AttachResult)
	require.Equal(t, int64(3), attach.AttachedCount)
	require.Equal(t, 2, attach.Dimensions)
	require.Equal(t, "test-encoder", attach.Model)

	result, err = w.Wait(ctx, Request{ID: "3", Payload: VectorSearchPayload{Vector: []float32{1, 0}, K: 2}})
	require.NoError(t, err)
	rows := result.([]engine.Row)
	require.Len(t, rows, 2)
	require.Equal(t, "Solar Drift", rows[0]["title"])

	result, err = w.Wait(ctx, Request{ID: "4", Payload: QueryByIDsPayload{
		IDs:   []int64{2, 1},
		Query: "SELECT * FROM movies WHERE id IN (?, ?)",
		Args:  []any{2, 1},
	}})
	require.NoError(t, err)
	rows = result.([]engine.Row)
	require.Len(t, rows, 2)
	require.Equal(t, "The Quiet Harbor", rows[0]["title"])

	result, err = w.Wait(ctx, Request{ID: "5", Payload: ExecPayload{
		Query: "SELECT title FROM movies WHERE year > ? ORDER BY year",
		Args:  []any{2018},
	}})
	require.NoError(t, err)
	rows = result.([]engine.Row)
	require.Len(t, rows, 2)

	result, err = w.Wait(ctx, Request{ID: "6", Payload: DetachPayload{}})
	require.NoError(t, err)
	require.True(t, result.(DetachResult).WasAttached)
}

func TestDBWorkerInitResolvesAgainstBase(t *testing.T) {
	primary, _ := buildImages(t)
	w := testDBWorker(t)

	result, err := w.Wait(context.Background(), Request{ID: "1", Payload: InitPayload{
		URL:  filepath.Base(primary),
		Base: filepath.Dir(primary),
	}})
	require.NoError(t, err)
	require.Equal(t, int64(3), result.(InitResult).TotalEntities)
}

func TestDBWorkerRejectsUnknownPayload(t *testing.T) {
	w := testDBWorker(t)

	_, err := w.Wait(context.Background(), Request{ID: "1", Payload: bogusPayload{}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown request kind")
}

type bogusPayload struct{}

func (bogusPayload) Kind() Kind { return Kind("bogus") }

func TestDBWorkerSearchBeforeInit(t *testing.T) {
	w := testDBWorker(t)

	_, err := w.Wait(context.Background(), Request{ID: "1", Payload: VectorSearchPayload{Vector: []float32{1, 0}, K: 1}})
	require.ErrorIs(t, err, engine.ErrNotInitialized)
}
