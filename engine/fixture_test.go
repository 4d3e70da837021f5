package engine

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kinotek/vecsearch/vector"
)

type fixtureMovie struct {
	id        int64
	title     string
	year      int
	genre     string
	embedding []float32
}

var testMovies = []fixtureMovie{
	{1, "Solar Drift", 2019, "sci-fi", []float32{1, 0, 0, 0}},
	{2, "The Quiet Harbor", 2021, "drama", []float32{0, 1, 0, 0}},
	{3, "Midnight Ledger", 2018, "thriller", []float32{0, 0, 1, 0}},
	{4, "Paper Lanterns", 2022, "drama", []float32{0.7071, 0.7071, 0, 0}},
	{5, "Iron Meridian", 2015, "action", []float32{0, 0, 0, 1}},
}

// buildPrimaryImage writes a movie catalog image to disk and returns its
// path. withConfig controls whether the app_config table declares the
// embedding dimensionality.
func buildPrimaryImage(t *testing.T, withConfig bool, dim int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "movies.img")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE movies (
		id INTEGER PRIMARY KEY,
		title TEXT NOT NULL,
		year INTEGER,
		genre TEXT,
		overview TEXT
	)`)
	require.NoError(t, err)

	for _, m := range testMovies {
		_, err = db.Exec(`INSERT INTO movies(id, title, year, genre, overview) VALUES(?, ?, ?, ?, ?)`,
			m.id, m.title, m.year, m.genre, "about "+m.title)
		require.NoError(t, err)
	}

	if withConfig {
		_, err = db.Exec(`CREATE TABLE app_config (key TEXT PRIMARY KEY, value TEXT)`)
		require.NoError(t, err)
		_, err = db.Exec(`INSERT INTO app_config(key, value) VALUES('embedding_dim', ?)`, dim)
		require.NoError(t, err)
	}
	return path
}

// buildEmbeddingsImage writes an embeddings image for the fixture movies.
// withMeta controls the embedding_meta table; movies with nil embeddings
// are skipped.
func buildEmbeddingsImage(t *testing.T, withMeta bool, dim int, model string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "embeddings.img")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE movie_embeddings (
		movie_id INTEGER PRIMARY KEY,
		embedding BLOB NOT NULL
	)`)
	require.NoError(t, err)

	for _, m := range testMovies {
		if m.embedding == nil {
			continue
		}
		_, err = db.Exec(`INSERT INTO movie_embeddings(movie_id, embedding) VALUES(?, ?)`,
			m.id, vector.EncodeEmbedding(m.embedding))
		require.NoError(t, err)
	}

	if withMeta {
		_, err = db.Exec(`CREATE TABLE embedding_meta (key TEXT PRIMARY KEY, value TEXT)`)
		require.NoError(t, err)
		_, err = db.Exec(`INSERT INTO embedding_meta(key, value) VALUES('dimensions', ?), ('model', ?)`, dim, model)
		require.NoError(t, err)
	}
	return path
}

// buildCorruptImage writes bytes that are not a SQLite database.
func buildCorruptImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corrupt.img")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a database"), 0o644))
	return path
}
