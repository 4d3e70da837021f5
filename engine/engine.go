package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite" // register pure-Go SQLite driver

	"github.com/kinotek/vecsearch/fetch"
	"github.com/kinotek/vecsearch/vector"
)

// Schema contract of the exported images. The primary image must answer a
// COUNT over the entity table; everything else is optional.
const (
	entityTable  = "movies"
	configTable  = "app_config"
	configDimKey = "embedding_dim"

	attachAlias  = "emb"
	vectorTable  = "movie_embeddings"
	metaTable    = "embedding_meta"
	metaDimKey   = "dimensions"
	metaModelKey = "model"
)

// Row is a single result row keyed by column name.
type Row map[string]any

// Engine maps a serialized database image into an embedded SQLite instance
// and answers structured and vector nearest-neighbor queries against it.
//
// All mutable state lives on the struct; nothing is package-global. Engine
// methods are not safe for concurrent use: the worker queue in package
// worker serializes access, and the underlying connection is pinned to a
// single SQLite connection so the ATTACH alias is visible to every
// statement.
type Engine struct {
	fetcher fetch.Fetcher
	logger  *slog.Logger

	db      *sql.DB
	primary *arena

	attach        *arena
	attached      bool
	attachedModel string

	// dim caches the expected vector dimensionality; 0 means unknown.
	dim int

	totalEntities int64
	rowCache      map[int64]Row

	initGroup singleflight.Group
}

// New creates an Engine. fetcher defaults to a plain resolver and logger to
// slog.Default when nil.
func New(fetcher fetch.Fetcher, logger *slog.Logger) *Engine {
	if fetcher == nil {
		fetcher = fetch.New("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	registerVectorFunctions()
	return &Engine{
		fetcher:  fetcher,
		logger:   logger,
		rowCache: make(map[int64]Row),
	}
}

// Dimensions returns the cached vector dimensionality, 0 when unknown.
func (e *Engine) Dimensions() int { return e.dim }

// TotalEntities returns the entity count discovered by the last Init.
func (e *Engine) TotalEntities() int64 { return e.totalEntities }

// Attached reports whether an embeddings image is currently attached.
func (e *Engine) Attached() bool { return e.attached }

// AttachedModel returns the source-model identifier declared by the
// attached embeddings image, if any.
func (e *Engine) AttachedModel() string { return e.attachedModel }

// Init fetches the database image at url, maps it as the primary database,
// and returns the total entity count. Any existing instance is closed
// first. A failed sanity count is treated as a corrupt image and the
// mapping is rejected. Concurrent Init calls for the same url coalesce
// into one underlying load.
func (e *Engine) Init(ctx context.Context, url string) (int64, error) {
	v, err, _ := e.initGroup.Do(url, func() (any, error) {
		return e.doInit(ctx, url)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (e *Engine) doInit(ctx context.Context, url string) (int64, error) {
	if e.db != nil {
		e.closeLocked()
	}

	data, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		return 0, err
	}
	ar, err := newArena(data, "primary")
	if err != nil {
		return 0, err
	}

	db, err := sql.Open("sqlite", readOnlyDSN(ar.path))
	if err != nil {
		_ = ar.Close()
		return 0, fmt.Errorf("engine: opening database image: %w", err)
	}
	// ATTACH is per-connection state; pin the pool to one connection.
	db.SetMaxOpenConns(1)

	var count int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+entityTable).Scan(&count); err != nil {
		_ = db.Close()
		_ = ar.Close()
		return 0, fmt.Errorf("engine: corrupt database image, sanity count failed: %w", err)
	}

	e.db = db
	e.primary = ar
	e.totalEntities = count
	e.rowCache = make(map[int64]Row)
	e.dim = e.primaryDimensions(ctx)

	e.logger.Info("database image loaded",
		"url", url,
		"bytes", ar.size,
		"entities", count,
		"dimensions", e.dim,
	)
	return count, nil
}

// primaryDimensions reads the expected vector dimensionality from the
// primary image's configuration table. A missing table or key is not an
// error; 0 marks the dimensionality unknown.
func (e *Engine) primaryDimensions(ctx context.Context) int {
	var raw string
	q := fmt.Sprintf("SELECT value FROM %s WHERE key = ?", configTable)
	if err := e.db.QueryRowContext(ctx, q, configDimKey).Scan(&raw); err != nil {
		return 0
	}
	dim, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || dim <= 0 {
		return 0
	}
	return dim
}

// Attach fetches the embeddings image at url and maps it under the fixed
// alias alongside the primary image. Any previously attached image is
// detached first, best-effort. On failure the engine is left with no
// embeddings attached, never in a partially mapped state. Returns the
// number of vectors in the attached image (0 when the vector table is
// absent).
func (e *Engine) Attach(ctx context.Context, url string) (int64, error) {
	if e.db == nil {
		return 0, ErrNotInitialized
	}
	if e.attached {
		if _, err := e.Detach(ctx); err != nil {
			e.logger.Warn("detach before attach failed", "error", err)
		}
	}

	data, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		return 0, err
	}
	ar, err := newArena(data, "embeddings")
	if err != nil {
		return 0, err
	}

	stmt := fmt.Sprintf("ATTACH DATABASE ? AS %s", attachAlias)
	if _, err := e.db.ExecContext(ctx, stmt, readOnlyDSN(ar.path)); err != nil {
		_ = ar.Close()
		return 0, fmt.Errorf("engine: attaching embeddings image: %w", err)
	}

	dim, model, err := e.attachedMeta(ctx)
	if err != nil {
		e.teardownAttach(ctx, ar)
		return 0, fmt.Errorf("engine: corrupt embeddings image: %w", err)
	}

	e.attach = ar
	e.attached = true
	e.attachedModel = model
	if dim > 0 {
		e.dim = dim
	}

	count := e.attachedCount(ctx)
	e.logger.Info("embeddings image attached",
		"url", url,
		"bytes", ar.size,
		"vectors", count,
		"dimensions", e.dim,
		"model", model,
	)
	return count, nil
}

// attachedMeta reads the dimensionality and source-model identifier the
// embeddings image declares about itself. A missing metadata table is
// tolerated; the dimensionality is then probed from the first stored
// vector.
func (e *Engine) attachedMeta(ctx context.Context) (int, string, error) {
	var dim int
	var model string

	q := fmt.Sprintf("SELECT key, value FROM %s.%s WHERE key IN (?, ?)", attachAlias, metaTable)
	rows, err := e.db.QueryContext(ctx, q, metaDimKey, metaModelKey)
	if err != nil {
		if !isMissingTable(err) {
			return 0, "", err
		}
	} else {
		defer rows.Close()
		for rows.Next() {
			var key, value string
			if err := rows.Scan(&key, &value); err != nil {
				return 0, "", err
			}
			switch key {
			case metaDimKey:
				n, convErr := strconv.Atoi(strings.TrimSpace(value))
				if convErr != nil || n <= 0 {
					return 0, "", fmt.Errorf("invalid %s value %q", metaDimKey, value)
				}
				dim = n
			case metaModelKey:
				model = value
			}
		}
		if err := rows.Err(); err != nil {
			return 0, "", err
		}
	}

	if dim == 0 {
		probe := fmt.Sprintf("SELECT length(embedding) FROM %s.%s LIMIT 1", attachAlias, vectorTable)
		var blobLen int
		err := e.db.QueryRowContext(ctx, probe).Scan(&blobLen)
		switch {
		case err == sql.ErrNoRows || isMissingTable(err):
			// Empty or absent vector table; keep the current cached value.
		case err != nil:
			return 0, "", err
		case blobLen%4 == 0 && blobLen > 0:
			dim = blobLen / 4
		}
	}
	return dim, model, nil
}

// attachedCount counts stored vectors; a missing vector table reports zero.
func (e *Engine) attachedCount(ctx context.Context) int64 {
	var count int64
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s.%s", attachAlias, vectorTable)
	if err := e.db.QueryRowContext(ctx, q).Scan(&count); err != nil {
		return 0
	}
	return count
}

// teardownAttach unwinds a partially completed attach so the engine
// returns to the "no embeddings attached" state.
func (e *Engine) teardownAttach(ctx context.Context, ar *arena) {
	if _, err := e.db.ExecContext(ctx, "DETACH DATABASE "+attachAlias); err != nil {
		e.logger.Warn("teardown detach failed", "error", err)
	}
	_ = ar.Close()
}

// Detach unmaps the embeddings image. Detaching when nothing is attached
// is a successful no-op. The cached dimensionality reverts to the primary
// image's declared value, or unknown.
func (e *Engine) Detach(ctx context.Context) (bool, error) {
	if e.db == nil {
		return false, ErrNotInitialized
	}
	if !e.attached {
		return false, nil
	}
	if _, err := e.db.ExecContext(ctx, "DETACH DATABASE "+attachAlias); err != nil {
		return false, fmt.Errorf("engine: detaching embeddings image: %w", err)
	}
	_ = e.attach.Close()
	e.attach = nil
	e.attached = false
	e.attachedModel = ""
	e.dim = e.primaryDimensions(ctx)
	e.logger.Info("embeddings image detached", "dimensions", e.dim)
	return true, nil
}

// Exec runs a parameterized query with positional binding and returns the
// result rows in order.
func (e *Engine) Exec(ctx context.Context, query string, args ...any) ([]Row, error) {
	if e.db == nil {
		return nil, ErrNotInitialized
	}
	return e.queryRows(ctx, query, args...)
}

// QueryByIDs executes a caller-prebuilt lookup query and returns its rows
// reordered to match ids. Rows must carry an "id" column. Results are
// cached per image lifetime; a full Init replaces the cache wholesale.
func (e *Engine) QueryByIDs(ctx context.Context, ids []int64, query string, args ...any) ([]Row, error) {
	if e.db == nil {
		return nil, ErrNotInitialized
	}

	missing := false
	for _, id := range ids {
		if _, ok := e.rowCache[id]; !ok {
			missing = true
			break
		}
	}
	if missing {
		rows, err := e.queryRows(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			if id, ok := rowID(r); ok {
				e.rowCache[id] = r
			}
		}
	}

	out := make([]Row, 0, len(ids))
	for _, id := range ids {
		if r, ok := e.rowCache[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// VectorSearch returns the k rows whose stored vector is nearest to vec
// under cosine distance, ordered ascending by distance. The optional filter
// is a SQL predicate over the entity table (alias m) applied inside the
// same query, so the k nearest matching rows are returned rather than
// k-nearest overall filtered down. The vector's length is validated against
// the cached dimensionality before any binding.
func (e *Engine) VectorSearch(ctx context.Context, vec []float32, k int, filter string, filterArgs ...any) ([]Row, error) {
	if e.db == nil {
		return nil, ErrNotInitialized
	}
	if !e.attached {
		return nil, ErrNoEmbeddings
	}
	if e.dim > 0 && len(vec) != e.dim {
		return nil, &DimensionError{Want: e.dim, Got: len(vec)}
	}
	if k <= 0 {
		return nil, fmt.Errorf("engine: k must be positive, got %d", k)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT m.*, vec_distance(e.embedding, ?1) AS distance\n")
	fmt.Fprintf(&sb, "FROM %s.%s AS e\n", attachAlias, vectorTable)
	fmt.Fprintf(&sb, "JOIN %s AS m ON m.id = e.movie_id\n", entityTable)
	if f := strings.TrimSpace(filter); f != "" {
		fmt.Fprintf(&sb, "WHERE %s\n", renumberPlaceholders(f, 3))
	}
	sb.WriteString("ORDER BY distance ASC\nLIMIT ?2")

	// Bind order: vector, k, then the filter's own parameters.
	args := make([]any, 0, 2+len(filterArgs))
	args = append(args, vector.EncodeEmbedding(vec), k)
	args = append(args, filterArgs...)

	return e.queryRows(ctx, sb.String(), args...)
}

// Close tears down the engine: the connection, the attach arena, and the
// primary arena, each reclaimed exactly once.
func (e *Engine) Close() error {
	if e.db == nil {
		return nil
	}
	e.closeLocked()
	return nil
}

func (e *Engine) closeLocked() {
	if err := e.db.Close(); err != nil {
		e.logger.Warn("closing database", "error", err)
	}
	if e.attached {
		_ = e.attach.Close()
		e.attach = nil
		e.attached = false
		e.attachedModel = ""
	}
	_ = e.primary.Close()
	e.primary = nil
	e.db = nil
	e.totalEntities = 0
	e.dim = 0
	e.rowCache = make(map[int64]Row)
}

func (e *Engine) queryRows(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("engine: query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("engine: reading columns: %w", err)
	}

	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("engine: scanning row: %w", err)
		}
		r := make(Row, len(cols))
		for i, col := range cols {
			if b, ok := vals[i].([]byte); ok {
				cp := make([]byte, len(b))
				copy(cp, b)
				r[col] = cp
				continue
			}
			r[col] = vals[i]
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("engine: iterating rows: %w", err)
	}
	return out, nil
}

func readOnlyDSN(path string) string {
	return "file:" + path + "?mode=ro&immutable=1"
}

func rowID(r Row) (int64, bool) {
	switch v := r["id"].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

// renumberPlaceholders rewrites the bare '?' placeholders of a caller-built
// filter predicate to explicit ?N placeholders starting at start, so they
// bind after the ?1 vector and ?2 limit parameters regardless of where the
// predicate sits in the statement text. Quoted literals are left alone.
func renumberPlaceholders(filter string, start int) string {
	var sb strings.Builder
	n := start
	inSingle, inDouble := false, false
	for i := 0; i < len(filter); i++ {
		ch := filter[i]
		switch {
		case ch == '\'' && !inDouble:
			inSingle = !inSingle
		case ch == '"' && !inSingle:
			inDouble = !inDouble
		case ch == '?' && !inSingle && !inDouble:
			// Leave already-numbered placeholders untouched.
			if i+1 < len(filter) && filter[i+1] >= '0' && filter[i+1] <= '9' {
				break
			}
			sb.WriteString("?" + strconv.Itoa(n))
			n++
			continue
		}
		sb.WriteByte(ch)
	}
	return sb.String()
}
