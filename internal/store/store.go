package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Store is the read surface over an ingested node table. All methods are
// safe for concurrent use: after ingestion the database is never written,
// so readers interleave freely.
//
// No method loads a subtree. Every read is a point lookup or a bounded
// window over the (parent_id, rank) index, which is what lets the UI scroll
// through millions of siblings at constant per-call cost.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens an existing store read-only.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	db.SetMaxOpenConns(4)
	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the on-disk location of the store.
func (s *Store) Path() string { return s.path }

// DB exposes the underlying handle for the search engine's paged scans.
func (s *Store) DB() *sql.DB { return s.db }

const nodeColumns = `id, parent_id, key, kind, value, rank, path, child_count, range_start, range_end`

// scanNode scans a row in standard column order.
func scanNode(scanner interface{ Scan(dest ...any) error }) (Node, error) {
	var n Node
	var parentID, rangeStart, rangeEnd sql.NullInt64
	var value sql.NullString
	var kind string
	err := scanner.Scan(&n.ID, &parentID, &n.Key, &kind, &value,
		&n.Rank, &n.Path, &n.ChildCount, &rangeStart, &rangeEnd)
	if err != nil {
		return n, err
	}
	n.ParentID = parentID.Int64
	n.Value = value.String
	n.Kind = Kind(kind)
	n.RangeStart = rangeStart.Int64
	n.RangeEnd = rangeEnd.Int64
	return n, nil
}

// GetNode returns a single node by id.
func (s *Store) GetNode(id int64) (*Node, error) {
	row := s.db.QueryRow(`SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get node %d: %w", id, err)
	}
	return &n, nil
}

// GetByPath returns the node with the given materialized path. Bucket
// nodes are not addressable by path. A repeated object key yields siblings
// sharing a path; the first by insertion order wins.
func (s *Store) GetByPath(path string) (*Node, error) {
	row := s.db.QueryRow(`
		SELECT `+nodeColumns+` FROM nodes
		WHERE path = ? AND kind != 'bucket'
		ORDER BY id LIMIT 1`, path)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get by path %s: %w", path, err)
	}
	return &n, nil
}

// Root returns the single parentless node.
func (s *Store) Root() (*Node, error) {
	row := s.db.QueryRow(`SELECT ` + nodeColumns + ` FROM nodes WHERE parent_id IS NULL`)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get root: %w", err)
	}
	return &n, nil
}

// Children returns a window of a parent's real children ordered by rank.
// offset and limit address the window; nothing outside it is touched.
func (s *Store) Children(parentID int64, offset, limit int64) ([]Node, error) {
	rows, err := s.db.Query(`
		SELECT `+nodeColumns+` FROM nodes
		WHERE parent_id = ? AND kind != 'bucket'
		ORDER BY rank LIMIT ? OFFSET ?`, parentID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("children of %d: %w", parentID, err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	var out []Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ChildrenInRange returns real children with rank in [start, end], ordered
// by rank, shifted by offset and bounded by limit. Used to expand buckets.
func (s *Store) ChildrenInRange(parentID, start, end, offset, limit int64) ([]Node, error) {
	rows, err := s.db.Query(`
		SELECT `+nodeColumns+` FROM nodes
		WHERE parent_id = ? AND kind != 'bucket' AND rank BETWEEN ? AND ?
		ORDER BY rank LIMIT ? OFFSET ?`, parentID, start, end, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("children of %d in [%d,%d]: %w", parentID, start, end, err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	var out []Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ChildByKey returns the child of an object parent with the given key,
// taking the lowest rank when the key repeats.
func (s *Store) ChildByKey(parentID int64, key string) (*Node, error) {
	row := s.db.QueryRow(`
		SELECT `+nodeColumns+` FROM nodes
		WHERE parent_id = ? AND kind != 'bucket' AND key = ?
		ORDER BY rank LIMIT 1`, parentID, key)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("child %q of %d: %w", key, parentID, err)
	}
	return &n, nil
}

// ChildByRank returns the child of a parent at the given rank.
func (s *Store) ChildByRank(parentID, rank int64) (*Node, error) {
	row := s.db.QueryRow(`
		SELECT `+nodeColumns+` FROM nodes
		WHERE parent_id = ? AND kind != 'bucket' AND rank = ?`, parentID, rank)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("child #%d of %d: %w", rank, parentID, err)
	}
	return &n, nil
}

// Buckets returns one window of the bucket rows materialized under a
// parent whose range falls inside [start, end], ordered by range start.
// offset and limit bound the window in the query itself, so listing the
// buckets of a 10M-element array never loads the whole bucket set.
func (s *Store) Buckets(parentID, start, end, offset, limit int64) ([]Node, error) {
	rows, err := s.db.Query(`
		SELECT `+nodeColumns+` FROM nodes
		WHERE parent_id = ? AND kind = 'bucket'
		  AND range_start >= ? AND range_end <= ?
		ORDER BY range_start LIMIT ? OFFSET ?`, parentID, start, end, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("buckets of %d: %w", parentID, err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	var out []Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// BucketFor returns the bucket under parentID whose range covers rank.
func (s *Store) BucketFor(parentID, rank int64) (*Node, error) {
	row := s.db.QueryRow(`
		SELECT `+nodeColumns+` FROM nodes
		WHERE parent_id = ? AND kind = 'bucket'
		  AND range_start <= ? AND range_end >= ?`, parentID, rank, rank)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bucket covering #%d of %d: %w", rank, parentID, err)
	}
	return &n, nil
}

// NodeCount returns the number of real (non-bucket) nodes in the store.
func (s *Store) NodeCount() (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM nodes WHERE kind != 'bucket'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count nodes: %w", err)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Search index reads
// ---------------------------------------------------------------------------

// Match is one search hit: the node, which of its three indexed fields
// matched, and the relevance score (lower is better, bm25).
type Match struct {
	NodeID int64
	Field  string // "key", "value", or "path"
	Score  float64
	Path   string
}

// minTrigramQuery is the shortest query the trigram FTS index can serve.
// Shorter queries fall back to a LIKE scan over the same three fields.
const minTrigramQuery = 3

// SearchPage returns one relevance-ordered page of matches for query.
// Ordering is deterministic for a given store and query: bm25 rank first,
// then node id (insertion order is document preorder), so pages concatenate
// into a stable total order and any partial delivery is a strict prefix.
func (s *Store) SearchPage(ctx context.Context, query string, offset, limit int64) ([]Match, error) {
	if len(query) >= minTrigramQuery {
		return s.searchFTS(ctx, query, offset, limit)
	}
	return s.searchLike(ctx, query, offset, limit)
}

func (s *Store) searchFTS(ctx context.Context, query string, offset, limit int64) ([]Match, error) {
	// Quote the query so FTS5 treats it as a plain string, not syntax.
	quoted := `"` + strings.ReplaceAll(query, `"`, `""`) + `"`
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.key, n.value, n.path, f.rank
		FROM nodes_search f
		JOIN nodes n ON n.id = f.rowid
		WHERE nodes_search MATCH ?
		ORDER BY f.rank, n.id
		LIMIT ? OFFSET ?`, quoted, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore
	return collectMatches(rows, query)
}

func (s *Store) searchLike(ctx context.Context, query string, offset, limit int64) ([]Match, error) {
	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, key, value, path, 0.0
		FROM nodes
		WHERE kind != 'bucket'
		  AND (key LIKE ? ESCAPE '\' OR value LIKE ? ESCAPE '\' OR path LIKE ? ESCAPE '\')
		ORDER BY id
		LIMIT ? OFFSET ?`, pattern, pattern, pattern, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore
	return collectMatches(rows, query)
}

func collectMatches(rows *sql.Rows, query string) ([]Match, error) {
	q := strings.ToLower(query)
	var out []Match
	for rows.Next() {
		var m Match
		var key string
		var value sql.NullString
		if err := rows.Scan(&m.NodeID, &key, &value, &m.Path, &m.Score); err != nil {
			return nil, err
		}
		m.Field = matchedField(q, key, value.String, m.Path)
		out = append(out, m)
	}
	return out, rows.Err()
}

// matchedField picks the first of key/value/path containing the query.
func matchedField(q, key, value, path string) string {
	switch {
	case strings.Contains(strings.ToLower(key), q):
		return "key"
	case strings.Contains(strings.ToLower(value), q):
		return "value"
	case strings.Contains(strings.ToLower(path), q):
		return "path"
	default:
		// Trigram matches are substring matches, so one of the three fields
		// always contains the query; "path" is the defensive fallback.
		return "path"
	}
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}
