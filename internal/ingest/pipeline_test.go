package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ohler55/ojg/oj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twigtools/twig/internal/store"
)

// ingestJSON streams a JSON document into a fresh store and opens it.
func ingestJSON(t *testing.T, doc string, opts Options) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, LoadJSON(strings.NewReader(doc), dbPath, "test.json", opts))
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestIngestScalarTree(t *testing.T) {
	st := ingestJSON(t, `{"a":[1,2,3]}`, Options{})

	root, err := st.Root()
	require.NoError(t, err)
	assert.Equal(t, store.KindObject, root.Kind)
	assert.Equal(t, ".", root.Path)
	assert.Equal(t, int64(1), root.ChildCount)

	a, err := st.GetByPath(".a")
	require.NoError(t, err)
	assert.Equal(t, store.KindArray, a.Kind)
	assert.Equal(t, int64(3), a.ChildCount)
	assert.Equal(t, root.ID, a.ParentID)

	for i, want := range []string{"1", "2", "3"} {
		n, err := st.GetByPath(".a[" + string(rune('0'+i)) + "]")
		require.NoError(t, err)
		assert.Equal(t, store.KindInteger, n.Kind)
		assert.Equal(t, want, n.Value)
		assert.Equal(t, int64(i), n.Rank)
		assert.Equal(t, a.ID, n.ParentID)
	}
}

func TestIngestKinds(t *testing.T) {
	st := ingestJSON(t, `{"s":"hi","i":42,"f":1.5,"b":true,"n":null}`, Options{})

	cases := []struct {
		path  string
		kind  store.Kind
		value string
	}{
		{".s", store.KindString, "hi"},
		{".i", store.KindInteger, "42"},
		{".f", store.KindFloat, "1.5"},
		{".b", store.KindBoolean, "true"},
		{".n", store.KindNull, "null"},
	}
	for _, c := range cases {
		n, err := st.GetByPath(c.path)
		require.NoError(t, err, c.path)
		assert.Equal(t, c.kind, n.Kind, c.path)
		assert.Equal(t, c.value, n.Value, c.path)
	}
}

func TestIngestQuotedKeys(t *testing.T) {
	st := ingestJSON(t, `{"plain":1,"with space":2,"dots.and[brackets]":3}`, Options{})

	n, err := st.GetByPath(".plain")
	require.NoError(t, err)
	assert.Equal(t, "1", n.Value)

	n, err = st.GetByPath(`.["with space"]`)
	require.NoError(t, err)
	assert.Equal(t, "2", n.Value)
	assert.Equal(t, "with space", n.Key)

	n, err = st.GetByPath(`.["dots.and[brackets]"]`)
	require.NoError(t, err)
	assert.Equal(t, "3", n.Value)
}

func TestRepeatedObjectKeys(t *testing.T) {
	// A repeated key is accepted, not an ingestion failure: both rows are
	// kept with distinct ranks, and path/key lookups take the first.
	st := ingestJSON(t, `{"a":1,"a":2}`, Options{})

	root, err := st.Root()
	require.NoError(t, err)
	assert.Equal(t, int64(2), root.ChildCount)

	children, err := st.Children(root.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "a", children[0].Key)
	assert.Equal(t, "1", children[0].Value)
	assert.Equal(t, "a", children[1].Key)
	assert.Equal(t, "2", children[1].Value)
	assert.Equal(t, ".a", children[0].Path)
	assert.Equal(t, ".a", children[1].Path)

	first, err := st.GetByPath(".a")
	require.NoError(t, err)
	assert.Equal(t, "1", first.Value)

	byKey, err := st.ChildByKey(root.ID, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(0), byKey.Rank)
}

func TestIngestRootScalar(t *testing.T) {
	st := ingestJSON(t, `"lonely"`, Options{})
	root, err := st.Root()
	require.NoError(t, err)
	assert.Equal(t, store.KindString, root.Kind)
	assert.Equal(t, "lonely", root.Value)
	assert.Equal(t, int64(0), root.ChildCount)
}

func TestPathIsPureFunctionOfParentChain(t *testing.T) {
	st := ingestJSON(t, `{"users":[{"name":"amy","tags":["x","y"]},{"name":"bo"}]}`, Options{})

	// Re-derive every node's path from its parent chain and compare with
	// the stored value.
	root, err := st.Root()
	require.NoError(t, err)

	var walk func(n *store.Node)
	walk = func(n *store.Node) {
		if !n.Kind.IsContainer() {
			return
		}
		children, err := st.Children(n.ID, 0, n.ChildCount)
		require.NoError(t, err)
		for i := range children {
			c := &children[i]
			parent := frame{kind: n.Kind, path: n.Path}
			assert.Equal(t, c.Path, childPath(&parent, c.Key, c.Rank), "node %d", c.ID)
			walk(c)
		}
	}
	walk(root)
}

func TestMalformedInputDiscardsStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bad.db")
	err := LoadJSON(strings.NewReader(`{"a": [1, 2,`), dbPath, "bad.json", Options{})
	require.Error(t, err)

	var pe *store.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "bad.json", pe.Source)

	// All-or-nothing: nothing partial is left on disk.
	_, statErr := os.Stat(dbPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestEmptyInputIsParseError(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	err := LoadJSON(strings.NewReader(""), dbPath, "empty.json", Options{})
	var pe *store.ParseError
	require.ErrorAs(t, err, &pe)
}

func TestNonFiniteSanitization(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sanitized.db")
	err := run(dbPath, "synthetic", Options{}, func(b *Builder) error {
		b.ObjectStart()
		b.Key("nan")
		b.Float(nan())
		b.Key("huge")
		b.Number("123456789012345678901234567890")
		b.Key("ok")
		b.Float(2.5)
		b.ObjectEnd()
		return nil
	})
	require.NoError(t, err)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	n, err := st.GetByPath(".nan")
	require.NoError(t, err)
	assert.Equal(t, store.UnsupportedNumber, n.Value)
	assert.Equal(t, store.KindFloat, n.Kind)

	n, err = st.GetByPath(".huge")
	require.NoError(t, err)
	assert.Equal(t, store.UnsupportedNumber, n.Value)
	assert.Equal(t, store.KindInteger, n.Kind)

	n, err = st.GetByPath(".ok")
	require.NoError(t, err)
	assert.Equal(t, "2.5", n.Value)
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func TestSmallBatchesFlushCorrectly(t *testing.T) {
	// Batch size 2 forces many commit/reopen cycles mid-document.
	st := ingestJSON(t, `{"a":1,"b":2,"c":3,"d":4,"e":[5,6,7]}`, Options{BatchSize: 2})
	count, err := st.NodeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(9), count)
}

// TestDeferredIndexEquivalence builds the same document twice: once through
// the deferred-indexing pipeline, once naively with every index and the
// search triggers in place before the first row. The final stores must
// agree row for row (ids normalized away by comparing on path).
func TestDeferredIndexEquivalence(t *testing.T) {
	doc := `{"team":[{"name":"api-gateway-7","port":8080},{"name":"edge","port":443}],"ok":true}`

	deferred := ingestJSON(t, doc, Options{})

	naivePath := filepath.Join(t.TempDir(), "naive.db")
	buildNaive(t, naivePath, doc)
	naive, err := store.Open(naivePath)
	require.NoError(t, err)
	defer func() { _ = naive.Close() }()

	type row struct {
		Key, Kind, Value string
		Rank, ChildCount int64
	}
	dump := func(st *store.Store) map[string]row {
		rows, err := st.DB().Query(
			`SELECT path, key, kind, COALESCE(value,''), rank, child_count FROM nodes ORDER BY id`)
		require.NoError(t, err)
		defer func() { _ = rows.Close() }()
		out := make(map[string]row)
		for rows.Next() {
			var path string
			var r row
			require.NoError(t, rows.Scan(&path, &r.Key, &r.Kind, &r.Value, &r.Rank, &r.ChildCount))
			out[path] = r
		}
		require.NoError(t, rows.Err())
		return out
	}
	assert.Equal(t, dump(naive), dump(deferred))

	// The naive store's search index was maintained by triggers, the
	// deferred one bulk-loaded; both must serve the same matches.
	search := func(st *store.Store) []string {
		matches, err := st.SearchPage(context.Background(), "api-gateway", 0, 100)
		require.NoError(t, err)
		paths := make([]string, len(matches))
		for i, m := range matches {
			paths[i] = m.Path
		}
		return paths
	}
	assert.Equal(t, search(naive), search(deferred))
}

// buildNaive is the reference implementation: indexes and search triggers
// exist before the first insert, so the search index is maintained row by
// row instead of bulk-loaded.
func buildNaive(t *testing.T, dbPath, doc string) {
	t.Helper()
	w, err := newWriter(dbPath, 1)
	require.NoError(t, err)
	// Order inverted relative to the pipeline: structure first, rows after.
	require.NoError(t, w.commitTx())
	require.NoError(t, store.CreateIndexes(w.db))
	require.NoError(t, store.PopulateSearchIndex(w.db)) // empty bulk load + triggers
	require.NoError(t, w.beginTx())

	b := newBuilder(w)
	require.NoError(t, oj.TokenizeLoad(strings.NewReader(doc), b))
	require.NoError(t, b.err)
	require.NoError(t, w.finish())
	require.NoError(t, store.ComputeChildCounts(w.db))
	require.NoError(t, store.MaterializeBuckets(w.db, 1000))
	require.NoError(t, w.close())
}
