package nav

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twigtools/twig/internal/ingest"
	"github.com/twigtools/twig/internal/store"
)

// openDoc ingests a JSON document and opens the resulting store.
func openDoc(t *testing.T, doc string, opts ingest.Options) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "doc.db")
	require.NoError(t, ingest.LoadJSON(strings.NewReader(doc), dbPath, "doc.json", opts))
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// bigArrayDoc renders [0, 1, ..., n-1] as JSON.
func bigArrayDoc(n int) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprint(&sb, i)
	}
	sb.WriteByte(']')
	return sb.String()
}

func TestWindowOrderedChildren(t *testing.T) {
	st := openDoc(t, `{"zeta":1,"alpha":{"x":true},"mid":[1,2]}`, ingest.Options{})
	nav := NewNavigator(st, 1000)

	root, err := st.Root()
	require.NoError(t, err)

	window, err := nav.Window(root.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, window, 3)
	assert.Equal(t, "zeta", window[0].Key)
	assert.Equal(t, "alpha", window[1].Key)
	assert.Equal(t, "mid", window[2].Key)

	// Containers carry counts, scalars carry previews.
	assert.Equal(t, "1", window[0].Preview)
	assert.Empty(t, window[1].Preview)
	assert.Equal(t, int64(1), window[1].ChildCount)
	assert.Equal(t, int64(2), window[2].ChildCount)

	// Expanding is just another Window call with the child as parent.
	inner, err := nav.Window(window[2].ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, inner, 2)
	assert.Equal(t, "1", inner[0].Preview)
	assert.Equal(t, "2", inner[1].Preview)
}

func TestWindowOffsetLimit(t *testing.T) {
	st := openDoc(t, bigArrayDoc(10), ingest.Options{})
	nav := NewNavigator(st, 1000)

	root, err := st.Root()
	require.NoError(t, err)

	window, err := nav.Window(root.ID, 4, 3)
	require.NoError(t, err)
	require.Len(t, window, 3)
	assert.Equal(t, "4", window[0].Preview)
	assert.Equal(t, "6", window[2].Preview)

	// The same call returns the same window; no hidden cursor.
	again, err := nav.Window(root.ID, 4, 3)
	require.NoError(t, err)
	assert.Equal(t, window, again)

	none, err := nav.Window(root.ID, 0, 0)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestWindowOversizedParentShowsBuckets(t *testing.T) {
	st := openDoc(t, bigArrayDoc(25), ingest.Options{BucketThreshold: 10})
	nav := NewNavigator(st, 10)

	root, err := st.Root()
	require.NoError(t, err)

	window, err := nav.Window(root.ID, 0, 100)
	require.NoError(t, err)
	require.Len(t, window, 3)
	assert.Equal(t, "[0 … 9]", window[0].Key)
	assert.Equal(t, "[10 … 19]", window[1].Key)
	assert.Equal(t, "[20 … 24]", window[2].Key)
	for _, s := range window {
		assert.Equal(t, store.KindBucket, s.Kind)
	}

	// A bucket expands to exactly the nodes in its range, never a neighbor's.
	members, err := nav.Window(window[1].ID, 0, 100)
	require.NoError(t, err)
	require.Len(t, members, 10)
	assert.Equal(t, "10", members[0].Preview)
	assert.Equal(t, "19", members[9].Preview)

	// Expanding the same bucket again yields the identical sequence.
	again, err := nav.Window(window[1].ID, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, members, again)

	tail, err := nav.Window(window[2].ID, 0, 100)
	require.NoError(t, err)
	require.Len(t, tail, 5)
	assert.Equal(t, "24", tail[4].Preview)

	// Windows inside a bucket page through its range only.
	page, err := nav.Window(window[1].ID, 8, 5)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "18", page[0].Preview)
	assert.Equal(t, "19", page[1].Preview)
}

func TestWindowPagesThroughBuckets(t *testing.T) {
	st := openDoc(t, bigArrayDoc(25), ingest.Options{BucketThreshold: 10})
	nav := NewNavigator(st, 10)

	root, err := st.Root()
	require.NoError(t, err)

	// Bucket listings honor offset/limit like any other window.
	page, err := nav.Window(root.ID, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "[10 … 19]", page[0].Key)

	none, err := nav.Window(root.ID, 3, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestWindowAtThresholdStaysFlat(t *testing.T) {
	st := openDoc(t, bigArrayDoc(10), ingest.Options{BucketThreshold: 10})
	nav := NewNavigator(st, 10)

	root, err := st.Root()
	require.NoError(t, err)

	window, err := nav.Window(root.ID, 0, 100)
	require.NoError(t, err)
	require.Len(t, window, 10)
	for _, s := range window {
		assert.NotEqual(t, store.KindBucket, s.Kind)
	}
}
