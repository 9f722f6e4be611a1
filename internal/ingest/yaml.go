package ingest

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/twigtools/twig/internal/store"
)

// LoadYAML ingests a YAML stream into a new store at dbPath. A stream with
// more than one document ingests under a virtual array root, one element
// per document; a single-document stream ingests the document as the root.
//
// The decoder uses ordered maps so sibling ranks follow source order, the
// same guarantee the JSON tokenizer gives for free.
func LoadYAML(r io.Reader, dbPath, source string, opts Options) error {
	dec := yaml.NewDecoder(r, yaml.UseOrderedMap())

	var docs []any
	for {
		var doc any
		if err := dec.Decode(&doc); err != nil {
			if err == io.EOF {
				break
			}
			return &store.ParseError{Source: source, Err: err}
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return &store.ParseError{Source: source, Err: fmt.Errorf("empty document")}
	}

	return run(dbPath, source, opts, func(b *Builder) error {
		if len(docs) == 1 {
			emitValue(b, docs[0])
			return nil
		}
		b.ArrayStart()
		for _, doc := range docs {
			emitValue(b, doc)
		}
		b.ArrayEnd()
		return nil
	})
}

// emitValue feeds one decoded value to the Builder as the token sequence
// the streaming pipeline expects.
func emitValue(b *Builder, v any) {
	switch val := v.(type) {
	case yaml.MapSlice:
		b.ObjectStart()
		for _, item := range val {
			b.Key(stringifyKey(item.Key))
			emitValue(b, item.Value)
		}
		b.ObjectEnd()
	case map[string]any:
		// Unordered fallback; sort keys so ranks stay deterministic.
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.ObjectStart()
		for _, k := range keys {
			b.Key(k)
			emitValue(b, val[k])
		}
		b.ObjectEnd()
	case []any:
		b.ArrayStart()
		for _, item := range val {
			emitValue(b, item)
		}
		b.ArrayEnd()
	case nil:
		b.Null()
	case bool:
		b.Bool(val)
	case int:
		b.Int(int64(val))
	case int64:
		b.Int(val)
	case uint64:
		if val > math.MaxInt64 {
			b.Number(fmt.Sprintf("%d", val))
			return
		}
		b.Int(int64(val))
	case float64:
		b.Float(val)
	case string:
		b.String(val)
	case time.Time:
		b.String(val.Format(time.RFC3339))
	default:
		b.String(fmt.Sprint(val))
	}
}

func stringifyKey(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	return fmt.Sprint(k)
}
