package ingest

import (
	"io"

	"github.com/ohler55/ojg/oj"
	"github.com/twigtools/twig/internal/store"
)

// LoadJSON streams JSON from r into a new store at dbPath. The tokenizer
// never materializes the document; each token flows straight into the
// pipeline's frame stack and write buffer.
//
// A malformed stream surfaces as *store.ParseError carrying the
// tokenizer's position, and the partially built store is discarded.
func LoadJSON(r io.Reader, dbPath, source string, opts Options) error {
	return run(dbPath, source, opts, func(b *Builder) error {
		if err := oj.TokenizeLoad(r, b); err != nil {
			return &store.ParseError{Source: source, Err: err}
		}
		return nil
	})
}
