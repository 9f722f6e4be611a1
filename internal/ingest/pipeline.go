package ingest

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/twigtools/twig/internal/store"
	_ "modernc.org/sqlite"
)

// Options control the ingestion pipeline tunables. The defaults are the
// starting points, not derived constants; tune them against real inputs.
type Options struct {
	// BatchSize is the number of rows per insert transaction.
	BatchSize int
	// BucketThreshold is the fan-out limit above which sibling sets are
	// partitioned into bucket nodes at finalization.
	BucketThreshold int64
}

// DefaultOptions returns the stock tunables.
func DefaultOptions() Options {
	return Options{BatchSize: 10000, BucketThreshold: 1000}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.BucketThreshold <= 0 {
		o.BucketThreshold = d.BucketThreshold
	}
	return o
}

// run drives one full ingestion: create the bare store, let feed stream
// tokens into a Builder, then finalize (indexes, child counts, search
// index, buckets). Ingestion is all-or-nothing: any failure removes the
// partially built database so no partial document is ever exposed.
func run(dbPath, source string, opts Options, feed func(*Builder) error) error {
	opts = opts.withDefaults()

	w, err := newWriter(dbPath, opts.BatchSize)
	if err != nil {
		return err
	}

	discard := func(cause error) error {
		_ = w.abort()         // rollback + close, best effort
		_ = os.Remove(dbPath) // nothing partial is ever exposed
		var pe *store.ParseError
		if errors.As(cause, &pe) && pe.Source == "" {
			pe.Source = source
		}
		return cause
	}

	b := newBuilder(w)
	if err := feed(b); err != nil {
		return discard(err)
	}
	if b.err != nil {
		return discard(b.err)
	}
	if len(b.stack) != 0 {
		return discard(&store.ParseError{Source: source,
			Err: fmt.Errorf("unbalanced containers: %d still open", len(b.stack))})
	}
	if !b.rootSeen {
		return discard(&store.ParseError{Source: source,
			Err: fmt.Errorf("empty document")})
	}

	if err := w.finish(); err != nil {
		return discard(err)
	}
	if err := store.Finalize(w.db, opts.BucketThreshold); err != nil {
		return discard(fmt.Errorf("finalize store: %w", err))
	}
	return w.close()
}

// ---------------------------------------------------------------------------
// Bulk writer
// ---------------------------------------------------------------------------

// writer appends node rows in bulk batches: one prepared statement inside an
// explicit transaction, committed and reopened every batchSize rows. Durability
// pragmas are relaxed during the load; the store is a rebuildable cache, so a
// crash mid-ingest costs nothing but a reload.
type writer struct {
	db        *sql.DB
	tx        *sql.Tx
	stmt      *sql.Stmt
	batchSize int
	count     int
}

func newWriter(dbPath string, batchSize int) (*writer, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", dbPath, err)
	}
	if _, err := db.Exec("PRAGMA synchronous = OFF"); err != nil {
		_ = db.Close() // ignore error
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode = MEMORY"); err != nil {
		_ = db.Close() // ignore error
		return nil, err
	}
	if err := store.CreateSchema(db); err != nil {
		_ = db.Close() // ignore error
		return nil, err
	}

	w := &writer{db: db, batchSize: batchSize}
	if err := w.beginTx(); err != nil {
		_ = db.Close() // ignore error
		return nil, err
	}
	return w, nil
}

func (w *writer) beginTx() error {
	var err error
	w.tx, err = w.db.Begin()
	if err != nil {
		return err
	}
	w.stmt, err = w.tx.Prepare(`
		INSERT INTO nodes (parent_id, key, kind, value, rank, path)
		VALUES (?, ?, ?, ?, ?, ?)`)
	return err
}

func (w *writer) commitTx() error {
	if w.stmt != nil {
		_ = w.stmt.Close() // safe to ignore
	}
	return w.tx.Commit()
}

// insert appends one row and returns its assigned id. parentID 0 means the
// root (stored as NULL).
func (w *writer) insert(parentID int64, key string, kind store.Kind, value *string, rank int64, path string) (int64, error) {
	var parent any
	if parentID != 0 {
		parent = parentID
	}
	res, err := w.stmt.Exec(parent, key, string(kind), value, rank, path)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return 0, &store.ConstraintViolation{ParentID: parentID, Rank: rank, Err: err}
		}
		return 0, fmt.Errorf("insert node %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("node id for %s: %w", path, err)
	}

	w.count++
	if w.count >= w.batchSize {
		if err := w.commitTx(); err != nil {
			return 0, fmt.Errorf("commit batch: %w", err)
		}
		if err := w.beginTx(); err != nil {
			return 0, fmt.Errorf("begin batch: %w", err)
		}
		w.count = 0
	}
	return id, nil
}

// finish commits the trailing partial batch.
func (w *writer) finish() error {
	if err := w.commitTx(); err != nil {
		return fmt.Errorf("commit final batch: %w", err)
	}
	return nil
}

func (w *writer) close() error { return w.db.Close() }

func (w *writer) abort() error {
	if w.tx != nil {
		_ = w.tx.Rollback() // ignore error
	}
	return w.db.Close()
}

// ---------------------------------------------------------------------------
// Builder: token stream -> rows
// ---------------------------------------------------------------------------

// frame is one open container on the nesting stack.
type frame struct {
	id       int64
	kind     store.Kind
	nextRank int64
	path     string
}

// Builder converts a streaming token sequence into node rows. It implements
// the oj.TokenHandler shape, so the JSON tokenizer drives it directly and
// the YAML adapter (or a test) can call the same methods by hand.
//
// The stack of frames mirrors the parser's nesting. Each scalar or
// container-start allocates the next id, takes its rank from the top
// frame's counter, and derives its path from the parent frame's stored path
// plus the current key — a pure function, computed once, stored immutably.
//
// Handler methods cannot return errors, so the first failure is parked in
// err and every later callback becomes a no-op; run checks err after the
// stream is consumed.
type Builder struct {
	w        *writer
	stack    []frame
	key      string
	hasKey   bool
	rootSeen bool
	err      error
}

func newBuilder(w *writer) *Builder {
	return &Builder{w: w}
}

// plainKeyRe matches object keys that materialize as bare .key segments.
// Anything else is quoted bracket form so paths stay parseable for any key.
var plainKeyRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// childPath derives the materialized path of the next child.
func childPath(parent *frame, key string, rank int64) string {
	if parent.kind == store.KindArray {
		return fmt.Sprintf("%s[%d]", parent.path, rank)
	}
	if plainKeyRe.MatchString(key) {
		if parent.path == "." {
			return "." + key
		}
		return parent.path + "." + key
	}
	return parent.path + quoteSegment(key)
}

// quoteSegment renders a non-identifier key as ["escaped key"].
func quoteSegment(key string) string {
	escaped := strings.ReplaceAll(key, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `["` + escaped + `"]`
}

// emit writes one node. For containers, value is nil and the new frame is
// pushed by the caller.
func (b *Builder) emit(kind store.Kind, value *string) (int64, string) {
	if b.err != nil {
		return 0, ""
	}

	// Root: first value in the stream.
	if len(b.stack) == 0 {
		if b.rootSeen {
			b.err = &store.ParseError{Err: fmt.Errorf("multiple root values")}
			return 0, ""
		}
		b.rootSeen = true
		id, err := b.w.insert(0, "root", kind, value, 0, ".")
		if err != nil {
			b.err = err
			return 0, ""
		}
		return id, "."
	}

	top := &b.stack[len(b.stack)-1]
	rank := top.nextRank
	top.nextRank++

	var key string
	switch top.kind {
	case store.KindArray:
		key = strconv.FormatInt(rank, 10)
	default:
		if !b.hasKey {
			b.err = &store.ParseError{Err: fmt.Errorf("object value without key at %s", top.path)}
			return 0, ""
		}
		key = b.key
	}
	b.hasKey = false

	path := childPath(top, key, rank)
	id, err := b.w.insert(top.id, key, kind, value, rank, path)
	if err != nil {
		b.err = err
		return 0, ""
	}
	return id, path
}

func (b *Builder) scalar(kind store.Kind, value string) {
	b.emit(kind, &value)
}

// Key receives the next object key.
func (b *Builder) Key(k string) {
	b.key = k
	b.hasKey = true
}

// ObjectStart opens a new object container.
func (b *Builder) ObjectStart() {
	id, path := b.emit(store.KindObject, nil)
	if b.err != nil {
		return
	}
	b.stack = append(b.stack, frame{id: id, kind: store.KindObject, path: path})
}

// ObjectEnd closes the current object.
func (b *Builder) ObjectEnd() { b.pop(store.KindObject) }

// ArrayStart opens a new array container.
func (b *Builder) ArrayStart() {
	id, path := b.emit(store.KindArray, nil)
	if b.err != nil {
		return
	}
	b.stack = append(b.stack, frame{id: id, kind: store.KindArray, path: path})
}

// ArrayEnd closes the current array.
func (b *Builder) ArrayEnd() { b.pop(store.KindArray) }

func (b *Builder) pop(kind store.Kind) {
	if b.err != nil {
		return
	}
	if len(b.stack) == 0 || b.stack[len(b.stack)-1].kind != kind {
		b.err = &store.ParseError{Err: fmt.Errorf("unbalanced %s end", kind)}
		return
	}
	b.stack = b.stack[:len(b.stack)-1]
}

// Null records a JSON null.
func (b *Builder) Null() { b.scalar(store.KindNull, "null") }

// Bool records a boolean scalar.
func (b *Builder) Bool(v bool) { b.scalar(store.KindBoolean, strconv.FormatBool(v)) }

// Int records an integer scalar.
func (b *Builder) Int(v int64) { b.scalar(store.KindInteger, strconv.FormatInt(v, 10)) }

// Float records a float scalar. Non-finite values are sanitized to the
// unsupported-number sentinel: a recovered condition, never an abort.
func (b *Builder) Float(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		b.scalar(store.KindFloat, store.UnsupportedNumber)
		return
	}
	b.scalar(store.KindFloat, strconv.FormatFloat(v, 'g', -1, 64))
}

// Number receives numeric literals that fit neither int64 nor float64.
// They are sanitized to the unsupported-number sentinel rather than
// aborting the load.
func (b *Builder) Number(num string) {
	kind := store.KindInteger
	if strings.ContainsAny(num, ".eE") {
		kind = store.KindFloat
	}
	b.scalar(kind, store.UnsupportedNumber)
}

// String records a string scalar.
func (b *Builder) String(v string) { b.scalar(store.KindString, v) }
