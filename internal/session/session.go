// Package session owns the lifecycle of one loaded document: locating or
// rebuilding its cached store, wiring the query components over it, and
// tearing everything down when the document is closed. The UI talks to the
// session's Navigator, Resolver and Search — never to the store directly.
package session

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/twigtools/twig/internal/config"
	"github.com/twigtools/twig/internal/ingest"
	"github.com/twigtools/twig/internal/nav"
	"github.com/twigtools/twig/internal/store"
)

// Options control how a session opens its document.
type Options struct {
	// Rebuild forces re-ingestion even when a usable cached store exists.
	Rebuild bool
	// Progress, when set, receives (bytesRead, totalBytes) during ingestion.
	Progress func(read, total int64)
}

// Session is one loaded document and its read-only query surface.
type Session struct {
	Source   string
	Store    *store.Store
	Nav      *nav.Navigator
	Resolver *nav.Resolver
	Search   *nav.Engine

	// Ingested reports whether this open actually ran the pipeline, as
	// opposed to reusing a cached store.
	Ingested bool
}

// Open loads sourcePath into a session. An existing cached store for the
// same absolute path is reused unless opts.Rebuild is set or the cache
// fails validation; otherwise the file is ingested from scratch. Ingestion
// runs to completion before any query component is constructed, so no
// reader ever observes a partial tree.
func Open(sourcePath string, cfg config.Config, opts Options) (*Session, error) {
	if _, err := os.Stat(sourcePath); err != nil {
		return nil, fmt.Errorf("source file: %w", err)
	}

	dbPath, err := store.DBPathFor(sourcePath)
	if err != nil {
		return nil, err
	}

	ingested := false
	if opts.Rebuild || !usable(dbPath) {
		removeStore(dbPath)
		if err := ingestFile(sourcePath, dbPath, cfg, opts); err != nil {
			return nil, err
		}
		ingested = true
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}

	return &Session{
		Source:   sourcePath,
		Store:    st,
		Nav:      nav.NewNavigator(st, cfg.BucketThreshold),
		Resolver: nav.NewResolver(st, cfg.BucketThreshold),
		Search:   nav.NewEngine(st, cfg.SearchChunkSize),
		Ingested: ingested,
	}, nil
}

// Close cancels any in-flight search and releases the store. The session's
// state is discarded entirely; a new Open rebuilds or revalidates from the
// cache.
func (s *Session) Close() error {
	s.Search.Cancel()
	return s.Store.Close()
}

func ingestFile(sourcePath, dbPath string, cfg config.Config, opts Options) error {
	f, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = f.Close() }() // safe to ignore

	reader := io.Reader(f)
	if opts.Progress != nil {
		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("stat source: %w", err)
		}
		reader = ingest.NewProgressReader(f, info.Size(), opts.Progress)
	}

	iopts := ingest.Options{
		BatchSize:       cfg.IngestBatchSize,
		BucketThreshold: cfg.BucketThreshold,
	}
	name := filepath.Base(sourcePath)
	switch strings.ToLower(filepath.Ext(sourcePath)) {
	case ".yaml", ".yml":
		return ingest.LoadYAML(reader, dbPath, name, iopts)
	default:
		return ingest.LoadJSON(reader, dbPath, name, iopts)
	}
}

// usable reports whether a cached store exists and passed finalization:
// both tables present and at least one node. Anything less is discarded
// and rebuilt.
func usable(dbPath string) bool {
	if _, err := os.Stat(dbPath); err != nil {
		return false
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return false
	}
	defer func() { _ = st.Close() }() // safe to ignore

	var tables int64
	err = st.DB().QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE name IN ('nodes', 'nodes_search')`).Scan(&tables)
	if err != nil || tables < 2 {
		return false
	}
	count, err := st.NodeCount()
	return err == nil && count > 0
}

func removeStore(dbPath string) {
	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		_ = os.Remove(p) // best-effort cleanup
	}
}
