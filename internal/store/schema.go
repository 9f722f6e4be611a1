package store

import (
	"database/sql"
	"fmt"
)

// The store is built with deferred indexing: CreateSchema makes the bare
// nodes table, the ingestion pipeline bulk-appends rows, and Finalize
// constructs every secondary structure in one pass each. Building the
// indexes incrementally during streaming multiplies per-row cost by the
// index count; building them once afterwards is the dominant lever for the
// load-time budget on 100MB-class inputs.

// CreateSchema creates the bare nodes table. No secondary indexes, no
// search index — those are built by Finalize after the bulk load.
func CreateSchema(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS nodes (
		id          INTEGER PRIMARY KEY,
		parent_id   INTEGER,
		key         TEXT NOT NULL,
		kind        TEXT NOT NULL,
		value       TEXT,
		rank        INTEGER NOT NULL,
		path        TEXT NOT NULL,
		child_count INTEGER NOT NULL DEFAULT 0,
		range_start INTEGER,
		range_end   INTEGER
	);`)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Finalize runs the post-stream passes in order: secondary indexes, the
// child_count aggregate, the search index bulk load, and bucket rows for
// oversized sibling sets.
func Finalize(db *sql.DB, bucketThreshold int64) error {
	if err := CreateIndexes(db); err != nil {
		return err
	}
	if err := ComputeChildCounts(db); err != nil {
		return err
	}
	if err := PopulateSearchIndex(db); err != nil {
		return err
	}
	return MaterializeBuckets(db, bucketThreshold)
}

// CreateIndexes builds the secondary indexes in one pass each. The partial
// unique index over (parent_id, rank) is the sibling-ordering invariant;
// bucket rows live outside it because a bucket shares its parent's rank
// space with the real children it covers. The path index is not unique: a
// document may repeat an object key, giving two siblings the same
// materialized path, and lookups take the first by insertion order.
func CreateIndexes(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE UNIQUE INDEX IF NOT EXISTS idx_nodes_parent_rank
		ON nodes(parent_id, rank) WHERE kind != 'bucket';
	CREATE INDEX IF NOT EXISTS idx_nodes_path
		ON nodes(path) WHERE kind != 'bucket';
	CREATE UNIQUE INDEX IF NOT EXISTS idx_nodes_bucket
		ON nodes(parent_id, range_start, range_end) WHERE kind = 'bucket';
	`)
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// ComputeChildCounts fills child_count for every container in a single
// aggregate pass, instead of incrementing counters during streaming. The
// kind filter in the subquery keeps it on idx_nodes_parent_rank (partial
// over the same predicate); without it every container row degrades to a
// full table scan. It also keeps synthetic bucket rows out of the counts
// should the pass ever rerun after materialization.
func ComputeChildCounts(db *sql.DB) error {
	_, err := db.Exec(`
	UPDATE nodes SET child_count = (
		SELECT COUNT(*) FROM nodes c
		WHERE c.parent_id = nodes.id AND c.kind != 'bucket'
	) WHERE kind IN ('object', 'array');`)
	if err != nil {
		return fmt.Errorf("compute child counts: %w", err)
	}
	return nil
}

// PopulateSearchIndex creates the FTS5 index over key/value/path, bulk
// loads it from the final nodes table, and installs the synchronization
// triggers for any future single-row operations. The trigram tokenizer
// gives case-insensitive substring matching; queries shorter than three
// bytes are served by a LIKE scan instead (see SearchPage).
func PopulateSearchIndex(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE VIRTUAL TABLE IF NOT EXISTS nodes_search USING fts5(
		key, value, path,
		content='nodes', content_rowid='id',
		tokenize='trigram'
	);`)
	if err != nil {
		return fmt.Errorf("create search index: %w", err)
	}

	_, err = db.Exec(`
	INSERT INTO nodes_search(rowid, key, value, path)
	SELECT id, key, value, path FROM nodes WHERE kind != 'bucket';`)
	if err != nil {
		return fmt.Errorf("populate search index: %w", err)
	}

	// Incremental sync from here on. Bucket rows are presentation-only and
	// stay out of the index.
	_, err = db.Exec(`
	CREATE TRIGGER IF NOT EXISTS nodes_search_ai AFTER INSERT ON nodes
	WHEN new.kind != 'bucket' BEGIN
		INSERT INTO nodes_search(rowid, key, value, path)
		VALUES (new.id, new.key, new.value, new.path);
	END;
	CREATE TRIGGER IF NOT EXISTS nodes_search_ad AFTER DELETE ON nodes
	WHEN old.kind != 'bucket' BEGIN
		INSERT INTO nodes_search(nodes_search, rowid, key, value, path)
		VALUES ('delete', old.id, old.key, old.value, old.path);
	END;
	CREATE TRIGGER IF NOT EXISTS nodes_search_au AFTER UPDATE ON nodes
	WHEN old.kind != 'bucket' BEGIN
		INSERT INTO nodes_search(nodes_search, rowid, key, value, path)
		VALUES ('delete', old.id, old.key, old.value, old.path);
		INSERT INTO nodes_search(rowid, key, value, path)
		VALUES (new.id, new.key, new.value, new.path);
	END;`)
	if err != nil {
		return fmt.Errorf("create search triggers: %w", err)
	}
	return nil
}

// Range is a contiguous, inclusive rank range covered by one bucket.
type Range struct {
	Start int64
	End   int64
}

// Len returns the number of ranks in the range.
func (r Range) Len() int64 { return r.End - r.Start + 1 }

// PartitionRanges splits ranks [0, count) into contiguous ranges of at most
// threshold ranks each. The last range absorbs the remainder.
func PartitionRanges(count, threshold int64) []Range {
	var out []Range
	for start := int64(0); start < count; start += threshold {
		end := start + threshold - 1
		if end >= count {
			end = count - 1
		}
		out = append(out, Range{Start: start, End: end})
	}
	return out
}

// BucketLabel formats the key of a bucket node covering r.
func BucketLabel(r Range) string {
	return fmt.Sprintf("[%d … %d]", r.Start, r.End)
}

// MaterializeBuckets inserts one bucket row per range for every container
// whose child_count exceeds the threshold. Bucket identity is deterministic
// from (parent_id, range_start, range_end), enforced by idx_nodes_bucket,
// so repeated materialization attempts are idempotent.
func MaterializeBuckets(db *sql.DB, threshold int64) error {
	type parent struct {
		id    int64
		path  string
		count int64
	}
	rows, err := db.Query(`
		SELECT id, path, child_count FROM nodes
		WHERE kind IN ('object', 'array') AND child_count > ?`, threshold)
	if err != nil {
		return fmt.Errorf("find oversized parents: %w", err)
	}
	var parents []parent
	for rows.Next() {
		var p parent
		if err := rows.Scan(&p.id, &p.path, &p.count); err != nil {
			_ = rows.Close() // ignore error
			return err
		}
		parents = append(parents, p)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close() // ignore error
		return err
	}
	_ = rows.Close() // safe to ignore

	if len(parents) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin bucket tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // no-op after commit

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO nodes
		(parent_id, key, kind, value, rank, path, child_count, range_start, range_end)
		VALUES (?, ?, 'bucket', NULL, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare bucket insert: %w", err)
	}
	defer func() { _ = stmt.Close() }() // safe to ignore

	for _, p := range parents {
		for i, r := range PartitionRanges(p.count, threshold) {
			label := BucketLabel(r)
			_, err := stmt.Exec(p.id, label, int64(i), p.path+label, r.Len(), r.Start, r.End)
			if err != nil {
				return fmt.Errorf("insert bucket %s under %d: %w", label, p.id, err)
			}
		}
	}
	return tx.Commit()
}
