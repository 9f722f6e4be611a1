package store

import "unicode/utf8"

// Kind classifies a node. It is a closed set: every consumer switches over
// all nine values and treats anything else as corruption.
type Kind string

const (
	KindObject  Kind = "object"
	KindArray   Kind = "array"
	KindString  Kind = "string"
	KindInteger Kind = "integer"
	KindFloat   Kind = "float"
	KindBoolean Kind = "boolean"
	KindNull    Kind = "null"
	// KindBucket is synthetic: a contiguous rank range standing in for part
	// of an oversized sibling set. Never produced by an ingestion adapter.
	KindBucket Kind = "bucket"
)

// IsContainer reports whether nodes of this kind own children.
func (k Kind) IsContainer() bool {
	return k == KindObject || k == KindArray || k == KindBucket
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindObject, KindArray, KindString, KindInteger, KindFloat,
		KindBoolean, KindNull, KindBucket:
		return true
	}
	return false
}

// UnsupportedNumber is the sentinel value substituted for numeric literals
// the engine cannot represent (NaN, infinities, out-of-range integers).
// Sanitization is a recovered condition, not an ingestion error.
const UnsupportedNumber = "unsupported number"

// Node is one addressable element of the ingested tree.
//
// ID is the SQLite rowid, assigned at insertion and never reused within a
// store. Rank is the zero-based position among siblings in source order.
// Path is the materialized jq-style path, computed once at insertion from
// the parent's path and the key, and immutable thereafter.
type Node struct {
	ID         int64
	ParentID   int64 // 0 only for the root
	Key        string
	Kind       Kind
	Value      string // serialized scalar payload; empty for containers
	Rank       int64
	Path       string
	ChildCount int64

	// Bucket nodes only: the covered rank range, inclusive.
	RangeStart int64
	RangeEnd   int64
}

// IsRoot reports whether n is the document root.
func (n *Node) IsRoot() bool { return n.ParentID == 0 }

// Summary is the minimal rendering payload the Navigator hands to the UI:
// enough to draw one row of a column, nothing more.
type Summary struct {
	ID         int64
	Key        string
	Kind       Kind
	Preview    string
	ChildCount int64
}

// previewLimit bounds the scalar preview carried in a Summary.
const previewLimit = 20

// Preview truncates a scalar value for display, keeping rune boundaries.
func Preview(value string) string {
	if utf8.RuneCountInString(value) <= previewLimit {
		return value
	}
	runes := []rune(value)
	return string(runes[:previewLimit-3]) + "..."
}

// Summarize builds the Navigator payload for a node.
func (n *Node) Summarize() Summary {
	s := Summary{
		ID:         n.ID,
		Key:        n.Key,
		Kind:       n.Kind,
		ChildCount: n.ChildCount,
	}
	if !n.Kind.IsContainer() {
		s.Preview = Preview(n.Value)
	}
	return s
}
