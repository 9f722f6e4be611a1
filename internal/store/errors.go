package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for id and path lookups that miss.
var ErrNotFound = errors.New("node not found")

// ConstraintViolation reports an internal invariant breach in the node
// store, e.g. two siblings claiming the same rank. It indicates a defect in
// the ingestion pipeline and is surfaced rather than silently tolerated.
type ConstraintViolation struct {
	ParentID int64
	Rank     int64
	Err      error
}

func (e *ConstraintViolation) Error() string {
	return fmt.Sprintf("constraint violation: duplicate rank %d under parent %d: %v",
		e.Rank, e.ParentID, e.Err)
}

func (e *ConstraintViolation) Unwrap() error { return e.Err }

// ParseError reports a malformed source token stream. It is fatal to
// ingestion: the partially built store is discarded, nothing is exposed.
type ParseError struct {
	Source string // source description, typically the input file name
	Err    error  // underlying tokenizer error, carries line/offset
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// PathError reports a user-supplied path expression that does not resolve.
// Recoverable: the caller reports it and stays at the prior location.
// ResolvedPrefix is the longest prefix of the expression that did resolve,
// for user feedback.
type PathError struct {
	Expr           string
	Reason         string
	ResolvedPrefix string
}

func (e *PathError) Error() string {
	if e.ResolvedPrefix != "" {
		return fmt.Sprintf("path %q: %s (resolved up to %q)", e.Expr, e.Reason, e.ResolvedPrefix)
	}
	return fmt.Sprintf("path %q: %s", e.Expr, e.Reason)
}
