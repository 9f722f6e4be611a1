// Package nav is the query surface over an ingested node store: bounded
// child windows for the Miller-column presentation, jq-style path
// resolution, and the cancellable deep-search engine. Everything here is
// read-only and safe for concurrent use once ingestion has completed.
package nav

import (
	"github.com/twigtools/twig/internal/store"
)

// Navigator serves bounded windows of children for a parent node. There is
// no separate "expand" operation and no hidden state: expanding a node is
// just calling Window with that node as the parent, and repeated calls with
// the same arguments return the same slice.
type Navigator struct {
	st        *store.Store
	threshold int64
}

// NewNavigator builds a Navigator over st. threshold is the fan-out limit
// above which a parent's children are presented through bucket nodes; it
// must match the threshold the store was finalized with.
func NewNavigator(st *store.Store, threshold int64) *Navigator {
	return &Navigator{st: st, threshold: threshold}
}

// Window returns up to limit child summaries of parentID starting at
// offset, in rank order. For a parent whose fan-out exceeds the threshold
// the apparent children are its bucket nodes; for a bucket parent they are
// the real nodes inside its rank range. Nothing outside the requested
// window is loaded.
func (n *Navigator) Window(parentID, offset, limit int64) ([]store.Summary, error) {
	if limit <= 0 {
		return nil, nil
	}
	parent, err := n.st.GetNode(parentID)
	if err != nil {
		return nil, err
	}

	if parent.Kind == store.KindBucket {
		// A bucket expands to exactly the real nodes in its range, in rank
		// order, never a neighboring range.
		children, err := n.st.ChildrenInRange(
			parent.ParentID, parent.RangeStart, parent.RangeEnd, offset, limit)
		if err != nil {
			return nil, err
		}
		return summarize(children), nil
	}

	if parent.ChildCount > n.threshold {
		buckets, err := n.st.Buckets(parentID, 0, parent.ChildCount-1, offset, limit)
		if err != nil {
			return nil, err
		}
		return summarize(buckets), nil
	}

	children, err := n.st.Children(parentID, offset, limit)
	if err != nil {
		return nil, err
	}
	return summarize(children), nil
}

func summarize(nodes []store.Node) []store.Summary {
	out := make([]store.Summary, len(nodes))
	for i := range nodes {
		out[i] = nodes[i].Summarize()
	}
	return out
}
