package nav

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/twigtools/twig/internal/store"
)

// Resolver validates a jq-style path expression against the store and
// resolves it to a target node plus the chain of ancestors the UI must
// expand to show it. The grammar matches the materialized path format the
// pipeline produces: a leading dot, then any sequence of `.key`, `["key"]`
// and `[index]` segments. `[start:end]` slices are recognized but not
// addressable.
type Resolver struct {
	st        *store.Store
	threshold int64
}

// NewResolver builds a Resolver over st with the bucketing threshold the
// store was finalized with.
func NewResolver(st *store.Store, threshold int64) *Resolver {
	return &Resolver{st: st, threshold: threshold}
}

// Resolution is a successful path lookup. Expand lists the ancestor ids
// from the root down to the target's parent, including any bucket nodes the
// target sits inside, so the UI can render the full chain.
type Resolution struct {
	Target *store.Node
	Expand []int64
}

type segment struct {
	key     string
	index   int64
	isIndex bool
}

// Resolve walks expr from the root, one segment at a time. Failures return
// a *store.PathError carrying the longest successfully resolved prefix.
func (r *Resolver) Resolve(expr string) (*Resolution, error) {
	segs, perr := parsePath(expr)
	if perr != nil {
		return nil, perr
	}

	cur, err := r.st.Root()
	if err != nil {
		return nil, err
	}

	var expand []int64
	for _, seg := range segs {
		if !cur.Kind.IsContainer() {
			return nil, &store.PathError{Expr: expr, Reason: "segment not found", ResolvedPrefix: cur.Path}
		}

		child, perr := r.step(cur, seg, expr)
		if perr != nil {
			return nil, perr
		}

		expand = append(expand, cur.ID)
		// Descend transparently through the covering bucket so the UI can
		// expand the whole chain, buckets included.
		if cur.ChildCount > r.threshold {
			if bkt, err := r.st.BucketFor(cur.ID, child.Rank); err == nil {
				expand = append(expand, bkt.ID)
			}
		}
		cur = child
	}

	return &Resolution{Target: cur, Expand: expand}, nil
}

func (r *Resolver) step(cur *store.Node, seg segment, expr string) (*store.Node, *store.PathError) {
	if seg.isIndex {
		if cur.Kind != store.KindArray {
			return nil, &store.PathError{Expr: expr, Reason: "segment not found", ResolvedPrefix: cur.Path}
		}
		if seg.index < 0 || seg.index >= cur.ChildCount {
			return nil, &store.PathError{Expr: expr, Reason: "index out of range", ResolvedPrefix: cur.Path}
		}
		child, err := r.st.ChildByRank(cur.ID, seg.index)
		if err != nil {
			return nil, &store.PathError{Expr: expr, Reason: "segment not found", ResolvedPrefix: cur.Path}
		}
		return child, nil
	}

	if cur.Kind != store.KindObject {
		return nil, &store.PathError{Expr: expr, Reason: "segment not found", ResolvedPrefix: cur.Path}
	}
	child, err := r.st.ChildByKey(cur.ID, seg.key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &store.PathError{Expr: expr, Reason: "segment not found", ResolvedPrefix: cur.Path}
		}
		return nil, &store.PathError{Expr: expr, Reason: err.Error(), ResolvedPrefix: cur.Path}
	}
	return child, nil
}

// parsePath lexes expr into segments. Syntax errors report "malformed
// syntax" with the expression; no store access happens here.
func parsePath(expr string) ([]segment, *store.PathError) {
	malformed := func(detail string) *store.PathError {
		return &store.PathError{Expr: expr, Reason: "malformed syntax: " + detail}
	}

	if expr == "" || expr[0] != '.' {
		return nil, malformed("path must start with '.'")
	}
	if expr == "." {
		return nil, nil
	}

	var segs []segment
	i := 0
	for i < len(expr) {
		switch expr[i] {
		case '.':
			i++
			if i >= len(expr) {
				return nil, malformed("trailing '.'")
			}
			if expr[i] == '[' {
				continue
			}
			start := i
			for i < len(expr) && isIdentByte(expr[i], i > start) {
				i++
			}
			if i == start {
				return nil, malformed(fmt.Sprintf("expected key at offset %d", i))
			}
			segs = append(segs, segment{key: expr[start:i]})
		case '[':
			i++
			if i < len(expr) && expr[i] == '"' {
				key, next, ok := parseQuoted(expr, i)
				if !ok {
					return nil, malformed("unterminated quoted key")
				}
				i = next
				if i >= len(expr) || expr[i] != ']' {
					return nil, malformed("expected ']' after quoted key")
				}
				i++
				segs = append(segs, segment{key: key})
				continue
			}
			end := strings.IndexByte(expr[i:], ']')
			if end < 0 {
				return nil, malformed("unterminated '['")
			}
			body := expr[i : i+end]
			i += end + 1
			if strings.Contains(body, ":") {
				return nil, malformed("slice segments are not addressable")
			}
			idx, err := strconv.ParseInt(body, 10, 64)
			if err != nil {
				return nil, malformed(fmt.Sprintf("invalid index %q", body))
			}
			segs = append(segs, segment{index: idx, isIndex: true})
		default:
			return nil, malformed(fmt.Sprintf("unexpected %q at offset %d", expr[i], i))
		}
	}
	return segs, nil
}

// parseQuoted reads a double-quoted key starting at the opening quote.
// Returns the unescaped key and the position after the closing quote.
func parseQuoted(expr string, i int) (string, int, bool) {
	i++ // opening quote
	var sb strings.Builder
	for i < len(expr) {
		switch expr[i] {
		case '\\':
			if i+1 >= len(expr) {
				return "", 0, false
			}
			sb.WriteByte(expr[i+1])
			i += 2
		case '"':
			return sb.String(), i + 1, true
		default:
			sb.WriteByte(expr[i])
			i++
		}
	}
	return "", 0, false
}

func isIdentByte(b byte, notFirst bool) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b == '_':
		return true
	case b >= '0' && b <= '9':
		return notFirst
	}
	return false
}
