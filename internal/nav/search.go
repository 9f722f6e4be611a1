package nav

import (
	"context"
	"sync"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/twigtools/twig/internal/store"
)

// State is the search engine's lifecycle state.
type State int

const (
	Idle State = iota
	Searching
	MatchesFound
	NoMatches
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Searching:
		return "searching"
	case MatchesFound:
		return "matches-found"
	case NoMatches:
		return "no-matches"
	}
	return "unknown"
}

// defaultChunkSize is the number of candidate matches processed between
// yield points during a full-store scan.
const defaultChunkSize = 256

// Engine executes deep key/value/path searches as cancellable tasks. The
// scan over the store is chunked: after each bounded page it yields (the
// channel send is the yield point, and the context is checked between
// pages), so the interactive surface stays responsive during a
// full-document scan.
//
// Starting a new search cancels the in-flight one at its next yield point;
// a cancelled scan delivers nothing further and leaves the engine Idle with
// the previous result set discarded. Matches are always delivered in the
// same order regardless of where cancellation lands — relevance first,
// document order as the tie-break — so partial output is a strict prefix of
// the full result set.
type Engine struct {
	st    *store.Store
	chunk int64

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	gen     uint64
	results []store.Match
	pos     map[int64]int
	matched *roaring64.Bitmap
}

// NewEngine builds a search engine over st. chunk bounds the work between
// yield points; 0 means the default.
func NewEngine(st *store.Store, chunk int64) *Engine {
	if chunk <= 0 {
		chunk = defaultChunkSize
	}
	return &Engine{st: st, chunk: chunk, state: Idle}
}

// Scan is one in-flight search. Matches arrive on C in relevance order; C
// closes when the scan completes, fails, or is cancelled. Err reports the
// outcome after C closes.
type Scan struct {
	C <-chan store.Match

	mu  sync.Mutex
	err error
}

// Err returns the scan's terminal error: nil for a completed scan,
// context.Canceled for a superseded one.
func (s *Scan) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Scan) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Search starts a new scan for query, cancelling any scan still in flight.
func (e *Engine) Search(ctx context.Context, query string) *Scan {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	sctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.gen++
	gen := e.gen
	e.state = Searching
	e.results = nil
	e.pos = nil
	e.matched = nil
	e.mu.Unlock()

	ch := make(chan store.Match, e.chunk)
	scan := &Scan{C: ch}
	go e.run(sctx, gen, query, ch, scan)
	return scan
}

func (e *Engine) run(ctx context.Context, gen uint64, query string, ch chan<- store.Match, scan *Scan) {
	defer close(ch)

	var (
		results []store.Match
		bitmap  = roaring64.New()
		offset  int64
	)
	for {
		// Yield point: a superseded or closed search stops here, before the
		// next page is even fetched.
		if err := ctx.Err(); err != nil {
			e.settle(gen, Idle, nil, nil)
			scan.fail(err)
			return
		}

		page, err := e.st.SearchPage(ctx, query, offset, e.chunk)
		if err != nil {
			e.settle(gen, Idle, nil, nil)
			scan.fail(err)
			return
		}

		for _, m := range page {
			select {
			case ch <- m:
			case <-ctx.Done():
				e.settle(gen, Idle, nil, nil)
				scan.fail(ctx.Err())
				return
			}
			results = append(results, m)
			bitmap.Add(uint64(m.NodeID))
		}

		if int64(len(page)) < e.chunk {
			final := MatchesFound
			if len(results) == 0 {
				final = NoMatches
			}
			e.settle(gen, final, results, bitmap)
			return
		}
		offset += e.chunk
	}
}

// settle commits a scan outcome unless a newer search has taken over.
func (e *Engine) settle(gen uint64, state State, results []store.Match, bitmap *roaring64.Bitmap) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen {
		return
	}
	e.state = state
	e.results = results
	e.matched = bitmap
	e.pos = nil
	if results != nil {
		e.pos = make(map[int64]int, len(results))
		for i, m := range results {
			e.pos[m.NodeID] = i
		}
	}
}

// Cancel aborts any in-flight scan and returns the engine to Idle,
// discarding the previous result set.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.gen++
	e.state = Idle
	e.results = nil
	e.pos = nil
	e.matched = nil
}

// CurrentState returns the engine's lifecycle state.
func (e *Engine) CurrentState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Results returns the completed result set of the last finished scan, in
// delivery order. Nil while Searching or Idle.
func (e *Engine) Results() []store.Match {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.results
}

// NextMatch returns the match after the one for afterID, wrapping around
// the full result set. An afterID outside the set lands on the first match.
func (e *Engine) NextMatch(afterID int64) (store.Match, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.results)
	if n == 0 {
		return store.Match{}, false
	}
	i, ok := e.pos[afterID]
	if !ok {
		return e.results[0], true
	}
	return e.results[(i+1)%n], true
}

// PrevMatch returns the match before the one for beforeID, wrapping around
// the full result set.
func (e *Engine) PrevMatch(beforeID int64) (store.Match, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.results)
	if n == 0 {
		return store.Match{}, false
	}
	i, ok := e.pos[beforeID]
	if !ok {
		return e.results[n-1], true
	}
	return e.results[(i-1+n)%n], true
}

// Matched reports whether a node is in the last completed result set, so
// the UI can mark matching rows inside ordinary child windows.
func (e *Engine) Matched(nodeID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.matched != nil && e.matched.Contains(uint64(nodeID))
}

// NextInDocumentOrder returns the id of the first matched node after
// afterID in document order, wrapping to the earliest match. Used for
// tree-order match cycling in the navigator.
func (e *Engine) NextInDocumentOrder(afterID int64) (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.matched == nil || e.matched.IsEmpty() {
		return 0, false
	}
	idx := e.matched.Rank(uint64(afterID)) // matches at or before afterID
	if idx >= e.matched.GetCardinality() {
		idx = 0
	}
	v, err := e.matched.Select(idx)
	if err != nil {
		return 0, false
	}
	return int64(v), true
}

// PrevInDocumentOrder returns the id of the last matched node before
// beforeID in document order, wrapping to the latest match.
func (e *Engine) PrevInDocumentOrder(beforeID int64) (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.matched == nil || e.matched.IsEmpty() {
		return 0, false
	}
	idx := e.matched.Rank(uint64(beforeID)) // matches at or before beforeID
	if e.matched.Contains(uint64(beforeID)) {
		idx--
	}
	if idx == 0 {
		idx = e.matched.GetCardinality()
	}
	v, err := e.matched.Select(idx - 1)
	if err != nil {
		return 0, false
	}
	return int64(v), true
}
