package dag

import (
	"fmt"

	"github.com/prestonmccrary/merkle-log-logic/internal/logid"
	"github.com/prestonmccrary/merkle-log-logic/internal/replicaerr"
)

// Store is a single replica's DAG: the forward map of live entries, the
// reverse map of children, the frontier of tips, and the set of
// compacted-but-still-referenced ids. A Store is owned by exactly one
// goroutine and does no internal locking.
type Store struct {
	entries   map[logid.ID]Entry
	children  map[logid.ID][]logid.ID
	frontier  map[logid.ID]struct{}
	compacted map[logid.ID]struct{}
}

// New builds a Store containing only the genesis entry, which is its own
// initial (and, until the first append, only) frontier. Genesis is also
// seeded into the compacted set from the start — it is simultaneously
// live and "compacted" — which is what lets compaction bootstrap at all:
// compactFrontier only ever looks at *children* of already-compacted ids,
// so without this seed no id would ever become eligible for compaction.
func New() *Store {
	g := Genesis()
	return &Store{
		entries:   map[logid.ID]Entry{g.ID: g},
		children:  map[logid.ID][]logid.ID{},
		frontier:  map[logid.ID]struct{}{g.ID: {}},
		compacted: map[logid.ID]struct{}{g.ID: {}},
	}
}

// GenesisID returns the shared genesis id every replica agrees on.
func GenesisID() logid.ID {
	return Genesis().ID
}

// Exists reports whether id is known to this store, live or compacted.
func (s *Store) Exists(id logid.ID) bool {
	if _, ok := s.entries[id]; ok {
		return true
	}
	_, ok := s.compacted[id]
	return ok
}

// Entry returns the live entry for id, if any. Compacted ids have no
// entry object to return (ok is false even though Exists(id) is true).
func (s *Store) Entry(id logid.ID) (Entry, bool) {
	e, ok := s.entries[id]
	return e, ok
}

// IsCompacted reports whether id has been physically removed but is still
// remembered because a live child references it as a parent.
func (s *Store) IsCompacted(id logid.ID) bool {
	_, ok := s.compacted[id]
	return ok
}

// IsStable reports whether id is stable: compacted ids are always stable
// (compaction never runs on an id until it is), live ids report their
// own flag.
func (s *Store) IsStable(id logid.ID) bool {
	if s.IsCompacted(id) {
		return true
	}
	e, ok := s.entries[id]
	return ok && e.Stable
}

// MarkStable flips an entry's Stable flag to true. It is a no-op for
// compacted or unknown ids; the flag only ever moves false -> true and is
// never cleared once set.
func (s *Store) MarkStable(id logid.ID) {
	e, ok := s.entries[id]
	if !ok || e.Stable {
		return
	}
	e.Stable = true
	s.entries[id] = e
}

// Children returns the sorted, deduplicated list of ids that list id as a
// parent. The returned slice must not be mutated by the caller.
func (s *Store) Children(id logid.ID) []logid.ID {
	return s.children[id]
}

// Frontier returns a fresh sorted slice of the current tip set.
func (s *Store) Frontier() []logid.ID {
	out := make([]logid.ID, 0, len(s.frontier))
	for id := range s.frontier {
		out = append(out, id)
	}
	logid.Sort(out)
	return out
}

// FrontierSet returns a fresh copy of the frontier as a set, for callers
// (the swap protocol) that need set operations without aliasing store
// state.
func (s *Store) FrontierSet() map[logid.ID]struct{} {
	out := make(map[logid.ID]struct{}, len(s.frontier))
	for id := range s.frontier {
		out[id] = struct{}{}
	}
	return out
}

// SetFrontier replaces the store's frontier wholesale. Used by the swap
// protocol to install the converged tip set it computes once both sides
// have merged each other's delta.
func (s *Store) SetFrontier(frontier map[logid.ID]struct{}) {
	cp := make(map[logid.ID]struct{}, len(frontier))
	for id := range frontier {
		cp[id] = struct{}{}
	}
	s.frontier = cp
}

// IsRoot reports whether id currently has no live children, i.e. is (or
// would be) a frontier member.
func (s *Store) IsRoot(id logid.ID) bool {
	return len(s.children[id]) == 0
}

// IsFrontier reports whether id is currently a tip. Compaction must never
// evict a tip: a tip is exactly the set of ids a future local Append or
// incoming swap delta will cite as a parent, so removing it without trace
// would break that future reference the moment it appears.
func (s *Store) IsFrontier(id logid.ID) bool {
	_, ok := s.frontier[id]
	return ok
}

// AllIDs returns every id known to the store, live or compacted, with no
// duplicate for genesis (which is seeded into both sets — see New). Useful
// for test assertions and debug tooling.
func (s *Store) AllIDs() []logid.ID {
	out := make([]logid.ID, 0, len(s.entries)+len(s.compacted))
	for id := range s.entries {
		out = append(out, id)
	}
	for id := range s.compacted {
		out = append(out, id)
	}
	return logid.SortedCopy(out)
}

// Insert adds entry to the store, recomputing its hash and checking every
// parent is already known. It is idempotent: re-inserting a known id is a
// no-op that returns nil.
func (s *Store) Insert(entry Entry) error {
	if s.Exists(entry.ID) {
		return nil
	}

	want := logid.Hash(entry.Parents, entry.Payload)
	if want != entry.ID {
		return fmt.Errorf("%w: entry %s hashes to %s", replicaerr.ErrHashMismatch, entry.ID, want)
	}

	for _, p := range entry.Parents {
		if !s.Exists(p) {
			return fmt.Errorf("%w: entry %s references unknown parent %s", replicaerr.ErrMissingParent, entry.ID, p)
		}
	}

	s.entries[entry.ID] = entry

	for _, p := range entry.Parents {
		s.children[p] = logid.InsertSorted(s.children[p], entry.ID)
		delete(s.frontier, p)
	}

	s.frontier[entry.ID] = struct{}{}

	return nil
}

// BFS traverses parent pointers backward starting from fromIDs, including
// an id in the result only when predicate(id) holds, in which case its
// parents are enqueued for consideration too. Traversal does not expand
// past an id that fails the predicate, so a caller can use a "stop at the
// first already-settled ancestor" predicate to keep walks bounded.
func (s *Store) BFS(fromIDs []logid.ID, predicate func(logid.ID) bool) map[logid.ID]struct{} {
	seen := map[logid.ID]struct{}{}
	queue := append([]logid.ID(nil), fromIDs...)

	for len(queue) > 0 {
		id := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		if _, already := seen[id]; already {
			continue
		}
		if !predicate(id) {
			continue
		}
		seen[id] = struct{}{}

		if e, ok := s.entries[id]; ok {
			queue = append(queue, e.Parents...)
		}
	}

	return seen
}

// Compact physically removes id's live entry: it unlinks id from each
// parent's children list (cleaning up a parent that was itself only
// compacted-for-id), then either evicts id entirely (no live descendants
// reference it) or retains its id in the compacted set (some live
// descendant still does). Callers are expected to have already confirmed
// id is not a current frontier tip (see IsFrontier) and is stable.
//
// Returns (evicted, retained); exactly one is true unless id was already
// gone, in which case both are false.
func (s *Store) Compact(id logid.ID) (evicted bool, retained bool) {
	e, ok := s.entries[id]
	if !ok {
		return false, s.IsCompacted(id)
	}

	for _, p := range e.Parents {
		s.children[p] = logid.RemoveSorted(s.children[p], id)
		if len(s.children[p]) == 0 {
			delete(s.children, p)
			delete(s.compacted, p)
		}
	}

	delete(s.entries, id)

	if len(s.children[id]) > 0 {
		s.compacted[id] = struct{}{}
		return false, true
	}

	delete(s.children, id)
	delete(s.compacted, id)
	return true, false
}
