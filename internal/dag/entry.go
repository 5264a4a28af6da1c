// Package dag implements the per-replica content-addressed DAG store:
// forward and reverse maps, the frontier of tips, and the compacted
// boundary.
package dag

import "github.com/prestonmccrary/merkle-log-logic/internal/logid"

// Entry is an immutable log record. Its ID is the content hash of
// (Parents, Payload); Stable is the only mutable field, and it only ever
// flips false -> true.
type Entry struct {
	ID      logid.ID
	Parents []logid.ID
	Payload logid.Payload
	Stable  bool
}

// NewEntry builds an entry from parents and a payload, computing its id.
// Parents are stored in sorted order so two replicas that independently
// observe the same frontier and payload always derive the same id.
func NewEntry(parents []logid.ID, payload logid.Payload) Entry {
	sorted := logid.SortedCopy(parents)
	return Entry{
		ID:      logid.Hash(sorted, payload),
		Parents: sorted,
		Payload: payload,
	}
}

// Genesis constructs the distinguished genesis entry: empty parents, the
// sentinel payload 0, born stable. Every replica that builds it gets the
// same id because NewEntry is a pure function of its arguments.
func Genesis() Entry {
	e := NewEntry(nil, IntPayload(0))
	e.Stable = true
	return e
}
