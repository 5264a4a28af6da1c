package swap

import (
	"github.com/google/uuid"

	"github.com/prestonmccrary/merkle-log-logic/internal/dag"
	"github.com/prestonmccrary/merkle-log-logic/internal/logid"
)

// Message is the wire payload exchanged in each direction of a swap: a
// delta (id -> entry) plus the sender's advertised roots at the time of
// sending. It is the shape of both the initiator's and the responder's
// message.
type Message struct {
	Delta map[logid.ID]dag.Entry
	Roots map[logid.ID]struct{}
}

// AckHandle is the deferred commit token returned from Respond: a plain
// captured value, not a closure over mutable replica state, so the
// caller can invoke it once the initiator's implicit ack for this swap
// has actually arrived.
type AckHandle struct {
	Peer     uuid.UUID
	Frontier map[logid.ID]struct{}
}

func entriesFor(store *dag.Store, ids map[logid.ID]struct{}) map[logid.ID]dag.Entry {
	out := make(map[logid.ID]dag.Entry, len(ids))
	for id := range ids {
		if e, ok := store.Entry(id); ok {
			out[id] = e
		}
	}
	return out
}
