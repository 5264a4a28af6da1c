// Package peerfrontier tracks, per known peer, the frontier this replica
// believes that peer last acknowledged.
package peerfrontier

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/prestonmccrary/merkle-log-logic/internal/logid"
	"github.com/prestonmccrary/merkle-log-logic/internal/replicaerr"
)

// Table is the per-peer believed-frontier map. It is not safe for
// concurrent use; a replica owns and drives it from a single goroutine.
type Table struct {
	frontiers map[uuid.UUID]map[logid.ID]struct{}
}

// New initializes a table with every peer's believed frontier set to
// {genesis}, filtering the replica's own id out of the peer set: a
// replica never tracks a believed frontier for itself.
func New(self uuid.UUID, peers []uuid.UUID, genesis logid.ID) *Table {
	t := &Table{frontiers: make(map[uuid.UUID]map[logid.ID]struct{}, len(peers))}
	for _, p := range peers {
		if p == self {
			continue
		}
		t.frontiers[p] = map[logid.ID]struct{}{genesis: {}}
	}
	return t
}

// Peers returns the configured peer uuids.
func (t *Table) Peers() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(t.frontiers))
	for p := range t.frontiers {
		out = append(out, p)
	}
	return out
}

// Known reports whether peer was configured at construction.
func (t *Table) Known(peer uuid.UUID) bool {
	_, ok := t.frontiers[peer]
	return ok
}

// Get returns the believed frontier for peer. Returns ErrUnknownPeer if
// peer was never configured.
func (t *Table) Get(peer uuid.UUID) (map[logid.ID]struct{}, error) {
	f, ok := t.frontiers[peer]
	if !ok {
		return nil, fmt.Errorf("%w: %s", replicaerr.ErrUnknownPeer, peer)
	}
	out := make(map[logid.ID]struct{}, len(f))
	for id := range f {
		out[id] = struct{}{}
	}
	return out, nil
}

// Set overwrites the believed frontier for peer. Used only at a swap's
// commit points: finalize on the initiator, ack on the responder.
func (t *Table) Set(peer uuid.UUID, frontier map[logid.ID]struct{}) error {
	if !t.Known(peer) {
		return fmt.Errorf("%w: %s", replicaerr.ErrUnknownPeer, peer)
	}
	cp := make(map[logid.ID]struct{}, len(frontier))
	for id := range frontier {
		cp[id] = struct{}{}
	}
	t.frontiers[peer] = cp
	return nil
}

// All returns a fresh copy of every peer's believed frontier, the shape
// internal/stability needs to intersect across peers.
func (t *Table) All() map[uuid.UUID]map[logid.ID]struct{} {
	out := make(map[uuid.UUID]map[logid.ID]struct{}, len(t.frontiers))
	for p, f := range t.frontiers {
		cp := make(map[logid.ID]struct{}, len(f))
		for id := range f {
			cp[id] = struct{}{}
		}
		out[p] = cp
	}
	return out
}
