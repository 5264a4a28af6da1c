// Package swap implements the three-phase anti-entropy exchange between
// two replicas: Prepare (phase 1, initiator), Respond (phase 2,
// responder), and Finalize (phase 3, initiator), plus the new-frontier
// computation shared by the responder and the initiator once each side
// has merged the other's delta.
//
// Each phase is a single function call: Prepare only reads the store,
// while Respond and Finalize insert the verified delta and install the new
// frontier. Errors are wrapped per stage, with a debug trace of how many
// entries moved through each stage.
package swap

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/prestonmccrary/merkle-log-logic/internal/dag"
	"github.com/prestonmccrary/merkle-log-logic/internal/debug"
	"github.com/prestonmccrary/merkle-log-logic/internal/logid"
	"github.com/prestonmccrary/merkle-log-logic/internal/replicaerr"
)

var tracer = otel.Tracer("github.com/prestonmccrary/merkle-log-logic/internal/swap")

// Prepare builds phase 1's message: everything reachable from the local
// frontier that the peer has never acknowledged. It does not mutate store
// or the peer-frontier table. If maxDeltaEntries is positive and the
// computed delta would exceed it, Prepare refuses to build the message at
// all rather than silently truncating it.
func Prepare(ctx context.Context, store *dag.Store, peerFrontier map[logid.ID]struct{}, maxDeltaEntries int) (Message, error) {
	_, span := tracer.Start(ctx, "swap.Prepare")
	defer span.End()

	frontier := store.Frontier()
	deltaIDs := store.BFS(frontier, func(id logid.ID) bool {
		_, acked := peerFrontier[id]
		return !acked
	})

	if err := checkDeltaSize(len(deltaIDs), maxDeltaEntries); err != nil {
		span.RecordError(err)
		return Message{}, err
	}

	roots := store.FrontierSet()
	msg := Message{Delta: entriesFor(store, deltaIDs), Roots: roots}

	span.SetAttributes(
		attribute.Int("delta.size", len(msg.Delta)),
		attribute.Int("roots.size", len(msg.Roots)),
	)
	debug.Logf("swap.Prepare: delta=%d roots=%d", len(msg.Delta), len(msg.Roots))
	return msg, nil
}

// Respond handles phase 2: verifies and incorporates the initiator's
// delta, computes this replica's new frontier, and builds the return
// message plus a deferred AckHandle. The peer-frontier table for the
// initiator is NOT updated here — only once the caller invokes the
// returned handle, which happens after the initiator's implicit ack
// arrives. maxDeltaEntries bounds both the incoming delta (rejected
// before anything is inserted) and the outgoing one Respond builds.
func Respond(ctx context.Context, store *dag.Store, peer uuid.UUID, msg Message, fBA map[logid.ID]struct{}, maxDeltaEntries int) (Message, *AckHandle, error) {
	_, span := tracer.Start(ctx, "swap.Respond")
	defer span.End()
	span.SetAttributes(attribute.String("peer", peer.String()))

	if err := verifyDelta(store, msg, maxDeltaEntries); err != nil {
		span.RecordError(err)
		return Message{}, nil, err
	}

	existedBefore := snapshotExists(store, msg.Roots)
	oldFrontier := store.FrontierSet()

	// Computed from pre-merge state: Respond's own delta only ever walks
	// this replica's existing ancestry, so its size is known before the
	// incoming delta is inserted at all.
	deltaOutIDs := store.BFS(frontierKeys(oldFrontier), func(id logid.ID) bool {
		if _, acked := fBA[id]; acked {
			return false
		}
		if _, sent := msg.Roots[id]; sent {
			return false
		}
		return true
	})
	if err := checkDeltaSize(len(deltaOutIDs), maxDeltaEntries); err != nil {
		span.RecordError(err)
		return Message{}, nil, err
	}

	if err := insertTopological(store, msg.Delta); err != nil {
		span.RecordError(err)
		return Message{}, nil, err
	}

	newFrontier := computeNewFrontier(store, oldFrontier, msg.Roots, existedBefore)
	store.SetFrontier(newFrontier)

	out := Message{Delta: entriesFor(store, deltaOutIDs), Roots: newFrontier}
	handle := &AckHandle{Peer: peer, Frontier: newFrontier}

	span.SetAttributes(
		attribute.Int("delta_in.size", len(msg.Delta)),
		attribute.Int("delta_out.size", len(out.Delta)),
	)
	debug.Logf("swap.Respond(%s): in=%d out=%d new_frontier=%d", peer, len(msg.Delta), len(out.Delta), len(newFrontier))

	return out, handle, nil
}

// Finalize handles phase 3: verifies and incorporates the responder's
// delta and computes the initiator's new frontier. The caller
// (internal/replica) is responsible for recording the responder's
// acknowledged frontier and for running stability afterward.
func Finalize(ctx context.Context, store *dag.Store, peer uuid.UUID, msg Message, maxDeltaEntries int) (map[logid.ID]struct{}, error) {
	_, span := tracer.Start(ctx, "swap.Finalize")
	defer span.End()
	span.SetAttributes(attribute.String("peer", peer.String()))

	if err := verifyDelta(store, msg, maxDeltaEntries); err != nil {
		span.RecordError(err)
		return nil, err
	}

	existedBefore := snapshotExists(store, msg.Roots)
	oldFrontier := store.FrontierSet()

	if err := insertTopological(store, msg.Delta); err != nil {
		span.RecordError(err)
		return nil, err
	}

	newFrontier := computeNewFrontier(store, oldFrontier, msg.Roots, existedBefore)
	store.SetFrontier(newFrontier)

	span.SetAttributes(attribute.Int("new_frontier.size", len(newFrontier)))
	debug.Logf("swap.Finalize(%s): delta=%d new_frontier=%d", peer, len(msg.Delta), len(newFrontier))

	return newFrontier, nil
}

// verifyDelta recomputes every delta entry's hash, checks that every
// parent it references is either in the delta itself or already known
// locally, and enforces maxDeltaEntries against the incoming delta's
// size. It never mutates store.
func verifyDelta(store *dag.Store, msg Message, maxDeltaEntries int) error {
	if err := checkDeltaSize(len(msg.Delta), maxDeltaEntries); err != nil {
		return err
	}
	for id, entry := range msg.Delta {
		if entry.ID != id {
			return fmt.Errorf("%w: entry keyed %s carries id %s", replicaerr.ErrBadDelta, id, entry.ID)
		}
		got := logid.Hash(entry.Parents, entry.Payload)
		if got != id {
			return fmt.Errorf("%w: entry %s hashes to %s", replicaerr.ErrBadDelta, id, got)
		}
		for _, p := range entry.Parents {
			if _, inDelta := msg.Delta[p]; inDelta {
				continue
			}
			if store.Exists(p) {
				continue
			}
			return fmt.Errorf("%w: entry %s references parent %s absent from delta and store", replicaerr.ErrBadDelta, id, p)
		}
	}
	return nil
}

// checkDeltaSize rejects a delta larger than maxDeltaEntries. A
// non-positive cap means unbounded.
func checkDeltaSize(size, maxDeltaEntries int) error {
	if maxDeltaEntries > 0 && size > maxDeltaEntries {
		return fmt.Errorf("%w: %d entries exceeds the configured cap of %d", replicaerr.ErrDeltaTooLarge, size, maxDeltaEntries)
	}
	return nil
}

// insertTopological inserts every entry in delta into store, repeatedly
// scanning for entries whose parents are already present. A verified
// delta is causally closed, so this always converges without needing an
// explicit topological sort.
func insertTopological(store *dag.Store, delta map[logid.ID]dag.Entry) error {
	pending := make(map[logid.ID]dag.Entry, len(delta))
	for id, e := range delta {
		pending[id] = e
	}

	for len(pending) > 0 {
		progressed := false
		for id, e := range pending {
			ready := true
			for _, p := range e.Parents {
				if _, stillPending := pending[p]; stillPending {
					ready = false
					break
				}
			}
			if !ready {
				continue
			}
			if err := store.Insert(e); err != nil {
				return err
			}
			delete(pending, id)
			progressed = true
		}
		if !progressed {
			return fmt.Errorf("%w: delta is not causally closed", replicaerr.ErrBadDelta)
		}
	}
	return nil
}

// snapshotExists records, for each id in ids, whether it already existed
// in store before any delta insertion. Whether a remote tip is genuinely
// new must be evaluated against pre-merge state, not after the delta has
// already been inserted.
func snapshotExists(store *dag.Store, ids map[logid.ID]struct{}) map[logid.ID]bool {
	out := make(map[logid.ID]bool, len(ids))
	for id := range ids {
		out[id] = store.Exists(id)
	}
	return out
}

// computeNewFrontier computes the post-merge tip set as the union of
// shared tips, genuinely new remote tips, and local tips that remained
// childless. Whether a local tip remained childless is evaluated against
// store's current, post-insert state, since a delta entry can itself
// adopt a former local tip as a parent.
func computeNewFrontier(store *dag.Store, rLocal, rRemote map[logid.ID]struct{}, existedBefore map[logid.ID]bool) map[logid.ID]struct{} {
	out := map[logid.ID]struct{}{}

	for id := range rRemote {
		if _, sharedTip := rLocal[id]; sharedTip {
			out[id] = struct{}{}
		}
	}

	for id := range rRemote {
		if !existedBefore[id] {
			out[id] = struct{}{}
		}
	}

	for id := range rLocal {
		if store.IsRoot(id) {
			out[id] = struct{}{}
		}
	}

	return out
}

func frontierKeys(m map[logid.ID]struct{}) []logid.ID {
	out := make([]logid.ID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	logid.Sort(out)
	return out
}
