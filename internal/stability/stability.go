// Package stability implements the per-replica stability computation: an
// entry is stable once every peer's believed frontier transitively
// reaches it.
package stability

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/prestonmccrary/merkle-log-logic/internal/dag"
	"github.com/prestonmccrary/merkle-log-logic/internal/debug"
	"github.com/prestonmccrary/merkle-log-logic/internal/logid"
)

var tracer = otel.Tracer("github.com/prestonmccrary/merkle-log-logic/internal/stability")

// Update computes, marks, and returns the set of newly-stable ids.
//
// An id becomes stable when it is reachable (via non-stable predicate
// BFS) from the local frontier AND from every known peer's believed
// frontier, with no special case for a peer still sitting at genesis. A
// peer that has never synced contributes an empty BFS result (genesis is
// already stable, so the walk stops immediately), which blocks the
// intersection rather than leaving it unconstrained — treating such a
// peer as "no constraint" would let a replica call something stable
// while a third, not-yet-synced peer is still unaware of it.
func Update(ctx context.Context, store *dag.Store, selfFrontier []logid.ID, peerFrontiers map[uuid.UUID]map[logid.ID]struct{}) []logid.ID {
	_, span := tracer.Start(ctx, "stability.Update")
	defer span.End()

	notStable := func(id logid.ID) bool { return !store.IsStable(id) }

	candidate := store.BFS(selfFrontier, notStable)

	for _, frontier := range peerFrontiers {
		peerSet := store.BFS(frontierKeys(frontier), notStable)
		candidate = intersect(candidate, peerSet)
	}

	newlyStable := make([]logid.ID, 0, len(candidate))
	for id := range candidate {
		newlyStable = append(newlyStable, id)
	}
	logid.Sort(newlyStable)

	for _, id := range newlyStable {
		store.MarkStable(id)
	}

	span.SetAttributes(attribute.Int("newly_stable", len(newlyStable)))
	debug.Logf("stability.Update: marked %d ids stable", len(newlyStable))

	return newlyStable
}

func frontierKeys(m map[logid.ID]struct{}) []logid.ID {
	out := make([]logid.ID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return out
}

func intersect(a, b map[logid.ID]struct{}) map[logid.ID]struct{} {
	out := map[logid.ID]struct{}{}
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	for id := range small {
		if _, ok := big[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}
