// Package compact implements the compaction boundary: advancing a
// "compacted" frontier into the stable prefix of the DAG, physically
// discarding interior stable entries while keeping enough boundary ids
// for future chain verification.
package compact

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/prestonmccrary/merkle-log-logic/internal/dag"
	"github.com/prestonmccrary/merkle-log-logic/internal/debug"
	"github.com/prestonmccrary/merkle-log-logic/internal/logid"
)

var tracer = otel.Tracer("github.com/prestonmccrary/merkle-log-logic/internal/compact")

// Config tunes compaction behavior. It is currently empty — reserved for
// future knobs such as a max cog size — but kept as a struct rather than
// inlining options into New's signature, so options can be added later
// without an API break.
type Config struct{}

// Compactor advances store's compacted boundary.
type Compactor struct {
	store  *dag.Store
	config *Config
}

// New creates a Compactor over store.
func New(store *dag.Store, config *Config) *Compactor {
	if config == nil {
		config = &Config{}
	}
	return &Compactor{store: store, config: config}
}

// Result reports the outcome of compacting a single id.
type Result struct {
	ID       logid.ID
	Evicted  bool // true: fully removed, no trace kept
	Retained bool // true: moved to the compacted set (still has live descendants)
}

// compactFrontier returns the live entries each of whose parents all lie
// in the compacted set — candidates to become compacted themselves.
func (c *Compactor) compactFrontier() []logid.ID {
	var frontier []logid.ID
	seen := map[logid.ID]struct{}{}
	for compactedID := range c.storeCompactedIDs() {
		for _, child := range c.store.Children(compactedID) {
			if _, already := seen[child]; already {
				continue
			}
			if c.store.IsFrontier(child) {
				continue
			}
			if c.solelyDependentOn(child, c.storeCompactedIDs()) {
				seen[child] = struct{}{}
				frontier = append(frontier, child)
			}
		}
	}
	logid.Sort(frontier)
	return frontier
}

func (c *Compactor) solelyDependentOn(id logid.ID, set map[logid.ID]struct{}) bool {
	e, ok := c.store.Entry(id)
	if !ok {
		return false
	}
	for _, p := range e.Parents {
		if _, in := set[p]; !in {
			return false
		}
	}
	return true
}

func (c *Compactor) storeCompactedIDs() map[logid.ID]struct{} {
	out := map[logid.ID]struct{}{}
	for _, id := range c.store.AllIDs() {
		if c.store.IsCompacted(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// NextCog computes the next connected block of stable, solely-dependent
// entries eligible to fold into the compacted region. It grows outward
// from the compact frontier, expanding through an id only once every one
// of its parents is already included (compacted, or already added to the
// cog in this computation), and bails out to an empty cog the instant it
// reaches a non-stable id: compaction never crosses an unstable entry.
//
// The returned slice is in discovery (frontier-outward) order; Compact
// walks it in reverse so that when a node's live-descendant check runs,
// every descendant still in the same cog has already been removed —
// processing forward would have each node still see its not-yet-removed
// children and wrongly conclude it still has live descendants.
func (c *Compactor) NextCog(ctx context.Context) []logid.ID {
	_, span := tracer.Start(ctx, "compact.NextCog")
	defer span.End()

	included := c.storeCompactedIDs()
	var cog []logid.ID

	queue := c.compactFrontier()
	queued := map[logid.ID]struct{}{}
	for _, id := range queue {
		queued[id] = struct{}{}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if _, already := included[id]; already {
			continue
		}
		if !c.store.IsStable(id) {
			debug.Logf("compact.NextCog: %s not stable, aborting cog", id)
			span.SetAttributes(attribute.Int("cog.size", 0), attribute.Bool("aborted", true))
			return nil
		}

		cog = append(cog, id)
		included[id] = struct{}{}

		for _, child := range c.store.Children(id) {
			if _, already := included[child]; already {
				continue
			}
			if _, already := queued[child]; already {
				continue
			}
			if c.store.IsFrontier(child) {
				continue
			}
			if c.solelyDependentOn(child, included) {
				queue = append(queue, child)
				queued[child] = struct{}{}
			}
		}
	}

	span.SetAttributes(attribute.Int("cog.size", len(cog)))
	return cog
}

// Compact folds cog into the compacted region. For each id it removes the
// parent edges, then either fully evicts it (no live descendants remain)
// or retains its id in the compacted set (a live descendant still
// references it as a parent).
func (c *Compactor) Compact(ctx context.Context, cog []logid.ID) []Result {
	if len(cog) == 0 {
		return nil
	}

	_, span := tracer.Start(ctx, "compact.Compact")
	defer span.End()

	results := make([]Result, 0, len(cog))

	for i := len(cog) - 1; i >= 0; i-- {
		id := cog[i]
		evicted, retained := c.store.Compact(id)
		results = append(results, Result{ID: id, Evicted: evicted, Retained: retained})
	}

	evictedCount := 0
	for _, r := range results {
		if r.Evicted {
			evictedCount++
		}
	}
	span.SetAttributes(
		attribute.Int("compacted.count", len(results)),
		attribute.Int("evicted.count", evictedCount),
	)
	debug.Logf("compact.Compact: processed=%d evicted=%d retained=%d", len(results), evictedCount, len(results)-evictedCount)

	return results
}
