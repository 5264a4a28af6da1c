// Package replica wires the DAG store, peer-frontier table, swap
// protocol, stability tracker, and compactor behind the single type a
// transport layer is expected to drive: one Replica per process, holding
// everything that replica owns.
package replica

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/prestonmccrary/merkle-log-logic/internal/compact"
	"github.com/prestonmccrary/merkle-log-logic/internal/config"
	"github.com/prestonmccrary/merkle-log-logic/internal/dag"
	"github.com/prestonmccrary/merkle-log-logic/internal/debug"
	"github.com/prestonmccrary/merkle-log-logic/internal/logid"
	"github.com/prestonmccrary/merkle-log-logic/internal/peerfrontier"
	"github.com/prestonmccrary/merkle-log-logic/internal/replicaerr"
	"github.com/prestonmccrary/merkle-log-logic/internal/stability"
	"github.com/prestonmccrary/merkle-log-logic/internal/swap"
)

var tracer = otel.Tracer("github.com/prestonmccrary/merkle-log-logic/internal/replica")

// Replica is the runtime API a transport layer is expected to drive. It
// is a single-threaded state machine: no internal locking, no blocking
// I/O.
type Replica struct {
	Self  uuid.UUID
	Store *dag.Store
	Peers *peerfrontier.Table

	config    *config.Config
	compactor *compact.Compactor
}

// New initializes a replica whose DAG is a single stable genesis. cfg may
// be nil, in which case config.Default() is used.
func New(self uuid.UUID, peers []uuid.UUID, cfg *config.Config) *Replica {
	if cfg == nil {
		cfg = config.Default()
	}
	store := dag.New()
	r := &Replica{
		Self:   self,
		Store:  store,
		Peers:  peerfrontier.New(self, peers, dag.GenesisID()),
		config: cfg,
	}
	r.compactor = compact.New(store, &compact.Config{})
	return r
}

// Append performs a local extension: the new entry's parents are a
// snapshot of the current frontier, and it becomes the sole new frontier
// member. No peer-frontier state is touched.
func (r *Replica) Append(payload logid.Payload) logid.ID {
	parents := r.Store.Frontier()
	entry := dag.NewEntry(parents, payload)

	if err := r.Store.Insert(entry); err != nil {
		// Insert can only fail here on a hash mismatch (impossible, since
		// NewEntry just computed the hash) or a missing parent (impossible,
		// since parents came from the store's own live frontier) — both
		// would indicate a programming error, not a runtime condition a
		// caller can recover from.
		panic(fmt.Sprintf("replica: local append produced an invalid entry: %v", err))
	}

	r.Store.SetFrontier(map[logid.ID]struct{}{entry.ID: {}})

	debug.Logf("replica.Append(%s): id=%s parents=%d", r.Self, entry.ID, len(parents))
	return entry.ID
}

// PrepareSwap builds phase 1 of a swap session with peer.
func (r *Replica) PrepareSwap(ctx context.Context, peer uuid.UUID) (swap.Message, error) {
	ctx, span := tracer.Start(ctx, "replica.PrepareSwap", trace.WithAttributes(attribute.String("peer", peer.String())))
	defer span.End()

	peerFrontier, err := r.Peers.Get(peer)
	if err != nil {
		span.RecordError(err)
		return swap.Message{}, err
	}

	msg, err := swap.Prepare(ctx, r.Store, peerFrontier, r.config.MaxDeltaEntries)
	if err != nil {
		span.RecordError(err)
		return swap.Message{}, err
	}
	return msg, nil
}

// RespondToSwap handles phase 2 of a swap session. The returned
// AckHandle must be passed to Ack once this session's implicit ack (the
// initiator's finalize message actually arriving) is confirmed by the
// caller's transport.
func (r *Replica) RespondToSwap(ctx context.Context, peer uuid.UUID, msg swap.Message) (swap.Message, *swap.AckHandle, error) {
	ctx, span := tracer.Start(ctx, "replica.RespondToSwap", trace.WithAttributes(attribute.String("peer", peer.String())))
	defer span.End()

	fBA, err := r.Peers.Get(peer)
	if err != nil {
		span.RecordError(err)
		return swap.Message{}, nil, err
	}

	out, handle, err := swap.Respond(ctx, r.Store, peer, msg, fBA, r.config.MaxDeltaEntries)
	if err != nil {
		span.RecordError(err)
		return swap.Message{}, nil, err
	}

	return out, handle, nil
}

// SwapFinal handles phase 3: verifies and incorporates the delta, then
// records the responder's advertised roots as this replica's belief about
// the responder's frontier, and runs stability (and, if enabled,
// compaction). A delta that fails verification leaves the peer-frontier
// table untouched.
func (r *Replica) SwapFinal(ctx context.Context, peer uuid.UUID, msg swap.Message) error {
	ctx, span := tracer.Start(ctx, "replica.SwapFinal", trace.WithAttributes(attribute.String("peer", peer.String())))
	defer span.End()

	if !r.Peers.Known(peer) {
		err := fmt.Errorf("%w: %s", replicaerr.ErrUnknownPeer, peer)
		span.RecordError(err)
		return err
	}

	if _, err := swap.Finalize(ctx, r.Store, peer, msg, r.config.MaxDeltaEntries); err != nil {
		span.RecordError(err)
		return err
	}

	if err := r.Peers.Set(peer, msg.Roots); err != nil {
		span.RecordError(err)
		return err
	}

	r.runStabilityAndCompaction(ctx)
	return nil
}

// Ack commits the responder-side deferred update staged by RespondToSwap:
// the initiator's believed frontier is set to the snapshot captured when
// RespondToSwap ran, and stability (and, if enabled, compaction) is run.
func (r *Replica) Ack(ctx context.Context, handle *swap.AckHandle) error {
	ctx, span := tracer.Start(ctx, "replica.Ack", trace.WithAttributes(attribute.String("peer", handle.Peer.String())))
	defer span.End()

	if err := r.Peers.Set(handle.Peer, handle.Frontier); err != nil {
		span.RecordError(err)
		return err
	}

	r.runStabilityAndCompaction(ctx)
	return nil
}

func (r *Replica) runStabilityAndCompaction(ctx context.Context) {
	stability.Update(ctx, r.Store, r.Store.Frontier(), r.Peers.All())

	if !r.config.EnableCompaction {
		return
	}
	if cog := r.compactor.NextCog(ctx); len(cog) > 0 {
		r.compactor.Compact(ctx, cog)
	}
}

// CheckStable reports whether id is stable.
func (r *Replica) CheckStable(id logid.ID) bool {
	return r.Store.IsStable(id)
}

// NextCog exposes manual compaction control: the next batch of ids
// eligible for compaction, oldest first.
func (r *Replica) NextCog(ctx context.Context) []logid.ID {
	return r.compactor.NextCog(ctx)
}

// Compact exposes manual compaction control. A no-op on an empty cog.
func (r *Replica) Compact(ctx context.Context, cog []logid.ID) {
	if len(cog) == 0 {
		return
	}
	r.compactor.Compact(ctx, cog)
}

// Equal reports whether two replicas have converged to identical DAG
// content: identical id sets, identical children (keys and sorted value
// sequences), and identical frontier.
func (r *Replica) Equal(other *Replica) bool {
	if r == other {
		return true
	}
	if other == nil {
		return false
	}

	a, b := r.Store.AllIDs(), other.Store.AllIDs()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	for _, id := range a {
		ca, cb := r.Store.Children(id), other.Store.Children(id)
		if len(ca) != len(cb) {
			return false
		}
		for i := range ca {
			if ca[i] != cb[i] {
				return false
			}
		}
	}

	fa, fb := r.Store.Frontier(), other.Store.Frontier()
	if len(fa) != len(fb) {
		return false
	}
	for i := range fa {
		if fa[i] != fb[i] {
			return false
		}
	}

	return true
}
