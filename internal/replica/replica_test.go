package replica_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prestonmccrary/merkle-log-logic/internal/config"
	"github.com/prestonmccrary/merkle-log-logic/internal/dag"
	"github.com/prestonmccrary/merkle-log-logic/internal/logid"
	"github.com/prestonmccrary/merkle-log-logic/internal/replica"
	"github.com/prestonmccrary/merkle-log-logic/internal/swap"
)

func deltaIDs(msg swap.Message) []logid.ID {
	out := make([]logid.ID, 0, len(msg.Delta))
	for id := range msg.Delta {
		out = append(out, id)
	}
	return out
}

// fullSwap drives the full three-phase exchange + ack between a and b,
// where a is the initiator, exactly as a transport layer wiring the
// External Interfaces together would.
func fullSwap(t *testing.T, ctx context.Context, a, b *replica.Replica, aSelf, bSelf uuid.UUID) {
	t.Helper()

	msg1, err := a.PrepareSwap(ctx, bSelf)
	require.NoError(t, err)

	msg2, ackHandle, err := b.RespondToSwap(ctx, aSelf, msg1)
	require.NoError(t, err)

	require.NoError(t, a.SwapFinal(ctx, bSelf, msg2))
	require.NoError(t, b.Ack(ctx, ackHandle))
}

func Test_S1_FreshStartupEquality(t *testing.T) {
	self1, self2 := uuid.New(), uuid.New()
	r1 := replica.New(self1, []uuid.UUID{self1, self2}, nil)
	r2 := replica.New(self2, []uuid.UUID{self1, self2}, nil)

	assert.True(t, r1.Equal(r2))
	assert.Equal(t, []logid.ID{dag.GenesisID()}, r1.Store.Frontier())
	assert.Equal(t, []logid.ID{dag.GenesisID()}, r2.Store.Frontier())
}

func Test_S2_AppendAndResumeFrontier(t *testing.T) {
	self1, self2 := uuid.New(), uuid.New()
	r1 := replica.New(self1, []uuid.UUID{self1, self2}, nil)

	n1 := r1.Append(dag.IntPayload(10))
	n2 := r1.Append(dag.IntPayload(20))

	assert.Equal(t, []logid.ID{dag.GenesisID()}, entryOf(t, r1, n1).Parents)
	assert.Equal(t, []logid.ID{n1}, entryOf(t, r1, n2).Parents)
	assert.Equal(t, []logid.ID{n1}, r1.Store.Children(dag.GenesisID()))
	assert.Equal(t, []logid.ID{n2}, r1.Store.Children(n1))
	assert.Equal(t, []logid.ID{n2}, r1.Store.Frontier())
}

func entryOf(t *testing.T, r *replica.Replica, id logid.ID) dag.Entry {
	t.Helper()
	e, ok := r.Store.Entry(id)
	require.True(t, ok)
	return e
}

func Test_S3_BasicSwap(t *testing.T) {
	ctx := context.Background()
	self1, self2 := uuid.New(), uuid.New()
	r1 := replica.New(self1, []uuid.UUID{self1, self2}, nil)
	r2 := replica.New(self2, []uuid.UUID{self1, self2}, nil)

	n1 := r1.Append(dag.IntPayload(10))
	n2 := r1.Append(dag.IntPayload(20))
	n3 := r2.Append(dag.IntPayload(11))

	msg1, err := r1.PrepareSwap(ctx, self2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []logid.ID{n1, n2}, deltaIDs(msg1))
	assert.Equal(t, map[logid.ID]struct{}{n2: {}}, msg1.Roots)

	msg2, ackHandle, err := r2.RespondToSwap(ctx, self1, msg1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []logid.ID{n3}, deltaIDs(msg2))
	assert.Equal(t, map[logid.ID]struct{}{n2: {}, n3: {}}, msg2.Roots)

	require.NoError(t, r1.SwapFinal(ctx, self2, msg2))
	require.NoError(t, r2.Ack(ctx, ackHandle))

	f1, err := r1.Peers.Get(self2)
	require.NoError(t, err)
	f2, err := r2.Peers.Get(self1)
	require.NoError(t, err)
	want := map[logid.ID]struct{}{n2: {}, n3: {}}
	assert.Equal(t, want, f1)
	assert.Equal(t, want, f2)

	for _, id := range []logid.ID{n1, n2, n3} {
		assert.True(t, r1.CheckStable(id), "id %s should be stable on r1", id)
		assert.True(t, r2.CheckStable(id), "id %s should be stable on r2", id)
	}
}

func Test_S4_ConcurrentAppendsDuringSession(t *testing.T) {
	ctx := context.Background()
	self1, self2 := uuid.New(), uuid.New()
	r1 := replica.New(self1, []uuid.UUID{self1, self2}, nil)
	r2 := replica.New(self2, []uuid.UUID{self1, self2}, nil)

	r1.Append(dag.IntPayload(10))
	n2 := r1.Append(dag.IntPayload(20))
	m1 := r2.Append(dag.IntPayload(11))

	msg1, err := r1.PrepareSwap(ctx, self2)
	require.NoError(t, err)

	// A appends after building msg1: n3 must not appear in msg1 (already
	// captured), and B's independent append happens before it responds.
	n3 := r1.Append(dag.IntPayload(30))
	m2 := r2.Append(dag.IntPayload(12))

	msg2, ackHandle, err := r2.RespondToSwap(ctx, self1, msg1)
	require.NoError(t, err)
	assert.Equal(t, map[logid.ID]struct{}{n2: {}, m2: {}}, msg2.Roots)

	require.NoError(t, r1.SwapFinal(ctx, self2, msg2))
	require.NoError(t, r2.Ack(ctx, ackHandle))

	assert.ElementsMatch(t, []logid.ID{n3, m2}, r1.Store.Frontier())
	assert.ElementsMatch(t, []logid.ID{n2, m2}, r2.Store.Frontier())

	n4 := r1.Append(dag.IntPayload(40))
	e4, ok := r1.Store.Entry(n4)
	require.True(t, ok)
	assert.ElementsMatch(t, []logid.ID{n3, m2}, e4.Parents)
	assert.Equal(t, []logid.ID{n4}, r1.Store.Frontier())

	_ = m1
}

func Test_S5_ThreeReplicaTransitiveStability(t *testing.T) {
	ctx := context.Background()
	selfA, selfB, selfC := uuid.New(), uuid.New(), uuid.New()
	all := []uuid.UUID{selfA, selfB, selfC}
	a := replica.New(selfA, all, nil)
	b := replica.New(selfB, all, nil)
	c := replica.New(selfC, all, nil)

	x := a.Append(dag.IntPayload(99))

	fullSwap(t, ctx, a, b, selfA, selfB)
	fullSwap(t, ctx, a, c, selfA, selfC)

	assert.True(t, a.CheckStable(x))
	assert.False(t, b.CheckStable(x))
	assert.False(t, c.CheckStable(x))

	fullSwap(t, ctx, b, c, selfB, selfC)

	assert.True(t, a.CheckStable(x))
	assert.True(t, b.CheckStable(x))
	assert.True(t, c.CheckStable(x))
}

func Test_S6_CompactionPreservesReachableIDs(t *testing.T) {
	ctx := context.Background()
	selfA, selfB, selfC := uuid.New(), uuid.New(), uuid.New()
	all := []uuid.UUID{selfA, selfB, selfC}
	cfg := &config.Config{EnableCompaction: true, HashAlgorithm: "sha256"}
	a := replica.New(selfA, all, cfg)
	b := replica.New(selfB, all, cfg)
	c := replica.New(selfC, all, cfg)

	x := a.Append(dag.IntPayload(99))
	y := a.Append(dag.IntPayload(100))

	fullSwap(t, ctx, a, b, selfA, selfB)
	fullSwap(t, ctx, a, c, selfA, selfC)
	fullSwap(t, ctx, b, c, selfB, selfC)
	// x and y are already stable on all three replicas at this point (and
	// x, no longer a tip, has been compacted). Re-run two swaps between
	// replicas that have already converged and compacted.
	fullSwap(t, ctx, a, b, selfA, selfB)
	fullSwap(t, ctx, a, c, selfA, selfC)

	require.True(t, a.CheckStable(x))
	require.True(t, a.CheckStable(y))

	for _, id := range []logid.ID{dag.GenesisID(), x} {
		if a.Store.Exists(id) {
			_, live := a.Store.Entry(id)
			if !live {
				assert.True(t, a.Store.IsCompacted(id))
			}
		}
	}

	// A subsequent append still builds on the live frontier with correct
	// parents, and a peer swap that cites a compacted id as a known
	// ancestor keeps working.
	z := a.Append(dag.IntPayload(101))
	e, ok := a.Store.Entry(z)
	require.True(t, ok)
	assert.Equal(t, []logid.ID{y}, e.Parents)

	fullSwap(t, ctx, a, b, selfA, selfB)
	fb, err := b.Peers.Get(selfA)
	require.NoError(t, err)
	assert.Contains(t, fb, z)
}

func Test_IdempotentReswap(t *testing.T) {
	ctx := context.Background()
	selfA, selfB := uuid.New(), uuid.New()
	a := replica.New(selfA, []uuid.UUID{selfA, selfB}, nil)
	b := replica.New(selfB, []uuid.UUID{selfA, selfB}, nil)

	a.Append(dag.IntPayload(1))
	fullSwap(t, ctx, a, b, selfA, selfB)

	require.True(t, a.Equal(b))

	before := append([]logid.ID(nil), a.Store.AllIDs()...)
	fullSwap(t, ctx, a, b, selfA, selfB)
	after := a.Store.AllIDs()

	assert.Equal(t, before, after, "re-running a swap between converged replicas must not change either side")
	assert.True(t, a.Equal(b))
}

func Test_HashDeterminesID(t *testing.T) {
	store := dag.New()
	for _, id := range store.AllIDs() {
		e, ok := store.Entry(id)
		if !ok {
			continue
		}
		assert.Equal(t, id, logid.Hash(e.Parents, e.Payload))
	}
}

func Test_FrontierEqualsChildlessSet(t *testing.T) {
	self1 := uuid.New()
	r := replica.New(self1, nil, nil)
	n1 := r.Append(dag.IntPayload(1))
	n2 := r.Append(dag.IntPayload(2))

	frontierSet := map[logid.ID]struct{}{}
	for _, id := range r.Store.Frontier() {
		frontierSet[id] = struct{}{}
	}

	for _, id := range []logid.ID{dag.GenesisID(), n1, n2} {
		_, inFrontier := frontierSet[id]
		assert.Equal(t, len(r.Store.Children(id)) == 0, inFrontier)
	}
}

func Test_StabilityIsMonotonic(t *testing.T) {
	ctx := context.Background()
	selfA, selfB := uuid.New(), uuid.New()
	a := replica.New(selfA, []uuid.UUID{selfA, selfB}, nil)
	b := replica.New(selfB, []uuid.UUID{selfA, selfB}, nil)

	n1 := a.Append(dag.IntPayload(1))
	fullSwap(t, ctx, a, b, selfA, selfB)
	require.True(t, a.CheckStable(n1))

	a.Append(dag.IntPayload(2))
	assert.True(t, a.CheckStable(n1), "stability must not be revoked by later activity")
}
