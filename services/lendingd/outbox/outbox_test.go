package outbox

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendcore/core/types"
	"lendcore/native/lending"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	store, err := Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleEffects() []lending.Effect {
	eos := types.ExtendedSymbol{Symbol: types.NewSymbol("EOS", 4), Contract: "eosio.token"}
	return []lending.Effect{
		{Kind: lending.EffectTransferIn, Account: "alice", Token: eos, Quantity: types.NewAsset(10000, eos.Symbol), Memo: "deposit"},
		{Kind: lending.EffectIssue, Account: "alice", Token: eos, Quantity: types.NewAsset(10000, eos.Symbol)},
	}
}

func TestEnqueueIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, created, err := store.Enqueue(ctx, 7, "transfer", sampleEffects())
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, 2, first.EffectCount)

	again, created, err := store.Enqueue(ctx, 7, "transfer", sampleEffects())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	_, created, err = store.Enqueue(ctx, 8, "transfer", sampleEffects())
	require.NoError(t, err)
	assert.True(t, created)

	n, err := store.PendingCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestEnqueueRejectsEmpty(t *testing.T) {
	store := newTestStore(t)
	_, _, err := store.Enqueue(context.Background(), 1, "noop", nil)
	require.True(t, errors.Is(err, ErrEmptyBatch))
}

func TestPendingAndAck(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for seq := uint64(1); seq <= 3; seq++ {
		_, _, err := store.Enqueue(ctx, seq, "transfer", sampleEffects())
		require.NoError(t, err)
	}
	pending, err := store.Pending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.EqualValues(t, 1, pending[0].Sequence)

	effects, err := pending[0].Decode()
	require.NoError(t, err)
	assert.Equal(t, sampleEffects(), effects)

	require.NoError(t, store.MarkFailed(ctx, pending[0].ID, errors.New("node unavailable")))
	failed, err := store.Get(ctx, pending[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, failed.Attempts)
	assert.Equal(t, "node unavailable", failed.LastError)

	acked, err := store.MarkDispatched(ctx, pending[0].ID)
	require.NoError(t, err)
	require.NotNil(t, acked.DispatchedAt)
	assert.Empty(t, acked.LastError)

	n, err := store.PendingCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	require.True(t, errors.Is(store.MarkFailed(ctx, pending[0].ID, nil), ErrBatchNotFound))
	_, err = store.MarkDispatched(ctx, uuid.New())
	require.True(t, errors.Is(err, ErrBatchNotFound))
}

func TestDigestDependsOnInputs(t *testing.T) {
	base := Digest(1, "transfer", []byte("[]"))
	assert.Len(t, base, 64)
	assert.NotEqual(t, base, Digest(2, "transfer", []byte("[]")))
	assert.NotEqual(t, base, Digest(1, "borrow", []byte("[]")))
	assert.Equal(t, base, Digest(1, "transfer", []byte("[]")))
}
