package executor

import (
	"context"
	"testing"

	"github.com/rechain/quorumchain/internal/chain"
	"github.com/rechain/quorumchain/internal/store"
	"github.com/rechain/quorumchain/pkg/crypto"
	"github.com/stretchr/testify/require"
)

func putTx(t *testing.T, db *store.Database, payload string) crypto.Hash {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	env := &chain.Envelope{InstanceID: "bank", MethodID: "transfer", Payload: []byte(payload)}
	env.Sign(kp)

	fork := db.Fork()
	tbl, err := chain.OpenTables(fork)
	require.NoError(t, err)
	hash := tbl.PutTx(env)
	require.NoError(t, db.Merge(fork.Patch()))
	return hash
}

func TestApplyBlockPersistsResultsAndBlock(t *testing.T) {
	db := store.NewMemoryDatabase()
	rt := NewNopRuntime(1)
	ex := New(db, rt)

	h1 := putTx(t, db, "a")
	h2 := putTx(t, db, "b")

	block, err := ex.ApplyBlock(context.Background(), 1, crypto.ZeroHash, 0, []crypto.Hash{h1, h2})
	require.NoError(t, err)
	require.Equal(t, uint64(1), block.Height)
	require.Equal(t, uint32(2), block.TxCount)
	require.False(t, block.StateRoot.IsZero())

	snap := db.Snapshot()
	tbl, err := chain.OpenTables(snap)
	require.NoError(t, err)

	require.True(t, tbl.IsCommitted(h1))
	require.True(t, tbl.IsCommitted(h2))

	loc1, ok := tbl.GetTxLocation(h1)
	require.True(t, ok)
	require.Equal(t, chain.TxLocation{Height: 1, Index: 0}, loc1)

	res1, ok := tbl.GetTxResult(h1)
	require.True(t, ok)
	require.False(t, res1.Failed)

	stored, ok := tbl.GetBlock(block.Hash())
	require.True(t, ok)
	require.Equal(t, block.Encode(), stored.Encode())
}

func TestApplyBlockFailsOnMissingTransaction(t *testing.T) {
	db := store.NewMemoryDatabase()
	ex := New(db, NewNopRuntime(1))

	missing := crypto.SumHash([]byte("not in tx table"))
	_, err := ex.ApplyBlock(context.Background(), 1, crypto.ZeroHash, 0, []crypto.Hash{missing})
	require.Error(t, err)
	var mt *MissingTx
	require.ErrorAs(t, err, &mt)
}

func TestSpeculateDoesNotPersist(t *testing.T) {
	db := store.NewMemoryDatabase()
	ex := New(db, NewNopRuntime(1))

	h1 := putTx(t, db, "a")
	root, err := ex.Speculate(context.Background(), 1, []crypto.Hash{h1})
	require.NoError(t, err)
	require.False(t, root.IsZero())

	snap := db.Snapshot()
	tbl, err := chain.OpenTables(snap)
	require.NoError(t, err)
	require.False(t, tbl.IsCommitted(h1), "speculative execution must not write tx-location")
}

func TestSpeculateMatchesApplyBlockStateRoot(t *testing.T) {
	db := store.NewMemoryDatabase()
	ex := New(db, NewNopRuntime(1))

	h1 := putTx(t, db, "a")
	h2 := putTx(t, db, "b")

	speculative, err := ex.Speculate(context.Background(), 1, []crypto.Hash{h1, h2})
	require.NoError(t, err)

	block, err := ex.ApplyBlock(context.Background(), 1, crypto.ZeroHash, 0, []crypto.Hash{h1, h2})
	require.NoError(t, err)

	require.Equal(t, speculative, block.StateRoot)
}

func TestCheckTxRejectsEmptyPayload(t *testing.T) {
	db := store.NewMemoryDatabase()
	rt := NewNopRuntime(1)
	checkTx := CheckTxFunc(rt)

	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	env := &chain.Envelope{InstanceID: "bank", MethodID: "transfer"}
	env.Sign(kp)

	snap := db.Snapshot()
	require.Error(t, checkTx(snap, env))
}
