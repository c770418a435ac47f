package mempool

import (
	"context"
	"fmt"
	"testing"

	"github.com/rechain/quorumchain/internal/chain"
	"github.com/rechain/quorumchain/internal/store"
	"github.com/rechain/quorumchain/pkg/crypto"
	"github.com/stretchr/testify/require"
)

func signedEnvelope(t *testing.T, kp crypto.KeyPair, payload string) *chain.Envelope {
	t.Helper()
	env := &chain.Envelope{
		InstanceID: "bank",
		MethodID:   "transfer",
		Payload:    []byte(payload),
	}
	env.Sign(kp)
	return env
}

func TestAdmitAcceptsNewTransactionOnce(t *testing.T) {
	db := store.NewMemoryDatabase()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	pool := NewPool(db, nil)
	env := signedEnvelope(t, kp, "a")

	_, fresh, err := pool.Admit(context.Background(), env)
	require.NoError(t, err)
	require.True(t, fresh)

	_, fresh, err = pool.Admit(context.Background(), env)
	require.NoError(t, err)
	require.False(t, fresh, "re-admitting the same tx must not be reported as fresh")

	snapshot := pool.Snapshot(1 << 20)
	require.Len(t, snapshot, 1)
}

func TestAdmitRejectsBadSignature(t *testing.T) {
	db := store.NewMemoryDatabase()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	pool := NewPool(db, nil)
	env := signedEnvelope(t, kp, "a")
	env.Signature[0] ^= 0xFF

	_, fresh, err := pool.Admit(context.Background(), env)
	require.Error(t, err)
	require.False(t, fresh)
}

func TestAdmitRunsCheckTxOnlyOnFirstAdmission(t *testing.T) {
	db := store.NewMemoryDatabase()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	calls := 0
	checkTx := func(snap *store.Snapshot, env *chain.Envelope) error {
		calls++
		return nil
	}
	pool := NewPool(db, checkTx)
	env := signedEnvelope(t, kp, "a")

	_, _, err = pool.Admit(context.Background(), env)
	require.NoError(t, err)
	_, _, err = pool.Admit(context.Background(), env)
	require.NoError(t, err)

	require.Equal(t, 1, calls)
}

func TestAdmitRejectsWhenCheckTxFails(t *testing.T) {
	db := store.NewMemoryDatabase()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	checkTx := func(snap *store.Snapshot, env *chain.Envelope) error {
		return fmt.Errorf("insufficient balance")
	}
	pool := NewPool(db, checkTx)
	env := signedEnvelope(t, kp, "a")

	_, fresh, err := pool.Admit(context.Background(), env)
	require.Error(t, err)
	require.False(t, fresh)

	snapshot := pool.Snapshot(1 << 20)
	require.Empty(t, snapshot)
}

func TestShouldGossipFalseAfterCommit(t *testing.T) {
	db := store.NewMemoryDatabase()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	pool := NewPool(db, nil)
	env := signedEnvelope(t, kp, "a")
	_, _, err = pool.Admit(context.Background(), env)
	require.NoError(t, err)
	require.True(t, pool.ShouldGossip(env.Hash()))

	fork := db.Fork()
	tbl, err := chain.OpenTables(fork)
	require.NoError(t, err)
	tbl.PutTxLocation(env.Hash(), chain.TxLocation{Height: 1, Index: 0})
	require.NoError(t, db.Merge(fork.Patch()))

	require.False(t, pool.ShouldGossip(env.Hash()))
}

func TestSnapshotRespectsMaxBytes(t *testing.T) {
	db := store.NewMemoryDatabase()
	pool := NewPool(db, nil)

	for i := 0; i < 5; i++ {
		kp, err := crypto.GenerateKeyPair()
		require.NoError(t, err)
		env := signedEnvelope(t, kp, fmt.Sprintf("payload-%d", i))
		_, _, err = pool.Admit(context.Background(), env)
		require.NoError(t, err)
	}

	all := pool.Snapshot(1 << 20)
	require.Len(t, all, 5)

	oneSize := len(all[0].Encode())
	bounded := pool.Snapshot(oneSize)
	require.Len(t, bounded, 1)
}
