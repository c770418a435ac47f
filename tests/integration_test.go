package tests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rechain/quorumchain/internal/chain"
	"github.com/rechain/quorumchain/pkg/crypto"
	"github.com/rechain/quorumchain/testutil"
)

// TestFourValidatorsCommitOneTransaction exercises scenario 1 of the
// consensus protocol end to end: four validators, no faults, dial each
// other over loopback TCP, and a single submitted transaction lands at
// height 1 with the same location and state on every node.
func TestFourValidatorsCommitOneTransaction(t *testing.T) {
	identities := testutil.GenerateIdentities(t, 4, 29500)
	vs := testutil.ValidatorSet(identities)
	cfg := chain.DefaultConsensusConfig()
	cfg.ProposeTimeout = 500 * time.Millisecond
	cfg.RoundTimeout = 500 * time.Millisecond
	cfg.RequestTimeout = 150 * time.Millisecond

	nodes := testutil.NewCluster(t, identities, vs, cfg)
	defer func() {
		for _, n := range nodes {
			n.Stop()
		}
	}()

	env := &chain.Envelope{InstanceID: "demo", MethodID: "noop", Payload: []byte("hello")}
	env.Sign(identities[0].Service)

	// Submitted at a single node; the other three must learn of it purely
	// through the mempool's gossip flood, never by being handed the
	// envelope directly.
	ctx := context.Background()
	_, err := nodes[0].Eng.SubmitTransaction(ctx, env)
	require.NoError(t, err)

	txHash := env.Hash()
	deadline := time.Now().Add(10 * time.Second)
	for {
		allCommitted := true
		for _, n := range nodes {
			snap := n.DB.Snapshot()
			tbl, err := chain.OpenTables(snap)
			require.NoError(t, err)
			if !tbl.IsCommitted(txHash) {
				allCommitted = false
				break
			}
		}
		if allCommitted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for transaction to commit on every node")
		}
		time.Sleep(20 * time.Millisecond)
	}

	var firstLoc chain.TxLocation
	var firstBlockHash crypto.Hash
	for i, n := range nodes {
		snap := n.DB.Snapshot()
		tbl, err := chain.OpenTables(snap)
		require.NoError(t, err)

		loc, ok := tbl.GetTxLocation(txHash)
		require.True(t, ok)
		require.Equal(t, uint64(1), loc.Height)

		block, ok := tbl.GetBlockByHeight(1)
		require.True(t, ok)
		require.Equal(t, uint32(1), block.TxCount)

		if i == 0 {
			firstLoc = loc
			firstBlockHash = block.Hash()
		} else {
			require.Equal(t, firstLoc, loc, "tx location must agree across nodes")
			require.Equal(t, firstBlockHash, block.Hash(), "committed block must agree across nodes")
		}
	}
}
