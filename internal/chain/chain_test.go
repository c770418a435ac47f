package chain

import (
	"testing"

	"github.com/rechain/quorumchain/internal/store"
	"github.com/rechain/quorumchain/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetBlockRoundTrip(t *testing.T) {
	db := store.NewMemoryDatabase()
	defer db.Close()
	fork := db.Fork()

	tbl, err := OpenTables(fork)
	require.NoError(t, err)

	b := &Block{
		Height:            1,
		PrevHash:          crypto.ZeroHash,
		ProposerID:        0,
		TxCount:           0,
		TxRoot:            crypto.ZeroHash,
		StateRoot:         crypto.ZeroHash,
		ErrorRoot:         crypto.ZeroHash,
		AdditionalHeaders: map[string][]byte{"z": []byte("2"), "a": []byte("1")},
	}
	hash := tbl.PutBlock(b)
	require.NoError(t, db.Merge(fork.Patch()))

	snap := db.Snapshot()
	tbl2, err := OpenTables(snap)
	require.NoError(t, err)

	got, ok := tbl2.GetBlock(hash)
	require.True(t, ok)
	assert.Equal(t, b.Height, got.Height)
	assert.Equal(t, b.AdditionalHeaders, got.AdditionalHeaders)

	byHeight, ok := tbl2.GetBlockByHeight(1)
	require.True(t, ok)
	assert.Equal(t, hash, byHeight.Hash())
}

func TestEnvelopeSignAndVerify(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	env := &Envelope{InstanceID: "token", MethodID: "transfer", Payload: []byte("alice->bob:10")}
	env.Sign(kp)
	assert.True(t, env.Verify())

	decoded, err := DecodeEnvelope(env.Encode())
	require.NoError(t, err)
	assert.True(t, decoded.Verify())
	assert.Equal(t, env.Hash(), decoded.Hash())

	decoded.Payload = []byte("tampered")
	assert.False(t, decoded.Verify())
}

func TestTxPoolAndLocationLifecycle(t *testing.T) {
	db := store.NewMemoryDatabase()
	defer db.Close()
	fork := db.Fork()
	tbl, err := OpenTables(fork)
	require.NoError(t, err)

	kp, _ := crypto.GenerateKeyPair()
	env := &Envelope{InstanceID: "a", MethodID: "b", Payload: []byte("x")}
	env.Sign(kp)

	hash := tbl.PoolAdd(env)
	assert.False(t, tbl.IsCommitted(hash))

	tbl.PutTxLocation(hash, TxLocation{Height: 1, Index: 0})
	assert.True(t, tbl.IsCommitted(hash))

	loc, ok := tbl.GetTxLocation(hash)
	require.True(t, ok)
	assert.EqualValues(t, 1, loc.Height)
	assert.EqualValues(t, 0, loc.Index)
}

func TestActiveConfigWalksBackward(t *testing.T) {
	db := store.NewMemoryDatabase()
	defer db.Close()
	fork := db.Fork()
	tbl, err := OpenTables(fork)
	require.NoError(t, err)

	base := DefaultConsensusConfig()
	tbl.PutConsensusConfigAt(0, base)

	changed := base
	changed.MaxBlockSize = 42
	tbl.PutConsensusConfigAt(10, changed)

	cfgAt5, ok := ActiveConsensusConfig(tbl, 5)
	require.True(t, ok)
	assert.Equal(t, base.MaxBlockSize, cfgAt5.MaxBlockSize)

	cfgAt10, ok := ActiveConsensusConfig(tbl, 10)
	require.True(t, ok)
	assert.Equal(t, 42, cfgAt10.MaxBlockSize)

	cfgAt100, ok := ActiveConsensusConfig(tbl, 100)
	require.True(t, ok)
	assert.Equal(t, 42, cfgAt100.MaxBlockSize)
}

func TestValidatorSetProposerElection(t *testing.T) {
	vs := ValidatorSet{Validators: make([]ValidatorInfo, 4)}
	assert.EqualValues(t, 1, vs.Proposer(1, 0))
	assert.EqualValues(t, 2, vs.Proposer(1, 1))
	assert.EqualValues(t, 0, vs.Proposer(4, 0))
}
