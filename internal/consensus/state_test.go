package consensus

import (
	"testing"

	"github.com/rechain/quorumchain/internal/chain"
	"github.com/rechain/quorumchain/internal/wire"
	"github.com/rechain/quorumchain/pkg/crypto"
	"github.com/stretchr/testify/require"
)

func fourValidatorSet(t *testing.T) chain.ValidatorSet {
	t.Helper()
	vs := chain.ValidatorSet{}
	for i := 0; i < 4; i++ {
		kp, err := crypto.GenerateKeyPair()
		require.NoError(t, err)
		vs.Validators = append(vs.Validators, chain.ValidatorInfo{ConsensusKey: kp.Public})
	}
	return vs
}

func TestQuorumIsTwoFPlusOne(t *testing.T) {
	vs := fourValidatorSet(t) // N=4, f=1, quorum=3
	hs := NewHeightState(1, crypto.ZeroHash, vs, chain.DefaultConsensusConfig())
	require.Equal(t, 3, hs.Quorum())
}

func TestProposerRotatesByHeightPlusRound(t *testing.T) {
	vs := fourValidatorSet(t)
	hs := NewHeightState(5, crypto.ZeroHash, vs, chain.DefaultConsensusConfig())
	require.Equal(t, uint32((5+1)%4), hs.Proposer(1))
	require.Equal(t, uint32((5+2)%4), hs.Proposer(2))
}

func TestRecordProposeRejectsSecondFromSameProposerAtRound(t *testing.T) {
	vs := fourValidatorSet(t)
	hs := NewHeightState(1, crypto.ZeroHash, vs, chain.DefaultConsensusConfig())
	p1 := wire.Propose{Height: 1, Round: 1, ProposerV: 0, TxHashes: []crypto.Hash{crypto.SumHash([]byte("a"))}}
	p2 := wire.Propose{Height: 1, Round: 1, ProposerV: 0, TxHashes: []crypto.Hash{crypto.SumHash([]byte("b"))}}

	require.True(t, hs.RecordPropose(p1))
	require.False(t, hs.RecordPropose(p2))
	_, ok := hs.GetPropose(p2.Hash())
	require.False(t, ok)
}

func TestAddPrevoteReachesQuorumExactlyOnce(t *testing.T) {
	vs := fourValidatorSet(t)
	hs := NewHeightState(1, crypto.ZeroHash, vs, chain.DefaultConsensusConfig())
	hash := crypto.SumHash([]byte("propose"))

	var reached int
	for v := uint32(0); v < 3; v++ {
		if hs.AddPrevote(wire.Prevote{Height: 1, Round: 1, ValidatorV: v, ProposeHash: hash, LockedRound: wire.NoLockedRound}) {
			reached++
		}
	}
	require.Equal(t, 1, reached, "quorum crossing must fire exactly once")

	pol, ok := hs.POLAt(1)
	require.True(t, ok)
	require.Equal(t, hash, pol)

	// A fourth vote for the same hash must not re-fire.
	require.False(t, hs.AddPrevote(wire.Prevote{Height: 1, Round: 1, ValidatorV: 3, ProposeHash: hash, LockedRound: wire.NoLockedRound}))
}

func TestHighestPOLAboveFindsLaterRoundOnly(t *testing.T) {
	vs := fourValidatorSet(t)
	hs := NewHeightState(1, crypto.ZeroHash, vs, chain.DefaultConsensusConfig())
	oldHash := crypto.SumHash([]byte("old"))
	newHash := crypto.SumHash([]byte("new"))

	for v := uint32(0); v < 3; v++ {
		hs.AddPrevote(wire.Prevote{Height: 1, Round: 1, ValidatorV: v, ProposeHash: oldHash, LockedRound: wire.NoLockedRound})
	}
	for v := uint32(0); v < 3; v++ {
		hs.AddPrevote(wire.Prevote{Height: 1, Round: 3, ValidatorV: v, ProposeHash: newHash, LockedRound: wire.NoLockedRound})
	}

	round, hash, ok := hs.HighestPOLAbove(1)
	require.True(t, ok)
	require.Equal(t, uint32(3), round)
	require.Equal(t, newHash, hash)

	_, _, ok = hs.HighestPOLAbove(3)
	require.False(t, ok)
}

func TestWaitingForTxsResolvesOnlyOnceAllPresent(t *testing.T) {
	vs := fourValidatorSet(t)
	hs := NewHeightState(1, crypto.ZeroHash, vs, chain.DefaultConsensusConfig())
	proposeHash := crypto.SumHash([]byte("p"))
	h1 := crypto.SumHash([]byte("tx1"))
	h2 := crypto.SumHash([]byte("tx2"))

	hs.SetWaitingForTxs(proposeHash, []crypto.Hash{h1, h2})
	require.Equal(t, StepWaitingForData, hs.Step)
	require.False(t, hs.ResolveWaitingTx(h1))
	require.True(t, hs.ResolveWaitingTx(h2))
}

func TestPrecommitEnvelopesForReturnsOnlyRecordedEnvelopes(t *testing.T) {
	vs := fourValidatorSet(t)
	hs := NewHeightState(1, crypto.ZeroHash, vs, chain.DefaultConsensusConfig())
	hash := crypto.SumHash([]byte("block"))

	for v := uint32(0); v < 3; v++ {
		pc := wire.Precommit{Height: 1, Round: 1, ValidatorV: v, ProposeHash: hash, BlockHash: hash}
		env := &wire.Envelope{Tag: wire.TagPrecommit, Body: pc.Encode()}
		env.Author = vs.Validators[v].ConsensusKey
		hs.RecordPrecommitEnvelope(1, v, env.Encode())
		hs.AddPrecommit(pc)
	}

	envs := hs.PrecommitEnvelopesFor(1, hash)
	require.Len(t, envs, 3)
}
