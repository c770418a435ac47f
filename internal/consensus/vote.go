package consensus

import (
	"log"

	"github.com/rechain/quorumchain/internal/wire"
	"github.com/rechain/quorumchain/pkg/crypto"
)

// handlePrevote validates and tallies a Prevote (§4.6.4). A tally that
// newly reaches 2f+1 for a non-zero hash is this height's proof-of-lock,
// handed to onProofOfLock, which re-derives the block and moves to
// Precommit unless this node is locked on a later round.
func (e *Engine) handlePrevote(peerAddr string, author crypto.PublicKey, v wire.Prevote) {
	hs := e.height
	if v.Height != hs.Height {
		return
	}
	vs := hs.Validators
	if int(v.ValidatorV) >= vs.N() || vs.Validators[v.ValidatorV].ConsensusKey != author {
		return
	}

	reachedQuorum := hs.AddPrevote(v)
	if !reachedQuorum || v.ProposeHash.IsZero() {
		return
	}
	e.onProofOfLock(v.Round, v.ProposeHash)
}

// onProofOfLock implements the Tally-Prevotes transition once (round,
// proposeHash) has reached quorum: a node that is not already locked on a
// later round and holds the proposal re-derives the block deterministically
// via the executor and precommits it.
func (e *Engine) onProofOfLock(round uint32, proposeHash crypto.Hash) {
	hs := e.height
	if hs.Locked != nil && hs.Locked.Round > round {
		return
	}
	p, ok := hs.GetPropose(proposeHash)
	if !ok {
		e.requestPropose(hs.Height, proposeHash)
		return
	}

	block, err := e.ex.BuildBlock(e.ctx(), hs.Height, hs.PrevHash, p.ProposerV, p.TxHashes)
	if err != nil {
		log.Printf("consensus: re-derive block at height %d round %d: %v", hs.Height, round, err)
		return
	}

	hs.Step = StepPrecommit
	hs.Locked = &LockInfo{Round: round, ProposeHash: proposeHash}
	e.broadcastPrecommit(round, proposeHash, block.Hash())
}

func (e *Engine) broadcastPrecommit(round uint32, proposeHash, blockHash crypto.Hash) {
	hs := e.height
	selfV, ok := e.selfValidatorV(hs.Validators)
	if !ok {
		return
	}
	pc := wire.Precommit{
		Height:      hs.Height,
		Round:       round,
		ValidatorV:  selfV,
		ProposeHash: proposeHash,
		BlockHash:   blockHash,
		Timestamp:   e.clock.Now().Unix(),
	}
	env := &wire.Envelope{Tag: wire.TagPrecommit, Body: pc.Encode()}
	env.Sign(e.consensusKP)
	if err := e.wal.Append(env); err != nil {
		log.Printf("consensus: wal append precommit: %v", err)
		return
	}
	e.net.Broadcast(env)
	e.handlePrecommit(e.selfAddress, env, pc)
}

// handlePrecommit validates and tallies a Precommit, retaining the raw
// signed envelope it arrived in so a later BlockResponse can forward
// verifiable proof of the commit. A tally that newly reaches 2f+1 for a
// non-zero proposal commits the block and advances the engine to the
// next height (§4.6.4's Tally-Precommits transition).
func (e *Engine) handlePrecommit(peerAddr string, env *wire.Envelope, v wire.Precommit) {
	hs := e.height
	if v.Height != hs.Height {
		return
	}
	vs := hs.Validators
	if int(v.ValidatorV) >= vs.N() || vs.Validators[v.ValidatorV].ConsensusKey != env.Author {
		return
	}

	hs.RecordPrecommitEnvelope(v.Round, v.ValidatorV, env.Encode())
	reachedQuorum := hs.AddPrecommit(v)
	if !reachedQuorum || v.ProposeHash.IsZero() {
		return
	}
	e.onCommit(v.Round, v.ProposeHash)
}

// onCommit executes and persists the committed block, records the
// commit's authentication for later BlockRequest responders, truncates
// the WAL, and advances to the next height.
func (e *Engine) onCommit(round uint32, proposeHash crypto.Hash) {
	hs := e.height
	p, ok := hs.GetPropose(proposeHash)
	if !ok {
		e.requestPropose(hs.Height, proposeHash)
		return
	}

	hs.Step = StepCommit
	block, err := e.ex.ApplyBlock(e.ctx(), hs.Height, hs.PrevHash, p.ProposerV, p.TxHashes)
	if err != nil {
		log.Printf("consensus: apply block at height %d: %v", hs.Height, err)
		return
	}

	e.commitRecords[hs.Height] = commitRecord{
		txHashes:           p.TxHashes,
		precommitEnvelopes: hs.PrecommitEnvelopesFor(round, proposeHash),
	}

	e.enterHeight(block.Height + 1)
}
