package consensus

import (
	"log"

	"github.com/rechain/quorumchain/internal/chain"
	"github.com/rechain/quorumchain/internal/wire"
	"github.com/rechain/quorumchain/pkg/crypto"
)

// onProposeTimerFired builds and broadcasts this node's Propose for the
// current (height, round) — §4.6.4's "Propose timer fires and proposer"
// transition — then processes it exactly as if it had arrived over the
// network, so the proposer's own Prevote follows the same code path as
// every other validator's.
func (e *Engine) onProposeTimerFired() {
	hs := e.height

	envelopes := e.pool.Snapshot(hs.Config.MaxBlockSize)
	txHashes := make([]crypto.Hash, 0, len(envelopes))
	for _, env := range envelopes {
		txHashes = append(txHashes, env.Hash())
	}

	p := wire.Propose{
		Height:    hs.Height,
		Round:     hs.Round,
		ProposerV: hs.Proposer(hs.Round),
		PrevHash:  hs.PrevHash,
		TxHashes:  txHashes,
	}

	env := &wire.Envelope{Tag: wire.TagPropose, Body: p.Encode()}
	env.Sign(e.consensusKP)
	if err := e.wal.Append(env); err != nil {
		log.Printf("consensus: wal append propose: %v", err)
		return
	}
	e.net.Broadcast(env)

	e.processPropose(e.consensusKP.Public, p)
}

// handleReceivedPropose validates a Propose from the network before
// handing it to the shared processing path: it must be signed by the
// expected proposer for (height, round) and the proposer must not have
// already proposed something else at this round (§4.6.4).
func (e *Engine) handleReceivedPropose(peerAddr string, author crypto.PublicKey, p wire.Propose) {
	hs := e.height
	if p.Height != hs.Height {
		return
	}
	vs := hs.Validators
	expectedV := hs.Proposer(p.Round)
	if p.ProposerV != expectedV {
		return
	}
	if int(p.ProposerV) >= vs.N() || vs.Validators[p.ProposerV].ConsensusKey != author {
		return
	}
	if p.PrevHash != hs.PrevHash {
		return
	}
	e.processPropose(author, p)
}

// processPropose is the path shared by a self-authored Propose (after
// broadcast) and a validated network Propose: record it, and either wait
// for missing transactions or proceed straight to the Prevote step.
func (e *Engine) processPropose(author crypto.PublicKey, p wire.Propose) {
	hs := e.height
	if !hs.RecordPropose(p) {
		return
	}

	missing := e.missingTxHashes(p.TxHashes)
	if len(missing) > 0 {
		hs.SetWaitingForTxs(p.Hash(), missing)
		e.requestTransactions(p.Hash(), missing)
		return
	}

	e.prevoteStep(p)
}

func (e *Engine) missingTxHashes(hashes []crypto.Hash) []crypto.Hash {
	var missing []crypto.Hash
	for _, h := range hashes {
		if _, ok := e.pool.Get(h); ok {
			continue
		}
		snap := e.db.Snapshot()
		tbl, err := chain.OpenTables(snap)
		if err != nil {
			missing = append(missing, h)
			continue
		}
		if _, ok := tbl.GetTx(h); !ok {
			missing = append(missing, h)
		}
	}
	return missing
}

// handleTransactionsResponse admits every returned envelope into the
// mempool (so future proposals can reference it too), forwards it one more
// gossip hop if it was newly admitted (§4.4's flood keeps moving past the
// peer that requested it), then resolves any height currently
// WaitingForData on it.
func (e *Engine) handleTransactionsResponse(resp wire.TransactionsResponse) {
	for _, raw := range resp.TxBytes {
		env, err := chain.DecodeEnvelope(raw)
		if err != nil {
			continue
		}
		hash, fresh, err := e.pool.Admit(e.ctx(), env)
		if err == nil && fresh && e.pool.ShouldGossip(hash) {
			e.gossipTransaction(env)
		}
		e.resolveMissingTx(hash)
	}
}

func (e *Engine) resolveMissingTx(hash crypto.Hash) {
	hs := e.height
	if hs.Step != StepWaitingForData {
		return
	}
	if hs.ResolveWaitingTx(hash) {
		e.satisfyRequest("txs:" + hs.WaitingPropose.String())
		p, ok := hs.GetPropose(hs.WaitingPropose)
		if !ok {
			return
		}
		e.prevoteStep(p)
	}
}

// prevoteStep implements §4.6.4's Prevote step: a node locked on a
// round >= the current one re-broadcasts its existing lock instead of
// voting for the newly-received proposal.
func (e *Engine) prevoteStep(p wire.Propose) {
	hs := e.height
	hs.Step = StepPrevote

	// Unlock rule: a proof-of-lock in a later round for a different
	// proposal than the one this node is locked on means 2f+1 honest
	// validators have moved on; it is safe to drop the stale lock.
	if hs.Locked != nil {
		if _, polHash, ok := hs.HighestPOLAbove(hs.Locked.Round); ok && polHash != hs.Locked.ProposeHash {
			hs.Locked = nil
		}
	}

	if hs.Locked != nil && hs.Locked.Round >= hs.Round {
		e.rebroadcastLockedPrevote()
		return
	}

	lockedRound := wire.NoLockedRound
	if hs.Locked != nil {
		lockedRound = int64(hs.Locked.Round)
	}
	e.broadcastPrevote(hs.Round, p.Hash(), lockedRound)
}

func (e *Engine) broadcastPrevote(round uint32, proposeHash crypto.Hash, lockedRound int64) {
	hs := e.height
	selfV, ok := e.selfValidatorV(hs.Validators)
	if !ok {
		return // auditor node: observes consensus but never votes
	}
	vote := wire.Prevote{
		Height:      hs.Height,
		Round:       round,
		ValidatorV:  selfV,
		ProposeHash: proposeHash,
		LockedRound: lockedRound,
	}
	env := &wire.Envelope{Tag: wire.TagPrevote, Body: vote.Encode()}
	env.Sign(e.consensusKP)
	if err := e.wal.Append(env); err != nil {
		log.Printf("consensus: wal append prevote: %v", err)
		return
	}
	e.net.Broadcast(env)
	e.handlePrevote(e.selfAddress, e.consensusKP.Public, vote)
	e.schedulePrevoteStallCheck(hs.Height, round, proposeHash)
}

// rebroadcastLockedPrevote re-sends the Prevote for this node's current
// lock, used both when entering a round while locked and when a newly
// received Propose would otherwise have been voted for instead.
func (e *Engine) rebroadcastLockedPrevote() {
	hs := e.height
	if hs.Locked == nil {
		return
	}
	e.broadcastPrevote(hs.Round, hs.Locked.ProposeHash, int64(hs.Locked.Round))
}
