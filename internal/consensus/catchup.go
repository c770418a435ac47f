package consensus

import (
	"fmt"
	"log"

	"github.com/rechain/quorumchain/internal/chain"
	"github.com/rechain/quorumchain/internal/wire"
	"github.com/rechain/quorumchain/pkg/crypto"
)

// handleStatus drives catch-up (§4.6.5): a peer announcing a height
// beyond this node's current one means this node has fallen behind —
// it stops voting for the current height and requests the committed
// block instead of waiting out the round timers.
func (e *Engine) handleStatus(peerAddr string, st wire.Status) {
	hs := e.height
	if st.Height <= e.currentHeight {
		return
	}
	if hs.Step == StepWaitingForBlock {
		return
	}
	hs.Step = StepWaitingForBlock
	e.requestBlock(e.currentHeight)
}

// handleBlockResponse verifies a BlockResponse against the active
// validator set and, if it authenticates, commits the block directly
// without re-running the voting protocol for that height (§4.6.5).
func (e *Engine) handleBlockResponse(resp wire.BlockResponse) {
	hs := e.height
	if hs.Step != StepWaitingForBlock || resp.Height != e.currentHeight {
		return
	}

	block, err := chain.DecodeBlock(resp.BlockBytes)
	if err != nil || block.Height != resp.Height {
		return
	}

	envs := make([]*chain.Envelope, 0, len(resp.TxBytes))
	txHashes := make([]crypto.Hash, 0, len(resp.TxBytes))
	for _, raw := range resp.TxBytes {
		env, err := chain.DecodeEnvelope(raw)
		if err != nil || !env.Verify() {
			return
		}
		envs = append(envs, env)
		txHashes = append(txHashes, env.Hash())
	}

	vs := hs.Validators
	quorum := hs.Quorum()
	seen := make(map[uint32]struct{})
	for _, raw := range resp.PrecommitEnvelopes {
		penv, err := wire.DecodeEnvelope(raw)
		if err != nil || penv.Tag != wire.TagPrecommit || !penv.Verify() {
			continue
		}
		pc, err := wire.DecodePrecommit(penv.Body)
		if err != nil {
			continue
		}
		if pc.Height != resp.Height || pc.BlockHash != block.Hash() {
			continue
		}
		if int(pc.ValidatorV) >= vs.N() || vs.Validators[pc.ValidatorV].ConsensusKey != penv.Author {
			continue
		}
		seen[pc.ValidatorV] = struct{}{}
	}
	if len(seen) < quorum {
		log.Printf("consensus: block response at height %d has only %d/%d authenticated precommits", resp.Height, len(seen), quorum)
		return
	}

	fork := e.db.Fork()
	tbl, err := chain.OpenTables(fork)
	if err != nil {
		return
	}
	for _, env := range envs {
		tbl.PutTx(env)
	}
	if err := e.db.Merge(fork.Patch()); err != nil {
		log.Printf("consensus: merge catch-up transactions at height %d: %v", resp.Height, err)
		return
	}

	applied, err := e.ex.ApplyBlock(e.ctx(), block.Height, block.PrevHash, block.ProposerID, txHashes)
	if err != nil {
		log.Printf("consensus: apply catch-up block at height %d: %v", resp.Height, err)
		return
	}
	if applied.Hash() != block.Hash() {
		log.Printf("consensus: catch-up block at height %d does not match re-derived execution, dropping", resp.Height)
		return
	}

	e.commitRecords[block.Height] = commitRecord{
		txHashes:           txHashes,
		precommitEnvelopes: resp.PrecommitEnvelopes,
	}
	e.satisfyRequest(fmt.Sprintf("block:%d", block.Height))
	e.enterHeight(block.Height + 1)
}
