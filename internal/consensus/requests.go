package consensus

import (
	"fmt"
	"strings"
	"time"

	"github.com/rechain/quorumchain/internal/chain"
	"github.com/rechain/quorumchain/internal/wire"
	"github.com/rechain/quorumchain/pkg/crypto"
)

// pendingRequest tracks one outstanding request this node issued, so a
// request timer fire can rotate to another peer (§4.6.5) and a matching
// response can be recognized and discarded once satisfied (requests are
// idempotent: a duplicate or late response after cancellation is a no-op).
type pendingRequest struct {
	key      string // composite key identifying the datum being requested
	build    func() *wire.Envelope
	peers    []string // every peer eligible when the request was issued, round-robin order; not narrowed to peers known to have the datum
	nextPeer int
}

func (e *Engine) issueRequest(key string, build func() *wire.Envelope) {
	peers := e.candidatePeers()
	pr := &pendingRequest{key: key, build: build, peers: peers}
	e.pending[key] = pr
	e.sendToNextPeer(pr)
	e.scheduleTimer(timerRequest, key, e.requestTimeoutValue())
}

func (e *Engine) sendToNextPeer(pr *pendingRequest) {
	if len(pr.peers) == 0 {
		e.net.Broadcast(pr.build())
		return
	}
	peer := pr.peers[pr.nextPeer%len(pr.peers)]
	pr.nextPeer++
	if !e.net.SendTo(peer, pr.build()) {
		e.net.Broadcast(pr.build())
	}
}

func (e *Engine) candidatePeers() []string {
	var out []string
	for _, p := range e.net.EligiblePeers() {
		out = append(out, p.Address)
	}
	return out
}

func (e *Engine) requestTimeoutValue() time.Duration {
	d := e.activeConfig().RequestTimeout
	if d <= 0 {
		d = 500 * time.Millisecond
	}
	return d
}

// onRequestTimerFired rotates a still-pending request to the next peer, or
// (for the prevote-stall check's own key namespace) evaluates whether
// progress toward quorum has stalled.
func (e *Engine) onRequestTimerFired(key string) {
	if strings.HasPrefix(key, prevoteStallKeyPrefix) {
		e.onPrevoteStallTimerFired(key)
		return
	}
	pr, ok := e.pending[key]
	if !ok {
		return // already satisfied
	}
	e.sendToNextPeer(pr)
	e.scheduleTimer(timerRequest, key, e.requestTimeoutValue())
}

const prevoteStallKeyPrefix = "prevote-stall:"

// schedulePrevoteStallCheck arms a one-shot check, request_timeout_ms out,
// for whether this node's own Prevote at (round, proposeHash) ever reaches
// quorum — §4.6.5's "asked when progress toward 2f+1 stalls".
func (e *Engine) schedulePrevoteStallCheck(height uint64, round uint32, proposeHash crypto.Hash) {
	key := fmt.Sprintf("%s%d:%d:%s", prevoteStallKeyPrefix, height, round, proposeHash)
	e.scheduleTimer(timerRequest, key, e.requestTimeoutValue())
}

// onPrevoteStallTimerFired re-checks the (height, round, proposeHash) the
// stall check was armed for; if this node is still in that exact round and
// quorum still hasn't been reached for that proposal, it asks a peer for
// the Prevotes it's missing.
func (e *Engine) onPrevoteStallTimerFired(key string) {
	var height uint64
	var round uint32
	var hashHex string
	if _, err := fmt.Sscanf(key, prevoteStallKeyPrefix+"%d:%d:%s", &height, &round, &hashHex); err != nil {
		return
	}
	hs := e.height
	if hs == nil || hs.Height != height || hs.Round != round {
		return // round/height has already moved on; nothing to do
	}
	proposeHash, err := crypto.ParseHashHex(hashHex)
	if err != nil {
		return
	}
	rv := hs.votesFor(round)
	if rv.prevoteCount(proposeHash) >= hs.Quorum() {
		return
	}
	e.requestPrevotes(height, round, proposeHash, rv.prevoteBitset(proposeHash))
}

func (e *Engine) satisfyRequest(key string) {
	delete(e.pending, key)
}

// requestTransactions issues a TransactionsRequest for hashes, keyed by
// the Propose hash they're blocking.
func (e *Engine) requestTransactions(proposeHash crypto.Hash, hashes []crypto.Hash) {
	key := "txs:" + proposeHash.String()
	e.issueRequest(key, func() *wire.Envelope {
		body := wire.TransactionsRequest{TxHashes: hashes}.Encode()
		env := &wire.Envelope{Tag: wire.TagTransactionsRequest, Body: body}
		env.Sign(e.consensusKP)
		return env
	})
}

// requestPropose issues a ProposeRequest for a Propose this node has only
// seen referenced (by a Prevote) but never received directly.
func (e *Engine) requestPropose(height uint64, proposeHash crypto.Hash) {
	key := "propose:" + proposeHash.String()
	e.issueRequest(key, func() *wire.Envelope {
		body := wire.ProposeRequest{Height: height, ProposeHash: proposeHash}.Encode()
		env := &wire.Envelope{Tag: wire.TagProposeRequest, Body: body}
		env.Sign(e.consensusKP)
		return env
	})
}

// requestPrevotes issues a PrevotesRequest when progress toward quorum
// stalls for (height, round, proposeHash).
func (e *Engine) requestPrevotes(height uint64, round uint32, proposeHash crypto.Hash, alreadyHave []byte) {
	key := fmt.Sprintf("prevotes:%d:%d:%s", height, round, proposeHash)
	e.issueRequest(key, func() *wire.Envelope {
		body := wire.PrevotesRequest{Height: height, Round: round, ProposeHash: proposeHash, AlreadyHave: alreadyHave}.Encode()
		env := &wire.Envelope{Tag: wire.TagPrevotesRequest, Body: body}
		env.Sign(e.consensusKP)
		return env
	})
}

// requestBlock issues a BlockRequest during WaitingForBlock catch-up.
func (e *Engine) requestBlock(height uint64) {
	key := fmt.Sprintf("block:%d", height)
	e.issueRequest(key, func() *wire.Envelope {
		body := wire.BlockRequest{Height: height}.Encode()
		env := &wire.Envelope{Tag: wire.TagBlockRequest, Body: body}
		env.Sign(e.consensusKP)
		return env
	})
}

// respondTransactions answers a TransactionsRequest, splitting the batch
// across multiple TransactionsResponse messages to respect
// max_message_len (§4.5's responder note); order is irrelevant for this
// generic request.
func (e *Engine) respondTransactions(peerAddr string, req wire.TransactionsRequest) {
	snap := e.db.Snapshot()
	tbl, err := chain.OpenTables(snap)
	if err != nil {
		return
	}
	maxLen := e.activeConfig().MaxMessageLen
	var batch [][]byte
	size := 0
	flush := func() {
		if len(batch) == 0 {
			return
		}
		body := wire.TransactionsResponse{TxBytes: batch}.Encode()
		env := &wire.Envelope{Tag: wire.TagTransactionsResponse, Body: body}
		env.Sign(e.consensusKP)
		e.net.SendTo(peerAddr, env)
		batch = nil
		size = 0
	}
	for _, h := range req.TxHashes {
		env, ok := tbl.GetTx(h)
		if !ok {
			continue
		}
		raw := env.Encode()
		if size+len(raw) > maxLen && len(batch) > 0 {
			flush()
		}
		batch = append(batch, raw)
		size += len(raw)
	}
	flush()
}

// respondPropose answers a ProposeRequest if this node has the Propose.
// Only the current height's votes/proposes are held in memory; a request
// for any other height cannot be answered this way (use BlockRequest).
func (e *Engine) respondPropose(peerAddr string, req wire.ProposeRequest) {
	hs := e.height
	if hs == nil || hs.Height != req.Height {
		return
	}
	p, ok := hs.GetPropose(req.ProposeHash)
	if !ok {
		return
	}
	env := &wire.Envelope{Tag: wire.TagPropose, Body: p.Encode()}
	env.Sign(e.consensusKP)
	e.net.SendTo(peerAddr, env)
}

// respondPrevotes answers a PrevotesRequest with every Prevote this node
// holds for (height, round, proposeHash) not named in AlreadyHave.
func (e *Engine) respondPrevotes(peerAddr string, req wire.PrevotesRequest) {
	hs := e.height
	if hs == nil || hs.Height != req.Height {
		return
	}
	rv := hs.votesFor(req.Round)
	set := rv.prevotesByHash[req.ProposeHash]
	for v, vote := range set {
		if bitsetHas(req.AlreadyHave, v) {
			continue
		}
		body := vote.Encode()
		env := &wire.Envelope{Tag: wire.TagPrevote, Body: body}
		env.Sign(e.consensusKP)
		e.net.SendTo(peerAddr, env)
	}
}

// respondBlock answers a BlockRequest with the committed block, its
// ordered transactions, and the Precommits that committed it.
func (e *Engine) respondBlock(peerAddr string, req wire.BlockRequest) {
	snap := e.db.Snapshot()
	tbl, err := chain.OpenTables(snap)
	if err != nil {
		return
	}
	block, ok := tbl.GetBlockByHeight(req.Height)
	if !ok {
		return
	}
	record, ok := e.commitRecords[req.Height]
	if !ok {
		return
	}
	txBytes := make([][]byte, 0, len(record.txHashes))
	for _, h := range record.txHashes {
		env, ok := tbl.GetTx(h)
		if !ok {
			return
		}
		txBytes = append(txBytes, env.Encode())
	}
	resp := wire.BlockResponse{
		Height:             req.Height,
		BlockBytes:         block.Encode(),
		TxBytes:            txBytes,
		PrecommitEnvelopes: record.precommitEnvelopes,
	}
	env := &wire.Envelope{Tag: wire.TagBlockResponse, Body: resp.Encode()}
	env.Sign(e.consensusKP)
	e.net.SendTo(peerAddr, env)
}

func bitsetHas(bitset []byte, v uint32) bool {
	byteIdx := int(v / 8)
	if byteIdx >= len(bitset) {
		return false
	}
	return bitset[byteIdx]&(1<<(v%8)) != 0
}
