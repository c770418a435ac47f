package consensus

import (
	"log"

	"github.com/rechain/quorumchain/internal/wire"
)

// handleNetworkMessage is the single entry point for every verified,
// decoded message the peer manager forwards (§4.6.3). Messages for a
// height below the current one are discarded; messages for a height
// above are cached (bounded by future_messages_max) and replayed once
// the engine reaches that height.
func (e *Engine) handleNetworkMessage(peerAddr string, env *wire.Envelope) {
	decoded, err := wire.DecodeBody(env)
	if err != nil {
		log.Printf("consensus: dropping malformed message from %s: %v", peerAddr, err)
		return
	}

	if h, ok := messageHeight(decoded); ok {
		if h < e.currentHeight {
			return
		}
		if h > e.currentHeight {
			e.queueFuture(h, peerAddr, env)
			return
		}
	}

	switch decoded.Tag {
	case wire.TagStatus:
		e.handleStatus(peerAddr, *decoded.Status)
	case wire.TagPropose:
		e.handleReceivedPropose(peerAddr, env.Author, *decoded.Propose)
	case wire.TagPrevote:
		e.handlePrevote(peerAddr, env.Author, *decoded.Prevote)
	case wire.TagPrecommit:
		e.handlePrecommit(peerAddr, env, *decoded.Precommit)
	case wire.TagTransactionsRequest:
		e.respondTransactions(peerAddr, *decoded.TransactionsRequest)
	case wire.TagTransactionsResponse:
		e.handleTransactionsResponse(*decoded.TransactionsResponse)
	case wire.TagProposeRequest:
		e.respondPropose(peerAddr, *decoded.ProposeRequest)
	case wire.TagPrevotesRequest:
		e.respondPrevotes(peerAddr, *decoded.PrevotesRequest)
	case wire.TagBlockRequest:
		e.respondBlock(peerAddr, *decoded.BlockRequest)
	case wire.TagBlockResponse:
		e.handleBlockResponse(*decoded.BlockResponse)
	case wire.TagPeersRequest:
		e.respondPeers(peerAddr)
	case wire.TagConnect, wire.TagPeersResponse:
		// handled by internal/network directly; nothing to do here.
	}
}

func (e *Engine) respondPeers(peerAddr string) {
	resp := wire.PeersResponse{Peers: e.net.Peers()}
	env := &wire.Envelope{Tag: wire.TagPeersResponse, Body: resp.Encode()}
	env.Sign(e.consensusKP)
	e.net.SendTo(peerAddr, env)
}

func (e *Engine) queueFuture(height uint64, peerAddr string, env *wire.Envelope) {
	cfg := e.activeConfig()
	max := cfg.FutureMessagesMax
	if max <= 0 {
		max = 64
	}
	q := e.futureQueue[height]
	if len(q) >= max {
		return
	}
	e.futureQueue[height] = append(q, queuedMessage{peerAddr: peerAddr, env: env})
}

// messageHeight extracts the height carried by a decoded message, for the
// tags that are height-filtered. Status is not among them, so a Status
// announcing a later height reaches handleStatus instead of the future
// queue; it and the tags with no height (Connect, PeersRequest, etc.)
// return ok=false and are never height-filtered.
func messageHeight(d wire.Decoded) (uint64, bool) {
	switch d.Tag {
	case wire.TagPropose:
		return d.Propose.Height, true
	case wire.TagPrevote:
		return d.Prevote.Height, true
	case wire.TagPrecommit:
		return d.Precommit.Height, true
	case wire.TagProposeRequest:
		return d.ProposeRequest.Height, true
	case wire.TagPrevotesRequest:
		return d.PrevotesRequest.Height, true
	case wire.TagBlockRequest:
		return d.BlockRequest.Height, true
	case wire.TagBlockResponse:
		return d.BlockResponse.Height, true
	default:
		return 0, false
	}
}
