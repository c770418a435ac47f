package consensus

import (
	"context"
	"fmt"

	"github.com/rechain/quorumchain/internal/chain"
	"github.com/rechain/quorumchain/internal/wire"
	"github.com/rechain/quorumchain/pkg/crypto"
)

// SubmitTransaction is the client-facing entry point for a transaction
// originating at this node (§4.4): admit it into tx-pool, then flood it to
// every validator peer in one round of gossip. Safe to call concurrently
// with the engine's event loop — it only touches the mempool and network
// manager, both independently safe for concurrent use, never HeightState.
func (e *Engine) SubmitTransaction(ctx context.Context, env *chain.Envelope) (crypto.Hash, error) {
	hash, fresh, err := e.pool.Admit(ctx, env)
	if err != nil {
		return hash, fmt.Errorf("consensus: submit transaction: %w", err)
	}
	if fresh && e.pool.ShouldGossip(hash) {
		e.gossipTransaction(env)
	}
	return hash, nil
}

// gossipTransaction floods env to every validator peer as a
// TransactionsResponse carrying exactly one envelope — the same message
// shape a TransactionsRequest is answered with, so a receiving node's
// handleTransactionsResponse admits and (if still fresh) keeps flooding it
// onward without a dedicated wire tag for unsolicited gossip.
func (e *Engine) gossipTransaction(env *chain.Envelope) {
	body := wire.TransactionsResponse{TxBytes: [][]byte{env.Encode()}}.Encode()
	out := &wire.Envelope{Tag: wire.TagTransactionsResponse, Body: body}
	out.Sign(e.consensusKP)
	e.net.Broadcast(out)
}
