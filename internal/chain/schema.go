// Package chain defines the persistent data model (component C): blocks,
// transaction envelopes, consensus configuration and validator sets, and
// the store addresses they live under. Grounded in the teacher's
// internal/consensus.Block/Vote/Transaction shapes (consensus.go),
// generalized from in-memory-only structs into entries of the merkelized
// store defined in internal/store, and in the teacher's
// internal/storage.Store key-naming convention ("block/%d", "block-hash/%d").
package chain

import "github.com/rechain/quorumchain/internal/store"

// Index addresses for every persistent table named in the data model.
// blocks and tx are merkelized (both ProofMap); block-by-height,
// tx-location, tx-result, tx-pool, consensus-config-at and
// validator-set-at are not — only Proof* indexes ever feed the state-hash
// aggregator.
var (
	AddrBlocks             = store.Address{Name: "blocks"}              // hash -> encoded Block (ProofMap)
	AddrBlockByHeight       = store.Address{Name: "block-by-height"}      // H (8-byte BE) -> hash (Map)
	AddrTx                  = store.Address{Name: "tx"}                  // hash -> encoded Envelope (ProofMap)
	AddrTxLocation          = store.Address{Name: "tx-location"}         // hash -> encoded TxLocation (Map)
	AddrTxResult            = store.Address{Name: "tx-result"}           // hash -> encoded TxResult (Map)
	AddrTxPool              = store.Address{Name: "tx-pool"}             // hash -> encoded Envelope (Map, not in state hash)
	AddrConsensusConfigAt   = store.Address{Name: "consensus-config-at"} // H (8-byte BE) -> encoded ConsensusConfig (Map)
	AddrValidatorSetAt      = store.Address{Name: "validator-set-at"}    // H (8-byte BE) -> encoded ValidatorSet (Map)
	AddrAggregator          = store.Address{Name: "state-hash-aggregator"}
)

// AggregatorKeyBlocks and AggregatorKeyTx are the names blocks and tx
// register their roots under in the state-hash aggregator.
const (
	AggregatorKeyBlocks = "chain.blocks"
	AggregatorKeyTx     = "chain.tx"
)

func heightKey(h uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[7-i] = byte(h >> (8 * uint(i)))
	}
	return b
}
