package chain

import (
	"fmt"

	"github.com/rechain/quorumchain/internal/store"
	"github.com/rechain/quorumchain/pkg/crypto"
	"github.com/rechain/quorumchain/pkg/merkle"
)

// indexOpener is the one method OpenTables needs from its source; both
// *store.Snapshot and *store.Fork provide it.
type indexOpener interface {
	Index(addr store.Address, kind store.IndexKind) (merkle.View, error)
}

// Tables bundles every table opened for one Snapshot or Fork, so callers
// don't re-open indexes by hand at every call site.
type Tables struct {
	Blocks              *merkle.ProofMap
	BlockByHeight        *merkle.Map
	Tx                   *merkle.ProofMap
	TxLocation           *merkle.Map
	TxResult             *merkle.Map
	TxPool               *merkle.Map
	ConsensusConfigAt    *merkle.Map
	ValidatorSetAt       *merkle.Map
	Aggregator           *merkle.Aggregator
}

// OpenTables opens every chain table against src, which may be a
// *store.Snapshot (read-only) or a *store.Fork (read-write, used by the
// block executor).
func OpenTables(src indexOpener) (*Tables, error) {
	t := &Tables{}

	blocksView, err := src.Index(AddrBlocks, store.KindProofMap)
	if err != nil {
		return nil, fmt.Errorf("chain: open blocks table: %w", err)
	}
	t.Blocks = merkle.NewProofMap(blocksView)

	bhView, err := src.Index(AddrBlockByHeight, store.KindMap)
	if err != nil {
		return nil, fmt.Errorf("chain: open block-by-height table: %w", err)
	}
	t.BlockByHeight = merkle.NewMap(bhView)

	txView, err := src.Index(AddrTx, store.KindProofMap)
	if err != nil {
		return nil, fmt.Errorf("chain: open tx table: %w", err)
	}
	t.Tx = merkle.NewProofMap(txView)

	txLocView, err := src.Index(AddrTxLocation, store.KindMap)
	if err != nil {
		return nil, fmt.Errorf("chain: open tx-location table: %w", err)
	}
	t.TxLocation = merkle.NewMap(txLocView)

	txResView, err := src.Index(AddrTxResult, store.KindMap)
	if err != nil {
		return nil, fmt.Errorf("chain: open tx-result table: %w", err)
	}
	t.TxResult = merkle.NewMap(txResView)

	txPoolView, err := src.Index(AddrTxPool, store.KindMap)
	if err != nil {
		return nil, fmt.Errorf("chain: open tx-pool table: %w", err)
	}
	t.TxPool = merkle.NewMap(txPoolView)

	ccView, err := src.Index(AddrConsensusConfigAt, store.KindMap)
	if err != nil {
		return nil, fmt.Errorf("chain: open consensus-config-at table: %w", err)
	}
	t.ConsensusConfigAt = merkle.NewMap(ccView)

	vsView, err := src.Index(AddrValidatorSetAt, store.KindMap)
	if err != nil {
		return nil, fmt.Errorf("chain: open validator-set-at table: %w", err)
	}
	t.ValidatorSetAt = merkle.NewMap(vsView)

	aggView, err := src.Index(AddrAggregator, store.KindProofMap)
	if err != nil {
		return nil, fmt.Errorf("chain: open state-hash-aggregator: %w", err)
	}
	t.Aggregator = merkle.NewAggregator(aggView)

	return t, nil
}

// PutBlock records block under its hash, indexes it by height, and
// registers the blocks table's new root with the aggregator. Returns the
// block's hash.
func (t *Tables) PutBlock(b *Block) crypto.Hash {
	h := b.Hash()
	t.Blocks.Put(h.Bytes(), b.Encode())
	t.BlockByHeight.Put(heightKey(b.Height), h.Bytes())
	t.Aggregator.Register(AggregatorKeyBlocks, t.Blocks.RootHash())
	return h
}

// GetBlock returns the block stored under hash.
func (t *Tables) GetBlock(hash crypto.Hash) (*Block, bool) {
	raw, ok := t.Blocks.Get(hash.Bytes())
	if !ok {
		return nil, false
	}
	b, err := DecodeBlock(raw)
	if err != nil {
		return nil, false
	}
	return b, true
}

// GetBlockByHeight returns the block committed at height, if any.
func (t *Tables) GetBlockByHeight(height uint64) (*Block, bool) {
	hashBytes, ok := t.BlockByHeight.Get(heightKey(height))
	if !ok {
		return nil, false
	}
	hash, ok := crypto.HashFromBytes(hashBytes)
	if !ok {
		return nil, false
	}
	return t.GetBlock(hash)
}

// PutTx records env under its hash and registers the tx table's new root
// with the aggregator. Returns the envelope's hash.
func (t *Tables) PutTx(env *Envelope) crypto.Hash {
	h := env.Hash()
	t.Tx.Put(h.Bytes(), env.Encode())
	t.Aggregator.Register(AggregatorKeyTx, t.Tx.RootHash())
	return h
}

// GetTx returns the envelope stored under hash.
func (t *Tables) GetTx(hash crypto.Hash) (*Envelope, bool) {
	raw, ok := t.Tx.Get(hash.Bytes())
	if !ok {
		return nil, false
	}
	env, err := DecodeEnvelope(raw)
	if err != nil {
		return nil, false
	}
	return env, true
}

// PutTxLocation records where tx hash landed.
func (t *Tables) PutTxLocation(hash crypto.Hash, loc TxLocation) {
	t.TxLocation.Put(hash.Bytes(), loc.Encode())
}

// GetTxLocation returns where tx hash landed, if it has committed.
func (t *Tables) GetTxLocation(hash crypto.Hash) (TxLocation, bool) {
	raw, ok := t.TxLocation.Get(hash.Bytes())
	if !ok {
		return TxLocation{}, false
	}
	loc, err := DecodeTxLocation(raw)
	if err != nil {
		return TxLocation{}, false
	}
	return loc, true
}

// IsCommitted reports whether hash has a tx-location entry, which per
// §4.4 is what suppresses further gossip of an already-included tx.
func (t *Tables) IsCommitted(hash crypto.Hash) bool {
	_, ok := t.GetTxLocation(hash)
	return ok
}

// PutTxResult records the execution outcome for tx hash.
func (t *Tables) PutTxResult(hash crypto.Hash, res TxResult) {
	t.TxResult.Put(hash.Bytes(), res.Encode())
}

// GetTxResult returns the execution outcome for tx hash, if executed.
func (t *Tables) GetTxResult(hash crypto.Hash) (TxResult, bool) {
	raw, ok := t.TxResult.Get(hash.Bytes())
	if !ok {
		return TxResult{}, false
	}
	res, err := DecodeTxResult(raw)
	if err != nil {
		return TxResult{}, false
	}
	return res, true
}

// PoolAdd inserts env into tx-pool, keyed by its hash.
func (t *Tables) PoolAdd(env *Envelope) crypto.Hash {
	h := env.Hash()
	t.TxPool.Put(h.Bytes(), env.Encode())
	return h
}

// PoolGet returns the pooled envelope for hash.
func (t *Tables) PoolGet(hash crypto.Hash) (*Envelope, bool) {
	raw, ok := t.TxPool.Get(hash.Bytes())
	if !ok {
		return nil, false
	}
	env, err := DecodeEnvelope(raw)
	if err != nil {
		return nil, false
	}
	return env, true
}

// PoolAll returns every pooled envelope. The pool's iteration order is
// SHA-256(hash) order (pkg/merkle.Map.Keys), which is deterministic but
// unrelated to admission order, matching §3's relaxed pool-ordering
// invariant.
func (t *Tables) PoolAll() []*Envelope {
	var out []*Envelope
	for _, k := range t.TxPool.Keys() {
		if raw, ok := t.TxPool.Get(k); ok {
			if env, err := DecodeEnvelope(raw); err == nil {
				out = append(out, env)
			}
		}
	}
	return out
}

// PutConsensusConfigAt records cfg as authoritative starting at height.
func (t *Tables) PutConsensusConfigAt(height uint64, cfg ConsensusConfig) {
	t.ConsensusConfigAt.Put(heightKey(height), cfg.Encode())
}

// GetConsensusConfigAt returns the config recorded for exactly height.
func (t *Tables) GetConsensusConfigAt(height uint64) (ConsensusConfig, bool) {
	raw, ok := t.ConsensusConfigAt.Get(heightKey(height))
	if !ok {
		return ConsensusConfig{}, false
	}
	cfg, err := DecodeConsensusConfig(raw)
	if err != nil {
		return ConsensusConfig{}, false
	}
	return cfg, true
}

// PutValidatorSetAt records vs as authoritative starting at height.
func (t *Tables) PutValidatorSetAt(height uint64, vs ValidatorSet) {
	t.ValidatorSetAt.Put(heightKey(height), vs.Encode())
}

// GetValidatorSetAt returns the validator set recorded for exactly height.
func (t *Tables) GetValidatorSetAt(height uint64) (ValidatorSet, bool) {
	raw, ok := t.ValidatorSetAt.Get(heightKey(height))
	if !ok {
		return ValidatorSet{}, false
	}
	vs, err := DecodeValidatorSet(raw)
	if err != nil {
		return ValidatorSet{}, false
	}
	return vs, true
}

// ActiveConsensusConfig walks backward from height to find the most
// recently recorded config at or before it (configs only ever get
// recorded at specific activation heights, never at every height).
func ActiveConsensusConfig(t *Tables, height uint64) (ConsensusConfig, bool) {
	for h := int64(height); h >= 0; h-- {
		if cfg, ok := t.GetConsensusConfigAt(uint64(h)); ok {
			return cfg, true
		}
	}
	return ConsensusConfig{}, false
}

// ActiveValidatorSet walks backward from height to find the most recently
// recorded validator set at or before it.
func ActiveValidatorSet(t *Tables, height uint64) (ValidatorSet, bool) {
	for h := int64(height); h >= 0; h-- {
		if vs, ok := t.GetValidatorSetAt(uint64(h)); ok {
			return vs, true
		}
	}
	return ValidatorSet{}, false
}
