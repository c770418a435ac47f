// Package mempool implements transaction admission and gossip (component
// F). Grounded in the teacher's Consensus.AddTransaction/GetMempool
// (consensus.go, a mutex-guarded slice with a simple "add to pool, read
// the whole pool" API), generalized from an in-memory slice into
// internal/chain's tx-pool table so the pool survives a restart and is
// readable from a Snapshot.
package mempool

import (
	"context"
	"fmt"
	"sync"

	"github.com/rechain/quorumchain/internal/chain"
	"github.com/rechain/quorumchain/internal/store"
	"github.com/rechain/quorumchain/pkg/crypto"
)

// CheckTx is the runtime boundary's admission predicate (§6): a pure
// function of a read-only snapshot and the candidate envelope.
type CheckTx func(snap *store.Snapshot, env *chain.Envelope) error

// Pool owns admission and re-gossip suppression. It is the sole writer
// of tx-pool, and nothing removes committed entries from it, per §4.4
// ("transactions are not removed from the pool on block commit"); Snapshot
// skips them instead.
type Pool struct {
	db      *store.Database
	checkTx CheckTx

	mu   sync.Mutex
	seen map[crypto.Hash]struct{} // dedup for the current process lifetime
}

// NewPool constructs a Pool backed by db, admitting transactions through
// checkTx.
func NewPool(db *store.Database, checkTx CheckTx) *Pool {
	return &Pool{db: db, checkTx: checkTx, seen: make(map[crypto.Hash]struct{})}
}

// Admit verifies env's signature, checks it hasn't already landed in
// tx-location (already committed, so re-gossip is suppressed) or
// tx-pool (already pending), then consults checkTx against a fresh
// snapshot exactly once — on first admission, never again on rebroadcast
// (Open Question (a), decided in favor of "first admission only": a
// validator already gossiping an accepted tx has no reason to re-run a
// possibly expensive predicate every time a peer re-floods it). Returns
// the envelope's hash and whether it is newly admitted (true) versus
// already known (false); a non-nil error means rejection.
func (p *Pool) Admit(ctx context.Context, env *chain.Envelope) (crypto.Hash, bool, error) {
	if !env.Verify() {
		return crypto.Hash{}, false, fmt.Errorf("mempool: invalid signature")
	}
	hash := env.Hash()

	p.mu.Lock()
	_, alreadySeen := p.seen[hash]
	p.mu.Unlock()
	if alreadySeen {
		return hash, false, nil
	}

	snap := p.db.Snapshot()
	tbl, err := chain.OpenTables(snap)
	if err != nil {
		return hash, false, fmt.Errorf("mempool: open tables: %w", err)
	}
	if tbl.IsCommitted(hash) {
		p.markSeen(hash)
		return hash, false, nil
	}
	if _, ok := tbl.PoolGet(hash); ok {
		p.markSeen(hash)
		return hash, false, nil
	}

	if p.checkTx != nil {
		if err := p.checkTx(snap, env); err != nil {
			return hash, false, fmt.Errorf("mempool: check_tx rejected %s: %w", hash, err)
		}
	}

	fork := p.db.Fork()
	forkTbl, err := chain.OpenTables(fork)
	if err != nil {
		return hash, false, fmt.Errorf("mempool: open tables for fork: %w", err)
	}
	forkTbl.PoolAdd(env)
	if err := p.db.Merge(fork.Patch()); err != nil {
		return hash, false, fmt.Errorf("mempool: merge pool insert: %w", err)
	}

	p.markSeen(hash)
	return hash, true, nil
}

func (p *Pool) markSeen(hash crypto.Hash) {
	p.mu.Lock()
	p.seen[hash] = struct{}{}
	p.mu.Unlock()
}

// Snapshot returns pooled transactions not yet committed, stopping before
// the first one that would take their total encoded size past maxBytes
// (the first transaction is always included) — used to build a Propose
// (§4.6.4's "Snapshot the mempool (bounded by max_block_size)").
func (p *Pool) Snapshot(maxBytes int) []*chain.Envelope {
	snap := p.db.Snapshot()
	tbl, err := chain.OpenTables(snap)
	if err != nil {
		return nil
	}
	var out []*chain.Envelope
	total := 0
	for _, env := range tbl.PoolAll() {
		if tbl.IsCommitted(env.Hash()) {
			continue
		}
		size := len(env.Encode())
		if total+size > maxBytes && len(out) > 0 {
			break
		}
		out = append(out, env)
		total += size
	}
	return out
}

// Get returns the pooled envelope for hash, if any.
func (p *Pool) Get(hash crypto.Hash) (*chain.Envelope, bool) {
	snap := p.db.Snapshot()
	tbl, err := chain.OpenTables(snap)
	if err != nil {
		return nil, false
	}
	return tbl.PoolGet(hash)
}

// ShouldGossip reports whether hash is still worth flooding to peers:
// false once it has a tx-location entry (committed).
func (p *Pool) ShouldGossip(hash crypto.Hash) bool {
	snap := p.db.Snapshot()
	tbl, err := chain.OpenTables(snap)
	if err != nil {
		return true
	}
	return !tbl.IsCommitted(hash)
}
