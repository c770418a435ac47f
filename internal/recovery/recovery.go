// Package recovery implements component I: restoring the consensus
// engine's in-memory state from its write-ahead log and the store's last
// committed height before the node resumes networking, so a restarted
// node is indistinguishable to its peers from one that never crashed
// (spec §4.6.7, property P4). Grounded in the teacher's absence of any
// restart path (internal/gcl.Node.Start just begins fresh) — this is new
// code in the teacher's small-package, single-purpose style, wiring
// internal/consensus.Engine.Resume/Start to internal/chain/internal/store
// rather than inventing its own bookkeeping.
package recovery

import (
	"fmt"

	"github.com/rechain/quorumchain/internal/chain"
	"github.com/rechain/quorumchain/internal/consensus"
	"github.com/rechain/quorumchain/internal/store"
)

// Boot determines the height the engine should resume at from the
// highest committed block recorded in db, replays the engine's WAL into
// that height's in-memory state, and starts the engine's event loop.
// Called once at node startup, before the peer manager's connections are
// allowed to deliver anything to the engine.
func Boot(db *store.Database, eng *consensus.Engine) error {
	height, err := nextHeight(db)
	if err != nil {
		return fmt.Errorf("recovery: determine resume height: %w", err)
	}
	if err := eng.Resume(height); err != nil {
		return fmt.Errorf("recovery: replay wal for height %d: %w", height, err)
	}
	return eng.Start(height)
}

// nextHeight returns one past the highest height with a committed block
// in db, i.e. the height the consensus core should resume voting on. A
// store with nothing committed yet resumes at height 1, per spec §3
// ("the first proposed block has H=1").
func nextHeight(db *store.Database) (uint64, error) {
	snap := db.Snapshot()
	tbl, err := chain.OpenTables(snap)
	if err != nil {
		return 0, err
	}
	var h uint64 = 1
	for {
		if _, ok := tbl.GetBlockByHeight(h); !ok {
			return h, nil
		}
		h++
	}
}
