package executor

import (
	"context"
	"fmt"

	"github.com/rechain/quorumchain/internal/chain"
	"github.com/rechain/quorumchain/internal/store"
	"github.com/rechain/quorumchain/pkg/crypto"
	"github.com/rechain/quorumchain/pkg/merkle"
)

// MissingTx is returned by ApplyBlock when an ordered tx-hash list names a
// hash not present in the tx table — the caller (consensus core) is
// expected to have already run a TransactionsRequest round before
// reaching this point (§4.6.4's WaitingForData step); reaching here means
// a caller bug, not a network condition.
type MissingTx struct {
	Hash crypto.Hash
}

func (e *MissingTx) Error() string {
	return fmt.Sprintf("executor: transaction %s not found in tx table", e.Hash)
}

// Executor applies ordered transaction lists against store forks on
// behalf of the consensus core (§4.5). It holds no consensus state of
// its own; every call is a pure function of (db, height, prevHash,
// proposerID, txHashes).
type Executor struct {
	db  *store.Database
	rt  Runtime
}

// New constructs an Executor backed by db, delegating transaction
// semantics to rt.
func New(db *store.Database, rt Runtime) *Executor {
	return &Executor{db: db, rt: rt}
}

// Speculate opens a fresh fork, executes txHashes in order without
// persisting the fork, and returns the state hash the resulting block
// would carry, without mutating committed state. The consensus core does
// not call it: its Prevote-tally step uses BuildBlock, which derives the
// whole header (state root included) the same way.
func (ex *Executor) Speculate(ctx context.Context, height uint64, txHashes []crypto.Hash) (crypto.Hash, error) {
	fork := ex.db.Fork()
	tbl, err := chain.OpenTables(fork)
	if err != nil {
		return crypto.Hash{}, fmt.Errorf("executor: open tables: %w", err)
	}
	if _, _, err := ex.run(ctx, fork, tbl, height, txHashes); err != nil {
		return crypto.Hash{}, err
	}
	return tbl.Aggregator.StateHash(), nil
}

// BuildBlock speculatively derives the full block header that ApplyBlock
// would persist for (height, prevHash, proposerID, txHashes), without
// touching committed state. Used by the consensus core at Precommit time
// to compute the BlockHash it is voting for — there is no separate
// "block header" message on the wire, every validator derives it
// identically from the agreed-upon transaction order (§4.6.4's
// determinism requirement).
func (ex *Executor) BuildBlock(ctx context.Context, height uint64, prevHash crypto.Hash, proposerID uint32, txHashes []crypto.Hash) (*chain.Block, error) {
	fork := ex.db.Fork()
	tbl, err := chain.OpenTables(fork)
	if err != nil {
		return nil, fmt.Errorf("executor: open tables: %w", err)
	}
	txRoot, errRoot, err := ex.run(ctx, fork, tbl, height, txHashes)
	if err != nil {
		return nil, err
	}
	return &chain.Block{
		Height:     height,
		PrevHash:   prevHash,
		ProposerID: proposerID,
		TxCount:    uint32(len(txHashes)),
		TxRoot:     txRoot,
		StateRoot:  tbl.Aggregator.StateHash(),
		ErrorRoot:  errRoot,
		AdditionalHeaders: map[string][]byte{
			"runtime-version": encodeVersion(ex.rt.Version()),
		},
	}, nil
}

// ApplyBlock executes txHashes in order against a fresh fork, persists
// tx-result/tx-location for each, runs after-transactions hooks, builds
// and persists the block header, and merges the fork into the committed
// state. Returns the persisted block.
func (ex *Executor) ApplyBlock(ctx context.Context, height uint64, prevHash crypto.Hash, proposerID uint32, txHashes []crypto.Hash) (*chain.Block, error) {
	fork := ex.db.Fork()
	tbl, err := chain.OpenTables(fork)
	if err != nil {
		return nil, fmt.Errorf("executor: open tables: %w", err)
	}

	txRoot, errRoot, err := ex.run(ctx, fork, tbl, height, txHashes)
	if err != nil {
		return nil, err
	}

	block := &chain.Block{
		Height:     height,
		PrevHash:   prevHash,
		ProposerID: proposerID,
		TxCount:    uint32(len(txHashes)),
		TxRoot:     txRoot,
		StateRoot:  tbl.Aggregator.StateHash(),
		ErrorRoot:  errRoot,
		AdditionalHeaders: map[string][]byte{
			"runtime-version": encodeVersion(ex.rt.Version()),
		},
	}
	tbl.PutBlock(block)

	if err := ex.db.Merge(fork.Patch()); err != nil {
		return nil, fmt.Errorf("executor: merge block patch: %w", err)
	}
	return block, nil
}

// run executes txHashes in order against fork/tbl, recording tx-result
// and tx-location for each, then invokes after-transactions. It returns
// the tx-root and error-root ProofList roots built over the tx hashes and
// the per-tx outcome kinds respectively.
func (ex *Executor) run(ctx context.Context, fork *store.Fork, tbl *chain.Tables, height uint64, txHashes []crypto.Hash) (txRoot, errRoot crypto.Hash, err error) {
	txRootView, openErr := fork.Index(txRootAddr(height), store.KindProofList)
	if openErr != nil {
		return crypto.Hash{}, crypto.Hash{}, fmt.Errorf("executor: open tx-root list: %w", openErr)
	}
	errRootView, openErr := fork.Index(errorRootAddr(height), store.KindProofList)
	if openErr != nil {
		return crypto.Hash{}, crypto.Hash{}, fmt.Errorf("executor: open error-root list: %w", openErr)
	}
	txRootList := merkle.NewProofList(txRootView)
	errRootList := merkle.NewProofList(errRootView)

	for i, hash := range txHashes {
		env, ok := tbl.GetTx(hash)
		if !ok {
			return crypto.Hash{}, crypto.Hash{}, &MissingTx{Hash: hash}
		}

		outcome := ex.rt.Execute(ctx, fork, tbl, env)
		tbl.PutTxResult(hash, outcome.toTxResult())
		tbl.PutTxLocation(hash, chain.TxLocation{Height: height, Index: uint32(i)})

		txRootList.Push(hash.Bytes())
		errRootList.Push([]byte(outcome.Kind))
	}

	ex.rt.AfterTransactions(ctx, fork, tbl, height)

	return txRootList.RootHash(), errRootList.RootHash(), nil
}

func encodeVersion(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

// txRootAddr and errorRootAddr are scratch per-block ProofList indexes,
// grouped by height so that successive blocks (and a Speculate call
// racing ahead of the real ApplyBlock at the same height) never share a
// keyspace with any other height's scratch list.
var (
	baseTxRootAddr    = store.Address{Name: "executor.tx_root"}
	baseErrorRootAddr = store.Address{Name: "executor.error_root"}
)

func txRootAddr(height uint64) store.Address {
	return baseTxRootAddr.WithGroup(heightKeyBytes(height))
}

func errorRootAddr(height uint64) store.Address {
	return baseErrorRootAddr.WithGroup(heightKeyBytes(height))
}

func heightKeyBytes(h uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[7-i] = byte(h >> (8 * uint(i)))
	}
	return b
}
