// Package executor implements the block executor (component H): applying
// an ordered transaction list against a store fork, and the narrow
// Runtime boundary to the out-of-scope execution layer. Grounded in the
// teacher's Consensus.ExecuteBlock/ApplyTransaction (consensus.go), which
// mutate an in-memory state map directly; generalized here into the
// fork/patch pipeline of internal/store so execution is crash-safe and
// every side effect lands in a specific merkle index.
package executor

import (
	"context"
	"fmt"

	"github.com/rechain/quorumchain/internal/chain"
	"github.com/rechain/quorumchain/internal/store"
)

// Outcome is a runtime method's result: either success or a classified
// failure (§7's Ok/Err{kind, description} taxonomy).
type Outcome struct {
	Failed      bool
	Kind        string
	Description string
}

// Ok is the zero-value success Outcome.
var Ok = Outcome{}

// Err constructs a failed Outcome.
func Err(kind, description string) Outcome {
	return Outcome{Failed: true, Kind: kind, Description: description}
}

func (o Outcome) toTxResult() chain.TxResult {
	return chain.TxResult{Failed: o.Failed, Kind: o.Kind, Description: o.Description}
}

// Runtime is the pure-function boundary to the out-of-scope execution
// layer (§6): check_tx/execute/after_transactions/state_hash, each a
// deterministic function of its arguments. Version is carried so a
// future runtime swap is detectable in recorded blocks' AdditionalHeaders
// (supplemented feature #3, grounded on the original source's runtime
// versioning — see DESIGN.md).
type Runtime interface {
	Version() uint32
	CheckTx(ctx context.Context, snap *store.Snapshot, env *chain.Envelope) Outcome
	Execute(ctx context.Context, fork *store.Fork, tbl *chain.Tables, env *chain.Envelope) Outcome
	AfterTransactions(ctx context.Context, fork *store.Fork, tbl *chain.Tables, height uint64)
}

// NopRuntime executes every transaction successfully and performs no state
// mutation beyond what the executor itself records (tx-result/tx-location);
// its CheckTx rejects only envelopes with an empty payload. It
// exists so internal/executor and internal/consensus are independently
// testable without a real service-level runtime, which is out of scope
// per spec.md §1.
type NopRuntime struct{ version uint32 }

// NewNopRuntime constructs a NopRuntime reporting the given version.
func NewNopRuntime(version uint32) *NopRuntime { return &NopRuntime{version: version} }

func (r *NopRuntime) Version() uint32 { return r.version }

func (r *NopRuntime) CheckTx(ctx context.Context, snap *store.Snapshot, env *chain.Envelope) Outcome {
	if len(env.Payload) == 0 {
		return Err("empty_payload", "transaction payload must not be empty")
	}
	return Ok
}

func (r *NopRuntime) Execute(ctx context.Context, fork *store.Fork, tbl *chain.Tables, env *chain.Envelope) Outcome {
	return Ok
}

func (r *NopRuntime) AfterTransactions(ctx context.Context, fork *store.Fork, tbl *chain.Tables, height uint64) {
}

// CheckTxFunc adapts rt's CheckTx leg into a plain error-returning
// function, the shape internal/mempool's CheckTx hook takes, for callers
// that only need admission filtering.
func CheckTxFunc(rt Runtime) func(snap *store.Snapshot, env *chain.Envelope) error {
	return func(snap *store.Snapshot, env *chain.Envelope) error {
		out := rt.CheckTx(context.Background(), snap, env)
		if out.Failed {
			return fmt.Errorf("executor: check_tx rejected (%s): %s", out.Kind, out.Description)
		}
		return nil
	}
}
