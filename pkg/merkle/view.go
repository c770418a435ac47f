// Package merkle implements the six index kinds the merkelized store
// exposes over a raw byte keyspace: Entry, ProofEntry, List, ProofList,
// Map and ProofMap. Each index type is grounded in the same
// build-a-tree-from-the-leaves technique used by the teacher's
// pkg/merkle/tree.go, generalized into a real incremental, provable
// structure backed by persistent storage instead of an in-memory
// recomputation on every read.
package merkle

import "github.com/rechain/quorumchain/pkg/crypto"

// View is the minimal key-value surface every index type needs. A Fork or
// Snapshot from internal/store implements it, scoped to one index's byte
// keyspace so index code never has to know about namespacing.
type View interface {
	Get(key []byte) ([]byte, bool)
	Set(key []byte, value []byte)
	Delete(key []byte)
	Iterate(prefix []byte, fn func(key, value []byte) bool)
}

// ReadView is the read-only subset of View; Snapshots only ever need this.
type ReadView interface {
	Get(key []byte) ([]byte, bool)
	Iterate(prefix []byte, fn func(key, value []byte) bool)
}

// Hash re-exports crypto.Hash so callers of this package rarely need to
// import pkg/crypto directly for the common case.
type Hash = crypto.Hash
