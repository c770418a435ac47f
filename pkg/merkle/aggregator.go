package merkle

import "github.com/rechain/quorumchain/pkg/crypto"

// Aggregator is the distinguished ProofMap mapping "service.index-name" to
// that index's own root hash. Its root hash is the blockchain's state
// hash, embedded in every block header. Only ProofEntry, ProofList and
// ProofMap indexes are registered here — plain Entry/List/Map indexes
// never influence the state hash, by construction: nothing in this
// package calls Register for them.
type Aggregator struct {
	ProofMap
}

// NewAggregator wraps view as the state-hash aggregator.
func NewAggregator(view View) *Aggregator {
	return &Aggregator{ProofMap{Map{view: view}}}
}

// Register records name's current root hash in the aggregator. Callers
// re-register on every fork commit so the aggregator always reflects the
// latest root of every merkelized index that contributed to the block
// being built.
func (a *Aggregator) Register(name string, root crypto.Hash) {
	a.Put([]byte(name), root.Bytes())
}

// StateHash is the aggregator's own Patricia root: the value embedded in
// the block header's state-root field.
func (a *Aggregator) StateHash() crypto.Hash {
	return a.RootHash()
}
