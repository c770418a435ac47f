// Package store implements the merkelized key-value engine (component B):
// a raw byte-addressed store with forks, patches, snapshots, and named
// indexes whose kinds are validated on open. Grounded in the teacher's
// internal/storage package (Store interface, BadgerStore) and
// internal/storage/merkle_store.go's fork-then-commit shape, generalized
// from "one Merkle tree over the whole store" into per-index Merkle
// structures aggregated through pkg/merkle.Aggregator.
package store

import "context"

const metaPrefixByte = 0xfe // reserved; no Address.prefix() ever starts with it (its first byte is the name's length, and names are shorter than 254 bytes).

// Change is one write recorded in a Patch: either a Set (Delete == false)
// or a tombstone (Delete == true, Value ignored).
type Change struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// RawStore is the physical byte-level engine underneath the merkelized
// layer. BadgerRaw and MemoryRaw both implement it.
type RawStore interface {
	// Get returns the current value for key.
	Get(ctx context.Context, key []byte) ([]byte, bool, error)
	// Iterate calls fn for every key with the given prefix, in key order.
	// fn returning false stops iteration early.
	Iterate(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error
	// WriteBatch applies changes atomically.
	WriteBatch(ctx context.Context, changes []Change) error
	// Close releases any underlying resources.
	Close() error
}
