package merkle

import "github.com/rechain/quorumchain/pkg/crypto"

var entryKey = []byte("v")

// Entry stores a single value under an index. It contributes nothing to
// the state-hash aggregator — only the Proof* variants do.
type Entry struct {
	view View
}

// NewEntry wraps view as an Entry index.
func NewEntry(view View) *Entry {
	return &Entry{view: view}
}

// Get returns the stored value, if any.
func (e *Entry) Get() ([]byte, bool) {
	return e.view.Get(entryKey)
}

// Set stores value, replacing whatever was there.
func (e *Entry) Set(value []byte) {
	e.view.Set(entryKey, value)
}

// Exists reports whether a value has been set.
func (e *Entry) Exists() bool {
	_, ok := e.view.Get(entryKey)
	return ok
}

// Remove clears the entry.
func (e *Entry) Remove() {
	e.view.Delete(entryKey)
}

// ProofEntry is an Entry whose hash (SHA-256 of its value) is suitable for
// registration with the state-hash aggregator.
type ProofEntry struct {
	Entry
}

// NewProofEntry wraps view as a ProofEntry index.
func NewProofEntry(view View) *ProofEntry {
	return &ProofEntry{Entry{view: view}}
}

// Hash returns SHA-256(value), or the zero hash if unset.
func (e *ProofEntry) Hash() crypto.Hash {
	v, ok := e.view.Get(entryKey)
	if !ok {
		return crypto.ZeroHash
	}
	return crypto.SumHash(v)
}
