package merkle

import (
	"encoding/binary"

	"github.com/rechain/quorumchain/pkg/crypto"
)

var listLenKey = []byte{0xff} // 1-byte key; item keys are always 8 bytes, so no collision.

func itemKey(i uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], i)
	return b[:]
}

// List is a sequential, u64-indexed value store with no root hash.
type List struct {
	view View
}

// NewList wraps view as a List index.
func NewList(view View) *List {
	return &List{view: view}
}

// Len returns the number of elements pushed so far.
func (l *List) Len() uint64 {
	v, ok := l.view.Get(listLenKey)
	if !ok {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}

func (l *List) setLen(n uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	l.view.Set(listLenKey, b[:])
}

// Get returns the value at position i.
func (l *List) Get(i uint64) ([]byte, bool) {
	if i >= l.Len() {
		return nil, false
	}
	return l.view.Get(itemKey(i))
}

// Push appends value to the end of the list.
func (l *List) Push(value []byte) {
	n := l.Len()
	l.view.Set(itemKey(n), value)
	l.setLen(n + 1)
}

// Truncate discards all elements at or beyond position n. Nothing in the
// module calls it; the consensus WAL is a plain file that truncates itself.
func (l *List) Truncate(n uint64) {
	cur := l.Len()
	for i := n; i < cur; i++ {
		l.view.Delete(itemKey(i))
	}
	l.setLen(n)
}

// All returns every element in order. Intended for small lists (a block's
// transaction list, a round's precommit set) — not for iterating the full
// chain.
func (l *List) All() [][]byte {
	n := l.Len()
	out := make([][]byte, 0, n)
	for i := uint64(0); i < n; i++ {
		v, _ := l.Get(i)
		out = append(out, v)
	}
	return out
}

// ProofList is a List whose root is a binary Merkle tree over its values,
// aggregating pairwise with the last element duplicated when the level has
// an odd count (the same technique the teacher's merkle.buildTree uses),
// and folding in the length so two lists with the same values but
// different lengths never collide.
type ProofList struct {
	List
}

// NewProofList wraps view as a ProofList index.
func NewProofList(view View) *ProofList {
	return &ProofList{List{view: view}}
}

// RootHash computes the Merkle root over all elements. The root of an empty
// list is the all-zeros hash; a non-empty list's root additionally commits
// to the length so truncation is detectable even when the truncated
// elements happen to re-hash the same subtree root.
func (l *ProofList) RootHash() crypto.Hash {
	n := l.Len()
	if n == 0 {
		return crypto.ZeroHash
	}
	level := make([]crypto.Hash, n)
	for i := uint64(0); i < n; i++ {
		v, _ := l.Get(i)
		level[i] = crypto.SumHash(v)
	}
	for len(level) > 1 {
		next := make([]crypto.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, crypto.SumHash2(level[i], level[i]))
			} else {
				next = append(next, crypto.SumHash2(level[i], level[i+1]))
			}
		}
		level = next
	}
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], n)
	return crypto.SumHash2(crypto.SumHash(lenBuf[:]), level[0])
}

// GetProof returns the sibling hashes needed to recompute RootHash from the
// value at position i, innermost first.
func (l *ProofList) GetProof(i uint64) ([]crypto.Hash, bool) {
	n := l.Len()
	if i >= n {
		return nil, false
	}
	level := make([]crypto.Hash, n)
	for idx := uint64(0); idx < n; idx++ {
		v, _ := l.Get(idx)
		level[idx] = crypto.SumHash(v)
	}
	var proof []crypto.Hash
	pos := i
	for len(level) > 1 {
		next := make([]crypto.Hash, 0, (len(level)+1)/2)
		for j := 0; j < len(level); j += 2 {
			var left, right crypto.Hash
			left = level[j]
			if j+1 == len(level) {
				right = level[j]
			} else {
				right = level[j+1]
			}
			if uint64(j) == pos || uint64(j+1) == pos {
				if uint64(j) == pos {
					proof = append(proof, right)
				} else {
					proof = append(proof, left)
				}
				pos = uint64(len(next))
			}
			next = append(next, crypto.SumHash2(left, right))
		}
		level = next
	}
	return proof, true
}
