package merkle

import (
	"sort"

	"github.com/rechain/quorumchain/pkg/crypto"
)

const mapItemPrefixByte = 0x01

func mapItemKey(keyHash crypto.Hash) []byte {
	out := make([]byte, 1+crypto.HashSize)
	out[0] = mapItemPrefixByte
	copy(out[1:], keyHash[:])
	return out
}

// Map is a key -> value store with no root hash; keys may be arbitrary
// byte strings.
type Map struct {
	view View
}

// NewMap wraps view as a Map index.
func NewMap(view View) *Map {
	return &Map{view: view}
}

type mapRecord struct {
	origKey []byte
	value   []byte
}

func (m *Map) recordKey(key []byte) []byte {
	return mapItemKey(crypto.SumHash(key))
}

// Get returns the value for key.
func (m *Map) Get(key []byte) ([]byte, bool) {
	raw, ok := m.view.Get(m.recordKey(key))
	if !ok {
		return nil, false
	}
	rec := decodeMapRecord(raw)
	return rec.value, true
}

// Put sets key to value.
func (m *Map) Put(key, value []byte) {
	m.view.Set(m.recordKey(key), encodeMapRecord(mapRecord{origKey: key, value: value}))
}

// Remove deletes key.
func (m *Map) Remove(key []byte) {
	m.view.Delete(m.recordKey(key))
}

// Keys returns every key currently stored, in SHA-256(key) order (which is
// the order ProofMap hashes over, not insertion order).
func (m *Map) Keys() [][]byte {
	var keys [][]byte
	m.view.Iterate([]byte{mapItemPrefixByte}, func(_, value []byte) bool {
		keys = append(keys, decodeMapRecord(value).origKey)
		return true
	})
	return keys
}

func encodeMapRecord(r mapRecord) []byte {
	out := make([]byte, 4+len(r.origKey)+len(r.value))
	out[0] = byte(len(r.origKey) >> 24)
	out[1] = byte(len(r.origKey) >> 16)
	out[2] = byte(len(r.origKey) >> 8)
	out[3] = byte(len(r.origKey))
	copy(out[4:], r.origKey)
	copy(out[4+len(r.origKey):], r.value)
	return out
}

func decodeMapRecord(raw []byte) mapRecord {
	n := int(raw[0])<<24 | int(raw[1])<<16 | int(raw[2])<<8 | int(raw[3])
	return mapRecord{
		origKey: raw[4 : 4+n],
		value:   raw[4+n:],
	}
}

// ProofMap is a Map whose root hash is a binary Patricia tree keyed by
// SHA-256(key), giving every key a uniform 256-bit path regardless of its
// natural length. Like the teacher's merkle.buildTree, the tree is grown
// by recursively splitting the leaf set in half; unlike the teacher's
// array-position split, ProofMap splits leaves by the bits of their key
// hash, which is what makes the resulting root a function of the
// (key, value) pairs alone rather than of insertion or iteration order.
type ProofMap struct {
	Map
}

// NewProofMap wraps view as a ProofMap index.
func NewProofMap(view View) *ProofMap {
	return &ProofMap{Map{view: view}}
}

type trieLeaf struct {
	keyHash crypto.Hash
	value   []byte
}

func (m *ProofMap) leaves() []trieLeaf {
	var out []trieLeaf
	m.view.Iterate([]byte{mapItemPrefixByte}, func(k, v []byte) bool {
		var kh crypto.Hash
		copy(kh[:], k[1:])
		out = append(out, trieLeaf{keyHash: kh, value: decodeMapRecord(v).value})
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return lessHash(out[i].keyHash, out[j].keyHash)
	})
	return out
}

func lessHash(a, b crypto.Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func bit(h crypto.Hash, depth int) int {
	byteIdx := depth / 8
	bitIdx := 7 - uint(depth%8)
	return int((h[byteIdx] >> bitIdx) & 1)
}

func leafHash(l trieLeaf) crypto.Hash {
	buf := make([]byte, 1+crypto.HashSize+len(l.value))
	buf[0] = 0x00
	copy(buf[1:], l.keyHash[:])
	copy(buf[1+crypto.HashSize:], l.value)
	return crypto.SumHash(buf)
}

func branchHash(left, right crypto.Hash) crypto.Hash {
	buf := make([]byte, 1+2*crypto.HashSize)
	buf[0] = 0x01
	copy(buf[1:], left[:])
	copy(buf[1+crypto.HashSize:], right[:])
	return crypto.SumHash(buf)
}

// buildNode recursively hashes leaves (already sorted by key hash) starting
// at bit depth. An empty subtree hashes to the zero hash; a single leaf
// compresses the remaining depth into one node (Patricia-style path
// compression), exactly as a real sparse Merkle-Patricia trie does.
func buildNode(leaves []trieLeaf, depth int) crypto.Hash {
	switch len(leaves) {
	case 0:
		return crypto.ZeroHash
	case 1:
		return leafHash(leaves[0])
	default:
		split := 0
		for split < len(leaves) && bit(leaves[split].keyHash, depth) == 0 {
			split++
		}
		left := buildNode(leaves[:split], depth+1)
		right := buildNode(leaves[split:], depth+1)
		return branchHash(left, right)
	}
}

// RootHash returns the Patricia trie root over all (key, value) pairs. The
// root of an empty map is the zero hash.
func (m *ProofMap) RootHash() crypto.Hash {
	return buildNode(m.leaves(), 0)
}

// ProofResult is a membership or absence proof for one key.
type ProofResult struct {
	KeyHash  crypto.Hash
	Value    []byte // nil for an absence proof
	Siblings []crypto.Hash
}

// GetProof builds a membership/absence proof for key. The sibling list,
// together with KeyHash and Value, lets a verifier recompute RootHash.
func (m *ProofMap) GetProof(key []byte) ProofResult {
	kh := crypto.SumHash(key)
	leaves := m.leaves()
	var siblings []crypto.Hash
	depth := 0
	cur := leaves
	for len(cur) > 1 {
		split := 0
		for split < len(cur) && bit(cur[split].keyHash, depth) == 0 {
			split++
		}
		var chosen, other []trieLeaf
		if bit(kh, depth) == 0 {
			chosen, other = cur[:split], cur[split:]
		} else {
			chosen, other = cur[split:], cur[:split]
		}
		siblings = append(siblings, buildNode(other, depth+1))
		cur = chosen
		depth++
	}
	var value []byte
	if len(cur) == 1 && cur[0].keyHash == kh {
		value = cur[0].value
	}
	return ProofResult{KeyHash: kh, Value: value, Siblings: siblings}
}

// VerifyProof recomputes the root from a proof and checks it against root.
func VerifyProof(root crypto.Hash, p ProofResult) bool {
	var cur crypto.Hash
	if p.Value != nil {
		cur = leafHash(trieLeaf{keyHash: p.KeyHash, value: p.Value})
	} else {
		cur = crypto.ZeroHash
	}
	// Siblings were recorded shallowest-first (index 0 = the split at the
	// root); rebuild from the deepest split back up to the root.
	for depth := len(p.Siblings) - 1; depth >= 0; depth-- {
		sib := p.Siblings[depth]
		if bit(p.KeyHash, depth) == 0 {
			cur = branchHash(cur, sib)
		} else {
			cur = branchHash(sib, cur)
		}
	}
	return cur == root
}
