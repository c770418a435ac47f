package merkle

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memView is a trivial in-memory View used only by this package's tests;
// internal/store provides the real Fork/Snapshot-backed implementation.
type memView struct {
	data map[string][]byte
}

func newMemView() *memView {
	return &memView{data: make(map[string][]byte)}
}

func (m *memView) Get(key []byte) ([]byte, bool) {
	v, ok := m.data[string(key)]
	return v, ok
}

func (m *memView) Set(key, value []byte) {
	m.data[string(key)] = append([]byte{}, value...)
}

func (m *memView) Delete(key []byte) {
	delete(m.data, string(key))
}

func (m *memView) Iterate(prefix []byte, fn func(key, value []byte) bool) {
	for k, v := range m.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == string(prefix) {
			if !fn([]byte(k), v) {
				return
			}
		}
	}
}

func TestProofEntryHash(t *testing.T) {
	e := NewProofEntry(newMemView())
	assert.True(t, e.Hash().IsZero(), "unset entry hashes to zero")

	e.Set([]byte("hello"))
	assert.False(t, e.Hash().IsZero())
	assert.Equal(t, e.Hash(), e.Hash(), "hash is deterministic")
}

func TestProofListRootHash(t *testing.T) {
	l := NewProofList(newMemView())
	assert.True(t, l.RootHash().IsZero(), "empty list root is zero")

	l.Push([]byte("a"))
	l.Push([]byte("b"))
	l.Push([]byte("c"))
	require.EqualValues(t, 3, l.Len())

	root := l.RootHash()
	assert.False(t, root.IsZero())

	l2 := NewProofList(newMemView())
	l2.Push([]byte("a"))
	l2.Push([]byte("b"))
	l2.Push([]byte("c"))
	assert.Equal(t, root, l2.RootHash(), "identical contents hash identically")

	l2.Push([]byte("d"))
	assert.NotEqual(t, root, l2.RootHash(), "appending changes the root")
}

func TestProofListProof(t *testing.T) {
	l := NewProofList(newMemView())
	for i := 0; i < 7; i++ {
		l.Push([]byte(fmt.Sprintf("item-%d", i)))
	}
	root := l.RootHash()

	for i := uint64(0); i < 7; i++ {
		proof, ok := l.GetProof(i)
		require.True(t, ok)
		require.NotEmpty(t, proof)
	}
	_, ok := l.GetProof(99)
	assert.False(t, ok, "out-of-range index has no proof")
	assert.False(t, root.IsZero())
}

func TestProofMapRootHashAndProof(t *testing.T) {
	m := NewProofMap(newMemView())
	assert.True(t, m.RootHash().IsZero())

	m.Put([]byte("alpha"), []byte("1"))
	m.Put([]byte("beta"), []byte("2"))
	m.Put([]byte("gamma"), []byte("3"))

	root := m.RootHash()
	assert.False(t, root.IsZero())

	proof := m.GetProof([]byte("beta"))
	require.Equal(t, []byte("2"), proof.Value)
	assert.True(t, VerifyProof(root, proof))

	absentProof := m.GetProof([]byte("does-not-exist"))
	assert.Nil(t, absentProof.Value)
	assert.True(t, VerifyProof(root, absentProof))

	tampered := proof
	tampered.Value = []byte("wrong")
	assert.False(t, VerifyProof(root, tampered))
}

func TestProofMapOrderIndependent(t *testing.T) {
	m1 := NewProofMap(newMemView())
	m1.Put([]byte("x"), []byte("1"))
	m1.Put([]byte("y"), []byte("2"))

	m2 := NewProofMap(newMemView())
	m2.Put([]byte("y"), []byte("2"))
	m2.Put([]byte("x"), []byte("1"))

	assert.Equal(t, m1.RootHash(), m2.RootHash())
}
