package store

import (
	"context"
	"fmt"

	"github.com/rechain/quorumchain/pkg/merkle"
)

// Snapshot is an immutable, point-in-time read view over a Database's
// committed key space. Multiple Snapshots and Forks may read the same
// underlying RawStore concurrently; a Snapshot never observes writes made
// after it was taken, since Database.Merge only ever replaces the current
// committed state, never mutates a key in place under a live reader's feet
// (Badger and MemoryRaw both copy on read).
type Snapshot struct {
	db  *Database
	raw RawStore
}

// Index opens addr as a read-only merkelized index of the given kind,
// validating kind against whatever was previously registered for addr (if
// anything). A never-before-opened address is permitted — it simply reads
// as empty, since nothing has been written to it yet.
func (s *Snapshot) Index(addr Address, kind IndexKind) (merkle.View, error) {
	if err := s.db.checkKind(addr, kind); err != nil {
		return nil, err
	}
	return &snapshotView{ctx: context.Background(), raw: s.raw, prefix: addr.prefix()}, nil
}

// snapshotView adapts a namespaced slice of a RawStore to merkle.View.
// Set/Delete panic: nothing holding a Snapshot-backed view is ever supposed
// to call them — only a Fork's overlay is writable.
type snapshotView struct {
	ctx    context.Context
	raw    RawStore
	prefix []byte
}

func (v *snapshotView) rawKey(key []byte) []byte {
	return append(append([]byte{}, v.prefix...), key...)
}

func (v *snapshotView) Get(key []byte) ([]byte, bool) {
	val, ok, err := v.raw.Get(v.ctx, v.rawKey(key))
	if err != nil {
		panic(fmt.Errorf("store: snapshot get: %w", err))
	}
	return val, ok
}

func (v *snapshotView) Set([]byte, []byte) {
	panic("store: snapshot views are read-only, open a Fork to write")
}

func (v *snapshotView) Delete([]byte) {
	panic("store: snapshot views are read-only, open a Fork to write")
}

func (v *snapshotView) Iterate(prefix []byte, fn func(key, value []byte) bool) {
	full := v.rawKey(prefix)
	err := v.raw.Iterate(v.ctx, full, func(k, val []byte) bool {
		return fn(k[len(v.prefix):], val)
	})
	if err != nil {
		panic(fmt.Errorf("store: snapshot iterate: %w", err))
	}
}
