package store

import (
	"sort"

	"github.com/rechain/quorumchain/pkg/merkle"
)

// Fork is an exclusively-owned mutable overlay on top of a Snapshot.
// Database does not limit how many Forks are open at once (the mempool,
// the executor and bootstrap each open their own); every write lands in
// an in-memory overlay until Database.Merge commits it in one atomic batch,
// or the Fork is discarded, per spec §4.1's Snapshot -> Fork -> Patch ->
// Merge pipeline.
type Fork struct {
	base     *Snapshot
	overlay  map[string]Change    // raw key -> change
	newKinds map[string]IndexKind // address prefix (string) -> kind, not yet persisted
}

func newFork(base *Snapshot) *Fork {
	return &Fork{
		base:     base,
		overlay:  make(map[string]Change),
		newKinds: make(map[string]IndexKind),
	}
}

// Index opens addr as a writable merkelized index of the given kind. kind
// is validated against the Database's committed registry and against any
// other kind already claimed for addr earlier in this same Fork.
func (f *Fork) Index(addr Address, kind IndexKind) (merkle.View, error) {
	prefix := addr.prefix()
	key := string(prefix)

	if existing, ok := f.newKinds[key]; ok {
		if existing != kind {
			return nil, &ErrIndexKindMismatch{Address: addr, Existing: existing, Wanted: kind}
		}
	} else if err := f.base.db.checkKind(addr, kind); err != nil {
		return nil, err
	} else if !f.base.db.isRegistered(addr) {
		f.newKinds[key] = kind
	}

	return &forkView{fork: f, prefix: prefix}, nil
}

// Patch captures every write recorded in this Fork as an immutable
// change-set, ready for Database.Merge. The Fork remains usable afterward;
// callers typically discard it once Patch is taken.
func (f *Fork) Patch() *Patch {
	changes := make([]Change, 0, len(f.overlay))
	for _, c := range f.overlay {
		changes = append(changes, c)
	}
	sort.Slice(changes, func(i, j int) bool { return string(changes[i].Key) < string(changes[j].Key) })

	kinds := make(map[string]IndexKind, len(f.newKinds))
	for k, v := range f.newKinds {
		kinds[k] = v
	}
	return &Patch{changes: changes, newKinds: kinds}
}

// forkView adapts a namespaced slice of a Fork's overlay (falling back to
// its base Snapshot) to merkle.View.
type forkView struct {
	fork   *Fork
	prefix []byte
}

func (v *forkView) rawKey(key []byte) []byte {
	return append(append([]byte{}, v.prefix...), key...)
}

func (v *forkView) Get(key []byte) ([]byte, bool) {
	raw := v.rawKey(key)
	if c, ok := v.fork.overlay[string(raw)]; ok {
		if c.Delete {
			return nil, false
		}
		return c.Value, true
	}
	val, ok, err := v.fork.base.raw.Get(v.fork.base.db.ctx(), raw)
	if err != nil {
		panic(err)
	}
	return val, ok
}

func (v *forkView) Set(key, value []byte) {
	raw := v.rawKey(key)
	v.fork.overlay[string(raw)] = Change{Key: raw, Value: append([]byte{}, value...)}
}

func (v *forkView) Delete(key []byte) {
	raw := v.rawKey(key)
	v.fork.overlay[string(raw)] = Change{Key: raw, Delete: true}
}

func (v *forkView) Iterate(prefix []byte, fn func(key, value []byte) bool) {
	full := v.rawKey(prefix)
	merged := make(map[string][]byte)

	err := v.fork.base.raw.Iterate(v.fork.base.db.ctx(), full, func(k, val []byte) bool {
		merged[string(k)] = val
		return true
	})
	if err != nil {
		panic(err)
	}
	for k, c := range v.fork.overlay {
		if len(k) < len(full) || k[:len(full)] != string(full) {
			continue
		}
		if c.Delete {
			delete(merged, k)
			continue
		}
		merged[k] = c.Value
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if !fn([]byte(k[len(v.prefix):]), merged[k]) {
			return
		}
	}
}
