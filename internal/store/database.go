package store

import (
	"context"
	"sync"
)

// Database ties a RawStore to the index-kind registry and hands out
// Snapshots and Forks over it. It is the top-level handle opened once at
// startup and shared by component B's callers (the executor, the mempool,
// the consensus engine, recovery).
type Database struct {
	mu    sync.RWMutex
	raw   RawStore
	kinds map[string]IndexKind // address prefix (string) -> kind
}

// NewMemoryDatabase opens a Database backed by an in-memory RawStore, for
// tests and the checkpoint/rollback facility.
func NewMemoryDatabase() *Database {
	return &Database{raw: NewMemoryRaw(), kinds: make(map[string]IndexKind)}
}

// NewBadgerDatabase opens a Database backed by a BadgerDB at path,
// reloading any index-kind registrations left by a previous run.
func NewBadgerDatabase(path string) (*Database, error) {
	raw, err := NewBadgerRaw(path)
	if err != nil {
		return nil, err
	}
	kinds, err := loadKinds(raw)
	if err != nil {
		raw.Close()
		return nil, err
	}
	return &Database{raw: raw, kinds: kinds}, nil
}

func loadKinds(raw RawStore) (map[string]IndexKind, error) {
	kinds := make(map[string]IndexKind)
	err := raw.Iterate(context.Background(), []byte{metaPrefixByte}, func(key, value []byte) bool {
		kinds[string(key[1:])] = IndexKind(value[0])
		return true
	})
	if err != nil {
		return nil, err
	}
	return kinds, nil
}

func (d *Database) ctx() context.Context { return context.Background() }

func (d *Database) checkKind(addr Address, kind IndexKind) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if existing, ok := d.kinds[string(addr.prefix())]; ok && existing != kind {
		return &ErrIndexKindMismatch{Address: addr, Existing: existing, Wanted: kind}
	}
	return nil
}

func (d *Database) isRegistered(addr Address) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.kinds[string(addr.prefix())]
	return ok
}

// Snapshot returns an immutable read view of the current committed state.
func (d *Database) Snapshot() *Snapshot {
	return &Snapshot{db: d, raw: d.raw}
}

// Fork returns a new exclusively-owned mutable overlay on top of a fresh
// Snapshot. Callers are expected to hold at most one live Fork at a time.
func (d *Database) Fork() *Fork {
	return newFork(d.Snapshot())
}

// Merge atomically applies patch's writes and any newly registered index
// kinds to the committed state. After Merge returns, a fresh Snapshot/Fork
// observes every change in patch.
func (d *Database) Merge(patch *Patch) error {
	if patch.Empty() {
		return nil
	}
	changes := make([]Change, 0, len(patch.changes)+len(patch.newKinds))
	changes = append(changes, patch.changes...)
	for prefix, kind := range patch.newKinds {
		metaKey := append([]byte{metaPrefixByte}, []byte(prefix)...)
		changes = append(changes, Change{Key: metaKey, Value: []byte{byte(kind)}})
	}

	if err := d.raw.WriteBatch(d.ctx(), changes); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for prefix, kind := range patch.newKinds {
		d.kinds[prefix] = kind
	}
	return nil
}

// Close releases the underlying RawStore.
func (d *Database) Close() error {
	return d.raw.Close()
}
