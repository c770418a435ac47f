package store

import "fmt"

// checkpointable is implemented by RawStore backends that can snapshot and
// restore their entire key space in memory. Only MemoryRaw does; a
// Badger-backed Database returns an error from Checkpoint, since the
// facility exists purely for deterministic round-change/crash-recovery
// tests, never for production rollback.
type checkpointable interface {
	Checkpoint() map[string][]byte
	Rollback(map[string][]byte)
}

// Checkpoint captures the Database's full state (raw key space and index
// kind registry) for later restoration via Rollback. Test-only: nothing in
// the consensus, executor or recovery packages calls it.
type Checkpoint struct {
	raw   map[string][]byte
	kinds map[string]IndexKind
}

// Checkpoint snapshots the current committed state.
func (d *Database) Checkpoint() (*Checkpoint, error) {
	cp, ok := d.raw.(checkpointable)
	if !ok {
		return nil, fmt.Errorf("store: checkpoint is only supported on an in-memory database")
	}
	d.mu.RLock()
	kinds := make(map[string]IndexKind, len(d.kinds))
	for k, v := range d.kinds {
		kinds[k] = v
	}
	d.mu.RUnlock()
	return &Checkpoint{raw: cp.Checkpoint(), kinds: kinds}, nil
}

// Rollback restores the Database to a previously captured Checkpoint.
func (d *Database) Rollback(c *Checkpoint) error {
	cp, ok := d.raw.(checkpointable)
	if !ok {
		return fmt.Errorf("store: rollback is only supported on an in-memory database")
	}
	cp.Rollback(c.raw)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.kinds = make(map[string]IndexKind, len(c.kinds))
	for k, v := range c.kinds {
		d.kinds[k] = v
	}
	return nil
}
