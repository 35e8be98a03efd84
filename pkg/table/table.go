// Package table implements the table store (C3): a concurrent mapping from
// key-entity to value-slot. Operations here are intentionally low-level —
// raw_put, find, find_mut, scan — because locking and transaction
// visibility live one layer up, in pkg/txn. The table store never reads or
// writes a slot's lock state.
package table

import (
	"sort"

	"github.com/basalt-db/basalt/pkg/entity"
	"github.com/basalt-db/basalt/pkg/lock"
)

// Description names a table and its key/value schemas. Immutable once the
// table exists.
type Description struct {
	Name  string
	Key   *entity.Description
	Value *entity.Description
}

// Table is a concurrent mapping key-entity (canonical wire bytes) ->
// value-slot. Keys are stored as the string form of their canonical byte
// encoding (entity.Key), which is both comparable and a valid Go map key.
type Table struct {
	Description *Description
	data        concurrentMap
}

// NewTable creates an empty table for the given description.
func NewTable(desc *Description) *Table {
	return &Table{Description: desc, data: newConcurrentMap()}
}

// RawPut unconditionally publishes value under key, used by commit
// (publishing a write-set entry) and by recovery (replaying the log).
// It returns the slot that previously held the key, if any.
func (t *Table) RawPut(key *entity.Entity, value *entity.Entity) (previous *lock.Slot, existed bool) {
	k := entity.Key(key)
	if s, ok := t.data.Load(k); ok {
		s.Publish(value)
		return s, true
	}
	s := lock.NewSlot(value)
	t.data.Store(k, s)
	return nil, false
}

// Find returns the slot for key, if one exists.
func (t *Table) Find(key *entity.Entity) (*lock.Slot, bool) {
	return t.data.Load(entity.Key(key))
}

// FindMut is identical to Find: callers obtain a pointer to the live slot
// either way, since Go has no separate shared/exclusive map-lookup form.
// Kept as a distinct name to mirror the spec's vocabulary for callers that
// intend to mutate through the returned slot.
func (t *Table) FindMut(key *entity.Entity) (*lock.Slot, bool) {
	return t.Find(key)
}

// ScanEntry pairs a key's canonical wire bytes with its slot.
type ScanEntry struct {
	KeyBytes []byte
	Slot     *lock.Slot
}

// Scan returns an offset/limit window of entries. Because Go map iteration
// order is randomized, the table store imposes a deterministic order (keys
// sorted ascending by their canonical byte encoding) so that repeated,
// non-overlapping (skip, take) windows partition the full key set instead
// of overlapping or missing rows across calls.
func (t *Table) Scan(skip, take int) []ScanEntry {
	all := t.data.Snapshot()
	sort.Slice(all, func(i, j int) bool { return all[i].key < all[j].key })

	if skip >= len(all) {
		return nil
	}
	end := skip + take
	if end > len(all) {
		end = len(all)
	}
	window := all[skip:end]
	out := make([]ScanEntry, len(window))
	for i, e := range window {
		out[i] = ScanEntry{KeyBytes: []byte(e.key), Slot: e.slot}
	}
	return out
}
