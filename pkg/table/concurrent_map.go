package table

import (
	"sync"

	"github.com/basalt-db/basalt/pkg/lock"
)

// concurrentMap wraps sync.Map with the narrow, typed surface the table
// store needs. sync.Map is the idiomatic fit here, the same way the
// teacher's storage layer reaches for a sharded concurrent map: table
// population only grows (no delete in scope) and is read far more often
// than written, which is exactly sync.Map's optimized access pattern.
type concurrentMap struct {
	m *sync.Map
}

func newConcurrentMap() concurrentMap {
	return concurrentMap{m: &sync.Map{}}
}

func (c concurrentMap) Load(key string) (*lock.Slot, bool) {
	v, ok := c.m.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*lock.Slot), true
}

func (c concurrentMap) Store(key string, s *lock.Slot) {
	c.m.Store(key, s)
}

type snapshotEntry struct {
	key  string
	slot *lock.Slot
}

func (c concurrentMap) Snapshot() []snapshotEntry {
	var out []snapshotEntry
	c.m.Range(func(k, v interface{}) bool {
		out = append(out, snapshotEntry{key: k.(string), slot: v.(*lock.Slot)})
		return true
	})
	return out
}
