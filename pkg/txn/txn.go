// Package txn implements the transaction manager (C5): transaction
// identity and lifecycle, the per-transaction write-set, and the
// commit/rollback protocol that publishes staged values into table slots
// (or discards them) and releases locks.
package txn

import (
	"sync"

	"github.com/basalt-db/basalt/pkg/entity"
	"github.com/basalt-db/basalt/pkg/lock"
	"github.com/basalt-db/basalt/pkg/ndgerrors"
	"github.com/basalt-db/basalt/pkg/table"
)

// writeSetKey identifies a staged row by table name and canonical key
// bytes.
type writeSetKey struct {
	table string
	key   string
}

// writeSetEntry is one staged modification: the slot it will publish into
// (nil for a brand-new key with no existing slot), the key/value entities
// needed to both publish and persist, and the owning table (for raw_put on
// first insert).
type writeSetEntry struct {
	table *table.Table
	key   *entity.Entity
	slot  *lock.Slot
	value *entity.Entity
}

// Transaction is a single unit of work: an id, a locking discipline, and a
// write-set private to this transaction until commit. The write-set is a
// plain map behind a mutex — it is never shared across goroutines until
// commit publishes it, so no lock-free structure is warranted.
type Transaction struct {
	ID   uint32
	Mode lock.Mode

	mu       sync.Mutex
	writeSet map[writeSetKey]*writeSetEntry
}

// CommitOp is one committed write handed to the persistence layer: the
// table it belongs to and the canonical wire-form bytes of its key and
// value, ready to append to the log without re-encoding.
type CommitOp struct {
	Table string
	Key   []byte
	Value []byte
}

// Manager owns the transaction registry: a concurrent id->transaction
// mapping plus the monotonic id counter.
type Manager struct {
	mu     sync.Mutex
	txs    map[uint32]*Transaction
	nextID uint32
}

// NewManager returns an empty transaction registry. The id counter begins
// at 1; 0 is reserved to mean "no transaction" / "unheld lock".
func NewManager() *Manager {
	return &Manager{txs: make(map[uint32]*Transaction), nextID: 1}
}

// Begin allocates the next id, skipping 0, wrapping back to 1 past u32
// maximum, and registers a new transaction in the given mode. A collision
// with a still-active id is impossible by construction — it would require
// 2^32 transactions outliving a single still-open one — but is checked and
// reported rather than silently overwriting the existing registration.
func (m *Manager) Begin(mode lock.Mode) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	if _, exists := m.txs[id]; exists {
		return 0, &ndgerrors.TransactionAlreadyStartedError{ID: id}
	}

	m.nextID++
	if m.nextID == 0 {
		m.nextID = 1
	}
	m.txs[id] = &Transaction{ID: id, Mode: mode, writeSet: make(map[writeSetKey]*writeSetEntry)}
	return id, nil
}

// Get returns the transaction registered under id.
func (m *Manager) Get(id uint32) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok {
		return nil, &ndgerrors.UndefinedTransactionError{ID: id}
	}
	return tx, nil
}

// List returns every active transaction id, for observability.
func (m *Manager) List() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uint32, 0, len(m.txs))
	for id := range m.txs {
		ids = append(ids, id)
	}
	return ids
}

func (m *Manager) remove(id uint32) {
	m.mu.Lock()
	delete(m.txs, id)
	m.mu.Unlock()
}

// StageRead resolves the value visible to tx for key in tbl: the write-set
// entry if tx already staged one, otherwise the table's current value via
// a lock acquisition (which itself stages a write-set entry, matching
// spec's single-lock-path-for-reads-too discipline). Returns (nil, nil)
// when no slot exists for key yet.
func (m *Manager) StageRead(tx *Transaction, tbl *table.Table, key *entity.Entity) (*entity.Entity, error) {
	wsKey := writeSetKey{table: tbl.Description.Name, key: entity.Key(key)}

	tx.mu.Lock()
	if e, ok := tx.writeSet[wsKey]; ok {
		v := e.value.Clone()
		tx.mu.Unlock()
		return v, nil
	}
	tx.mu.Unlock()

	slot, ok := tbl.Find(key)
	if !ok {
		return nil, nil
	}

	reentrant, acquired, current := slot.Acquire(tx.ID, tx.Mode)
	if !acquired {
		return nil, &ndgerrors.LockConflictError{Table: tbl.Description.Name, Key: wsKey.key}
	}
	_ = reentrant

	tx.mu.Lock()
	tx.writeSet[wsKey] = &writeSetEntry{table: tbl, key: key, slot: slot, value: current}
	tx.mu.Unlock()

	return current.Clone(), nil
}

// StageWrite ensures tx holds the lock for key in tbl (acquiring it, or
// recording a fresh insert if no slot exists yet), then sets the staged
// value to v.
func (m *Manager) StageWrite(tx *Transaction, tbl *table.Table, key *entity.Entity, v *entity.Entity) error {
	wsKey := writeSetKey{table: tbl.Description.Name, key: entity.Key(key)}

	tx.mu.Lock()
	if e, ok := tx.writeSet[wsKey]; ok {
		e.value = v
		tx.mu.Unlock()
		return nil
	}
	tx.mu.Unlock()

	slot, ok := tbl.Find(key)
	if !ok {
		tx.mu.Lock()
		tx.writeSet[wsKey] = &writeSetEntry{table: tbl, key: key, slot: nil, value: v}
		tx.mu.Unlock()
		return nil
	}

	_, acquired, _ := slot.Acquire(tx.ID, tx.Mode)
	if !acquired {
		return &ndgerrors.LockConflictError{Table: tbl.Description.Name, Key: wsKey.key}
	}

	tx.mu.Lock()
	tx.writeSet[wsKey] = &writeSetEntry{table: tbl, key: key, slot: slot, value: v}
	tx.mu.Unlock()
	return nil
}

// Commit publishes every write-set entry and releases its lock, handing
// the set of committed ops to persist first. Per the append-before-publish
// rule, persist is called with the full batch before any in-memory
// publication; if it fails, commit rolls the transaction back in memory
// and returns the error untouched.
func (m *Manager) Commit(tx *Transaction, persist func([]CommitOp) error) error {
	tx.mu.Lock()
	entries := make([]*writeSetEntry, 0, len(tx.writeSet))
	for _, e := range tx.writeSet {
		entries = append(entries, e)
	}
	tx.mu.Unlock()

	ops := make([]CommitOp, len(entries))
	for i, e := range entries {
		ops[i] = CommitOp{
			Table: e.table.Description.Name,
			Key:   entity.Encode(e.key),
			Value: entity.Encode(e.value),
		}
	}

	if persist != nil {
		if err := persist(ops); err != nil {
			m.rollbackEntries(tx, entries)
			m.remove(tx.ID)
			return err
		}
	}

	for _, e := range entries {
		if e.slot != nil {
			e.slot.Publish(e.value)
			e.slot.Release(tx.ID)
		} else {
			e.table.RawPut(e.key, e.value)
		}
	}

	tx.mu.Lock()
	tx.writeSet = nil
	tx.mu.Unlock()
	m.remove(tx.ID)
	return nil
}

// Rollback releases every write-set entry's lock without publishing,
// discards insert-only entries, and removes the transaction.
func (m *Manager) Rollback(tx *Transaction) error {
	tx.mu.Lock()
	entries := make([]*writeSetEntry, 0, len(tx.writeSet))
	for _, e := range tx.writeSet {
		entries = append(entries, e)
	}
	tx.mu.Unlock()

	m.rollbackEntries(tx, entries)

	tx.mu.Lock()
	tx.writeSet = nil
	tx.mu.Unlock()
	m.remove(tx.ID)
	return nil
}

func (m *Manager) rollbackEntries(tx *Transaction, entries []*writeSetEntry) {
	for _, e := range entries {
		if e.slot != nil {
			e.slot.Release(tx.ID)
		}
	}
}
