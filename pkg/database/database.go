// Package database implements the database facade (C6): the type
// registry, the table-name -> table mapping, and the transaction manager,
// wired together behind the operations the HTTP boundary calls directly.
package database

import (
	"encoding/json"
	"sync"

	"github.com/basalt-db/basalt/pkg/entity"
	"github.com/basalt-db/basalt/pkg/lock"
	"github.com/basalt-db/basalt/pkg/ndgerrors"
	"github.com/basalt-db/basalt/pkg/table"
	"github.com/basalt-db/basalt/pkg/txn"
	"github.com/basalt-db/basalt/pkg/types"
)

// Persister is the narrow slice of the persistence log the facade needs:
// appending committed ops, and recording a table's schema. Expressed as an
// interface so pkg/database never imports pkg/persistence directly — the
// dependency runs the other way (persistence replays into a database at
// startup), which would otherwise be an import cycle.
type Persister interface {
	Append(ops []txn.CommitOp) error
	SaveTableDescription(name string, view TableDescriptionView) error
	MaybeSnapshot() error
}

// TableDescriptionView is the JSON admission shape of POST /meta/table:
// {"name": ..., "key": {"fields": {...}}, "value": {"fields": {...}}}.
type TableDescriptionView struct {
	Name  string                `json:"name"`
	Key   entity.DescriptionView `json:"key"`
	Value entity.DescriptionView `json:"value"`
}

// Pair is one (key, value) row as rendered back to JSON, e.g. for a scan.
type Pair struct {
	Key   json.RawMessage `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Database is the single process-wide facade handed to request handlers
// as an injected collaborator — no package-level globals.
type Database struct {
	registry *types.Registry
	txns     *txn.Manager
	persist  Persister

	tablesMu sync.RWMutex
	tables   map[string]*table.Table
	order    []string // insertion order, for tables_meta()

	// snapshotGate is the coarse lock from spec §4.7/§5: a snapshot takes
	// it exclusively to block new commits while it dumps in-memory state;
	// ordinary commits take it for reading only, so they can proceed
	// concurrently with each other.
	snapshotGate sync.RWMutex
}

// New returns a database with a registry pre-populated with built-in
// types and no tables. persist may be nil for a memory-only instance.
func New(persist Persister) *Database {
	return &Database{
		registry: types.NewRegistry(),
		txns:     txn.NewManager(),
		persist:  persist,
		tables:   make(map[string]*table.Table),
	}
}

// Registry exposes the type registry for callers that need direct access
// (e.g. persistence replay decoding a stored schema).
func (db *Database) Registry() *types.Registry {
	return db.registry
}

// CloseRegistration closes the type registry to further registrations,
// called once bootstrap (built-ins plus any configured extensions) is
// done.
func (db *Database) CloseRegistration() {
	db.registry.Close()
}

// RegisterType adds a user-defined codec. Startup only.
func (db *Database) RegisterType(c types.Codec) error {
	return db.registry.Register(c)
}

// CreateTable validates the schema, assigns dense field-ids, and inserts
// the table. Creation of an existing name fails with DuplicateTableError.
func (db *Database) CreateTable(view TableDescriptionView) error {
	keyDesc, err := entity.ToDescription(view.Key, db.registry)
	if err != nil {
		return err
	}
	valueDesc, err := entity.ToDescription(view.Value, db.registry)
	if err != nil {
		return err
	}

	db.tablesMu.Lock()
	defer db.tablesMu.Unlock()
	if _, exists := db.tables[view.Name]; exists {
		return &ndgerrors.DuplicateTableError{Name: view.Name}
	}

	desc := &table.Description{Name: view.Name, Key: keyDesc, Value: valueDesc}
	db.tables[view.Name] = table.NewTable(desc)
	db.order = append(db.order, view.Name)

	if db.persist != nil {
		if err := db.persist.SaveTableDescription(view.Name, view); err != nil {
			delete(db.tables, view.Name)
			db.order = db.order[:len(db.order)-1]
			return &ndgerrors.PersistenceFailureError{Detail: err.Error()}
		}
	}
	return nil
}

// RestoreTable re-inserts a table produced by persistence replay, bypassing
// the duplicate-name check and the description re-save (the log is the
// source of truth already). Not for use outside recovery.
func (db *Database) RestoreTable(desc *table.Description) *table.Table {
	db.tablesMu.Lock()
	defer db.tablesMu.Unlock()
	t := table.NewTable(desc)
	db.tables[desc.Name] = t
	db.order = append(db.order, desc.Name)
	return t
}

func (db *Database) lookupTable(name string) (*table.Table, error) {
	db.tablesMu.RLock()
	defer db.tablesMu.RUnlock()
	t, ok := db.tables[name]
	if !ok {
		return nil, &ndgerrors.TableNotFoundError{Name: name}
	}
	return t, nil
}

// Begin allocates a new transaction in the given mode and returns its id.
func (db *Database) Begin(mode lock.Mode) (uint32, error) {
	return db.txns.Begin(mode)
}

// TransactionMode returns the locking discipline a transaction was
// started with, so callers can validate a request was addressed to the
// mode it actually belongs to.
func (db *Database) TransactionMode(txID uint32) (lock.Mode, error) {
	tx, err := db.txns.Get(txID)
	if err != nil {
		return 0, err
	}
	return tx.Mode, nil
}

// Put decodes key and value via the entity codec and stages the write.
func (db *Database) Put(txID uint32, tableName string, keyJSON, valueJSON json.RawMessage) error {
	tbl, err := db.lookupTable(tableName)
	if err != nil {
		return err
	}
	tx, err := db.txns.Get(txID)
	if err != nil {
		return err
	}
	key, err := entity.FromJSON(keyJSON, tbl.Description.Key, db.registry)
	if err != nil {
		return err
	}
	value, err := entity.FromJSON(valueJSON, tbl.Description.Value, db.registry)
	if err != nil {
		return err
	}
	return db.txns.StageWrite(tx, tbl, key, value)
}

// Get decodes key, stages a read, and encodes the result back to JSON.
// Returns (nil, false, nil) when no row exists for key.
func (db *Database) Get(txID uint32, tableName string, keyJSON json.RawMessage) (json.RawMessage, bool, error) {
	tbl, err := db.lookupTable(tableName)
	if err != nil {
		return nil, false, err
	}
	tx, err := db.txns.Get(txID)
	if err != nil {
		return nil, false, err
	}
	key, err := entity.FromJSON(keyJSON, tbl.Description.Key, db.registry)
	if err != nil {
		return nil, false, err
	}
	value, err := db.txns.StageRead(tx, tbl, key)
	if err != nil {
		return nil, false, err
	}
	if value == nil {
		return nil, false, nil
	}
	out, err := entity.ToJSON(value, tbl.Description.Value, db.registry)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// Scan iterates the table store's (skip, take) window, acquiring each row
// the same way a read would. In optimistic mode, the first lock conflict
// aborts the whole scan (the engine-wide rule from spec §4.6).
func (db *Database) Scan(txID uint32, tableName string, skip, take int) ([]Pair, error) {
	tbl, err := db.lookupTable(tableName)
	if err != nil {
		return nil, err
	}
	tx, err := db.txns.Get(txID)
	if err != nil {
		return nil, err
	}

	entries := tbl.Scan(skip, take)
	out := make([]Pair, 0, len(entries))
	for _, e := range entries {
		keyEntity, decErr := entity.Decode(e.KeyBytes)
		if decErr != nil {
			return nil, &ndgerrors.PersistenceFailureError{Detail: decErr.Error()}
		}
		value, readErr := db.txns.StageRead(tx, tbl, keyEntity)
		if readErr != nil {
			return nil, readErr
		}
		if value == nil {
			continue // row disappeared between the scan snapshot and the lock
		}
		keyJSON, err := entity.ToJSON(keyEntity, tbl.Description.Key, db.registry)
		if err != nil {
			return nil, err
		}
		valueJSON, err := entity.ToJSON(value, tbl.Description.Value, db.registry)
		if err != nil {
			return nil, err
		}
		out = append(out, Pair{Key: keyJSON, Value: valueJSON})
	}
	return out, nil
}

// Commit publishes a transaction's write-set, persisting it first. It
// takes the snapshot gate for reading, so it can run concurrently with
// other commits but never while a snapshot is in progress. Once the gate
// is released, it gives the persistence layer a chance to snapshot if its
// threshold has been crossed — done outside the gate's read-lock since a
// snapshot itself needs the gate exclusively.
func (db *Database) Commit(txID uint32) error {
	tx, err := db.txns.Get(txID)
	if err != nil {
		return err
	}

	db.snapshotGate.RLock()
	commitErr := db.txns.Commit(tx, func(ops []txn.CommitOp) error {
		if db.persist == nil {
			return nil
		}
		if err := db.persist.Append(ops); err != nil {
			return &ndgerrors.PersistenceFailureError{Detail: err.Error()}
		}
		return nil
	})
	db.snapshotGate.RUnlock()

	if commitErr != nil {
		return commitErr
	}
	if db.persist != nil {
		return db.persist.MaybeSnapshot()
	}
	return nil
}

// Rollback discards a transaction's write-set and releases its locks.
func (db *Database) Rollback(txID uint32) error {
	tx, err := db.txns.Get(txID)
	if err != nil {
		return err
	}
	return db.txns.Rollback(tx)
}

// ListTransactions returns every active transaction id.
func (db *Database) ListTransactions() []uint32 {
	return db.txns.List()
}

// TablesMeta lists every known table name, in creation order.
func (db *Database) TablesMeta() []string {
	db.tablesMu.RLock()
	defer db.tablesMu.RUnlock()
	out := make([]string, len(db.order))
	copy(out, db.order)
	return out
}

// TableMeta returns the schema view for one table.
func (db *Database) TableMeta(name string) (TableDescriptionView, bool) {
	db.tablesMu.RLock()
	defer db.tablesMu.RUnlock()
	t, ok := db.tables[name]
	if !ok {
		return TableDescriptionView{}, false
	}
	return TableDescriptionView{
		Name:  name,
		Key:   t.Description.Key.View(),
		Value: t.Description.Value.View(),
	}, true
}

// WithSnapshotBarrier runs fn while holding the snapshot gate exclusively,
// blocking new commits until fn returns. Used by the persistence layer's
// threshold-triggered snapshot; ordinary reads are unaffected because they
// never take this gate at all.
func (db *Database) WithSnapshotBarrier(fn func() error) error {
	db.snapshotGate.Lock()
	defer db.snapshotGate.Unlock()
	return fn()
}

// Tables exposes the live table set for the persistence layer's snapshot
// walk. Callers must only read (Scan et al.), never mutate, without going
// through the facade.
func (db *Database) Tables() map[string]*table.Table {
	db.tablesMu.RLock()
	defer db.tablesMu.RUnlock()
	out := make(map[string]*table.Table, len(db.tables))
	for k, v := range db.tables {
		out[k] = v
	}
	return out
}
