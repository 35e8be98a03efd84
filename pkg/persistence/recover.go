package persistence

import (
	"os"
	"path/filepath"

	"github.com/basalt-db/basalt/pkg/database"
	"github.com/basalt-db/basalt/pkg/entity"
	"github.com/basalt-db/basalt/pkg/ndgerrors"
	"github.com/basalt-db/basalt/pkg/table"
)

// Recover rebuilds an in-memory database from the artifacts under dir:
// meta/description.ndg, each table's meta/<name>.tbl (schema, plus rows if
// a snapshot ever ran), and finally a sequential replay of
// transactions.ndg. It returns a database.Database wired to the returned
// Log (already Bind-ed), ready to serve traffic.
//
// I/O errors reading meta are fatal, per spec.md §4.7 ("data
// unrecoverable"); a malformed tail record in the log truncates replay at
// that point rather than failing startup.
func Recover(dir string, threshold int) (*database.Database, *Log, error) {
	log, err := Open(dir, threshold)
	if err != nil {
		return nil, nil, err
	}

	db := database.New(log)
	log.Bind(db)

	desc, err := readDescriptionFile(log.descriptionPath())
	if err != nil {
		return nil, nil, &ndgerrors.PersistenceFailureError{Detail: err.Error()}
	}

	tables := make(map[string]*table.Table, len(desc.TableNames))
	for _, name := range desc.TableNames {
		tf, err := readTableFile(log.tablePath(name))
		if err != nil {
			return nil, nil, &ndgerrors.PersistenceFailureError{Detail: err.Error()}
		}
		keyDesc, err := entity.ToDescription(tf.Key, db.Registry())
		if err != nil {
			return nil, nil, &ndgerrors.PersistenceFailureError{Detail: err.Error()}
		}
		valueDesc, err := entity.ToDescription(tf.Value, db.Registry())
		if err != nil {
			return nil, nil, &ndgerrors.PersistenceFailureError{Detail: err.Error()}
		}
		t := db.RestoreTable(&table.Description{Name: name, Key: keyDesc, Value: valueDesc})
		for _, row := range tf.Rows {
			key, value, err := decodeRow(row)
			if err != nil {
				return nil, nil, &ndgerrors.PersistenceFailureError{Detail: err.Error()}
			}
			t.RawPut(key, value)
		}
		tables[name] = t
	}

	if err := replayLog(dir, tables); err != nil {
		return nil, nil, err
	}

	db.CloseRegistration()
	return db, log, nil
}

func replayLog(dir string, tables map[string]*table.Table) error {
	f, err := os.Open(filepath.Join(dir, transactionsFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return &ndgerrors.PersistenceFailureError{Detail: err.Error()}
	}
	defer f.Close()

	for {
		rec, ok, err := readRecord(f)
		if err != nil {
			return &ndgerrors.PersistenceFailureError{Detail: err.Error()}
		}
		if !ok {
			break
		}
		t, known := tables[rec.table]
		if !known {
			continue // table dropped from description.ndg since this record was written; skip
		}
		key, err := entityFromWire(rec.key)
		if err != nil {
			break // malformed tail record: stop replay here, per spec.md §4.7
		}
		value, err := entityFromWire(rec.value)
		if err != nil {
			break
		}
		t.RawPut(key, value)
	}
	return nil
}
