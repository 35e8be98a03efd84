package persistence

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/basalt-db/basalt/pkg/database"
	"github.com/basalt-db/basalt/pkg/entity"
	"github.com/basalt-db/basalt/pkg/ndgerrors"
)

// descriptionFile is the JSON shape of meta/description.ndg.
type descriptionFile struct {
	TableNames []string `json:"table_names"`
}

// tableFile is the JSON shape of meta/<name>.tbl: the table's schema view,
// plus — once at least one snapshot has run — its current rows. Folding
// the snapshot into this file avoids inventing a fourth artifact kind
// beyond the three spec.md names.
type tableFile struct {
	Name  string                 `json:"name"`
	Key   entity.DescriptionView `json:"key"`
	Value entity.DescriptionView `json:"value"`
	Rows  []rowFile              `json:"rows,omitempty"`
}

// rowFile is one snapshot row, with key/value stored as hex of their
// canonical wire-form bytes — self-describing (field-ids, not names), so
// no schema is needed to decode them back into entities.
type rowFile struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (l *Log) metaDir() string {
	return filepath.Join(l.dir, "meta")
}

func (l *Log) descriptionPath() string {
	return filepath.Join(l.metaDir(), "description.ndg")
}

func (l *Log) tablePath(name string) string {
	return filepath.Join(l.metaDir(), name+".tbl")
}

// SaveTableDescription writes meta/<name>.tbl for a newly created table
// (no rows yet) and appends name to meta/description.ndg. Implements
// database.Persister.
func (l *Log) SaveTableDescription(name string, view database.TableDescriptionView) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tf := tableFile{Name: name, Key: view.Key, Value: view.Value}
	if err := writeJSONAtomic(l.tablePath(name), tf); err != nil {
		return &ndgerrors.PersistenceFailureError{Detail: err.Error()}
	}

	desc, err := readDescriptionFile(l.descriptionPath())
	if err != nil {
		return &ndgerrors.PersistenceFailureError{Detail: err.Error()}
	}
	for _, n := range desc.TableNames {
		if n == name {
			return nil
		}
	}
	desc.TableNames = append(desc.TableNames, name)
	if err := writeJSONAtomic(l.descriptionPath(), desc); err != nil {
		return &ndgerrors.PersistenceFailureError{Detail: err.Error()}
	}
	return nil
}

func readDescriptionFile(path string) (descriptionFile, error) {
	buf, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return descriptionFile{}, nil
	}
	if err != nil {
		return descriptionFile{}, err
	}
	var df descriptionFile
	if err := json.Unmarshal(buf, &df); err != nil {
		return descriptionFile{}, err
	}
	return df, nil
}

func readTableFile(path string) (tableFile, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return tableFile{}, err
	}
	var tf tableFile
	if err := json.Unmarshal(buf, &tf); err != nil {
		return tableFile{}, err
	}
	return tf, nil
}

// writeJSONAtomic writes a temp file in the same directory, then renames it
// over the destination, so a crash mid-write never leaves a half-written
// meta file — the same atomic-write-then-rename discipline the teacher's
// checkpoint writer uses.
func writeJSONAtomic(path string, v interface{}) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func encodeRow(key, value *entity.Entity) rowFile {
	return rowFile{
		Key:   hex.EncodeToString(entity.Encode(key)),
		Value: hex.EncodeToString(entity.Encode(value)),
	}
}

func decodeRow(r rowFile) (key, value *entity.Entity, err error) {
	keyBytes, err := hex.DecodeString(r.Key)
	if err != nil {
		return nil, nil, err
	}
	valBytes, err := hex.DecodeString(r.Value)
	if err != nil {
		return nil, nil, err
	}
	key, err = entity.Decode(keyBytes)
	if err != nil {
		return nil, nil, err
	}
	value, err = entity.Decode(valBytes)
	if err != nil {
		return nil, nil, err
	}
	return key, value, nil
}

// snapshot dumps the bound database's current state table-by-table and
// truncates the transaction log. Called with l.mu NOT held (MaybeSnapshot
// releases it first): takes the database's snapshot gate exclusively so
// no commit can publish mid-dump, and only reacquires l.mu for the brief
// truncateLog call that touches the shared writer/file. Acquiring the
// gate before l.mu here, matching the gate-then-l.mu order Commit's
// Append call observes, is what keeps the two paths from inverting.
func (l *Log) snapshot() error {
	return l.db.WithSnapshotBarrier(func() error {
		tables := l.db.Tables()
		names := make([]string, 0, len(tables))
		for name := range tables {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			meta, ok := l.db.TableMeta(name)
			if !ok {
				continue
			}
			tf := tableFile{Name: name, Key: meta.Key, Value: meta.Value}
			for _, e := range tables[name].Scan(0, maxScanWindow) {
				keyEntity, err := entity.Decode(e.KeyBytes)
				if err != nil {
					return &ndgerrors.PersistenceFailureError{Detail: err.Error()}
				}
				tf.Rows = append(tf.Rows, encodeRow(keyEntity, e.Slot.Current()))
			}
			if err := writeJSONAtomic(l.tablePath(name), tf); err != nil {
				return &ndgerrors.PersistenceFailureError{Detail: err.Error()}
			}
		}

		l.mu.Lock()
		err := l.truncateLog()
		l.mu.Unlock()
		if err != nil {
			return &ndgerrors.PersistenceFailureError{Detail: err.Error()}
		}
		return nil
	})
}

// maxScanWindow bounds a single snapshot pass's table.Scan call. Tables
// larger than this would need a paging snapshot walk, which is out of
// scope for the in-memory working-set size this design targets.
const maxScanWindow = 1 << 30

func (l *Log) truncateLog() error {
	if err := l.w.Flush(); err != nil {
		return err
	}
	if err := l.f.Truncate(0); err != nil {
		return err
	}
	if _, err := l.f.Seek(0, 0); err != nil {
		return err
	}
	l.w.Reset(l.f)
	return nil
}
