// Package persistence implements the persistence log (C7): the append-only
// binary transaction log, the JSON schema/snapshot files under meta/, and
// the startup replay sequence that rebuilds an in-memory database from
// them. Record framing and the CRC32 (Castagnoli) checksum choice mirror
// the teacher's write-ahead log package.
package persistence

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/basalt-db/basalt/pkg/database"
	"github.com/basalt-db/basalt/pkg/entity"
	"github.com/basalt-db/basalt/pkg/ndgerrors"
	"github.com/basalt-db/basalt/pkg/txn"
)

// opInsert is the only log operation spec.md defines.
const opInsert uint8 = 1

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

const transactionsFile = "transactions.ndg"

// Log is the on-disk append-only transaction log plus the meta/ schema and
// snapshot files that sit beside it. It implements database.Persister, so
// a *Log is handed to database.New directly.
type Log struct {
	dir       string
	threshold int

	mu      sync.Mutex
	f       *os.File
	w       *bufio.Writer
	pending int // committed transactions since the last snapshot

	db *database.Database // bound after construction; nil until Bind
}

// Open creates (or reuses) the log directory and opens transactions.ndg for
// append, returning a Log ready to Bind to a database. threshold is the
// number of committed transactions after which a snapshot is triggered.
func Open(dir string, threshold int) (*Log, error) {
	if err := os.MkdirAll(filepath.Join(dir, "meta"), 0o755); err != nil {
		return nil, &ndgerrors.PersistenceFailureError{Detail: err.Error()}
	}
	f, err := os.OpenFile(filepath.Join(dir, transactionsFile), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, &ndgerrors.PersistenceFailureError{Detail: err.Error()}
	}
	return &Log{
		dir:       dir,
		threshold: threshold,
		f:         f,
		w:         bufio.NewWriter(f),
	}, nil
}

// Bind attaches the database this log serves, needed only for the
// snapshot walk (Tables(), WithSnapshotBarrier()). Recovery calls this
// once, right after database.New.
func (l *Log) Bind(db *database.Database) {
	l.db = db
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		return err
	}
	return l.f.Close()
}

// Append writes one record per commit op, then flushes and fsyncs — the
// append-before-publish half of the durability contract; the caller
// (pkg/database, via pkg/txn's injected persist function) only proceeds to
// the in-memory publish after this returns nil.
func (l *Log) Append(ops []txn.CommitOp) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, op := range ops {
		if err := writeRecord(l.w, op); err != nil {
			return &ndgerrors.PersistenceFailureError{Detail: err.Error()}
		}
	}
	if err := l.w.Flush(); err != nil {
		return &ndgerrors.PersistenceFailureError{Detail: err.Error()}
	}
	if err := l.f.Sync(); err != nil {
		return &ndgerrors.PersistenceFailureError{Detail: err.Error()}
	}

	l.pending++
	return nil
}

// MaybeSnapshot runs a snapshot if the pending-transaction count has
// exceeded the configured threshold, otherwise it is a no-op. It reads and
// clears the pending count under l.mu, then releases l.mu before taking
// the database's snapshot gate: the gate must always be acquired before
// l.mu, never the other way around, or a commit holding the gate's read
// side while blocked on l.mu (inside Append) deadlocks against a snapshot
// holding l.mu while blocked on the gate's write side. Callers must invoke
// this after Commit has returned, not from within the persist callback
// Commit passes to pkg/txn.
func (l *Log) MaybeSnapshot() error {
	l.mu.Lock()
	fire := l.db != nil && l.pending > l.threshold
	if fire {
		l.pending = 0
	}
	l.mu.Unlock()

	if !fire {
		return nil
	}
	return l.snapshot()
}

func writeRecord(w io.Writer, op txn.CommitOp) error {
	name := []byte(op.Table)
	payload := make([]byte, 0, 1+2+len(name)+4+len(op.Key)+4+len(op.Value))
	payload = append(payload, opInsert)
	nameLen := make([]byte, 2)
	binary.LittleEndian.PutUint16(nameLen, uint16(len(name)))
	payload = append(payload, nameLen...)
	payload = append(payload, name...)
	keyLen := make([]byte, 4)
	binary.LittleEndian.PutUint32(keyLen, uint32(len(op.Key)))
	payload = append(payload, keyLen...)
	payload = append(payload, op.Key...)
	valLen := make([]byte, 4)
	binary.LittleEndian.PutUint32(valLen, uint32(len(op.Value)))
	payload = append(payload, valLen...)
	payload = append(payload, op.Value...)

	frameLen := make([]byte, 4)
	binary.LittleEndian.PutUint32(frameLen, uint32(len(payload)))
	if _, err := w.Write(frameLen); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	crc := make([]byte, 4)
	binary.LittleEndian.PutUint32(crc, crc32.Checksum(payload, castagnoli))
	_, err := w.Write(crc)
	return err
}

// record is one decoded log entry, still in its wire-encoded key/value
// form — the caller resolves field-ids against a recovered table
// description, mirroring spec.md's "field-ids resolved against the
// on-disk table description at replay" rule.
type record struct {
	op    uint8
	table string
	key   []byte
	value []byte
}

// readRecord reads one frame from r. ok=false (with err=nil) signals a
// clean end of stream or a truncated/corrupt tail record — both are
// "stop replay here", never a hard failure, per spec.md §4.7's
// malformed-tail-record rule.
func readRecord(r io.Reader) (rec record, ok bool, err error) {
	frameLen := make([]byte, 4)
	if _, err := io.ReadFull(r, frameLen); err != nil {
		return record{}, false, nil
	}
	n := binary.LittleEndian.Uint32(frameLen)
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return record{}, false, nil
	}
	crcBytes := make([]byte, 4)
	if _, err := io.ReadFull(r, crcBytes); err != nil {
		return record{}, false, nil
	}
	want := binary.LittleEndian.Uint32(crcBytes)
	if crc32.Checksum(payload, castagnoli) != want {
		return record{}, false, nil
	}

	off := 0
	if len(payload) < 1 {
		return record{}, false, nil
	}
	op := payload[off]
	off++
	if off+2 > len(payload) {
		return record{}, false, nil
	}
	nameLen := int(binary.LittleEndian.Uint16(payload[off:]))
	off += 2
	if off+nameLen > len(payload) {
		return record{}, false, nil
	}
	name := string(payload[off : off+nameLen])
	off += nameLen
	if off+4 > len(payload) {
		return record{}, false, nil
	}
	keyLen := int(binary.LittleEndian.Uint32(payload[off:]))
	off += 4
	if off+keyLen > len(payload) {
		return record{}, false, nil
	}
	key := payload[off : off+keyLen]
	off += keyLen
	if off+4 > len(payload) {
		return record{}, false, nil
	}
	valLen := int(binary.LittleEndian.Uint32(payload[off:]))
	off += 4
	if off+valLen > len(payload) {
		return record{}, false, nil
	}
	val := payload[off : off+valLen]

	return record{op: op, table: name, key: key, value: val}, true, nil
}

// entityFromWire is a thin readability wrapper around entity.Decode, kept
// here so log.go and recover.go share one name for "parse the wire form
// found in a log/snapshot file".
func entityFromWire(buf []byte) (*entity.Entity, error) {
	return entity.Decode(buf)
}
