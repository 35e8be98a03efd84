package database

import (
	"encoding/json"
	"testing"

	"github.com/basalt-db/basalt/pkg/entity"
	"github.com/basalt-db/basalt/pkg/lock"
)

func mustBegin(t *testing.T, db *Database, mode lock.Mode) uint32 {
	t.Helper()
	id, err := db.Begin(mode)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	return id
}

func clientTableView() TableDescriptionView {
	return TableDescriptionView{
		Name: "Client",
		Key: entity.DescriptionView{
			Fields: map[string]entity.FieldView{"id": {TypeName: "u64"}},
		},
		Value: entity.DescriptionView{
			Fields: map[string]entity.FieldView{
				"full_name": {TypeName: "string"},
				"age":       {TypeName: "u64"},
			},
		},
	}
}

func TestCreateTableThenTablesMeta(t *testing.T) {
	db := New(nil)
	if err := db.CreateTable(clientTableView()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	names := db.TablesMeta()
	if len(names) != 1 || names[0] != "Client" {
		t.Fatalf("expected [Client], got %v", names)
	}
	if _, ok := db.TableMeta("Client"); !ok {
		t.Fatal("expected TableMeta to find Client")
	}
}

func TestCreateTableDuplicateFails(t *testing.T) {
	db := New(nil)
	if err := db.CreateTable(clientTableView()); err != nil {
		t.Fatalf("first CreateTable: %v", err)
	}
	if err := db.CreateTable(clientTableView()); err == nil {
		t.Fatal("expected duplicate table creation to fail")
	}
}

func TestCreateTableUnknownTypeFails(t *testing.T) {
	db := New(nil)
	view := TableDescriptionView{
		Name: "Bad",
		Key:  entity.DescriptionView{Fields: map[string]entity.FieldView{"id": {TypeName: "u64"}}},
		Value: entity.DescriptionView{
			Fields: map[string]entity.FieldView{"amount": {TypeName: "money"}},
		},
	}
	if err := db.CreateTable(view); err == nil {
		t.Fatal("expected unknown type to fail table creation")
	}
}

// TestS1EndToEnd mirrors scenario S1 through the facade.
func TestS1EndToEnd(t *testing.T) {
	db := New(nil)
	if err := db.CreateTable(clientTableView()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	tx := mustBegin(t, db, lock.Pessimistic)
	key := json.RawMessage(`{"id":2}`)
	value := json.RawMessage(`{"full_name":"John Doe","age":23}`)
	if err := db.Put(tx, "Client", key, value); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, found, err := db.Get(tx, "Client", key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("expected read-your-writes to find the staged row")
	}
	var gotObj, wantObj map[string]interface{}
	_ = json.Unmarshal(got, &gotObj)
	_ = json.Unmarshal(value, &wantObj)
	if gotObj["full_name"] != wantObj["full_name"] {
		t.Fatalf("unexpected value: %s", got)
	}

	if err := db.Commit(tx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx2 := mustBegin(t, db, lock.Pessimistic)
	got2, found2, err := db.Get(tx2, "Client", key)
	if err != nil {
		t.Fatalf("Get after commit: %v", err)
	}
	if !found2 {
		t.Fatal("expected committed row visible to a new transaction")
	}
	_ = json.Unmarshal(got2, &gotObj)
	if gotObj["full_name"] != wantObj["full_name"] {
		t.Fatalf("unexpected post-commit value: %s", got2)
	}
	db.Commit(tx2)
}

func TestGetMissingRowReturnsNotFound(t *testing.T) {
	db := New(nil)
	if err := db.CreateTable(clientTableView()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	tx := mustBegin(t, db, lock.Pessimistic)
	_, found, err := db.Get(tx, "Client", json.RawMessage(`{"id":999}`))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Fatal("expected no row for an unwritten key")
	}
}

func TestGetUnknownTableFails(t *testing.T) {
	db := New(nil)
	tx := mustBegin(t, db, lock.Pessimistic)
	if _, _, err := db.Get(tx, "NoSuchTable", json.RawMessage(`{"id":1}`)); err == nil {
		t.Fatal("expected TableNotFoundError")
	}
}

// TestS5DateTimeCanonicalization mirrors scenario S5 end to end through
// the facade.
func TestS5DateTimeCanonicalization(t *testing.T) {
	db := New(nil)
	view := TableDescriptionView{
		Name: "Times",
		Key:  entity.DescriptionView{Fields: map[string]entity.FieldView{"id": {TypeName: "u64"}}},
		Value: entity.DescriptionView{Fields: map[string]entity.FieldView{
			"date":      {TypeName: "date"},
			"date_time": {TypeName: "date_time"},
		}},
	}
	if err := db.CreateTable(view); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	tx := mustBegin(t, db, lock.Pessimistic)
	key := json.RawMessage(`{"id":1}`)
	value := json.RawMessage(`{"date":"2016-02-03","date_time":"2017-05-21T13:41:00+03:00"}`)
	if err := db.Put(tx, "Times", key, value); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := db.Commit(tx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx2 := mustBegin(t, db, lock.Pessimistic)
	got, _, err := db.Get(tx2, "Times", key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var row struct {
		Date     string `json:"date"`
		DateTime string `json:"date_time"`
	}
	if err := json.Unmarshal(got, &row); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if row.Date != "2016-02-03" {
		t.Fatalf("unexpected date: %s", row.Date)
	}
	if row.DateTime != "2017-05-21T10:41:00+00:00" {
		t.Fatalf("unexpected date_time: %s", row.DateTime)
	}
}

// TestS6Scan mirrors scenario S6.
func TestS6Scan(t *testing.T) {
	db := New(nil)
	if err := db.CreateTable(clientTableView()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	tx := mustBegin(t, db, lock.Pessimistic)
	for i := 1; i <= 99; i++ {
		key := json.RawMessage(`{"id":` + itoa(i) + `}`)
		value := json.RawMessage(`{"full_name":"person","age":` + itoa(i) + `}`)
		if err := db.Put(tx, "Client", key, value); err != nil {
			t.Fatalf("Put %d: %v", i, err)
		}
	}
	if err := db.Commit(tx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx2 := mustBegin(t, db, lock.Pessimistic)
	seen := make(map[string]bool)
	for skip := 0; skip < 99; skip += 5 {
		pairs, err := db.Scan(tx2, "Client", skip, 5)
		if err != nil {
			t.Fatalf("Scan at %d: %v", skip, err)
		}
		for _, p := range pairs {
			seen[string(p.Key)] = true
		}
	}
	if len(seen) != 99 {
		t.Fatalf("expected 99 distinct rows across windows, got %d", len(seen))
	}
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}
