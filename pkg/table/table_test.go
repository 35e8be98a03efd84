package table

import (
	"fmt"
	"testing"

	"github.com/basalt-db/basalt/pkg/entity"
)

func keyEntity(id int) *entity.Entity {
	return &entity.Entity{Values: map[uint16][]byte{0: []byte(fmt.Sprintf("%04d", id))}}
}

func valueEntity(id int) *entity.Entity {
	return &entity.Entity{Values: map[uint16][]byte{0: []byte(fmt.Sprintf("value-%d", id))}}
}

func TestRawPutThenFind(t *testing.T) {
	tbl := NewTable(&Description{Name: "client"})
	k, v := keyEntity(1), valueEntity(1)

	if _, existed := tbl.RawPut(k, v); existed {
		t.Fatal("first put should report no previous slot")
	}
	slot, ok := tbl.Find(k)
	if !ok {
		t.Fatal("expected slot to be found after put")
	}
	if string(slot.Current().Values[0]) != "value-1" {
		t.Fatalf("unexpected stored value: %q", slot.Current().Values[0])
	}
}

func TestRawPutOverwritesExistingSlot(t *testing.T) {
	tbl := NewTable(&Description{Name: "client"})
	k := keyEntity(1)
	tbl.RawPut(k, valueEntity(1))

	_, existed := tbl.RawPut(k, valueEntity(2))
	if !existed {
		t.Fatal("second put on the same key should report an existing slot")
	}
	slot, _ := tbl.Find(k)
	if string(slot.Current().Values[0]) != "value-2" {
		t.Fatalf("expected overwritten value, got %q", slot.Current().Values[0])
	}
}

func TestFindMissingKey(t *testing.T) {
	tbl := NewTable(&Description{Name: "client"})
	if _, ok := tbl.Find(keyEntity(1)); ok {
		t.Fatal("expected no slot for an unpopulated key")
	}
}

func TestScanPartitionsNonOverlappingWindows(t *testing.T) {
	tbl := NewTable(&Description{Name: "client"})
	const total = 99
	for i := 1; i <= total; i++ {
		tbl.RawPut(keyEntity(i), valueEntity(i))
	}

	first := tbl.Scan(0, 5)
	if len(first) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(first))
	}
	second := tbl.Scan(10, 5)
	if len(second) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(second))
	}

	seen := make(map[string]bool)
	for skip := 0; skip < total; skip += 5 {
		for _, e := range tbl.Scan(skip, 5) {
			seen[string(e.KeyBytes)] = true
		}
	}
	if len(seen) != total {
		t.Fatalf("union of non-overlapping windows should cover all %d rows, got %d", total, len(seen))
	}
}

func TestScanBeyondRangeReturnsEmpty(t *testing.T) {
	tbl := NewTable(&Description{Name: "client"})
	tbl.RawPut(keyEntity(1), valueEntity(1))
	if out := tbl.Scan(10, 5); len(out) != 0 {
		t.Fatalf("expected empty scan past the end, got %d entries", len(out))
	}
}
