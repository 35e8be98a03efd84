package types

import (
	"encoding/json"
	"testing"

	"github.com/basalt-db/basalt/pkg/ndgerrors"
)

func TestBuiltinRoundTrip(t *testing.T) {
	r := NewRegistry()

	cases := []struct {
		typeName string
		json     string
	}{
		{"string", `"John Doe"`},
		{"u64", `23`},
		{"i64", `-17`},
		{"date", `"2016-02-03"`},
	}

	for _, tc := range cases {
		codec, ok := r.Lookup(tc.typeName)
		if !ok {
			t.Fatalf("type %q not registered", tc.typeName)
		}
		buf, err := codec.Read(json.RawMessage(tc.json))
		if err != nil {
			t.Fatalf("%s: read(%s): %v", tc.typeName, tc.json, err)
		}
		out, err := codec.Write(buf)
		if err != nil {
			t.Fatalf("%s: write: %v", tc.typeName, err)
		}
		var want, got interface{}
		_ = json.Unmarshal([]byte(tc.json), &want)
		_ = json.Unmarshal(out, &got)
		wantB, _ := json.Marshal(want)
		gotB, _ := json.Marshal(got)
		if string(wantB) != string(gotB) {
			t.Fatalf("%s: round trip mismatch: want %s, got %s", tc.typeName, wantB, gotB)
		}
	}
}

func TestDateTimeCanonicalizesOffset(t *testing.T) {
	r := NewRegistry()
	codec, _ := r.Lookup("date_time")

	buf, err := codec.Read(json.RawMessage(`"2017-05-21T13:41:00+03:00"`))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out, err := codec.Write(buf)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	var s string
	if err := json.Unmarshal(out, &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := "2017-05-21T10:41:00+00:00"
	if s != want {
		t.Fatalf("got %q, want %q", s, want)
	}
}

func TestDateRejectsBadFormat(t *testing.T) {
	r := NewRegistry()
	codec, _ := r.Lookup("date")
	if _, err := codec.Read(json.RawMessage(`"not-a-date"`)); err == nil {
		t.Fatal("expected error for malformed date")
	}
}

func TestDateTimeRejectsNonRFC3339(t *testing.T) {
	r := NewRegistry()
	codec, _ := r.Lookup("date_time")
	if _, err := codec.Read(json.RawMessage(`"2017-05-21 13:41:00"`)); err == nil {
		t.Fatal("expected error for non RFC-3339 date_time")
	}
}

func TestRegisterDuplicateFails(t *testing.T) {
	r := NewRegistry()
	c := Codec{
		Name:  "string",
		Read:  func(raw json.RawMessage) ([]byte, error) { return nil, nil },
		Write: func(buf []byte) (json.RawMessage, error) { return nil, nil },
	}
	err := r.Register(c)
	if err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	var dup *ndgerrors.DuplicateTypeError
	if !asDuplicateType(err, &dup) {
		t.Fatalf("expected DuplicateTypeError, got %T: %v", err, err)
	}
}

func TestRegisterAfterCloseFails(t *testing.T) {
	r := NewRegistry()
	r.Close()
	c := Codec{
		Name:  "money",
		Read:  func(raw json.RawMessage) ([]byte, error) { return nil, nil },
		Write: func(buf []byte) (json.RawMessage, error) { return nil, nil },
	}
	err := r.Register(c)
	if err == nil {
		t.Fatal("expected registration after close to fail")
	}
	var dup *ndgerrors.DuplicateTypeError
	if !asDuplicateType(err, &dup) || !dup.Closed {
		t.Fatalf("expected a closed-registry DuplicateTypeError, got %v", err)
	}
}

func TestLookupUnknownType(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Lookup("money"); ok {
		t.Fatal("expected money to be unregistered")
	}
}

func asDuplicateType(err error, target **ndgerrors.DuplicateTypeError) bool {
	d, ok := err.(*ndgerrors.DuplicateTypeError)
	if ok {
		*target = d
	}
	return ok
}
