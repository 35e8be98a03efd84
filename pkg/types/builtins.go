package types

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/basalt-db/basalt/pkg/ndgerrors"
)

// dateLayout is the ISO calendar date form required by spec: YYYY-MM-DD.
const dateLayout = "2006-01-02"

// dateTimeWriteLayout renders UTC instants with an explicit "+00:00" offset
// rather than Go's default "Z" suffix, so a date_time written back after a
// round trip is byte-identical across any input offset that normalizes to
// the same instant.
const dateTimeWriteLayout = "2006-01-02T15:04:05-07:00"

func builtins() []Codec {
	return []Codec{
		stringCodec(),
		u64Codec(),
		i64Codec(),
		dateCodec(),
		dateTimeCodec(),
	}
}

func stringCodec() Codec {
	return Codec{
		Name: "string",
		Read: func(raw json.RawMessage) ([]byte, error) {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, &ndgerrors.IoFieldError{Side: ndgerrors.Read, Field: "string", Reason: err.Error()}
			}
			return []byte(s), nil
		},
		Write: func(buf []byte) (json.RawMessage, error) {
			out, err := json.Marshal(string(buf))
			if err != nil {
				return nil, &ndgerrors.IoFieldError{Side: ndgerrors.Write, Field: "string", Reason: err.Error()}
			}
			return out, nil
		},
	}
}

func u64Codec() Codec {
	return Codec{
		Name: "u64",
		Read: func(raw json.RawMessage) ([]byte, error) {
			var n uint64
			if err := json.Unmarshal(raw, &n); err != nil {
				return nil, &ndgerrors.IoFieldError{Side: ndgerrors.Read, Field: "u64", Reason: err.Error()}
			}
			buf := make([]byte, 8)
			binary.LittleEndian.PutUint64(buf, n)
			return buf, nil
		},
		Write: func(buf []byte) (json.RawMessage, error) {
			if len(buf) != 8 {
				return nil, &ndgerrors.IoFieldError{Side: ndgerrors.Write, Field: "u64", Reason: fmt.Sprintf("expected 8 bytes, got %d", len(buf))}
			}
			n := binary.LittleEndian.Uint64(buf)
			out, err := json.Marshal(n)
			if err != nil {
				return nil, &ndgerrors.IoFieldError{Side: ndgerrors.Write, Field: "u64", Reason: err.Error()}
			}
			return out, nil
		},
	}
}

func i64Codec() Codec {
	return Codec{
		Name: "i64",
		Read: func(raw json.RawMessage) ([]byte, error) {
			var n int64
			if err := json.Unmarshal(raw, &n); err != nil {
				return nil, &ndgerrors.IoFieldError{Side: ndgerrors.Read, Field: "i64", Reason: err.Error()}
			}
			buf := make([]byte, 8)
			binary.LittleEndian.PutUint64(buf, uint64(n))
			return buf, nil
		},
		Write: func(buf []byte) (json.RawMessage, error) {
			if len(buf) != 8 {
				return nil, &ndgerrors.IoFieldError{Side: ndgerrors.Write, Field: "i64", Reason: fmt.Sprintf("expected 8 bytes, got %d", len(buf))}
			}
			n := int64(binary.LittleEndian.Uint64(buf))
			out, err := json.Marshal(n)
			if err != nil {
				return nil, &ndgerrors.IoFieldError{Side: ndgerrors.Write, Field: "i64", Reason: err.Error()}
			}
			return out, nil
		},
	}
}

func dateCodec() Codec {
	return Codec{
		Name: "date",
		Read: func(raw json.RawMessage) ([]byte, error) {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, &ndgerrors.IoFieldError{Side: ndgerrors.Read, Field: "date", Reason: err.Error()}
			}
			if _, err := time.Parse(dateLayout, s); err != nil {
				return nil, &ndgerrors.IoFieldError{Side: ndgerrors.Read, Field: "date", Reason: "not a YYYY-MM-DD date: " + err.Error()}
			}
			return []byte(s), nil
		},
		Write: func(buf []byte) (json.RawMessage, error) {
			s := string(buf)
			if _, err := time.Parse(dateLayout, s); err != nil {
				return nil, &ndgerrors.IoFieldError{Side: ndgerrors.Write, Field: "date", Reason: "stored bytes are not a YYYY-MM-DD date: " + err.Error()}
			}
			out, err := json.Marshal(s)
			if err != nil {
				return nil, &ndgerrors.IoFieldError{Side: ndgerrors.Write, Field: "date", Reason: err.Error()}
			}
			return out, nil
		},
	}
}

func dateTimeCodec() Codec {
	return Codec{
		Name: "date_time",
		Read: func(raw json.RawMessage) ([]byte, error) {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, &ndgerrors.IoFieldError{Side: ndgerrors.Read, Field: "date_time", Reason: err.Error()}
			}
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return nil, &ndgerrors.IoFieldError{Side: ndgerrors.Read, Field: "date_time", Reason: "not RFC-3339: " + err.Error()}
			}
			buf := make([]byte, 8)
			binary.LittleEndian.PutUint64(buf, uint64(t.Unix()))
			return buf, nil
		},
		Write: func(buf []byte) (json.RawMessage, error) {
			if len(buf) != 8 {
				return nil, &ndgerrors.IoFieldError{Side: ndgerrors.Write, Field: "date_time", Reason: fmt.Sprintf("expected 8 bytes, got %d", len(buf))}
			}
			sec := int64(binary.LittleEndian.Uint64(buf))
			s := time.Unix(sec, 0).UTC().Format(dateTimeWriteLayout)
			out, err := json.Marshal(s)
			if err != nil {
				return nil, &ndgerrors.IoFieldError{Side: ndgerrors.Write, Field: "date_time", Reason: err.Error()}
			}
			return out, nil
		},
	}
}
