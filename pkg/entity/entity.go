package entity

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/basalt-db/basalt/pkg/ndgerrors"
	"github.com/basalt-db/basalt/pkg/types"
)

// Entity maps field-id to the field's byte-encoded value, covering exactly
// the field-ids declared by its description. Entities are compared and
// hashed by this mapping; insertion order is irrelevant, which is why the
// wire form (Encode) always walks field-ids in ascending order.
type Entity struct {
	Values map[uint16][]byte
}

// Clone returns a deep copy, used when staging a slot's current value into
// a transaction's write-set.
func (e *Entity) Clone() *Entity {
	cp := make(map[uint16][]byte, len(e.Values))
	for id, v := range e.Values {
		buf := make([]byte, len(v))
		copy(buf, v)
		cp[id] = buf
	}
	return &Entity{Values: cp}
}

// FromJSON decodes a JSON object into an entity conforming to desc. The
// object's key set must equal exactly the description's field names; any
// mismatch, or any per-field codec failure, is reported before a partial
// entity is ever built.
func FromJSON(raw json.RawMessage, desc *Description, registry *types.Registry) (*Entity, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, &ndgerrors.IoEntityError{Side: ndgerrors.Read, Reason: "not a JSON object: " + err.Error()}
	}

	declared := desc.Names()
	declaredSet := make(map[string]struct{}, len(declared))
	for _, n := range declared {
		declaredSet[n] = struct{}{}
	}

	var missing, extra []string
	for _, n := range declared {
		if _, ok := obj[n]; !ok {
			missing = append(missing, n)
		}
	}
	for n := range obj {
		if _, ok := declaredSet[n]; !ok {
			extra = append(extra, n)
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		sort.Strings(missing)
		sort.Strings(extra)
		return nil, &ndgerrors.IoEntityError{Side: ndgerrors.Read, Missing: missing, Extra: extra}
	}

	values := make(map[uint16][]byte, len(declared))
	for _, name := range declared {
		field, _ := desc.Field(name)
		codec, ok := registry.Lookup(field.TypeName)
		if !ok {
			return nil, &ndgerrors.IoFieldError{Side: ndgerrors.Read, Field: name, Reason: fmt.Sprintf("unknown type %q", field.TypeName)}
		}
		buf, err := codec.Read(obj[name])
		if err != nil {
			return nil, &ndgerrors.IoFieldError{Side: ndgerrors.Read, Field: name, Reason: err.Error()}
		}
		id, _ := desc.FieldID(name)
		values[id] = buf
	}
	return &Entity{Values: values}, nil
}

// ToJSON renders an entity back to a JSON object. Every field-id present
// in the entity must map to a known field name in desc; unmapped ids are
// reported together rather than on first failure.
func ToJSON(e *Entity, desc *Description, registry *types.Registry) (json.RawMessage, error) {
	var unmapped []string
	obj := make(map[string]json.RawMessage, len(e.Values))

	for id, buf := range e.Values {
		name, ok := desc.FieldName(id)
		if !ok {
			unmapped = append(unmapped, fmt.Sprintf("%d", id))
			continue
		}
		typeName, _ := desc.FieldType(id)
		codec, ok := registry.Lookup(typeName)
		if !ok {
			return nil, &ndgerrors.IoFieldError{Side: ndgerrors.Write, Field: name, Reason: fmt.Sprintf("unknown type %q", typeName)}
		}
		out, err := codec.Write(buf)
		if err != nil {
			return nil, &ndgerrors.IoFieldError{Side: ndgerrors.Write, Field: name, Reason: err.Error()}
		}
		obj[name] = out
	}
	if len(unmapped) > 0 {
		sort.Strings(unmapped)
		return nil, &ndgerrors.IoEntityError{Side: ndgerrors.Write, Extra: unmapped, Reason: "field-ids not present in description"}
	}

	out, err := json.Marshal(obj)
	if err != nil {
		return nil, &ndgerrors.IoEntityError{Side: ndgerrors.Write, Reason: err.Error()}
	}
	return out, nil
}
