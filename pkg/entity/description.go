// Package entity implements the entity codec (C2): composing per-field
// type-registry codecs into whole-record JSON<->bytes conversion, and the
// canonical binary wire form shared by the table store's map key and the
// persistence log's on-disk entity encoding.
package entity

import (
	"sort"

	"github.com/basalt-db/basalt/pkg/ndgerrors"
)

// FieldDescription names one field and the registry type it is drawn from.
// Immutable once a table exists.
type FieldDescription struct {
	Name     string
	TypeName string
}

// Description is an ordered mapping from field name to field description,
// plus the stable name->field-id injection. Field-ids are dense (0..n-1)
// and assigned by sorting field names ascending, matching the reference
// implementation's BTreeMap-ordered field assignment.
type Description struct {
	fields  map[string]FieldDescription
	ids     map[string]uint16
	names   []string // index == field-id
	typeOf  []string // index == field-id
}

// NewDescription builds a Description from an unordered name->type map.
// Field-ids are assigned by sorting names ascending, so the same field set
// always yields the same ids regardless of map iteration order.
func NewDescription(fields map[string]string) (*Description, error) {
	if len(fields) == 0 {
		return nil, &ndgerrors.BadSchemaError{Reason: "entity description has no fields"}
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	d := &Description{
		fields: make(map[string]FieldDescription, len(names)),
		ids:    make(map[string]uint16, len(names)),
		names:  names,
		typeOf: make([]string, len(names)),
	}
	for i, name := range names {
		id := uint16(i)
		d.fields[name] = FieldDescription{Name: name, TypeName: fields[name]}
		d.ids[name] = id
		d.typeOf[id] = fields[name]
	}
	return d, nil
}

// FieldID returns the dense id assigned to name, if any.
func (d *Description) FieldID(name string) (uint16, bool) {
	id, ok := d.ids[name]
	return id, ok
}

// FieldName returns the name assigned to a field-id, if any.
func (d *Description) FieldName(id uint16) (string, bool) {
	if int(id) >= len(d.names) {
		return "", false
	}
	return d.names[id], true
}

// FieldType returns the registry type name for a field-id, if any.
func (d *Description) FieldType(id uint16) (string, bool) {
	if int(id) >= len(d.typeOf) {
		return "", false
	}
	return d.typeOf[id], true
}

// Field returns the full description for a field name, if any.
func (d *Description) Field(name string) (FieldDescription, bool) {
	f, ok := d.fields[name]
	return f, ok
}

// Names returns the field names in field-id order.
func (d *Description) Names() []string {
	return d.names
}

// FieldCount returns the number of fields declared by this description.
func (d *Description) FieldCount() int {
	return len(d.names)
}
