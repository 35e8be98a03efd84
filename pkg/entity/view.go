package entity

import (
	"sort"

	"github.com/basalt-db/basalt/pkg/ndgerrors"
	"github.com/basalt-db/basalt/pkg/types"
)

// FieldView is the JSON shape of one field in a schema-admission request:
// {"type_name": "<name>"}.
type FieldView struct {
	TypeName string `json:"type_name"`
}

// DescriptionView is the JSON shape of a key or value schema:
// {"fields": {"<name>": {"type_name": "<type>"}, ...}}.
type DescriptionView struct {
	Fields map[string]FieldView `json:"fields"`
}

// ToDescription validates every field's type against registry and builds
// a Description, assigning dense field-ids by sorted field-name order.
func ToDescription(view DescriptionView, registry *types.Registry) (*Description, error) {
	fields := make(map[string]string, len(view.Fields))
	for name, f := range view.Fields {
		if _, ok := registry.Lookup(f.TypeName); !ok {
			return nil, &ndgerrors.UnknownTypeError{Name: f.TypeName}
		}
		fields[name] = f.TypeName
	}
	return NewDescription(fields)
}

// View renders a Description back to its JSON-admission shape, e.g. for
// GET /meta/table/:name.
func (d *Description) View() DescriptionView {
	fields := make(map[string]FieldView, len(d.names))
	for _, name := range d.names {
		fields[name] = FieldView{TypeName: d.fields[name].TypeName}
	}
	return DescriptionView{Fields: fields}
}

// SortedNames returns field names sorted ascending, used by callers that
// need a deterministic field ordering independent of field-id assignment
// (which already happens to be sorted, but callers should not rely on that
// coupling explicitly).
func (d *Description) SortedNames() []string {
	out := append([]string(nil), d.names...)
	sort.Strings(out)
	return out
}
