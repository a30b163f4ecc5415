// Package schema compiles declarative entity field metadata into query-protocol type text.
package schema

import (
	"iter"
	"strings"
)

// Kind names the declared storage kind of one field.
type Kind string

// Kind values recognized by the compiler. Any other token passes through verbatim.
const (
	KindString  Kind = "string"
	KindBoolean Kind = "boolean"
	KindNumber  Kind = "number"
	KindDate    Kind = "date"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
)

// FieldDescriptor describes one entity attribute.
type FieldDescriptor struct {
	Name     string
	Kind     Kind
	Required bool
	// TypeName overrides kind-derived inference when set.
	TypeName string
	// Items describes array elements. Only meaningful when Kind is array.
	Items *FieldDescriptor
	// Properties describes nested fields. Only meaningful when Kind is object.
	Properties *FieldMap
}

// normalizedKind returns the declared kind with the untyped default applied.
func (d FieldDescriptor) normalizedKind() Kind {
	kind := Kind(strings.TrimSpace(string(d.Kind)))
	if kind == "" {
		return KindString
	}
	return kind
}

// fieldEntry stores one named descriptor in insertion order.
type fieldEntry struct {
	name       string
	descriptor FieldDescriptor
}

// FieldMap is an insertion-ordered association of field names to descriptors.
type FieldMap struct {
	entries []fieldEntry
	index   map[string]int
}

// NewFieldMap builds a field map from descriptors, keyed by each descriptor's Name.
func NewFieldMap(fields ...FieldDescriptor) *FieldMap {
	m := &FieldMap{}
	for _, field := range fields {
		m.Set(field.Name, field)
	}
	return m
}

// Set inserts or replaces one field. Replacing keeps the original slot.
func (m *FieldMap) Set(name string, descriptor FieldDescriptor) {
	if m.index == nil {
		m.index = map[string]int{}
	}
	descriptor.Name = name
	if idx, ok := m.index[name]; ok {
		m.entries[idx].descriptor = descriptor
		return
	}
	m.index[name] = len(m.entries)
	m.entries = append(m.entries, fieldEntry{name: name, descriptor: descriptor})
}

// Get returns one field by name.
func (m *FieldMap) Get(name string) (FieldDescriptor, bool) {
	if m == nil {
		return FieldDescriptor{}, false
	}
	idx, ok := m.index[name]
	if !ok {
		return FieldDescriptor{}, false
	}
	return m.entries[idx].descriptor, true
}

// Len reports the number of fields.
func (m *FieldMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Names returns field names in insertion order.
func (m *FieldMap) Names() []string {
	if m == nil {
		return nil
	}
	out := make([]string, 0, len(m.entries))
	for _, entry := range m.entries {
		out = append(out, entry.name)
	}
	return out
}

// All iterates fields in insertion order.
func (m *FieldMap) All() iter.Seq2[string, FieldDescriptor] {
	return func(yield func(string, FieldDescriptor) bool) {
		if m == nil {
			return
		}
		for _, entry := range m.entries {
			if !yield(entry.name, entry.descriptor) {
				return
			}
		}
	}
}

// Clone returns a deep copy of the map.
func (m *FieldMap) Clone() *FieldMap {
	if m == nil {
		return nil
	}
	out := &FieldMap{}
	for _, entry := range m.entries {
		out.Set(entry.name, cloneDescriptor(entry.descriptor))
	}
	return out
}

// cloneDescriptor deep-copies nested descriptors.
func cloneDescriptor(d FieldDescriptor) FieldDescriptor {
	if d.Items != nil {
		items := cloneDescriptor(*d.Items)
		d.Items = &items
	}
	d.Properties = d.Properties.Clone()
	return d
}
