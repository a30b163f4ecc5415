package schema

import (
	"strings"
)

// OmitReason explains why a field produced no output line.
type OmitReason string

// OmitReason values.
const (
	OmitNone              OmitReason = ""
	OmitMissingItems      OmitReason = "missing_items"
	OmitMissingProperties OmitReason = "missing_properties"
	OmitUnresolvedItems   OmitReason = "unresolved_items"
	OmitEmptyName         OmitReason = "empty_name"
)

// FieldOutcome records the compile decision for one declared field.
type FieldOutcome struct {
	Name    string
	Emitted bool
	// Type is the resolved type text including array brackets and required suffix.
	Type   string
	Reason OmitReason
}

// Line renders the field as `name: Type` without a separator.
func (o FieldOutcome) Line() string {
	if !o.Emitted {
		return ""
	}
	return o.Name + ": " + o.Type
}

// TypeDefinition is the immutable compile output for one entity.
type TypeDefinition struct {
	entity   string
	outcomes []FieldOutcome
}

// Entity returns the entity name.
func (d TypeDefinition) Entity() string {
	return d.entity
}

// Outcomes returns every field decision in declaration order.
func (d TypeDefinition) Outcomes() []FieldOutcome {
	return append([]FieldOutcome(nil), d.outcomes...)
}

// Emitted returns only emitted field outcomes.
func (d TypeDefinition) Emitted() []FieldOutcome {
	out := make([]FieldOutcome, 0, len(d.outcomes))
	for _, outcome := range d.outcomes {
		if outcome.Emitted {
			out = append(out, outcome)
		}
	}
	return out
}

// Omitted returns only omitted field outcomes.
func (d TypeDefinition) Omitted() []FieldOutcome {
	out := make([]FieldOutcome, 0)
	for _, outcome := range d.outcomes {
		if !outcome.Emitted {
			out = append(out, outcome)
		}
	}
	return out
}

// Lines returns emitted `name: Type` lines without separators.
func (d TypeDefinition) Lines() []string {
	emitted := d.Emitted()
	out := make([]string, 0, len(emitted))
	for _, outcome := range emitted {
		out = append(out, outcome.Line())
	}
	return out
}

// String renders the type block.
func (d TypeDefinition) String() string {
	return renderBlock("type "+d.entity, d.Lines())
}

// Compile turns one entity's ordered field map into a type definition.
// It never fails: unresolved descriptors are recorded as omitted outcomes.
func Compile(entityName string, fields *FieldMap) TypeDefinition {
	def := TypeDefinition{
		entity:   strings.TrimSpace(entityName),
		outcomes: make([]FieldOutcome, 0, fields.Len()),
	}
	for name, descriptor := range fields.All() {
		def.outcomes = append(def.outcomes, compileField(name, descriptor))
	}
	return def
}

// compileField resolves one field into an outcome.
func compileField(name string, d FieldDescriptor) FieldOutcome {
	name = strings.TrimSpace(name)
	if name == "" {
		return FieldOutcome{Name: name, Reason: OmitEmptyName}
	}
	typ, reason := resolveType(d)
	if reason != OmitNone {
		return FieldOutcome{Name: name, Reason: reason}
	}
	if d.Required {
		typ += "!"
	}
	return FieldOutcome{Name: name, Emitted: true, Type: typ}
}

// resolveType returns the type text for a descriptor without the required suffix.
func resolveType(d FieldDescriptor) (string, OmitReason) {
	kind := d.normalizedKind()
	switch kind {
	case KindArray:
		if d.Items == nil {
			return "", OmitMissingItems
		}
	case KindObject:
		if d.Properties == nil {
			return "", OmitMissingProperties
		}
	}
	if override := strings.TrimSpace(d.TypeName); override != "" {
		return override, OmitNone
	}
	if kind == KindArray {
		inner, reason := resolveType(*d.Items)
		if reason != OmitNone {
			return "", OmitUnresolvedItems
		}
		return "[" + inner + "]", OmitNone
	}
	return baseTypeName(kind), OmitNone
}

// baseTypeName maps a scalar kind to its emitted type name.
func baseTypeName(kind Kind) string {
	switch kind {
	case KindString, KindBoolean:
		token := string(kind)
		return strings.ToUpper(token[:1]) + token[1:]
	case KindNumber:
		return "Int"
	default:
		return string(kind)
	}
}

// renderBlock renders `header {` + comma-separated indented lines + `}`.
func renderBlock(header string, lines []string) string {
	if len(lines) == 0 {
		return header + " {}"
	}
	var b strings.Builder
	b.WriteString(header)
	b.WriteString(" {\n")
	for idx, line := range lines {
		b.WriteString("  ")
		b.WriteString(line)
		if idx < len(lines)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteByte('}')
	return b.String()
}
