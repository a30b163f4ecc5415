package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCompileRequiredAndNumberFields verifies the board title/position rendering.
func TestCompileRequiredAndNumberFields(t *testing.T) {
	fields := NewFieldMap(
		FieldDescriptor{Name: "title", Kind: KindString, Required: true},
		FieldDescriptor{Name: "position", Kind: KindNumber},
	)

	def := Compile("Board", fields)

	assert.Equal(t, []string{"title: String!", "position: Int"}, def.Lines())
	assert.Equal(t, "type Board {\n  title: String!,\n  position: Int\n}", def.String())
	assert.Empty(t, def.Omitted())
}

// TestCompileArrayWithoutItemsRendersEmptyType verifies unresolved arrays leave no field lines.
func TestCompileArrayWithoutItemsRendersEmptyType(t *testing.T) {
	def := Compile("Board", NewFieldMap(FieldDescriptor{Name: "labels", Kind: KindArray}))

	assert.Empty(t, def.Lines())
	assert.Equal(t, "type Board {}", def.String())
	omitted := def.Omitted()
	require.Len(t, omitted, 1)
	assert.Equal(t, "labels", omitted[0].Name)
	assert.Equal(t, OmitMissingItems, omitted[0].Reason)
	assert.False(t, omitted[0].Emitted)
}

// TestCompileEmptyFieldMap verifies an empty or nil field map compiles to an empty type.
func TestCompileEmptyFieldMap(t *testing.T) {
	assert.Equal(t, "type Label {}", Compile("Label", NewFieldMap()).String())
	assert.Equal(t, "type Label {}", Compile("Label", nil).String())
}

// TestCompileTypeResolution verifies base type mapping, overrides, and pass-through tokens.
func TestCompileTypeResolution(t *testing.T) {
	cases := []struct {
		name       string
		descriptor FieldDescriptor
		want       string
	}{
		{name: "untyped defaults to string", descriptor: FieldDescriptor{}, want: "f: String"},
		{name: "boolean", descriptor: FieldDescriptor{Kind: KindBoolean}, want: "f: Boolean"},
		{name: "number", descriptor: FieldDescriptor{Kind: KindNumber}, want: "f: Int"},
		{name: "date passes through", descriptor: FieldDescriptor{Kind: KindDate}, want: "f: date"},
		{name: "unknown passes through", descriptor: FieldDescriptor{Kind: "Money"}, want: "f: Money"},
		{
			name:       "object with properties passes through",
			descriptor: FieldDescriptor{Kind: KindObject, Properties: NewFieldMap()},
			want:       "f: object",
		},
		{name: "override wins", descriptor: FieldDescriptor{Kind: KindNumber, TypeName: "Float"}, want: "f: Float"},
		{
			name:       "override required",
			descriptor: FieldDescriptor{Kind: KindString, TypeName: "ID", Required: true},
			want:       "f: ID!",
		},
		{
			name:       "array of strings",
			descriptor: FieldDescriptor{Kind: KindArray, Items: &FieldDescriptor{Kind: KindString}},
			want:       "f: [String]",
		},
		{
			name: "required nested array",
			descriptor: FieldDescriptor{
				Kind:     KindArray,
				Required: true,
				Items:    &FieldDescriptor{Kind: KindArray, Items: &FieldDescriptor{Kind: KindBoolean}},
			},
			want: "f: [[Boolean]]!",
		},
		{
			name: "element override",
			descriptor: FieldDescriptor{
				Kind:  KindArray,
				Items: &FieldDescriptor{Kind: KindObject, TypeName: "Label", Properties: NewFieldMap()},
			},
			want: "f: [Label]",
		},
		{
			name:       "element required is not modeled",
			descriptor: FieldDescriptor{Kind: KindArray, Items: &FieldDescriptor{Kind: KindString, Required: true}},
			want:       "f: [String]",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			def := Compile("X", NewFieldMap(withName("f", tc.descriptor)))
			require.Len(t, def.Lines(), 1)
			assert.Equal(t, tc.want, def.Lines()[0])
		})
	}
}

// TestCompileOmissionReasons verifies every unresolved shape is reported with its reason.
func TestCompileOmissionReasons(t *testing.T) {
	fields := NewFieldMap(
		FieldDescriptor{Name: "keep", Kind: KindString},
		FieldDescriptor{Name: "tags", Kind: KindArray, Required: true, TypeName: "Tags"},
		FieldDescriptor{Name: "meta", Kind: KindObject},
		FieldDescriptor{Name: "matrix", Kind: KindArray, Items: &FieldDescriptor{Kind: KindArray}},
		FieldDescriptor{Name: "blobs", Kind: KindArray, Items: &FieldDescriptor{Kind: KindObject}},
	)
	fields.Set("  ", FieldDescriptor{Kind: KindString})

	def := Compile("Card", fields)

	assert.Equal(t, []string{"keep: String"}, def.Lines())
	reasons := map[string]OmitReason{}
	for _, outcome := range def.Omitted() {
		reasons[outcome.Name] = outcome.Reason
	}
	assert.Equal(t, map[string]OmitReason{
		"tags":   OmitMissingItems,
		"meta":   OmitMissingProperties,
		"matrix": OmitUnresolvedItems,
		"blobs":  OmitUnresolvedItems,
		"":       OmitEmptyName,
	}, reasons)
	assert.Len(t, def.Outcomes(), 6)
}

// TestCompileArrayWithoutItemsNeverEmitted verifies other attributes cannot rescue an array without items.
func TestCompileArrayWithoutItemsNeverEmitted(t *testing.T) {
	variants := []FieldDescriptor{
		{Kind: KindArray},
		{Kind: KindArray, Required: true},
		{Kind: KindArray, TypeName: "Labels"},
		{Kind: KindArray, Properties: NewFieldMap(FieldDescriptor{Name: "x"})},
		{Kind: " array ", Required: true, TypeName: "[String]"},
	}
	for idx, variant := range variants {
		def := Compile("Card", NewFieldMap(
			FieldDescriptor{Name: "title"},
			withName("labels", variant),
		))
		for _, line := range def.Lines() {
			assert.False(t, strings.HasPrefix(line, "labels"), "variant %d emitted %q", idx, line)
		}
	}
}

// TestCompileRequiredSuffixBeforeSeparator verifies `!` sits immediately before the separator.
func TestCompileRequiredSuffixBeforeSeparator(t *testing.T) {
	fields := NewFieldMap(
		FieldDescriptor{Name: "a", Required: true},
		FieldDescriptor{Name: "b", Kind: KindArray, Required: true, Items: &FieldDescriptor{}},
		FieldDescriptor{Name: "c", Kind: KindNumber, Required: true},
	)
	text := Compile("X", fields).String()
	lines := strings.Split(text, "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "  a: String!,", lines[1])
	assert.Equal(t, "  b: [String]!,", lines[2])
	assert.Equal(t, "  c: Int!", lines[3])
}

// TestCompileDeterministic verifies repeated compiles yield identical bytes.
func TestCompileDeterministic(t *testing.T) {
	for _, decl := range BuiltinDeclarations() {
		first := Compile(decl.Entity, decl.Fields).String()
		for range 5 {
			assert.Equal(t, first, Compile(decl.Entity, decl.Fields.Clone()).String())
		}
	}
}

// TestFieldMapSetKeepsSlot verifies replacement preserves insertion order.
func TestFieldMapSetKeepsSlot(t *testing.T) {
	fields := NewFieldMap(
		FieldDescriptor{Name: "a"},
		FieldDescriptor{Name: "b"},
		FieldDescriptor{Name: "c"},
	)
	fields.Set("a", FieldDescriptor{Kind: KindNumber})

	assert.Equal(t, []string{"a", "b", "c"}, fields.Names())
	got, ok := fields.Get("a")
	require.True(t, ok)
	assert.Equal(t, KindNumber, got.Kind)
	assert.Equal(t, "a", got.Name)
	assert.Equal(t, []string{"a: Int", "b: String", "c: String"}, Compile("X", fields).Lines())
}

// TestFieldMapCloneIsDeep verifies clones do not share nested descriptors.
func TestFieldMapCloneIsDeep(t *testing.T) {
	nested := NewFieldMap(FieldDescriptor{Name: "x"})
	fields := NewFieldMap(
		FieldDescriptor{Name: "labels", Kind: KindArray, Items: &FieldDescriptor{Kind: KindString}},
		FieldDescriptor{Name: "meta", Kind: KindObject, Properties: nested},
	)
	clone := fields.Clone()

	labels, _ := fields.Get("labels")
	labels.Items.Kind = KindNumber
	nested.Set("y", FieldDescriptor{})

	cloned, _ := clone.Get("labels")
	assert.Equal(t, KindString, cloned.Items.Kind)
	meta, _ := clone.Get("meta")
	assert.Equal(t, 1, meta.Properties.Len())
}

// withName returns the descriptor with the supplied name.
func withName(name string, d FieldDescriptor) FieldDescriptor {
	d.Name = name
	return d
}
