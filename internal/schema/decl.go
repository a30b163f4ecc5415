package schema

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidDeclarations reports a metadata document that cannot be parsed at all.
var ErrInvalidDeclarations = errors.New("invalid entity declarations")

// EntityDeclaration pairs one entity name with its ordered fields.
type EntityDeclaration struct {
	Entity string
	Fields *FieldMap
}

// ParseDeclarations reads YAML or JSON entity metadata, keeping mapping order.
// Malformed descriptor values degrade to kind defaults; only unparseable documents fail.
func ParseDeclarations(data []byte) ([]EntityDeclaration, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDeclarations, err)
	}
	if root.Kind == 0 {
		return []EntityDeclaration{}, nil
	}
	doc := &root
	if doc.Kind == yaml.DocumentNode {
		if len(doc.Content) == 0 {
			return []EntityDeclaration{}, nil
		}
		doc = doc.Content[0]
	}
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level must be a mapping of entity names", ErrInvalidDeclarations)
	}

	out := make([]EntityDeclaration, 0, len(doc.Content)/2)
	seen := map[string]int{}
	for idx := 0; idx+1 < len(doc.Content); idx += 2 {
		entity := strings.TrimSpace(doc.Content[idx].Value)
		if entity == "" {
			continue
		}
		fields := parseFieldMap(doc.Content[idx+1])
		if fields == nil {
			fields = NewFieldMap()
		}
		if at, ok := seen[entity]; ok {
			out[at].Fields = fields
			continue
		}
		seen[entity] = len(out)
		out = append(out, EntityDeclaration{Entity: entity, Fields: fields})
	}
	return out, nil
}

// parseFieldMap converts a mapping node into an ordered field map. Non-mappings yield nil.
func parseFieldMap(node *yaml.Node) *FieldMap {
	node = resolveAlias(node)
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	fields := NewFieldMap()
	for idx := 0; idx+1 < len(node.Content); idx += 2 {
		name := strings.TrimSpace(node.Content[idx].Value)
		fields.Set(name, parseDescriptor(node.Content[idx+1]))
	}
	return fields
}

// parseDescriptor converts one descriptor node. A bare scalar is read as the kind token.
func parseDescriptor(node *yaml.Node) FieldDescriptor {
	node = resolveAlias(node)
	if node == nil {
		return FieldDescriptor{}
	}
	switch node.Kind {
	case yaml.ScalarNode:
		return FieldDescriptor{Kind: Kind(strings.TrimSpace(node.Value))}
	case yaml.MappingNode:
	default:
		return FieldDescriptor{}
	}

	var d FieldDescriptor
	for idx := 0; idx+1 < len(node.Content); idx += 2 {
		key := strings.ToLower(strings.TrimSpace(node.Content[idx].Value))
		value := resolveAlias(node.Content[idx+1])
		if value == nil {
			continue
		}
		switch key {
		case "type", "kind":
			if value.Kind == yaml.ScalarNode {
				d.Kind = Kind(strings.TrimSpace(value.Value))
			}
		case "required":
			var required bool
			if value.Kind == yaml.ScalarNode && value.Decode(&required) == nil {
				d.Required = required
			}
		case "graphql_type", "type_name":
			if value.Kind == yaml.ScalarNode {
				d.TypeName = strings.TrimSpace(value.Value)
			}
		case "items":
			if value.Kind == yaml.ScalarNode || value.Kind == yaml.MappingNode {
				items := parseDescriptor(value)
				d.Items = &items
			}
		case "properties":
			d.Properties = parseFieldMap(value)
		}
	}
	return d
}

// resolveAlias follows YAML aliases to their anchored node.
func resolveAlias(node *yaml.Node) *yaml.Node {
	for node != nil && node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	return node
}

// CompileAll compiles every declaration in order.
func CompileAll(decls []EntityDeclaration) []TypeDefinition {
	out := make([]TypeDefinition, 0, len(decls))
	for _, decl := range decls {
		out = append(out, Compile(decl.Entity, decl.Fields))
	}
	return out
}

// BuildDocument compiles declarations and assembles them with the move mutations.
func BuildDocument(decls []EntityDeclaration) Document {
	return Assemble(CompileAll(decls), MoveSignatures()...)
}

// BuiltinDeclarations returns the field metadata for the built-in board entities.
func BuiltinDeclarations() []EntityDeclaration {
	id := FieldDescriptor{Name: "id", TypeName: "ID", Required: true}
	timestamp := func(name string, required bool) FieldDescriptor {
		return FieldDescriptor{Name: name, Kind: KindDate, TypeName: "String", Required: required}
	}
	position := FieldDescriptor{Name: "position", Kind: KindNumber, TypeName: "Float", Required: true}
	return []EntityDeclaration{
		{
			Entity: "Board",
			Fields: NewFieldMap(
				id,
				FieldDescriptor{Name: "slug", Kind: KindString, Required: true},
				FieldDescriptor{Name: "name", Kind: KindString, Required: true},
				FieldDescriptor{Name: "description", Kind: KindString},
				timestamp("createdAt", true),
				timestamp("updatedAt", true),
				timestamp("archivedAt", false),
			),
		},
		{
			Entity: "List",
			Fields: NewFieldMap(
				id,
				FieldDescriptor{Name: "boardId", TypeName: "ID", Required: true},
				FieldDescriptor{Name: "name", Kind: KindString, Required: true},
				FieldDescriptor{Name: "wipLimit", Kind: KindNumber},
				position,
				timestamp("createdAt", true),
				timestamp("updatedAt", true),
				timestamp("archivedAt", false),
			),
		},
		{
			Entity: "Card",
			Fields: NewFieldMap(
				id,
				FieldDescriptor{Name: "boardId", TypeName: "ID", Required: true},
				FieldDescriptor{Name: "listId", TypeName: "ID", Required: true},
				position,
				FieldDescriptor{Name: "title", Kind: KindString, Required: true},
				FieldDescriptor{Name: "description", Kind: KindString},
				FieldDescriptor{Name: "priority", Kind: KindString},
				timestamp("dueAt", false),
				FieldDescriptor{Name: "labels", Kind: KindArray, Items: &FieldDescriptor{Kind: KindString}},
				timestamp("createdAt", true),
				timestamp("updatedAt", true),
				timestamp("archivedAt", false),
			),
		},
	}
}

// MergeDeclarations overlays declarations onto a base set. Overlay entities replace base
// entities of the same name in place; new entities are appended in overlay order.
func MergeDeclarations(base, overlay []EntityDeclaration) []EntityDeclaration {
	out := make([]EntityDeclaration, 0, len(base)+len(overlay))
	index := map[string]int{}
	for _, decl := range base {
		index[decl.Entity] = len(out)
		out = append(out, EntityDeclaration{Entity: decl.Entity, Fields: decl.Fields.Clone()})
	}
	for _, decl := range overlay {
		fields := decl.Fields.Clone()
		if at, ok := index[decl.Entity]; ok {
			out[at].Fields = fields
			continue
		}
		index[decl.Entity] = len(out)
		out = append(out, EntityDeclaration{Entity: decl.Entity, Fields: fields})
	}
	return out
}
