package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SignatureKind identifies the root block one signature belongs to.
type SignatureKind string

// SignatureKind values.
const (
	SignatureQuery    SignatureKind = "query"
	SignatureMutation SignatureKind = "mutation"
)

// Signature is one root query or mutation field.
type Signature struct {
	Kind SignatureKind
	Name string
	Args string
	// Returns is the return type text.
	Returns string
}

// Line renders the signature as `name(args): Returns`.
func (s Signature) Line() string {
	if strings.TrimSpace(s.Args) == "" {
		return s.Name + ": " + s.Returns
	}
	return s.Name + "(" + s.Args + "): " + s.Returns
}

// Operations returns the companion query and mutation signatures for one entity.
func Operations(def TypeDefinition) []Signature {
	entity := def.Entity()
	if entity == "" {
		return nil
	}
	lower := lowerFirst(entity)
	input := entity + "Input"
	return []Signature{
		{Kind: SignatureQuery, Name: lower, Args: "id: ID!", Returns: entity},
		{Kind: SignatureQuery, Name: pluralize(lower), Returns: "[" + entity + "]"},
		{Kind: SignatureMutation, Name: "create" + entity, Args: "input: " + input, Returns: entity},
		{Kind: SignatureMutation, Name: "update" + entity, Args: "id: ID!, input: " + input, Returns: entity},
		{Kind: SignatureMutation, Name: "delete" + entity, Args: "id: ID!", Returns: entity},
	}
}

// InputDefinition renders the input block for one entity. Required markers are dropped so
// partial updates stay valid.
func InputDefinition(def TypeDefinition) string {
	emitted := def.Emitted()
	lines := make([]string, 0, len(emitted))
	for _, outcome := range emitted {
		lines = append(lines, outcome.Name+": "+strings.TrimSuffix(outcome.Type, "!"))
	}
	return renderBlock("input "+def.Entity()+"Input", lines)
}

// MoveSignatures returns the move mutations served by the ordering endpoints.
func MoveSignatures() []Signature {
	const args = "id: ID!, fromIndex: Int, toIndex: Int!, targetContainerId: ID"
	return []Signature{
		{Kind: SignatureMutation, Name: "moveList", Args: args, Returns: "List"},
		{Kind: SignatureMutation, Name: "moveCard", Args: args, Returns: "Card"},
	}
}

// Document is one assembled schema document.
type Document struct {
	defs []TypeDefinition
	text string
	hash string
}

// Assemble merges type definitions, input blocks and root operation blocks into one document.
// Definitions render in the order supplied.
func Assemble(defs []TypeDefinition, extra ...Signature) Document {
	blocks := make([]string, 0, len(defs)*2+2)
	queries := make([]string, 0, len(defs)*2)
	mutations := make([]string, 0, len(defs)*3+len(extra))
	for _, def := range defs {
		blocks = append(blocks, def.String(), InputDefinition(def))
		for _, sig := range Operations(def) {
			switch sig.Kind {
			case SignatureQuery:
				queries = append(queries, sig.Line())
			case SignatureMutation:
				mutations = append(mutations, sig.Line())
			}
		}
	}
	for _, sig := range extra {
		switch sig.Kind {
		case SignatureQuery:
			queries = append(queries, sig.Line())
		default:
			mutations = append(mutations, sig.Line())
		}
	}
	blocks = append(blocks, renderBlock("type Query", queries), renderBlock("type Mutation", mutations))
	text := strings.Join(blocks, "\n\n") + "\n"
	sum := sha256.Sum256([]byte(text))
	return Document{
		defs: append([]TypeDefinition(nil), defs...),
		text: text,
		hash: hex.EncodeToString(sum[:]),
	}
}

// Text returns the full document text.
func (d Document) Text() string {
	return d.text
}

// Hash returns the sha256 hex digest of Text.
func (d Document) Hash() string {
	return d.hash
}

// Definitions returns the compiled type definitions in document order.
func (d Document) Definitions() []TypeDefinition {
	return append([]TypeDefinition(nil), d.defs...)
}

// Omitted returns every omitted field across all definitions keyed by entity.
func (d Document) Omitted() map[string][]FieldOutcome {
	out := map[string][]FieldOutcome{}
	for _, def := range d.defs {
		if omitted := def.Omitted(); len(omitted) > 0 {
			out[def.Entity()] = omitted
		}
	}
	return out
}

// IsZero reports whether the document was never assembled.
func (d Document) IsZero() bool {
	return d.text == ""
}

// pluralize applies English suffix rules for the collection query name.
// The result never equals the singular name.
func pluralize(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, "s"), strings.HasSuffix(lower, "x"), strings.HasSuffix(lower, "z"),
		strings.HasSuffix(lower, "ch"), strings.HasSuffix(lower, "sh"):
		return name + "es"
	case len(lower) > 1 && strings.HasSuffix(lower, "y") && !strings.ContainsRune("aeiou", rune(lower[len(lower)-2])):
		return name[:len(name)-1] + "ies"
	default:
		return name + "s"
	}
}

// lowerFirst lowercases the first rune.
func lowerFirst(in string) string {
	r, size := utf8.DecodeRuneInString(in)
	if size == 0 {
		return in
	}
	return string(unicode.ToLower(r)) + in[size:]
}
