package schema

import (
	"fmt"
	"strings"
)

// LintIssue describes one strict-validation finding.
type LintIssue struct {
	// Path is a JSONPath-style location such as $.labels.items.
	Path    string
	Message string
}

// String renders the issue as `path: message`.
func (i LintIssue) String() string {
	return i.Path + ": " + i.Message
}

// Lint reports descriptors that Compile would omit or pass through unrecognized.
// It is a strict pre-pass for callers that want validation; Compile never consults it.
func Lint(entityName string, fields *FieldMap) []LintIssue {
	issues := make([]LintIssue, 0)
	if strings.TrimSpace(entityName) == "" {
		issues = append(issues, LintIssue{Path: "$", Message: "entity name is required"})
	}
	lintFields("$", fields, &issues)
	return issues
}

// lintFields walks one field map.
func lintFields(path string, fields *FieldMap, issues *[]LintIssue) {
	for name, descriptor := range fields.All() {
		fieldPath := path + "." + name
		if strings.TrimSpace(name) == "" {
			*issues = append(*issues, LintIssue{Path: fieldPath, Message: "field name is empty"})
			continue
		}
		lintDescriptor(fieldPath, descriptor, issues)
	}
}

// lintDescriptor checks one descriptor and recurses into items and properties.
func lintDescriptor(path string, d FieldDescriptor, issues *[]LintIssue) {
	kind := d.normalizedKind()
	switch kind {
	case KindString, KindBoolean, KindNumber, KindDate:
	case KindArray:
		if d.Items == nil {
			*issues = append(*issues, LintIssue{Path: path, Message: "array field has no items descriptor"})
			return
		}
		lintDescriptor(path+".items", *d.Items, issues)
	case KindObject:
		if d.Properties == nil {
			*issues = append(*issues, LintIssue{Path: path, Message: "object field has no properties descriptor"})
			return
		}
		if d.Properties.Len() == 0 {
			*issues = append(*issues, LintIssue{Path: path, Message: "object field declares zero properties"})
		}
		lintFields(path+".properties", d.Properties, issues)
	default:
		if strings.TrimSpace(d.TypeName) == "" {
			*issues = append(*issues, LintIssue{
				Path:    path,
				Message: fmt.Sprintf("unrecognized kind %q passes through verbatim", kind),
			})
		}
	}
}
