// Package schema defines the declarative field schema attached to a version
// scope's collections and compiles it into search keys for query filtering.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Kind is the declared type of a schema field
type Kind string

const (
	KindString  Kind = "string"
	KindSlug    Kind = "slug"
	KindArray   Kind = "array"
	KindBoolean Kind = "boolean"
)

// FieldSpec describes a single field of a collection
type FieldSpec struct {
	Kind     Kind `yaml:"type" json:"type"`
	Multiple bool `yaml:"multiple,omitempty" json:"multiple,omitempty"`
	ItemKind Kind `yaml:"itemType,omitempty" json:"itemType,omitempty"`
	Fuzzy    bool `yaml:"fuzzy,omitempty" json:"fuzzy,omitempty"`
}

// Field is a named FieldSpec. Collections keep their fields in declaration order.
type Field struct {
	Name string
	FieldSpec
}

// Collection is the ordered field list of one collection
type Collection []Field

// Schema maps collection names to their field lists
type Schema map[string]Collection

// UnmarshalYAML decodes a mapping node while preserving key order.
// JSON documents decode through the same path since yaml.v3 accepts JSON.
func (c *Collection) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: collection schema must be a mapping of field names", node.Line)
	}

	fields := make(Collection, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]

		var spec FieldSpec
		if err := valueNode.Decode(&spec); err != nil {
			return fmt.Errorf("field %q: %w", keyNode.Value, err)
		}
		fields = append(fields, Field{Name: keyNode.Value, FieldSpec: spec})
	}

	*c = fields
	return nil
}

// MarshalJSON encodes the collection as an object, keeping field order
func (c Collection) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		spec, err := json.Marshal(f.FieldSpec)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(spec)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Field returns the named field and whether it exists
func (c Collection) Field(name string) (Field, bool) {
	for _, f := range c {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// ValidationError reports a field that breaks a FieldSpec invariant
type ValidationError struct {
	Collection string
	Field      string
	Message    string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Collection, e.Field, e.Message)
}

// Validate checks the itemType invariant: present iff the kind is array.
// Unknown kinds are allowed; they are simply not searchable.
func (s Schema) Validate() error {
	for name, fields := range s {
		for _, f := range fields {
			switch {
			case f.Kind == "":
				return &ValidationError{Collection: name, Field: f.Name, Message: "missing type"}
			case f.Kind == KindArray && f.ItemKind == "":
				return &ValidationError{Collection: name, Field: f.Name, Message: "array fields require itemType"}
			case f.Kind != KindArray && f.ItemKind != "":
				return &ValidationError{Collection: name, Field: f.Name, Message: "itemType is only valid for array fields"}
			}
		}
	}
	return nil
}
