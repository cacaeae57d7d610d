package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const tableSchema = `
table:
  slug: {type: slug}
  name: {type: string, multiple: true}
  key1: {type: string}
  key2: {type: string, fuzzy: true}
  tags: {type: array, itemType: string}
  bool: {type: boolean}
  count: {type: number}
`

func decodeSchema(t *testing.T, doc string) Schema {
	t.Helper()
	var s Schema
	require.NoError(t, yaml.Unmarshal([]byte(doc), &s))
	return s
}

func TestCollection_UnmarshalYAMLPreservesOrder(t *testing.T) {
	s := decodeSchema(t, tableSchema)

	names := make([]string, 0)
	for _, f := range s["table"] {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"slug", "name", "key1", "key2", "tags", "bool", "count"}, names)

	tags, ok := s["table"].Field("tags")
	require.True(t, ok)
	assert.Equal(t, KindArray, tags.Kind)
	assert.Equal(t, KindString, tags.ItemKind)
}

func TestCollection_UnmarshalJSON(t *testing.T) {
	// yaml.v3 accepts JSON documents, which is how .json data files are read
	s := decodeSchema(t, `{"people": {"name": {"type": "string"}, "active": {"type": "boolean"}}}`)
	require.Len(t, s["people"], 2)
	assert.Equal(t, "name", s["people"][0].Name)
	assert.Equal(t, KindBoolean, s["people"][1].Kind)
}

func TestCollection_UnmarshalYAMLRejectsSequence(t *testing.T) {
	var s Schema
	err := yaml.Unmarshal([]byte("table: [a, b]"), &s)
	assert.Error(t, err)
}

func TestCollection_MarshalJSON(t *testing.T) {
	s := decodeSchema(t, `
table:
  slug: {type: slug}
  name: {type: string, multiple: true}
  tags: {type: array, itemType: string}
`)
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"table":{"slug":{"type":"slug"},"name":{"type":"string","multiple":true},"tags":{"type":"array","itemType":"string"}}}`,
		string(data))

	raw, err := json.Marshal(s["table"])
	require.NoError(t, err)
	assert.Equal(t,
		`{"slug":{"type":"slug"},"name":{"type":"string","multiple":true},"tags":{"type":"array","itemType":"string"}}`,
		string(raw))
}

func TestSchema_Validate(t *testing.T) {
	tests := []struct {
		name    string
		schema  Schema
		wantErr string
	}{
		{
			name:   "valid",
			schema: decodeSchema(t, tableSchema),
		},
		{
			name:    "array without item type",
			schema:  Schema{"t": {{Name: "tags", FieldSpec: FieldSpec{Kind: KindArray}}}},
			wantErr: "t.tags: array fields require itemType",
		},
		{
			name:    "item type on string",
			schema:  Schema{"t": {{Name: "name", FieldSpec: FieldSpec{Kind: KindString, ItemKind: KindString}}}},
			wantErr: "t.name: itemType is only valid for array fields",
		},
		{
			name:    "missing type",
			schema:  Schema{"t": {{Name: "name"}}},
			wantErr: "t.name: missing type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())

			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}
