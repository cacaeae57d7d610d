package query

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grundstein/gas/internal/schema"
)

func mustQuery(t *testing.T, raw string) url.Values {
	t.Helper()
	values, err := url.ParseQuery(raw)
	require.NoError(t, err)
	return values
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		keys     []schema.SearchKey
		expected []Predicate
	}{
		{
			name:     "no keys",
			query:    "slug=item1",
			keys:     nil,
			expected: []Predicate{},
		},
		{
			name:  "absent key is inert",
			query: "",
			keys:  []schema.SearchKey{{Field: "slug"}},
			expected: []Predicate{
				{Key: schema.SearchKey{Field: "slug"}, Values: []string{}},
			},
		},
		{
			name:  "fuzzy key keeps options",
			query: "slug=testname",
			keys:  []schema.SearchKey{{Field: "slug", Fuzzy: true}},
			expected: []Predicate{
				{Key: schema.SearchKey{Field: "slug", Fuzzy: true}, Values: []string{"testname"}},
			},
		},
		{
			name:  "repeated keys are case folded",
			query: "tags=Go&tags=RUST&other=x",
			keys:  []schema.SearchKey{{Field: "tags"}},
			expected: []Predicate{
				{Key: schema.SearchKey{Field: "tags"}, Values: []string{"go", "rust"}},
			},
		},
		{
			name:  "parameter names are case folded",
			query: "Slug=item1&SLUG=item2",
			keys:  []schema.SearchKey{{Field: "slug"}},
			expected: []Predicate{
				{Key: schema.SearchKey{Field: "slug"}, Values: []string{"item2", "item1"}},
			},
		},
		{
			name:  "mixed case field",
			query: "publishedat=2024",
			keys:  []schema.SearchKey{{Field: "publishedAt"}},
			expected: []Predicate{
				{Key: schema.SearchKey{Field: "publishedAt"}, Values: []string{"2024"}},
			},
		},
		{
			name:  "empty values dropped",
			query: "slug=&slug=a",
			keys:  []schema.SearchKey{{Field: "slug"}},
			expected: []Predicate{
				{Key: schema.SearchKey{Field: "slug"}, Values: []string{"a"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Extract(mustQuery(t, tt.query), tt.keys))
		})
	}
}

func TestExtract_NilValues(t *testing.T) {
	preds := Extract(nil, []schema.SearchKey{{Field: "slug"}})
	require.Len(t, preds, 1)
	assert.True(t, preds[0].Inert())
	assert.Empty(t, Active(preds))
}

func TestCanonical(t *testing.T) {
	keys := []schema.SearchKey{{Field: "slug"}, {Field: "tags"}}

	assert.Equal(t, url.Values{"slug": {"item1"}}, Canonical(mustQuery(t, "Slug=ITEM1&x=1&utm=abc"), keys))
	assert.Equal(t, url.Values{}, Canonical(mustQuery(t, "x=1&tags="), keys))
	assert.Equal(t,
		Canonical(mustQuery(t, "slug=a&x=1"), keys),
		Canonical(mustQuery(t, "x=2&slug=A"), keys))
}

func TestActive(t *testing.T) {
	preds := []Predicate{
		{Key: schema.SearchKey{Field: "a"}},
		{Key: schema.SearchKey{Field: "b"}, Values: []string{"x"}},
	}
	active := Active(preds)
	require.Len(t, active, 1)
	assert.Equal(t, "b", active[0].Key.Field)
}
