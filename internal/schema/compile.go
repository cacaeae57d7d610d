package schema

// SearchKey describes how one field may be filtered.
// At most one of Fuzzy and Boolean is set; neither means exact membership.
type SearchKey struct {
	Field   string `json:"field"`
	Fuzzy   bool   `json:"fuzzy,omitempty"`
	Boolean bool   `json:"boolean,omitempty"`
}

// Compile derives the search keys of every collection in the schema
func Compile(s Schema) map[string][]SearchKey {
	keys := make(map[string][]SearchKey, len(s))
	for name, fields := range s {
		keys[name] = CompileCollection(fields)
	}
	return keys
}

// CompileCollection derives search keys for one collection, in field order.
// Fields of a non-searchable kind produce no key.
func CompileCollection(fields Collection) []SearchKey {
	keys := make([]SearchKey, 0, len(fields))
	for _, f := range fields {
		switch f.Kind {
		case KindString, KindSlug:
			keys = append(keys, SearchKey{Field: f.Name, Fuzzy: f.Multiple || f.Fuzzy})
		case KindArray:
			if f.ItemKind == KindString {
				keys = append(keys, SearchKey{Field: f.Name})
			}
		case KindBoolean:
			keys = append(keys, SearchKey{Field: f.Name, Boolean: true})
		}
	}
	return keys
}
