package loader

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/grundstein/gas/internal/api"
	"github.com/grundstein/gas/internal/schema"
)

// dataDocument is the decoded form of a data file
type dataDocument struct {
	DB     map[string]yaml.Node `yaml:"db"`
	Schema schema.Schema        `yaml:"schema"`
	Source *SQLSource           `yaml:"source"`

	collections api.Collections
}

// decodeDataDocument parses a YAML or JSON data file
func decodeDataDocument(content []byte) (*dataDocument, error) {
	var doc dataDocument
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse data file: %w", err)
	}

	if doc.Schema != nil {
		if err := doc.Schema.Validate(); err != nil {
			return nil, fmt.Errorf("invalid schema: %w", err)
		}
	}

	doc.collections = make(api.Collections, len(doc.DB))
	for name, node := range doc.DB {
		items, err := decodeCollection(&node)
		if err != nil {
			return nil, fmt.Errorf("collection %s: %w", name, err)
		}
		doc.collections[name] = items
	}

	if doc.Source != nil {
		if err := doc.Source.validate(); err != nil {
			return nil, fmt.Errorf("invalid source: %w", err)
		}
	}

	return &doc, nil
}

// decodeCollection decodes a list of records. A single mapping is a
// collection of one record.
func decodeCollection(node *yaml.Node) ([]api.Record, error) {
	switch node.Kind {
	case yaml.SequenceNode:
		items := make([]api.Record, 0, len(node.Content))
		for i, item := range node.Content {
			if item.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("item %d is not an object", i)
			}
			var record api.Record
			if err := item.Decode(&record); err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			items = append(items, record)
		}
		return items, nil
	case yaml.MappingNode:
		var record api.Record
		if err := node.Decode(&record); err != nil {
			return nil, err
		}
		return []api.Record{record}, nil
	case yaml.ScalarNode:
		if node.ShortTag() == "!!null" {
			return []api.Record{}, nil
		}
		fallthrough
	default:
		return nil, fmt.Errorf("expected a list of objects, got %s", node.ShortTag())
	}
}
