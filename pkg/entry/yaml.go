package entry

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML accepts a scalar path, a sequence of paths, or a mapping whose values are
// either. Mapping order follows the document.
func (e *Entry) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := fromNode(node, true)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

func fromNode(node *yaml.Node, allowMap bool) (Entry, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return Single(node.Value), nil
	case yaml.SequenceNode:
		paths := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return Entry{}, fmt.Errorf("line %d: entry list items must be strings", item.Line)
			}
			paths = append(paths, item.Value)
		}
		return List(paths...), nil
	case yaml.MappingNode:
		if !allowMap {
			return Entry{}, fmt.Errorf("line %d: nested entry mappings are not supported", node.Line)
		}
		out := NewMap()
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			value, err := fromNode(node.Content[i+1], false)
			if err != nil {
				return Entry{}, err
			}
			out = out.Add(key, value)
		}
		return out, nil
	}
	return Entry{}, fmt.Errorf("line %d: unsupported entry node", node.Line)
}
