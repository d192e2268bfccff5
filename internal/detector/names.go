package detector

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Names is the detector's class index to name table.
type Names []string

// Name resolves a class index, falling back to class_<n> for indices the
// table does not cover.
func (n Names) Name(idx int) string {
	if idx >= 0 && idx < len(n) {
		return n[idx]
	}
	return "class_" + strconv.Itoa(idx)
}

// LoadNames reads class names from a dataset YAML. Both the list form
// (`names: [a, b]`) and the indexed map form (`names: {0: a, 1: b}`) are
// accepted, as is a bare top-level list.
func LoadNames(path string) (Names, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read class names: %w", err)
	}
	return ParseNames(data)
}

// ParseNames decodes the YAML accepted by LoadNames.
func ParseNames(data []byte) (Names, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode class names: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("class names file is empty")
	}
	node := root.Content[0]
	if node.Kind == yaml.MappingNode {
		var doc struct {
			Names yaml.Node `yaml:"names"`
		}
		if err := node.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode class names: %w", err)
		}
		if doc.Names.Kind == 0 {
			return nil, fmt.Errorf("class names file has no names key")
		}
		node = &doc.Names
	}

	switch node.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return nil, fmt.Errorf("decode class name list: %w", err)
		}
		return names, nil
	case yaml.MappingNode:
		var indexed map[int]string
		if err := node.Decode(&indexed); err != nil {
			return nil, fmt.Errorf("decode class name map: %w", err)
		}
		keys := make([]int, 0, len(indexed))
		for k := range indexed {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		names := make(Names, 0, len(keys))
		for i, k := range keys {
			if k != i {
				return nil, fmt.Errorf("class indices must be contiguous from 0, missing %d", i)
			}
			names = append(names, indexed[k])
		}
		return names, nil
	default:
		return nil, fmt.Errorf("unsupported class names layout")
	}
}
