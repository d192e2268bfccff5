// Package wound turns wound-detector labels into canonical wound types with
// first-aid guidance.
package wound

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed knowledge.yaml
var defaultKnowledge []byte

// Entry is the reference text for one canonical wound type.
type Entry struct {
	Definition string   `yaml:"definition" json:"definition"`
	FirstAid   []string `yaml:"first_aid" json:"first_aid"`
}

// KnowledgeBase holds the canonical entries and the synonym table that maps
// model-specific spellings onto them. It is never mutated after loading.
type KnowledgeBase struct {
	Entries  map[string]Entry  `yaml:"entries"`
	Synonyms map[string]string `yaml:"synonyms"`
	Fallback Entry             `yaml:"fallback"`

	foldedSynonyms map[string]string
	foldedEntries  map[string]string
}

// DefaultKnowledgeBase returns the knowledge base compiled into the binary.
func DefaultKnowledgeBase() (*KnowledgeBase, error) {
	return ParseKnowledgeBase(defaultKnowledge)
}

// LoadKnowledgeBase reads a knowledge base file; an empty path selects the
// compiled-in default.
func LoadKnowledgeBase(path string) (*KnowledgeBase, error) {
	if path == "" {
		return DefaultKnowledgeBase()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wound knowledge: %w", err)
	}
	return ParseKnowledgeBase(data)
}

// ParseKnowledgeBase decodes and validates a YAML knowledge base.
func ParseKnowledgeBase(data []byte) (*KnowledgeBase, error) {
	var kb KnowledgeBase
	if err := yaml.Unmarshal(data, &kb); err != nil {
		return nil, fmt.Errorf("decode wound knowledge: %w", err)
	}
	if len(kb.Entries) == 0 {
		return nil, fmt.Errorf("wound knowledge has no entries")
	}
	for alias, target := range kb.Synonyms {
		if _, ok := kb.Entries[target]; !ok {
			return nil, fmt.Errorf("synonym %q points at unknown wound type %q", alias, target)
		}
	}
	if kb.Fallback.Definition == "" {
		kb.Fallback.Definition = "Unknown type"
	}
	if len(kb.Fallback.FirstAid) == 0 {
		kb.Fallback.FirstAid = []string{"Seek medical attention."}
	}

	kb.foldedSynonyms = make(map[string]string, len(kb.Synonyms))
	for k, v := range kb.Synonyms {
		kb.foldedSynonyms[fold(k)] = v
	}
	kb.foldedEntries = make(map[string]string, len(kb.Entries))
	for k := range kb.Entries {
		kb.foldedEntries[fold(k)] = k
	}
	return &kb, nil
}

// Canonical maps a raw detector label to its canonical wound type. Exact
// synonym matches win over case-insensitive ones; labels without a synonym
// pass through unchanged.
func (kb *KnowledgeBase) Canonical(label string) string {
	if c, ok := kb.Synonyms[label]; ok {
		return c
	}
	if _, ok := kb.Entries[label]; ok {
		return label
	}
	if c, ok := kb.foldedSynonyms[fold(label)]; ok {
		return c
	}
	if c, ok := kb.foldedEntries[fold(label)]; ok {
		return c
	}
	return label
}

// Lookup returns the entry for a canonical type and whether it was known.
// Unknown types get the fallback entry.
func (kb *KnowledgeBase) Lookup(canonical string) (Entry, bool) {
	if e, ok := kb.Entries[canonical]; ok {
		return e, true
	}
	return kb.Fallback, false
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
