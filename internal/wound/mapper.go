package wound

import "fmt"

// NoneDetected is the message reported when the detector finds nothing.
const NoneDetected = "No wounds detected."

// Report is one detected wound type with its guidance.
type Report struct {
	WoundType  string   `json:"wound_type"`
	Definition string   `json:"definition"`
	FirstAid   []string `json:"first_aid"`
}

// Mapper enriches raw detector labels with knowledge-base entries.
type Mapper struct {
	kb *KnowledgeBase
}

// NewMapper wraps a knowledge base.
func NewMapper(kb *KnowledgeBase) *Mapper {
	return &Mapper{kb: kb}
}

// Describe canonicalizes labels, drops duplicates (keeping first-seen order)
// and attaches each type's definition and first-aid steps.
func (m *Mapper) Describe(labels []string) []Report {
	seen := make(map[string]bool, len(labels))
	reports := make([]Report, 0, len(labels))
	for _, raw := range labels {
		canonical := m.kb.Canonical(raw)
		if seen[canonical] {
			continue
		}
		seen[canonical] = true
		entry, _ := m.kb.Lookup(canonical)
		reports = append(reports, Report{
			WoundType:  canonical,
			Definition: entry.Definition,
			FirstAid:   append([]string(nil), entry.FirstAid...),
		})
	}
	return reports
}

// Summary is the human-readable message accompanying reports.
func Summary(reports []Report) string {
	switch len(reports) {
	case 0:
		return NoneDetected
	case 1:
		return "Detected 1 wound type."
	default:
		return fmt.Sprintf("Detected %d wound types.", len(reports))
	}
}
