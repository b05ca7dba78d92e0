package model

import "time"

// EntidadType classifies a named entity.
type EntidadType string

const (
	EntidadTypePerson       EntidadType = "person"
	EntidadTypeOrganization EntidadType = "organization"
	EntidadTypeInstitution  EntidadType = "institution"
	EntidadTypePlace        EntidadType = "place"
	EntidadTypeEvent        EntidadType = "event"
	EntidadTypeRegulation   EntidadType = "regulation"
	EntidadTypeConcept      EntidadType = "concept"
)

// Valid reports whether the type is a known entidad type.
func (t EntidadType) Valid() bool {
	switch t {
	case EntidadTypePerson, EntidadTypeOrganization, EntidadTypeInstitution,
		EntidadTypePlace, EntidadTypeEvent, EntidadTypeRegulation, EntidadTypeConcept:
		return true
	}
	return false
}

// Entidad represents a named real-world referent. The ID is job scoped until
// persisted. The fusion relation (FusedInto) forms a forest: following
// FusedInto repeatedly always terminates at an entity without a FusedInto
// pointer (the canonical survivor). An entidad with FusedInto set is inert,
// no new relations may reference it directly.
type Entidad struct {
	ID              int64       `json:"id"`
	Name            string      `json:"name"`
	Aliases         []string    `json:"aliases,omitempty"`
	Type            EntidadType `json:"type"`
	Description     string      `json:"description,omitempty"` // accumulated bullet lines, one per row
	BirthDate       *time.Time  `json:"birth_date,omitempty"`
	DissolutionDate *time.Time  `json:"dissolution_date,omitempty"`
	FusedInto       *int64      `json:"fused_into,omitempty"`
	NameEmbedding   []float32   `json:"name_embedding,omitempty"`
	Version         int         `json:"version"`
	CreatedAt       time.Time   `json:"created_at"`
	// Search results
	Similarity    float64 `json:"similarity,omitempty"`
	RelationCount int     `json:"relation_count,omitempty"`
}

// IsCanonical reports whether the entidad is a fusion survivor.
func (e *Entidad) IsCanonical() bool {
	return e.FusedInto == nil
}

// AppendDescription adds new bullet lines to the description, skipping lines
// already present. The description stays a flat list, never nested structure.
func (e *Entidad) AppendDescription(bullets []string) {
	existing := make(map[string]bool)
	for _, line := range splitBullets(e.Description) {
		existing[line] = true
	}
	for _, bullet := range bullets {
		if bullet == "" || existing[bullet] {
			continue
		}
		if e.Description != "" {
			e.Description += "\n"
		}
		e.Description += "- " + bullet
		existing[bullet] = true
	}
}

// AppendAliases adds new aliases, skipping duplicates and the canonical name.
func (e *Entidad) AppendAliases(aliases []string) {
	existing := make(map[string]bool, len(e.Aliases)+1)
	existing[e.Name] = true
	for _, a := range e.Aliases {
		existing[a] = true
	}
	for _, a := range aliases {
		if a == "" || existing[a] {
			continue
		}
		e.Aliases = append(e.Aliases, a)
		existing[a] = true
	}
}

func splitBullets(description string) []string {
	var lines []string
	start := 0
	for i := 0; i <= len(description); i++ {
		if i == len(description) || description[i] == '\n' {
			line := description[start:i]
			if len(line) > 2 && line[0] == '-' && line[1] == ' ' {
				line = line[2:]
			}
			if line != "" {
				lines = append(lines, line)
			}
			start = i + 1
		}
	}
	return lines
}
