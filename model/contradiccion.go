package model

import "time"

// ContradiccionType classifies the kind of conflict between two hechos.
type ContradiccionType string

const (
	ContradiccionDate     ContradiccionType = "date"
	ContradiccionContent  ContradiccionType = "content"
	ContradiccionEntities ContradiccionType = "entities"
	ContradiccionLocation ContradiccionType = "location"
	ContradiccionValue    ContradiccionType = "value"
	ContradiccionComplete ContradiccionType = "complete"
)

// Valid reports whether the type is a known contradiction type.
func (t ContradiccionType) Valid() bool {
	switch t {
	case ContradiccionDate, ContradiccionContent, ContradiccionEntities,
		ContradiccionLocation, ContradiccionValue, ContradiccionComplete:
		return true
	}
	return false
}

// Contradiccion links two hechos with a conflict type and a severity grade
// between 1 (minor wording discrepancy) and 5 (mutually exclusive claims
// about the same entity and time window). Detection is advisory, it
// annotates but never blocks persistence.
type Contradiccion struct {
	ID                 int64             `json:"id,omitempty"`
	HechoID            int64             `json:"hecho_id"`
	ContradictsHechoID int64             `json:"contradicts_hecho_id"`
	Type               ContradiccionType `json:"type"`
	Severity           int               `json:"severity"`
	Explanation        string            `json:"explanation,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
}
