package model

import "time"

// TemporalPrecision describes how precisely a hecho's occurrence date is known.
type TemporalPrecision string

const (
	PrecisionExact   TemporalPrecision = "exact"
	PrecisionDay     TemporalPrecision = "day"
	PrecisionWeek    TemporalPrecision = "week"
	PrecisionMonth   TemporalPrecision = "month"
	PrecisionQuarter TemporalPrecision = "quarter"
	PrecisionYear    TemporalPrecision = "year"
	PrecisionDecade  TemporalPrecision = "decade"
	PrecisionPeriod  TemporalPrecision = "period"
)

// Valid reports whether the precision is a known temporal precision.
func (p TemporalPrecision) Valid() bool {
	switch p {
	case PrecisionExact, PrecisionDay, PrecisionWeek, PrecisionMonth,
		PrecisionQuarter, PrecisionYear, PrecisionDecade, PrecisionPeriod:
		return true
	}
	return false
}

// HechoType classifies an extracted fact.
type HechoType string

const (
	HechoTypeOccurrence   HechoType = "occurrence"
	HechoTypeAnnouncement HechoType = "announcement"
	HechoTypeStatement    HechoType = "statement"
	HechoTypeBiography    HechoType = "biography"
	HechoTypeConcept      HechoType = "concept"
	HechoTypeRegulation   HechoType = "regulation"
	HechoTypeEvent        HechoType = "event"
)

// Valid reports whether the type is a known hecho type.
func (t HechoType) Valid() bool {
	switch t {
	case HechoTypeOccurrence, HechoTypeAnnouncement, HechoTypeStatement,
		HechoTypeBiography, HechoTypeConcept, HechoTypeRegulation, HechoTypeEvent:
		return true
	}
	return false
}

// Hecho represents an extracted fact or event. The ID is job scoped
// (sequential, starting at 1) until the hecho is persisted, after which it
// carries the store assigned identifier.
type Hecho struct {
	ID              int64             `json:"id"`
	ArticleID       int64             `json:"article_id,omitempty"`
	Content         string            `json:"content"`
	OccurredFrom    time.Time         `json:"occurred_from"`
	OccurredTo      time.Time         `json:"occurred_to"`
	Precision       TemporalPrecision `json:"precision"`
	Type            HechoType         `json:"type"`
	Countries       []string          `json:"countries,omitempty"`
	Regions         []string          `json:"regions,omitempty"`
	Cities          []string          `json:"cities,omitempty"`
	Future          bool              `json:"future"`
	SchedulingState *string           `json:"scheduling_state,omitempty"` // only meaningful when Future is true
	Metadata        Metadata          `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// OverlapsOrNear reports whether the occurrence ranges of two hechos overlap
// or lie within the given proximity of each other.
func (h *Hecho) OverlapsOrNear(other *Hecho, proximity time.Duration) bool {
	if h.OccurredFrom.After(other.OccurredTo) {
		return h.OccurredFrom.Sub(other.OccurredTo) <= proximity
	}
	if other.OccurredFrom.After(h.OccurredTo) {
		return other.OccurredFrom.Sub(h.OccurredTo) <= proximity
	}
	return true
}
