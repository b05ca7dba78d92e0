package model

import "time"

// Cita is a quotation extracted in the complementary elements phase.
// HechoID and EntidadID reference job scoped identifiers from the basic
// elements phase until persisted.
type Cita struct {
	ID        int64      `json:"id,omitempty"`
	HechoID   *int64     `json:"hecho_id,omitempty"`
	EntidadID int64      `json:"entidad_id"` // the speaker
	Content   string     `json:"content"`
	Date      *time.Time `json:"date,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// DatoCuantitativo is a quantitative data point extracted in the
// complementary elements phase.
type DatoCuantitativo struct {
	ID        int64      `json:"id,omitempty"`
	HechoID   int64      `json:"hecho_id"`
	Indicator string     `json:"indicator"`
	Category  string     `json:"category,omitempty"`
	Value     float64    `json:"value"`
	Unit      string     `json:"unit,omitempty"`
	Date      *time.Time `json:"date,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
