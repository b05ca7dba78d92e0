package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"

	"github.com/siherrmann/facter/helper"
)

// Extraction is the accumulated structured output of the extraction phases.
// It is checkpointed to the job store after every successful phase so that a
// crashed job can resume from its last completed phase. All identifiers are
// job scoped until the consolidated result is committed.
type Extraction struct {
	Hechos          []*Hecho            `json:"hechos,omitempty"`
	Entidades       []*Entidad          `json:"entidades,omitempty"`
	Citas           []*Cita             `json:"citas,omitempty"`
	Datos           []*DatoCuantitativo `json:"datos,omitempty"`
	HechoEntidad    []*HechoEntidad     `json:"hecho_entidad,omitempty"`
	HechoHecho      []*HechoHecho       `json:"hecho_hecho,omitempty"`
	EntidadEntidad  []*EntidadEntidad   `json:"entidad_entidad,omitempty"`
	Contradicciones []*Contradiccion    `json:"contradicciones,omitempty"`
}

// HechoIDs returns the set of job scoped hecho identifiers.
func (e *Extraction) HechoIDs() map[int64]bool {
	ids := make(map[int64]bool, len(e.Hechos))
	for _, h := range e.Hechos {
		ids[h.ID] = true
	}
	return ids
}

// EntidadIDs returns the set of job scoped entidad identifiers.
func (e *Extraction) EntidadIDs() map[int64]bool {
	ids := make(map[int64]bool, len(e.Entidades))
	for _, en := range e.Entidades {
		ids[en.ID] = true
	}
	return ids
}

// Value implements the driver.Valuer interface for JSONB storage.
func (e Extraction) Value() (driver.Value, error) {
	return json.Marshal(e)
}

// Scan implements the sql.Scanner interface for JSONB retrieval.
func (e *Extraction) Scan(value interface{}) error {
	if value == nil {
		*e = Extraction{}
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return helper.NewError("byte assertion", errors.New("type assertion to []byte failed"))
	}
	return json.Unmarshal(b, e)
}

// Fusion is a fusion edge to be written on a previously persisted entidad:
// source gets FusedInto set to target. SourceVersion is the version the
// resolution engine observed, used for the optimistic concurrency check at
// commit time.
type Fusion struct {
	SourceID      int64 `json:"source_id"`
	TargetID      int64 `json:"target_id"`
	SourceVersion int   `json:"source_version"`
}

// ResolvedEntitySet is the output of entity resolution for one job.
type ResolvedEntitySet struct {
	// Matched maps job scoped candidate ids to persisted canonical store
	// ids. Job scoped ids never appear as values here, in-job duplicates go
	// into Collapsed instead.
	Matched map[int64]int64 `json:"matched,omitempty"`
	// Collapsed maps job scoped candidate ids to the job scoped id of an
	// earlier equivalent candidate in the same job, for candidates that
	// normalize to the same name and type. Values are job scoped ids, kept
	// apart from Matched so the two id spaces can never collide.
	Collapsed map[int64]int64 `json:"collapsed,omitempty"`
	// New holds candidates without a match above threshold; they keep their
	// job scoped ids until the gateway inserts them.
	New []*Entidad `json:"new,omitempty"`
	// MergedInto holds the canonical persisted entidades that matched
	// candidates were fused into, with aliases and description bullets
	// already appended. The gateway writes these updates.
	MergedInto []*Entidad `json:"merged_into,omitempty"`
	// Fusions are fusion edges between previously persisted entidades.
	Fusions []Fusion `json:"fusions,omitempty"`
}

// CanonicalID returns the canonical identifier for a job scoped candidate id.
// Collapsed candidates resolve through their in-job representative first,
// new candidates resolve to themselves.
func (r *ResolvedEntitySet) CanonicalID(jobScopedID int64) int64 {
	if first, ok := r.Collapsed[jobScopedID]; ok {
		jobScopedID = first
	}
	if id, ok := r.Matched[jobScopedID]; ok {
		return id
	}
	return jobScopedID
}

// ConsolidatedResult is the full in-memory set produced by a job before
// commit: the article, the extraction output, the resolved entity set and
// the contradictions detected against previously persisted hechos.
type ConsolidatedResult struct {
	Article         *Article           `json:"article"`
	Extraction      *Extraction        `json:"extraction"`
	Resolved        *ResolvedEntitySet `json:"resolved"`
	Contradicciones []*Contradiccion   `json:"contradicciones,omitempty"` // ContradictsHechoID is store scoped here
}

// CommitOutcome describes the result of a successful atomic commit.
type CommitOutcome struct {
	ArticleID  int64           `json:"article_id"`
	Duplicate  bool            `json:"duplicate"` // article hash already persisted, nothing was written
	HechoIDs   map[int64]int64 `json:"hecho_ids,omitempty"`   // job scoped -> store id
	EntidadIDs map[int64]int64 `json:"entidad_ids,omitempty"` // job scoped -> store id
}
