package model

import "time"

// HechoEntidadRole describes the role an entidad plays in a hecho.
type HechoEntidadRole string

const (
	RoleProtagonist HechoEntidadRole = "protagonist"
	RoleMentioned   HechoEntidadRole = "mentioned"
	RoleAffected    HechoEntidadRole = "affected"
	RoleDeclarant   HechoEntidadRole = "declarant"
	RoleLocation    HechoEntidadRole = "location"
	RoleContext     HechoEntidadRole = "context"
	RoleVictim      HechoEntidadRole = "victim"
	RoleAggressor   HechoEntidadRole = "aggressor"
	RoleOrganizer   HechoEntidadRole = "organizer"
	RoleParticipant HechoEntidadRole = "participant"
	RoleOther       HechoEntidadRole = "other"
)

// Valid reports whether the role is a known hecho-entidad role.
func (r HechoEntidadRole) Valid() bool {
	switch r {
	case RoleProtagonist, RoleMentioned, RoleAffected, RoleDeclarant, RoleLocation,
		RoleContext, RoleVictim, RoleAggressor, RoleOrganizer, RoleParticipant, RoleOther:
		return true
	}
	return false
}

// HechoEntidad links a hecho with an entidad. Relevance is an opaque ordinal
// score between 1 and 10 supplied by the generation service.
type HechoEntidad struct {
	ID        int64            `json:"id,omitempty"`
	HechoID   int64            `json:"hecho_id"`
	EntidadID int64            `json:"entidad_id"`
	Role      HechoEntidadRole `json:"role"`
	Relevance int              `json:"relevance"`
	CreatedAt time.Time        `json:"created_at"`
}

// HechoHechoType describes the relation between two hechos.
type HechoHechoType string

const (
	HechoRelCause              HechoHechoType = "cause"
	HechoRelConsequence        HechoHechoType = "consequence"
	HechoRelHistoricalContext  HechoHechoType = "historical_context"
	HechoRelResponseTo         HechoHechoType = "response_to"
	HechoRelClarificationOf    HechoHechoType = "clarification_of"
	HechoRelAlternativeVersion HechoHechoType = "alternative_version"
	HechoRelFollowUp           HechoHechoType = "follow_up"
)

// Valid reports whether the type is a known hecho-hecho relation type.
func (t HechoHechoType) Valid() bool {
	switch t {
	case HechoRelCause, HechoRelConsequence, HechoRelHistoricalContext,
		HechoRelResponseTo, HechoRelClarificationOf, HechoRelAlternativeVersion, HechoRelFollowUp:
		return true
	}
	return false
}

// HechoHecho links two hechos. Strength is an opaque ordinal score 1-10.
type HechoHecho struct {
	ID            int64          `json:"id,omitempty"`
	SourceHechoID int64          `json:"source_hecho_id"`
	TargetHechoID int64          `json:"target_hecho_id"`
	Type          HechoHechoType `json:"type"`
	Strength      int            `json:"strength"`
	CreatedAt     time.Time      `json:"created_at"`
}

// EntidadEntidadType describes the relation between two entidades.
type EntidadEntidadType string

const (
	EntidadRelMemberOf      EntidadEntidadType = "member_of"
	EntidadRelSubsidiaryOf  EntidadEntidadType = "subsidiary_of"
	EntidadRelAlliedWith    EntidadEntidadType = "allied_with"
	EntidadRelOpposedTo     EntidadEntidadType = "opposed_to"
	EntidadRelSuccessorOf   EntidadEntidadType = "successor_of"
	EntidadRelPredecessorOf EntidadEntidadType = "predecessor_of"
	EntidadRelMarriedTo     EntidadEntidadType = "married_to"
	EntidadRelFamilyOf      EntidadEntidadType = "family_of"
	EntidadRelEmployedBy    EntidadEntidadType = "employed_by"
)

// Valid reports whether the type is a known entidad-entidad relation type.
func (t EntidadEntidadType) Valid() bool {
	switch t {
	case EntidadRelMemberOf, EntidadRelSubsidiaryOf, EntidadRelAlliedWith,
		EntidadRelOpposedTo, EntidadRelSuccessorOf, EntidadRelPredecessorOf,
		EntidadRelMarriedTo, EntidadRelFamilyOf, EntidadRelEmployedBy:
		return true
	}
	return false
}

// EntidadEntidad links two entidades, optionally bounded in time.
// Strength is an opaque ordinal score 1-10.
type EntidadEntidad struct {
	ID              int64              `json:"id,omitempty"`
	SourceEntidadID int64              `json:"source_entidad_id"`
	TargetEntidadID int64              `json:"target_entidad_id"`
	Type            EntidadEntidadType `json:"type"`
	StartDate       *time.Time         `json:"start_date,omitempty"`
	EndDate         *time.Time         `json:"end_date,omitempty"`
	Strength        int                `json:"strength"`
	CreatedAt       time.Time          `json:"created_at"`
}
