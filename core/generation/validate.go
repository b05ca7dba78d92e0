package generation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/siherrmann/facter/model"
)

// ParsePhaseResponse validates a raw generation service response against the
// phase's structural schema and converts it to model types. Any violation is
// returned as a plain error, the caller wraps it as malformed output.
// Cross-references (identifiers used by a later phase) are checked against
// the accumulated output of the earlier phases in the input.
func ParsePhaseResponse(phase Phase, raw []byte, input *PhaseInput) (*model.Extraction, error) {
	switch phase {
	case PhaseBasicElements:
		return parseBasicElements(raw, input)
	case PhaseComplementaryElements:
		return parseComplementaryElements(raw, input)
	case PhaseRelations:
		return parseRelations(raw, input)
	}
	return nil, fmt.Errorf("unknown phase %v", phase)
}

func parseBasicElements(raw []byte, input *PhaseInput) (*model.Extraction, error) {
	var response basicElementsResponse
	if err := json.Unmarshal(raw, &response); err != nil {
		return nil, fmt.Errorf("invalid phase response JSON: %w", err)
	}

	extraction := &model.Extraction{}

	hechoIDs := map[int64]bool{}
	for i, wire := range response.Hechos {
		if wire.ID <= 0 {
			return nil, fmt.Errorf("hecho %d: identifier must be positive, got %v", i, wire.ID)
		}
		if hechoIDs[wire.ID] {
			return nil, fmt.Errorf("hecho %d: duplicate identifier %v", i, wire.ID)
		}
		hechoIDs[wire.ID] = true
		if wire.Contenido == "" {
			return nil, fmt.Errorf("hecho %v: empty content", wire.ID)
		}

		hechoType := model.HechoType(wire.Tipo)
		if !hechoType.Valid() {
			return nil, fmt.Errorf("hecho %v: unknown type %q", wire.ID, wire.Tipo)
		}

		from, to, precision, err := ResolveDateRange(wire.Fecha, input.Payload.ReferenceDate)
		if err != nil {
			return nil, fmt.Errorf("hecho %v: %w", wire.ID, err)
		}
		if wire.Precision != "" {
			precision = model.TemporalPrecision(wire.Precision)
			if !precision.Valid() {
				return nil, fmt.Errorf("hecho %v: unknown precision %q", wire.ID, wire.Precision)
			}
		}

		if !wire.EsFuturo && wire.EstadoProgramacion != nil {
			return nil, fmt.Errorf("hecho %v: scheduling state on non-future hecho", wire.ID)
		}

		extraction.Hechos = append(extraction.Hechos, &model.Hecho{
			ID:              wire.ID,
			Content:         wire.Contenido,
			OccurredFrom:    from,
			OccurredTo:      to,
			Precision:       precision,
			Type:            hechoType,
			Countries:       wire.Paises,
			Regions:         wire.Regiones,
			Cities:          wire.Ciudades,
			Future:          wire.EsFuturo,
			SchedulingState: wire.EstadoProgramacion,
		})
	}

	entidadIDs := map[int64]bool{}
	for i, wire := range response.Entidades {
		if wire.ID <= 0 {
			return nil, fmt.Errorf("entidad %d: identifier must be positive, got %v", i, wire.ID)
		}
		if entidadIDs[wire.ID] {
			return nil, fmt.Errorf("entidad %d: duplicate identifier %v", i, wire.ID)
		}
		entidadIDs[wire.ID] = true
		if wire.Nombre == "" {
			return nil, fmt.Errorf("entidad %v: empty name", wire.ID)
		}

		entidadType := model.EntidadType(wire.Tipo)
		if !entidadType.Valid() {
			return nil, fmt.Errorf("entidad %v: unknown type %q", wire.ID, wire.Tipo)
		}

		birthDate, err := parseOptionalDate(wire.FechaNacimiento, input.Payload.ReferenceDate)
		if err != nil {
			return nil, fmt.Errorf("entidad %v: invalid birth date: %w", wire.ID, err)
		}
		dissolutionDate, err := parseOptionalDate(wire.FechaDisolucion, input.Payload.ReferenceDate)
		if err != nil {
			return nil, fmt.Errorf("entidad %v: invalid dissolution date: %w", wire.ID, err)
		}

		entidad := &model.Entidad{
			ID:              wire.ID,
			Name:            wire.Nombre,
			Aliases:         wire.Alias,
			Type:            entidadType,
			BirthDate:       birthDate,
			DissolutionDate: dissolutionDate,
		}
		entidad.AppendDescription(splitLines(wire.Descripcion))
		extraction.Entidades = append(extraction.Entidades, entidad)
	}

	return extraction, nil
}

func parseComplementaryElements(raw []byte, input *PhaseInput) (*model.Extraction, error) {
	var response complementaryElementsResponse
	if err := json.Unmarshal(raw, &response); err != nil {
		return nil, fmt.Errorf("invalid phase response JSON: %w", err)
	}

	hechoIDs := input.Accumulated.HechoIDs()
	entidadIDs := input.Accumulated.EntidadIDs()
	extraction := &model.Extraction{}

	for i, wire := range response.Citas {
		if wire.Contenido == "" {
			return nil, fmt.Errorf("cita %d: empty content", i)
		}
		if !entidadIDs[wire.EntidadID] {
			return nil, fmt.Errorf("cita %d: unknown entidad %v", i, wire.EntidadID)
		}
		if wire.HechoID != nil && !hechoIDs[*wire.HechoID] {
			return nil, fmt.Errorf("cita %d: unknown hecho %v", i, *wire.HechoID)
		}
		date, err := parseOptionalDate(wire.Fecha, input.Payload.ReferenceDate)
		if err != nil {
			return nil, fmt.Errorf("cita %d: invalid date: %w", i, err)
		}

		extraction.Citas = append(extraction.Citas, &model.Cita{
			ID:        int64(i + 1),
			HechoID:   wire.HechoID,
			EntidadID: wire.EntidadID,
			Content:   wire.Contenido,
			Date:      date,
		})
	}

	for i, wire := range response.Datos {
		if wire.Indicador == "" {
			return nil, fmt.Errorf("dato %d: empty indicator", i)
		}
		if !hechoIDs[wire.HechoID] {
			return nil, fmt.Errorf("dato %d: unknown hecho %v", i, wire.HechoID)
		}
		date, err := parseOptionalDate(wire.Fecha, input.Payload.ReferenceDate)
		if err != nil {
			return nil, fmt.Errorf("dato %d: invalid date: %w", i, err)
		}

		extraction.Datos = append(extraction.Datos, &model.DatoCuantitativo{
			ID:        int64(i + 1),
			HechoID:   wire.HechoID,
			Indicator: wire.Indicador,
			Category:  wire.Categoria,
			Value:     wire.Valor,
			Unit:      wire.Unidad,
			Date:      date,
		})
	}

	return extraction, nil
}

func parseRelations(raw []byte, input *PhaseInput) (*model.Extraction, error) {
	var response relationsResponse
	if err := json.Unmarshal(raw, &response); err != nil {
		return nil, fmt.Errorf("invalid phase response JSON: %w", err)
	}

	hechoIDs := input.Accumulated.HechoIDs()
	entidadIDs := input.Accumulated.EntidadIDs()
	extraction := &model.Extraction{}

	for i, wire := range response.HechoEntidad {
		if !hechoIDs[wire.HechoID] {
			return nil, fmt.Errorf("hecho_entidad %d: unknown hecho %v", i, wire.HechoID)
		}
		if !entidadIDs[wire.EntidadID] {
			return nil, fmt.Errorf("hecho_entidad %d: unknown entidad %v", i, wire.EntidadID)
		}
		role := model.HechoEntidadRole(wire.Rol)
		if !role.Valid() {
			return nil, fmt.Errorf("hecho_entidad %d: unknown role %q", i, wire.Rol)
		}
		if wire.Relevancia < 1 || wire.Relevancia > 10 {
			return nil, fmt.Errorf("hecho_entidad %d: relevance %v out of range 1-10", i, wire.Relevancia)
		}

		extraction.HechoEntidad = append(extraction.HechoEntidad, &model.HechoEntidad{
			HechoID:   wire.HechoID,
			EntidadID: wire.EntidadID,
			Role:      role,
			Relevance: wire.Relevancia,
		})
	}

	for i, wire := range response.HechoHecho {
		if !hechoIDs[wire.HechoOrigenID] {
			return nil, fmt.Errorf("hecho_hecho %d: unknown source hecho %v", i, wire.HechoOrigenID)
		}
		if !hechoIDs[wire.HechoDestinoID] {
			return nil, fmt.Errorf("hecho_hecho %d: unknown target hecho %v", i, wire.HechoDestinoID)
		}
		if wire.HechoOrigenID == wire.HechoDestinoID {
			return nil, fmt.Errorf("hecho_hecho %d: self relation on hecho %v", i, wire.HechoOrigenID)
		}
		relationType := model.HechoHechoType(wire.TipoRelacion)
		if !relationType.Valid() {
			return nil, fmt.Errorf("hecho_hecho %d: unknown relation type %q", i, wire.TipoRelacion)
		}
		if wire.Fuerza < 1 || wire.Fuerza > 10 {
			return nil, fmt.Errorf("hecho_hecho %d: strength %v out of range 1-10", i, wire.Fuerza)
		}

		extraction.HechoHecho = append(extraction.HechoHecho, &model.HechoHecho{
			SourceHechoID: wire.HechoOrigenID,
			TargetHechoID: wire.HechoDestinoID,
			Type:          relationType,
			Strength:      wire.Fuerza,
		})
	}

	for i, wire := range response.EntidadEntidad {
		if !entidadIDs[wire.EntidadOrigenID] {
			return nil, fmt.Errorf("entidad_entidad %d: unknown source entidad %v", i, wire.EntidadOrigenID)
		}
		if !entidadIDs[wire.EntidadDestinoID] {
			return nil, fmt.Errorf("entidad_entidad %d: unknown target entidad %v", i, wire.EntidadDestinoID)
		}
		if wire.EntidadOrigenID == wire.EntidadDestinoID {
			return nil, fmt.Errorf("entidad_entidad %d: self relation on entidad %v", i, wire.EntidadOrigenID)
		}
		relationType := model.EntidadEntidadType(wire.TipoRelacion)
		if !relationType.Valid() {
			return nil, fmt.Errorf("entidad_entidad %d: unknown relation type %q", i, wire.TipoRelacion)
		}
		if wire.Fuerza < 1 || wire.Fuerza > 10 {
			return nil, fmt.Errorf("entidad_entidad %d: strength %v out of range 1-10", i, wire.Fuerza)
		}
		startDate, err := parseOptionalDate(wire.FechaInicio, input.Payload.ReferenceDate)
		if err != nil {
			return nil, fmt.Errorf("entidad_entidad %d: invalid start date: %w", i, err)
		}
		endDate, err := parseOptionalDate(wire.FechaFin, input.Payload.ReferenceDate)
		if err != nil {
			return nil, fmt.Errorf("entidad_entidad %d: invalid end date: %w", i, err)
		}

		extraction.EntidadEntidad = append(extraction.EntidadEntidad, &model.EntidadEntidad{
			SourceEntidadID: wire.EntidadOrigenID,
			TargetEntidadID: wire.EntidadDestinoID,
			Type:            relationType,
			StartDate:       startDate,
			EndDate:         endDate,
			Strength:        wire.Fuerza,
		})
	}

	for i, wire := range response.Contradicciones {
		if !hechoIDs[wire.HechoID] {
			return nil, fmt.Errorf("contradiccion %d: unknown hecho %v", i, wire.HechoID)
		}
		if !hechoIDs[wire.HechoContradictorioID] {
			return nil, fmt.Errorf("contradiccion %d: unknown contradicted hecho %v", i, wire.HechoContradictorioID)
		}
		if wire.HechoID == wire.HechoContradictorioID {
			return nil, fmt.Errorf("contradiccion %d: hecho %v cannot contradict itself", i, wire.HechoID)
		}
		contradiccionType := model.ContradiccionType(wire.TipoContradiccion)
		if !contradiccionType.Valid() {
			return nil, fmt.Errorf("contradiccion %d: unknown type %q", i, wire.TipoContradiccion)
		}
		if wire.Grado < 1 || wire.Grado > 5 {
			return nil, fmt.Errorf("contradiccion %d: severity %v out of range 1-5", i, wire.Grado)
		}

		extraction.Contradicciones = append(extraction.Contradicciones, &model.Contradiccion{
			HechoID:            wire.HechoID,
			ContradictsHechoID: wire.HechoContradictorioID,
			Type:               contradiccionType,
			Severity:           wire.Grado,
			Explanation:        wire.Explicacion,
		})
	}

	return extraction, nil
}

// parseOptionalDate resolves an optional single date expression to the start
// of its resolved range.
func parseOptionalDate(expr *string, reference time.Time) (*time.Time, error) {
	if expr == nil || *expr == "" {
		return nil, nil
	}
	from, _, _, err := ResolveDateRange(*expr, reference)
	if err != nil {
		return nil, err
	}
	return &from, nil
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i <= len(text); i++ {
		if i == len(text) || text[i] == '\n' {
			line := text[start:i]
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
