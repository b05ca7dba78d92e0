package generation

import (
	"encoding/json"
	"fmt"
)

const systemPrompt = `Eres un sistema de extracción de información factual de artículos de prensa.
Respondes exclusivamente con un único objeto JSON que cumple el esquema indicado.
No inventas información que no esté en el texto, no añades comentarios ni markdown.
Las fechas se expresan como "AAAA-MM-DD", "AAAA-MM", "AAAA", "AAAA-Qn", un rango
"inicio/fin", o una expresión relativa ("ayer", "hoy") que se interpreta contra
la fecha de referencia del artículo.`

var phaseInstructions = map[Phase]string{
	PhaseBasicElements: `Extrae los hechos y las entidades del artículo.

Esquema de respuesta:
{
  "hechos": [{"id": <entero secuencial desde 1>, "contenido": <string>, "fecha": <string>,
              "precision": <"exact"|"day"|"week"|"month"|"quarter"|"year"|"decade"|"period", opcional>,
              "tipo_hecho": <"occurrence"|"announcement"|"statement"|"biography"|"concept"|"regulation"|"event">,
              "paises": [<string>], "regiones": [<string>], "ciudades": [<string>],
              "es_futuro": <bool>, "estado_programacion": <string, solo si es_futuro>}],
  "entidades": [{"id": <entero secuencial desde 1>, "nombre": <string>, "alias": [<string>],
                 "tipo": <"person"|"organization"|"institution"|"place"|"event"|"regulation"|"concept">,
                 "descripcion": <string, viñetas separadas por salto de línea>,
                 "fecha_nacimiento": <string, opcional>, "fecha_disolucion": <string, opcional>}]
}`,
	PhaseComplementaryElements: `Extrae las citas textuales y los datos cuantitativos del artículo.
Usa exclusivamente los identificadores de hechos y entidades ya extraídos.

Esquema de respuesta:
{
  "citas": [{"hecho_id": <id existente, opcional>, "entidad_id": <id existente del hablante>,
             "contenido": <string>, "fecha": <string, opcional>}],
  "datos_cuantitativos": [{"hecho_id": <id existente>, "indicador": <string>,
                           "categoria": <string>, "valor": <número>, "unidad": <string>,
                           "fecha": <string, opcional>}]
}`,
	PhaseRelations: `Extrae las relaciones entre los elementos ya extraídos y las contradicciones
internas del artículo. Usa exclusivamente identificadores ya existentes.

Esquema de respuesta:
{
  "hecho_entidad": [{"hecho_id": <id>, "entidad_id": <id>,
                     "rol": <"protagonist"|"mentioned"|"affected"|"declarant"|"location"|"context"|"victim"|"aggressor"|"organizer"|"participant"|"other">,
                     "relevancia": <1-10>}],
  "hecho_hecho": [{"hecho_origen_id": <id>, "hecho_destino_id": <id>,
                   "tipo_relacion": <"cause"|"consequence"|"historical_context"|"response_to"|"clarification_of"|"alternative_version"|"follow_up">,
                   "fuerza": <1-10>}],
  "entidad_entidad": [{"entidad_origen_id": <id>, "entidad_destino_id": <id>,
                       "tipo_relacion": <"member_of"|"subsidiary_of"|"allied_with"|"opposed_to"|"successor_of"|"predecessor_of"|"married_to"|"family_of"|"employed_by">,
                       "fecha_inicio": <string, opcional>, "fecha_fin": <string, opcional>, "fuerza": <1-10>}],
  "contradicciones": [{"hecho_id": <id>, "hecho_contradictorio_id": <id>,
                       "tipo_contradiccion": <"date"|"content"|"entities"|"location"|"value"|"complete">,
                       "grado_contradiccion": <1-5>, "explicacion": <string>}]
}`,
}

// BuildPrompt constructs the user prompt for one phase: the phase
// instructions, the document metadata, the accumulated prior-phase output
// (never raw generation text) and the article body. An optional corrective
// detail from a previous validation failure is appended so the service can
// fix its output on the single corrective retry.
func BuildPrompt(phase Phase, input *PhaseInput, corrective string) (string, error) {
	instructions, ok := phaseInstructions[phase]
	if !ok {
		return "", fmt.Errorf("unknown phase %v", phase)
	}

	prompt := instructions + fmt.Sprintf(`

Metadatos del documento:
- Título: %s
- Medio: %s
- País: %s
- Fecha de publicación: %s
- Fecha de referencia: %s
`,
		input.Payload.Title,
		input.Payload.Medium,
		input.Payload.Country,
		input.Payload.PublicationDate.Format("2006-01-02"),
		input.Payload.ReferenceDate.Format("2006-01-02"),
	)

	if phase != PhaseBasicElements {
		accumulated, err := json.Marshal(input.Accumulated)
		if err != nil {
			return "", fmt.Errorf("error marshalling accumulated output: %w", err)
		}
		prompt += fmt.Sprintf("\nElementos ya extraídos en fases anteriores:\n%s\n", accumulated)
	}

	prompt += fmt.Sprintf("\nTexto del artículo:\n%s\n", input.Payload.Content)

	if corrective != "" {
		prompt += fmt.Sprintf("\nTu respuesta anterior no cumplió el esquema: %s\nCorrige la respuesta completa.\n", corrective)
	}

	return prompt, nil
}
