package generation

// Wire DTOs for the structured JSON responses of the generation service.
// Field names follow the upstream extraction schema. Nothing here is trusted,
// every field is checked in validate.go before conversion to model types.

type basicElementsResponse struct {
	Hechos    []hechoWire   `json:"hechos"`
	Entidades []entidadWire `json:"entidades"`
}

type complementaryElementsResponse struct {
	Citas []citaWire `json:"citas"`
	Datos []datoWire `json:"datos_cuantitativos"`
}

type relationsResponse struct {
	HechoEntidad    []hechoEntidadWire   `json:"hecho_entidad"`
	HechoHecho      []hechoHechoWire     `json:"hecho_hecho"`
	EntidadEntidad  []entidadEntidadWire `json:"entidad_entidad"`
	Contradicciones []contradiccionWire  `json:"contradicciones"`
}

type hechoWire struct {
	ID                 int64    `json:"id"`
	Contenido          string   `json:"contenido"`
	Fecha              string   `json:"fecha"`
	Precision          string   `json:"precision,omitempty"`
	Tipo               string   `json:"tipo_hecho"`
	Paises             []string `json:"paises,omitempty"`
	Regiones           []string `json:"regiones,omitempty"`
	Ciudades           []string `json:"ciudades,omitempty"`
	EsFuturo           bool     `json:"es_futuro"`
	EstadoProgramacion *string  `json:"estado_programacion,omitempty"`
}

type entidadWire struct {
	ID              int64    `json:"id"`
	Nombre          string   `json:"nombre"`
	Alias           []string `json:"alias,omitempty"`
	Tipo            string   `json:"tipo"`
	Descripcion     string   `json:"descripcion,omitempty"`
	FechaNacimiento *string  `json:"fecha_nacimiento,omitempty"`
	FechaDisolucion *string  `json:"fecha_disolucion,omitempty"`
}

type citaWire struct {
	HechoID   *int64  `json:"hecho_id,omitempty"`
	EntidadID int64   `json:"entidad_id"`
	Contenido string  `json:"contenido"`
	Fecha     *string `json:"fecha,omitempty"`
}

type datoWire struct {
	HechoID   int64   `json:"hecho_id"`
	Indicador string  `json:"indicador"`
	Categoria string  `json:"categoria,omitempty"`
	Valor     float64 `json:"valor"`
	Unidad    string  `json:"unidad,omitempty"`
	Fecha     *string `json:"fecha,omitempty"`
}

type hechoEntidadWire struct {
	HechoID    int64  `json:"hecho_id"`
	EntidadID  int64  `json:"entidad_id"`
	Rol        string `json:"rol"`
	Relevancia int    `json:"relevancia"`
}

type hechoHechoWire struct {
	HechoOrigenID  int64  `json:"hecho_origen_id"`
	HechoDestinoID int64  `json:"hecho_destino_id"`
	TipoRelacion   string `json:"tipo_relacion"`
	Fuerza         int    `json:"fuerza"`
}

type entidadEntidadWire struct {
	EntidadOrigenID  int64   `json:"entidad_origen_id"`
	EntidadDestinoID int64   `json:"entidad_destino_id"`
	TipoRelacion     string  `json:"tipo_relacion"`
	FechaInicio      *string `json:"fecha_inicio,omitempty"`
	FechaFin         *string `json:"fecha_fin,omitempty"`
	Fuerza           int     `json:"fuerza"`
}

type contradiccionWire struct {
	HechoID               int64  `json:"hecho_id"`
	HechoContradictorioID int64  `json:"hecho_contradictorio_id"`
	TipoContradiccion     string `json:"tipo_contradiccion"`
	Grado                 int    `json:"grado_contradiccion"`
	Explicacion           string `json:"explicacion,omitempty"`
}
