package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/facter/helper"
	"github.com/siherrmann/facter/model"
	facterSql "github.com/siherrmann/facter/sql"
)

// EntidadesDBHandlerFunctions defines the interface for entidad database operations.
type EntidadesDBHandlerFunctions interface {
	InsertEntidad(entidad *model.Entidad) error
	SelectEntidad(id int64) (*model.Entidad, error)
	SelectEntidadByName(normalizedName string, entidadType model.EntidadType) (*model.Entidad, error)
	SelectSimilarEntidades(normalizedName string, entidadType model.EntidadType, embedding []float32, limit int) ([]*model.Entidad, error)
	CountEntidadRelations(id int64) (int64, error)
	ResolveFusion(id int64) (int64, error)
	FuseEntidad(sourceID int64, targetID int64, expectedVersion int) (*model.Entidad, error)
	UpdateEntidadEnrichment(id int64, aliases []string, description string, expectedVersion int) (*model.Entidad, error)
}

// EntidadesDBHandler handles entidad-related database operations
type EntidadesDBHandler struct {
	db *helper.Database
}

// NewEntidadesDBHandler creates a new entidades database handler.
// It initializes the database connection and loads entidad-related SQL
// functions. The embedding dimension fixes the width of the name embedding
// column and must not change once the table exists.
// If force is true, it will reload the SQL functions even if they already exist.
func NewEntidadesDBHandler(db *helper.Database, embeddingDim int, force bool) (*EntidadesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if embeddingDim <= 0 {
		return nil, helper.NewError("embedding dimension validation", fmt.Errorf("embedding dimension must be positive, got %v", embeddingDim))
	}

	entidadesDbHandler := &EntidadesDBHandler{
		db: db,
	}

	err := facterSql.LoadEntidadesSql(entidadesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load entidades sql", err)
	}

	err = entidadesDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EntidadesDBHandler")

	return entidadesDbHandler, nil
}

// CreateTable creates the 'entidades' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary indexes, including the partial unique index
// on canonical names that concurrent entity creation converges on.
func (h *EntidadesDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_entidades($1);`, embeddingDim)
	if err != nil {
		log.Panicf("error initializing entidades table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table entidades")

	return nil
}

// IsUniqueViolation reports whether the error is a postgres unique
// constraint violation. The persistence gateway uses this to convert a lost
// canonical-name race into a fusion onto the winning entidad.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// InsertEntidad inserts a new canonical entidad. The entidad's ID is
// replaced by the store assigned identifier. Inserting a second canonical
// entidad with the same normalized name and type fails with a unique
// violation, see IsUniqueViolation.
func (h *EntidadesDBHandler) InsertEntidad(entidad *model.Entidad) error {
	return h.InsertEntidadTx(h.db.Instance, entidad)
}

// InsertEntidadTx is InsertEntidad running against the given Querier.
func (h *EntidadesDBHandler) InsertEntidadTx(q Querier, entidad *model.Entidad) error {
	var embedding interface{}
	if len(entidad.NameEmbedding) > 0 {
		embedding = pgvector.NewVector(entidad.NameEmbedding)
	}

	row := q.QueryRow(
		`SELECT * FROM insert_entidad($1, $2, $3, $4, $5, $6, $7, $8)`,
		entidad.Name,
		model.NormalizeName(entidad.Name),
		pq.Array(entidad.Aliases),
		string(entidad.Type),
		entidad.Description,
		entidad.BirthDate,
		entidad.DissolutionDate,
		embedding,
	)

	err := scanEntidad(row, entidad)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectEntidad retrieves an entidad by ID.
func (h *EntidadesDBHandler) SelectEntidad(id int64) (*model.Entidad, error) {
	entidad := &model.Entidad{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_entidad($1)`,
		id,
	)

	err := scanEntidad(row, entidad)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return entidad, nil
}

// SelectEntidadByName retrieves the canonical entidad with the given
// normalized name and type. It returns nil without error when no such
// entidad exists.
func (h *EntidadesDBHandler) SelectEntidadByName(normalizedName string, entidadType model.EntidadType) (*model.Entidad, error) {
	return h.SelectEntidadByNameTx(h.db.Instance, normalizedName, entidadType)
}

// SelectEntidadByNameTx is SelectEntidadByName running against the given Querier.
func (h *EntidadesDBHandler) SelectEntidadByNameTx(q Querier, normalizedName string, entidadType model.EntidadType) (*model.Entidad, error) {
	entidad := &model.Entidad{}
	row := q.QueryRow(
		`SELECT * FROM select_entidad_by_name($1, $2)`,
		normalizedName,
		string(entidadType),
	)

	err := scanEntidad(row, entidad)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return entidad, nil
}

// SelectSimilarEntidades retrieves the canonical entidades of the given type
// most similar to the given normalized name, ranked by the best of trigram
// name similarity, trigram alias similarity and embedding cosine similarity.
// The Similarity and RelationCount fields of the results are populated.
func (h *EntidadesDBHandler) SelectSimilarEntidades(normalizedName string, entidadType model.EntidadType, embedding []float32, limit int) ([]*model.Entidad, error) {
	var embeddingArg interface{}
	if len(embedding) > 0 {
		embeddingArg = pgvector.NewVector(embedding)
	}

	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_similar_entidades($1, $2, $3, $4)`,
		normalizedName,
		string(entidadType),
		embeddingArg,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var entidades []*model.Entidad
	for rows.Next() {
		entidad := &model.Entidad{}
		var birthDate, dissolutionDate sql.NullTime
		var fusedInto sql.NullInt64
		err := rows.Scan(
			&entidad.ID,
			&entidad.Name,
			&normalizedName,
			pq.Array(&entidad.Aliases),
			&entidad.Type,
			&entidad.Description,
			&birthDate,
			&dissolutionDate,
			&fusedInto,
			&entidad.Version,
			&entidad.CreatedAt,
			&entidad.Similarity,
			&entidad.RelationCount,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		setEntidadNullables(entidad, birthDate, dissolutionDate, fusedInto)
		entidades = append(entidades, entidad)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return entidades, nil
}

// CountEntidadRelations returns the number of relations referencing the
// entidad across hecho_entidad and entidad_entidad.
func (h *EntidadesDBHandler) CountEntidadRelations(id int64) (int64, error) {
	var count int64
	row := h.db.Instance.QueryRow(
		`SELECT * FROM count_entidad_relations($1)`,
		id,
	)

	err := row.Scan(&count)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}

	return count, nil
}

// ResolveFusion follows the fusion chain from the given entidad to its
// canonical survivor and returns the survivor's ID.
func (h *EntidadesDBHandler) ResolveFusion(id int64) (int64, error) {
	return h.ResolveFusionTx(h.db.Instance, id)
}

// ResolveFusionTx is ResolveFusion running against the given Querier.
func (h *EntidadesDBHandler) ResolveFusionTx(q Querier, id int64) (int64, error) {
	var canonicalID int64
	row := q.QueryRow(
		`SELECT * FROM resolve_fusion($1)`,
		id,
	)

	err := row.Scan(&canonicalID)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}

	return canonicalID, nil
}

// FuseEntidad marks the source entidad as fused into the target under an
// optimistic version check. A stale version or an already fused source
// returns model.ErrVersionConflict. Self fusion and fusion cycles fail.
func (h *EntidadesDBHandler) FuseEntidad(sourceID int64, targetID int64, expectedVersion int) (*model.Entidad, error) {
	return h.FuseEntidadTx(h.db.Instance, sourceID, targetID, expectedVersion)
}

// FuseEntidadTx is FuseEntidad running against the given Querier.
func (h *EntidadesDBHandler) FuseEntidadTx(q Querier, sourceID int64, targetID int64, expectedVersion int) (*model.Entidad, error) {
	entidad := &model.Entidad{}
	row := q.QueryRow(
		`SELECT * FROM fuse_entidad($1, $2, $3)`,
		sourceID,
		targetID,
		expectedVersion,
	)

	err := scanEntidad(row, entidad)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewError("fuse entidad", model.ErrVersionConflict)
	} else if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return entidad, nil
}

// UpdateEntidadEnrichment replaces the aliases and description of an entidad
// under an optimistic version check. A stale version returns
// model.ErrVersionConflict.
func (h *EntidadesDBHandler) UpdateEntidadEnrichment(id int64, aliases []string, description string, expectedVersion int) (*model.Entidad, error) {
	return h.UpdateEntidadEnrichmentTx(h.db.Instance, id, aliases, description, expectedVersion)
}

// UpdateEntidadEnrichmentTx is UpdateEntidadEnrichment running against the given Querier.
func (h *EntidadesDBHandler) UpdateEntidadEnrichmentTx(q Querier, id int64, aliases []string, description string, expectedVersion int) (*model.Entidad, error) {
	entidad := &model.Entidad{}
	row := q.QueryRow(
		`SELECT * FROM update_entidad_enrichment($1, $2, $3, $4)`,
		id,
		pq.Array(aliases),
		description,
		expectedVersion,
	)

	err := scanEntidad(row, entidad)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewError("update entidad enrichment", model.ErrVersionConflict)
	} else if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return entidad, nil
}

// scanEntidad scans one entidad row (without similarity columns) into the
// given entidad.
func scanEntidad(row rowScanner, entidad *model.Entidad) error {
	var normalizedName string
	var birthDate, dissolutionDate sql.NullTime
	var fusedInto sql.NullInt64

	err := row.Scan(
		&entidad.ID,
		&entidad.Name,
		&normalizedName,
		pq.Array(&entidad.Aliases),
		&entidad.Type,
		&entidad.Description,
		&birthDate,
		&dissolutionDate,
		&fusedInto,
		&entidad.Version,
		&entidad.CreatedAt,
	)
	if err != nil {
		return err
	}

	setEntidadNullables(entidad, birthDate, dissolutionDate, fusedInto)

	return nil
}

func setEntidadNullables(entidad *model.Entidad, birthDate sql.NullTime, dissolutionDate sql.NullTime, fusedInto sql.NullInt64) {
	entidad.BirthDate = nil
	if birthDate.Valid {
		entidad.BirthDate = &birthDate.Time
	}
	entidad.DissolutionDate = nil
	if dissolutionDate.Valid {
		entidad.DissolutionDate = &dissolutionDate.Time
	}
	entidad.FusedInto = nil
	if fusedInto.Valid {
		entidad.FusedInto = &fusedInto.Int64
	}
}
