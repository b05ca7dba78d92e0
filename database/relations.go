package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"
	"github.com/siherrmann/facter/helper"
	"github.com/siherrmann/facter/model"
	facterSql "github.com/siherrmann/facter/sql"
)

// RelationsDBHandlerFunctions defines the interface for relation database operations.
type RelationsDBHandlerFunctions interface {
	InsertHechoEntidad(relation *model.HechoEntidad) error
	InsertHechoHecho(relation *model.HechoHecho) error
	InsertEntidadEntidad(relation *model.EntidadEntidad) error
	SelectHechoEntidadByHechos(hechoIDs []int64) ([]*model.HechoEntidad, error)
	SelectHechoEntidadByEntidad(entidadID int64) ([]*model.HechoEntidad, error)
}

// RelationsDBHandler handles the three relation tables:
// hecho_entidad, hecho_hecho and entidad_entidad.
type RelationsDBHandler struct {
	db *helper.Database
}

// NewRelationsDBHandler creates a new relations database handler.
// It initializes the database connection and loads relation-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewRelationsDBHandler(db *helper.Database, force bool) (*RelationsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	relationsDbHandler := &RelationsDBHandler{
		db: db,
	}

	err := facterSql.LoadRelationsSql(relationsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load relations sql", err)
	}

	err = relationsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized RelationsDBHandler")

	return relationsDbHandler, nil
}

// CreateTable creates the relation tables in the database.
// If the tables already exist, it does not create them again.
// It also creates all necessary indexes.
func (h *RelationsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_relations();`)
	if err != nil {
		log.Panicf("error initializing relation tables: %#v", err)
	}

	h.db.Logger.Info("Checked/created tables hecho_entidad, hecho_hecho and entidad_entidad")

	return nil
}

// InsertHechoEntidad inserts a hecho-entidad relation. Re-inserting the same
// (hecho, entidad, role) triple updates the relevance instead.
func (h *RelationsDBHandler) InsertHechoEntidad(relation *model.HechoEntidad) error {
	return h.InsertHechoEntidadTx(h.db.Instance, relation)
}

// InsertHechoEntidadTx is InsertHechoEntidad running against the given Querier.
func (h *RelationsDBHandler) InsertHechoEntidadTx(q Querier, relation *model.HechoEntidad) error {
	row := q.QueryRow(
		`SELECT * FROM insert_hecho_entidad($1, $2, $3, $4)`,
		relation.HechoID,
		relation.EntidadID,
		string(relation.Role),
		relation.Relevance,
	)

	err := row.Scan(
		&relation.ID,
		&relation.HechoID,
		&relation.EntidadID,
		&relation.Role,
		&relation.Relevance,
		&relation.CreatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// InsertHechoHecho inserts a hecho-hecho relation.
func (h *RelationsDBHandler) InsertHechoHecho(relation *model.HechoHecho) error {
	return h.InsertHechoHechoTx(h.db.Instance, relation)
}

// InsertHechoHechoTx is InsertHechoHecho running against the given Querier.
func (h *RelationsDBHandler) InsertHechoHechoTx(q Querier, relation *model.HechoHecho) error {
	row := q.QueryRow(
		`SELECT * FROM insert_hecho_hecho($1, $2, $3, $4)`,
		relation.SourceHechoID,
		relation.TargetHechoID,
		string(relation.Type),
		relation.Strength,
	)

	err := row.Scan(
		&relation.ID,
		&relation.SourceHechoID,
		&relation.TargetHechoID,
		&relation.Type,
		&relation.Strength,
		&relation.CreatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// InsertEntidadEntidad inserts an entidad-entidad relation.
func (h *RelationsDBHandler) InsertEntidadEntidad(relation *model.EntidadEntidad) error {
	return h.InsertEntidadEntidadTx(h.db.Instance, relation)
}

// InsertEntidadEntidadTx is InsertEntidadEntidad running against the given Querier.
func (h *RelationsDBHandler) InsertEntidadEntidadTx(q Querier, relation *model.EntidadEntidad) error {
	row := q.QueryRow(
		`SELECT * FROM insert_entidad_entidad($1, $2, $3, $4, $5, $6)`,
		relation.SourceEntidadID,
		relation.TargetEntidadID,
		string(relation.Type),
		relation.StartDate,
		relation.EndDate,
		relation.Strength,
	)

	var startDate, endDate sql.NullTime
	err := row.Scan(
		&relation.ID,
		&relation.SourceEntidadID,
		&relation.TargetEntidadID,
		&relation.Type,
		&startDate,
		&endDate,
		&relation.Strength,
		&relation.CreatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	relation.StartDate = nil
	if startDate.Valid {
		relation.StartDate = &startDate.Time
	}
	relation.EndDate = nil
	if endDate.Valid {
		relation.EndDate = &endDate.Time
	}

	return nil
}

// SelectHechoEntidadByHechos retrieves all hecho-entidad relations of the
// given hechos.
func (h *RelationsDBHandler) SelectHechoEntidadByHechos(hechoIDs []int64) ([]*model.HechoEntidad, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_hecho_entidad_by_hechos($1)`,
		pq.Array(hechoIDs),
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanHechoEntidadRows(rows)
}

// SelectHechoEntidadByEntidad retrieves all hecho-entidad relations of the
// given entidad.
func (h *RelationsDBHandler) SelectHechoEntidadByEntidad(entidadID int64) ([]*model.HechoEntidad, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_hecho_entidad_by_entidad($1)`,
		entidadID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanHechoEntidadRows(rows)
}

func scanHechoEntidadRows(rows *sql.Rows) ([]*model.HechoEntidad, error) {
	var relations []*model.HechoEntidad
	for rows.Next() {
		relation := &model.HechoEntidad{}
		err := rows.Scan(
			&relation.ID,
			&relation.HechoID,
			&relation.EntidadID,
			&relation.Role,
			&relation.Relevance,
			&relation.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		relations = append(relations, relation)
	}

	err := rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return relations, nil
}
