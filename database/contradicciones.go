package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/siherrmann/facter/helper"
	"github.com/siherrmann/facter/model"
	facterSql "github.com/siherrmann/facter/sql"
)

// ContradiccionesDBHandlerFunctions defines the interface for contradiction database operations.
type ContradiccionesDBHandlerFunctions interface {
	InsertContradiccion(contradiccion *model.Contradiccion) error
	SelectContradiccionesByHecho(hechoID int64) ([]*model.Contradiccion, error)
}

// ContradiccionesDBHandler handles contradiction-related database operations
type ContradiccionesDBHandler struct {
	db *helper.Database
}

// NewContradiccionesDBHandler creates a new contradicciones database handler.
// It initializes the database connection and loads contradiction-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewContradiccionesDBHandler(db *helper.Database, force bool) (*ContradiccionesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	contradiccionesDbHandler := &ContradiccionesDBHandler{
		db: db,
	}

	err := facterSql.LoadContradiccionesSql(contradiccionesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load contradicciones sql", err)
	}

	err = contradiccionesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ContradiccionesDBHandler")

	return contradiccionesDbHandler, nil
}

// CreateTable creates the 'contradicciones' table in the database.
// If the table already exists, it does not create it again.
func (h *ContradiccionesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_contradicciones();`)
	if err != nil {
		log.Panicf("error initializing contradicciones table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table contradicciones")

	return nil
}

// InsertContradiccion inserts a new contradiction annotation.
func (h *ContradiccionesDBHandler) InsertContradiccion(contradiccion *model.Contradiccion) error {
	return h.InsertContradiccionTx(h.db.Instance, contradiccion)
}

// InsertContradiccionTx is InsertContradiccion running against the given Querier.
func (h *ContradiccionesDBHandler) InsertContradiccionTx(q Querier, contradiccion *model.Contradiccion) error {
	row := q.QueryRow(
		`SELECT * FROM insert_contradiccion($1, $2, $3, $4, $5)`,
		contradiccion.HechoID,
		contradiccion.ContradictsHechoID,
		string(contradiccion.Type),
		contradiccion.Severity,
		contradiccion.Explanation,
	)

	err := row.Scan(
		&contradiccion.ID,
		&contradiccion.HechoID,
		&contradiccion.ContradictsHechoID,
		&contradiccion.Type,
		&contradiccion.Severity,
		&contradiccion.Explanation,
		&contradiccion.CreatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectContradiccionesByHecho retrieves all contradictions referencing the
// given hecho on either side.
func (h *ContradiccionesDBHandler) SelectContradiccionesByHecho(hechoID int64) ([]*model.Contradiccion, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_contradicciones_by_hecho($1)`,
		hechoID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var contradicciones []*model.Contradiccion
	for rows.Next() {
		contradiccion := &model.Contradiccion{}
		err := rows.Scan(
			&contradiccion.ID,
			&contradiccion.HechoID,
			&contradiccion.ContradictsHechoID,
			&contradiccion.Type,
			&contradiccion.Severity,
			&contradiccion.Explanation,
			&contradiccion.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		contradicciones = append(contradicciones, contradiccion)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return contradicciones, nil
}
