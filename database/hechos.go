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

// HechosDBHandlerFunctions defines the interface for hecho database operations.
type HechosDBHandlerFunctions interface {
	InsertHecho(hecho *model.Hecho) error
	SelectHecho(id int64) (*model.Hecho, error)
	SelectHechosByEntidades(entidadIDs []int64, from time.Time, to time.Time) ([]*model.Hecho, error)
	InsertCita(cita *model.Cita) error
	InsertDato(dato *model.DatoCuantitativo) error
}

// HechosDBHandler handles hecho-related database operations,
// including the citas and datos_cuantitativos side tables.
type HechosDBHandler struct {
	db *helper.Database
}

// NewHechosDBHandler creates a new hechos database handler.
// It initializes the database connection and loads hecho-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewHechosDBHandler(db *helper.Database, force bool) (*HechosDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	hechosDbHandler := &HechosDBHandler{
		db: db,
	}

	err := facterSql.LoadHechosSql(hechosDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load hechos sql", err)
	}

	err = hechosDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized HechosDBHandler")

	return hechosDbHandler, nil
}

// CreateTable creates the 'hechos', 'citas' and 'datos_cuantitativos' tables
// in the database. If the tables already exist, it does not create them again.
// It also creates all necessary indexes.
func (h *HechosDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_hechos();`)
	if err != nil {
		log.Panicf("error initializing hechos tables: %#v", err)
	}

	h.db.Logger.Info("Checked/created tables hechos, citas and datos_cuantitativos")

	return nil
}

// InsertHecho inserts a new hecho. The hecho's ID is replaced by the store
// assigned identifier.
func (h *HechosDBHandler) InsertHecho(hecho *model.Hecho) error {
	return h.InsertHechoTx(h.db.Instance, hecho)
}

// InsertHechoTx is InsertHecho running against the given Querier.
func (h *HechosDBHandler) InsertHechoTx(q Querier, hecho *model.Hecho) error {
	row := q.QueryRow(
		`SELECT * FROM insert_hecho($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		hecho.ArticleID,
		hecho.Content,
		hecho.OccurredFrom,
		hecho.OccurredTo,
		string(hecho.Precision),
		string(hecho.Type),
		pq.Array(hecho.Countries),
		pq.Array(hecho.Regions),
		pq.Array(hecho.Cities),
		hecho.Future,
		hecho.SchedulingState,
		hecho.Metadata,
	)

	err := scanHecho(row, hecho)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectHecho retrieves a hecho by ID.
func (h *HechosDBHandler) SelectHecho(id int64) (*model.Hecho, error) {
	hecho := &model.Hecho{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_hecho($1)`,
		id,
	)

	err := scanHecho(row, hecho)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return hecho, nil
}

// SelectHechosByEntidades retrieves persisted hechos sharing at least one of
// the given entidades whose occurrence window intersects [from, to].
func (h *HechosDBHandler) SelectHechosByEntidades(entidadIDs []int64, from time.Time, to time.Time) ([]*model.Hecho, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_hechos_by_entidades($1, $2, $3)`,
		pq.Array(entidadIDs),
		from,
		to,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var hechos []*model.Hecho
	for rows.Next() {
		hecho := &model.Hecho{}
		err := scanHecho(rows, hecho)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		hechos = append(hechos, hecho)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return hechos, nil
}

// InsertCita inserts a new cita. The cita's ID is replaced by the store
// assigned identifier.
func (h *HechosDBHandler) InsertCita(cita *model.Cita) error {
	return h.InsertCitaTx(h.db.Instance, cita)
}

// InsertCitaTx is InsertCita running against the given Querier.
func (h *HechosDBHandler) InsertCitaTx(q Querier, cita *model.Cita) error {
	row := q.QueryRow(
		`SELECT * FROM insert_cita($1, $2, $3, $4)`,
		cita.HechoID,
		cita.EntidadID,
		cita.Content,
		cita.Date,
	)

	var hechoID sql.NullInt64
	var date sql.NullTime
	err := row.Scan(
		&cita.ID,
		&hechoID,
		&cita.EntidadID,
		&cita.Content,
		&date,
		&cita.CreatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	cita.HechoID = nil
	if hechoID.Valid {
		cita.HechoID = &hechoID.Int64
	}
	cita.Date = nil
	if date.Valid {
		cita.Date = &date.Time
	}

	return nil
}

// InsertDato inserts a new quantitative data point. The dato's ID is replaced
// by the store assigned identifier.
func (h *HechosDBHandler) InsertDato(dato *model.DatoCuantitativo) error {
	return h.InsertDatoTx(h.db.Instance, dato)
}

// InsertDatoTx is InsertDato running against the given Querier.
func (h *HechosDBHandler) InsertDatoTx(q Querier, dato *model.DatoCuantitativo) error {
	row := q.QueryRow(
		`SELECT * FROM insert_dato($1, $2, $3, $4, $5, $6)`,
		dato.HechoID,
		dato.Indicator,
		dato.Category,
		dato.Value,
		dato.Unit,
		dato.Date,
	)

	var date sql.NullTime
	err := row.Scan(
		&dato.ID,
		&dato.HechoID,
		&dato.Indicator,
		&dato.Category,
		&dato.Value,
		&dato.Unit,
		&date,
		&dato.CreatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	dato.Date = nil
	if date.Valid {
		dato.Date = &date.Time
	}

	return nil
}

// scanHecho scans one full hechos row into the given hecho.
func scanHecho(row rowScanner, hecho *model.Hecho) error {
	var schedulingState sql.NullString

	err := row.Scan(
		&hecho.ID,
		&hecho.ArticleID,
		&hecho.Content,
		&hecho.OccurredFrom,
		&hecho.OccurredTo,
		&hecho.Precision,
		&hecho.Type,
		pq.Array(&hecho.Countries),
		pq.Array(&hecho.Regions),
		pq.Array(&hecho.Cities),
		&hecho.Future,
		&schedulingState,
		&hecho.Metadata,
		&hecho.CreatedAt,
	)
	if err != nil {
		return err
	}

	hecho.SchedulingState = nil
	if schedulingState.Valid {
		hecho.SchedulingState = &schedulingState.String
	}

	return nil
}
