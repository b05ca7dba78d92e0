package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	"github.com/siherrmann/facter/database"
	"github.com/siherrmann/facter/helper"
	"github.com/siherrmann/facter/model"
)

// maxCommitAttempts bounds the optimistic concurrency retry: one retry with
// re-resolution, then the job fails rather than looping on contention.
const maxCommitAttempts = 2

// Resolver re-runs entity resolution against the current store state. Used
// after a commit conflict invalidated the versions the first resolution read.
type Resolver interface {
	Resolve(candidates []*model.Entidad) (*model.ResolvedEntitySet, error)
}

// Gateway commits the full consolidated result of a job in one serializable
// transaction: the article, all hechos, entidades (inserts, enrichment
// updates and fusion edges), citas, datos, relations and contradicciones.
// No partial results ever become visible to other jobs.
type Gateway struct {
	db              *helper.Database
	articles        *database.ArticlesDBHandler
	hechos          *database.HechosDBHandler
	entidades       *database.EntidadesDBHandler
	relations       *database.RelationsDBHandler
	contradicciones *database.ContradiccionesDBHandler
	resolver        Resolver
	logger          *slog.Logger
}

// NewGateway creates a new persistence gateway.
func NewGateway(
	db *helper.Database,
	articles *database.ArticlesDBHandler,
	hechos *database.HechosDBHandler,
	entidades *database.EntidadesDBHandler,
	relations *database.RelationsDBHandler,
	contradicciones *database.ContradiccionesDBHandler,
	resolver Resolver,
	logger *slog.Logger,
) (*Gateway, error) {
	if db == nil {
		return nil, helper.NewError("gateway validation", fmt.Errorf("database connection is required"))
	}
	if articles == nil || hechos == nil || entidades == nil || relations == nil || contradicciones == nil {
		return nil, helper.NewError("gateway validation", fmt.Errorf("all table handlers are required"))
	}
	if resolver == nil {
		return nil, helper.NewError("gateway validation", fmt.Errorf("resolver is required"))
	}

	return &Gateway{
		db:              db,
		articles:        articles,
		hechos:          hechos,
		entidades:       entidades,
		relations:       relations,
		contradicciones: contradicciones,
		resolver:        resolver,
		logger:          logger,
	}, nil
}

// Commit writes the consolidated result atomically. A duplicate article hash
// short-circuits to the existing article without writing anything else. On an
// optimistic concurrency conflict the gateway re-resolves entities against
// the now-current store state and retries once; a second conflict fails.
// Referential violations are fatal and logged with the offending identifier.
func (g *Gateway) Commit(ctx context.Context, job *model.Job, result *model.ConsolidatedResult) (*model.CommitOutcome, error) {
	if job == nil || result == nil || result.Extraction == nil || result.Resolved == nil {
		return nil, helper.NewError("commit validation", fmt.Errorf("job and consolidated result are required"))
	}

	err := validateReferences(result)
	if err != nil {
		g.logger.Error("Referential violation at commit", "rid", job.RID, "error", err.Error())
		return nil, err
	}

	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		outcome, err := g.tryCommit(ctx, job, result)
		if err == nil {
			return outcome, nil
		}
		if !isConflict(err) || attempt == maxCommitAttempts-1 {
			return nil, err
		}

		g.logger.Warn("Commit conflict, re-resolving entities", "rid", job.RID, "error", err.Error())
		resolved, rerr := g.resolver.Resolve(result.Extraction.Entidades)
		if rerr != nil {
			return nil, helper.NewError("re-resolve entities", rerr)
		}
		result.Resolved = resolved
	}

	return nil, helper.NewError("commit", model.ErrVersionConflict)
}

func (g *Gateway) tryCommit(ctx context.Context, job *model.Job, result *model.ConsolidatedResult) (*model.CommitOutcome, error) {
	tx, err := g.db.Instance.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, helper.NewError("begin transaction", err)
	}

	outcome, err := g.writeAll(tx, job, result)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	err = tx.Commit()
	if err != nil {
		return nil, helper.NewError("commit transaction", err)
	}

	return outcome, nil
}

func (g *Gateway) writeAll(tx *sql.Tx, job *model.Job, result *model.ConsolidatedResult) (*model.CommitOutcome, error) {
	article, inserted, err := g.articles.InsertArticleTx(tx, &job.Payload)
	if err != nil {
		return nil, helper.NewError("insert article", err)
	}
	if !inserted {
		// The same source content was already committed by an earlier job.
		return &model.CommitOutcome{ArticleID: article.ID, Duplicate: true}, nil
	}

	entidadIDs, err := g.writeEntidades(tx, result.Resolved)
	if err != nil {
		return nil, err
	}

	hechoIDs, err := g.writeHechos(tx, article.ID, result.Extraction)
	if err != nil {
		return nil, err
	}

	err = g.writeComplementos(tx, result.Extraction, hechoIDs, entidadIDs)
	if err != nil {
		return nil, err
	}

	err = g.writeRelations(tx, result.Extraction, hechoIDs, entidadIDs)
	if err != nil {
		return nil, err
	}

	err = g.writeContradicciones(tx, result, hechoIDs)
	if err != nil {
		return nil, err
	}

	return &model.CommitOutcome{
		ArticleID:  article.ID,
		HechoIDs:   hechoIDs,
		EntidadIDs: entidadIDs,
	}, nil
}

// writeEntidades inserts new entidades, applies enrichment updates to matched
// canonical targets and writes planned fusion edges. It returns the mapping
// from job scoped entidad ids to store ids.
//
// A unique violation on the canonical name index means a concurrent job
// created the same entidad first; the losing insert is converted into a
// resolution onto the winner instead of failing the commit.
func (g *Gateway) writeEntidades(tx *sql.Tx, resolved *model.ResolvedEntitySet) (map[int64]int64, error) {
	storeIDs := map[int64]int64{}
	for _, candidate := range resolved.New {
		jobID := candidate.ID
		toInsert := *candidate

		_, err := tx.Exec(`SAVEPOINT insert_entidad`)
		if err != nil {
			return nil, helper.NewError("savepoint", err)
		}

		err = g.entidades.InsertEntidadTx(tx, &toInsert)
		if database.IsUniqueViolation(err) {
			_, rbErr := tx.Exec(`ROLLBACK TO SAVEPOINT insert_entidad`)
			if rbErr != nil {
				return nil, helper.NewError("rollback savepoint", rbErr)
			}

			winner, selErr := g.entidades.SelectEntidadByNameTx(tx, model.NormalizeName(candidate.Name), candidate.Type)
			if selErr != nil {
				return nil, helper.NewError("select winning entidad", selErr)
			}
			if winner == nil {
				// The winning row is not visible yet, retry with re-resolution.
				return nil, helper.NewError("lost canonical name race", model.ErrVersionConflict)
			}

			g.logger.Info("Lost canonical name race, resolving onto winner", "name", candidate.Name, "winner", winner.ID)
			storeIDs[jobID] = winner.ID
			continue
		} else if err != nil {
			return nil, helper.NewError("insert entidad", err)
		}

		_, err = tx.Exec(`RELEASE SAVEPOINT insert_entidad`)
		if err != nil {
			return nil, helper.NewError("release savepoint", err)
		}
		storeIDs[jobID] = toInsert.ID
	}

	for _, merged := range resolved.MergedInto {
		_, err := g.entidades.UpdateEntidadEnrichmentTx(tx, merged.ID, merged.Aliases, merged.Description, merged.Version)
		if err != nil {
			return nil, helper.NewError("update entidad enrichment", err)
		}
	}

	for _, fusion := range resolved.Fusions {
		_, err := g.entidades.FuseEntidadTx(tx, fusion.SourceID, fusion.TargetID, fusion.SourceVersion)
		if err != nil {
			return nil, helper.NewError("fuse entidad", err)
		}
	}

	// Matched values are persisted store ids, collapsed candidates follow
	// their in-job representative inserted above.
	for jobID, target := range resolved.Matched {
		storeIDs[jobID] = target
	}
	for jobID, first := range resolved.Collapsed {
		storeIDs[jobID] = storeIDs[first]
	}

	return storeIDs, nil
}

func (g *Gateway) writeHechos(tx *sql.Tx, articleID int64, extraction *model.Extraction) (map[int64]int64, error) {
	storeIDs := map[int64]int64{}
	for _, hecho := range extraction.Hechos {
		jobID := hecho.ID
		toInsert := *hecho
		toInsert.ArticleID = articleID

		err := g.hechos.InsertHechoTx(tx, &toInsert)
		if err != nil {
			return nil, helper.NewError("insert hecho", err)
		}
		storeIDs[jobID] = toInsert.ID
	}
	return storeIDs, nil
}

func (g *Gateway) writeComplementos(tx *sql.Tx, extraction *model.Extraction, hechoIDs map[int64]int64, entidadIDs map[int64]int64) error {
	for _, cita := range extraction.Citas {
		toInsert := *cita
		toInsert.EntidadID = entidadIDs[cita.EntidadID]
		if cita.HechoID != nil {
			hechoID := hechoIDs[*cita.HechoID]
			toInsert.HechoID = &hechoID
		}

		err := g.hechos.InsertCitaTx(tx, &toInsert)
		if err != nil {
			return helper.NewError("insert cita", err)
		}
	}

	for _, dato := range extraction.Datos {
		toInsert := *dato
		toInsert.HechoID = hechoIDs[dato.HechoID]

		err := g.hechos.InsertDatoTx(tx, &toInsert)
		if err != nil {
			return helper.NewError("insert dato", err)
		}
	}

	return nil
}

func (g *Gateway) writeRelations(tx *sql.Tx, extraction *model.Extraction, hechoIDs map[int64]int64, entidadIDs map[int64]int64) error {
	for _, relation := range extraction.HechoEntidad {
		toInsert := *relation
		toInsert.HechoID = hechoIDs[relation.HechoID]
		toInsert.EntidadID = entidadIDs[relation.EntidadID]

		err := g.relations.InsertHechoEntidadTx(tx, &toInsert)
		if err != nil {
			return helper.NewError("insert hecho-entidad relation", err)
		}
	}

	for _, relation := range extraction.HechoHecho {
		toInsert := *relation
		toInsert.SourceHechoID = hechoIDs[relation.SourceHechoID]
		toInsert.TargetHechoID = hechoIDs[relation.TargetHechoID]

		err := g.relations.InsertHechoHechoTx(tx, &toInsert)
		if err != nil {
			return helper.NewError("insert hecho-hecho relation", err)
		}
	}

	for _, relation := range extraction.EntidadEntidad {
		toInsert := *relation
		toInsert.SourceEntidadID = entidadIDs[relation.SourceEntidadID]
		toInsert.TargetEntidadID = entidadIDs[relation.TargetEntidadID]
		if toInsert.SourceEntidadID == toInsert.TargetEntidadID {
			// Both sides resolved onto the same canonical entidad.
			g.logger.Info("Skipping self relation after resolution", "entidad", toInsert.SourceEntidadID)
			continue
		}

		err := g.relations.InsertEntidadEntidadTx(tx, &toInsert)
		if err != nil {
			return helper.NewError("insert entidad-entidad relation", err)
		}
	}

	return nil
}

func (g *Gateway) writeContradicciones(tx *sql.Tx, result *model.ConsolidatedResult, hechoIDs map[int64]int64) error {
	// In-article contradictions from the relations phase, both sides job scoped.
	for _, contradiccion := range result.Extraction.Contradicciones {
		toInsert := *contradiccion
		toInsert.HechoID = hechoIDs[contradiccion.HechoID]
		toInsert.ContradictsHechoID = hechoIDs[contradiccion.ContradictsHechoID]

		err := g.contradicciones.InsertContradiccionTx(tx, &toInsert)
		if err != nil {
			return helper.NewError("insert contradiccion", err)
		}
	}

	// Detected contradictions against previously persisted hechos, the
	// contradicted side already carries a store id.
	for _, contradiccion := range result.Contradicciones {
		toInsert := *contradiccion
		toInsert.HechoID = hechoIDs[contradiccion.HechoID]

		err := g.contradicciones.InsertContradiccionTx(tx, &toInsert)
		if err != nil {
			return helper.NewError("insert detected contradiccion", err)
		}
	}

	return nil
}

// validateReferences is the defensive referential check: every relation,
// cita, dato and contradiction must reference identifiers present in the
// job's own extracted set, even though the orchestrator already enforced
// this. A violation is always fatal to the job.
func validateReferences(result *model.ConsolidatedResult) error {
	extraction := result.Extraction
	hechos := extraction.HechoIDs()
	entidades := extraction.EntidadIDs()

	for _, cita := range extraction.Citas {
		if !entidades[cita.EntidadID] {
			return &model.ReferentialViolation{Relation: "cita", ID: cita.EntidadID}
		}
		if cita.HechoID != nil && !hechos[*cita.HechoID] {
			return &model.ReferentialViolation{Relation: "cita", ID: *cita.HechoID}
		}
	}
	for _, dato := range extraction.Datos {
		if !hechos[dato.HechoID] {
			return &model.ReferentialViolation{Relation: "dato", ID: dato.HechoID}
		}
	}
	for _, relation := range extraction.HechoEntidad {
		if !hechos[relation.HechoID] {
			return &model.ReferentialViolation{Relation: "hecho_entidad", ID: relation.HechoID}
		}
		if !entidades[relation.EntidadID] {
			return &model.ReferentialViolation{Relation: "hecho_entidad", ID: relation.EntidadID}
		}
	}
	for _, relation := range extraction.HechoHecho {
		if !hechos[relation.SourceHechoID] {
			return &model.ReferentialViolation{Relation: "hecho_hecho", ID: relation.SourceHechoID}
		}
		if !hechos[relation.TargetHechoID] {
			return &model.ReferentialViolation{Relation: "hecho_hecho", ID: relation.TargetHechoID}
		}
	}
	for _, relation := range extraction.EntidadEntidad {
		if !entidades[relation.SourceEntidadID] {
			return &model.ReferentialViolation{Relation: "entidad_entidad", ID: relation.SourceEntidadID}
		}
		if !entidades[relation.TargetEntidadID] {
			return &model.ReferentialViolation{Relation: "entidad_entidad", ID: relation.TargetEntidadID}
		}
	}
	for _, contradiccion := range extraction.Contradicciones {
		if !hechos[contradiccion.HechoID] {
			return &model.ReferentialViolation{Relation: "contradiccion", ID: contradiccion.HechoID}
		}
		if !hechos[contradiccion.ContradictsHechoID] {
			return &model.ReferentialViolation{Relation: "contradiccion", ID: contradiccion.ContradictsHechoID}
		}
	}
	for _, contradiccion := range result.Contradicciones {
		if !hechos[contradiccion.HechoID] {
			return &model.ReferentialViolation{Relation: "contradiccion", ID: contradiccion.HechoID}
		}
	}

	return nil
}

// isConflict reports whether the error is an optimistic concurrency conflict
// or a serialization failure worth one retry with re-resolution.
func isConflict(err error) bool {
	if errors.Is(err, model.ErrVersionConflict) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001"
	}
	return false
}
