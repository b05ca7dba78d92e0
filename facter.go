package facter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/siherrmann/facter/core/contradiction"
	"github.com/siherrmann/facter/core/generation"
	"github.com/siherrmann/facter/core/persist"
	"github.com/siherrmann/facter/core/pipeline"
	"github.com/siherrmann/facter/core/resolution"
	"github.com/siherrmann/facter/database"
	"github.com/siherrmann/facter/helper"
	"github.com/siherrmann/facter/metrics"
	"github.com/siherrmann/facter/model"
	facterSql "github.com/siherrmann/facter/sql"
	"github.com/siherrmann/facter/worker"
)

// Facter provides a unified interface to the full extraction pipeline: job
// store, generation client, phase orchestrator, entity resolution,
// contradiction detection and the atomic persistence gateway.
type Facter struct {
	DB              *helper.Database
	Jobs            *database.JobsDBHandler
	Articles        *database.ArticlesDBHandler
	Entidades       *database.EntidadesDBHandler
	Hechos          *database.HechosDBHandler
	Relations       *database.RelationsDBHandler
	Contradicciones *database.ContradiccionesDBHandler
	Generator       generation.Client
	Orchestrator    *pipeline.Orchestrator
	Resolver        *resolution.Engine
	Detector        *contradiction.Detector
	Gateway         *persist.Gateway
	Reporter        *metrics.Reporter
	Pool            *worker.Pool
	// Logging
	log *slog.Logger
}

// NewFacter creates a new Facter instance with all handlers and pipeline
// components initialized.
func NewFacter(config *model.Config, dbConfig *helper.DatabaseConfiguration) (*Facter, error) {
	if config == nil {
		config = model.DefaultConfig()
	}

	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	// Initialize database
	db := helper.NewDatabase("facter", dbConfig, logger)
	err := facterSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// Create all handlers in the correct order (referenced tables first).
	// force=false to not reload if functions already exist
	jobs, err := database.NewJobsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create jobs handler", err)
	}

	articles, err := database.NewArticlesDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create articles handler", err)
	}

	entidades, err := database.NewEntidadesDBHandler(db, config.Resolution.EmbeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create entidades handler", err)
	}

	hechos, err := database.NewHechosDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create hechos handler", err)
	}

	relations, err := database.NewRelationsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create relations handler", err)
	}

	contradicciones, err := database.NewContradiccionesDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create contradicciones handler", err)
	}

	generator, err := generation.NewOpenAIClient(config.Generation, logger)
	if err != nil {
		return nil, helper.NewError("create generation client", err)
	}

	orchestrator, err := pipeline.NewOrchestrator(generator, jobs, logger)
	if err != nil {
		return nil, helper.NewError("create orchestrator", err)
	}

	resolver, err := resolution.NewEngine(entidades, config.Resolution, logger)
	if err != nil {
		return nil, helper.NewError("create resolution engine", err)
	}

	if config.Resolution.UseEmbeddings {
		embedder, err := resolution.DefaultEmbedder()
		if err != nil {
			return nil, helper.NewError("create default embedder", err)
		}
		resolver.SetEmbedder(embedder)
	}

	detector, err := contradiction.NewDetector(hechos, relations, config.Contradiction, logger)
	if err != nil {
		return nil, helper.NewError("create contradiction detector", err)
	}

	gateway, err := persist.NewGateway(db, articles, hechos, entidades, relations, contradicciones, resolver, logger)
	if err != nil {
		return nil, helper.NewError("create persistence gateway", err)
	}

	reporter, err := metrics.NewReporter(jobs, logger)
	if err != nil {
		return nil, helper.NewError("create status reporter", err)
	}
	orchestrator.SetObserver(reporter)

	return &Facter{
		DB:              db,
		Jobs:            jobs,
		Articles:        articles,
		Entidades:       entidades,
		Hechos:          hechos,
		Relations:       relations,
		Contradicciones: contradicciones,
		Generator:       generator,
		Orchestrator:    orchestrator,
		Resolver:        resolver,
		Detector:        detector,
		Gateway:         gateway,
		Reporter:        reporter,
		Pool:            worker.NewPool(config.Workers),
		log:             logger,
	}, nil
}

// Close closes the database connection and stops the worker pool.
func (f *Facter) Close() error {
	if f.Pool != nil {
		f.Pool.Shutdown()
	}
	if f.DB != nil && f.DB.Instance != nil {
		return f.DB.Instance.Close()
	}
	return nil
}

// SubmitArticle creates a pending job for the payload. Submitting content that
// was already processed returns the existing completed job instead of
// creating a new one, keyed by the payload content hash.
func (f *Facter) SubmitArticle(payload *model.ArticlePayload) (*model.Job, error) {
	if payload == nil || payload.Title == "" || payload.Content == "" {
		return nil, helper.NewError("submit validation", fmt.Errorf("title and content are required"))
	}
	if payload.ReferenceDate.IsZero() {
		payload.ReferenceDate = payload.PublicationDate
	}

	existing, err := f.Jobs.SelectCompletedJobByHash(payload.ContentHash())
	if err != nil {
		return nil, helper.NewError("select completed job by hash", err)
	}
	if existing != nil {
		f.log.Info("Article already processed", slog.String("rid", existing.RID.String()), slog.String("title", payload.Title))
		return existing, nil
	}

	job, err := f.Jobs.InsertJob(payload)
	if err != nil {
		return nil, helper.NewError("insert job", err)
	}

	f.log.Info("Accepted article", slog.String("rid", job.RID.String()), slog.String("title", payload.Title))

	return job, nil
}

// Job retrieves a job by its request ID.
func (f *Facter) Job(rid uuid.UUID) (*model.Job, error) {
	return f.Jobs.SelectJob(rid)
}

// CancelJob cancels a pending or processing job. A job in a terminal status
// returns model.ErrInvalidTransition.
func (f *Facter) CancelJob(rid uuid.UUID) (*model.Job, error) {
	job, err := f.Jobs.SelectJob(rid)
	if err != nil {
		return nil, err
	}

	return f.Jobs.TransitionJob(job.RID, job.Version, model.JobStatusCancelled, "cancelled by request")
}

// Status returns the current service status snapshot.
func (f *Facter) Status() (*metrics.Snapshot, error) {
	return f.Reporter.Snapshot()
}

// ProcessJob runs a job end to end: all extraction phases, entity resolution,
// contradiction detection and the atomic commit. The job is only marked
// completed after the commit succeeded. Any failure after the phases
// transitions the job to failed with the error recorded.
func (f *Facter) ProcessJob(ctx context.Context, rid uuid.UUID) (*model.CommitOutcome, error) {
	outcome, err := f.processJob(ctx, rid)
	if !errors.Is(err, model.ErrJobCancelled) {
		// Cancellations are not failures in the rolling error rate.
		f.Reporter.ObserveJob(err)
	}
	return outcome, err
}

func (f *Facter) processJob(ctx context.Context, rid uuid.UUID) (*model.CommitOutcome, error) {
	job, err := f.Jobs.SelectJob(rid)
	if err != nil {
		return nil, helper.NewError("select job", err)
	}

	switch job.Status {
	case model.JobStatusPending:
		job, err = f.Jobs.TransitionJob(job.RID, job.Version, model.JobStatusProcessing, "")
		if err != nil {
			return nil, helper.NewError("transition to processing", err)
		}
	case model.JobStatusProcessing:
		// Resuming after a crash, the checkpointed phases are skipped.
	default:
		return nil, helper.NewError("process job", fmt.Errorf("job %v is %v, expected pending or processing", rid, job.Status))
	}

	job, err = f.Orchestrator.Run(ctx, job)
	if err != nil {
		// The orchestrator already transitioned the job to failed or
		// cancelled.
		return nil, err
	}

	// A cancellation arriving after the last phase checkpoint still discards
	// the result, nothing is resolved or committed past this point.
	if ctx.Err() != nil {
		return nil, f.cancelJob(job)
	}

	extraction := job.Checkpoint
	if extraction == nil {
		extraction = &model.Extraction{}
	}

	resolved, err := f.Resolver.Resolve(extraction.Entidades)
	if err != nil {
		return nil, f.failJob(job, helper.NewError("resolve entities", err))
	}

	contradicciones, err := f.Detector.Detect(extraction, resolved)
	if err != nil {
		return nil, f.failJob(job, helper.NewError("detect contradictions", err))
	}

	result := &model.ConsolidatedResult{
		Extraction:      extraction,
		Resolved:        resolved,
		Contradicciones: contradicciones,
	}

	outcome, err := f.Gateway.Commit(ctx, job, result)
	if err != nil {
		if ctx.Err() != nil {
			return nil, f.cancelJob(job)
		}
		return nil, f.failJob(job, helper.NewError("commit result", err))
	}

	_, err = f.Jobs.TransitionJob(job.RID, job.Version, model.JobStatusCompleted, "")
	if err != nil {
		return nil, helper.NewError("transition to completed", err)
	}

	f.log.Info("Job completed",
		slog.String("rid", job.RID.String()),
		slog.Int64("article_id", outcome.ArticleID),
		slog.Int("hechos", len(outcome.HechoIDs)),
		slog.Int("entidades", len(outcome.EntidadIDs)))

	return outcome, nil
}

// failJob transitions a job to failed with the error recorded and returns the
// original error.
func (f *Facter) failJob(job *model.Job, err error) error {
	_, terr := f.Jobs.TransitionJob(job.RID, job.Version, model.JobStatusFailed, err.Error())
	if terr != nil {
		f.log.Error("Failed to mark job as failed", slog.String("rid", job.RID.String()), slog.String("error", terr.Error()))
	}
	return err
}

// cancelJob transitions a job to cancelled and returns ErrJobCancelled.
func (f *Facter) cancelJob(job *model.Job) error {
	_, terr := f.Jobs.TransitionJob(job.RID, job.Version, model.JobStatusCancelled, "")
	if terr != nil {
		f.log.Error("Failed to mark job as cancelled", slog.String("rid", job.RID.String()), slog.String("error", terr.Error()))
	}
	return model.ErrJobCancelled
}

// jobTask wraps one job for execution on the worker pool.
type jobTask struct {
	facter *Facter
	rid    uuid.UUID
}

func (t *jobTask) Execute(ctx context.Context) worker.Result {
	outcome, err := t.facter.ProcessJob(ctx, t.rid)
	return worker.Result{RID: t.rid, Outcome: outcome, Err: err}
}

// StartWorkers starts the worker pool.
func (f *Facter) StartWorkers() {
	f.Pool.Start()
}

// EnqueueJob submits a job for asynchronous processing on the worker pool.
func (f *Facter) EnqueueJob(rid uuid.UUID) {
	f.Pool.Submit(&jobTask{facter: f, rid: rid})
}

// ResumeProcessing re-enqueues jobs left in processing status by an earlier
// run. Their checkpointed phases are skipped on re-execution. Returns the
// number of resumed jobs.
func (f *Facter) ResumeProcessing(limit int) (int, error) {
	jobs, err := f.Jobs.SelectJobsByStatus(model.JobStatusProcessing, limit)
	if err != nil {
		return 0, helper.NewError("select processing jobs", err)
	}

	for _, job := range jobs {
		f.log.Info("Resuming interrupted job", slog.String("rid", job.RID.String()), slog.Int("phase", job.Phase))
		f.EnqueueJob(job.RID)
	}

	return len(jobs), nil
}

// DrainPending enqueues up to limit pending jobs for processing. Returns the
// number of enqueued jobs.
func (f *Facter) DrainPending(limit int) (int, error) {
	jobs, err := f.Jobs.SelectJobsByStatus(model.JobStatusPending, limit)
	if err != nil {
		return 0, helper.NewError("select pending jobs", err)
	}

	for _, job := range jobs {
		f.EnqueueJob(job.RID)
	}

	return len(jobs), nil
}
