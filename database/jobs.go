package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/facter/helper"
	"github.com/siherrmann/facter/model"
	facterSql "github.com/siherrmann/facter/sql"
)

// JobsDBHandlerFunctions defines the interface for job store operations.
type JobsDBHandlerFunctions interface {
	InsertJob(payload *model.ArticlePayload) (*model.Job, error)
	SelectJob(rid uuid.UUID) (*model.Job, error)
	SelectJobsByStatus(status model.JobStatus, limit int) ([]*model.Job, error)
	SelectCompletedJobByHash(contentHash string) (*model.Job, error)
	TransitionJob(rid uuid.UUID, expectedVersion int, newStatus model.JobStatus, detail string) (*model.Job, error)
	UpdateJobCheckpoint(rid uuid.UUID, expectedVersion int, phase int, checkpoint *model.Extraction) (*model.Job, error)
	IncrementJobRetry(rid uuid.UUID) (*model.Job, error)
	CountJobsByStatus() (map[model.JobStatus]int64, error)
}

// JobsDBHandler handles job-related database operations
type JobsDBHandler struct {
	db *helper.Database
}

// NewJobsDBHandler creates a new jobs database handler.
// It initializes the database connection and loads job-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewJobsDBHandler(db *helper.Database, force bool) (*JobsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	jobsDbHandler := &JobsDBHandler{
		db: db,
	}

	err := facterSql.LoadJobsSql(jobsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load jobs sql", err)
	}

	err = jobsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized JobsDBHandler")

	return jobsDbHandler, nil
}

// CreateTable creates the 'jobs' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary indexes.
func (h *JobsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_jobs();`)
	if err != nil {
		log.Panicf("error initializing jobs table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table jobs")

	return nil
}

// InsertJob inserts a new pending job for the given payload.
// The content hash is derived from the payload.
func (h *JobsDBHandler) InsertJob(payload *model.ArticlePayload) (*model.Job, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, helper.NewError("marshal payload", err)
	}

	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_job($1, $2)`,
		payloadJSON,
		payload.ContentHash(),
	)

	job, err := scanJob(row)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return job, nil
}

// SelectJob retrieves a job by its request ID.
func (h *JobsDBHandler) SelectJob(rid uuid.UUID) (*model.Job, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_job($1)`,
		rid,
	)

	job, err := scanJob(row)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return job, nil
}

// SelectJobsByStatus retrieves jobs in the given status, oldest first.
func (h *JobsDBHandler) SelectJobsByStatus(status model.JobStatus, limit int) ([]*model.Job, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_jobs_by_status($1, $2)`,
		string(status),
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		jobs = append(jobs, job)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return jobs, nil
}

// SelectCompletedJobByHash retrieves a completed job for the given content
// hash. It returns nil without error when no such job exists, absence is the
// normal case on first submission.
func (h *JobsDBHandler) SelectCompletedJobByHash(contentHash string) (*model.Job, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_completed_job_by_hash($1)`,
		contentHash,
	)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return job, nil
}

// TransitionJob moves a job to a new status under an optimistic version
// check. An illegal status edge returns model.ErrInvalidTransition, a stale
// version returns model.ErrVersionConflict.
func (h *JobsDBHandler) TransitionJob(rid uuid.UUID, expectedVersion int, newStatus model.JobStatus, detail string) (*model.Job, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM transition_job($1, $2, $3, $4)`,
		rid,
		expectedVersion,
		string(newStatus),
		detail,
	)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewError("transition job", model.ErrVersionConflict)
	} else if err != nil && strings.Contains(err.Error(), "invalid transition") {
		return nil, helper.NewError("transition job", model.ErrInvalidTransition)
	} else if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return job, nil
}

// UpdateJobCheckpoint records the accumulated phase output under an
// optimistic version check. The phase index only ever advances.
func (h *JobsDBHandler) UpdateJobCheckpoint(rid uuid.UUID, expectedVersion int, phase int, checkpoint *model.Extraction) (*model.Job, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM update_job_checkpoint($1, $2, $3, $4)`,
		rid,
		expectedVersion,
		phase,
		checkpoint,
	)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewError("update job checkpoint", model.ErrVersionConflict)
	} else if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return job, nil
}

// IncrementJobRetry increments the retry counter of a job.
func (h *JobsDBHandler) IncrementJobRetry(rid uuid.UUID) (*model.Job, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM increment_job_retry($1)`,
		rid,
	)

	job, err := scanJob(row)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return job, nil
}

// CountJobsByStatus returns the number of jobs per status.
func (h *JobsDBHandler) CountJobsByStatus() (map[model.JobStatus]int64, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM count_jobs_by_status()`,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	counts := map[model.JobStatus]int64{}
	for rows.Next() {
		var status model.JobStatus
		var count int64
		err := rows.Scan(&status, &count)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		counts[status] = count
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return counts, nil
}

// scanJob scans one full jobs row. The payload and checkpoint columns arrive
// as raw JSONB bytes.
func scanJob(row rowScanner) (*model.Job, error) {
	job := &model.Job{}
	var payload []byte
	var checkpoint []byte
	var contentHash string

	err := row.Scan(
		&job.ID,
		&job.RID,
		&payload,
		&contentHash,
		&job.Status,
		&job.Phase,
		&checkpoint,
		&job.RetryCount,
		&job.LastError,
		&job.Version,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(payload, &job.Payload)
	if err != nil {
		return nil, fmt.Errorf("error unmarshalling job payload: %w", err)
	}

	if len(checkpoint) > 0 {
		job.Checkpoint = &model.Extraction{}
		err = json.Unmarshal(checkpoint, job.Checkpoint)
		if err != nil {
			return nil, fmt.Errorf("error unmarshalling job checkpoint: %w", err)
		}
	}

	return job, nil
}
