package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/facter/core/generation"
	"github.com/siherrmann/facter/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	invoke func(ctx context.Context, phase generation.Phase, input *generation.PhaseInput) (*model.Extraction, error)
}

func (c *fakeClient) InvokePhase(ctx context.Context, phase generation.Phase, input *generation.PhaseInput) (*model.Extraction, error) {
	return c.invoke(ctx, phase, input)
}

// fakeJobStore is an in-memory single-job store with the same optimistic
// version semantics as the real handler.
type fakeJobStore struct {
	job *model.Job
}

func (s *fakeJobStore) InsertJob(payload *model.ArticlePayload) (*model.Job, error) {
	return nil, nil
}

func (s *fakeJobStore) SelectJob(rid uuid.UUID) (*model.Job, error) {
	return s.copyJob(), nil
}

func (s *fakeJobStore) SelectJobsByStatus(status model.JobStatus, limit int) ([]*model.Job, error) {
	return nil, nil
}

func (s *fakeJobStore) SelectCompletedJobByHash(contentHash string) (*model.Job, error) {
	return nil, nil
}

func (s *fakeJobStore) TransitionJob(rid uuid.UUID, expectedVersion int, newStatus model.JobStatus, detail string) (*model.Job, error) {
	if expectedVersion != s.job.Version {
		return nil, model.ErrVersionConflict
	}
	if !s.job.Status.CanTransitionTo(newStatus) {
		return nil, model.ErrInvalidTransition
	}
	s.job.Status = newStatus
	s.job.LastError = detail
	s.job.Version++
	return s.copyJob(), nil
}

func (s *fakeJobStore) UpdateJobCheckpoint(rid uuid.UUID, expectedVersion int, phase int, checkpoint *model.Extraction) (*model.Job, error) {
	if expectedVersion != s.job.Version {
		return nil, model.ErrVersionConflict
	}
	b, err := json.Marshal(checkpoint)
	if err != nil {
		return nil, err
	}
	stored := &model.Extraction{}
	err = json.Unmarshal(b, stored)
	if err != nil {
		return nil, err
	}
	s.job.Phase = phase
	s.job.Checkpoint = stored
	s.job.Version++
	return s.copyJob(), nil
}

func (s *fakeJobStore) IncrementJobRetry(rid uuid.UUID) (*model.Job, error) {
	s.job.RetryCount++
	s.job.Version++
	return s.copyJob(), nil
}

func (s *fakeJobStore) CountJobsByStatus() (map[model.JobStatus]int64, error) {
	return nil, nil
}

func (s *fakeJobStore) copyJob() *model.Job {
	copied := *s.job
	return &copied
}

func processingJob() *model.Job {
	return &model.Job{
		ID:     1,
		RID:    uuid.New(),
		Status: model.JobStatusProcessing,
		Payload: model.ArticlePayload{
			Title:         "El presidente anuncia un programa económico",
			ReferenceDate: time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC),
			Content:       "El presidente anunció ayer un nuevo programa económico.",
		},
		Version: 2,
	}
}

func phaseDelta(phase generation.Phase) *model.Extraction {
	switch phase {
	case generation.PhaseBasicElements:
		return &model.Extraction{
			Hechos:    []*model.Hecho{{ID: 1, Content: "Anuncio del programa económico", Type: model.HechoTypeAnnouncement}},
			Entidades: []*model.Entidad{{ID: 1, Name: "Nicolás Maduro", Type: model.EntidadTypePerson}},
		}
	case generation.PhaseComplementaryElements:
		return &model.Extraction{
			Citas: []*model.Cita{{ID: 1, EntidadID: 1, Content: "Vamos a recuperar la economía."}},
		}
	case generation.PhaseRelations:
		return &model.Extraction{
			HechoEntidad: []*model.HechoEntidad{{HechoID: 1, EntidadID: 1, Role: model.RoleProtagonist, Relevance: 9}},
		}
	}
	return nil
}

func TestOrchestratorRun(t *testing.T) {
	logger := slog.Default()

	t.Run("Runs all phases in order and checkpoints each", func(t *testing.T) {
		store := &fakeJobStore{job: processingJob()}
		var invoked []generation.Phase
		client := &fakeClient{invoke: func(ctx context.Context, phase generation.Phase, input *generation.PhaseInput) (*model.Extraction, error) {
			invoked = append(invoked, phase)
			if phase != generation.PhaseBasicElements {
				assert.NotEmpty(t, input.Accumulated.Hechos, "Expected later phases to receive accumulated output")
			}
			return phaseDelta(phase), nil
		}}

		orchestrator, err := NewOrchestrator(client, store, logger)
		require.NoError(t, err)

		job, err := orchestrator.Run(context.Background(), store.copyJob())
		require.NoError(t, err)
		assert.Equal(t, generation.Phases, invoked)
		assert.Equal(t, 3, job.Phase)
		assert.Equal(t, model.JobStatusProcessing, job.Status)
		require.NotNil(t, job.Checkpoint)
		assert.Len(t, job.Checkpoint.Hechos, 1)
		assert.Len(t, job.Checkpoint.Citas, 1)
		assert.Len(t, job.Checkpoint.HechoEntidad, 1)
	})

	t.Run("Resumes from checkpointed phase", func(t *testing.T) {
		store := &fakeJobStore{job: processingJob()}
		store.job.Phase = 1
		store.job.Checkpoint = phaseDelta(generation.PhaseBasicElements)

		var invoked []generation.Phase
		client := &fakeClient{invoke: func(ctx context.Context, phase generation.Phase, input *generation.PhaseInput) (*model.Extraction, error) {
			invoked = append(invoked, phase)
			return phaseDelta(phase), nil
		}}

		orchestrator, err := NewOrchestrator(client, store, logger)
		require.NoError(t, err)

		job, err := orchestrator.Run(context.Background(), store.copyJob())
		require.NoError(t, err)
		assert.Equal(t, []generation.Phase{generation.PhaseComplementaryElements, generation.PhaseRelations}, invoked)
		assert.Equal(t, 3, job.Phase)
		assert.Len(t, job.Checkpoint.Hechos, 1, "Expected phase one output intact after resume")
	})

	t.Run("Applies a single corrective retry on malformed output", func(t *testing.T) {
		store := &fakeJobStore{job: processingJob()}
		attempts := 0
		var corrective string
		client := &fakeClient{invoke: func(ctx context.Context, phase generation.Phase, input *generation.PhaseInput) (*model.Extraction, error) {
			if phase == generation.PhaseBasicElements {
				attempts++
				if attempts == 1 {
					return nil, generation.NewPhaseError(phase, generation.ErrorKindMalformedOutput, fmt.Errorf("unknown type 'rumor'"))
				}
				corrective = input.Corrective
			}
			return phaseDelta(phase), nil
		}}

		orchestrator, err := NewOrchestrator(client, store, logger)
		require.NoError(t, err)

		job, err := orchestrator.Run(context.Background(), store.copyJob())
		require.NoError(t, err)
		assert.Equal(t, 2, attempts)
		assert.Contains(t, corrective, "unknown type")
		assert.Equal(t, 1, job.RetryCount)
		assert.Equal(t, 3, job.Phase)
	})

	t.Run("Fails the job when the corrective retry is malformed too", func(t *testing.T) {
		store := &fakeJobStore{job: processingJob()}
		attempts := 0
		client := &fakeClient{invoke: func(ctx context.Context, phase generation.Phase, input *generation.PhaseInput) (*model.Extraction, error) {
			attempts++
			return nil, generation.NewPhaseError(phase, generation.ErrorKindMalformedOutput, fmt.Errorf("still malformed"))
		}}

		orchestrator, err := NewOrchestrator(client, store, logger)
		require.NoError(t, err)

		job, err := orchestrator.Run(context.Background(), store.copyJob())
		require.Error(t, err)
		assert.Equal(t, 2, attempts, "Expected exactly one corrective retry")
		assert.Equal(t, model.JobStatusFailed, job.Status)
		assert.Contains(t, job.LastError, "basic_elements")
		assert.Contains(t, job.LastError, "malformed_output")
		assert.Equal(t, 0, job.Phase, "Expected no checkpoint for the failed phase")
	})

	t.Run("Transport failure gets no corrective retry", func(t *testing.T) {
		store := &fakeJobStore{job: processingJob()}
		attempts := 0
		client := &fakeClient{invoke: func(ctx context.Context, phase generation.Phase, input *generation.PhaseInput) (*model.Extraction, error) {
			attempts++
			return nil, generation.NewPhaseError(phase, generation.ErrorKindServiceUnavailable, fmt.Errorf("upstream exploded"))
		}}

		orchestrator, err := NewOrchestrator(client, store, logger)
		require.NoError(t, err)

		job, err := orchestrator.Run(context.Background(), store.copyJob())
		require.Error(t, err)
		assert.Equal(t, 1, attempts)
		assert.Equal(t, model.JobStatusFailed, job.Status)
		assert.Contains(t, job.LastError, "service_unavailable")
	})

	t.Run("Cancellation discards the in-flight result", func(t *testing.T) {
		store := &fakeJobStore{job: processingJob()}
		ctx, cancel := context.WithCancel(context.Background())
		client := &fakeClient{invoke: func(ctx context.Context, phase generation.Phase, input *generation.PhaseInput) (*model.Extraction, error) {
			// Cancelled mid-flight, the call still completes.
			cancel()
			return phaseDelta(phase), nil
		}}

		orchestrator, err := NewOrchestrator(client, store, logger)
		require.NoError(t, err)

		job, err := orchestrator.Run(ctx, store.copyJob())
		assert.ErrorIs(t, err, model.ErrJobCancelled)
		assert.Equal(t, model.JobStatusCancelled, job.Status)
		assert.Equal(t, 0, job.Phase, "Expected the in-flight result to be discarded")
		assert.Nil(t, job.Checkpoint)
	})

	t.Run("Rejects a job not in processing", func(t *testing.T) {
		store := &fakeJobStore{job: processingJob()}
		store.job.Status = model.JobStatusPending

		orchestrator, err := NewOrchestrator(&fakeClient{}, store, logger)
		require.NoError(t, err)

		_, err = orchestrator.Run(context.Background(), store.copyJob())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "expected processing")
	})
}
