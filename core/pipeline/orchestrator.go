package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/siherrmann/facter/core/generation"
	"github.com/siherrmann/facter/database"
	"github.com/siherrmann/facter/helper"
	"github.com/siherrmann/facter/model"
)

// PhaseObserver receives the duration and outcome of every phase invocation.
type PhaseObserver interface {
	ObservePhase(phase string, duration time.Duration, success bool)
}

// Orchestrator drives the strictly ordered extraction phases of a job.
// After every successful phase the accumulated output is checkpointed to the
// job store, so a crashed job re-enters at the phase after its checkpoint
// instead of restarting from phase one. Phase N+1 never starts before phase
// N's checkpoint write returned.
type Orchestrator struct {
	client   generation.Client
	jobs     database.JobsDBHandlerFunctions
	observer PhaseObserver
	logger   *slog.Logger
}

// NewOrchestrator creates a new phase orchestrator.
func NewOrchestrator(client generation.Client, jobs database.JobsDBHandlerFunctions, logger *slog.Logger) (*Orchestrator, error) {
	if client == nil {
		return nil, helper.NewError("orchestrator validation", fmt.Errorf("generation client is required"))
	}
	if jobs == nil {
		return nil, helper.NewError("orchestrator validation", fmt.Errorf("jobs handler is required"))
	}

	return &Orchestrator{
		client: client,
		jobs:   jobs,
		logger: logger,
	}, nil
}

// SetObserver sets the phase observer. Optional.
func (o *Orchestrator) SetObserver(observer PhaseObserver) {
	o.observer = observer
}

// Run executes all remaining phases of a job in processing status and returns
// the job as last written to the store. The returned job carries the full
// accumulated extraction in its checkpoint.
//
// A phase failure transitions the job to failed with the phase identifier and
// error kind recorded. Cancellation is cooperative: an in-flight generation
// call is allowed to complete, its result is discarded and the job is
// transitioned to cancelled; Run then returns model.ErrJobCancelled.
func (o *Orchestrator) Run(ctx context.Context, job *model.Job) (*model.Job, error) {
	if job == nil {
		return nil, helper.NewError("job validation", fmt.Errorf("job is required"))
	}
	if job.Status != model.JobStatusProcessing {
		return nil, helper.NewError("job validation", fmt.Errorf("job %v is %v, expected %v", job.RID, job.Status, model.JobStatusProcessing))
	}

	accumulated := job.Checkpoint
	if accumulated == nil {
		accumulated = &model.Extraction{}
	}
	current := job

	for _, phase := range generation.Phases {
		// Resuming: everything up to the checkpointed phase index is done.
		if int(phase) <= current.Phase {
			continue
		}

		delta, updated, err := o.runPhase(ctx, phase, current, accumulated)
		current = updated

		if ctx.Err() != nil {
			cancelled, terr := o.jobs.TransitionJob(current.RID, current.Version, model.JobStatusCancelled, fmt.Sprintf("cancelled during phase %v", phase))
			if terr != nil {
				return current, helper.NewError("cancel job", terr)
			}
			o.logger.Info("Cancelled job", "rid", current.RID, "phase", phase.String())
			return cancelled, model.ErrJobCancelled
		}
		if err != nil {
			failed, terr := o.jobs.TransitionJob(current.RID, current.Version, model.JobStatusFailed, err.Error())
			if terr != nil {
				return current, helper.NewError("fail job", terr)
			}
			o.logger.Error("Job failed", "rid", current.RID, "phase", phase.String(), "error", err.Error())
			return failed, err
		}

		mergeExtraction(accumulated, delta)

		checkpointed, err := o.jobs.UpdateJobCheckpoint(current.RID, current.Version, int(phase), accumulated)
		if err != nil {
			return current, helper.NewError("checkpoint phase", err)
		}
		current = checkpointed
		o.logger.Info("Checkpointed phase", "rid", current.RID, "phase", phase.String())
	}

	return current, nil
}

// runPhase invokes one phase, applying at most one corrective retry when the
// response failed structural validation. It returns the job as last written,
// the retry counter update bumps the stored version.
func (o *Orchestrator) runPhase(ctx context.Context, phase generation.Phase, job *model.Job, accumulated *model.Extraction) (*model.Extraction, *model.Job, error) {
	input := &generation.PhaseInput{
		Payload:     &job.Payload,
		Accumulated: accumulated,
	}

	delta, err := o.invokeObserved(ctx, phase, input)
	if err == nil {
		return delta, job, nil
	}

	phaseErr, ok := generation.AsPhaseError(err)
	if !ok || phaseErr.Kind != generation.ErrorKindMalformedOutput || ctx.Err() != nil {
		return nil, job, err
	}

	o.logger.Warn("Phase output malformed, applying corrective retry", "rid", job.RID, "phase", phase.String(), "error", phaseErr.Err.Error())
	updated, err := o.jobs.IncrementJobRetry(job.RID)
	if err != nil {
		return nil, job, helper.NewError("increment job retry", err)
	}

	input.Corrective = phaseErr.Err.Error()
	delta, err = o.invokeObserved(ctx, phase, input)
	if err != nil {
		return nil, updated, err
	}

	return delta, updated, nil
}

func (o *Orchestrator) invokeObserved(ctx context.Context, phase generation.Phase, input *generation.PhaseInput) (*model.Extraction, error) {
	started := time.Now()
	delta, err := o.client.InvokePhase(ctx, phase, input)
	if o.observer != nil {
		o.observer.ObservePhase(phase.String(), time.Since(started), err == nil)
	}
	return delta, err
}

// mergeExtraction appends the new elements of one phase to the accumulated
// output. Identifiers are job scoped and already validated against the
// accumulated set, merging is plain concatenation.
func mergeExtraction(accumulated *model.Extraction, delta *model.Extraction) {
	if delta == nil {
		return
	}
	accumulated.Hechos = append(accumulated.Hechos, delta.Hechos...)
	accumulated.Entidades = append(accumulated.Entidades, delta.Entidades...)
	accumulated.Citas = append(accumulated.Citas, delta.Citas...)
	accumulated.Datos = append(accumulated.Datos, delta.Datos...)
	accumulated.HechoEntidad = append(accumulated.HechoEntidad, delta.HechoEntidad...)
	accumulated.HechoHecho = append(accumulated.HechoHecho, delta.HechoHecho...)
	accumulated.EntidadEntidad = append(accumulated.EntidadEntidad, delta.EntidadEntidad...)
	accumulated.Contradicciones = append(accumulated.Contradicciones, delta.Contradicciones...)
}
