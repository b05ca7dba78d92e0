package model

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a processing job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// legalTransitions holds the allowed status edges. Terminal states have no
// outgoing edges.
var legalTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing, JobStatusCancelled},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed, JobStatusCancelled},
}

// CanTransitionTo reports whether next is reachable from the current status.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status has no outgoing transitions.
func (s JobStatus) IsTerminal() bool {
	return len(legalTransitions[s]) == 0
}

// Valid reports whether the status is a known job status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Job represents one unit of work wrapping a single article payload.
// The phase index only ever advances, and a job is only marked completed
// after its consolidated result was committed.
type Job struct {
	ID         int64          `json:"id"`
	RID        uuid.UUID      `json:"rid"`
	Payload    ArticlePayload `json:"payload"`
	Status     JobStatus      `json:"status"`
	Phase      int            `json:"phase"` // number of successfully checkpointed phases
	Checkpoint *Extraction    `json:"checkpoint,omitempty"`
	RetryCount int            `json:"retry_count"`
	LastError  string         `json:"last_error,omitempty"`
	Version    int            `json:"version"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
