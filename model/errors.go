package model

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned by the job store when the requested status
// is not reachable from the current one. Always a programming error, never
// retried.
var ErrInvalidTransition = errors.New("invalid job status transition")

// ErrVersionConflict is returned when an optimistic concurrency check failed
// because another writer updated the row in between.
var ErrVersionConflict = errors.New("version conflict")

// ErrJobCancelled is returned when a job was cancelled while processing.
// The in-flight result is discarded and nothing is persisted.
var ErrJobCancelled = errors.New("job cancelled")

// ReferentialViolation is the defensive rejection at commit time: a relation
// referenced an identifier that is not part of the consolidated result.
// Always fatal to the job.
type ReferentialViolation struct {
	Relation string
	ID       int64
}

func (e *ReferentialViolation) Error() string {
	return fmt.Sprintf("referential violation: %v references unknown identifier %v", e.Relation, e.ID)
}
