package generation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/siherrmann/facter/model"
)

// Phase identifies one ordered extraction stage of a job.
type Phase int

const (
	// PhaseBasicElements extracts hechos and entidades from the raw text.
	PhaseBasicElements Phase = iota + 1
	// PhaseComplementaryElements extracts citas and datos cuantitativos,
	// referencing identifiers from the basic elements phase.
	PhaseComplementaryElements
	// PhaseRelations extracts relations and in-article contradictions,
	// constrained to identifiers produced by the earlier phases.
	PhaseRelations
)

// Phases lists all phases in execution order.
var Phases = []Phase{PhaseBasicElements, PhaseComplementaryElements, PhaseRelations}

func (p Phase) String() string {
	switch p {
	case PhaseBasicElements:
		return "basic_elements"
	case PhaseComplementaryElements:
		return "complementary_elements"
	case PhaseRelations:
		return "relations"
	}
	return fmt.Sprintf("unknown_phase_%d", int(p))
}

// Valid reports whether the phase is a known phase.
func (p Phase) Valid() bool {
	return p >= PhaseBasicElements && p <= PhaseRelations
}

// PhaseInput is the structured input to one phase invocation: the article
// payload plus the validated accumulated output of all prior phases. Phases
// never consume raw generation text from a previous phase.
type PhaseInput struct {
	Payload     *model.ArticlePayload
	Accumulated *model.Extraction
	// Corrective carries the validation failure detail of a previous
	// malformed response. Set by the orchestrator on its single corrective
	// retry, empty otherwise.
	Corrective string
}

// Client invokes the external text-generation service for one phase and
// returns the validated new elements of that phase. The service is untrusted
// with respect to output correctness, every response is validated against
// the phase's structural schema before it is returned. Failures are
// *PhaseError values.
type Client interface {
	InvokePhase(ctx context.Context, phase Phase, input *PhaseInput) (*model.Extraction, error)
}

// ErrorKind classifies a phase invocation failure.
type ErrorKind string

const (
	// ErrorKindMalformedOutput marks a response that failed structural
	// validation. Never retried as a transport error, the orchestrator
	// applies at most one corrective retry.
	ErrorKindMalformedOutput    ErrorKind = "malformed_output"
	ErrorKindTransportTimeout   ErrorKind = "transport_timeout"
	ErrorKindServiceUnavailable ErrorKind = "service_unavailable"
	ErrorKindRateLimited        ErrorKind = "rate_limited"
	// ErrorKindRequestRejected marks a client-side service rejection such as
	// a bad request or failed authentication. Retrying cannot succeed.
	ErrorKindRequestRejected ErrorKind = "request_rejected"
)

// Transient reports whether the kind is a transport-class failure worth a
// backoff retry.
func (k ErrorKind) Transient() bool {
	switch k {
	case ErrorKindTransportTimeout, ErrorKindServiceUnavailable, ErrorKindRateLimited:
		return true
	}
	return false
}

// PhaseError is a typed phase invocation failure.
type PhaseError struct {
	Phase Phase
	Kind  ErrorKind
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %v failed with %v: %v", e.Phase, e.Kind, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// NewPhaseError creates a typed phase failure.
func NewPhaseError(phase Phase, kind ErrorKind, err error) *PhaseError {
	return &PhaseError{Phase: phase, Kind: kind, Err: err}
}

// AsPhaseError unwraps err to a *PhaseError if there is one in the chain.
func AsPhaseError(err error) (*PhaseError, bool) {
	var phaseErr *PhaseError
	if errors.As(err, &phaseErr) {
		return phaseErr, true
	}
	return nil, false
}

// RetryPolicy describes the bounded exponential backoff applied to
// transport-class failures. Malformed output is never retried under this
// policy.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int
	// BackoffBase is the delay before the first retry, doubled per attempt.
	BackoffBase time.Duration
}

// Backoff returns the delay before the given retry attempt (0-based),
// exponentially grown with up to one base duration of jitter.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := p.BackoffBase << attempt
	jitter := time.Duration(rand.Int63n(int64(p.BackoffBase) + 1))
	return backoff + jitter
}

// Wait sleeps for the backoff of the given attempt or returns early when the
// context is done.
func (p RetryPolicy) Wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(p.Backoff(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
