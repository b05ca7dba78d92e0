package metrics

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/siherrmann/facter/database"
	"github.com/siherrmann/facter/helper"
	"github.com/siherrmann/facter/model"
)

// defaultWindowSize is the number of recent job outcomes the rolling error
// rate is computed over.
const defaultWindowSize = 100

// Reporter aggregates processing metrics for the status surface: job counts
// by status from the job store, a rolling error rate over recent job
// outcomes and the average latency per extraction phase.
type Reporter struct {
	jobs   database.JobsDBHandlerFunctions
	logger *slog.Logger

	mu       sync.Mutex
	outcomes []bool // ring of recent job outcomes, true = failed
	next     int
	filled   bool
	phases   map[string]*phaseStats
}

type phaseStats struct {
	invocations int64
	failures    int64
	total       time.Duration
}

// PhaseSnapshot is the aggregated view of one extraction phase.
type PhaseSnapshot struct {
	Invocations    int64         `json:"invocations"`
	Failures       int64         `json:"failures"`
	AverageLatency time.Duration `json:"average_latency_ns"`
}

// Snapshot is the JSON status view consumed by external monitoring.
type Snapshot struct {
	JobCounts   map[model.JobStatus]int64 `json:"job_counts"`
	ErrorRate   float64                   `json:"error_rate"`
	Phases      map[string]PhaseSnapshot  `json:"phases"`
	GeneratedAt time.Time                 `json:"generated_at"`
}

// NewReporter creates a new status reporter.
func NewReporter(jobs database.JobsDBHandlerFunctions, logger *slog.Logger) (*Reporter, error) {
	if jobs == nil {
		return nil, helper.NewError("reporter validation", fmt.Errorf("jobs handler is required"))
	}

	return &Reporter{
		jobs:     jobs,
		logger:   logger,
		outcomes: make([]bool, defaultWindowSize),
		phases:   map[string]*phaseStats{},
	}, nil
}

// ObservePhase records the duration and outcome of one phase invocation.
// Implements the orchestrator's phase observer.
func (r *Reporter) ObservePhase(phase string, duration time.Duration, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats, ok := r.phases[phase]
	if !ok {
		stats = &phaseStats{}
		r.phases[phase] = stats
	}
	stats.invocations++
	stats.total += duration
	if !success {
		stats.failures++
	}
}

// ObserveJob records one finished job for the rolling error rate.
func (r *Reporter) ObserveJob(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.outcomes[r.next] = err != nil
	r.next++
	if r.next == len(r.outcomes) {
		r.next = 0
		r.filled = true
	}
}

// Snapshot merges the in-memory counters with the job counts from the store.
func (r *Reporter) Snapshot() (*Snapshot, error) {
	counts, err := r.jobs.CountJobsByStatus()
	if err != nil {
		return nil, helper.NewError("count jobs by status", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	window := r.next
	if r.filled {
		window = len(r.outcomes)
	}
	failed := 0
	for i := 0; i < window; i++ {
		if r.outcomes[i] {
			failed++
		}
	}
	errorRate := 0.0
	if window > 0 {
		errorRate = float64(failed) / float64(window)
	}

	phases := make(map[string]PhaseSnapshot, len(r.phases))
	for phase, stats := range r.phases {
		phases[phase] = PhaseSnapshot{
			Invocations:    stats.invocations,
			Failures:       stats.failures,
			AverageLatency: time.Duration(int64(stats.total) / stats.invocations),
		}
	}

	return &Snapshot{
		JobCounts:   counts,
		ErrorRate:   errorRate,
		Phases:      phases,
		GeneratedAt: time.Now().UTC(),
	}, nil
}
