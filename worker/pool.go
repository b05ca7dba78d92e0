package worker

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/siherrmann/facter/model"
)

// Task is one unit of pipeline work executed by the pool, typically the full
// processing of a single job (orchestrate, resolve, detect, commit).
type Task interface {
	Execute(ctx context.Context) Result
}

// Result is the outcome of one executed task.
type Result struct {
	RID     uuid.UUID
	Outcome *model.CommitOutcome
	Err     error
}

// Pool executes tasks on a bounded number of workers. The number of
// concurrently in-flight jobs is the worker count, independent of how many
// phases each job runs.
type Pool struct {
	workers    int
	taskQueue  chan Task
	results    chan Result
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
}

// NewPool creates a new worker pool with the given number of workers.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		workers:    workers,
		taskQueue:  make(chan Task, workers*2),
		results:    make(chan Result, workers*2),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start starts the workers.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			result := task.Execute(p.ctx)
			select {
			case p.results <- result:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Submit enqueues a task for execution. Submitting after shutdown is a no-op.
func (p *Pool) Submit(task Task) {
	select {
	case <-p.ctx.Done():
		return
	case p.taskQueue <- task:
	}
}

// Wait closes the queue, waits for all enqueued tasks to finish and returns
// their results.
func (p *Pool) Wait() []Result {
	close(p.taskQueue)

	go func() {
		p.wg.Wait()
		p.closeResults()
	}()

	var results []Result
	for result := range p.results {
		results = append(results, result)
	}

	return results
}

// Results returns the channel of task results for streaming consumption.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Shutdown cancels the pool context and stops all workers. In-flight jobs
// observe the cancellation cooperatively and transition to cancelled.
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.wg.Wait()
	p.closeResults()
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}
