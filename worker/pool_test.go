package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTask struct {
	rid       uuid.UUID
	duration  time.Duration
	shouldErr bool
	executed  *int32
	onStart   func()
	onEnd     func()
}

func (t *recordingTask) Execute(ctx context.Context) Result {
	if t.onStart != nil {
		t.onStart()
	}
	if t.executed != nil {
		atomic.AddInt32(t.executed, 1)
	}
	if t.duration > 0 {
		select {
		case <-time.After(t.duration):
		case <-ctx.Done():
			return Result{RID: t.rid, Err: ctx.Err()}
		}
	}
	if t.onEnd != nil {
		t.onEnd()
	}
	if t.shouldErr {
		return Result{RID: t.rid, Err: fmt.Errorf("task failed")}
	}
	return Result{RID: t.rid}
}

func TestNewPool(t *testing.T) {
	t.Run("Worker count is kept", func(t *testing.T) {
		pool := NewPool(5)
		assert.Equal(t, 5, pool.workers)
	})

	t.Run("Non-positive worker count falls back to one", func(t *testing.T) {
		assert.Equal(t, 1, NewPool(0).workers)
		assert.Equal(t, 1, NewPool(-1).workers)
	})
}

func TestPoolExecution(t *testing.T) {
	t.Run("All submitted tasks execute", func(t *testing.T) {
		pool := NewPool(2)
		pool.Start()

		var executed int32
		count := 10
		for i := 0; i < count; i++ {
			pool.Submit(&recordingTask{rid: uuid.New(), executed: &executed})
		}

		results := pool.Wait()
		assert.Len(t, results, count)
		assert.Equal(t, int32(count), atomic.LoadInt32(&executed))
	})

	t.Run("Errors are carried per result", func(t *testing.T) {
		pool := NewPool(2)
		pool.Start()

		failing := uuid.New()
		pool.Submit(&recordingTask{rid: failing, shouldErr: true})
		pool.Submit(&recordingTask{rid: uuid.New()})

		results := pool.Wait()
		require.Len(t, results, 2)

		failures := 0
		for _, result := range results {
			if result.Err != nil {
				failures++
				assert.Equal(t, failing, result.RID)
			}
		}
		assert.Equal(t, 1, failures)
	})

	t.Run("Concurrency never exceeds the worker count", func(t *testing.T) {
		workers := 4
		pool := NewPool(workers)
		pool.Start()

		var current, maxConcurrent int32
		var mu sync.Mutex

		for i := 0; i < 20; i++ {
			pool.Submit(&recordingTask{
				rid:      uuid.New(),
				duration: 10 * time.Millisecond,
				onStart: func() {
					concurrent := atomic.AddInt32(&current, 1)
					mu.Lock()
					if concurrent > maxConcurrent {
						maxConcurrent = concurrent
					}
					mu.Unlock()
				},
				onEnd: func() {
					atomic.AddInt32(&current, -1)
				},
			})
		}

		pool.Wait()

		mu.Lock()
		defer mu.Unlock()
		assert.LessOrEqual(t, maxConcurrent, int32(workers))
	})

	t.Run("Submit after shutdown does not block", func(t *testing.T) {
		pool := NewPool(2)
		pool.Start()
		pool.Shutdown()

		done := make(chan struct{})
		go func() {
			pool.Submit(&recordingTask{rid: uuid.New()})
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Submit after shutdown blocked")
		}
	})

	t.Run("Shutdown cancels an in-flight task", func(t *testing.T) {
		pool := NewPool(1)
		pool.Start()

		started := make(chan struct{})
		pool.Submit(&recordingTask{
			rid:      uuid.New(),
			duration: 500 * time.Millisecond,
			onStart:  func() { close(started) },
		})

		<-started
		pool.Shutdown()

		done := make(chan struct{})
		go func() {
			for range pool.Results() {
			}
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Shutdown timed out")
		}
	})
}
