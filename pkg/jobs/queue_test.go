package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]string{}
	done := make(chan struct{}, 2)

	q := NewQueue("reports", func(ctx context.Context, job Job[string]) error {
		mu.Lock()
		seen[job.ID] = job.Payload
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job[string]{ID: "a", Payload: "csv"}))
	require.NoError(t, q.Enqueue(Job[string]{ID: "b", Payload: "pdf"}))
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("job not processed")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]string{"a": "csv", "b": "pdf"}, seen)
}

func TestQueueRetriesThenGivesUp(t *testing.T) {
	var attempts int32
	gaveUp := make(chan string, 1)

	q := NewQueue("reports", func(ctx context.Context, job Job[int]) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("boom")
	}, QueueConfig{
		MaxRetries: 2,
		RetryDelay: 5 * time.Millisecond,
		OnGiveUp:   func(id string, err error) { gaveUp <- id },
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job[int]{ID: "job-1"}))
	select {
	case id := <-gaveUp:
		assert.Equal(t, "job-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("queue never gave up")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("reports", func(context.Context, Job[int]) error { return nil }, QueueConfig{})
	require.Error(t, q.Enqueue(Job[int]{ID: "x"}))
}

func TestQueueFull(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	q := NewQueue("reports", func(context.Context, Job[int]) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer func() {
		close(block)
		q.Stop()
	}()

	require.NoError(t, q.Enqueue(Job[int]{ID: "running"}))
	<-started
	require.NoError(t, q.Enqueue(Job[int]{ID: "buffered"}))
	assert.Equal(t, 1, q.Depth())
	assert.ErrorIs(t, q.Enqueue(Job[int]{ID: "overflow"}), ErrQueueFull)
}

func TestQueueGivesUpWhenRetryCannotBeRequeued(t *testing.T) {
	release := make(chan struct{})
	failed := make(chan struct{})
	blocking := make(chan struct{})
	type giveUp struct {
		id  string
		err error
	}
	gaveUp := make(chan giveUp, 1)

	q := NewQueue("reports", func(ctx context.Context, job Job[string]) error {
		switch job.ID {
		case "a":
			if job.Attempt == 0 {
				close(failed)
				return errors.New("renderer crashed")
			}
			t.Errorf("job a should not run again")
		case "b":
			close(blocking)
			select {
			case <-release:
			case <-ctx.Done():
			}
		}
		return nil
	}, QueueConfig{
		Workers:    1,
		BufferSize: 1,
		MaxRetries: 3,
		RetryDelay: 100 * time.Millisecond,
		OnGiveUp:   func(id string, err error) { gaveUp <- giveUp{id: id, err: err} },
	})
	q.Start(context.Background())
	defer func() {
		close(release)
		q.Stop()
	}()

	require.NoError(t, q.Enqueue(Job[string]{ID: "a"}))
	<-failed
	require.NoError(t, q.Enqueue(Job[string]{ID: "b"}))
	<-blocking
	require.NoError(t, q.Enqueue(Job[string]{ID: "c"}))

	select {
	case got := <-gaveUp:
		assert.Equal(t, "a", got.id)
		assert.ErrorIs(t, got.err, ErrQueueFull)
	case <-time.After(2 * time.Second):
		t.Fatal("retry was dropped without giving up")
	}
}
