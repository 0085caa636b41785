package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Info(_ context.Context, _ string, _ map[string]any) {}

func (l *recordingLogger) Error(_ context.Context, msg string, _ map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

func TestEnqueueRunsHandler(t *testing.T) {
	q := New(2, 10, nil)

	var mu sync.Mutex
	seen := make(map[string]any)
	q.Register("scan", func(_ context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		seen[job.ID] = job.Payload
		return nil
	})
	q.Start()

	id, err := q.Enqueue("scan", "payload-1")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	q.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "payload-1", seen[id])
}

func TestEnqueueUnknownKind(t *testing.T) {
	q := New(1, 1, nil)
	q.Start()
	defer q.Close()

	_, err := q.Enqueue("missing", nil)
	assert.Error(t, err)
}

func TestUniqueJobIDs(t *testing.T) {
	q := New(1, 20, nil)
	q.Register("noop", func(context.Context, Job) error { return nil })
	q.Start()

	ids := make(map[string]bool)
	for i := 0; i < 10; i++ {
		id, err := q.Enqueue("noop", nil)
		require.NoError(t, err)
		ids[id] = true
	}
	q.Close()

	assert.Len(t, ids, 10)
}

func TestHandlerErrorIsLogged(t *testing.T) {
	logger := &recordingLogger{}
	q := New(1, 1, logger)
	q.Register("fail", func(context.Context, Job) error {
		return errors.New("boom")
	})
	q.Start()

	_, err := q.Enqueue("fail", nil)
	require.NoError(t, err)
	q.Close()

	assert.Equal(t, 1, logger.errorCount())
}

func TestHandlerPanicDoesNotKillWorker(t *testing.T) {
	logger := &recordingLogger{}
	q := New(1, 4, logger)

	done := make(chan struct{})
	q.Register("panic", func(context.Context, Job) error {
		panic("unexpected")
	})
	q.Register("after", func(context.Context, Job) error {
		close(done)
		return nil
	})
	q.Start()

	_, err := q.Enqueue("panic", nil)
	require.NoError(t, err)
	_, err = q.Enqueue("after", nil)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive handler panic")
	}
	q.Close()
}

func TestCloseDrainsQueuedJobs(t *testing.T) {
	q := New(1, 10, nil)

	var mu sync.Mutex
	count := 0
	q.Register("slow", func(context.Context, Job) error {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})
	q.Start()

	for i := 0; i < 5; i++ {
		_, err := q.Enqueue("slow", nil)
		require.NoError(t, err)
	}
	q.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, count)
}

func TestCloseDuringConcurrentEnqueue(t *testing.T) {
	// Producers racing Close must either enqueue or get an error; a
	// send on the closed channel would panic and fail the test.
	for i := 0; i < 200; i++ {
		q := New(2, 1, nil)
		q.Register("noop", func(context.Context, Job) error { return nil })
		q.Start()

		var wg sync.WaitGroup
		for p := 0; p < 4; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					if _, err := q.Enqueue("noop", nil); err != nil {
						return
					}
				}
			}()
		}

		time.Sleep(time.Microsecond)
		q.Close()
		wg.Wait()
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	q := New(1, 1, nil)
	q.Register("noop", func(context.Context, Job) error { return nil })
	q.Start()
	q.Close()

	_, err := q.Enqueue("noop", nil)
	assert.Error(t, err)
}
