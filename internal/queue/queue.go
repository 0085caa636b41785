// Package queue provides an in-process job queue with a fixed worker
// pool. Jobs are dispatched to named handlers registered before Start.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Handler processes a single job payload. A returned error marks the
// job failed; the queue itself does not retry.
type Handler func(ctx context.Context, job Job) error

// Job is a unit of work queued for background execution.
type Job struct {
	ID      string
	Kind    string
	Payload any
}

// NewJob creates a job of the given kind with a fresh ULID id. Callers
// that need to persist the job id before submission build the job here,
// record the id, then hand it to EnqueueJob.
func NewJob(kind string, payload any) Job {
	return Job{
		ID:      ulid.Make().String(),
		Kind:    kind,
		Payload: payload,
	}
}

// Logger is the minimal logging port the queue needs.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]any)
	Error(ctx context.Context, msg string, fields map[string]any)
}

// Queue runs registered handlers on a bounded worker pool.
type Queue struct {
	jobs   chan Job
	logger Logger

	workers int

	// handlersMu guards only the handler map. Workers take it while mu
	// may be held by a producer blocked on a full channel, so the two
	// locks must stay separate.
	handlersMu sync.Mutex
	handlers   map[string]Handler

	mu      sync.Mutex
	started bool
	closed  bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// New creates a queue with the given worker count and buffer capacity.
// Both are clamped to at least 1.
func New(workers, capacity int, logger Logger) *Queue {
	if workers < 1 {
		workers = 1
	}
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		handlers: make(map[string]Handler),
		jobs:     make(chan Job, capacity),
		logger:   logger,
		workers:  workers,
	}
}

// Register binds a handler to a job kind. Must be called before Start.
func (q *Queue) Register(kind string, h Handler) {
	q.handlersMu.Lock()
	defer q.handlersMu.Unlock()
	q.handlers[kind] = h
}

func (q *Queue) handler(kind string) Handler {
	q.handlersMu.Lock()
	defer q.handlersMu.Unlock()
	return q.handlers[kind]
}

// Start launches the worker pool. Workers run until Close is called.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(ctx)
	}
}

// Enqueue submits a job of the given kind and returns its id. It fails
// when the kind has no registered handler or the queue is closed.
func (q *Queue) Enqueue(kind string, payload any) (string, error) {
	job := NewJob(kind, payload)
	if err := q.EnqueueJob(job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// EnqueueJob submits a pre-built job. The send happens under the same
// lock Close takes before closing the channel, so a concurrent Close
// can never close it out from under an in-flight enqueue.
func (q *Queue) EnqueueJob(job Job) error {
	if q.handler(job.Kind) == nil {
		return fmt.Errorf("no handler registered for job kind %q", job.Kind)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("queue is closed")
	}
	q.jobs <- job
	return nil
}

// Close stops intake, waits for queued jobs to drain, and stops the
// workers. Safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed || !q.started {
		q.closed = true
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
	q.cancel()
}

func (q *Queue) work(ctx context.Context) {
	defer q.wg.Done()
	for job := range q.jobs {
		q.run(ctx, job)
	}
}

func (q *Queue) run(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			q.logError(ctx, "job panicked", map[string]any{
				"job_id": job.ID,
				"kind":   job.Kind,
				"panic":  fmt.Sprintf("%v", r),
			})
		}
	}()

	handler := q.handler(job.Kind)
	if handler == nil {
		return
	}

	if err := handler(ctx, job); err != nil {
		q.logError(ctx, "job failed", map[string]any{
			"job_id": job.ID,
			"kind":   job.Kind,
			"error":  err.Error(),
		})
		return
	}
	if q.logger != nil {
		q.logger.Info(ctx, "job completed", map[string]any{
			"job_id": job.ID,
			"kind":   job.Kind,
		})
	}
}

func (q *Queue) logError(ctx context.Context, msg string, fields map[string]any) {
	if q.logger != nil {
		q.logger.Error(ctx, msg, fields)
	}
}
