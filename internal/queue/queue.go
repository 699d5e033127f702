// Package queue implements a durable Postgres-backed job queue with
// at-least-once delivery. One Client is constructed per process and shared
// by everything that enqueues or consumes jobs; handlers must tolerate
// redelivery of the same job id.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerly/ledgerly-api/internal/models"
)

// QueueProcessReceipt is the queue name for receipt extraction jobs.
const QueueProcessReceipt = "process-receipt"

// ErrQueueUnavailable wraps enqueue failures caused by the backing store.
// Callers surface it as a server error and must not create a status record.
var ErrQueueUnavailable = errors.New("queue unavailable")

// Handler processes one delivered job. A non-nil return triggers retry
// bookkeeping: the job is released for redelivery after the retry delay
// until attempts reach max_attempts, then marked failed permanently.
type Handler func(ctx context.Context, job models.QueueJob) error

// JobStore is the persistence surface the queue runs on.
type JobStore interface {
	Insert(ctx context.Context, job models.QueueJob) error
	ClaimDue(ctx context.Context, queueName string, limit int) ([]models.QueueJob, error)
	MarkCompleted(ctx context.Context, jobID string) error
	Release(ctx context.Context, jobID string, nextRunAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, jobID string, lastError string) error
	ExpireOverdue(ctx context.Context, queueName string) (int64, error)
	DeleteArchived(ctx context.Context, cutoff time.Time) (int64, error)
	CountReady(ctx context.Context, queueName string) (int, error)
}

// Options controls retry and retention policy for every queue served by a Client.
type Options struct {
	MaxAttempts          int           // delivery attempts before a job is marked failed
	RetryDelay           time.Duration // wait before a failed job becomes available again
	Expiration           time.Duration // window after enqueue in which a job must run
	Retention            time.Duration // how long finished jobs are kept before archival
	HousekeepingInterval time.Duration
}

// WorkerOptions tunes a single registered worker.
type WorkerOptions struct {
	Concurrency  int // polling goroutines for this queue
	BatchSize    int // jobs claimed per poll
	PollInterval time.Duration
}

type registration struct {
	opts    WorkerOptions
	handler Handler
}

// Client is the process-wide queue handle. Construct once, register workers,
// then Start; Enqueue is safe from any goroutine.
type Client struct {
	store JobStore
	opts  Options

	mu      sync.Mutex
	workers map[string]registration
	started bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewClient(store JobStore, opts Options) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 30 * time.Second
	}
	if opts.Expiration <= 0 {
		opts.Expiration = 15 * time.Minute
	}
	if opts.Retention <= 0 {
		opts.Retention = 7 * 24 * time.Hour
	}
	if opts.HousekeepingInterval <= 0 {
		opts.HousekeepingInterval = 15 * time.Minute
	}
	return &Client{
		store:   store,
		opts:    opts,
		workers: make(map[string]registration),
	}
}

// Enqueue persists a job and returns its id immediately. The payload is
// marshaled to JSON and handed back to the handler verbatim on delivery.
func (c *Client) Enqueue(ctx context.Context, queueName string, payload interface{}) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}

	now := time.Now()
	job := models.QueueJob{
		ID:          uuid.NewString(),
		QueueName:   queueName,
		Payload:     raw,
		State:       models.JobStateAvailable,
		Attempts:    0,
		MaxAttempts: c.opts.MaxAttempts,
		NextRunAt:   now,
		ExpiresAt:   now.Add(c.opts.Expiration),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := c.store.Insert(ctx, job); err != nil {
		return "", fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	return job.ID, nil
}

// RegisterWorker registers a handler for a queue. Must be called before Start.
func (c *Client) RegisterWorker(queueName string, opts WorkerOptions, handler Handler) error {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("cannot register worker for %s: queue already started", queueName)
	}
	if _, exists := c.workers[queueName]; exists {
		return fmt.Errorf("worker already registered for queue %s", queueName)
	}
	c.workers[queueName] = registration{opts: opts, handler: handler}
	return nil
}

// Start launches the polling loops for every registered worker plus one
// housekeeping loop. It returns immediately.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("queue already started")
	}
	c.started = true

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	for queueName, reg := range c.workers {
		for i := 0; i < reg.opts.Concurrency; i++ {
			c.wg.Add(1)
			go c.pollLoop(runCtx, queueName, reg, i+1)
		}
	}

	c.wg.Add(1)
	go c.housekeepingLoop(runCtx)

	log.Printf("Queue started with %d registered worker(s)", len(c.workers))
	return nil
}

// Shutdown stops polling and waits for in-flight handlers, bounded by ctx.
func (c *Client) Shutdown(ctx context.Context) {
	c.mu.Lock()
	if !c.started || c.cancel == nil {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		log.Println("Queue shutdown timeout exceeded, abandoning in-flight jobs")
	case <-done:
		log.Println("Queue drained, shutdown complete")
	}
}

// pollLoop drains due jobs for one queue. Jobs are processed inline so a slow
// handler naturally throttles claiming; concurrency comes from running more
// loops, not from fanning out inside one.
func (c *Client) pollLoop(ctx context.Context, queueName string, reg registration, workerID int) {
	defer c.wg.Done()
	log.Printf("Worker %d started for queue %s (poll interval %s)", workerID, queueName, reg.opts.PollInterval)

	// Drain anything left over from previous runs before the first tick.
	c.pollOnce(ctx, queueName, reg)

	ticker := time.NewTicker(reg.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("Worker %d for queue %s shutting down", workerID, queueName)
			return
		case <-ticker.C:
			c.pollOnce(ctx, queueName, reg)
		}
	}
}

func (c *Client) pollOnce(ctx context.Context, queueName string, reg registration) {
	if n, err := c.store.ExpireOverdue(ctx, queueName); err != nil {
		log.Printf("Error expiring overdue jobs for %s: %v", queueName, err)
	} else if n > 0 {
		log.Printf("Expired %d overdue job(s) on queue %s", n, queueName)
	}

	jobs, err := c.store.ClaimDue(ctx, queueName, reg.opts.BatchSize)
	if err != nil {
		log.Printf("Error claiming jobs for %s: %v", queueName, err)
		return
	}

	for _, job := range jobs {
		c.runJob(ctx, job, reg.handler)
	}
}

// settleTimeout bounds the outcome write for a finished job.
const settleTimeout = 10 * time.Second

// runJob executes the handler for one claimed job and settles the outcome.
func (c *Client) runJob(ctx context.Context, job models.QueueJob, handler Handler) {
	if job.Expired(time.Now()) {
		// The window closed between claim and delivery. The expiration
		// sweep retires the active row on the next poll.
		log.Printf("Job %s expired before delivery, skipping", job.ID)
		return
	}

	log.Printf("Delivering job %s (queue: %s, attempt %d/%d)", job.ID, job.QueueName, job.Attempts, job.MaxAttempts)

	err := c.invoke(ctx, job, handler)

	// Settle on a fresh context: a shutdown cancel that interrupts the
	// handler must not also lose the retry bookkeeping, or the row would
	// sit in active until it expires.
	settleCtx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	if err == nil {
		if markErr := c.store.MarkCompleted(settleCtx, job.ID); markErr != nil {
			log.Printf("Warning: failed to mark job %s completed: %v", job.ID, markErr)
		}
		return
	}

	if job.RetriesExhausted() {
		log.Printf("Job %s failed permanently after %d attempt(s): %v", job.ID, job.Attempts, err)
		if markErr := c.store.MarkFailed(settleCtx, job.ID, err.Error()); markErr != nil {
			log.Printf("Warning: failed to mark job %s failed: %v", job.ID, markErr)
		}
		return
	}

	nextRun := time.Now().Add(c.opts.RetryDelay)
	log.Printf("Job %s failed (attempt %d/%d), retrying at %s: %v", job.ID, job.Attempts, job.MaxAttempts, nextRun.Format(time.RFC3339), err)
	if relErr := c.store.Release(settleCtx, job.ID, nextRun, err.Error()); relErr != nil {
		log.Printf("Warning: failed to release job %s for retry: %v", job.ID, relErr)
	}
}

// invoke runs the handler with panic recovery so one bad job cannot take
// down the polling loop.
func (c *Client) invoke(ctx context.Context, job models.QueueJob, handler Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, job)
}

// housekeepingLoop archives finished jobs past the retention window.
func (c *Client) housekeepingLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.HousekeepingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-c.opts.Retention)
			n, err := c.store.DeleteArchived(ctx, cutoff)
			if err != nil {
				log.Printf("Error archiving finished jobs: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("Archived %d finished job(s)", n)
			}
		}
	}
}

// QueueSize returns the number of jobs waiting on a queue, for health checks.
func (c *Client) QueueSize(ctx context.Context, queueName string) (int, error) {
	return c.store.CountReady(ctx, queueName)
}
