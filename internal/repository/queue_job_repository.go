package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ledgerly/ledgerly-api/internal/models"
)

type QueueJobRepository struct {
	db *sql.DB
}

func NewQueueJobRepository(db *sql.DB) *QueueJobRepository {
	return &QueueJobRepository{db: db}
}

// Insert persists a new job in the available state.
func (r *QueueJobRepository) Insert(ctx context.Context, job models.QueueJob) error {
	query := `
		INSERT INTO queue_jobs (
			id, queue_name, payload, state, attempts, max_attempts,
			next_run_at, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		job.ID,
		job.QueueName,
		job.Payload,
		job.State,
		job.Attempts,
		job.MaxAttempts,
		job.NextRunAt,
		job.ExpiresAt,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert queue job: %w", err)
	}

	return nil
}

// ClaimDue atomically claims up to limit due jobs for a queue, moving them
// available -> active and incrementing attempts. FOR UPDATE SKIP LOCKED keeps
// concurrent pollers from delivering the same job twice within an attempt.
func (r *QueueJobRepository) ClaimDue(ctx context.Context, queueName string, limit int) ([]models.QueueJob, error) {
	query := `
		UPDATE queue_jobs
		SET state = $1, attempts = attempts + 1, updated_at = $2
		WHERE id IN (
			SELECT id FROM queue_jobs
			WHERE queue_name = $3
			  AND state = $4
			  AND next_run_at <= $2
			  AND expires_at > $2
			ORDER BY next_run_at ASC, created_at ASC
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, queue_name, payload, state, attempts, max_attempts,
		          next_run_at, expires_at, last_error, created_at, updated_at, completed_at
	`

	rows, err := r.db.QueryContext(ctx, query,
		models.JobStateActive, time.Now(), queueName, models.JobStateAvailable, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim jobs: %w", err)
	}
	defer rows.Close()

	return r.scanJobs(rows)
}

// MarkCompleted retires a job after a successful handler run.
func (r *QueueJobRepository) MarkCompleted(ctx context.Context, jobID string) error {
	query := `
		UPDATE queue_jobs
		SET state = $1, updated_at = $2, completed_at = $2
		WHERE id = $3
	`

	_, err := r.db.ExecContext(ctx, query, models.JobStateCompleted, time.Now(), jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	return nil
}

// Release puts a failed job back into the available state for redelivery
// after the retry delay.
func (r *QueueJobRepository) Release(ctx context.Context, jobID string, nextRunAt time.Time, lastError string) error {
	query := `
		UPDATE queue_jobs
		SET state = $1, next_run_at = $2, last_error = $3, updated_at = $4
		WHERE id = $5
	`

	_, err := r.db.ExecContext(ctx, query, models.JobStateAvailable, nextRunAt, lastError, time.Now(), jobID)
	if err != nil {
		return fmt.Errorf("failed to release job: %w", err)
	}

	return nil
}

// MarkFailed retires a job whose retries are exhausted. Failed jobs are
// never redelivered.
func (r *QueueJobRepository) MarkFailed(ctx context.Context, jobID string, lastError string) error {
	query := `
		UPDATE queue_jobs
		SET state = $1, last_error = $2, updated_at = $3, completed_at = $3
		WHERE id = $4
	`

	_, err := r.db.ExecContext(ctx, query, models.JobStateFailed, lastError, time.Now(), jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	return nil
}

// ExpireOverdue retires jobs that passed their expiration window without
// finishing. Active rows are swept too: a worker that crashed mid-handler
// leaves its claim in place, and this is the path that retires it once the
// window closes. Returns the number of jobs expired.
func (r *QueueJobRepository) ExpireOverdue(ctx context.Context, queueName string) (int64, error) {
	query := `
		UPDATE queue_jobs
		SET state = $1, updated_at = $2
		WHERE queue_name = $3 AND state IN ($4, $5) AND expires_at <= $2
	`

	res, err := r.db.ExecContext(ctx, query,
		models.JobStateExpired, time.Now(), queueName, models.JobStateAvailable, models.JobStateActive)
	if err != nil {
		return 0, fmt.Errorf("failed to expire jobs: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count expired jobs: %w", err)
	}

	return n, nil
}

// DeleteArchived removes finished jobs older than the cutoff. Housekeeping
// only: queue correctness never depends on it.
func (r *QueueJobRepository) DeleteArchived(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM queue_jobs
		WHERE state IN ($1, $2, $3) AND updated_at < $4
	`

	res, err := r.db.ExecContext(ctx, query,
		models.JobStateCompleted, models.JobStateFailed, models.JobStateExpired, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete archived jobs: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted jobs: %w", err)
	}

	return n, nil
}

// CountReady returns the number of jobs currently waiting for delivery.
func (r *QueueJobRepository) CountReady(ctx context.Context, queueName string) (int, error) {
	query := `
		SELECT COUNT(*) FROM queue_jobs
		WHERE queue_name = $1 AND state = $2 AND next_run_at <= $3
	`

	var count int
	err := r.db.QueryRowContext(ctx, query, queueName, models.JobStateAvailable, time.Now()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count ready jobs: %w", err)
	}

	return count, nil
}

// scanJobs scans database rows into a QueueJob slice
func (r *QueueJobRepository) scanJobs(rows *sql.Rows) ([]models.QueueJob, error) {
	var jobs []models.QueueJob

	for rows.Next() {
		var job models.QueueJob
		err := rows.Scan(
			&job.ID,
			&job.QueueName,
			&job.Payload,
			&job.State,
			&job.Attempts,
			&job.MaxAttempts,
			&job.NextRunAt,
			&job.ExpiresAt,
			&job.LastError,
			&job.CreatedAt,
			&job.UpdatedAt,
			&job.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return jobs, nil
}
