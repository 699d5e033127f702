package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerly/ledgerly-api/internal/models"
)

// ErrNotFound is returned when no receipt job exists for the given job id.
var ErrNotFound = errors.New("receipt job not found")

type ReceiptJobRepository struct {
	db *sql.DB
}

func NewReceiptJobRepository(db *sql.DB) *ReceiptJobRepository {
	return &ReceiptJobRepository{db: db}
}

// Create inserts the status record for a freshly submitted receipt.
// The record starts in pending before any worker has run.
func (r *ReceiptJobRepository) Create(ctx context.Context, job models.ReceiptJob) error {
	query := `
		INSERT INTO receipt_jobs (
			job_id, file_path, user_id, status, created_at
		) VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		job.JobID,
		job.FilePath,
		job.UserID,
		job.Status,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create receipt job record: %w", err)
	}

	return nil
}

// GetByJobID retrieves the status record for a job id.
func (r *ReceiptJobRepository) GetByJobID(ctx context.Context, jobID string) (*models.ReceiptJob, error) {
	query := `
		SELECT job_id, file_path, user_id, status, extracted_data,
		       error_message, created_at, completed_at
		FROM receipt_jobs
		WHERE job_id = $1
	`

	var job models.ReceiptJob
	err := r.db.QueryRowContext(ctx, query, jobID).Scan(
		&job.JobID,
		&job.FilePath,
		&job.UserID,
		&job.Status,
		&job.ExtractedData,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get receipt job: %w", err)
	}

	return &job, nil
}

// MarkProcessing transitions the record to processing and clears the
// remnants of an earlier failed attempt, so a poller never sees an error
// message or completion time on a record that is being worked on. The guard
// keeps a redelivered job from regressing a record that already reached
// complete.
func (r *ReceiptJobRepository) MarkProcessing(ctx context.Context, jobID string) error {
	query := `
		UPDATE receipt_jobs
		SET status = $1, error_message = NULL, completed_at = NULL
		WHERE job_id = $2 AND status <> $3
	`

	_, err := r.db.ExecContext(ctx, query,
		models.ReceiptStatusProcessing, jobID, models.ReceiptStatusComplete)
	if err != nil {
		return fmt.Errorf("failed to mark receipt job processing: %w", err)
	}

	return nil
}

// MarkComplete stores the extraction result and stamps completed_at.
// complete is final: once set it is never overwritten, so repeating the
// update under at-least-once delivery is a harmless no-op.
func (r *ReceiptJobRepository) MarkComplete(ctx context.Context, jobID string, extracted json.RawMessage) error {
	query := `
		UPDATE receipt_jobs
		SET status = $1, extracted_data = $2, error_message = NULL, completed_at = $3
		WHERE job_id = $4 AND status <> $1
	`

	_, err := r.db.ExecContext(ctx, query,
		models.ReceiptStatusComplete, extracted, time.Now(), jobID)
	if err != nil {
		return fmt.Errorf("failed to mark receipt job complete: %w", err)
	}

	return nil
}

// MarkError records an extraction failure. The message is what clients see
// when polling, so callers pass a cleaned-up description, not a raw error.
func (r *ReceiptJobRepository) MarkError(ctx context.Context, jobID string, message string) error {
	query := `
		UPDATE receipt_jobs
		SET status = $1, error_message = $2, completed_at = $3
		WHERE job_id = $4 AND status <> $5
	`

	_, err := r.db.ExecContext(ctx, query,
		models.ReceiptStatusError, message, time.Now(), jobID, models.ReceiptStatusComplete)
	if err != nil {
		return fmt.Errorf("failed to mark receipt job error: %w", err)
	}

	return nil
}
