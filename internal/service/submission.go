package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ledgerly/ledgerly-api/internal/metrics"
	"github.com/ledgerly/ledgerly-api/internal/models"
	"github.com/ledgerly/ledgerly-api/internal/queue"
)

// ErrInvalidRequest flags submissions missing required fields.
var ErrInvalidRequest = errors.New("invalid request")

// Enqueuer interface for dependency injection
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName string, payload interface{}) (string, error)
}

// ReceiptStore is the status-record surface the API consumes.
type ReceiptStore interface {
	Create(ctx context.Context, job models.ReceiptJob) error
	GetByJobID(ctx context.Context, jobID string) (*models.ReceiptJob, error)
}

// SubmissionService accepts receipt submissions and answers status queries.
type SubmissionService struct {
	queue   Enqueuer
	records ReceiptStore
}

func NewSubmissionService(q Enqueuer, records ReceiptStore) *SubmissionService {
	return &SubmissionService{queue: q, records: records}
}

// Submit enqueues a processing job for an already-uploaded file and creates
// the pending status record. It returns as soon as both writes land; the
// caller polls for the result. The job is enqueued first so a record never
// exists without a backing job; the reverse orphan (job without record) is
// tolerated because worker updates are keyed no-ops and the job expires.
func (s *SubmissionService) Submit(ctx context.Context, filePath, userID string) (*models.ReceiptJob, error) {
	if filePath == "" {
		return nil, fmt.Errorf("%w: filePath is required", ErrInvalidRequest)
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user identity is required", ErrInvalidRequest)
	}

	now := time.Now()
	jobID, err := s.queue.Enqueue(ctx, queue.QueueProcessReceipt, models.ReceiptPayload{
		FilePath:  filePath,
		UserID:    userID,
		CreatedAt: now,
	})
	if err != nil {
		return nil, err
	}

	record := models.ReceiptJob{
		JobID:     jobID,
		FilePath:  filePath,
		UserID:    userID,
		Status:    models.ReceiptStatusPending,
		CreatedAt: now,
	}
	if err := s.records.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create status record for job %s: %w", jobID, err)
	}

	metrics.ReceiptsSubmittedTotal.Inc()
	log.Printf("Receipt submitted: job %s (file: %s, user: %s)", jobID, filePath, userID)
	return &record, nil
}

// Status returns the current status record for a job id. Callers translate
// repository.ErrNotFound into a client error.
func (s *SubmissionService) Status(ctx context.Context, jobID string) (*models.ReceiptJob, error) {
	return s.records.GetByJobID(ctx, jobID)
}
