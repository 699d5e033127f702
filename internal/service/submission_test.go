package service

import (
	"context"
	"errors"
	"testing"

	"github.com/ledgerly/ledgerly-api/internal/models"
	"github.com/ledgerly/ledgerly-api/internal/queue"
	"github.com/ledgerly/ledgerly-api/internal/repository"
)

type mockEnqueuer struct {
	enqueueFunc func(ctx context.Context, queueName string, payload interface{}) (string, error)
	calls       int
}

func (m *mockEnqueuer) Enqueue(ctx context.Context, queueName string, payload interface{}) (string, error) {
	m.calls++
	if m.enqueueFunc != nil {
		return m.enqueueFunc(ctx, queueName, payload)
	}
	return "job-123", nil
}

type mockReceiptStore struct {
	createFunc func(ctx context.Context, job models.ReceiptJob) error
	getFunc    func(ctx context.Context, jobID string) (*models.ReceiptJob, error)
	created    []models.ReceiptJob
}

func (m *mockReceiptStore) Create(ctx context.Context, job models.ReceiptJob) error {
	m.created = append(m.created, job)
	if m.createFunc != nil {
		return m.createFunc(ctx, job)
	}
	return nil
}

func (m *mockReceiptStore) GetByJobID(ctx context.Context, jobID string) (*models.ReceiptJob, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, jobID)
	}
	return nil, repository.ErrNotFound
}

func TestSubmissionService_Submit_Success(t *testing.T) {
	var enqueuedQueue string
	var enqueuedPayload models.ReceiptPayload
	q := &mockEnqueuer{
		enqueueFunc: func(ctx context.Context, queueName string, payload interface{}) (string, error) {
			enqueuedQueue = queueName
			enqueuedPayload = payload.(models.ReceiptPayload)
			return "job-123", nil
		},
	}
	store := &mockReceiptStore{}

	svc := NewSubmissionService(q, store)

	record, err := svc.Submit(context.Background(), "receipts/U1/test.png-1700000000", "U1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if record.JobID != "job-123" {
		t.Errorf("expected job id from queue, got %s", record.JobID)
	}
	if record.Status != models.ReceiptStatusPending {
		t.Errorf("expected pending status on return, got %s", record.Status)
	}
	if enqueuedQueue != queue.QueueProcessReceipt {
		t.Errorf("expected process-receipt queue, got %s", enqueuedQueue)
	}
	if enqueuedPayload.FilePath != "receipts/U1/test.png-1700000000" || enqueuedPayload.UserID != "U1" {
		t.Errorf("unexpected payload: %+v", enqueuedPayload)
	}
	if enqueuedPayload.CreatedAt.IsZero() {
		t.Error("expected createdAt stamped on payload")
	}

	// The pending record exists before Submit returns, before any worker runs.
	if len(store.created) != 1 {
		t.Fatalf("expected exactly one record created, got %d", len(store.created))
	}
	if store.created[0].JobID != "job-123" || store.created[0].Status != models.ReceiptStatusPending {
		t.Errorf("unexpected record: %+v", store.created[0])
	}
}

func TestSubmissionService_Submit_MissingFilePath(t *testing.T) {
	q := &mockEnqueuer{}
	store := &mockReceiptStore{}
	svc := NewSubmissionService(q, store)

	_, err := svc.Submit(context.Background(), "", "U1")
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if q.calls != 0 {
		t.Error("no job must be enqueued for an invalid submission")
	}
	if len(store.created) != 0 {
		t.Error("no record must be created for an invalid submission")
	}
}

func TestSubmissionService_Submit_MissingUser(t *testing.T) {
	svc := NewSubmissionService(&mockEnqueuer{}, &mockReceiptStore{})

	_, err := svc.Submit(context.Background(), "receipts/U1/test.png-1", "")
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestSubmissionService_Submit_QueueUnavailable(t *testing.T) {
	q := &mockEnqueuer{
		enqueueFunc: func(ctx context.Context, queueName string, payload interface{}) (string, error) {
			return "", queue.ErrQueueUnavailable
		},
	}
	store := &mockReceiptStore{}
	svc := NewSubmissionService(q, store)

	_, err := svc.Submit(context.Background(), "receipts/U1/test.png-1", "U1")
	if !errors.Is(err, queue.ErrQueueUnavailable) {
		t.Fatalf("expected ErrQueueUnavailable, got %v", err)
	}
	// No orphaned pending record without a backing job.
	if len(store.created) != 0 {
		t.Error("no record must be created when enqueue fails")
	}
}

func TestSubmissionService_Status_NotFound(t *testing.T) {
	svc := NewSubmissionService(&mockEnqueuer{}, &mockReceiptStore{})

	_, err := svc.Status(context.Background(), "never-issued")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
