package models

import (
	"encoding/json"
	"time"
)

// Receipt job status constants. This is the canonical vocabulary stored in
// receipt_jobs.status and returned by the status endpoint.
const (
	ReceiptStatusPending    = "pending"    // record created, waiting for a worker
	ReceiptStatusProcessing = "processing" // worker picked it up, extraction in flight
	ReceiptStatusComplete   = "complete"   // extraction succeeded, extracted_data populated
	ReceiptStatusError      = "error"      // extraction failed, error_message populated
)

// ReceiptJob is the client-visible status record for one submitted receipt.
// JobID matches the queue job id, one record per submission. The record is
// created at submission time and mutated only by the worker afterwards.
type ReceiptJob struct {
	JobID         string          `gorm:"column:job_id;primaryKey"`
	FilePath      string          `gorm:"column:file_path"`
	UserID        string          `gorm:"column:user_id;index"`
	Status        string          `gorm:"column:status;index"`
	ExtractedData json.RawMessage `gorm:"column:extracted_data"`
	ErrorMessage  *string         `gorm:"column:error_message"`
	CreatedAt     time.Time       `gorm:"column:created_at"`
	CompletedAt   *time.Time      `gorm:"column:completed_at"`
}

// TableName specifies the table name for GORM
func (ReceiptJob) TableName() string {
	return "receipt_jobs"
}

// Terminal reports whether the record reached a state the client can stop
// polling on. A record in "error" may still be retried by the queue; it is
// terminal only once the queue gives up, which the client cannot observe,
// so "error" counts as terminal here.
func (r *ReceiptJob) Terminal() bool {
	return r.Status == ReceiptStatusComplete || r.Status == ReceiptStatusError
}

// CanTransitionTo reports whether moving to next is a legal status change.
// "complete" is final. A retried job may move error -> processing -> complete,
// which keeps redelivery idempotent without ever regressing a finished record.
func (r *ReceiptJob) CanTransitionTo(next string) bool {
	if r.Status == ReceiptStatusComplete {
		return false
	}
	switch next {
	case ReceiptStatusProcessing:
		return r.Status == ReceiptStatusPending || r.Status == ReceiptStatusError || r.Status == ReceiptStatusProcessing
	case ReceiptStatusComplete, ReceiptStatusError:
		return true
	default:
		return false
	}
}
