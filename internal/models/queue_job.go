package models

import (
	"encoding/json"
	"time"
)

// Queue job delivery states. These are internal to the queue and never
// exposed to API clients; client-visible progress lives in receipt_jobs.
const (
	JobStateAvailable = "available" // waiting to be claimed by a worker
	JobStateActive    = "active"    // claimed, handler running
	JobStateCompleted = "completed" // handler succeeded
	JobStateFailed    = "failed"    // retries exhausted, never redelivered
	JobStateExpired   = "expired"   // passed expires_at before completing
)

// QueueJob is one durable unit of work in the queue_jobs table.
type QueueJob struct {
	ID          string          `gorm:"column:id;primaryKey"`
	QueueName   string          `gorm:"column:queue_name;index"`
	Payload     json.RawMessage `gorm:"column:payload"`
	State       string          `gorm:"column:state;index"`
	Attempts    int             `gorm:"column:attempts"`
	MaxAttempts int             `gorm:"column:max_attempts"`
	NextRunAt   time.Time       `gorm:"column:next_run_at"`
	ExpiresAt   time.Time       `gorm:"column:expires_at"`
	LastError   *string         `gorm:"column:last_error"`
	CreatedAt   time.Time       `gorm:"column:created_at"`
	UpdatedAt   time.Time       `gorm:"column:updated_at"`
	CompletedAt *time.Time      `gorm:"column:completed_at"`
}

// TableName specifies the table name for GORM
func (QueueJob) TableName() string {
	return "queue_jobs"
}

// RetriesExhausted reports whether a failed attempt should retire the job
// instead of releasing it for redelivery.
func (j *QueueJob) RetriesExhausted() bool {
	return j.Attempts >= j.MaxAttempts
}

// Expired reports whether the job passed its expiration window at t.
func (j *QueueJob) Expired(t time.Time) bool {
	return !j.ExpiresAt.IsZero() && t.After(j.ExpiresAt)
}
