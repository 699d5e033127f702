package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/ledgerly/ledgerly-api/internal/metrics"
	"github.com/ledgerly/ledgerly-api/internal/models"
)

// StatusStore interface for dependency injection
type StatusStore interface {
	MarkProcessing(ctx context.Context, jobID string) error
	MarkComplete(ctx context.Context, jobID string, extracted json.RawMessage) error
	MarkError(ctx context.Context, jobID string, message string) error
}

// Extractor is the external document-analysis capability.
type Extractor interface {
	AnalyzeReceipt(ctx context.Context, fileURL string) (json.RawMessage, error)
}

// FileURLSigner hands the stored object to the extractor by URL.
type FileURLSigner interface {
	PresignDownload(ctx context.Context, filePath string) (string, error)
}

// ReceiptProcessor is the handler behind the process-receipt queue. Every
// status write is keyed by job id with transition guards in SQL, so
// redelivery of the same job is safe.
type ReceiptProcessor struct {
	statusStore       StatusStore
	extractor         Extractor
	files             FileURLSigner
	extractionTimeout time.Duration
}

func NewReceiptProcessor(statusStore StatusStore, extractor Extractor, files FileURLSigner, extractionTimeout time.Duration) *ReceiptProcessor {
	if extractionTimeout <= 0 {
		extractionTimeout = 2 * time.Minute
	}
	return &ReceiptProcessor{
		statusStore:       statusStore,
		extractor:         extractor,
		files:             files,
		extractionTimeout: extractionTimeout,
	}
}

// Process runs one receipt job to a terminal status. On extraction failure
// the error status is recorded first and the original error is returned so
// the queue can apply its retry policy; the submitting client only ever
// learns of the failure by polling.
func (p *ReceiptProcessor) Process(ctx context.Context, job models.QueueJob) error {
	payload, err := models.DecodeReceiptPayload(job.Payload)
	if err != nil {
		// A payload that cannot be decoded will not get better on retry,
		// but the record still needs a terminal status for pollers.
		p.recordError(ctx, job.ID, "The submitted job payload was invalid.")
		return err
	}

	log.Printf("Processing receipt job %s (file: %s, user: %s)", job.ID, payload.FilePath, payload.UserID)

	if err := p.statusStore.MarkProcessing(ctx, job.ID); err != nil {
		// Infra failure before any work happened; let the queue redeliver.
		return fmt.Errorf("failed to mark job %s processing: %w", job.ID, err)
	}

	extracted, err := p.extract(ctx, payload.FilePath)
	if err != nil {
		p.recordError(ctx, job.ID, clientMessage(err))
		metrics.ReceiptJobsProcessedTotal.WithLabelValues(models.ReceiptStatusError).Inc()
		return err
	}

	if err := p.statusStore.MarkComplete(ctx, job.ID, extracted); err != nil {
		// Extraction succeeded but the result is not visible yet; retrying
		// re-runs the extraction and repeats the same keyed write.
		return fmt.Errorf("failed to record result for job %s: %w", job.ID, err)
	}

	metrics.ReceiptJobsProcessedTotal.WithLabelValues(models.ReceiptStatusComplete).Inc()
	log.Printf("Receipt job %s completed", job.ID)
	return nil
}

// extract presigns the stored file and runs the external analysis under an
// explicit timeout so a stuck call never occupies the worker indefinitely.
func (p *ReceiptProcessor) extract(ctx context.Context, filePath string) (json.RawMessage, error) {
	fileURL, err := p.files.PresignDownload(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("stored receipt file is not accessible: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.extractionTimeout)
	defer cancel()

	start := time.Now()
	extracted, err := p.extractor.AnalyzeReceipt(callCtx, fileURL)
	metrics.ExtractionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return extracted, nil
}

// recordError writes the error status without letting a store failure mask
// the original extraction error.
func (p *ReceiptProcessor) recordError(ctx context.Context, jobID, message string) {
	if err := p.statusStore.MarkError(ctx, jobID, message); err != nil {
		log.Printf("Warning: failed to record error status for job %s: %v", jobID, err)
	}
}

// clientMessage turns an internal error into something safe to show a
// polling client.
func clientMessage(err error) string {
	msg := err.Error()
	const max = 300
	if len(msg) > max {
		msg = msg[:max] + "..."
	}
	return msg
}
