package models

import (
	"testing"
	"time"
)

func TestReceiptStatus_Constants(t *testing.T) {
	tests := []struct {
		name     string
		status   string
		expected string
	}{
		{"pending", ReceiptStatusPending, "pending"},
		{"processing", ReceiptStatusProcessing, "processing"},
		{"complete", ReceiptStatusComplete, "complete"},
		{"error", ReceiptStatusError, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.status != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, tt.status)
			}
		})
	}
}

func TestReceiptJob_Terminal(t *testing.T) {
	tests := []struct {
		status   string
		expected bool
	}{
		{ReceiptStatusPending, false},
		{ReceiptStatusProcessing, false},
		{ReceiptStatusComplete, true},
		{ReceiptStatusError, true},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			job := ReceiptJob{Status: tt.status}
			if job.Terminal() != tt.expected {
				t.Errorf("Terminal() for %s: expected %v, got %v", tt.status, tt.expected, job.Terminal())
			}
		})
	}
}

func TestReceiptJob_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name     string
		from     string
		to       string
		expected bool
	}{
		{"pending to processing", ReceiptStatusPending, ReceiptStatusProcessing, true},
		{"processing to complete", ReceiptStatusProcessing, ReceiptStatusComplete, true},
		{"processing to error", ReceiptStatusProcessing, ReceiptStatusError, true},
		{"error to processing (retry)", ReceiptStatusError, ReceiptStatusProcessing, true},
		{"error to complete (retry succeeded)", ReceiptStatusError, ReceiptStatusComplete, true},
		{"complete is final", ReceiptStatusComplete, ReceiptStatusProcessing, false},
		{"complete never errors", ReceiptStatusComplete, ReceiptStatusError, false},
		{"no regression to pending", ReceiptStatusProcessing, ReceiptStatusPending, false},
		{"processing to processing (redelivery)", ReceiptStatusProcessing, ReceiptStatusProcessing, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := ReceiptJob{Status: tt.from}
			if job.CanTransitionTo(tt.to) != tt.expected {
				t.Errorf("CanTransitionTo(%s) from %s: expected %v, got %v", tt.to, tt.from, tt.expected, job.CanTransitionTo(tt.to))
			}
		})
	}
}

func TestReceiptJob_Structure(t *testing.T) {
	now := time.Now()
	job := ReceiptJob{
		JobID:     "job-123",
		FilePath:  "receipts/user-1/test.png-1700000000",
		UserID:    "user-1",
		Status:    ReceiptStatusPending,
		CreatedAt: now,
	}

	if job.JobID != "job-123" {
		t.Errorf("Expected JobID 'job-123', got %s", job.JobID)
	}
	if job.Status != ReceiptStatusPending {
		t.Errorf("Expected status 'pending', got %s", job.Status)
	}
	if job.ExtractedData != nil {
		t.Errorf("Expected no extracted data on a fresh record")
	}
	if job.CompletedAt != nil {
		t.Errorf("Expected nil CompletedAt on a fresh record")
	}
}
