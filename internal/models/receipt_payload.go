package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ReceiptPayload is the queue payload for the process-receipt queue.
type ReceiptPayload struct {
	FilePath  string    `json:"filePath"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// DecodeReceiptPayload parses a queue job payload and validates the fields
// the worker cannot proceed without.
func DecodeReceiptPayload(raw json.RawMessage) (*ReceiptPayload, error) {
	var p ReceiptPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode receipt payload: %w", err)
	}
	if p.FilePath == "" {
		return nil, fmt.Errorf("receipt payload missing filePath")
	}
	if p.UserID == "" {
		return nil, fmt.Errorf("receipt payload missing userId")
	}
	return &p, nil
}
