package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type mockPresigner struct {
	putInput *s3.PutObjectInput
	getInput *s3.GetObjectInput
}

func (m *mockPresigner) PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	m.putInput = params
	return &v4.PresignedHTTPRequest{URL: "https://bucket.s3.example/" + *params.Key + "?signed"}, nil
}

func (m *mockPresigner) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	m.getInput = params
	return &v4.PresignedHTTPRequest{URL: "https://bucket.s3.example/" + *params.Key + "?signed-get"}, nil
}

func TestPresignUpload(t *testing.T) {
	presigner := &mockPresigner{}
	store := NewWithPresigner(presigner, "receipts-bucket", 5*time.Minute)
	store.now = func() time.Time { return time.Unix(1700000000, 0) }

	url, filePath, err := store.PresignUpload(context.Background(), "test.png", "image/png", "U1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if filePath != "receipts/U1/test.png-1700000000" {
		t.Errorf("expected per-user key with timestamp suffix, got %s", filePath)
	}
	if !strings.Contains(url, filePath) {
		t.Errorf("expected signed URL for %s, got %s", filePath, url)
	}
	if *presigner.putInput.Bucket != "receipts-bucket" {
		t.Errorf("expected bucket receipts-bucket, got %s", *presigner.putInput.Bucket)
	}
	if *presigner.putInput.ContentType != "image/png" {
		t.Errorf("expected content type set, got %s", *presigner.putInput.ContentType)
	}
	if presigner.putInput.Metadata["user_id"] != "U1" {
		t.Errorf("expected user metadata, got %v", presigner.putInput.Metadata)
	}
}

func TestPresignDownload(t *testing.T) {
	presigner := &mockPresigner{}
	store := NewWithPresigner(presigner, "receipts-bucket", 5*time.Minute)

	url, err := store.PresignDownload(context.Background(), "receipts/U1/test.png-1700000000")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if *presigner.getInput.Key != "receipts/U1/test.png-1700000000" {
		t.Errorf("expected key passed through, got %s", *presigner.getInput.Key)
	}
	if url == "" {
		t.Error("expected a signed URL")
	}
}
