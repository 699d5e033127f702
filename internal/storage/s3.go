// Package storage presigns S3 URLs for client-side receipt uploads and for
// handing stored objects to the extraction service.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Presigner defines the interface for presigning S3 requests.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type Storage struct {
	presigner   Presigner
	bucket      string
	uploadTTL   time.Duration
	downloadTTL time.Duration

	now func() time.Time // injectable for tests
}

func New(client *s3.Client, bucket string, uploadTTL time.Duration) *Storage {
	return NewWithPresigner(s3.NewPresignClient(client), bucket, uploadTTL)
}

func NewWithPresigner(presigner Presigner, bucket string, uploadTTL time.Duration) *Storage {
	if uploadTTL <= 0 {
		uploadTTL = 5 * time.Minute
	}
	return &Storage{
		presigner:   presigner,
		bucket:      bucket,
		uploadTTL:   uploadTTL,
		downloadTTL: 5 * time.Minute,
		now:         time.Now,
	}
}

// PresignUpload generates a time-limited PUT URL for a client-side upload.
// The returned filePath is the key the client later submits for processing.
func (s *Storage) PresignUpload(ctx context.Context, fileName, fileType, userID string) (string, string, error) {
	key := ObjectKey(userID, fileName, s.now())

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(fileType),
		Metadata: map[string]string{
			"user_id": userID,
		},
	}

	req, err := s.presigner.PresignPutObject(ctx, input, func(o *s3.PresignOptions) { o.Expires = s.uploadTTL })
	if err != nil {
		return "", "", fmt.Errorf("failed to presign upload: %w", err)
	}

	return req.URL, key, nil
}

// PresignDownload generates a short-lived GET URL so the extraction service
// can pull the stored object directly.
func (s *Storage) PresignDownload(ctx context.Context, filePath string) (string, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(filePath),
	}

	req, err := s.presigner.PresignGetObject(ctx, input, func(o *s3.PresignOptions) { o.Expires = s.downloadTTL })
	if err != nil {
		return "", fmt.Errorf("failed to presign download: %w", err)
	}

	return req.URL, nil
}
