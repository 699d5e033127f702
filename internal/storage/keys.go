package storage

import (
	"fmt"
	"strings"
	"time"
)

// File types accepted for receipt uploads.
var allowedFileTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// AllowedFileType reports whether the content type is accepted for upload.
func AllowedFileType(fileType string) bool {
	return allowedFileTypes[strings.TrimSpace(strings.ToLower(fileType))]
}

// ValidFileName rejects names that would break out of the per-user prefix.
func ValidFileName(fileName string) bool {
	if fileName == "" || len(fileName) > 255 {
		return false
	}
	return !strings.ContainsAny(fileName, "/\\")
}

// ObjectKey builds the storage key for an uploaded receipt. The key is scoped
// to the user and suffixed with a timestamp so repeated uploads of the same
// filename never collide.
func ObjectKey(userID, fileName string, t time.Time) string {
	return fmt.Sprintf("receipts/%s/%s-%d", userID, fileName, t.Unix())
}
