package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ledgerly/ledgerly-api/internal/metrics"
	"github.com/ledgerly/ledgerly-api/internal/models"
	"github.com/ledgerly/ledgerly-api/internal/queue"
	"github.com/ledgerly/ledgerly-api/internal/repository"
	"github.com/ledgerly/ledgerly-api/internal/service"
	"github.com/ledgerly/ledgerly-api/internal/storage"
)

type receiptHandlers struct {
	receipts ReceiptService
	uploads  UploadSigner
}

type uploadURLRequest struct {
	FileName string `json:"fileName" binding:"required"`
	FileType string `json:"fileType" binding:"required"`
}

type uploadURLResponse struct {
	SignedURL string `json:"signedUrl"`
	FilePath  string `json:"filePath"`
}

type processRequest struct {
	FilePath string `json:"filePath" binding:"required"`
	FileType string `json:"fileType"`
}

type processResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

type statusResponse struct {
	JobID         string          `json:"jobId"`
	Status        string          `json:"status"`
	ExtractedData json.RawMessage `json:"extractedData"`
	Error         *string         `json:"error"`
	CreatedAt     time.Time       `json:"createdAt"`
	CompletedAt   *time.Time      `json:"completedAt"`
}

// createUploadURL issues a presigned PUT URL scoped to the caller's prefix.
func (h *receiptHandlers) createUploadURL(c *gin.Context) {
	var req uploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fileName and fileType are required"})
		return
	}
	if !storage.ValidFileName(req.FileName) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file name"})
		return
	}
	if !storage.AllowedFileType(req.FileType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file type"})
		return
	}

	signedURL, filePath, err := h.uploads.PresignUpload(c.Request.Context(), req.FileName, req.FileType, currentUserID(c))
	if err != nil {
		log.Printf("Failed to presign upload: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create upload URL"})
		return
	}

	metrics.UploadURLsIssuedTotal.Inc()
	c.JSON(http.StatusOK, uploadURLResponse{SignedURL: signedURL, FilePath: filePath})
}

// submitReceipt enqueues processing for an uploaded file and returns the job
// id immediately; the caller polls the status endpoint for the result.
func (h *receiptHandlers) submitReceipt(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "filePath is required"})
		return
	}

	record, err := h.receipts.Submit(c.Request.Context(), req.FilePath, currentUserID(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, queue.ErrQueueUnavailable):
			log.Printf("Queue unavailable on submission: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "processing is temporarily unavailable"})
		default:
			log.Printf("Submission failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start processing"})
		}
		return
	}

	c.JSON(http.StatusAccepted, processResponse{JobID: record.JobID, Status: record.Status})
}

// receiptStatus returns the full status record for a job id.
func (h *receiptHandlers) receiptStatus(c *gin.Context) {
	jobID := c.Param("jobId")

	record, err := h.receipts.Status(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no job found for this id"})
			return
		}
		log.Printf("Status query failed for job %s: %v", jobID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch job status"})
		return
	}

	c.JSON(http.StatusOK, formatStatus(record))
}

func formatStatus(record *models.ReceiptJob) statusResponse {
	return statusResponse{
		JobID:         record.JobID,
		Status:        record.Status,
		ExtractedData: record.ExtractedData,
		Error:         record.ErrorMessage,
		CreatedAt:     record.CreatedAt,
		CompletedAt:   record.CompletedAt,
	}
}
