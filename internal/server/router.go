// Package server exposes the receipt pipeline over REST.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ledgerly/ledgerly-api/internal/models"
)

// ReceiptService interface for dependency injection
type ReceiptService interface {
	Submit(ctx context.Context, filePath, userID string) (*models.ReceiptJob, error)
	Status(ctx context.Context, jobID string) (*models.ReceiptJob, error)
}

// UploadSigner issues presigned upload URLs.
type UploadSigner interface {
	PresignUpload(ctx context.Context, fileName, fileType, userID string) (string, string, error)
}

// TokenResolver maps a bearer token to a user id. Real token verification
// lives in the auth layer; the pipeline only needs the resolved identity.
type TokenResolver func(token string) (string, error)

// NewRouter wires the receipt endpoints. All /api routes require a resolved
// user identity.
func NewRouter(receipts ReceiptService, uploads UploadSigner, resolve TokenResolver) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := &receiptHandlers{receipts: receipts, uploads: uploads}

	api := router.Group("/api", authMiddleware(resolve))
	{
		api.POST("/receipts/upload-url", h.createUploadURL)
		api.POST("/receipts/process", h.submitReceipt)
		api.GET("/receipts/status/:jobId", h.receiptStatus)
	}

	return router
}
