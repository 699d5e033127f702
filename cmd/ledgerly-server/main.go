package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ledgerly/ledgerly-api/internal/config"
	"github.com/ledgerly/ledgerly-api/internal/database"
	"github.com/ledgerly/ledgerly-api/internal/docintel"
	"github.com/ledgerly/ledgerly-api/internal/metrics"
	"github.com/ledgerly/ledgerly-api/internal/queue"
	"github.com/ledgerly/ledgerly-api/internal/repository"
	"github.com/ledgerly/ledgerly-api/internal/server"
	"github.com/ledgerly/ledgerly-api/internal/service"
	"github.com/ledgerly/ledgerly-api/internal/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	metrics.Register()

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	log.Println("Database connected successfully")

	// Run migrations
	log.Println("Running database migrations...")
	if err := database.RunMigrations(db); err != nil {
		return err
	}
	log.Println("Migrations completed successfully")

	// Initialize repositories
	queueJobRepo := repository.NewQueueJobRepository(db)
	receiptJobRepo := repository.NewReceiptJobRepository(db)

	// Initialize object storage
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	files := storage.New(s3.NewFromConfig(awsCfg), cfg.S3Bucket, time.Duration(cfg.UploadURLTTL)*time.Second)

	// Initialize the extraction client and worker handler
	extractor := docintel.NewClient(cfg.AzureDocIntelEndpoint, cfg.AzureDocIntelKey)
	processor := service.NewReceiptProcessor(receiptJobRepo, extractor, files,
		time.Duration(cfg.ExtractionTimeout)*time.Second)

	// One queue client per process, shared by the API and the worker.
	queueClient := queue.NewClient(queueJobRepo, queue.Options{
		MaxAttempts: cfg.MaxAttempts,
		RetryDelay:  time.Duration(cfg.RetryDelay) * time.Second,
		Expiration:  time.Duration(cfg.JobExpiration) * time.Minute,
		Retention:   time.Duration(cfg.JobRetention) * time.Hour,
	})

	err = queueClient.RegisterWorker(queue.QueueProcessReceipt, queue.WorkerOptions{
		Concurrency:  1,
		BatchSize:    1,
		PollInterval: time.Duration(cfg.PollInterval) * time.Second,
	}, processor.Process)
	if err != nil {
		return err
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := queueClient.Start(ctx); err != nil {
		return err
	}

	go reportQueueDepth(ctx, queueClient)

	// HTTP server
	submissions := service.NewSubmissionService(queueClient, receiptJobRepo)
	router := server.NewRouter(submissions, files, tokenResolver(cfg.AuthTokens))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Printf("Listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
			return
		}
		errChan <- nil
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Println("Shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.ShutdownTimeout)*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP shutdown error: %v", err)
		}

		queueClient.Shutdown(shutdownCtx)
		cancel()

		log.Println("Application stopped")
		return nil

	case err := <-errChan:
		return err
	}
}

// tokenResolver builds the dev/test identity resolver from configuration.
// Production deployments put a real auth layer in front.
func tokenResolver(tokens map[string]string) server.TokenResolver {
	if len(tokens) == 0 {
		log.Println("Warning: AUTH_TOKENS not set, all API requests will be rejected")
	}
	return func(token string) (string, error) {
		userID, ok := tokens[token]
		if !ok {
			return "", fmt.Errorf("unknown token")
		}
		return userID, nil
	}
}

// reportQueueDepth keeps the queue depth gauge fresh for dashboards.
func reportQueueDepth(ctx context.Context, q *queue.Client) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := q.QueueSize(ctx, queue.QueueProcessReceipt)
			if err != nil {
				log.Printf("Error checking queue size: %v", err)
				continue
			}
			metrics.QueueDepth.Set(float64(n))
			if n > 0 {
				log.Printf("Queue depth: %d job(s) waiting", n)
			}
		}
	}
}
