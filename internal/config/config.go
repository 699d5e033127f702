package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	Port        string

	PollInterval      int // seconds
	MaxAttempts       int
	RetryDelay        int // seconds
	JobExpiration     int // minutes
	JobRetention      int // hours
	ShutdownTimeout   int // seconds
	ExtractionTimeout int // seconds

	AzureDocIntelEndpoint string
	AzureDocIntelKey      string

	S3Bucket     string
	AWSRegion    string
	UploadURLTTL int // seconds

	// AuthTokens maps bearer tokens to user ids ("tok1:user1,tok2:user2").
	// Stands in for the real auth layer in dev and tests.
	AuthTokens map[string]string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	azureEndpoint := os.Getenv("AZURE_DOCINTEL_ENDPOINT")
	azureKey := os.Getenv("AZURE_DOCINTEL_KEY")
	if azureEndpoint == "" || azureKey == "" {
		fmt.Println("Warning: AZURE_DOCINTEL_ENDPOINT or AZURE_DOCINTEL_KEY not set, receipt extraction will not work")
	}

	s3Bucket := os.Getenv("AWS_S3_BUCKET")
	if s3Bucket == "" {
		fmt.Println("Warning: AWS_S3_BUCKET not set, upload URLs will not work")
	}

	return &Config{
		DatabaseURL:           dbURL,
		Port:                  getEnv("PORT", "8080"),
		PollInterval:          getEnvInt("POLL_INTERVAL", 2),
		MaxAttempts:           getEnvInt("MAX_ATTEMPTS", 3),
		RetryDelay:            getEnvInt("RETRY_DELAY", 30),
		JobExpiration:         getEnvInt("JOB_EXPIRATION", 15),
		JobRetention:          getEnvInt("JOB_RETENTION", 168),
		ShutdownTimeout:       getEnvInt("SHUTDOWN_TIMEOUT", 30),
		ExtractionTimeout:     getEnvInt("EXTRACTION_TIMEOUT", 120),
		AzureDocIntelEndpoint: azureEndpoint,
		AzureDocIntelKey:      azureKey,
		S3Bucket:              s3Bucket,
		AWSRegion:             getEnv("AWS_REGION", "us-east-1"),
		UploadURLTTL:          getEnvInt("UPLOAD_URL_TTL", 300),
		AuthTokens:            parseAuthTokens(os.Getenv("AUTH_TOKENS")),
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Printf("Warning: %s=%q is not a number, using %d\n", key, v, fallback)
		return fallback
	}
	return n
}

func parseAuthTokens(raw string) map[string]string {
	tokens := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		token, user, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || token == "" || user == "" {
			continue
		}
		tokens[token] = user
	}
	return tokens
}
