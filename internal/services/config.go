package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Lllllllleong/obraflow/internal/gcp"
	"github.com/Lllllllleong/obraflow/internal/inference"
)

var validate = validator.New()

// Config holds what every stage function needs besides its collection.
type Config struct {
	ProjectID       string `validate:"required"`
	Collection      string `validate:"required"`
	StorageBucket   string
	RawOutputBucket string
	BlobMaxBytes    int64         `validate:"gte=0"`
	StageTimeout    time.Duration `validate:"gte=0"`
	Inference       inference.Config
}

// loadConfig reads the environment shared by both functions.
func loadConfig(collectionKey, collectionDefault string) (*Config, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	maxBytes, err := envInt("BLOB_MAX_BYTES", gcp.DefaultBlobMaxBytes)
	if err != nil {
		return nil, err
	}
	timeout, err := envDuration("STAGE_TIMEOUT", 0)
	if err != nil {
		return nil, err
	}
	inf, err := loadInferenceConfig(projectID)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ProjectID:       projectID,
		Collection:      gcp.GetEnv(collectionKey, collectionDefault),
		StorageBucket:   gcp.GetEnv("STORAGE_BUCKET", ""),
		RawOutputBucket: gcp.GetEnv("RAW_OUTPUT_BUCKET", ""),
		BlobMaxBytes:    int64(maxBytes),
		StageTimeout:    timeout,
		Inference:       *inf,
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadInferenceConfig(projectID string) (*inference.Config, error) {
	temperature, err := strconv.ParseFloat(gcp.GetEnv("INFERENCE_TEMPERATURE", "0.1"), 32)
	if err != nil {
		return nil, fmt.Errorf("INFERENCE_TEMPERATURE: %w", err)
	}
	attempts, err := envInt("INFERENCE_MAX_ATTEMPTS", 1)
	if err != nil {
		return nil, err
	}
	backoff, err := envDuration("INFERENCE_BACKOFF", 2*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &inference.Config{
		Backend:     gcp.GetEnv("INFERENCE_BACKEND", inference.BackendREST),
		APIKey:      gcp.GetEnv("GEMINI_API_KEY", ""),
		Endpoint:    gcp.GetEnv("INFERENCE_ENDPOINT", inference.DefaultEndpoint),
		Model:       gcp.GetEnv("INFERENCE_MODEL", inference.DefaultModel),
		Temperature: float32(temperature),
		MaxAttempts: attempts,
		Backoff:     backoff,
		ProjectID:   projectID,
		Region:      gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid inference configuration: %w", err)
	}
	return cfg, nil
}

// NewInferenceClient builds the configured backend wrapped in the retry policy.
func NewInferenceClient(ctx context.Context, cfg inference.Config) (inference.Client, error) {
	var client inference.Client
	switch cfg.Backend {
	case inference.BackendVertex:
		vc, err := gcp.NewVertexClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create vertex client: %w", err)
		}
		client = vc
	default:
		if cfg.APIKey == "" {
			slog.Warn("GEMINI_API_KEY is not set. Every job will fail with a config error.")
		}
		client = inference.NewRESTClient(cfg, nil, slog.Default())
	}
	return inference.WithRetry(client, cfg.MaxAttempts, cfg.Backoff), nil
}

func envInt(key string, fallback int) (int, error) {
	raw := gcp.GetEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := gcp.GetEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
