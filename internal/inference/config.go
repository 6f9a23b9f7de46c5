package inference

import (
	"time"
)

// Backends selectable through INFERENCE_BACKEND.
const (
	BackendREST   = "rest"
	BackendVertex = "vertex"
)

const (
	DefaultEndpoint    = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel       = "gemini-2.5-flash"
	DefaultTemperature = 0.1
	DefaultTimeout     = 120 * time.Second
)

// Config selects and tunes the inference backend.
type Config struct {
	Backend     string `validate:"oneof=rest vertex"`
	APIKey      string
	Endpoint    string  `validate:"omitempty,url"`
	Model       string  `validate:"required"`
	Temperature float32 `validate:"gte=0,lte=2"`
	// MaxAttempts of 1 disables retries.
	MaxAttempts int           `validate:"gte=1,lte=10"`
	Backoff     time.Duration `validate:"gte=0"`
	Timeout     time.Duration
	ProjectID   string `validate:"required_if=Backend vertex"`
	Region      string `validate:"required_if=Backend vertex"`
}
