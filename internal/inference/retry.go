package inference

import (
	"context"
	"log/slog"
	"time"

	"github.com/Lllllllleong/obraflow/internal/joberr"
)

type retryClient struct {
	next     Client
	attempts int
	backoff  time.Duration
}

// WithRetry retries retryable transport failures up to attempts calls in
// total, doubling backoff between calls. Other failures return immediately.
func WithRetry(next Client, attempts int, backoff time.Duration) Client {
	if attempts <= 1 {
		return next
	}
	return &retryClient{next: next, attempts: attempts, backoff: backoff}
}

func (r *retryClient) Infer(ctx context.Context, parts ...Part) (string, error) {
	wait := r.backoff
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		text, err := r.next.Infer(ctx, parts...)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !joberr.IsRetryable(err) || attempt == r.attempts {
			break
		}
		slog.Warn("Retrying inference call.", "attempt", attempt, "wait", wait, "error", err)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return "", joberr.From(opInfer, ctx.Err())
		}
		wait *= 2
	}
	return "", lastErr
}
