package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryClient wraps a Client with bounded retries and exponential backoff.
// Context cancellation is respected between attempts, so a caller-imposed
// deadline still bounds the total call time.
type RetryClient struct {
	client      Client
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
}

// NewRetryClient wraps client with up to maxAttempts attempts. An attempt
// count below 1 is treated as 1.
func NewRetryClient(client Client, maxAttempts int, baseDelay time.Duration, logger *slog.Logger) *RetryClient {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryClient{
		client:      client,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		logger:      logger,
	}
}

// Generate calls the wrapped client, retrying failures with backoff
func (r *RetryClient) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		result, err := r.client.Generate(ctx, prompt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt < r.maxAttempts {
			delay := r.baseDelay * time.Duration(1<<(attempt-1))
			r.logger.Warn("LLM call failed, retrying",
				"provider", r.client.Provider(),
				"attempt", attempt,
				"max_attempts", r.maxAttempts,
				"backoff", delay,
				"error", err)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", fmt.Errorf("generation aborted: %w", ctx.Err())
			}
		}
	}

	return "", fmt.Errorf("generation failed after %d attempts: %w", r.maxAttempts, lastErr)
}

// Provider returns the wrapped client's provider name
func (r *RetryClient) Provider() string { return r.client.Provider() }
