package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ltmc-engine/internal/retry"
)

// RetryableService wraps a Service with retry logic for transient
// provider failures (connection resets, timeouts, overload responses).
type RetryableService struct {
	service Service
	retrier *retry.Retrier
}

// NewRetryableService wraps service with retry on transient failures.
func NewRetryableService(service Service, cfg *retry.Config) Service {
	if cfg == nil {
		cfg = defaultEmbeddingRetryConfig()
	}
	return &RetryableService{
		service: service,
		retrier: retry.New(cfg),
	}
}

func defaultEmbeddingRetryConfig() *retry.Config {
	return &retry.Config{
		MaxAttempts:     3,
		InitialDelay:    500 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.2,
		RetryIf:         isRetryableEmbeddingError,
	}
}

func isRetryableEmbeddingError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	nonRetryablePatterns := []string{
		"invalid api key",
		"unauthorized",
		"forbidden",
		"model not found",
		"context length exceeded",
	}
	for _, pattern := range nonRetryablePatterns {
		if strings.Contains(errStr, pattern) {
			return false
		}
	}

	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"i/o timeout",
		"eof",
		"429", "500", "502", "503", "504",
		"rate limit",
		"overloaded",
		"temporarily unavailable",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	type temporary interface {
		Temporary() bool
	}
	if te, ok := err.(temporary); ok {
		return te.Temporary()
	}

	return false
}

func (r *RetryableService) Embed(ctx context.Context, text string) ([]float32, error) {
	var embedding []float32
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		embedding, err = r.service.Embed(ctx, text)
		return err
	})
	if result.Err != nil {
		return nil, fmt.Errorf("embed failed after %d attempts: %w", result.Attempts, result.Err)
	}
	return embedding, nil
}

func (r *RetryableService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		embeddings, err = r.service.EmbedBatch(ctx, texts)
		return err
	})
	if result.Err != nil {
		return nil, fmt.Errorf("embed batch failed after %d attempts: %w", result.Attempts, result.Err)
	}
	return embeddings, nil
}

func (r *RetryableService) HealthCheck(ctx context.Context) error {
	healthConfig := &retry.Config{
		MaxAttempts:     5,
		InitialDelay:    200 * time.Millisecond,
		MaxDelay:        2 * time.Second,
		Multiplier:      1.5,
		RandomizeFactor: 0.1,
		RetryIf:         isRetryableEmbeddingError,
	}
	healthRetrier := retry.New(healthConfig)
	result := healthRetrier.Do(ctx, func(ctx context.Context) error {
		return r.service.HealthCheck(ctx)
	})
	if result.Err != nil {
		return fmt.Errorf("health check failed after %d attempts: %w", result.Attempts, result.Err)
	}
	return nil
}

func (r *RetryableService) Dimension() int {
	return r.service.Dimension()
}
