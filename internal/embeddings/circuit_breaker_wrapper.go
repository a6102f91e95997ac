package embeddings

import (
	"context"
	"fmt"
	"time"

	"ltmc-engine/internal/circuitbreaker"
	"ltmc-engine/internal/logging"
)

// CircuitBreakerService wraps a Service with circuit breaker protection
// so a failing embedding provider doesn't stall callers indefinitely.
type CircuitBreakerService struct {
	service Service
	cb      *circuitbreaker.CircuitBreaker
}

// NewCircuitBreakerService wraps service with circuit breaker protection.
func NewCircuitBreakerService(service Service, cfg *circuitbreaker.Config) *CircuitBreakerService {
	if cfg == nil {
		cfg = &circuitbreaker.Config{
			FailureThreshold:      3,
			SuccessThreshold:      2,
			Timeout:               20 * time.Second,
			MaxConcurrentRequests: 5,
			OnStateChange: func(from, to circuitbreaker.State) {
				logging.AdapterLogger.Warn("embedding circuit breaker state change", "from", from, "to", to)
			},
		}
	}

	return &CircuitBreakerService{
		service: service,
		cb:      circuitbreaker.New(cfg),
	}
}

func (s *CircuitBreakerService) Embed(ctx context.Context, text string) ([]float32, error) {
	var result []float32
	err := s.cb.ExecuteWithFallback(ctx,
		func(ctx context.Context) error {
			var err error
			result, err = s.service.Embed(ctx, text)
			return err
		},
		func(ctx context.Context, cbErr error) error {
			return fmt.Errorf("embedding service unavailable: %w", cbErr)
		},
	)
	return result, err
}

func (s *CircuitBreakerService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var result [][]float32
	err := s.cb.ExecuteWithFallback(ctx,
		func(ctx context.Context) error {
			var err error
			result, err = s.service.EmbedBatch(ctx, texts)
			return err
		},
		func(ctx context.Context, cbErr error) error {
			return fmt.Errorf("embedding service unavailable: %w", cbErr)
		},
	)
	return result, err
}

func (s *CircuitBreakerService) HealthCheck(ctx context.Context) error {
	return s.cb.Execute(ctx, func(ctx context.Context) error {
		return s.service.HealthCheck(ctx)
	})
}

func (s *CircuitBreakerService) Dimension() int {
	return s.service.Dimension()
}

// Stats returns the underlying circuit breaker's statistics.
func (s *CircuitBreakerService) Stats() circuitbreaker.Stats {
	return s.cb.GetStats()
}
