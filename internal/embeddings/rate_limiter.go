package embeddings

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// tokenBucket is a token-bucket rate limiter protecting the embedding
// provider from bursts larger than its configured requests-per-minute
// budget (cfg.Embedding.RateLimitRPM).
type tokenBucket struct {
	maxTokens  int
	tokens     int
	refillRate time.Duration
	lastRefill time.Time
	mu         sync.Mutex
}

// newTokenBucket builds a bucket holding maxTokens, refilling one token
// every refillRate/maxTokens.
func newTokenBucket(maxTokens int, refillRate time.Duration) *tokenBucket {
	if maxTokens <= 0 {
		maxTokens = 60
	}
	if refillRate == 0 {
		refillRate = time.Minute
	}

	return &tokenBucket{
		maxTokens:  maxTokens,
		tokens:     maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

func (b *tokenBucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

func (b *tokenBucket) wait(ctx context.Context) error {
	for {
		if b.allow() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.refillRate / time.Duration(b.maxTokens)):
		}
	}
}

func (b *tokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill)

	interval := b.refillRate / time.Duration(b.maxTokens)
	tokensToAdd := int(elapsed / interval)
	if tokensToAdd > 0 {
		b.tokens += tokensToAdd
		if b.tokens > b.maxTokens {
			b.tokens = b.maxTokens
		}
		b.lastRefill = now
	}
}

// RateLimitedService wraps a Service so every outbound call blocks for a
// free token before reaching the provider, bounding request rate to
// EmbeddingConfig.RateLimitRPM regardless of how many SemanticSearch /
// StoreDocument calls land concurrently.
type RateLimitedService struct {
	service Service
	bucket  *tokenBucket
}

// NewRateLimitedService wraps service behind a token bucket allowing up
// to requestsPerMinute calls per minute.
func NewRateLimitedService(service Service, requestsPerMinute int) *RateLimitedService {
	return &RateLimitedService{
		service: service,
		bucket:  newTokenBucket(requestsPerMinute, time.Minute),
	}
}

func (s *RateLimitedService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := s.bucket.wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return s.service.Embed(ctx, text)
}

func (s *RateLimitedService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := s.bucket.wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return s.service.EmbedBatch(ctx, texts)
}

func (s *RateLimitedService) HealthCheck(ctx context.Context) error {
	return s.service.HealthCheck(ctx)
}

func (s *RateLimitedService) Dimension() int {
	return s.service.Dimension()
}
