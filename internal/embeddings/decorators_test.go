package embeddings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingService struct {
	calls int
	vec   []float32
	err   error
}

func (c *countingService) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.vec, nil
}

func (c *countingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = c.vec
	}
	return out, nil
}

func (c *countingService) HealthCheck(ctx context.Context) error { return c.err }
func (c *countingService) Dimension() int                        { return len(c.vec) }

func TestCachedServiceSkipsProviderOnRepeatedText(t *testing.T) {
	inner := &countingService{vec: []float32{1, 2, 3}}
	svc := NewCachedService(inner, NewEmbeddingCache(10, time.Hour))

	first, err := svc.Embed(context.Background(), "hello")
	require.NoError(t, err)
	second, err := svc.Embed(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedServiceEmbedBatchOnlyCallsProviderForMisses(t *testing.T) {
	inner := &countingService{vec: []float32{1, 2}}
	cache := NewEmbeddingCache(10, time.Hour)
	svc := NewCachedService(inner, cache)

	_, err := svc.Embed(context.Background(), "cached")
	require.NoError(t, err)
	inner.calls = 0

	out, err := svc.EmbedBatch(context.Background(), []string{"cached", "fresh"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 1, inner.calls)
}

func TestRateLimitedServiceBlocksBeyondBudget(t *testing.T) {
	inner := &countingService{vec: []float32{1}}
	svc := NewRateLimitedService(inner, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := svc.Embed(context.Background(), "first")
	require.NoError(t, err)

	_, err = svc.Embed(ctx, "second")
	require.Error(t, err)
}

func TestRateLimitedServiceAllowsCallsWithinBudget(t *testing.T) {
	inner := &countingService{vec: []float32{1}}
	svc := NewRateLimitedService(inner, 60)

	for i := 0; i < 3; i++ {
		_, err := svc.Embed(context.Background(), "text")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, inner.calls)
}

func TestCachedServicePropagatesProviderError(t *testing.T) {
	inner := &countingService{err: errors.New("provider down")}
	svc := NewCachedService(inner, NewEmbeddingCache(10, time.Hour))

	_, err := svc.Embed(context.Background(), "anything")
	require.Error(t, err)
}
