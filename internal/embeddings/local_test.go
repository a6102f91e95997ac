package embeddings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltmc-engine/internal/config"
)

func newTestLocalService() *LocalModelService {
	cfg := &config.EmbeddingConfig{Model: "all-MiniLM-L6-v2", Dimension: 384}
	return NewLocalModelService(cfg, "")
}

func TestEmbedIsDeterministic(t *testing.T) {
	s := newTestLocalService()
	ctx := context.Background()

	a, err := s.Embed(ctx, "hello world")
	require.NoError(t, err)
	b, err := s.Embed(ctx, "hello world")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 384)
}

func TestEmbedDiffersByContent(t *testing.T) {
	s := newTestLocalService()
	ctx := context.Background()

	a, err := s.Embed(ctx, "alpha")
	require.NoError(t, err)
	b, err := s.Embed(ctx, "beta")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestEmbedProducesUnitVectors(t *testing.T) {
	s := newTestLocalService()
	v, err := s.Embed(context.Background(), "normalize me")
	require.NoError(t, err)

	selfSim := CosineSimilarity(v, v)
	assert.InDelta(t, 1.0, selfSim, 1e-6)
}

func TestCosineSimilarityIdenticalVectorsIsOne(t *testing.T) {
	v := []float32{0.6, 0.8}
	assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-6)
}

func TestCosineSimilarityOrthogonalIsZero(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	assert.InDelta(t, 0.0, CosineSimilarity(a, b), 1e-6)
}

func TestEmbedBatchMatchesIndividualEmbed(t *testing.T) {
	s := newTestLocalService()
	ctx := context.Background()

	batch, err := s.EmbedBatch(ctx, []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, batch, 2)

	one, err := s.Embed(ctx, "one")
	require.NoError(t, err)
	assert.Equal(t, one, batch[0])
}

func TestDimensionReportsConfiguredWidth(t *testing.T) {
	s := newTestLocalService()
	assert.Equal(t, 384, s.Dimension())
}
