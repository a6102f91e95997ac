// Package embeddings generates fixed-dimension vector embeddings for
// chunk text, fronted by caching, rate limiting and circuit breaking.
package embeddings

import "context"

// Service is the embed(text) -> vector[D] contract every provider and
// decorator in this package satisfies.
type Service interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one embedding vector per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the fixed vector width this service produces.
	Dimension() int

	// HealthCheck verifies the underlying provider is reachable.
	HealthCheck(ctx context.Context) error
}

// ProviderConfig configures the local embedding model provider.
type ProviderConfig struct {
	Model     string
	Dimension int
	Endpoint  string // HTTP endpoint of the embedding model server
	BatchSize int
}
