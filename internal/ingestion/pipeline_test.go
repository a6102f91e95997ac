package ingestion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltmc-engine/internal/coordinator"
	"ltmc-engine/internal/unified"
	"ltmc-engine/pkg/types"
)

// Reuse unified's fake backends via a thin local re-declaration, since
// those fakes are unexported test-only helpers in their own package.

type fakeTx struct {
	resources map[int64]*types.Resource
	chunks    map[int64][]types.Chunk
	nextID    int64
}

func newFakeTx() *fakeTx { return &fakeTx{resources: make(map[int64]*types.Resource), chunks: make(map[int64][]types.Chunk)} }

func (f *fakeTx) CreateResourceWithChunks(ctx context.Context, resource *types.Resource, texts []string) (*types.Resource, []types.Chunk, error) {
	f.nextID++
	resource.ID = f.nextID
	f.resources[resource.ID] = resource
	chunks := make([]types.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = types.Chunk{ID: int64(i + 1), ResourceID: resource.ID, Text: text, Index: i, VectorID: int64(i + 1)}
	}
	f.chunks[resource.ID] = chunks
	return resource, chunks, nil
}

func (f *fakeTx) DeleteResourceWithChunks(ctx context.Context, resourceID int64) error {
	delete(f.resources, resourceID)
	delete(f.chunks, resourceID)
	return nil
}

func (f *fakeTx) GetResource(ctx context.Context, id int64) (*types.Resource, error) {
	return f.resources[id], nil
}

func (f *fakeTx) GetChunksByResource(ctx context.Context, resourceID int64) ([]types.Chunk, error) {
	return f.chunks[resourceID], nil
}

type fakeVector struct{ points map[int64][]float32 }

func newFakeVector() *fakeVector { return &fakeVector{points: make(map[int64][]float32)} }
func (f *fakeVector) Upsert(ctx context.Context, vectorID int64, values []float32, payload map[string]string) error {
	f.points[vectorID] = values
	return nil
}
func (f *fakeVector) Search(ctx context.Context, query []float32, limit int) ([]types.SearchResult, error) {
	return nil, nil
}
func (f *fakeVector) Delete(ctx context.Context, vectorID int64) error { delete(f.points, vectorID); return nil }

type fakeGraph struct{ docs map[string]bool }

func newFakeGraph() *fakeGraph { return &fakeGraph{docs: make(map[string]bool)} }
func (f *fakeGraph) UpsertDocument(ctx context.Context, docID string) error { f.docs[docID] = true; return nil }
func (f *fakeGraph) StoreRelationship(ctx context.Context, rel *types.Relationship) error { return nil }
func (f *fakeGraph) DeleteDocument(ctx context.Context, docID string) error { delete(f.docs, docID); return nil }

type fakeCache struct{ data map[string]any }

func newFakeCache() *fakeCache { return &fakeCache{data: make(map[string]any)} }
func (f *fakeCache) Set(ctx context.Context, key string, v any) error { f.data[key] = v; return nil }
func (f *fakeCache) Get(ctx context.Context, key string, dest any) error {
	if _, ok := f.data[key]; ok {
		return nil
	}
	return assertErr("miss")
}
func (f *fakeCache) Delete(ctx context.Context, key string) error { delete(f.data, key); return nil }

type assertErr string

func (e assertErr) Error() string { return string(e) }

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeChunker struct{}

func (fakeChunker) Split(text string) []string { return []string{text} }

func newTestPipeline() *Pipeline {
	ops := unified.New(newFakeTx(), newFakeVector(), newFakeGraph(), newFakeCache(), fakeEmbedder{}, fakeChunker{}, coordinator.New(coordinator.DefaultConfig()))
	return New(ops, nil)
}

func TestIngestStoresDocument(t *testing.T) {
	p := newTestPipeline()
	result := p.Ingest(context.Background(), Document{DocID: "doc-1", Content: "hello world", Level: types.ConsistencyStrong})
	require.NoError(t, result.Err)
	assert.False(t, result.Skipped)
}

func TestIngestDefaultsResourceType(t *testing.T) {
	p := newTestPipeline()
	result := p.Ingest(context.Background(), Document{DocID: "doc-2", Content: "no type given", Level: types.ConsistencyStrong})
	require.NoError(t, result.Err)
}

func TestIngestBatchContinuesPastFailure(t *testing.T) {
	p := newTestPipeline()
	results := p.IngestBatch(context.Background(), []Document{
		{DocID: "doc-3", Content: "first", Level: types.ConsistencyLevel("bogus")},
		{DocID: "doc-4", Content: "second", Level: types.ConsistencyStrong},
	})
	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.NoError(t, results[1].Err)
}
