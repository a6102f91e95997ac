package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltmc-engine/internal/coordinator"
	"ltmc-engine/internal/unified"
	"ltmc-engine/pkg/types"
)

type fakeVector struct{ hits []types.SearchResult }

func (f *fakeVector) Upsert(ctx context.Context, vectorID int64, values []float32, payload map[string]string) error {
	return nil
}
func (f *fakeVector) Search(ctx context.Context, query []float32, limit int) ([]types.SearchResult, error) {
	return f.hits, nil
}
func (f *fakeVector) Delete(ctx context.Context, vectorID int64) error { return nil }

type fakeTx struct{}

func (fakeTx) CreateResourceWithChunks(ctx context.Context, resource *types.Resource, texts []string) (*types.Resource, []types.Chunk, error) {
	return resource, nil, nil
}
func (fakeTx) DeleteResourceWithChunks(ctx context.Context, resourceID int64) error { return nil }
func (fakeTx) GetResource(ctx context.Context, id int64) (*types.Resource, error)   { return &types.Resource{}, nil }
func (fakeTx) GetChunksByResource(ctx context.Context, resourceID int64) ([]types.Chunk, error) {
	return nil, nil
}

type fakeGraph struct{}

func (fakeGraph) UpsertDocument(ctx context.Context, docID string) error              { return nil }
func (fakeGraph) StoreRelationship(ctx context.Context, rel *types.Relationship) error { return nil }
func (fakeGraph) DeleteDocument(ctx context.Context, docID string) error              { return nil }

type fakeCache struct{}

func (fakeCache) Set(ctx context.Context, key string, v any) error          { return nil }
func (fakeCache) Get(ctx context.Context, key string, dest any) error       { return assertErr("miss") }
func (fakeCache) Delete(ctx context.Context, key string) error              { return nil }

type assertErr string

func (e assertErr) Error() string { return string(e) }

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) { return []float32{0.1}, nil }

type fakeChunker struct{}

func (fakeChunker) Split(text string) []string { return []string{text} }

type fakeChat struct {
	messages []types.ChatMessage
	links    map[int64][]int64
	nextID   int64
}

func newFakeChat() *fakeChat { return &fakeChat{links: make(map[int64][]int64)} }

func (f *fakeChat) InsertChatMessage(ctx context.Context, m *types.ChatMessage) (int64, error) {
	f.nextID++
	f.messages = append(f.messages, *m)
	return f.nextID, nil
}

func (f *fakeChat) InsertContextLink(ctx context.Context, messageID, chunkID int64) error {
	f.links[messageID] = append(f.links[messageID], chunkID)
	return nil
}

func TestQueryRanksHitsByScoreDescending(t *testing.T) {
	vec := &fakeVector{hits: []types.SearchResult{
		{Chunk: types.Chunk{ID: 1}, Score: 0.4},
		{Chunk: types.Chunk{ID: 2}, Score: 0.9},
		{Chunk: types.Chunk{ID: 3}, Score: 0.6},
	}}
	ops := unified.New(fakeTx{}, vec, fakeGraph{}, fakeCache{}, fakeEmbedder{}, fakeChunker{}, coordinator.New(coordinator.DefaultConfig()))
	chat := newFakeChat()
	p := New(ops, chat)

	result, err := p.Query(context.Background(), "conv-1", "find me things", 3)
	require.NoError(t, err)
	require.Len(t, result.Hits, 3)
	assert.Equal(t, int64(2), result.Hits[0].Chunk.ID)
	assert.Equal(t, int64(3), result.Hits[1].Chunk.ID)
	assert.Equal(t, int64(1), result.Hits[2].Chunk.ID)
}

func TestQueryLogsChatMessageAndLinksChunks(t *testing.T) {
	vec := &fakeVector{hits: []types.SearchResult{{Chunk: types.Chunk{ID: 5}, Score: 0.8}}}
	ops := unified.New(fakeTx{}, vec, fakeGraph{}, fakeCache{}, fakeEmbedder{}, fakeChunker{}, coordinator.New(coordinator.DefaultConfig()))
	chat := newFakeChat()
	p := New(ops, chat)

	result, err := p.Query(context.Background(), "conv-2", "a question", 1)
	require.NoError(t, err)
	require.Len(t, chat.messages, 1)
	assert.Equal(t, "a question", chat.messages[0].Content)
	assert.Contains(t, chat.links[result.MessageID], int64(5))
}

func TestQueryAssemblesContextFromRankedChunkText(t *testing.T) {
	vec := &fakeVector{hits: []types.SearchResult{
		{Chunk: types.Chunk{ID: 1, Text: "second"}, Score: 0.4},
		{Chunk: types.Chunk{ID: 2, Text: "first"}, Score: 0.9},
	}}
	ops := unified.New(fakeTx{}, vec, fakeGraph{}, fakeCache{}, fakeEmbedder{}, fakeChunker{}, coordinator.New(coordinator.DefaultConfig()))
	p := New(ops, newFakeChat())

	result, err := p.Query(context.Background(), "conv-3", "q", 2)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond", result.Context)
}

func TestQueryRespectsTokenBudget(t *testing.T) {
	vec := &fakeVector{hits: []types.SearchResult{
		{Chunk: types.Chunk{ID: 1, Text: "one two three"}, Score: 0.9},
		{Chunk: types.Chunk{ID: 2, Text: "four five"}, Score: 0.8},
	}}
	ops := unified.New(fakeTx{}, vec, fakeGraph{}, fakeCache{}, fakeEmbedder{}, fakeChunker{}, coordinator.New(coordinator.DefaultConfig()))
	p := New(ops, newFakeChat())
	p.SetTokenBudget(3)

	result, err := p.Query(context.Background(), "conv-4", "q", 2)
	require.NoError(t, err)
	assert.Equal(t, "one two three", result.Context)
}

func TestQueryReturnsEmptyContextWhenNoHits(t *testing.T) {
	vec := &fakeVector{}
	ops := unified.New(fakeTx{}, vec, fakeGraph{}, fakeCache{}, fakeEmbedder{}, fakeChunker{}, coordinator.New(coordinator.DefaultConfig()))
	p := New(ops, newFakeChat())

	result, err := p.Query(context.Background(), "conv-5", "q", 2)
	require.NoError(t, err)
	assert.Empty(t, result.Context)
}
