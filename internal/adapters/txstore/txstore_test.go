package txstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltmc-engine/internal/config"
	"ltmc-engine/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.TransactionalConfig{
		Path:         filepath.Join(dir, "ltmc.db"),
		MaxOpenConns: 1,
		BusyTimeout:  5 * time.Second,
	}
	s, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndGetResource(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tx, err := s.DB().BeginTx(ctx, nil)
	require.NoError(t, err)

	id, err := s.InsertResource(ctx, tx, &types.Resource{FileName: "notes.md", Type: "document"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	r, err := s.GetResource(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "notes.md", r.FileName)
	assert.Equal(t, "document", r.Type)
	assert.False(t, r.CreatedAt.IsZero())
}

func TestGetResourceNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetResource(context.Background(), 9999)
	require.Error(t, err)
}

func TestNextVectorIDIsSequentialAndAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 5; i++ {
		tx, err := s.DB().BeginTx(ctx, nil)
		require.NoError(t, err)
		id, err := s.NextVectorID(ctx, tx)
		require.NoError(t, err)
		require.NoError(t, tx.Commit())
		ids = append(ids, id)
	}

	for i, id := range ids {
		assert.EqualValues(t, i+1, id)
	}
}

func TestInsertChunkAndRetrieveByResource(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tx, err := s.DB().BeginTx(ctx, nil)
	require.NoError(t, err)
	resourceID, err := s.InsertResource(ctx, tx, &types.Resource{FileName: "doc.md", Type: "document"})
	require.NoError(t, err)

	vecID, err := s.NextVectorID(ctx, tx)
	require.NoError(t, err)

	_, err = s.InsertChunk(ctx, tx, &types.Chunk{ResourceID: resourceID, Text: "hello", Index: 0, VectorID: vecID})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	chunks, err := s.GetChunksByResource(ctx, resourceID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello", chunks[0].Text)
	assert.Equal(t, vecID, chunks[0].VectorID)
}

func TestDeleteChunksByResourceRemovesAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tx, err := s.DB().BeginTx(ctx, nil)
	require.NoError(t, err)
	resourceID, err := s.InsertResource(ctx, tx, &types.Resource{FileName: "doc.md", Type: "document"})
	require.NoError(t, err)
	_, err = s.InsertChunk(ctx, tx, &types.Chunk{ResourceID: resourceID, Text: "a", Index: 0})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx2, err := s.DB().BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, s.DeleteChunksByResource(ctx, tx2, resourceID))
	require.NoError(t, tx2.Commit())

	chunks, err := s.GetChunksByResource(ctx, resourceID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestInsertChatMessageAssignsID(t *testing.T) {
	s := newTestStore(t)
	id, err := s.InsertChatMessage(context.Background(), &types.ChatMessage{
		ConversationID: "conv-1", Role: "user", Content: "hi",
	})
	require.NoError(t, err)
	assert.Positive(t, id)
}

func TestHealthCheck(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.HealthCheck(context.Background()))
}

func TestCreateResourceWithChunksAllocatesSequentialVectorIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	resource, chunks, err := s.CreateResourceWithChunks(ctx, &types.Resource{FileName: "multi.md", Type: "document"},
		[]string{"first chunk", "second chunk", "third chunk"})
	require.NoError(t, err)
	require.Positive(t, resource.ID)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.EqualValues(t, i+1, c.VectorID)
	}
}

func TestDeleteResourceWithChunksRemovesBoth(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	resource, _, err := s.CreateResourceWithChunks(ctx, &types.Resource{FileName: "gone.md", Type: "document"}, []string{"text"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteResourceWithChunks(ctx, resource.ID))

	_, err = s.GetResource(ctx, resource.ID)
	require.Error(t, err)
	chunks, err := s.GetChunksByResource(ctx, resource.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestInsertAndGetThought(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	thought := &types.Thought{
		ThoughtID: "01ARZ3NDEKTSV4RRFFQ69G5FAV", SessionID: "sess-1", ChainID: "chain-1",
		Content: "hello", ContentHash: "abc123", Depth: 0,
	}
	require.NoError(t, s.InsertThought(ctx, thought))

	got, err := s.GetThought(ctx, thought.ThoughtID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, "sess-1", got.SessionID)
}

func TestGetThoughtNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetThought(context.Background(), "missing")
	require.Error(t, err)
}

func TestThoughtBySessionStepAndLatestForSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertThought(ctx, &types.Thought{
		ThoughtID: "t1", SessionID: "sess-9", ChainID: "chain-9", Content: "one", ContentHash: "h1", StepNumber: 1,
	}))
	require.NoError(t, s.InsertThought(ctx, &types.Thought{
		ThoughtID: "t2", SessionID: "sess-9", ChainID: "chain-9", Content: "two", ContentHash: "h2", StepNumber: 2,
	}))

	byStep, err := s.ThoughtBySessionStep(ctx, "sess-9", 1)
	require.NoError(t, err)
	assert.Equal(t, "t1", byStep.ThoughtID)

	latest, err := s.LatestThoughtForSession(ctx, "sess-9")
	require.NoError(t, err)
	assert.Equal(t, "t2", latest.ThoughtID)

	require.NoError(t, s.DeleteThought(ctx, "t2"))
	_, err = s.GetThought(ctx, "t2")
	require.Error(t, err)
}

func TestTodoLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.InsertTodo(ctx, &types.Todo{Title: "write tests", Description: "for the review"})
	require.NoError(t, err)

	found, err := s.SearchTodos(ctx, "write")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "open", found[0].Status)

	require.NoError(t, s.CompleteTodo(ctx, id))

	completed, err := s.ListTodos(ctx, "completed")
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.True(t, completed[0].Completed)
	assert.NotNil(t, completed[0].CompletedAt)
}

func TestGetChatsByTool(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.InsertChatMessage(ctx, &types.ChatMessage{ConversationID: "conv-1", Role: "user", Content: "hi", SourceTool: "remember"})
	require.NoError(t, err)
	_, err = s.InsertChatMessage(ctx, &types.ChatMessage{ConversationID: "conv-1", Role: "user", Content: "other", SourceTool: "recall"})
	require.NoError(t, err)

	msgs, err := s.GetChatsByTool(ctx, "remember")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)
}
