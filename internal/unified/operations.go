// Package unified implements the high-level store/retrieve/delete/search
// API that fans a single logical document operation out across the
// transactional, vector, graph, and cache backends through the
// coordinator, the way the coordination engine's Python predecessor's
// UnifiedDatabaseOperations did.
package unified

import (
	"context"
	"fmt"
	"time"

	"ltmc-engine/internal/coordinator"
	"ltmc-engine/internal/embeddings"
	"ltmc-engine/internal/errors"
	"ltmc-engine/internal/logging"
	"ltmc-engine/pkg/types"
)

// TransactionalBackend is the subset of the primary store Operations needs.
type TransactionalBackend interface {
	CreateResourceWithChunks(ctx context.Context, resource *types.Resource, chunkTexts []string) (*types.Resource, []types.Chunk, error)
	DeleteResourceWithChunks(ctx context.Context, resourceID int64) error
	GetResource(ctx context.Context, id int64) (*types.Resource, error)
	GetChunksByResource(ctx context.Context, resourceID int64) ([]types.Chunk, error)
}

// VectorBackend is the subset of the vector store Operations needs.
type VectorBackend interface {
	Upsert(ctx context.Context, vectorID int64, values []float32, payload map[string]string) error
	Search(ctx context.Context, query []float32, limit int) ([]types.SearchResult, error)
	Delete(ctx context.Context, vectorID int64) error
}

// GraphBackend is the subset of the graph store Operations needs.
type GraphBackend interface {
	UpsertDocument(ctx context.Context, docID string) error
	StoreRelationship(ctx context.Context, rel *types.Relationship) error
	DeleteDocument(ctx context.Context, docID string) error
}

// CacheBackend is the subset of the cache store Operations needs.
type CacheBackend interface {
	Set(ctx context.Context, key string, v any) error
	Get(ctx context.Context, key string, dest any) error
	Delete(ctx context.Context, key string) error
}

// Chunker splits document content into embeddable units.
type Chunker interface {
	Split(text string) []string
}

// StoredDocument is the cache/retrieval payload for one logical document.
type StoredDocument struct {
	DocID        string            `json:"doc_id"`
	ResourceID   int64             `json:"resource_id"`
	Content      string            `json:"content"`
	Tags         []string          `json:"tags,omitempty"`
	ResourceType string            `json:"resource_type"`
	CachedAt     time.Time         `json:"cached_at"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Operations is the unified store/retrieve/delete/search API.
type Operations struct {
	tx       TransactionalBackend
	vector   VectorBackend
	graph    GraphBackend
	cache    CacheBackend
	embedder embeddings.Service
	chunker  Chunker
	coord    *coordinator.Coordinator
	cacheTTL time.Duration
}

// New assembles the unified operations layer from its backend dependencies.
func New(tx TransactionalBackend, vector VectorBackend, graph GraphBackend, cache CacheBackend, embedder embeddings.Service, chunker Chunker, coord *coordinator.Coordinator) *Operations {
	return &Operations{tx: tx, vector: vector, graph: graph, cache: cache, embedder: embedder, chunker: chunker, coord: coord, cacheTTL: time.Hour}
}

// StoreResult reports which backends accepted a StoreDocument call.
type StoreResult struct {
	DocID      string
	ResourceID int64
	ChunkCount int
}

// StoreDocument persists content atomically across all four backends.
// The primary transactional write (resource + chunks + vector-ID
// allocation) runs first since every other backend's write depends on
// the vector IDs it allocates; secondary backends then run through the
// coordinator under the requested consistency level, with the primary
// write itself compensated (deleted) if they don't meet the level's bar.
func (o *Operations) StoreDocument(ctx context.Context, docID string, resourceType string, content string, tags []string, relationships []types.Relationship, level types.ConsistencyLevel) (*StoreResult, error) {
	chunkTexts := o.chunker.Split(content)
	if len(chunkTexts) == 0 {
		chunkTexts = []string{content}
	}

	vectors := make([][]float32, len(chunkTexts))
	for i, text := range chunkTexts {
		v, err := o.embedder.Embed(ctx, text)
		if err != nil {
			return nil, errors.New(errors.KindUnavailable, "unified", "StoreDocument", fmt.Errorf("embed chunk %d: %w", i, err))
		}
		vectors[i] = v
	}

	resource, chunks, err := o.tx.CreateResourceWithChunks(ctx, &types.Resource{FileName: docID, Type: resourceType, Tags: tags}, chunkTexts)
	if err != nil {
		return nil, errors.New(errors.KindInternal, "unified", "StoreDocument", err)
	}

	participants := []coordinator.Participant{
		{
			Role:     types.RoleVectorSearch,
			Required: true,
			Do: func(ctx context.Context) error {
				for i, c := range chunks {
					payload := map[string]string{
							"text":        c.Text,
							"doc_id":      docID,
							"chunk_id":    fmt.Sprintf("%d", c.ID),
							"resource_id": fmt.Sprintf("%d", c.ResourceID),
						}
					if err := o.vector.Upsert(ctx, c.VectorID, vectors[i], payload); err != nil {
						return err
					}
				}
				return nil
			},
			Compensate: func(ctx context.Context) error {
				for _, c := range chunks {
					_ = o.vector.Delete(ctx, c.VectorID)
				}
				return nil
			},
		},
		{
			Role:     types.RoleGraphRelations,
			Required: true,
			Do: func(ctx context.Context) error {
				if err := o.graph.UpsertDocument(ctx, docID); err != nil {
					return err
				}
				for i := range relationships {
					relationships[i].FromID = docID
					if err := o.graph.StoreRelationship(ctx, &relationships[i]); err != nil {
						return err
					}
				}
				return nil
			},
			Compensate: func(ctx context.Context) error {
				return o.graph.DeleteDocument(ctx, docID)
			},
		},
		{
			Role:     types.RoleCacheRealtime,
			Required: false,
			Do: func(ctx context.Context) error {
				return o.cache.Set(ctx, cacheKey(docID), StoredDocument{
					DocID: docID, ResourceID: resource.ID, Content: content,
					Tags: tags, ResourceType: resourceType, CachedAt: time.Now(),
				})
			},
			Compensate: func(ctx context.Context) error {
				return o.cache.Delete(ctx, cacheKey(docID))
			},
		},
	}

	if err := o.coord.Execute(ctx, docID, level, participants); err != nil {
		if cerr := o.tx.DeleteResourceWithChunks(ctx, resource.ID); cerr != nil {
			logging.Error("failed to compensate primary store after secondary failure", "doc_id", docID, "error", cerr)
		}
		return nil, err
	}

	return &StoreResult{DocID: docID, ResourceID: resource.ID, ChunkCount: len(chunks)}, nil
}

// RetrieveDocument fetches a document, preferring the cache and falling
// back to (and re-populating from) the primary transactional store.
func (o *Operations) RetrieveDocument(ctx context.Context, docID string, resourceID int64, useCache bool) (*StoredDocument, error) {
	if useCache {
		var cached StoredDocument
		if err := o.cache.Get(ctx, cacheKey(docID), &cached); err == nil {
			return &cached, nil
		} else if errors.KindOf(err) != errors.KindNotFound {
			logging.Warn("cache read failed, falling back to primary store", "doc_id", docID, "error", err)
		}
	}

	resource, err := o.tx.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	chunks, err := o.tx.GetChunksByResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	content := ""
	for i, c := range chunks {
		if i > 0 {
			content += " "
		}
		content += c.Text
	}

	doc := &StoredDocument{DocID: docID, ResourceID: resource.ID, Content: content, ResourceType: resource.Type, CachedAt: time.Now()}

	if useCache {
		if err := o.cache.Set(ctx, cacheKey(docID), doc); err != nil {
			logging.Warn("failed to re-populate cache", "doc_id", docID, "error", err)
		}
	}
	return doc, nil
}

// DeleteDocument removes a document from every backend, clearing the
// cache and graph before the vector store and finally the primary store,
// mirroring the original's reverse-importance deletion order.
func (o *Operations) DeleteDocument(ctx context.Context, docID string, resourceID int64) error {
	_ = o.cache.Delete(ctx, cacheKey(docID))
	_ = o.graph.DeleteDocument(ctx, docID)

	chunks, err := o.tx.GetChunksByResource(ctx, resourceID)
	if err != nil {
		return err
	}
	for _, c := range chunks {
		if err := o.vector.Delete(ctx, c.VectorID); err != nil {
			logging.Warn("failed to delete vector point during document delete", "vector_id", c.VectorID, "error", err)
		}
	}

	return o.tx.DeleteResourceWithChunks(ctx, resourceID)
}

// SemanticSearch embeds query and performs a cosine-similarity search
// against the vector store. Unlike the Python predecessor (which used
// `1.0 - distance` on an L2 index), scores here are true cosine
// similarities in [-1, 1] because embeddings are L2-normalized and the
// collection is configured with cosine distance end to end.
//
// Candidates are pulled at 2*k so that tag filtering (when filterTags is
// non-empty) still has enough hits left to trim back down to k after
// hydrating each candidate's resource from the primary store.
func (o *Operations) SemanticSearch(ctx context.Context, query string, k int, filterTags ...string) ([]types.SearchResult, error) {
	vector, err := o.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.New(errors.KindUnavailable, "unified", "SemanticSearch", err)
	}

	widened := k * 2
	if widened <= 0 {
		widened = k
	}
	candidates, err := o.vector.Search(ctx, vector, widened)
	if err != nil {
		return nil, errors.New(errors.KindUnavailable, "unified", "SemanticSearch", err)
	}

	results := make([]types.SearchResult, 0, k)
	for _, c := range candidates {
		if c.Chunk.ResourceID != 0 {
			if resource, err := o.tx.GetResource(ctx, c.Chunk.ResourceID); err == nil {
				c.Resource = *resource
			}
		}
		if len(filterTags) > 0 && !hasAnyTag(c.Resource.Tags, filterTags) {
			continue
		}
		results = append(results, c)
		if len(results) >= k {
			break
		}
	}
	return results, nil
}

func hasAnyTag(tags, wanted []string) bool {
	for _, t := range tags {
		for _, w := range wanted {
			if t == w {
				return true
			}
		}
	}
	return false
}

// BatchOperation describes one store or delete call in a batch.
type BatchOperation struct {
	Type          string // "store" | "delete"
	DocID         string
	ResourceType  string
	Content       string
	Tags          []string
	Relationships []types.Relationship
	ResourceID    int64
	Level         types.ConsistencyLevel
}

// BatchResult reports the outcome of one BatchOperation.
type BatchResult struct {
	DocID string
	Type  string
	Err   error
}

// BatchExecute runs each operation in sequence, collecting a result per
// operation rather than aborting the whole batch on the first failure.
func (o *Operations) BatchExecute(ctx context.Context, ops []BatchOperation) []BatchResult {
	results := make([]BatchResult, len(ops))
	for i, op := range ops {
		results[i] = BatchResult{DocID: op.DocID, Type: op.Type}
		switch op.Type {
		case "store":
			_, err := o.StoreDocument(ctx, op.DocID, op.ResourceType, op.Content, op.Tags, op.Relationships, op.Level)
			results[i].Err = err
		case "delete":
			results[i].Err = o.DeleteDocument(ctx, op.DocID, op.ResourceID)
		default:
			results[i].Err = errors.New(errors.KindValidation, "unified", "BatchExecute", fmt.Errorf("unknown operation type %q", op.Type))
		}
	}
	return results
}

func cacheKey(docID string) string {
	return "doc:" + docID
}
