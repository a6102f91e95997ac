// Command server wires together the coordination engine's backend
// adapters and coordination layers and blocks until it receives a
// shutdown signal. It carries no transport or request-handling logic of
// its own; that belongs to whatever process embeds this engine.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"ltmc-engine/internal/adapters/cache"
	"ltmc-engine/internal/adapters/graphstore"
	"ltmc-engine/internal/adapters/txstore"
	"ltmc-engine/internal/adapters/vectorstore"
	"ltmc-engine/internal/autocontext"
	"ltmc-engine/internal/chunking"
	"ltmc-engine/internal/config"
	"ltmc-engine/internal/coordinator"
	"ltmc-engine/internal/embeddings"
	"ltmc-engine/internal/guard"
	"ltmc-engine/internal/ingestion"
	"ltmc-engine/internal/logging"
	"ltmc-engine/internal/retrieval"
	"ltmc-engine/internal/thoughts"
	"ltmc-engine/internal/unified"
	"ltmc-engine/pkg/types"
)

// Engine bundles every wired subsystem the embedding process needs.
type Engine struct {
	Config      *config.Config
	Tx          *txstore.Store
	Vector      *vectorstore.Store
	Graph       *graphstore.Store
	Cache       *cache.Store
	Unified     *unified.Operations
	Ingestion   *ingestion.Pipeline
	Retrieval   *retrieval.Pipeline
	Thoughts    *thoughts.Engine
	Guard       *guard.Guard
	AutoContext *autocontext.Extractor
}

// StoreMemory writes content as a composite document across every
// backend under level, returning the store result (store_memory).
func (e *Engine) StoreMemory(ctx context.Context, docID, resourceType, content string, tags []string, relationships []types.Relationship, level types.ConsistencyLevel) (*unified.StoreResult, error) {
	return e.Unified.StoreDocument(ctx, docID, resourceType, content, tags, relationships, level)
}

// RetrieveMemory runs a semantic search for query, logs it against
// conversationID, and returns the ranked hits plus their assembled
// context string (retrieve_memory).
func (e *Engine) RetrieveMemory(ctx context.Context, conversationID, query string, k int, filterTags ...string) (*retrieval.QueryResult, error) {
	return e.Retrieval.Query(ctx, conversationID, query, k, filterTags...)
}

// LogChat records one conversation turn (log_chat).
func (e *Engine) LogChat(ctx context.Context, conversationID, role, content, agentName, sourceTool string) (int64, error) {
	return e.Tx.InsertChatMessage(ctx, &types.ChatMessage{
		ConversationID: conversationID, Role: role, Content: content,
		AgentName: agentName, SourceTool: sourceTool,
	})
}

// GetChatsByTool returns every chat turn logged under sourceTool
// (get_chats_by_tool).
func (e *Engine) GetChatsByTool(ctx context.Context, sourceTool string) ([]types.ChatMessage, error) {
	return e.Tx.GetChatsByTool(ctx, sourceTool)
}

// AddTodo records a new todo item (add_todo).
func (e *Engine) AddTodo(ctx context.Context, title, description string) (int64, error) {
	return e.Tx.InsertTodo(ctx, &types.Todo{Title: title, Description: description})
}

// ListTodo lists todos, optionally filtered to status (list_todo).
func (e *Engine) ListTodo(ctx context.Context, status string) ([]types.Todo, error) {
	return e.Tx.ListTodos(ctx, status)
}

// CompleteTodo marks a todo completed (complete_todo).
func (e *Engine) CompleteTodo(ctx context.Context, id int64) error {
	return e.Tx.CompleteTodo(ctx, id)
}

// SearchTodo finds todos whose title or description matches query
// (search_todo).
func (e *Engine) SearchTodo(ctx context.Context, query string) ([]types.Todo, error) {
	return e.Tx.SearchTodos(ctx, query)
}

// StoreContextLinks records provenance between a chat message and a
// retrieved chunk (store_context_links).
func (e *Engine) StoreContextLinks(ctx context.Context, messageID, chunkID int64) error {
	return e.Tx.InsertContextLink(ctx, messageID, chunkID)
}

// LinkResources stores a directed relationship edge between two document
// IDs in the graph backend (link_resources).
func (e *Engine) LinkResources(ctx context.Context, fromDocID, toDocID string, relType types.RelationshipType) error {
	return e.Graph.StoreRelationship(ctx, &types.Relationship{
		FromID: fromDocID, ToID: toDocID, Type: relType, CreatedAt: time.Now().UTC(),
	})
}

// QueryGraph returns the IDs of documents related to docID via relType
// (query_graph).
func (e *Engine) QueryGraph(ctx context.Context, docID string, relType types.RelationshipType) ([]string, error) {
	return e.Graph.Related(ctx, docID, relType)
}

// ThoughtCreate appends a new reasoning step to a thought chain
// (thought_create).
func (e *Engine) ThoughtCreate(ctx context.Context, sessionID, chainID, parentID, content string, stepNumber int) (*types.Thought, types.ThoughtState, error) {
	return e.Thoughts.AddThought(ctx, sessionID, chainID, parentID, content, stepNumber)
}

// ThoughtAnalyzeChain returns every thought recorded for sessionID, in
// chronological order (thought_analyze_chain).
func (e *Engine) ThoughtAnalyzeChain(ctx context.Context, sessionID string) ([]types.Thought, error) {
	return e.Thoughts.Chain(ctx, sessionID)
}

// ThoughtFindSimilar runs a semantic search scoped to thought-tagged
// documents (thought_find_similar).
func (e *Engine) ThoughtFindSimilar(ctx context.Context, content string, k int) ([]types.SearchResult, error) {
	return e.Unified.SemanticSearch(ctx, content, k, "thought")
}

// Close releases every backend connection the Engine opened.
func (e *Engine) Close(ctx context.Context) {
	if e.Tx != nil {
		if err := e.Tx.Close(); err != nil {
			logging.Error("failed to close transactional store", "error", err)
		}
	}
	if e.Graph != nil {
		if err := e.Graph.Close(ctx); err != nil {
			logging.Error("failed to close graph store", "error", err)
		}
	}
	if e.Cache != nil {
		if err := e.Cache.Close(); err != nil {
			logging.Error("failed to close cache store", "error", err)
		}
	}
}

// buildEmbedder layers the embedding provider's reliability stack in the
// order a call actually traverses it: a cache check first (so a repeat
// query never touches the network), then a rate limiter, a circuit
// breaker, and finally retry around the raw provider call itself.
func buildEmbedder(cfg *config.Config) embeddings.Service {
	raw := embeddings.NewLocalModelService(&cfg.Embedding, "")
	retried := embeddings.NewRetryableService(raw, nil)
	breakered := embeddings.NewCircuitBreakerService(retried, nil)
	limited := embeddings.NewRateLimitedService(breakered, cfg.Embedding.RateLimitRPM)
	cached := embeddings.NewCachedService(limited, embeddings.NewEmbeddingCache(cfg.Embedding.CacheSize, 24*time.Hour))
	return cached
}

// Build opens every backend adapter and assembles the coordination
// layers on top of them.
func Build(ctx context.Context, cfg *config.Config) (*Engine, error) {
	tx, err := txstore.Open(&cfg.Transactional)
	if err != nil {
		return nil, err
	}

	vector, err := vectorstore.Open(ctx, &cfg.Vector)
	if err != nil {
		tx.Close()
		return nil, err
	}

	graph, err := graphstore.Open(ctx, &cfg.Graph)
	if err != nil {
		tx.Close()
		return nil, err
	}

	cacheStore, err := cache.Open(ctx, &cfg.Cache)
	if err != nil {
		tx.Close()
		_ = graph.Close(ctx)
		return nil, err
	}

	embedder := buildEmbedder(cfg)
	chunker := chunking.NewService(&cfg.Chunking)
	coord := coordinator.New(&coordinator.Config{
		OperationTimeout: coordinator.DefaultConfig().OperationTimeout,
		DefaultLevel:     types.ConsistencyLevel(cfg.Consistency.DefaultLevel),
	})

	ops := unified.New(tx, vector, graph, cacheStore, embedder, chunker, coord)

	g := guard.New(&guard.Config{
		MaxDepth:            cfg.Guard.MaxDepth,
		WarningThreshold:    cfg.Guard.WarningThreshold,
		LoopDetectionWindow: cfg.Guard.LoopDetectionWindow,
		RecoveryTimeout:     cfg.Guard.RecoveryTimeout,
		MaxOverheadMs:       cfg.Guard.MaxOverheadMs,
		CircuitTripWindow:   cfg.Guard.CircuitTripWindow,
		MaxOpsPerSession:    cfg.Guard.MaxOpsPerSession,
	})

	autoCtx := autocontext.NewExtractor()
	autoCtx.SetThoughtLookup(tx)

	return &Engine{
		Config:      cfg,
		Tx:          tx,
		Vector:      vector,
		Graph:       graph,
		Cache:       cacheStore,
		Unified:     ops,
		Ingestion:   ingestion.New(ops, nil),
		Retrieval:   retrieval.New(ops, tx),
		Thoughts:    thoughts.New(ops, graph, tx, cacheStore, g),
		Guard:       g,
		AutoContext: autoCtx,
	}, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logging.SetDefaultLogger(logging.NewLogger(logging.ParseLogLevel(cfg.Logging.Level)))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine, err := Build(ctx, cfg)
	if err != nil {
		logging.Fatal("failed to build engine", "error", err)
	}
	defer engine.Close(context.Background())

	logging.Info("coordination engine started", "server", cfg.Server.Name, "env", cfg.Server.Environment)

	<-ctx.Done()
	logging.Info("shutdown signal received, stopping")
}
