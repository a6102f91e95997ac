// Package types defines the domain model shared across the coordination
// engine: resources, chunks, chat history, thought chains and the
// consistency bookkeeping that ties backend adapters together.
package types

import "time"

// ConsistencyLevel controls how many backends an atomic operation must
// confirm before it is considered durable.
type ConsistencyLevel string

const (
	ConsistencyPrimary  ConsistencyLevel = "primary"
	ConsistencyQuorum   ConsistencyLevel = "quorum"
	ConsistencyStrong   ConsistencyLevel = "strong"
	ConsistencyEventual ConsistencyLevel = "eventual"
)

// BackendRole identifies which store a coordinated operation targets.
type BackendRole string

const (
	RolePrimaryTransactional BackendRole = "transactional"
	RoleVectorSearch         BackendRole = "vector"
	RoleGraphRelations       BackendRole = "graph"
	RoleCacheRealtime        BackendRole = "cache"
)

// ConflictResolution selects how ConsistencyManager reconciles a detected
// divergence between backends.
type ConflictResolution string

const (
	ResolutionLastWriteWins       ConflictResolution = "last_write_wins"
	ResolutionFirstWriteWins      ConflictResolution = "first_write_wins"
	ResolutionPrimaryAuthoritative ConflictResolution = "primary_authoritative"
	ResolutionMerge               ConflictResolution = "merge"
	ResolutionManual              ConflictResolution = "manual"
)

// Resource is a stored document's transactional-store record.
type Resource struct {
	ID        int64     `json:"id"`
	FileName  string    `json:"file_name"`
	Type      string    `json:"type"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Chunk is one unit of chunked resource text, with its vector-store
// identity attached once ingestion assigns it.
type Chunk struct {
	ID         int64  `json:"id"`
	ResourceID int64  `json:"resource_id"`
	Text       string `json:"chunk_text"`
	VectorID   int64  `json:"vector_id"`
	Index      int    `json:"index"`
}

// Embedding is a dense vector produced by an embedding provider for a
// single chunk of text.
type Embedding struct {
	VectorID int64     `json:"vector_id"`
	Values   []float32 `json:"values"`
}

// ChatMessage is one turn of a logged conversation.
type ChatMessage struct {
	ID             int64             `json:"id"`
	ConversationID string            `json:"conversation_id"`
	Role           string            `json:"role"`
	Content        string            `json:"content"`
	Timestamp      time.Time         `json:"timestamp"`
	AgentName      string            `json:"agent_name,omitempty"`
	SourceTool     string            `json:"source_tool,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// ContextLink associates a chat message with a retrieved chunk that was
// used to answer it, so retrieval provenance can be replayed later.
type ContextLink struct {
	ID        int64 `json:"id"`
	MessageID int64 `json:"message_id"`
	ChunkID   int64 `json:"chunk_id"`
}

// CodePattern records one code-generation attempt for later retrieval as
// a worked example.
type CodePattern struct {
	ID              int64     `json:"id"`
	FunctionName    string    `json:"function_name"`
	FileName        string    `json:"file_name"`
	ModuleName      string    `json:"module_name"`
	InputPrompt     string    `json:"input_prompt"`
	GeneratedCode   string    `json:"generated_code"`
	Result          string    `json:"result"` // pass | fail | partial
	ExecutionTimeMs int64     `json:"execution_time_ms"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
	VectorID        int64     `json:"vector_id"`
	CreatedAt       time.Time `json:"created_at"`
}

// Summary is a generated condensation of a resource.
type Summary struct {
	ID         int64     `json:"id"`
	ResourceID int64     `json:"resource_id"`
	DocID      string    `json:"doc_id"`
	Text       string    `json:"summary_text"`
	Model      string    `json:"model"`
	CreatedAt  time.Time `json:"created_at"`
}

// Todo is a lightweight task record kept alongside memory content.
type Todo struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	Completed   bool       `json:"completed"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RelationshipType names the edge kind stored in the graph backend
// between two documents.
type RelationshipType string

const (
	RelationFollows     RelationshipType = "FOLLOWS"
	RelationRelatedTo   RelationshipType = "RELATED_TO"
	RelationSupersedes  RelationshipType = "SUPERSEDES"
	RelationReferences  RelationshipType = "REFERENCES"
	RelationParentChild RelationshipType = "PARENT_CHILD"
)

// Relationship is a directed edge between two document identifiers.
type Relationship struct {
	ID        int64            `json:"id"`
	FromID    string           `json:"from_id"`
	ToID      string           `json:"to_id"`
	Type      RelationshipType `json:"type"`
	CreatedAt time.Time        `json:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// DataVersion is the fingerprint ConsistencyManager compares across
// backends to decide whether a document has diverged.
type DataVersion struct {
	DocID       string
	ContentHash string
	UpdatedAt   time.Time
	Version     string // derived from ContentHash[:16] + UpdatedAt unix seconds
}

// SearchResult is one ranked hit from a semantic search.
type SearchResult struct {
	Chunk      Chunk
	Score      float64
	Resource   Resource
	Highlights []string
}

// ThoughtState is the lifecycle state of a RecursionGuard-tracked session.
type ThoughtState string

const (
	ThoughtStateSafe       ThoughtState = "safe"
	ThoughtStateWarning    ThoughtState = "warning"
	ThoughtStateCritical   ThoughtState = "critical"
	ThoughtStateBlocked    ThoughtState = "blocked"
	ThoughtStateRecovering ThoughtState = "recovering"
)

// Thought is one node in a reasoning chain, time-ordered by its ULID.
// StepNumber is the caller-supplied position within ChainID (1-based) and
// is distinct from Depth, which the recursion guard derives from parentage.
type Thought struct {
	ThoughtID   string    `json:"thought_id"`
	SessionID   string    `json:"session_id"`
	ChainID     string    `json:"chain_id"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	ParentID    string    `json:"parent_id,omitempty"`
	Depth       int       `json:"depth"`
	StepNumber  int       `json:"step_number"`
	Timestamp   time.Time `json:"timestamp"`
}
