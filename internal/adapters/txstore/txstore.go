// Package txstore is the primary transactional backend adapter: a
// SQLite-backed store holding resources, chunks, chat history, and the
// single-row vector-ID sequence every other backend's identity derives
// from.
package txstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"ltmc-engine/internal/config"
	"ltmc-engine/internal/errors"
	"ltmc-engine/pkg/types"
)

func joinTags(tags []string) sql.NullString {
	if len(tags) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: strings.Join(tags, ","), Valid: true}
}

func splitTags(tags sql.NullString) []string {
	if !tags.Valid || tags.String == "" {
		return nil
	}
	return strings.Split(tags.String, ",")
}

const schema = `
CREATE TABLE IF NOT EXISTS resources (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_name TEXT NOT NULL,
	type TEXT NOT NULL,
	tags TEXT,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS resource_chunks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	resource_id INTEGER NOT NULL REFERENCES resources(id),
	chunk_text TEXT NOT NULL,
	chunk_index INTEGER NOT NULL DEFAULT 0,
	vector_id INTEGER UNIQUE
);

CREATE TABLE IF NOT EXISTS chat_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	agent_name TEXT,
	source_tool TEXT,
	metadata TEXT
);

CREATE TABLE IF NOT EXISTS context_links (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id INTEGER NOT NULL REFERENCES chat_history(id),
	chunk_id INTEGER NOT NULL REFERENCES resource_chunks(id)
);

CREATE TABLE IF NOT EXISTS summaries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	resource_id INTEGER NOT NULL REFERENCES resources(id),
	doc_id TEXT NOT NULL,
	summary_text TEXT NOT NULL,
	model TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS todos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	description TEXT,
	priority TEXT NOT NULL DEFAULT 'medium',
	status TEXT NOT NULL DEFAULT 'open',
	completed INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS code_patterns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	function_name TEXT NOT NULL,
	file_name TEXT NOT NULL,
	module_name TEXT NOT NULL,
	input_prompt TEXT NOT NULL,
	generated_code TEXT NOT NULL,
	result TEXT NOT NULL CHECK (result IN ('pass', 'fail', 'partial')),
	execution_time_ms INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	tags TEXT,
	vector_id INTEGER UNIQUE,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS thoughts (
	thought_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	chain_id TEXT NOT NULL,
	content TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	parent_id TEXT,
	depth INTEGER NOT NULL DEFAULT 0,
	step_number INTEGER NOT NULL DEFAULT 0,
	timestamp DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_thoughts_session ON thoughts(session_id, step_number);

CREATE TABLE IF NOT EXISTS vector_id_sequence (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	last_vector_id INTEGER NOT NULL DEFAULT 0
);
INSERT OR IGNORE INTO vector_id_sequence (id, last_vector_id) VALUES (1, 0);
`

// Store is the SQLite-backed transactional adapter (BackendRole = transactional).
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and applies
// the schema migration.
func Open(cfg *config.TransactionalConfig) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_busy_timeout=%d", cfg.Path, cfg.BusyTimeout.Milliseconds()))
	if err != nil {
		return nil, errors.New(errors.KindUnavailable, "txstore", "Open", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.New(errors.KindInternal, "txstore", "Migrate", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for callers (the coordinator) that
// need to drive their own transactions across this adapter.
func (s *Store) DB() *sql.DB {
	return s.db
}

// InsertResource creates a new resource row and returns its assigned ID.
func (s *Store) InsertResource(ctx context.Context, tx *sql.Tx, r *types.Resource) (int64, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO resources (file_name, type, tags, created_at) VALUES (?, ?, ?, ?)`,
		r.FileName, r.Type, joinTags(r.Tags), r.CreatedAt)
	if err != nil {
		return 0, errors.New(errors.KindInternal, "txstore", "InsertResource", err)
	}
	return res.LastInsertId()
}

// InsertChunk persists a chunk row within tx. VectorID must already be allocated.
func (s *Store) InsertChunk(ctx context.Context, tx *sql.Tx, c *types.Chunk) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO resource_chunks (resource_id, chunk_text, chunk_index, vector_id) VALUES (?, ?, ?, ?)`,
		c.ResourceID, c.Text, c.Index, c.VectorID)
	if err != nil {
		return 0, errors.New(errors.KindInternal, "txstore", "InsertChunk", err)
	}
	return res.LastInsertId()
}

// DeleteChunksByResource removes all chunks belonging to a resource.
func (s *Store) DeleteChunksByResource(ctx context.Context, tx *sql.Tx, resourceID int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM resource_chunks WHERE resource_id = ?`, resourceID)
	if err != nil {
		return errors.New(errors.KindInternal, "txstore", "DeleteChunksByResource", err)
	}
	return nil
}

// DeleteResource removes a resource row.
func (s *Store) DeleteResource(ctx context.Context, tx *sql.Tx, resourceID int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, resourceID)
	if err != nil {
		return errors.New(errors.KindInternal, "txstore", "DeleteResource", err)
	}
	return nil
}

// GetResource fetches a resource by ID.
func (s *Store) GetResource(ctx context.Context, id int64) (*types.Resource, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, file_name, type, tags, created_at FROM resources WHERE id = ?`, id)
	var r types.Resource
	var tags sql.NullString
	if err := row.Scan(&r.ID, &r.FileName, &r.Type, &tags, &r.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New(errors.KindNotFound, "txstore", "GetResource", err)
		}
		return nil, errors.New(errors.KindInternal, "txstore", "GetResource", err)
	}
	r.Tags = splitTags(tags)
	return &r, nil
}

// GetChunksByResource returns all chunks for a resource, in index order.
func (s *Store) GetChunksByResource(ctx context.Context, resourceID int64) ([]types.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, resource_id, chunk_text, chunk_index, vector_id FROM resource_chunks WHERE resource_id = ? ORDER BY chunk_index`,
		resourceID)
	if err != nil {
		return nil, errors.New(errors.KindInternal, "txstore", "GetChunksByResource", err)
	}
	defer rows.Close()

	var chunks []types.Chunk
	for rows.Next() {
		var c types.Chunk
		if err := rows.Scan(&c.ID, &c.ResourceID, &c.Text, &c.Index, &c.VectorID); err != nil {
			return nil, errors.New(errors.KindInternal, "txstore", "GetChunksByResource", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// GetAllChunks returns every chunk in the store, used by backup/restore.
func (s *Store) GetAllChunks(ctx context.Context) ([]types.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, resource_id, chunk_text, chunk_index, vector_id FROM resource_chunks`)
	if err != nil {
		return nil, errors.New(errors.KindInternal, "txstore", "GetAllChunks", err)
	}
	defer rows.Close()

	var chunks []types.Chunk
	for rows.Next() {
		var c types.Chunk
		if err := rows.Scan(&c.ID, &c.ResourceID, &c.Text, &c.Index, &c.VectorID); err != nil {
			return nil, errors.New(errors.KindInternal, "txstore", "GetAllChunks", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// StoreChunk upserts a chunk with an already-known ID, used during restore.
func (s *Store) StoreChunk(ctx context.Context, chunk *types.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New(errors.KindInternal, "txstore", "StoreChunk", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO resource_chunks (id, resource_id, chunk_text, chunk_index, vector_id) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET chunk_text = excluded.chunk_text, vector_id = excluded.vector_id`,
		chunk.ID, chunk.ResourceID, chunk.Text, chunk.Index, chunk.VectorID)
	if err != nil {
		return errors.New(errors.KindInternal, "txstore", "StoreChunk", err)
	}
	return tx.Commit()
}

// CreateResourceWithChunks inserts a resource and its chunk texts in a
// single transaction, allocating a sequential vector ID for every chunk
// from the same single-row sequence counter so the caller can hand those
// IDs straight to the vector store.
func (s *Store) CreateResourceWithChunks(ctx context.Context, resource *types.Resource, chunkTexts []string) (*types.Resource, []types.Chunk, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, errors.New(errors.KindInternal, "txstore", "CreateResourceWithChunks", err)
	}
	defer tx.Rollback()

	resourceID, err := s.InsertResource(ctx, tx, resource)
	if err != nil {
		return nil, nil, err
	}
	resource.ID = resourceID

	chunks := make([]types.Chunk, len(chunkTexts))
	for i, text := range chunkTexts {
		vectorID, err := s.NextVectorID(ctx, tx)
		if err != nil {
			return nil, nil, err
		}
		c := types.Chunk{ResourceID: resourceID, Text: text, Index: i, VectorID: vectorID}
		chunkID, err := s.InsertChunk(ctx, tx, &c)
		if err != nil {
			return nil, nil, err
		}
		c.ID = chunkID
		chunks[i] = c
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, errors.New(errors.KindInternal, "txstore", "CreateResourceWithChunks", err)
	}
	return resource, chunks, nil
}

// DeleteResourceWithChunks removes a resource and its chunks atomically.
func (s *Store) DeleteResourceWithChunks(ctx context.Context, resourceID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New(errors.KindInternal, "txstore", "DeleteResourceWithChunks", err)
	}
	defer tx.Rollback()

	if err := s.DeleteChunksByResource(ctx, tx, resourceID); err != nil {
		return err
	}
	if err := s.DeleteResource(ctx, tx, resourceID); err != nil {
		return err
	}
	return tx.Commit()
}

// NextVectorID atomically increments and returns the next vector ID from
// the single-row sequence counter, within tx.
func (s *Store) NextVectorID(ctx context.Context, tx *sql.Tx) (int64, error) {
	if _, err := tx.ExecContext(ctx, `UPDATE vector_id_sequence SET last_vector_id = last_vector_id + 1 WHERE id = 1`); err != nil {
		return 0, errors.New(errors.KindInternal, "txstore", "NextVectorID", err)
	}
	row := tx.QueryRowContext(ctx, `SELECT last_vector_id FROM vector_id_sequence WHERE id = 1`)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, errors.New(errors.KindInternal, "txstore", "NextVectorID", err)
	}
	return id, nil
}

// InsertChatMessage records one conversation turn.
func (s *Store) InsertChatMessage(ctx context.Context, m *types.ChatMessage) (int64, error) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_history (conversation_id, role, content, timestamp, agent_name, source_tool) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ConversationID, m.Role, m.Content, m.Timestamp, m.AgentName, m.SourceTool)
	if err != nil {
		return 0, errors.New(errors.KindInternal, "txstore", "InsertChatMessage", err)
	}
	return res.LastInsertId()
}

// InsertContextLink records provenance between a chat message and a chunk.
func (s *Store) InsertContextLink(ctx context.Context, messageID, chunkID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO context_links (message_id, chunk_id) VALUES (?, ?)`, messageID, chunkID)
	if err != nil {
		return errors.New(errors.KindInternal, "txstore", "InsertContextLink", err)
	}
	return nil
}

// InsertThought records one reasoning step.
func (s *Store) InsertThought(ctx context.Context, t *types.Thought) error {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO thoughts (thought_id, session_id, chain_id, content, content_hash, parent_id, depth, step_number, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ThoughtID, t.SessionID, t.ChainID, t.Content, t.ContentHash, t.ParentID, t.Depth, t.StepNumber, t.Timestamp)
	if err != nil {
		return errors.New(errors.KindInternal, "txstore", "InsertThought", err)
	}
	return nil
}

// DeleteThought removes a thought row, used to compensate a composite
// document write that succeeded in the other backends but failed here.
func (s *Store) DeleteThought(ctx context.Context, thoughtID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM thoughts WHERE thought_id = ?`, thoughtID)
	if err != nil {
		return errors.New(errors.KindInternal, "txstore", "DeleteThought", err)
	}
	return nil
}

func scanThought(row *sql.Row) (*types.Thought, error) {
	var t types.Thought
	var parentID sql.NullString
	if err := row.Scan(&t.ThoughtID, &t.SessionID, &t.ChainID, &t.Content, &t.ContentHash, &parentID, &t.Depth, &t.StepNumber, &t.Timestamp); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New(errors.KindNotFound, "txstore", "GetThought", err)
		}
		return nil, errors.New(errors.KindInternal, "txstore", "GetThought", err)
	}
	t.ParentID = parentID.String
	return &t, nil
}

const thoughtColumns = `thought_id, session_id, chain_id, content, content_hash, parent_id, depth, step_number, timestamp`

// GetThought fetches one reasoning step by its ULID.
func (s *Store) GetThought(ctx context.Context, thoughtID string) (*types.Thought, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+thoughtColumns+` FROM thoughts WHERE thought_id = ?`, thoughtID)
	return scanThought(row)
}

// ThoughtBySessionStep fetches the thought recorded at stepNumber within
// sessionID, used by chain recovery when a caller omits previous_thought_id.
func (s *Store) ThoughtBySessionStep(ctx context.Context, sessionID string, stepNumber int) (*types.Thought, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+thoughtColumns+` FROM thoughts WHERE session_id = ? AND step_number = ? ORDER BY timestamp DESC LIMIT 1`,
		sessionID, stepNumber)
	return scanThought(row)
}

// LatestThoughtForSession returns the most recently recorded thought for
// sessionID, used both as chain-recovery's approximate fallback and as the
// transactional store's backstop for the chain head cache on a cache miss.
func (s *Store) LatestThoughtForSession(ctx context.Context, sessionID string) (*types.Thought, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+thoughtColumns+` FROM thoughts WHERE session_id = ? ORDER BY timestamp DESC LIMIT 1`,
		sessionID)
	return scanThought(row)
}

// GetChatsByTool returns every logged chat turn recorded under sourceTool,
// most recent first.
func (s *Store) GetChatsByTool(ctx context.Context, sourceTool string) ([]types.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, timestamp, agent_name, source_tool
		 FROM chat_history WHERE source_tool = ? ORDER BY timestamp DESC`, sourceTool)
	if err != nil {
		return nil, errors.New(errors.KindInternal, "txstore", "GetChatsByTool", err)
	}
	defer rows.Close()

	var messages []types.ChatMessage
	for rows.Next() {
		var m types.ChatMessage
		var agentName, source sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Timestamp, &agentName, &source); err != nil {
			return nil, errors.New(errors.KindInternal, "txstore", "GetChatsByTool", err)
		}
		m.AgentName = agentName.String
		m.SourceTool = source.String
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// InsertTodo records a new todo item, defaulting priority/status the way
// the open-memory surface's add_todo documents.
func (s *Store) InsertTodo(ctx context.Context, t *types.Todo) (int64, error) {
	if t.Priority == "" {
		t.Priority = "medium"
	}
	if t.Status == "" {
		t.Status = "open"
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO todos (title, description, priority, status, completed, created_at) VALUES (?, ?, ?, ?, 0, ?)`,
		t.Title, t.Description, t.Priority, t.Status, t.CreatedAt)
	if err != nil {
		return 0, errors.New(errors.KindInternal, "txstore", "InsertTodo", err)
	}
	return res.LastInsertId()
}

func scanTodoRows(rows *sql.Rows) ([]types.Todo, error) {
	var todos []types.Todo
	for rows.Next() {
		var t types.Todo
		var description sql.NullString
		var completedAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.Title, &description, &t.Priority, &t.Status, &t.Completed, &t.CreatedAt, &completedAt); err != nil {
			return nil, errors.New(errors.KindInternal, "txstore", "ListTodos", err)
		}
		t.Description = description.String
		if completedAt.Valid {
			ts := completedAt.Time
			t.CompletedAt = &ts
		}
		todos = append(todos, t)
	}
	return todos, rows.Err()
}

const todoColumns = `id, title, description, priority, status, completed, created_at, completed_at`

// ListTodos returns todos, optionally filtered to status, newest first.
func (s *Store) ListTodos(ctx context.Context, status string) ([]types.Todo, error) {
	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT `+todoColumns+` FROM todos ORDER BY created_at DESC`)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT `+todoColumns+` FROM todos WHERE status = ? ORDER BY created_at DESC`, status)
	}
	if err != nil {
		return nil, errors.New(errors.KindInternal, "txstore", "ListTodos", err)
	}
	defer rows.Close()
	return scanTodoRows(rows)
}

// SearchTodos returns todos whose title or description contains query
// (case-insensitive substring match).
func (s *Store) SearchTodos(ctx context.Context, query string) ([]types.Todo, error) {
	like := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+todoColumns+` FROM todos WHERE title LIKE ? COLLATE NOCASE OR description LIKE ? COLLATE NOCASE ORDER BY created_at DESC`,
		like, like)
	if err != nil {
		return nil, errors.New(errors.KindInternal, "txstore", "SearchTodos", err)
	}
	defer rows.Close()
	return scanTodoRows(rows)
}

// CompleteTodo marks a todo completed, recording the completion time.
func (s *Store) CompleteTodo(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE todos SET completed = 1, status = 'completed', completed_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return errors.New(errors.KindInternal, "txstore", "CompleteTodo", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.New(errors.KindInternal, "txstore", "CompleteTodo", err)
	}
	if n == 0 {
		return errors.New(errors.KindNotFound, "txstore", "CompleteTodo", fmt.Errorf("todo %d not found", id))
	}
	return nil
}

// HealthCheck verifies the database connection is alive.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.New(errors.KindUnavailable, "txstore", "HealthCheck", err)
	}
	return nil
}
