// Package thoughts implements the thought-chain engine: each reasoning
// step is a ULID-identified Thought written as a composite document
// through the unified operations layer and linked to its predecessor by
// a FOLLOWS edge in the graph store, with a SHA-256 content hash so a
// chain can be verified for tampering, mirroring the coordination
// engine's Python predecessor's sequential-thinking chain model.
package thoughts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"

	"ltmc-engine/internal/errors"
	"ltmc-engine/internal/guard"
	"ltmc-engine/internal/logging"
	"ltmc-engine/internal/unified"
	"ltmc-engine/pkg/types"
)

// GraphBackend is the subset of the graph store the chain engine needs
// for chain traversal; composite-document writes route through ops
// instead of calling this directly.
type GraphBackend interface {
	ThoughtChain(ctx context.Context, headThoughtID string) ([]string, error)
}

// TransactionalBackend persists and retrieves the thoughts-table row that
// sits alongside each thought's composite-document write.
type TransactionalBackend interface {
	InsertThought(ctx context.Context, t *types.Thought) error
	DeleteThought(ctx context.Context, thoughtID string) error
	GetThought(ctx context.Context, thoughtID string) (*types.Thought, error)
	LatestThoughtForSession(ctx context.Context, sessionID string) (*types.Thought, error)
}

// CacheBackend stores the chain-head pointer per session so Chain can
// resolve a session ID to its most recent thought without a full graph
// walk or transactional-store scan on the common path.
type CacheBackend interface {
	Set(ctx context.Context, key string, v any) error
	Get(ctx context.Context, key string, dest any) error
}

// Engine adds thoughts to reasoning chains, guarding against runaway
// recursion via the Guard, writing each thought as a composite document
// through ops, and persisting FOLLOWS edges in the graph store.
type Engine struct {
	ops   *unified.Operations
	graph GraphBackend
	tx    TransactionalBackend
	cache CacheBackend
	guard *guard.Guard
}

// New builds a thought-chain Engine.
func New(ops *unified.Operations, graph GraphBackend, tx TransactionalBackend, cache CacheBackend, g *guard.Guard) *Engine {
	return &Engine{ops: ops, graph: graph, tx: tx, cache: cache, guard: g}
}

// contentHash hashes a thought's content for chain-integrity verification.
func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func headKey(sessionID string) string {
	return "session:" + sessionID + ":head"
}

// AddThought appends a new reasoning step to chainID, deriving its depth
// from parentID via the Guard. The thought is written as a composite
// document (vector + graph + cache fan-out) with Strong consistency,
// then recorded in the thoughts table; if that second write fails, the
// composite document is compensated away so the two stay atomic as a
// whole. The FOLLOWS edge is stored from the new thought to its parent,
// which StoreDocument arranges by stamping relationships[i].FromID with
// the new thought's own document ID. It returns errors.KindRecursionBlocked
// if the guard reports the session blocked.
func (e *Engine) AddThought(ctx context.Context, sessionID, chainID, parentID, content string, stepNumber int) (*types.Thought, types.ThoughtState, error) {
	thoughtID := ulid.Make().String()

	depth, state := e.guard.TrackDepth(ctx, sessionID, thoughtID, content, parentID)
	if state == types.ThoughtStateBlocked {
		return nil, state, errors.New(errors.KindRecursionBlocked, "thoughts", "AddThought", errTooDeep)
	}

	thought := &types.Thought{
		ThoughtID:   thoughtID,
		SessionID:   sessionID,
		ChainID:     chainID,
		Content:     content,
		ContentHash: contentHash(content),
		ParentID:    parentID,
		Depth:       depth,
		StepNumber:  stepNumber,
		Timestamp:   time.Now().UTC(),
	}

	var relationships []types.Relationship
	if parentID != "" {
		relationships = []types.Relationship{
			{ToID: parentID, Type: types.RelationFollows, CreatedAt: thought.Timestamp},
		}
	}

	storeResult, err := e.ops.StoreDocument(ctx, thoughtID, "thought", content, []string{"thought"}, relationships, types.ConsistencyStrong)
	if err != nil {
		return nil, state, errors.New(errors.KindUnavailable, "thoughts", "AddThought", err)
	}

	if err := e.tx.InsertThought(ctx, thought); err != nil {
		if derr := e.ops.DeleteDocument(ctx, thoughtID, storeResult.ResourceID); derr != nil {
			logging.Error("failed to compensate composite document after thought row insert failure",
				"thought_id", thoughtID, "error", derr)
		}
		return nil, state, err
	}

	if err := e.cache.Set(ctx, headKey(sessionID), thoughtID); err != nil {
		logging.Warn("failed to update chain head pointer", "session_id", sessionID, "error", err)
	}

	return thought, state, nil
}

// Chain resolves sessionID to its most recent thought (the cache head,
// falling back to the transactional store's latest-thought-for-session
// query on a miss) and walks FOLLOWS edges back to the start of the
// chain, returning every thought in chronological order. Each is
// re-hashed and compared against its stored ContentHash so a caller can
// detect tampering, and a visited-ID guard rejects a cyclic chain rather
// than looping forever.
func (e *Engine) Chain(ctx context.Context, sessionID string) ([]types.Thought, error) {
	headID, err := e.resolveHead(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	ids, err := e.graph.ThoughtChain(ctx, headID)
	if err != nil {
		return nil, errors.New(errors.KindUnavailable, "thoughts", "Chain", err)
	}

	// ThoughtChain walks FOLLOWS from the head toward older ancestors, so
	// ids come back newest-first; reverse for chronological order.
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}

	seen := make(map[string]bool, len(ids))
	thoughts := make([]types.Thought, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, errors.New(errors.KindIntegrityFailure, "thoughts", "Chain", errChainCycle)
		}
		seen[id] = true

		t, err := e.tx.GetThought(ctx, id)
		if err != nil {
			return nil, err
		}
		if contentHash(t.Content) != t.ContentHash {
			return nil, errors.New(errors.KindIntegrityFailure, "thoughts", "Chain", errChainTampered)
		}
		thoughts = append(thoughts, *t)
	}
	return thoughts, nil
}

func (e *Engine) resolveHead(ctx context.Context, sessionID string) (string, error) {
	var head string
	if e.cache != nil {
		if err := e.cache.Get(ctx, headKey(sessionID), &head); err == nil && head != "" {
			return head, nil
		}
	}

	latest, err := e.tx.LatestThoughtForSession(ctx, sessionID)
	if err != nil {
		return "", errors.New(errors.KindNotFound, "thoughts", "Chain", err)
	}
	return latest.ThoughtID, nil
}

var errTooDeep = chainError("reasoning chain exceeded its maximum depth")
var errChainTampered = chainError("thought content hash no longer matches stored content")
var errChainCycle = chainError("thought chain contains a cycle")

type chainError string

func (e chainError) Error() string { return string(e) }
