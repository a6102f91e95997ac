// Package autocontext infers the session/conversation/agent/chain
// identifiers a reasoning call needs when a caller doesn't supply them
// explicitly, the way the coordination engine's Python predecessor's
// SessionContextExtractor did: explicit arguments first, then cached or
// recently-detected state, then deterministic generation as a last
// resort, with a confidence score reflecting how much was inferred.
package autocontext

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ltmc-engine/pkg/types"
)

var highConfidenceSources = []string{
	"explicit_session_id", "explicit_conversation_id", "explicit_agent_id",
	"explicit_previous_thought", "explicit_metadata",
}

var mediumConfidenceSources = []string{
	"database_existing_session",
}

var lowConfidenceSources = []string{
	"chain_recovery", "inference",
}

// Context is the full set of identifiers a reasoning call carries,
// whether supplied explicitly or inferred.
type Context struct {
	SessionID         string
	ConversationID    string
	AgentID           string
	ChainID           string
	PreviousThoughtID string
	StepNumber        int
	Metadata          map[string]any
	ExtractionSources []string
	GeneratedFields   []string
	Timestamp         time.Time
	Confidence        float64
}

// IsComplete reports whether every field autonomous operation needs is set.
func (c *Context) IsComplete() bool {
	return c.SessionID != "" && c.ConversationID != ""
}

// MarkGenerated records that a field was filled in rather than supplied.
func (c *Context) MarkGenerated(field string) {
	for _, f := range c.GeneratedFields {
		if f == field {
			return
		}
	}
	c.GeneratedFields = append(c.GeneratedFields, field)
}

// AddSource records which extraction step produced a field, for the
// confidence calculation and for audit trails.
func (c *Context) AddSource(source string) {
	for _, s := range c.ExtractionSources {
		if s == source {
			return
		}
	}
	c.ExtractionSources = append(c.ExtractionSources, source)
}

type cacheEntry struct {
	conversationID string
	expiresAt      time.Time
}

// ThoughtLookup resolves prior reasoning steps for chain recovery when a
// caller's step_number indicates a mid-chain call but doesn't supply
// previous_thought_id explicitly.
type ThoughtLookup interface {
	ThoughtBySessionStep(ctx context.Context, sessionID string, stepNumber int) (*types.Thought, error)
	LatestThoughtForSession(ctx context.Context, sessionID string) (*types.Thought, error)
}

// Extractor extracts and, failing that, generates session context.
type Extractor struct {
	mu       sync.Mutex
	cache    map[string]cacheEntry
	cacheTTL time.Duration
	sequence int
	thoughts ThoughtLookup
}

// NewExtractor builds an Extractor with a 5-minute conversation cache,
// matching the Python predecessor's _cache_ttl.
func NewExtractor() *Extractor {
	return &Extractor{cache: make(map[string]cacheEntry), cacheTTL: 5 * time.Minute}
}

// SetThoughtLookup wires chain-recovery lookups for step_number-based
// previous_thought_id inference. Without it, recovery is skipped and
// PreviousThoughtID stays empty whenever a caller omits it.
func (e *Extractor) SetThoughtLookup(t ThoughtLookup) {
	e.thoughts = t
}

// Extract builds a Context for one tool invocation: explicit arguments
// win, anything still missing is generated deterministically, and a
// missing previous_thought_id on a mid-chain call is recovered from the
// thought store before confidence is scored.
func (e *Extractor) Extract(ctx context.Context, args map[string]string, toolName string) *Context {
	c := &Context{Timestamp: time.Now().UTC(), Metadata: make(map[string]any), StepNumber: 1}

	e.extractExplicit(c, args)
	e.generateMissingFields(c, toolName)
	e.recoverChain(ctx, c)
	c.Confidence = e.calculateConfidence(c)
	return c
}

// recoverChain fills in PreviousThoughtID when step_number indicates a
// mid-chain call but no previous thought was supplied or could be
// resolved explicitly: first the exact predecessor step, then the
// session's most recent thought as an approximate fallback.
func (e *Extractor) recoverChain(ctx context.Context, c *Context) {
	if e.thoughts == nil || c.PreviousThoughtID != "" || c.StepNumber <= 1 {
		return
	}

	if t, err := e.thoughts.ThoughtBySessionStep(ctx, c.SessionID, c.StepNumber-1); err == nil && t != nil {
		c.PreviousThoughtID = t.ThoughtID
		c.AddSource("chain_recovery")
		c.Metadata["chain_recovery"] = map[string]any{"approximate": false, "method": "step_lookup"}
		return
	}

	if t, err := e.thoughts.LatestThoughtForSession(ctx, c.SessionID); err == nil && t != nil {
		c.PreviousThoughtID = t.ThoughtID
		c.AddSource("chain_recovery")
		c.Metadata["chain_recovery"] = map[string]any{"approximate": true, "method": "latest_in_session"}
	}
}

func (e *Extractor) extractExplicit(c *Context, args map[string]string) {
	if v := args["session_id"]; v != "" {
		c.SessionID = v
		c.AddSource("explicit_session_id")
	}
	if v := args["conversation_id"]; v != "" {
		c.ConversationID = v
		c.AddSource("explicit_conversation_id")
	}
	if v := args["agent_id"]; v != "" {
		c.AgentID = v
		c.AddSource("explicit_agent_id")
	}
	if v := args["previous_thought_id"]; v != "" {
		c.PreviousThoughtID = v
		c.AddSource("explicit_previous_thought")
	}
	if v := args["chain_id"]; v != "" {
		c.ChainID = v
		c.AddSource("explicit_metadata")
	}
	if v := args["step_number"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.StepNumber = n
		}
	}
}

func (e *Extractor) generateMissingFields(c *Context, toolName string) {
	if c.SessionID == "" {
		agentID := c.AgentID
		if agentID == "" {
			agentID = "unknown"
		}
		c.SessionID = generateSessionID(agentID)
		c.AddSource("generated_session_id")
		c.MarkGenerated("session_id")
	}

	if c.ConversationID == "" {
		c.ConversationID = e.detectOrGenerateConversationID(c.SessionID)
		c.AddSource("generated_conversation_id")
		c.MarkGenerated("conversation_id")
	}

	if c.AgentID == "" {
		c.AgentID = fmt.Sprintf("autonomous_%s_%s", toolName, uuid.NewString()[:8])
		c.AddSource("generated_agent_id")
		c.MarkGenerated("agent_id")
	}

	if c.ChainID == "" {
		c.ChainID = fmt.Sprintf("chain_%s", strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
		c.AddSource("generated_chain_id")
		c.MarkGenerated("chain_id")
	}

	c.Metadata["autonomous_generation"] = map[string]any{
		"generated_fields":    c.GeneratedFields,
		"extraction_sources":  c.ExtractionSources,
		"generation_timestamp": time.Now().UTC().Format(time.RFC3339),
	}
}

// generateSessionID builds "session_{unixSeconds}_{agentHash8}".
func generateSessionID(agentID string) string {
	now := time.Now().Unix()
	agentHash := md5Hex(agentID)[:8]
	return fmt.Sprintf("session_%d_%s", now, agentHash)
}

// generateConversationID builds "conv_{base36Timestamp}_{sessionHash8}_{seq:03d}".
func generateConversationID(sessionID string, sequence int) string {
	base36 := strconv.FormatInt(time.Now().Unix(), 36)
	sessionHash := md5Hex(sessionID)[:8]
	return fmt.Sprintf("conv_%s_%s_%03d", base36, sessionHash, sequence)
}

// detectOrGenerateConversationID checks the recent-activity cache before
// minting a brand-new conversation ID, so a burst of calls in the same
// session within the TTL window are treated as one conversation.
func (e *Extractor) detectOrGenerateConversationID(sessionID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if entry, ok := e.cache[sessionID]; ok && time.Now().Before(entry.expiresAt) {
		return entry.conversationID
	}

	e.sequence++
	convID := generateConversationID(sessionID, e.sequence)
	e.cache[sessionID] = cacheEntry{conversationID: convID, expiresAt: time.Now().Add(e.cacheTTL)}
	return convID
}

// calculateConfidence weighs extraction sources and context completeness
// into a 0.0-1.0 score, mirroring _calculate_confidence.
func (e *Extractor) calculateConfidence(c *Context) float64 {
	var confidence float64
	for _, source := range c.ExtractionSources {
		switch {
		case containsAny(source, highConfidenceSources):
			confidence += 0.2
		case containsAny(source, mediumConfidenceSources):
			confidence += 0.15
		case containsAny(source, lowConfidenceSources):
			confidence += 0.1
		default:
			confidence += 0.05
		}
	}

	if c.IsComplete() {
		confidence += 0.2
	}
	if c.PreviousThoughtID != "" && c.StepNumber > 1 {
		confidence += 0.1
	}

	if confidence > 1.0 {
		confidence = 1.0
	}
	return roundTo(confidence, 2)
}

func containsAny(s string, candidates []string) bool {
	for _, c := range candidates {
		if strings.Contains(s, c) {
			return true
		}
	}
	return false
}

func roundTo(v float64, places int) float64 {
	shift := 1.0
	for i := 0; i < places; i++ {
		shift *= 10
	}
	return float64(int(v*shift+0.5)) / shift
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
