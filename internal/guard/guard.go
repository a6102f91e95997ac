// Package guard implements the recursion and safety guard: it tracks
// per-session reasoning depth, detects circular thought content, and
// trips a circuit breaker once a session crosses its depth limit, the
// way the coordination engine's Python predecessor's
// RecursionControlSystem did.
package guard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"ltmc-engine/internal/circuitbreaker"
	"ltmc-engine/internal/logging"
	"ltmc-engine/pkg/types"
)

var errMaxDepthExceeded = errors.New("max recursion depth exceeded")
var errMaxOpsExceeded = errors.New("max operations per session exceeded")

// Node is one tracked thought in a session's reasoning chain.
type Node struct {
	ThoughtID   string
	ContentHash string
	Timestamp   time.Time
	Depth       int
	ParentID    string
	Children    []string
}

// Metrics is the real-time recursion telemetry for one session.
type Metrics struct {
	CurrentDepth    int
	MaxDepthReached int
	LoopCount       int
	WarningCount    int
	RecoveryCount   int
}

// Config controls depth, loop, and circuit-breaker thresholds.
type Config struct {
	MaxDepth            int
	WarningThreshold    int
	LoopDetectionWindow int
	RecoveryTimeout     time.Duration

	// MaxOverheadMs is the per-call latency budget for TrackDepth; calls
	// that run longer are logged as a warning but not rejected.
	MaxOverheadMs float64
	// CircuitTripWindow bounds the rolling window MaxOpsPerSession is
	// measured against.
	CircuitTripWindow time.Duration
	// MaxOpsPerSession caps the number of TrackDepth calls a session may
	// make within CircuitTripWindow before it is blocked, independent of
	// the recursion-depth cap.
	MaxOpsPerSession int
}

// DefaultConfig matches the Python predecessor's defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxDepth: 10, WarningThreshold: 7, LoopDetectionWindow: 5, RecoveryTimeout: 30 * time.Second,
		MaxOverheadMs: 5.0, CircuitTripWindow: 60 * time.Second, MaxOpsPerSession: 1000,
	}
}

type sessionState struct {
	chain        map[string]*Node
	metrics      Metrics
	state        types.ThoughtState
	recentHashes []string
	opTimes      []time.Time
	breaker      *circuitbreaker.CircuitBreaker
}

// Guard tracks recursion depth and loop patterns per session.
type Guard struct {
	cfg *Config

	mu       sync.Mutex
	sessions map[string]*sessionState
}

// New creates a Guard.
func New(cfg *Config) *Guard {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Guard{cfg: cfg, sessions: make(map[string]*sessionState)}
}

func (g *Guard) session(sessionID string) *sessionState {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[sessionID]
	if ok {
		return s
	}
	s = &sessionState{
		chain: make(map[string]*Node),
		state: types.ThoughtStateSafe,
		breaker: circuitbreaker.New(&circuitbreaker.Config{
			FailureThreshold:      1,
			SuccessThreshold:      1,
			Timeout:               g.cfg.RecoveryTimeout,
			MaxConcurrentRequests: 1,
		}),
	}
	g.sessions[sessionID] = s
	return s
}

// TrackDepth records a new thought in sessionID's chain, derives its
// depth from parentID, and returns the depth plus the resulting
// recursion state.
func (g *Guard) TrackDepth(ctx context.Context, sessionID, thoughtID, content, parentID string) (int, types.ThoughtState) {
	start := time.Now()
	s := g.session(sessionID)

	g.mu.Lock()
	defer g.mu.Unlock()

	defer func() {
		if g.cfg.MaxOverheadMs > 0 {
			if elapsedMs := float64(time.Since(start).Microseconds()) / 1000.0; elapsedMs > g.cfg.MaxOverheadMs {
				logging.Warn("guard call exceeded overhead budget", "session_id", sessionID, "elapsed_ms", elapsedMs, "budget_ms", g.cfg.MaxOverheadMs)
			}
		}
	}()

	sum := sha256.Sum256([]byte(content))
	contentHash := hex.EncodeToString(sum[:])[:16]

	depth := 0
	if parentID != "" {
		if parent, ok := s.chain[parentID]; ok {
			depth = parent.depth() + 1
			parent.Children = append(parent.Children, thoughtID)
		}
	}

	node := &Node{ThoughtID: thoughtID, ContentHash: contentHash, Timestamp: time.Now(), Depth: depth, ParentID: parentID}
	s.chain[thoughtID] = node

	s.metrics.CurrentDepth = depth
	if depth > s.metrics.MaxDepthReached {
		s.metrics.MaxDepthReached = depth
	}

	state := g.evaluateState(s, sessionID, depth, contentHash)
	if state != s.state {
		logging.Warn("recursion state changed", "session_id", sessionID, "from", string(s.state), "to", string(state))
		s.state = state
	}
	return depth, state
}

func (n *Node) depth() int { return n.Depth }

func (g *Guard) evaluateState(s *sessionState, sessionID string, depth int, contentHash string) types.ThoughtState {
	if s.breaker.GetState() == circuitbreaker.StateOpen {
		// Once RecoveryTimeout has passed, this probe moves the breaker to
		// Half-Open and its success closes it again; before that it is rejected.
		if err := s.breaker.Execute(context.Background(), func(context.Context) error { return nil }); err != nil {
			return types.ThoughtStateBlocked
		}
	}

	if g.rateLimitExceeded(s) {
		logging.Error("circuit breaker tripped", "session_id", sessionID, "reason", "max_ops_per_session_exceeded")
		_ = s.breaker.Execute(context.Background(), func(context.Context) error { return errMaxOpsExceeded })
		return types.ThoughtStateBlocked
	}

	if depth >= g.cfg.MaxDepth {
		_ = s.breaker.Execute(context.Background(), func(context.Context) error { return errMaxDepthExceeded })
		logging.Error("circuit breaker tripped", "session_id", sessionID, "reason", "max_depth_exceeded")
		return types.ThoughtStateBlocked
	}

	if depth >= g.cfg.WarningThreshold {
		s.metrics.WarningCount++
		return types.ThoughtStateWarning
	}

	if g.detectLoop(s, contentHash) {
		s.metrics.LoopCount++
		return types.ThoughtStateCritical
	}

	return types.ThoughtStateSafe
}

// detectLoop checks for exact content repetition within the recent
// window, then for short repeating patterns (A->B->A->B), matching
// detect_reasoning_loops.
func (g *Guard) detectLoop(s *sessionState, contentHash string) bool {
	for _, h := range s.recentHashes {
		if h == contentHash {
			return true
		}
	}

	s.recentHashes = append(s.recentHashes, contentHash)
	if len(s.recentHashes) > g.cfg.LoopDetectionWindow {
		s.recentHashes = s.recentHashes[len(s.recentHashes)-g.cfg.LoopDetectionWindow:]
	}

	n := len(s.recentHashes)
	if n < 3 {
		return false
	}
	maxPattern := n/2 + 1
	if maxPattern > 4 {
		maxPattern = 4
	}
	for patternLen := 2; patternLen <= maxPattern; patternLen++ {
		if n < patternLen*2 {
			continue
		}
		pattern := s.recentHashes[n-patternLen:]
		prior := s.recentHashes[n-patternLen*2 : n-patternLen]
		if equalSlices(pattern, prior) {
			return true
		}
	}
	return false
}

// rateLimitExceeded records this call's timestamp and reports whether the
// session has made more than MaxOpsPerSession calls within CircuitTripWindow.
// MaxOpsPerSession <= 0 disables the check.
func (g *Guard) rateLimitExceeded(s *sessionState) bool {
	if g.cfg.MaxOpsPerSession <= 0 {
		return false
	}

	now := time.Now()
	cutoff := now.Add(-g.cfg.CircuitTripWindow)

	kept := s.opTimes[:0]
	for _, t := range s.opTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.opTimes = append(kept, now)

	return len(s.opTimes) > g.cfg.MaxOpsPerSession
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// EnforcementResult reports what action TrackDepth's caller should take.
type EnforcementResult struct {
	SessionID    string
	CurrentDepth int
	MaxDepth     int
	Enforced     bool
	Action       string
	Message      string
}

// EnforceDepthLimits translates a tracked depth/state into a concrete
// enforcement decision (block, warn, or allow), matching
// enforce_depth_limits's graceful-degradation contract.
func (g *Guard) EnforceDepthLimits(sessionID string, currentDepth int) EnforcementResult {
	s := g.session(sessionID)

	result := EnforcementResult{SessionID: sessionID, CurrentDepth: currentDepth, MaxDepth: g.cfg.MaxDepth}

	g.mu.Lock()
	state := s.state
	g.mu.Unlock()

	if state == types.ThoughtStateBlocked {
		result.Enforced = true
		result.Action = "blocked"
		result.Message = "recursion blocked - circuit breaker tripped"
		return result
	}

	if currentDepth >= g.cfg.MaxDepth {
		result.Enforced = true
		result.Action = "max_depth_reached"
		result.Message = "maximum recursion depth reached"
		return result
	}

	if currentDepth >= g.cfg.WarningThreshold {
		result.Action = "warning"
		result.Message = "approaching max depth"
	}

	return result
}

// Metrics returns a copy of sessionID's current recursion telemetry.
func (g *Guard) Metrics(sessionID string) Metrics {
	s := g.session(sessionID)
	g.mu.Lock()
	defer g.mu.Unlock()
	return s.metrics
}

// State returns sessionID's current recursion state.
func (g *Guard) State(sessionID string) types.ThoughtState {
	s := g.session(sessionID)
	g.mu.Lock()
	defer g.mu.Unlock()
	return s.state
}
