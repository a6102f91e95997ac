package guard

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltmc-engine/internal/logging"
	"ltmc-engine/pkg/types"
)

// TestMain silences the package-level logger for this run: every warning/
// trip test below deliberately exercises guard's logging.Warn/Error calls,
// and a no-op logger keeps that expected noise out of `go test` output.
func TestMain(m *testing.M) {
	logging.SetDefaultLogger(logging.NewNoOpLogger())
	os.Exit(m.Run())
}

func TestTrackDepthIncreasesWithParentChain(t *testing.T) {
	g := New(DefaultConfig())
	ctx := context.Background()

	d0, s0 := g.TrackDepth(ctx, "sess-1", "t0", "root thought", "")
	require.Equal(t, 0, d0)
	assert.Equal(t, types.ThoughtStateSafe, s0)

	d1, _ := g.TrackDepth(ctx, "sess-1", "t1", "child thought", "t0")
	assert.Equal(t, 1, d1)
}

func TestTrackDepthWarnsAtThreshold(t *testing.T) {
	cfg := &Config{MaxDepth: 5, WarningThreshold: 2, LoopDetectionWindow: 5, RecoveryTimeout: time.Second}
	g := New(cfg)
	ctx := context.Background()

	parent := ""
	var lastState types.ThoughtState
	for i := 0; i < 3; i++ {
		id := string(rune('a' + i))
		_, lastState = g.TrackDepth(ctx, "sess-2", id, "thought "+id, parent)
		parent = id
	}
	assert.Equal(t, types.ThoughtStateWarning, lastState)
}

func TestTrackDepthBlocksAtMaxDepth(t *testing.T) {
	cfg := &Config{MaxDepth: 2, WarningThreshold: 5, LoopDetectionWindow: 5, RecoveryTimeout: time.Minute}
	g := New(cfg)
	ctx := context.Background()

	parent := ""
	var lastState types.ThoughtState
	for i := 0; i < 3; i++ {
		id := string(rune('a' + i))
		_, lastState = g.TrackDepth(ctx, "sess-3", id, "thought "+id, parent)
		parent = id
	}
	assert.Equal(t, types.ThoughtStateBlocked, lastState)

	_, state := g.TrackDepth(ctx, "sess-3", "extra", "another thought", parent)
	assert.Equal(t, types.ThoughtStateBlocked, state, "circuit breaker stays tripped until recovery timeout")
}

func TestTrackDepthDetectsExactContentRepetition(t *testing.T) {
	g := New(DefaultConfig())
	ctx := context.Background()

	g.TrackDepth(ctx, "sess-4", "t0", "same content", "")
	_, state := g.TrackDepth(ctx, "sess-4", "t1", "same content", "")
	assert.Equal(t, types.ThoughtStateCritical, state)
}

func TestTrackDepthBlocksWhenOpsPerSessionExceeded(t *testing.T) {
	cfg := &Config{
		MaxDepth: 100, WarningThreshold: 100, LoopDetectionWindow: 1, RecoveryTimeout: time.Minute,
		CircuitTripWindow: time.Minute, MaxOpsPerSession: 2,
	}
	g := New(cfg)
	ctx := context.Background()

	g.TrackDepth(ctx, "sess-6", "t0", "first", "")
	g.TrackDepth(ctx, "sess-6", "t1", "second", "t0")
	_, state := g.TrackDepth(ctx, "sess-6", "t2", "third", "t1")
	assert.Equal(t, types.ThoughtStateBlocked, state, "exceeding MaxOpsPerSession within CircuitTripWindow trips the breaker")
}

func TestEnforceDepthLimitsReportsBlocked(t *testing.T) {
	cfg := &Config{MaxDepth: 1, WarningThreshold: 1, LoopDetectionWindow: 5, RecoveryTimeout: time.Minute}
	g := New(cfg)
	ctx := context.Background()
	g.TrackDepth(ctx, "sess-5", "t0", "first", "")
	g.TrackDepth(ctx, "sess-5", "t1", "second", "t0")

	result := g.EnforceDepthLimits("sess-5", 1)
	assert.True(t, result.Enforced)
	assert.Equal(t, "blocked", result.Action)
}
