package autocontext

import "testing"

func TestInferIntentMatchesKeywords(t *testing.T) {
	cases := map[string]Intent{
		"please analyze this function":  IntentAnalytical,
		"help me fix this bug":          IntentProblemSolving,
		"create a new widget":           IntentCreative,
		"explain how this works":        IntentExplanatory,
		"compare these two approaches":  IntentComparative,
		"what do you think about this":  IntentExploratory,
	}
	for content, want := range cases {
		if got := InferIntent(content); got != want {
			t.Errorf("InferIntent(%q) = %q, want %q", content, got, want)
		}
	}
}

func TestDetectPatternInitialWithShortHistory(t *testing.T) {
	if got := DetectPattern([]string{"one thing"}); got != PatternInitial {
		t.Errorf("got %q, want %q", got, PatternInitial)
	}
}

func TestDetectPatternIterativeRefinement(t *testing.T) {
	history := []string{
		"the quick brown fox jumps over the lazy dog",
		"the quick brown fox jumps over the lazy dog again",
	}
	if got := DetectPattern(history); got != PatternIterativeRefinement {
		t.Errorf("got %q, want %q", got, PatternIterativeRefinement)
	}
}

func TestDetectPatternExploratoryBranching(t *testing.T) {
	history := []string{
		"database indexing strategies for write heavy workloads",
		"frontend rendering performance in single page applications",
		"distributed consensus algorithms for leader election",
	}
	if got := DetectPattern(history); got != PatternExploratoryBranch {
		t.Errorf("got %q, want %q", got, PatternExploratoryBranch)
	}
}

func TestClassifyReasoningDetectsConnectives(t *testing.T) {
	cases := map[string]ReasoningClass{
		"the tests pass therefore the fix works": ClassDeductive,
		"this will probably fail under load":      ClassProbabilistic,
		"if the cache misses then hit the db":     ClassConditional,
		"it crashed because of a nil pointer":     ClassCausal,
		"this behaves similar to a linked list":   ClassAnalogical,
		"not sure what is going on here":          ClassExploratory,
	}
	for content, want := range cases {
		if got := ClassifyReasoning(content); got != want {
			t.Errorf("ClassifyReasoning(%q) = %q, want %q", content, got, want)
		}
	}
}

func TestConversationTrackerAccumulatesPerSession(t *testing.T) {
	tracker := NewConversationTracker()
	tracker.Record("s1", "first turn")
	intent, pattern := tracker.Record("s1", "analyze the second turn")
	if intent != IntentAnalytical {
		t.Errorf("intent = %q, want %q", intent, IntentAnalytical)
	}
	if pattern == PatternInitial {
		t.Errorf("pattern should not still be initial after two turns")
	}
}
