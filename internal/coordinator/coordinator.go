// Package coordinator implements the atomic multi-backend transaction
// coordinator: it drives a single logical write across the transactional,
// vector, graph, and cache backends, honoring a requested consistency
// level and rolling back already-applied participants on failure.
package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ltmc-engine/internal/errors"
	"ltmc-engine/internal/logging"
	"ltmc-engine/pkg/types"
)

// Participant is one backend's contribution to an atomic operation: Do
// applies the change, Compensate reverses it if a later participant fails.
type Participant struct {
	Role        types.BackendRole
	Do          func(ctx context.Context) error
	Compensate  func(ctx context.Context) error
	Required    bool // counted toward the STRONG/QUORUM success threshold; PRIMARY/EVENTUAL ignore it
}

// Config controls coordinator timeouts and default consistency behavior.
type Config struct {
	OperationTimeout time.Duration
	DefaultLevel     types.ConsistencyLevel
}

// DefaultConfig returns sane coordinator defaults.
func DefaultConfig() *Config {
	return &Config{
		OperationTimeout: 10 * time.Second,
		DefaultLevel:     types.ConsistencyQuorum,
	}
}

// Coordinator drives atomic operations across backend participants with
// per-document locking so concurrent writers to the same document serialize.
type Coordinator struct {
	cfg    *Config
	locks  *keyedMutex
}

// New creates a Coordinator.
func New(cfg *Config) *Coordinator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Coordinator{cfg: cfg, locks: newKeyedMutex()}
}

// participantResult captures one participant's outcome for compensation
// and for the quorum/strong vote.
type participantResult struct {
	role types.BackendRole
	err  error
}

// Execute runs participants against docID under the given consistency
// level. Primary and Eventual apply them one after another in the order
// given; Strong and Quorum run them concurrently, so no order among them
// is guaranteed. It returns a PartialFailure-kind error (under Quorum as
// well as Strong) if the level's durability threshold was not met, after
// compensating every participant that succeeded.
func (c *Coordinator) Execute(ctx context.Context, docID string, level types.ConsistencyLevel, participants []Participant) error {
	if level == "" {
		level = c.cfg.DefaultLevel
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.OperationTimeout)
	defer cancel()

	unlock := c.locks.lock(docID)
	defer unlock()

	switch level {
	case types.ConsistencyPrimary:
		return c.executePrimary(ctx, participants)
	case types.ConsistencyEventual:
		return c.executeEventual(ctx, participants)
	case types.ConsistencyStrong:
		return c.executeAllOrNothing(ctx, participants, len(requiredOf(participants)))
	case types.ConsistencyQuorum:
		required := requiredOf(participants)
		quorum := (len(required) / 2) + 1
		return c.executeAllOrNothing(ctx, participants, quorum)
	default:
		return errors.New(errors.KindValidation, "coordinator", "Execute",
			fmt.Errorf("unknown consistency level %q", level))
	}
}

// ExecuteMulti locks every docID in a deterministic (sorted) order before
// running participants, preventing deadlocks between concurrent
// multi-document operations that touch overlapping document sets.
func (c *Coordinator) ExecuteMulti(ctx context.Context, docIDs []string, level types.ConsistencyLevel, participants []Participant) error {
	sorted := append([]string(nil), docIDs...)
	sort.Strings(sorted)

	var unlocks []func()
	for _, id := range sorted {
		unlocks = append(unlocks, c.locks.lock(id))
	}
	defer func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.OperationTimeout)
	defer cancel()

	if level == "" {
		level = c.cfg.DefaultLevel
	}
	switch level {
	case types.ConsistencyPrimary:
		return c.executePrimary(ctx, participants)
	case types.ConsistencyEventual:
		return c.executeEventual(ctx, participants)
	case types.ConsistencyStrong:
		return c.executeAllOrNothing(ctx, participants, len(requiredOf(participants)))
	case types.ConsistencyQuorum:
		required := requiredOf(participants)
		quorum := (len(required) / 2) + 1
		return c.executeAllOrNothing(ctx, participants, quorum)
	default:
		return errors.New(errors.KindValidation, "coordinator", "ExecuteMulti",
			fmt.Errorf("unknown consistency level %q", level))
	}
}

func requiredOf(participants []Participant) []Participant {
	var out []Participant
	for _, p := range participants {
		if p.Required {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return participants
	}
	return out
}

// executePrimary runs every participant but only the first (primary
// transactional) participant's failure is fatal; the rest are logged and
// ignored, matching PRIMARY consistency's "durable once primary commits"
// contract.
func (c *Coordinator) executePrimary(ctx context.Context, participants []Participant) error {
	for i, p := range participants {
		if err := p.Do(ctx); err != nil {
			if i == 0 {
				return errors.New(errors.KindUnavailable, "coordinator", "executePrimary", err)
			}
			logging.Warn("secondary backend write failed under primary consistency",
				"role", string(p.role()), "error", err)
		}
	}
	return nil
}

// executeEventual runs the first (primary) participant synchronously and
// returns once it succeeds; the remaining participants then run one after
// another in a background goroutine whose failures are only logged.
func (c *Coordinator) executeEventual(ctx context.Context, participants []Participant) error {
	if len(participants) == 0 {
		return nil
	}
	if err := participants[0].Do(ctx); err != nil {
		return errors.New(errors.KindUnavailable, "coordinator", "executeEventual", err)
	}

	rest := participants[1:]
	go func() {
		bg := context.Background()
		for _, p := range rest {
			if err := p.Do(bg); err != nil {
				logging.Warn("eventual-consistency background write failed",
					"role", string(p.roleOrUnknown()), "error", err)
			}
		}
	}()
	return nil
}

// executeAllOrNothing runs every participant concurrently, waits for all
// to finish, and compensates everything that succeeded, in reverse
// participant order, if fewer than minSuccesses Required participants
// (every participant, when none is marked Required) reported success.
// A failed compensation is logged and the remaining ones still run.
func (c *Coordinator) executeAllOrNothing(ctx context.Context, participants []Participant, minSuccesses int) error {
	if len(participants) == 0 {
		return nil
	}

	results := make([]participantResult, len(participants))
	var wg sync.WaitGroup
	wg.Add(len(participants))
	for i, p := range participants {
		go func(i int, p Participant) {
			defer wg.Done()
			results[i] = participantResult{role: p.Role, err: p.Do(ctx)}
		}(i, p)
	}
	wg.Wait()

	voters := requiredOf(participants)
	countAll := len(voters) == len(participants)
	var succeeded, failed []int
	votes := 0
	for i, r := range results {
		if r.err != nil {
			failed = append(failed, i)
		} else {
			succeeded = append(succeeded, i)
			if countAll || participants[i].Required {
				votes++
			}
		}
	}

	if votes >= minSuccesses {
		return nil
	}

	var compErr error
	for j := len(succeeded) - 1; j >= 0; j-- {
		i := succeeded[j]
		if participants[i].Compensate == nil {
			continue
		}
		if err := participants[i].Compensate(ctx); err != nil {
			logging.Error("compensation failed after partial commit",
				"role", string(participants[i].Role), "error", err)
			if compErr == nil {
				compErr = err
			}
		}
	}
	if compErr != nil {
		return errors.New(errors.KindCompensationFailure, "coordinator", "executeAllOrNothing", compErr)
	}

	return errors.New(errors.KindPartialFailure, "coordinator", "executeAllOrNothing",
		fmt.Errorf("only %d/%d required backends succeeded (need %d), compensated", votes, len(voters), minSuccesses))
}

func (p Participant) roleOrUnknown() types.BackendRole {
	if p.Role == "" {
		return "unknown"
	}
	return p.Role
}

func (p Participant) role() types.BackendRole {
	return p.roleOrUnknown()
}

// keyedMutex provides one mutex per key, created on demand, so unrelated
// document IDs don't contend on a single global lock.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
