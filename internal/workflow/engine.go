// Package workflow runs named, durable steps with bounded retry.
//
// A Run groups the steps of one execution. Step executes a function under
// the engine's retry policy and journals its JSON-encoded result; when the
// same run id is started again, steps already in the journal return the
// stored result without running.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/config"
	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/observability"
)

// DefaultMaxRetries is the number of re-attempts after a failed first try.
const DefaultMaxRetries = 3

// Policy bounds retries for every step of a run.
type Policy struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultPolicy retries three times, waiting 1s, 2s and 4s.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: DefaultMaxRetries, BaseBackoff: time.Second, MaxBackoff: 30 * time.Second}
}

// PolicyFromConfig reads the retry policy from configuration.
func PolicyFromConfig(cfg config.WorkflowConfig) Policy {
	return Policy{
		MaxRetries:  cfg.MaxRetries,
		BaseBackoff: cfg.BaseBackoff,
		MaxBackoff:  cfg.MaxBackoff,
	}
}

// Backoff returns the wait before the given retry (1-based):
// BaseBackoff * 2^(retry-1), capped at MaxBackoff.
func (p Policy) Backoff(retry int) time.Duration {
	if p.BaseBackoff <= 0 || retry < 1 {
		return 0
	}
	d := p.BaseBackoff
	for i := 1; i < retry; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// Dependencies wires an Engine.
type Dependencies struct {
	Journal Journal
	Policy  Policy
	Logger  *zap.Logger
	Metrics *observability.Metrics
	// After replaces time.After in tests.
	After func(time.Duration) <-chan time.Time
}

// Engine starts runs and executes their steps.
type Engine struct {
	journal Journal
	policy  Policy
	logger  *zap.Logger
	metrics *observability.Metrics
	after   func(time.Duration) <-chan time.Time
}

// NewEngine builds an Engine; a nil journal means an in-memory one.
func NewEngine(deps Dependencies) *Engine {
	e := &Engine{
		journal: deps.Journal,
		policy:  deps.Policy,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		after:   deps.After,
	}
	if e.journal == nil {
		e.journal = NewMemoryJournal(DefaultJournalTTL)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.after == nil {
		e.after = time.After
	}
	if e.policy.MaxRetries < 0 {
		e.policy.MaxRetries = 0
	}
	return e
}

// Run is one execution of a workflow for a ticket.
type Run struct {
	engine *Engine
	logger *zap.Logger

	mu     sync.Mutex
	record domain.WorkflowRun
}

// Start opens a run. Reusing a run id replays journaled steps.
func (e *Engine) Start(ctx context.Context, runID, ticketID string) *Run {
	r := &Run{
		engine: e,
		logger: e.logger.With(observability.RunFields(runID, ticketID)...),
		record: domain.WorkflowRun{
			ID:        runID,
			TicketID:  ticketID,
			State:     domain.RunStateFetching,
			StartedAt: time.Now().UTC(),
		},
	}
	r.logger.Info("workflow run started")
	return r
}

// ID returns the run id.
func (r *Run) ID() string { return r.record.ID }

// TicketID returns the ticket the run works on.
func (r *Run) TicketID() string { return r.record.TicketID }

// Advance moves a live run to state. Terminal runs are left untouched.
func (r *Run) Advance(state domain.RunState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.record.State.Terminal() {
		return
	}
	r.record.State = state
}

// Complete marks the run completed.
func (r *Run) Complete() {
	if r.finish(domain.RunStateCompleted) {
		r.logger.Info("workflow run completed", zap.Int("steps", len(r.Record().Steps)))
	}
}

// Record returns a copy of the run record.
func (r *Run) Record() domain.WorkflowRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.record
	out.Steps = append([]domain.StepOutcome(nil), r.record.Steps...)
	return out
}

func (r *Run) finish(state domain.RunState) bool {
	r.mu.Lock()
	if r.record.State.Terminal() {
		r.mu.Unlock()
		return false
	}
	now := time.Now().UTC()
	r.record.State = state
	r.record.FinishedAt = &now
	r.mu.Unlock()

	r.engine.metrics.RecordRun(string(state))
	return true
}

func (r *Run) appendOutcome(o domain.StepOutcome) {
	r.mu.Lock()
	r.record.Steps = append(r.record.Steps, o)
	r.mu.Unlock()
	r.engine.metrics.RecordStep(o.Name, string(o.Status))
}

// Step runs fn as the named step of run. A journaled result for the same
// run id and step name is returned without calling fn. Failures are retried
// up to the policy's MaxRetries with exponential backoff unless marked with
// NonRetriable; the final failure fails the run and is returned as a
// *RunError.
func Step[T any](ctx context.Context, run *Run, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	e := run.engine
	logger := run.logger.With(zap.String("step", name))

	if out, ok := replay[T](ctx, run, name, logger); ok {
		return out, nil
	}

	for attempt := 1; ; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			if encoded, encErr := json.Marshal(out); encErr != nil {
				logger.Warn("step result not journaled", zap.Error(encErr))
			} else if saveErr := e.journal.Save(ctx, run.ID(), name, encoded); saveErr != nil {
				logger.Warn("step result not journaled", zap.Error(saveErr))
			}
			run.appendOutcome(domain.StepOutcome{Name: name, Status: domain.StepSucceeded, Attempts: attempt})
			logger.Debug("step succeeded", zap.Int("attempt", attempt))
			return out, nil
		}

		terminal := IsNonRetriable(err) || attempt > e.policy.MaxRetries
		if !terminal {
			logger.Warn("step failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
			e.metrics.RecordStep(name, string(domain.StepFailedRetriable))
			if waitErr := e.wait(ctx, e.policy.Backoff(attempt)); waitErr != nil {
				err = fmt.Errorf("%w (retry wait aborted: %w)", err, waitErr)
				terminal = true
			}
		}
		if terminal {
			run.appendOutcome(domain.StepOutcome{
				Name:     name,
				Status:   domain.StepFailedTerminal,
				Attempts: attempt,
				Error:    err.Error(),
			})
			run.finish(domain.RunStateFailed)
			logger.Error("workflow step failed", zap.Int("attempt", attempt), zap.Error(err))
			return zero, &RunError{RunID: run.ID(), TicketID: run.TicketID(), Step: name, Cause: err}
		}
	}
}

func replay[T any](ctx context.Context, run *Run, name string, logger *zap.Logger) (T, bool) {
	var out T
	stored, ok, err := run.engine.journal.Load(ctx, run.ID(), name)
	if err != nil {
		logger.Warn("journal load failed; executing step", zap.Error(err))
		return out, false
	}
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(stored, &out); err != nil {
		logger.Warn("journaled result unreadable; executing step", zap.Error(err))
		return out, false
	}
	run.appendOutcome(domain.StepOutcome{Name: name, Status: domain.StepSucceeded, Replayed: true})
	logger.Info("step replayed from journal")
	return out, true
}

func (e *Engine) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.after(d):
		return nil
	}
}

// RunError is the single error a failed run surfaces.
type RunError struct {
	RunID    string
	TicketID string
	Step     string
	Cause    error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("workflow run %s (ticket %s) failed at step %s: %v", e.RunID, e.TicketID, e.Step, e.Cause)
}

func (e *RunError) Unwrap() error { return e.Cause }

type nonRetriable struct{ err error }

func (e *nonRetriable) Error() string { return e.err.Error() }
func (e *nonRetriable) Unwrap() error { return e.err }

// NonRetriable marks err so Step fails immediately instead of retrying.
func NonRetriable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetriable{err: err}
}

// IsNonRetriable reports whether err was marked with NonRetriable.
func IsNonRetriable(err error) bool {
	var nr *nonRetriable
	return errors.As(err, &nr)
}
