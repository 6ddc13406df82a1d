package domain

import "time"

// RunState is the position of a triage run in its state machine.
type RunState string

const (
	RunStateFetching    RunState = "fetching"
	RunStateUpdating    RunState = "updating"
	RunStateClassifying RunState = "classifying"
	RunStatePersisting  RunState = "persisting"
	RunStateAssigning   RunState = "assigning"
	RunStateCompleted   RunState = "completed"
	RunStateFailed      RunState = "failed"
)

// Terminal reports whether no further steps will run.
func (s RunState) Terminal() bool {
	return s == RunStateCompleted || s == RunStateFailed
}

// StepStatus is the outcome of a single step attempt sequence.
type StepStatus string

const (
	StepSucceeded       StepStatus = "succeeded"
	StepFailedRetriable StepStatus = "failed_retriable"
	StepFailedTerminal  StepStatus = "failed_terminal"
)

// StepOutcome records one named step of a run.
type StepOutcome struct {
	Name     string
	Status   StepStatus
	Attempts int
	Replayed bool
	Error    string
}

// WorkflowRun is the in-memory record of one triage execution.
type WorkflowRun struct {
	ID         string
	TicketID   string
	State      RunState
	Steps      []StepOutcome
	StartedAt  time.Time
	FinishedAt *time.Time
}

// LastStep returns the most recent outcome, if any.
func (r WorkflowRun) LastStep() (StepOutcome, bool) {
	if len(r.Steps) == 0 {
		return StepOutcome{}, false
	}
	return r.Steps[len(r.Steps)-1], true
}
