package domain_test

import (
	"testing"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

func snapshot(steps ...domain.StepOutcome) domain.WorkflowRun {
	return domain.WorkflowRun{ID: "run-1", Steps: steps}
}

func TestLastStepOnValue(t *testing.T) {
	if _, ok := snapshot().LastStep(); ok {
		t.Fatalf("empty run should have no last step")
	}
	last, ok := snapshot(
		domain.StepOutcome{Name: "fetch-ticket", Status: domain.StepSucceeded},
		domain.StepOutcome{Name: "classify", Status: domain.StepFailedTerminal},
	).LastStep()
	if !ok || last.Name != "classify" {
		t.Fatalf("unexpected last step %+v", last)
	}
}
