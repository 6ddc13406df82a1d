package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/config"
	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/repository"
	"github.com/spec-kit/ticket-triage/internal/workflow"
	apperrors "github.com/spec-kit/ticket-triage/pkg/util"
)

// Step names, as they appear in logs and the journal.
const (
	StepFetchTicket           = "fetch-ticket"
	StepUpdateStatus          = "update-status"
	StepClassify              = "classify"
	StepPersistClassification = "persist-classification"
	StepAssign                = "assign"
)

// ErrMalformedTicket means the ticket has neither title nor description.
var ErrMalformedTicket = errors.New("ticket has no title and no description")

// Classifier is the classification collaborator of a triage run.
type Classifier interface {
	Classify(ctx context.Context, in TicketInput) (*domain.ClassificationResult, error)
}

// Assigner is the assignee resolution collaborator of a triage run.
type Assigner interface {
	Resolve(ctx context.Context, skills []string) (*domain.User, error)
}

// TriageRequest identifies one run. RunID is the triggering event's id.
type TriageRequest struct {
	RunID    string
	TicketID string
}

// TriageResult is what a completed run produced.
type TriageResult struct {
	RunID          string
	TicketID       string
	Classification *domain.ClassificationResult
	AssignedTo     string
	Run            domain.WorkflowRun
}

// TriageService runs the triage workflow for newly created tickets.
type TriageService struct {
	tickets    repository.TicketRepository
	classifier Classifier
	assigner   Assigner
	engine     *workflow.Engine
	dispatcher events.Dispatcher
	cfg        config.WorkflowConfig
	logger     *zap.Logger
}

// TriageDependencies bundles collaborators.
type TriageDependencies struct {
	TicketRepo repository.TicketRepository
	Classifier Classifier
	Assigner   Assigner
	Engine     *workflow.Engine
	Dispatcher events.Dispatcher
	Config     config.WorkflowConfig
	Logger     *zap.Logger
}

// NewTriageService creates the service.
func NewTriageService(deps TriageDependencies) *TriageService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	engine := deps.Engine
	if engine == nil {
		engine = workflow.NewEngine(workflow.Dependencies{Policy: workflow.PolicyFromConfig(deps.Config), Logger: logger})
	}
	return &TriageService{
		tickets:    deps.TicketRepo,
		classifier: deps.Classifier,
		assigner:   deps.Assigner,
		engine:     engine,
		dispatcher: deps.Dispatcher,
		cfg:        deps.Config,
		logger:     logger,
	}
}

type fetchedTicket struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Triage fetches the ticket, marks it in progress, classifies it, stores the
// classification and assigns it. Any failed step ends the run with a
// *workflow.RunError; writes made by earlier steps stay.
func (s *TriageService) Triage(ctx context.Context, req TriageRequest) (*TriageResult, error) {
	if strings.TrimSpace(req.TicketID) == "" {
		return nil, apperrors.NewValidationError("ticketId is required", nil)
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	run := s.engine.Start(ctx, req.RunID, req.TicketID)

	ticket, err := workflow.Step(ctx, run, StepFetchTicket, func(ctx context.Context) (fetchedTicket, error) {
		t, err := s.tickets.GetByID(ctx, req.TicketID)
		if err != nil {
			switch {
			case apperrors.IsNotFound(err):
				return fetchedTicket{}, workflow.NonRetriable(fmt.Errorf("ticket not found: %w", err))
			case apperrors.IsTransient(err):
				return fetchedTicket{}, err
			default:
				return fetchedTicket{}, workflow.NonRetriable(fmt.Errorf("ticket unreadable: %w", err))
			}
		}
		if strings.TrimSpace(t.Title) == "" && strings.TrimSpace(t.Description) == "" {
			return fetchedTicket{}, workflow.NonRetriable(ErrMalformedTicket)
		}
		return fetchedTicket{Title: t.Title, Description: t.Description}, nil
	})
	if err != nil {
		return nil, err
	}

	run.Advance(domain.RunStateUpdating)
	if _, err := workflow.Step(ctx, run, StepUpdateStatus, func(ctx context.Context) (bool, error) {
		return true, s.tickets.SetStatus(ctx, req.TicketID, domain.TicketStatusInProgress)
	}); err != nil {
		return nil, err
	}

	run.Advance(domain.RunStateClassifying)
	classification, err := workflow.Step(ctx, run, StepClassify, func(ctx context.Context) (*domain.ClassificationResult, error) {
		result, err := s.classifier.Classify(ctx, TicketInput{Title: ticket.Title, Description: ticket.Description})
		if err != nil {
			var ce *ClassificationError
			if errors.As(err, &ce) && !s.retryClassification(ce) {
				return nil, workflow.NonRetriable(err)
			}
			return nil, err
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}

	run.Advance(domain.RunStatePersisting)
	if _, err := workflow.Step(ctx, run, StepPersistClassification, func(ctx context.Context) (bool, error) {
		return true, s.tickets.ApplyClassification(ctx, req.TicketID, *classification)
	}); err != nil {
		return nil, err
	}

	run.Advance(domain.RunStateAssigning)
	assignee, err := workflow.Step(ctx, run, StepAssign, func(ctx context.Context) (string, error) {
		user, err := s.assigner.Resolve(ctx, classification.RelatedSkills)
		if err != nil {
			var ae *AssignmentError
			if errors.As(err, &ae) {
				return "", workflow.NonRetriable(err)
			}
			return "", err
		}
		if err := s.tickets.Assign(ctx, req.TicketID, user.ID); err != nil {
			return "", err
		}
		return user.ID, nil
	})
	if err != nil {
		return nil, err
	}

	run.Complete()
	if last, ok := run.Record().LastStep(); ok && !last.Replayed {
		s.publishAssigned(ctx, req, assignee)
	}

	return &TriageResult{
		RunID:          req.RunID,
		TicketID:       req.TicketID,
		Classification: classification,
		AssignedTo:     assignee,
		Run:            run.Record(),
	}, nil
}

func (s *TriageService) retryClassification(ce *ClassificationError) bool {
	if s.cfg.RetryClassification {
		return true
	}
	return s.cfg.RetryTransientModelErrors && ce.Transient()
}

func (s *TriageService) publishAssigned(ctx context.Context, req TriageRequest, assignee string) {
	if s.dispatcher == nil {
		return
	}
	event, err := events.NewEvent(events.EventTicketAssigned, events.TicketAssignedPayload{
		TicketID:   req.TicketID,
		AssignedTo: assignee,
		RunID:      req.RunID,
	})
	if err == nil {
		err = s.dispatcher.Publish(ctx, event)
	}
	if err != nil {
		s.logger.Warn("ticket.assigned not published", zap.String("ticket_id", req.TicketID), zap.Error(err))
	}
}

// HandleOnTicketCreate is the on-ticket.create subscriber. The event id is
// the run id.
func (s *TriageService) HandleOnTicketCreate(ctx context.Context, event events.Event) error {
	var payload events.OnTicketCreatePayload
	if err := event.Decode(&payload); err != nil {
		return err
	}
	result, err := s.Triage(ctx, TriageRequest{RunID: event.ID, TicketID: payload.TicketID})
	if err != nil {
		return err
	}
	s.logger.Info("ticket triaged",
		zap.String("run_id", result.RunID),
		zap.String("ticket_id", result.TicketID),
		zap.String("priority", string(result.Classification.Priority)),
		zap.String("assigned_to", result.AssignedTo))
	return nil
}
