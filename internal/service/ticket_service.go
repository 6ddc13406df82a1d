package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/repository"
	apperrors "github.com/spec-kit/ticket-triage/pkg/util"
)

// TicketService stores new tickets and starts their triage.
type TicketService struct {
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// TicketDependencies bundles collaborators.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// TicketCreateInput is the user-supplied part of a ticket.
type TicketCreateInput struct {
	Title       string
	Description string
}

// NewTicketService wires dependencies.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// CreateTicket stores an open ticket, announces it with ticket.created and
// requests triage with on-ticket.create. The returned run id is the id of the
// on-ticket.create event.
func (s *TicketService) CreateTicket(ctx context.Context, input TicketCreateInput) (*domain.Ticket, string, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" && description == "" {
		return nil, "", apperrors.NewValidationError("title or description required", nil)
	}

	ticket := &domain.Ticket{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Status:      domain.TicketStatusOpen,
		Priority:    domain.TicketPriorityMedium,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, "", err
	}

	s.publish(ctx, events.EventTicketCreated, events.TicketCreatedPayload{
		TicketID: ticket.ID,
		Message:  fmt.Sprintf("Ticket created: %s", ticketLabel(ticket)),
	})

	trigger, err := events.NewEvent(events.EventOnTicketCreate, events.OnTicketCreatePayload{TicketID: ticket.ID})
	if err != nil {
		return nil, "", apperrors.NewInternalError(err)
	}
	if s.dispatcher != nil {
		if err := s.dispatcher.Publish(ctx, trigger); err != nil {
			s.logger.Error("triage not requested", zap.String("ticket_id", ticket.ID), zap.Error(err))
			return ticket, "", apperrors.NewUnavailable(err)
		}
	}
	return ticket, trigger.ID, nil
}

// GetTicket returns the stored ticket.
func (s *TicketService) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.NewValidationError("ticket id required", nil)
	}
	return s.tickets.GetByID(ctx, id)
}

func (s *TicketService) publish(ctx context.Context, name events.EventType, payload any) {
	if s.dispatcher == nil {
		return
	}
	event, err := events.NewEvent(name, payload)
	if err == nil {
		err = s.dispatcher.Publish(ctx, event)
	}
	if err != nil {
		s.logger.Warn("event not published", zap.String("event", string(name)), zap.Error(err))
	}
}

func ticketLabel(t *domain.Ticket) string {
	if t.Title != "" {
		return t.Title
	}
	return t.ID
}
