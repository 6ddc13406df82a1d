package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/events"
)

// Acknowledgement is what the ticket.created handler returns.
type Acknowledgement struct {
	Event events.Event `json:"event"`
	Body  string       `json:"body"`
}

// NotificationService acknowledges ticket lifecycle events.
type NotificationService struct {
	logger *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{logger: logger}
}

// AcknowledgeTicketCreated logs the event message and echoes it back.
func (n *NotificationService) AcknowledgeTicketCreated(_ context.Context, event events.Event) (*Acknowledgement, error) {
	var payload events.TicketCreatedPayload
	if err := event.Decode(&payload); err != nil {
		return nil, err
	}
	n.logger.Info("TicketCreated",
		zap.String("event_id", event.ID),
		zap.String("ticket_id", payload.TicketID),
		zap.String("message", payload.Message))
	return &Acknowledgement{Event: event, Body: payload.Message}, nil
}

// HandleTicketCreated is the ticket.created subscriber.
func (n *NotificationService) HandleTicketCreated(ctx context.Context, event events.Event) error {
	_, err := n.AcknowledgeTicketCreated(ctx, event)
	return err
}

// HandleTicketAssigned logs the outcome of a completed triage run.
func (n *NotificationService) HandleTicketAssigned(_ context.Context, event events.Event) error {
	var payload events.TicketAssignedPayload
	if err := event.Decode(&payload); err != nil {
		return err
	}
	n.logger.Info("TicketAssigned",
		zap.String("ticket_id", payload.TicketID),
		zap.String("assigned_to", payload.AssignedTo),
		zap.String("run_id", payload.RunID))
	return nil
}
