package worker

import (
	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/service"
)

// Register subscribes the triage and notification handlers. Nil services
// are skipped.
func Register(dispatcher events.Dispatcher, triage *service.TriageService, notifications *service.NotificationService) {
	if dispatcher == nil {
		return
	}
	if notifications != nil {
		dispatcher.Subscribe(events.EventTicketCreated, notifications.HandleTicketCreated)
		dispatcher.Subscribe(events.EventTicketAssigned, notifications.HandleTicketAssigned)
	}
	if triage != nil {
		dispatcher.Subscribe(events.EventOnTicketCreate, triage.HandleOnTicketCreate)
	}
}
