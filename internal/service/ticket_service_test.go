package service_test

import (
	"context"
	"testing"

	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/repository"
	"github.com/spec-kit/ticket-triage/internal/service"
	"github.com/spec-kit/ticket-triage/internal/store"
	apperrors "github.com/spec-kit/ticket-triage/pkg/util"
)

type closedDispatcher struct{ *recordingDispatcher }

func (closedDispatcher) Publish(context.Context, events.Event) error { return events.ErrClosed }

func TestCreateTicketPublishesTrigger(t *testing.T) {
	docs := store.NewMemory()
	dispatcher := &recordingDispatcher{}
	svc := service.NewTicketService(service.TicketDependencies{
		TicketRepo: repository.NewTicketRepository(docs),
		Dispatcher: dispatcher,
	})

	ticket, runID, err := svc.CreateTicket(context.Background(), service.TicketCreateInput{Title: " Login fails "})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ticket.Title != "Login fails" {
		t.Fatalf("title should be trimmed, got %q", ticket.Title)
	}
	if len(dispatcher.events) != 2 {
		t.Fatalf("expected two events, got %d", len(dispatcher.events))
	}
	var created events.TicketCreatedPayload
	if err := dispatcher.events[0].Decode(&created); err != nil || created.TicketID != ticket.ID || created.Message == "" {
		t.Fatalf("unexpected ticket.created payload %+v (%v)", created, err)
	}
	trigger := dispatcher.events[1]
	var payload events.OnTicketCreatePayload
	if err := trigger.Decode(&payload); err != nil || payload.TicketID != ticket.ID {
		t.Fatalf("unexpected on-ticket.create payload %+v (%v)", payload, err)
	}
	if runID != trigger.ID {
		t.Fatalf("run id %q should be the trigger id %q", runID, trigger.ID)
	}
}

func TestCreateTicketWithoutBus(t *testing.T) {
	docs := store.NewMemory()
	svc := service.NewTicketService(service.TicketDependencies{
		TicketRepo: repository.NewTicketRepository(docs),
		Dispatcher: closedDispatcher{&recordingDispatcher{}},
	})
	ticket, _, err := svc.CreateTicket(context.Background(), service.TicketCreateInput{Description: "500 on submit"})
	if !apperrors.IsTransient(err) {
		t.Fatalf("expected an unavailable error, got %v", err)
	}
	if ticket == nil {
		t.Fatalf("the stored ticket should still be returned")
	}
	if _, err := repository.NewTicketRepository(docs).GetByID(context.Background(), ticket.ID); err != nil {
		t.Fatalf("ticket should be stored: %v", err)
	}
}
