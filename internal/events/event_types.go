package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates supported event names.
type EventType string

const (
	// EventTicketCreated is acknowledged by the notification handler.
	EventTicketCreated EventType = "ticket.created"
	// EventOnTicketCreate starts a triage run.
	EventOnTicketCreate EventType = "on-ticket.create"
	// EventTicketAssigned is emitted after a completed triage run.
	EventTicketAssigned EventType = "ticket.assigned"
)

// Known reports whether t is an event this service handles or emits.
func (t EventType) Known() bool {
	switch t {
	case EventTicketCreated, EventOnTicketCreate, EventTicketAssigned:
		return true
	}
	return false
}

// Event is the envelope carried by every transport. ID doubles as the
// workflow run id, so redelivery of the same event replays its run.
type Event struct {
	ID        string          `json:"id"`
	Name      EventType       `json:"name"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent wraps payload in an envelope with a fresh id.
func NewEvent(name EventType, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", name, err)
	}
	return Event{
		ID:        uuid.NewString(),
		Name:      name,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the event data into v.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no data", e.ID)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Name, err)
	}
	return nil
}

// TicketCreatedPayload is the data of ticket.created.
type TicketCreatedPayload struct {
	TicketID string `json:"ticketId"`
	Message  string `json:"message,omitempty"`
}

// OnTicketCreatePayload is the data of on-ticket.create.
type OnTicketCreatePayload struct {
	TicketID string `json:"ticketId"`
}

// TicketAssignedPayload is the data of ticket.assigned.
type TicketAssignedPayload struct {
	TicketID   string `json:"ticketId"`
	AssignedTo string `json:"assignedTo"`
	RunID      string `json:"runId"`
}
