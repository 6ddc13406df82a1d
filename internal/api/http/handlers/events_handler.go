package handlers

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/ticket-triage/internal/api/dto"
	"github.com/spec-kit/ticket-triage/internal/events"
	apperrors "github.com/spec-kit/ticket-triage/pkg/util"
)

// EventsHandler accepts events from outside the process.
type EventsHandler struct {
	dispatcher events.Dispatcher
}

// NewEventsHandler constructs handler.
func NewEventsHandler(dispatcher events.Dispatcher) *EventsHandler {
	return &EventsHandler{dispatcher: dispatcher}
}

// Publish handles POST /events. Delivery is asynchronous; the response only
// carries the event id, which is also the triage run id.
func (h *EventsHandler) Publish(c *fiber.Ctx) error {
	var req dto.PublishEventRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	name := events.EventType(strings.TrimSpace(req.Name))
	if !name.Known() {
		return apperrors.NewValidationError("unknown event name", map[string]any{"name": req.Name})
	}

	data := req.Data
	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage(`{}`)
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Name:      name,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	if name == events.EventOnTicketCreate {
		var payload events.OnTicketCreatePayload
		if err := event.Decode(&payload); err != nil || strings.TrimSpace(payload.TicketID) == "" {
			return apperrors.NewValidationError("data.ticketId required", nil)
		}
	}

	if err := h.dispatcher.Publish(c.UserContext(), event); err != nil {
		return apperrors.NewUnavailable(err)
	}
	return c.Status(fiber.StatusAccepted).JSON(dto.PublishEventResponse{ID: event.ID})
}
