package dto

import (
	"time"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// TicketResponse is the public view of a ticket.
type TicketResponse struct {
	ID            string                `json:"id"`
	Title         string                `json:"title"`
	Description   string                `json:"description"`
	Status        domain.TicketStatus   `json:"status"`
	Priority      domain.TicketPriority `json:"priority"`
	AssignedTo    *string               `json:"assignedTo"`
	RelatedSkills []string              `json:"relatedSkills"`
	HelpfulNotes  string                `json:"helpfulNotes"`
	Summary       string                `json:"summary"`
	CreatedAt     time.Time             `json:"createdAt"`
	UpdatedAt     time.Time             `json:"updatedAt"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	skills := t.RelatedSkills
	if skills == nil {
		skills = []string{}
	}
	return TicketResponse{
		ID:            t.ID,
		Title:         t.Title,
		Description:   t.Description,
		Status:        t.Status,
		Priority:      t.Priority,
		AssignedTo:    t.AssignedTo,
		RelatedSkills: skills,
		HelpfulNotes:  t.HelpfulNotes,
		Summary:       t.Summary,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}
