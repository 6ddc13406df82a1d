package repository

import (
	"context"
	"time"

	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/store"
)

// TicketRepository encapsulates ticket persistence. Every mutation is a set of
// explicit fields, so repeating a call with the same arguments is harmless.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	SetStatus(ctx context.Context, id string, status domain.TicketStatus) error
	ApplyClassification(ctx context.Context, id string, result domain.ClassificationResult) error
	Assign(ctx context.Context, id, userID string) error
}

type ticketRepository struct {
	docs store.DocumentStore
	now  func() time.Time
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(docs store.DocumentStore) TicketRepository {
	return &ticketRepository{docs: docs, now: time.Now}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	now := r.now().UTC()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	ticket.UpdatedAt = now
	if ticket.Status == "" {
		ticket.Status = domain.TicketStatusOpen
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.TicketPriorityMedium
	}
	skills := ticket.RelatedSkills
	if skills == nil {
		skills = []string{}
	}
	return r.docs.Set(ctx, CollectionTickets, ticket.ID, map[string]any{
		FieldTitle:         ticket.Title,
		FieldDescription:   ticket.Description,
		FieldStatus:        ticket.Status,
		FieldPriority:      ticket.Priority,
		FieldAssignedTo:    ticket.AssignedTo,
		FieldRelatedSkills: skills,
		FieldHelpfulNote:   ticket.HelpfulNotes,
		FieldSummary:       ticket.Summary,
		FieldCreatedAt:     ticket.CreatedAt,
		FieldUpdatedAt:     ticket.UpdatedAt,
	})
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	doc, err := r.docs.Get(ctx, CollectionTickets, id)
	if err != nil {
		return nil, err
	}
	return ticketFromDocument(doc), nil
}

func (r *ticketRepository) SetStatus(ctx context.Context, id string, status domain.TicketStatus) error {
	return r.docs.Update(ctx, CollectionTickets, id, map[string]any{
		FieldStatus:    status,
		FieldUpdatedAt: r.now().UTC(),
	})
}

func (r *ticketRepository) ApplyClassification(ctx context.Context, id string, result domain.ClassificationResult) error {
	skills := result.RelatedSkills
	if skills == nil {
		skills = []string{}
	}
	return r.docs.Update(ctx, CollectionTickets, id, map[string]any{
		FieldPriority:      domain.ParsePriority(string(result.Priority)),
		FieldHelpfulNote:   result.HelpfulNotes,
		FieldSummary:       result.Summary,
		FieldRelatedSkills: skills,
		FieldStatus:        domain.TicketStatusInProgress,
		FieldUpdatedAt:     r.now().UTC(),
	})
}

func (r *ticketRepository) Assign(ctx context.Context, id, userID string) error {
	return r.docs.Update(ctx, CollectionTickets, id, map[string]any{
		FieldAssignedTo: userID,
		FieldUpdatedAt:  r.now().UTC(),
	})
}

func ticketFromDocument(doc store.Document) *domain.Ticket {
	return &domain.Ticket{
		ID:            doc.ID,
		Title:         doc.String(FieldTitle),
		Description:   doc.String(FieldDescription),
		Status:        domain.TicketStatus(doc.String(FieldStatus)),
		Priority:      domain.ParsePriority(doc.String(FieldPriority)),
		AssignedTo:    doc.OptionalString(FieldAssignedTo),
		RelatedSkills: doc.Strings(FieldRelatedSkills),
		HelpfulNotes:  doc.String(FieldHelpfulNote),
		Summary:       doc.String(FieldSummary),
		CreatedAt:     doc.Time(FieldCreatedAt),
		UpdatedAt:     doc.Time(FieldUpdatedAt),
	}
}
