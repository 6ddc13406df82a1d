package domain

import (
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusClosed     TicketStatus = "closed"
)

// TicketPriority enumerates triage urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
)

// Valid reports whether p is one of the known priorities.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh:
		return true
	}
	return false
}

// ParsePriority normalizes a free-form priority. Anything outside the enum
// falls back to medium.
func ParsePriority(value string) TicketPriority {
	p := TicketPriority(strings.ToLower(strings.TrimSpace(value)))
	if p.Valid() {
		return p
	}
	return TicketPriorityMedium
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID            string
	Title         string
	Description   string
	Status        TicketStatus
	Priority      TicketPriority
	AssignedTo    *string
	RelatedSkills []string
	HelpfulNotes  string
	Summary       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ClassificationResult is what the classifier produces for one ticket. It is
// folded into the Ticket right away and never stored on its own.
type ClassificationResult struct {
	Summary       string         `json:"summary"`
	Priority      TicketPriority `json:"priority"`
	HelpfulNotes  string         `json:"helpfulNotes"`
	RelatedSkills []string       `json:"relatedSkills"`
}
