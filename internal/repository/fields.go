package repository

// Collections in the document store.
const (
	CollectionTickets = "tickets"
	CollectionUsers   = "users"
)

// Stored field names. These are the wire names shared with whatever system
// creates tickets and users, so they must not change.
const (
	FieldTitle         = "title"
	FieldDescription   = "description"
	FieldStatus        = "status"
	FieldPriority      = "priority"
	FieldAssignedTo    = "assignedTo"
	FieldRelatedSkills = "relatedSkills"
	FieldSummary       = "summary"
	FieldCreatedAt     = "createdAt"
	FieldUpdatedAt     = "updatedAt"

	// FieldHelpfulNote is singular on stored tickets even though the
	// classifier emits helpfulNotes. Existing records use this name.
	FieldHelpfulNote = "helpfulNote"

	FieldEmail     = "email"
	FieldFirstName = "fname"
	FieldLastName  = "lname"
	FieldRole      = "role"
	FieldSkills    = "skills"
)
