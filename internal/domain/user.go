package domain

import "time"

// UserRole enumerates account roles.
type UserRole string

const (
	UserRoleAdmin     UserRole = "admin"
	UserRoleModerator UserRole = "moderator"
	UserRoleUser      UserRole = "user"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleAdmin, UserRoleModerator, UserRoleUser:
		return true
	}
	return false
}

// User is an account that may receive ticket assignments. Triage only reads users.
type User struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Role      UserRole
	Skills    []string
	CreatedAt time.Time
}

// HasSkill reports whether the user lists skill, compared exactly.
func (u User) HasSkill(skill string) bool {
	for _, s := range u.Skills {
		if s == skill {
			return true
		}
	}
	return false
}
