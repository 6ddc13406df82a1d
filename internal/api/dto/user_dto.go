package dto

import (
	"time"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// CreateUserRequest payload for directory entries.
type CreateUserRequest struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"fname"`
	LastName  string   `json:"lname"`
	Role      string   `json:"role"`
	Skills    []string `json:"skills"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID        string          `json:"id"`
	Email     string          `json:"email"`
	FirstName string          `json:"fname"`
	LastName  string          `json:"lname"`
	Role      domain.UserRole `json:"role"`
	Skills    []string        `json:"skills"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NewUserResponse maps a domain user.
func NewUserResponse(u *domain.User) UserResponse {
	skills := u.Skills
	if skills == nil {
		skills = []string{}
	}
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
		Skills:    skills,
		CreatedAt: u.CreatedAt,
	}
}
