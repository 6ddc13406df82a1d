package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/repository"
	apperrors "github.com/spec-kit/ticket-triage/pkg/util"
)

// UserService maintains the directory of assignable users.
type UserService struct {
	users  repository.UserRepository
	logger *zap.Logger
}

// UserDependencies bundles collaborators.
type UserDependencies struct {
	UserRepo repository.UserRepository
	Logger   *zap.Logger
}

// UserCreateInput describes a user to add. An empty ID gets a generated one.
type UserCreateInput struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Role      domain.UserRole
	Skills    []string
}

// NewUserService wires dependencies.
func NewUserService(deps UserDependencies) *UserService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: deps.UserRepo, logger: logger}
}

// CreateUser validates and stores a user. Skills are trimmed and blanks
// dropped; matching against ticket skills stays exact.
func (s *UserService) CreateUser(ctx context.Context, input UserCreateInput) (*domain.User, error) {
	role := domain.UserRole(strings.ToLower(strings.TrimSpace(string(input.Role))))
	if role == "" {
		role = domain.UserRoleUser
	}
	if !role.Valid() {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": input.Role})
	}
	email := strings.TrimSpace(input.Email)
	if email == "" {
		return nil, apperrors.NewValidationError("email required", nil)
	}

	id := strings.TrimSpace(input.ID)
	if id == "" {
		id = uuid.NewString()
	}
	skills := make([]string, 0, len(input.Skills))
	for _, skill := range input.Skills {
		if trimmed := strings.TrimSpace(skill); trimmed != "" {
			skills = append(skills, trimmed)
		}
	}

	user := &domain.User{
		ID:        id,
		Email:     email,
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		Role:      role,
		Skills:    skills,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("role", string(role)))
	return user, nil
}

// GetUser returns a stored user.
func (s *UserService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}
