package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/repository"
	apperrors "github.com/spec-kit/ticket-triage/pkg/util"
)

// AssignmentReason says why no assignee was resolved.
type AssignmentReason string

const (
	ReasonNoSkills            AssignmentReason = "no-skills"
	ReasonNoAssigneeAvailable AssignmentReason = "no-assignee-available"
)

// AssignmentError means the ticket cannot be assigned.
type AssignmentError struct {
	Reason AssignmentReason
	Skills []string
}

func (e *AssignmentError) Error() string {
	if e.Reason == ReasonNoSkills {
		return "cannot assign ticket: no related skills"
	}
	return fmt.Sprintf("cannot assign ticket: no moderator with skills %v and no admin", e.Skills)
}

// AssignmentService picks the user a classified ticket goes to.
type AssignmentService struct {
	users  repository.UserRepository
	logger *zap.Logger
}

// AssignmentDependencies bundles repositories.
type AssignmentDependencies struct {
	UserRepo repository.UserRepository
	Logger   *zap.Logger
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{users: deps.UserRepo, logger: logger}
}

// Resolve returns the first moderator sharing a skill, else the first
// admin. It never writes.
func (s *AssignmentService) Resolve(ctx context.Context, skills []string) (*domain.User, error) {
	wanted := cleanSkills(skills)
	if len(wanted) == 0 {
		return nil, &AssignmentError{Reason: ReasonNoSkills}
	}

	moderator, err := s.users.FirstModeratorWithSkills(ctx, wanted)
	if err == nil {
		s.logger.Debug("resolved moderator", zap.String("user_id", moderator.ID), zap.Strings("skills", wanted))
		return moderator, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, fmt.Errorf("find moderator: %w", err)
	}

	admin, err := s.users.FirstAdmin(ctx)
	if err == nil {
		s.logger.Info("no matching moderator; falling back to admin",
			zap.String("user_id", admin.ID), zap.Strings("skills", wanted))
		return admin, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, fmt.Errorf("find admin: %w", err)
	}
	return nil, &AssignmentError{Reason: ReasonNoAssigneeAvailable, Skills: wanted}
}

func cleanSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
