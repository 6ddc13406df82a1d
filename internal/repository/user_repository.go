package repository

import (
	"context"
	"time"

	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/store"
	apperrors "github.com/spec-kit/ticket-triage/pkg/util"
)

// UserRepository reads assignable users. Lookups return a NOT_FOUND domain
// error when nothing matches.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	FirstModeratorWithSkills(ctx context.Context, skills []string) (*domain.User, error)
	FirstAdmin(ctx context.Context) (*domain.User, error)
}

type userRepository struct {
	docs store.DocumentStore
}

// NewUserRepository instantiates the repository.
func NewUserRepository(docs store.DocumentStore) UserRepository {
	return &userRepository{docs: docs}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	skills := user.Skills
	if skills == nil {
		skills = []string{}
	}
	return r.docs.Set(ctx, CollectionUsers, user.ID, map[string]any{
		FieldEmail:     user.Email,
		FieldFirstName: user.FirstName,
		FieldLastName:  user.LastName,
		FieldRole:      user.Role,
		FieldSkills:    skills,
		FieldCreatedAt: user.CreatedAt,
	})
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	doc, err := r.docs.Get(ctx, CollectionUsers, id)
	if err != nil {
		return nil, err
	}
	return userFromDocument(doc), nil
}

func (r *userRepository) FirstModeratorWithSkills(ctx context.Context, skills []string) (*domain.User, error) {
	q := store.Query{}.
		Where(FieldRole, string(domain.UserRoleModerator)).
		WhereAny(FieldSkills, skills).
		Take(1)
	return r.first(ctx, q, "moderator")
}

func (r *userRepository) FirstAdmin(ctx context.Context) (*domain.User, error) {
	q := store.Query{}.Where(FieldRole, string(domain.UserRoleAdmin)).Take(1)
	return r.first(ctx, q, "admin")
}

func (r *userRepository) first(ctx context.Context, q store.Query, resource string) (*domain.User, error) {
	docs, err := r.docs.Query(ctx, CollectionUsers, q)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, apperrors.NewNotFound(resource, nil)
	}
	return userFromDocument(docs[0]), nil
}

func userFromDocument(doc store.Document) *domain.User {
	return &domain.User{
		ID:        doc.ID,
		Email:     doc.String(FieldEmail),
		FirstName: doc.String(FieldFirstName),
		LastName:  doc.String(FieldLastName),
		Role:      domain.UserRole(doc.String(FieldRole)),
		Skills:    doc.Strings(FieldSkills),
		CreatedAt: doc.Time(FieldCreatedAt),
	}
}
