package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/repository"
	"github.com/spec-kit/ticket-triage/internal/service"
	"github.com/spec-kit/ticket-triage/internal/store"
)

func seedUsers(t *testing.T, docs store.DocumentStore, users ...*domain.User) {
	t.Helper()
	repo := repository.NewUserRepository(docs)
	for _, u := range users {
		if err := repo.Create(context.Background(), u); err != nil {
			t.Fatalf("seed %s: %v", u.ID, err)
		}
	}
}

func newAssigner(docs store.DocumentStore) *service.AssignmentService {
	return service.NewAssignmentService(service.AssignmentDependencies{UserRepo: repository.NewUserRepository(docs)})
}

func TestResolveWithoutSkillsDoesNotQuery(t *testing.T) {
	docs := store.NewMemory()
	seedUsers(t, docs, &domain.User{ID: "admin-1", Role: domain.UserRoleAdmin})
	queries := 0
	docs.Hook = func(op, collection, id string) error {
		if op == "query" {
			queries++
		}
		return nil
	}

	for _, skills := range [][]string{nil, {}, {" ", ""}} {
		_, err := newAssigner(docs).Resolve(context.Background(), skills)
		var ae *service.AssignmentError
		if !errors.As(err, &ae) || ae.Reason != service.ReasonNoSkills {
			t.Fatalf("skills %q: expected no-skills, got %v", skills, err)
		}
	}
	if queries != 0 {
		t.Fatalf("expected no store queries, got %d", queries)
	}
}

func TestResolvePrefersModerator(t *testing.T) {
	docs := store.NewMemory()
	seedUsers(t, docs,
		&domain.User{ID: "admin-1", Role: domain.UserRoleAdmin},
		&domain.User{ID: "user-1", Role: domain.UserRoleUser, Skills: []string{"Auth"}},
		&domain.User{ID: "mod-css", Role: domain.UserRoleModerator, Skills: []string{"CSS"}},
		&domain.User{ID: "mod-auth", Role: domain.UserRoleModerator, Skills: []string{"Go", "Auth"}},
		&domain.User{ID: "mod-auth-2", Role: domain.UserRoleModerator, Skills: []string{"Auth"}},
	)

	got, err := newAssigner(docs).Resolve(context.Background(), []string{"Auth", "Kubernetes"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != "mod-auth" {
		t.Fatalf("expected first matching moderator mod-auth, got %s", got.ID)
	}
}

func TestResolveFallsBackToAdmin(t *testing.T) {
	docs := store.NewMemory()
	seedUsers(t, docs,
		&domain.User{ID: "mod-css", Role: domain.UserRoleModerator, Skills: []string{"CSS"}},
		&domain.User{ID: "admin-1", Role: domain.UserRoleAdmin},
		&domain.User{ID: "admin-2", Role: domain.UserRoleAdmin},
	)
	got, err := newAssigner(docs).Resolve(context.Background(), []string{"Rust"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != "admin-1" {
		t.Fatalf("expected admin-1, got %s", got.ID)
	}
}

func TestResolveNoAssignee(t *testing.T) {
	docs := store.NewMemory()
	seedUsers(t, docs, &domain.User{ID: "user-1", Role: domain.UserRoleUser, Skills: []string{"Rust"}})
	_, err := newAssigner(docs).Resolve(context.Background(), []string{"Rust"})
	var ae *service.AssignmentError
	if !errors.As(err, &ae) || ae.Reason != service.ReasonNoAssigneeAvailable {
		t.Fatalf("expected no-assignee-available, got %v", err)
	}
}

func TestResolveSurfacesStoreErrors(t *testing.T) {
	docs := store.NewMemory()
	boom := errors.New("store down")
	docs.Hook = func(op, collection, id string) error { return boom }
	_, err := newAssigner(docs).Resolve(context.Background(), []string{"Go"})
	var ae *service.AssignmentError
	if errors.As(err, &ae) {
		t.Fatalf("store failures must not look like assignment failures: %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}
