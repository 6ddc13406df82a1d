package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	apperrors "github.com/spec-kit/ticket-triage/pkg/util"
)

func backends(t *testing.T) map[string]DocumentStore {
	t.Helper()
	sqlite, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "docs", "triage.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]DocumentStore{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func TestDocumentStoreContract(t *testing.T) {
	for name, s := range backends(t) {
		s := s
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := s.Get(ctx, "tickets", "missing"); !apperrors.IsNotFound(err) {
				t.Fatalf("expected not found, got %v", err)
			}
			if err := s.Update(ctx, "tickets", "missing", map[string]any{"status": "open"}); !apperrors.IsNotFound(err) {
				t.Fatalf("update of missing doc should be not found, got %v", err)
			}

			err := s.Set(ctx, "tickets", "T1", map[string]any{
				"title":         "Login fails",
				"status":        "open",
				"relatedSkills": []string{},
			})
			if err != nil {
				t.Fatalf("set: %v", err)
			}
			if err := s.Update(ctx, "tickets", "T1", map[string]any{
				"status":        "in_progress",
				"relatedSkills": []string{"Auth"},
			}); err != nil {
				t.Fatalf("update: %v", err)
			}

			doc, err := s.Get(ctx, "tickets", "T1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if doc.String("title") != "Login fails" {
				t.Fatalf("update must keep untouched fields, got %v", doc.Fields)
			}
			if doc.String("status") != "in_progress" {
				t.Fatalf("status not updated: %v", doc.Fields)
			}
			if got := doc.Strings("relatedSkills"); !reflect.DeepEqual(got, []string{"Auth"}) {
				t.Fatalf("unexpected skills %v", got)
			}
		})
	}
}

func TestQueryFiltersAndOrder(t *testing.T) {
	for name, s := range backends(t) {
		s := s
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed := []struct {
				id     string
				role   string
				skills []string
			}{
				{"u-admin", "admin", nil},
				{"u-mod-go", "moderator", []string{"Go", "Postgres"}},
				{"u-mod-react", "moderator", []string{"React"}},
				{"u-mod-react-2", "moderator", []string{"React", "CSS"}},
				{"u-user", "user", []string{"React"}},
			}
			for _, u := range seed {
				skills := u.skills
				if skills == nil {
					skills = []string{}
				}
				if err := s.Set(ctx, "users", u.id, map[string]any{"role": u.role, "skills": skills}); err != nil {
					t.Fatalf("seed %s: %v", u.id, err)
				}
			}

			q := Query{}.Where("role", "moderator").WhereAny("skills", []string{"React", "Rust"})
			docs, err := s.Query(ctx, "users", q)
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if ids := docIDs(docs); !reflect.DeepEqual(ids, []string{"u-mod-react", "u-mod-react-2"}) {
				t.Fatalf("unexpected ids %v", ids)
			}

			docs, err = s.Query(ctx, "users", q.Take(1))
			if err != nil {
				t.Fatalf("query limit: %v", err)
			}
			if ids := docIDs(docs); !reflect.DeepEqual(ids, []string{"u-mod-react"}) {
				t.Fatalf("limit should keep first inserted, got %v", ids)
			}

			docs, err = s.Query(ctx, "users", Query{}.Where("role", "moderator").WhereAny("skills", []string{"Rust"}))
			if err != nil {
				t.Fatalf("query none: %v", err)
			}
			if len(docs) != 0 {
				t.Fatalf("expected no match, got %v", docIDs(docs))
			}

			docs, err = s.Query(ctx, "users", Query{}.Where("role", "admin").Take(1))
			if err != nil {
				t.Fatalf("query admin: %v", err)
			}
			if ids := docIDs(docs); !reflect.DeepEqual(ids, []string{"u-admin"}) {
				t.Fatalf("unexpected admin ids %v", ids)
			}
		})
	}
}

func TestMemoryHookInjectsFaults(t *testing.T) {
	m := NewMemory()
	boom := errors.New("boom")
	m.Hook = func(op, collection, id string) error {
		if op == "update" {
			return boom
		}
		return nil
	}
	ctx := context.Background()
	if err := m.Set(ctx, "tickets", "T1", map[string]any{"status": "open"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := m.Update(ctx, "tickets", "T1", map[string]any{"status": "closed"}); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
}

func TestBuildSelectPostgres(t *testing.T) {
	q := Query{}.Where("role", "moderator").WhereAny("skills", []string{"React"}).Take(1)
	sql, args, err := buildSelect(postgresDialect, "users", q)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, want := range []string{
		"FROM documents",
		"collection = $1",
		"data->>$2::text = $3::text",
		"data->$4::text ?| $5::text[]",
		"ORDER BY seq ASC",
		"LIMIT 1",
	} {
		if !strings.Contains(sql, want) {
			t.Fatalf("sql %q missing %q", sql, want)
		}
	}
	if len(args) != 5 {
		t.Fatalf("expected 5 args, got %d: %v", len(args), args)
	}
}

func TestBuildSelectRejectsBadFilter(t *testing.T) {
	q := Query{Filters: []Filter{{Field: "skills", Op: OpArrayContainsAny, Value: "React"}}}
	if _, _, err := buildSelect(sqliteDialect, "users", q); err == nil {
		t.Fatalf("expected error for non-slice value")
	}
}

func docIDs(docs []Document) []string {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids
}
