package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-triage/internal/api/http"
	"github.com/spec-kit/ticket-triage/internal/api/http/handlers"
	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/llm"
	"github.com/spec-kit/ticket-triage/internal/observability"
	"github.com/spec-kit/ticket-triage/internal/persistence"
	"github.com/spec-kit/ticket-triage/internal/repository"
	"github.com/spec-kit/ticket-triage/internal/service"
	"github.com/spec-kit/ticket-triage/internal/store"
	"github.com/spec-kit/ticket-triage/internal/worker"
	"github.com/spec-kit/ticket-triage/internal/workflow"
)

type recordingDispatcher struct {
	mu        sync.Mutex
	published []events.Event
	err       error
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.published = append(d.published, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}
func (d *recordingDispatcher) Start(context.Context) error { return nil }
func (d *recordingDispatcher) Close() error                { return nil }

func (d *recordingDispatcher) sent() []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]events.Event{}, d.published...)
}

type downStore struct {
	store.DocumentStore
}

func (downStore) Ping(context.Context) error { return errors.New("store down") }

func newApp(docs store.DocumentStore, dispatcher events.Dispatcher) *fiber.App {
	app := fiber.New()
	httptransport.RegisterMiddlewares(app, zap.NewNop(), observability.NewMetrics(), 0)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler("ticket-triage", "test", docs, &persistence.Redis{}),
		Events: handlers.NewEventsHandler(dispatcher),
		Tickets: handlers.NewTicketsHandler(service.NewTicketService(service.TicketDependencies{
			TicketRepo: repository.NewTicketRepository(docs),
			Dispatcher: dispatcher,
		})),
		Users: handlers.NewUsersHandler(service.NewUserService(service.UserDependencies{
			UserRepo: repository.NewUserRepository(docs),
		})),
	})
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("%s %s: body %q is not JSON: %v", method, path, raw, err)
		}
	}
	return resp.StatusCode, decoded
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestPublishEventAccepted(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	app := newApp(store.NewMemory(), dispatcher)

	status, body := do(t, app, nethttp.MethodPost, "/events", `{"name":"on-ticket.create","data":{"ticketId":"T1"}}`)
	if status != fiber.StatusAccepted {
		t.Fatalf("expected 202, got %d (%v)", status, body)
	}
	published := dispatcher.sent()
	if len(published) != 1 {
		t.Fatalf("expected one published event, got %d", len(published))
	}
	if body["id"] != published[0].ID || published[0].Name != events.EventOnTicketCreate {
		t.Fatalf("response %v does not match published %+v", body, published[0])
	}

	status, _ = do(t, app, nethttp.MethodPost, "/events", `{"name":"ticket.created"}`)
	if status != fiber.StatusAccepted {
		t.Fatalf("events without data should be accepted, got %d", status)
	}
	if got := string(dispatcher.sent()[1].Data); got != "{}" {
		t.Fatalf("missing data should default to an empty object, got %s", got)
	}
}

func TestPublishEventRejected(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	app := newApp(store.NewMemory(), dispatcher)

	for name, body := range map[string]string{
		"unknown name":      `{"name":"ticket.deleted","data":{}}`,
		"missing ticket id": `{"name":"on-ticket.create","data":{}}`,
		"malformed body":    `{"name":`,
	} {
		status, resp := do(t, app, nethttp.MethodPost, "/events", body)
		if status != fiber.StatusBadRequest || errorCode(resp) != "VALIDATION_FAILED" {
			t.Fatalf("%s: expected 400 VALIDATION_FAILED, got %d %v", name, status, resp)
		}
	}
	if n := len(dispatcher.sent()); n != 0 {
		t.Fatalf("rejected events must not be published, got %d", n)
	}

	dispatcher.err = events.ErrClosed
	status, resp := do(t, app, nethttp.MethodPost, "/events", `{"name":"ticket.created","data":{}}`)
	if status != fiber.StatusServiceUnavailable || errorCode(resp) != "UNAVAILABLE" {
		t.Fatalf("closed dispatcher should give 503, got %d %v", status, resp)
	}
}

func TestHealth(t *testing.T) {
	app := newApp(store.NewMemory(), &recordingDispatcher{})
	if status, body := do(t, app, nethttp.MethodGet, "/health/live", ""); status != fiber.StatusOK || body["status"] != "alive" {
		t.Fatalf("live: %d %v", status, body)
	}
	status, body := do(t, app, nethttp.MethodGet, "/health/ready", "")
	if status != fiber.StatusOK {
		t.Fatalf("ready: %d %v", status, body)
	}
	deps, _ := body["dependencies"].(map[string]any)
	if _, probed := deps["redis"]; probed {
		t.Fatalf("disabled redis should not be probed: %v", deps)
	}

	down := newApp(downStore{store.NewMemory()}, &recordingDispatcher{})
	status, body = do(t, down, nethttp.MethodGet, "/health/ready", "")
	if status != fiber.StatusServiceUnavailable || errorCode(body) != "DEPENDENCY_UNAVAILABLE" {
		t.Fatalf("expected 503 when the store is down, got %d %v", status, body)
	}
}

func TestCreateTicketRequestsTriage(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	app := newApp(store.NewMemory(), dispatcher)

	status, body := do(t, app, nethttp.MethodPost, "/tickets", `{"title":"Login fails","description":"500 on submit"}`)
	if status != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d %v", status, body)
	}
	data, _ := body["data"].(map[string]any)
	id, _ := data["id"].(string)
	if id == "" || data["status"] != "open" || data["priority"] != "medium" {
		t.Fatalf("unexpected ticket %v", data)
	}

	published := dispatcher.sent()
	if len(published) != 2 || published[0].Name != events.EventTicketCreated || published[1].Name != events.EventOnTicketCreate {
		t.Fatalf("expected ticket.created then on-ticket.create, got %+v", published)
	}
	if body["runId"] != published[1].ID {
		t.Fatalf("runId %v should be the on-ticket.create id %s", body["runId"], published[1].ID)
	}

	status, body = do(t, app, nethttp.MethodGet, "/tickets/"+id, "")
	if status != fiber.StatusOK {
		t.Fatalf("get: %d %v", status, body)
	}

	status, body = do(t, app, nethttp.MethodPost, "/tickets", `{"title":"  "}`)
	if status != fiber.StatusBadRequest {
		t.Fatalf("blank ticket should be rejected, got %d %v", status, body)
	}
}

func TestNotFound(t *testing.T) {
	app := newApp(store.NewMemory(), &recordingDispatcher{})
	for _, path := range []string{"/tickets/missing", "/users/missing", "/nope"} {
		status, body := do(t, app, nethttp.MethodGet, path, "")
		if status != fiber.StatusNotFound || errorCode(body) != "NOT_FOUND" {
			t.Fatalf("%s: expected 404 NOT_FOUND, got %d %v", path, status, body)
		}
	}
}

func TestCreateUser(t *testing.T) {
	app := newApp(store.NewMemory(), &recordingDispatcher{})

	status, body := do(t, app, nethttp.MethodPost, "/users", `{"id":"mod-1","email":"m@example.com","role":"Moderator","skills":[" Auth ",""]}`)
	if status != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d %v", status, body)
	}
	status, body = do(t, app, nethttp.MethodGet, "/users/mod-1", "")
	data, _ := body["data"].(map[string]any)
	skills, _ := data["skills"].([]any)
	if status != fiber.StatusOK || data["role"] != "moderator" || len(skills) != 1 || skills[0] != "Auth" {
		t.Fatalf("unexpected user %d %v", status, body)
	}

	status, body = do(t, app, nethttp.MethodPost, "/users", `{"email":"x@example.com","role":"owner"}`)
	if status != fiber.StatusBadRequest {
		t.Fatalf("unknown role should be rejected, got %d %v", status, body)
	}
}

type scriptedModel struct{ reply string }

func (m scriptedModel) Generate(context.Context, llm.Request) (*llm.Response, error) {
	return &llm.Response{Model: "scripted", Outputs: []llm.Output{llm.PlainText(m.reply)}}, nil
}

func TestTicketIsTriagedThroughTheBus(t *testing.T) {
	docs := store.NewMemory()
	users := repository.NewUserRepository(docs)
	if err := users.Create(context.Background(), &domain.User{ID: "mod-1", Role: domain.UserRoleModerator, Skills: []string{"Auth"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	tickets := repository.NewTicketRepository(docs)
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop(), 2)

	triage := service.NewTriageService(service.TriageDependencies{
		TicketRepo: tickets,
		Classifier: service.NewClassifierService(service.ClassifierDependencies{
			Model: scriptedModel{reply: "```json\n{\"summary\":\"s\",\"priority\":\"high\",\"helpfulNotes\":\"n\",\"relatedSkills\":[\"Auth\"]}\n```"},
		}),
		Assigner:   service.NewAssignmentService(service.AssignmentDependencies{UserRepo: users}),
		Engine:     workflow.NewEngine(workflow.Dependencies{Policy: workflow.DefaultPolicy()}),
		Dispatcher: dispatcher,
	})
	worker.Register(dispatcher, triage, service.NewNotificationService(nil))
	app := newApp(docs, dispatcher)

	status, body := do(t, app, nethttp.MethodPost, "/tickets", `{"title":"Login fails","description":"500 on submit"}`)
	if status != fiber.StatusCreated {
		t.Fatalf("create: %d %v", status, body)
	}
	id := body["data"].(map[string]any)["id"].(string)

	if err := dispatcher.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	_, body = do(t, app, nethttp.MethodGet, "/tickets/"+id, "")
	data := body["data"].(map[string]any)
	if data["assignedTo"] != "mod-1" || data["priority"] != "high" || data["status"] != "in_progress" {
		t.Fatalf("ticket not triaged: %v", data)
	}
}
