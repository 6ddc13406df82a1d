package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-triage/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration. Nil handlers
// leave their routes unregistered.
type RouteConfig struct {
	Health  *handlers.HealthHandler
	Events  *handlers.EventsHandler
	Tickets *handlers.TicketsHandler
	Users   *handlers.UsersHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	if cfg.Health != nil {
		app.Get("/health/live", cfg.Health.Live)
		app.Get("/health/ready", cfg.Health.Ready)
	}

	if cfg.Events != nil {
		app.Post("/events", cfg.Events.Publish)
	}

	if cfg.Tickets != nil {
		tickets := app.Group("/tickets")
		tickets.Post("", cfg.Tickets.CreateTicket)
		tickets.Get("/:id", cfg.Tickets.GetTicket)
	}

	if cfg.Users != nil {
		users := app.Group("/users")
		users.Post("", cfg.Users.CreateUser)
		users.Get("/:id", cfg.Users.GetUser)
	}
}
