package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-triage/internal/persistence"
	"github.com/spec-kit/ticket-triage/internal/store"
)

const readinessTimeout = 2 * time.Second

// probe checks one dependency for readiness.
type probe struct {
	name  string
	check func(context.Context) error
}

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	serviceName string
	version     string
	probes      []probe
}

// NewHealthHandler returns a new handler instance. Redis is only probed when
// a client is configured.
func NewHealthHandler(serviceName, version string, docs store.DocumentStore, redis *persistence.Redis) *HealthHandler {
	probes := []probe{{name: "store", check: docs.Ping}}
	if redis.Enabled() {
		probes = append(probes, probe{name: "redis", check: redis.Ping})
	}
	return &HealthHandler{serviceName: serviceName, version: version, probes: probes}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready runs every probe and answers 503 when any of them fails.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), readinessTimeout)
	defer cancel()

	depStatus := make(fiber.Map, len(h.probes))
	ready := true
	for _, p := range h.probes {
		if err := p.check(ctx); err != nil {
			depStatus[p.name] = err.Error()
			ready = false
			continue
		}
		depStatus[p.name] = "ok"
	}

	if !ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    "DEPENDENCY_UNAVAILABLE",
				"message": "one or more dependencies unavailable",
				"details": depStatus,
			},
		})
	}
	return c.JSON(fiber.Map{
		"status":       "ready",
		"dependencies": depStatus,
	})
}
