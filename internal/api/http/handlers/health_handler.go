package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const readinessTimeout = 2 * time.Second

// Pinger is a dependency probed by the readiness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependency is one readiness probe. A failing optional dependency degrades
// the report without failing it.
type Dependency struct {
	Name     string
	Probe    Pinger
	Optional bool
}

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	serviceName string
	version     string
	deps        []Dependency
}

// NewHealthHandler returns a handler probing deps in order. Nil probes are skipped.
func NewHealthHandler(serviceName, version string, deps ...Dependency) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, version: version, deps: deps}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready probes every dependency and answers 503 when a required one is down.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
	defer cancel()

	report := fiber.Map{}
	status := "ready"
	for _, dep := range h.deps {
		if dep.Probe == nil {
			continue
		}
		err := dep.Probe.Ping(ctx)
		switch {
		case err == nil:
			report[dep.Name] = "ok"
		case dep.Optional:
			report[dep.Name] = err.Error()
			if status == "ready" {
				status = "degraded"
			}
		default:
			report[dep.Name] = err.Error()
			status = "unavailable"
		}
	}

	if status == "unavailable" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    "DEPENDENCY_UNAVAILABLE",
				"message": "one or more dependencies unavailable",
				"details": report,
			},
		})
	}
	return c.JSON(fiber.Map{
		"status":       status,
		"dependencies": report,
	})
}
