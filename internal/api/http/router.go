package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/servicedesk/internal/api/http/handlers"
	"github.com/spec-kit/servicedesk/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Metrics        fiber.Handler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", cfg.Metrics)
	}

	api := app.Group("/api", cfg.AuthMiddleware.Handle, auth.RequireRole())
	tickets := api.Group("/tickets")
	tickets.Patch("/by-number/:number", cfg.Tickets.UpdateTicketByNumber)
	tickets.Patch("/:id", cfg.Tickets.UpdateTicket)
}
