package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/servicedesk/internal/api/dto"
	"github.com/spec-kit/servicedesk/internal/auth"
	"github.com/spec-kit/servicedesk/internal/domain"
	"github.com/spec-kit/servicedesk/internal/service"
	apperrors "github.com/spec-kit/servicedesk/pkg/util"
)

// TicketUpdater applies ticket mutations.
type TicketUpdater interface {
	UpdateTicket(ctx context.Context, actor domain.Actor, id string, input service.UpdateTicketInput) (*service.UpdateResult, error)
	UpdateTicketByNumber(ctx context.Context, actor domain.Actor, number string, input service.UpdateTicketInput) (*service.UpdateResult, error)
}

// TicketsHandler manages ticket mutation endpoints.
type TicketsHandler struct {
	service TicketUpdater
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService TicketUpdater) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// UpdateTicket PATCH /api/tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	actor, input, err := parseUpdate(c)
	if err != nil {
		return err
	}
	res, err := h.service.UpdateTicket(c.UserContext(), actor, c.Params("id"), input)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTicketUpdateResponse(res))
}

// UpdateTicketByNumber PATCH /api/tickets/by-number/:number.
func (h *TicketsHandler) UpdateTicketByNumber(c *fiber.Ctx) error {
	actor, input, err := parseUpdate(c)
	if err != nil {
		return err
	}
	res, err := h.service.UpdateTicketByNumber(c.UserContext(), actor, c.Params("number"), input)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTicketUpdateResponse(res))
}

func parseUpdate(c *fiber.Ctx) (domain.Actor, service.UpdateTicketInput, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return domain.Actor{}, service.UpdateTicketInput{}, apperrors.NewUnauthorized("authentication required")
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.Actor{}, service.UpdateTicketInput{}, apperrors.NewValidationError("invalid payload", nil)
	}
	return principal.Actor, req.ToInput(), nil
}
