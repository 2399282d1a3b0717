// Package omnichannel pushes ticket status changes to the omnichannel platform
// that originally raised the ticket.
package omnichannel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk/internal/config"
	"github.com/spec-kit/servicedesk/internal/domain"
)

const statusPath = "/api/v1/ticket/status"

// releaseAgent returns an agent that never reached Bytes to the pool.
var releaseAgent = fiber.ReleaseAgent

var statusMap = map[domain.TicketStatus]string{
	domain.TicketStatusOpen:            "Open",
	domain.TicketStatusInProgress:      "InProgress",
	domain.TicketStatusApproved:        "InProgress",
	domain.TicketStatusPending:         "Pending",
	domain.TicketStatusPendingApproval: "Pending Approval",
	domain.TicketStatusPendingVendor:   "On Hold",
	domain.TicketStatusResolved:        "Close",
	domain.TicketStatusClosed:          "Close",
	domain.TicketStatusRejected:        "Close",
	domain.TicketStatusCancelled:       "Close",
}

// ExternalStatus maps an internal status to the platform vocabulary.
func ExternalStatus(status domain.TicketStatus) (string, bool) {
	s, ok := statusMap[status]
	return s, ok
}

// Result is the platform response to a status push.
type Result struct {
	Success        bool
	ExternalStatus string
	Message        string
	Code           int
}

type statusRequest struct {
	ExternalTicketID string `json:"sociomile_ticket_id"`
	TicketNumber     string `json:"bsg_ticket_id"`
	Status           string `json:"status"`
}

type statusResponse struct {
	Success *bool  `json:"success"`
	Status  *bool  `json:"status"`
	Message string `json:"message"`
}

// Client calls the platform status endpoint.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient builds a client from cfg.
func NewClient(cfg config.OmniConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		timeout: timeout,
		logger:  logger,
	}
}

// SyncStatus pushes newStatus for the ticket identified by externalRef.
// An unmapped status yields an unsuccessful result without a call.
// Transport failures are returned as errors; a reachable platform that
// rejects the update yields Success=false.
func (c *Client) SyncStatus(ctx context.Context, ticketNumber, externalRef string, newStatus domain.TicketStatus) (Result, error) {
	external, ok := ExternalStatus(newStatus)
	if !ok {
		return Result{Message: fmt.Sprintf("status %s has no omnichannel mapping", newStatus)}, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{ExternalStatus: external}, err
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	agent := fiber.Post(c.baseURL + statusPath)
	agent.QueryString("client_secret_key=" + url.QueryEscape(c.token))
	agent.JSON(statusRequest{
		ExternalTicketID: externalRef,
		TicketNumber:     ticketNumber,
		Status:           external,
	})
	agent.Timeout(timeout)
	if err := agent.Parse(); err != nil {
		releaseAgent(agent)
		return Result{ExternalStatus: external}, fmt.Errorf("omnichannel request: %w", err)
	}

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return Result{ExternalStatus: external}, fmt.Errorf("omnichannel status push: %w", errors.Join(errs...))
	}

	result := Result{ExternalStatus: external, Code: code}
	var resp statusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		result.Message = fmt.Sprintf("unreadable response (HTTP %d)", code)
		return result, nil
	}
	result.Message = resp.Message
	result.Success = code < 400 && ((resp.Success != nil && *resp.Success) || (resp.Status != nil && *resp.Status))

	c.logger.Debug("omnichannel status pushed",
		zap.String("ticket_number", ticketNumber),
		zap.String("external_ref", externalRef),
		zap.String("status", external),
		zap.Int("code", code),
		zap.Bool("success", result.Success),
	)
	return result, nil
}
