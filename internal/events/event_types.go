package events

import (
	"time"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketUpdated          EventType = "ticket.updated"
	EventTicketAssigned         EventType = "ticket.assigned"
	EventAuditRecorded          EventType = "audit.recorded"
	EventNotificationCreated    EventType = "notification.created"
	EventVendorTicketResolved   EventType = "vendorTicket.resolved"
	EventVendorTicketCancelled  EventType = "vendorTicket.cancelled"
	EventExternalStatusPushed   EventType = "externalChannel.statusPushed"
	EventExternalStatusRejected EventType = "externalChannel.statusRejected"
)

// AllEventTypes lists every event the service publishes.
var AllEventTypes = []EventType{
	EventTicketUpdated,
	EventTicketAssigned,
	EventAuditRecorded,
	EventNotificationCreated,
	EventVendorTicketResolved,
	EventVendorTicketCancelled,
	EventExternalStatusPushed,
	EventExternalStatusRejected,
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string       `json:"id"`
	Type      EventType    `json:"type"`
	TicketID  string       `json:"ticket_id"`
	Actor     domain.Actor `json:"actor"`
	Timestamp time.Time    `json:"timestamp"`
	Payload   interface{}  `json:"payload"`
}

// TicketUpdatedPayload payload.
type TicketUpdatedPayload struct {
	TicketNumber string              `json:"ticket_number"`
	OldStatus    domain.TicketStatus `json:"old_status"`
	NewStatus    domain.TicketStatus `json:"new_status"`
	Fields       []domain.Field      `json:"fields"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	TicketNumber string  `json:"ticket_number"`
	AssigneeID   string  `json:"assignee_id"`
	PreviousID   *string `json:"previous_id,omitempty"`
}

// AuditRecordedPayload payload.
type AuditRecordedPayload struct {
	EffectID string             `json:"effect_id"`
	Action   domain.AuditAction `json:"action"`
}

// NotificationCreatedPayload payload.
type NotificationCreatedPayload struct {
	NotificationID string                  `json:"notification_id"`
	UserID         string                  `json:"user_id"`
	Kind           domain.NotificationType `json:"kind"`
}

// VendorTicketPayload payload.
type VendorTicketPayload struct {
	VendorTicketID     string                    `json:"vendor_ticket_id"`
	VendorName         string                    `json:"vendor_name"`
	VendorTicketNumber string                    `json:"vendor_ticket_number"`
	Status             domain.VendorTicketStatus `json:"status"`
}

// ExternalStatusPayload payload.
type ExternalStatusPayload struct {
	ExternalRef    string `json:"external_ref"`
	ExternalStatus string `json:"external_status"`
	Message        string `json:"message,omitempty"`
}
