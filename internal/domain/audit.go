package domain

import "time"

// AuditAction names the kind of change an audit record captures.
type AuditAction string

const (
	AuditActionCategoryReclassification AuditAction = "CATEGORY_RECLASSIFICATION"
	AuditActionStatusUpdate             AuditAction = "STATUS_UPDATE"
	AuditActionUpdateTicket             AuditAction = "UPDATE_TICKET"
)

// AuditRecord is an immutable audit trail entry.
type AuditRecord struct {
	ID        string
	EffectID  string
	UserID    string
	Action    AuditAction
	Entity    string
	EntityID  string
	OldValues map[string]any
	NewValues map[string]any
	CreatedAt time.Time
}

// NotificationType enumerates in-app notification kinds.
type NotificationType string

const (
	NotificationTicketAssigned NotificationType = "TICKET_ASSIGNED"
	NotificationTicketUpdated  NotificationType = "TICKET_UPDATED"
)

// Notification is an in-app inbox entry.
type Notification struct {
	ID        string
	UserID    string
	Type      NotificationType
	Title     string
	Message   string
	Data      map[string]any
	IsRead    bool
	CreatedAt time.Time
}
