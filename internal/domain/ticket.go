package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen            TicketStatus = "OPEN"
	TicketStatusPending         TicketStatus = "PENDING"
	TicketStatusPendingApproval TicketStatus = "PENDING_APPROVAL"
	TicketStatusApproved        TicketStatus = "APPROVED"
	TicketStatusRejected        TicketStatus = "REJECTED"
	TicketStatusInProgress      TicketStatus = "IN_PROGRESS"
	TicketStatusPendingVendor   TicketStatus = "PENDING_VENDOR"
	TicketStatusResolved        TicketStatus = "RESOLVED"
	TicketStatusClosed          TicketStatus = "CLOSED"
	TicketStatusCancelled       TicketStatus = "CANCELLED"
)

var ticketStatuses = map[TicketStatus]struct{}{
	TicketStatusOpen: {}, TicketStatusPending: {}, TicketStatusPendingApproval: {},
	TicketStatusApproved: {}, TicketStatusRejected: {}, TicketStatusInProgress: {},
	TicketStatusPendingVendor: {}, TicketStatusResolved: {}, TicketStatusClosed: {},
	TicketStatusCancelled: {},
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	_, ok := ticketStatuses[s]
	return ok
}

// IsTerminal reports whether entering s finishes work on the ticket.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusResolved || s == TicketStatusClosed || s == TicketStatusCancelled
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "LOW"
	TicketPriorityMedium   TicketPriority = "MEDIUM"
	TicketPriorityHigh     TicketPriority = "HIGH"
	TicketPriorityUrgent   TicketPriority = "URGENT"
	TicketPriorityCritical TicketPriority = "CRITICAL"
)

// PriorityLadder orders priorities from lowest to highest.
var PriorityLadder = []TicketPriority{
	TicketPriorityLow,
	TicketPriorityMedium,
	TicketPriorityHigh,
	TicketPriorityUrgent,
	TicketPriorityCritical,
}

// Rank returns the position of p on the ladder, or -1 when unknown.
func (p TicketPriority) Rank() int {
	for i, candidate := range PriorityLadder {
		if candidate == p {
			return i
		}
	}
	return -1
}

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool { return p.Rank() >= 0 }

// TicketCategory is the ITIL record type of a ticket.
type TicketCategory string

const (
	CategoryIncident       TicketCategory = "INCIDENT"
	CategoryServiceRequest TicketCategory = "SERVICE_REQUEST"
	CategoryChangeRequest  TicketCategory = "CHANGE_REQUEST"
	CategoryEventRequest   TicketCategory = "EVENT_REQUEST"
)

var categoryLabels = map[TicketCategory]string{
	CategoryIncident:       "Insiden",
	CategoryServiceRequest: "Permintaan Layanan",
	CategoryChangeRequest:  "Permintaan Perubahan",
	CategoryEventRequest:   "Permintaan Event",
}

// Valid reports whether c is a known category.
func (c TicketCategory) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label renders the category the way requesters see it.
func (c TicketCategory) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

// IssueClassification records the root-cause family of an incident.
type IssueClassification string

const (
	ClassificationHumanError       IssueClassification = "HUMAN_ERROR"
	ClassificationSystemError      IssueClassification = "SYSTEM_ERROR"
	ClassificationHardwareFailure  IssueClassification = "HARDWARE_FAILURE"
	ClassificationNetworkIssue     IssueClassification = "NETWORK_ISSUE"
	ClassificationSecurityIncident IssueClassification = "SECURITY_INCIDENT"
	ClassificationDataIssue        IssueClassification = "DATA_ISSUE"
	ClassificationProcessGap       IssueClassification = "PROCESS_GAP"
	ClassificationExternalFactor   IssueClassification = "EXTERNAL_FACTOR"
)

// Valid reports whether c is a known classification.
func (c IssueClassification) Valid() bool {
	switch c {
	case ClassificationHumanError, ClassificationSystemError, ClassificationHardwareFailure,
		ClassificationNetworkIssue, ClassificationSecurityIncident, ClassificationDataIssue,
		ClassificationProcessGap, ClassificationExternalFactor:
		return true
	}
	return false
}

// Ticket is the aggregate for service-desk requests.
type Ticket struct {
	ID                  string               `json:"id"`
	TicketNumber        string               `json:"ticketNumber"`
	Title               string               `json:"title"`
	Description         string               `json:"description"`
	Status              TicketStatus         `json:"status"`
	Priority            TicketPriority       `json:"priority"`
	Justification       string               `json:"justification"`
	Category            TicketCategory       `json:"category"`
	IssueClassification *IssueClassification `json:"issueClassification,omitempty"`
	RootCause           string               `json:"rootCause"`
	ResolutionNotes     string               `json:"resolutionNotes"`
	EstimatedHours      *float64             `json:"estimatedHours,omitempty"`
	ActualHours         *float64             `json:"actualHours,omitempty"`
	BranchID            string               `json:"branchId"`
	CreatedByID         string               `json:"createdById"`
	AssignedToID        *string              `json:"assignedToId,omitempty"`
	ServiceID           string               `json:"serviceId"`
	SupportGroupID      *string              `json:"supportGroupId,omitempty"`
	IsConfidential      bool                 `json:"isConfidential"`
	ExternalRef         *string              `json:"externalRef,omitempty"`
	CreatedAt           time.Time            `json:"createdAt"`
	UpdatedAt           time.Time            `json:"updatedAt"`
	ResolvedAt          *time.Time           `json:"resolvedAt,omitempty"`
	ClosedAt            *time.Time           `json:"closedAt,omitempty"`
	SLAPausedAt         *time.Time           `json:"slaPausedAt,omitempty"`
	SLAPausedTotal      time.Duration        `json:"slaPausedTotal"`
	Version             int64                `json:"version"`
}

// Clone returns a deep copy so callers can diff before/after states.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	cp := *t
	cp.IssueClassification = clonePtr(t.IssueClassification)
	cp.EstimatedHours = clonePtr(t.EstimatedHours)
	cp.ActualHours = clonePtr(t.ActualHours)
	cp.AssignedToID = clonePtr(t.AssignedToID)
	cp.SupportGroupID = clonePtr(t.SupportGroupID)
	cp.ExternalRef = clonePtr(t.ExternalRef)
	cp.ResolvedAt = clonePtr(t.ResolvedAt)
	cp.ClosedAt = clonePtr(t.ClosedAt)
	cp.SLAPausedAt = clonePtr(t.SLAPausedAt)
	return &cp
}

// IsAssignedTo reports whether the ticket is assigned to userID.
func (t *Ticket) IsAssignedTo(userID string) bool {
	return t.AssignedToID != nil && *t.AssignedToID == userID
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
