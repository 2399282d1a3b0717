// Package lifecycle computes status transitions and the SLA bookkeeping that
// travels with them. Both functions are pure: they inspect the current ticket
// and return what should change, leaving persistence to the caller.
package lifecycle

import (
	"time"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// SideEffects are the timestamp and assignment writes triggered by a status change.
// Each one has its own predicate; several may fire for one transition.
type SideEffects struct {
	AutoAssignTo  *string
	ResolvedAt    *time.Time
	ClosedAt      *time.Time
	ClearClosedAt bool
	BeginSLAPause bool
	EndSLAPause   bool
}

// Transition is the outcome of a requested status change.
type Transition struct {
	OldStatus   domain.TicketStatus
	NewStatus   domain.TicketStatus
	SideEffects SideEffects
}

// Changed reports whether the status moves.
func (t Transition) Changed() bool { return t.OldStatus != t.NewStatus }

// ApplyTransition computes the new status and side effects for moving ticket to
// requested on behalf of actorID. Any target status is accepted; whether the
// actor may set status at all is decided by the access evaluator.
func ApplyTransition(ticket *domain.Ticket, requested domain.TicketStatus, actorID string, now time.Time) Transition {
	old := ticket.Status
	tr := Transition{OldStatus: old, NewStatus: requested}
	entering := func(s domain.TicketStatus) bool { return requested == s && old != s }
	leaving := func(s domain.TicketStatus) bool { return old == s && requested != s }

	if old != requested && requested.IsTerminal() && ticket.AssignedToID == nil && actorID != "" {
		assignee := actorID
		tr.SideEffects.AutoAssignTo = &assignee
	}
	if entering(domain.TicketStatusResolved) {
		at := now
		tr.SideEffects.ResolvedAt = &at
	}
	if leaving(domain.TicketStatusClosed) {
		tr.SideEffects.ClearClosedAt = true
	}
	if entering(domain.TicketStatusClosed) {
		at := now
		tr.SideEffects.ClosedAt = &at
	}
	if entering(domain.TicketStatusPendingVendor) {
		tr.SideEffects.BeginSLAPause = true
	}
	if leaving(domain.TicketStatusPendingVendor) {
		tr.SideEffects.EndSLAPause = true
	}
	return tr
}

// Apply writes the status, assignment and lifecycle timestamps onto ticket.
// SLA pause bookkeeping is left to the SLA patch.
func (t Transition) Apply(ticket *domain.Ticket) {
	ticket.Status = t.NewStatus
	fx := t.SideEffects
	if fx.AutoAssignTo != nil {
		assignee := *fx.AutoAssignTo
		ticket.AssignedToID = &assignee
	}
	if fx.ResolvedAt != nil {
		at := *fx.ResolvedAt
		ticket.ResolvedAt = &at
	}
	if fx.ClearClosedAt {
		ticket.ClosedAt = nil
	}
	if fx.ClosedAt != nil {
		at := *fx.ClosedAt
		ticket.ClosedAt = &at
	}
}
