package lifecycle

import (
	"time"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// SLAPatch lists the SLA writes for one transition. Zero values mean "leave as is".
type SLAPatch struct {
	PauseStartedAt *time.Time
	PauseEnded     bool
	PausedWindow   time.Duration

	ResponseTime       *time.Time
	ResponseBreached   bool
	ResolutionTime     *time.Time
	ResolutionBreached bool
	Escalate           bool
}

// Empty reports whether the patch writes nothing.
func (p SLAPatch) Empty() bool {
	return p.PauseStartedAt == nil && !p.PauseEnded && p.ResponseTime == nil &&
		p.ResolutionTime == nil && !p.Escalate
}

// UpdateSLA computes the SLA writes for moving ticket from oldStatus to newStatus.
// Every write is guarded so re-processing the same transition is a no-op.
//
// Response and resolution deadlines are compared after shifting them by the
// time the ticket spent waiting on a vendor, including a window closed by this
// very transition. The escalation deadline is a fixed wall-clock threshold.
// tracking may be nil when no SLA row exists; only pause bookkeeping applies then.
func UpdateSLA(ticket *domain.Ticket, tracking *domain.SLATracking, oldStatus, newStatus domain.TicketStatus, now time.Time) SLAPatch {
	var patch SLAPatch
	if oldStatus == newStatus {
		return patch
	}

	pausedTotal := ticket.SLAPausedTotal
	if oldStatus == domain.TicketStatusPendingVendor && ticket.SLAPausedAt != nil {
		window := now.Sub(*ticket.SLAPausedAt)
		if window < 0 {
			window = 0
		}
		patch.PauseEnded = true
		patch.PausedWindow = window
		pausedTotal += window
	}
	if newStatus == domain.TicketStatusPendingVendor && ticket.SLAPausedAt == nil {
		at := now
		patch.PauseStartedAt = &at
	}

	if tracking == nil {
		return patch
	}

	passed := func(deadline time.Time, shift time.Duration) bool {
		if deadline.IsZero() {
			return false
		}
		return now.After(deadline.Add(shift))
	}
	breached := func(deadline time.Time) bool { return passed(deadline, pausedTotal) }

	if newStatus == domain.TicketStatusInProgress && tracking.ResponseTime == nil {
		at := now
		patch.ResponseTime = &at
		patch.ResponseBreached = breached(tracking.ResponseDeadline)
	}
	if newStatus == domain.TicketStatusResolved && tracking.ResolutionTime == nil {
		at := now
		patch.ResolutionTime = &at
		patch.ResolutionBreached = breached(tracking.ResolutionDeadline)
	}
	if !tracking.IsEscalated && passed(tracking.EscalationDeadline, 0) {
		patch.Escalate = true
	}
	return patch
}

// Apply writes the patch onto the ticket pause fields and the tracking row.
func (p SLAPatch) Apply(ticket *domain.Ticket, tracking *domain.SLATracking) {
	if p.PauseEnded && ticket.SLAPausedAt != nil {
		ticket.SLAPausedTotal += p.PausedWindow
		ticket.SLAPausedAt = nil
	}
	if p.PauseStartedAt != nil && ticket.SLAPausedAt == nil {
		at := *p.PauseStartedAt
		ticket.SLAPausedAt = &at
	}
	if tracking == nil {
		return
	}
	if p.ResponseTime != nil && tracking.ResponseTime == nil {
		at := *p.ResponseTime
		tracking.ResponseTime = &at
		tracking.IsResponseBreached = p.ResponseBreached
	}
	if p.ResolutionTime != nil && tracking.ResolutionTime == nil {
		at := *p.ResolutionTime
		tracking.ResolutionTime = &at
		tracking.IsResolutionBreached = p.ResolutionBreached
	}
	if p.Escalate {
		tracking.IsEscalated = true
	}
}
