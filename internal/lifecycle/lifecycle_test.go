package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/servicedesk/internal/domain"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func strp(s string) *string { return &s }

// move runs a full transition plus SLA patch the way the ticket service does.
func move(ticket *domain.Ticket, tracking *domain.SLATracking, to domain.TicketStatus, actor string, now time.Time) Transition {
	tr := ApplyTransition(ticket, to, actor, now)
	patch := UpdateSLA(ticket, tracking, tr.OldStatus, tr.NewStatus, now)
	tr.Apply(ticket)
	patch.Apply(ticket, tracking)
	return tr
}

func TestApplyTransitionSideEffects(t *testing.T) {
	closedAt := t0.Add(-time.Hour)
	tests := []struct {
		name   string
		ticket domain.Ticket
		to     domain.TicketStatus
		check  func(t *testing.T, fx SideEffects)
	}{
		{
			name:   "resolve unassigned auto-assigns and stamps resolvedAt",
			ticket: domain.Ticket{Status: domain.TicketStatusOpen},
			to:     domain.TicketStatusResolved,
			check: func(t *testing.T, fx SideEffects) {
				require.NotNil(t, fx.AutoAssignTo)
				assert.Equal(t, "actor", *fx.AutoAssignTo)
				require.NotNil(t, fx.ResolvedAt)
				assert.Equal(t, t0, *fx.ResolvedAt)
				assert.Nil(t, fx.ClosedAt)
			},
		},
		{
			name:   "cancel assigned ticket keeps assignee",
			ticket: domain.Ticket{Status: domain.TicketStatusInProgress, AssignedToID: strp("tech")},
			to:     domain.TicketStatusCancelled,
			check: func(t *testing.T, fx SideEffects) {
				assert.Nil(t, fx.AutoAssignTo)
				assert.Nil(t, fx.ResolvedAt)
			},
		},
		{
			name:   "close stamps closedAt",
			ticket: domain.Ticket{Status: domain.TicketStatusResolved, AssignedToID: strp("tech")},
			to:     domain.TicketStatusClosed,
			check: func(t *testing.T, fx SideEffects) {
				require.NotNil(t, fx.ClosedAt)
				assert.False(t, fx.ClearClosedAt)
			},
		},
		{
			name:   "reopen from closed clears closedAt",
			ticket: domain.Ticket{Status: domain.TicketStatusClosed, ClosedAt: &closedAt},
			to:     domain.TicketStatusOpen,
			check: func(t *testing.T, fx SideEffects) {
				assert.True(t, fx.ClearClosedAt)
				assert.Nil(t, fx.ClosedAt)
				assert.Nil(t, fx.AutoAssignTo)
			},
		},
		{
			name:   "enter pending vendor begins pause",
			ticket: domain.Ticket{Status: domain.TicketStatusInProgress},
			to:     domain.TicketStatusPendingVendor,
			check: func(t *testing.T, fx SideEffects) {
				assert.True(t, fx.BeginSLAPause)
				assert.False(t, fx.EndSLAPause)
			},
		},
		{
			name:   "leave pending vendor straight to resolved ends pause and resolves",
			ticket: domain.Ticket{Status: domain.TicketStatusPendingVendor, AssignedToID: strp("tech")},
			to:     domain.TicketStatusResolved,
			check: func(t *testing.T, fx SideEffects) {
				assert.True(t, fx.EndSLAPause)
				assert.NotNil(t, fx.ResolvedAt)
			},
		},
		{
			name:   "same status fires nothing",
			ticket: domain.Ticket{Status: domain.TicketStatusResolved},
			to:     domain.TicketStatusResolved,
			check: func(t *testing.T, fx SideEffects) {
				assert.Equal(t, SideEffects{}, fx)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticket := tt.ticket
			tr := ApplyTransition(&ticket, tt.to, "actor", t0)
			assert.Equal(t, tt.to, tr.NewStatus)
			tt.check(t, tr.SideEffects)
		})
	}
}

func TestAnyTargetStatusAccepted(t *testing.T) {
	ticket := &domain.Ticket{Status: domain.TicketStatusClosed, ClosedAt: &t0}
	tr := ApplyTransition(ticket, domain.TicketStatusApproved, "admin", t0)
	tr.Apply(ticket)
	assert.Equal(t, domain.TicketStatusApproved, ticket.Status)
	assert.Nil(t, ticket.ClosedAt)
}

func TestResolvedAtSetOnceAcrossReapplication(t *testing.T) {
	ticket := &domain.Ticket{Status: domain.TicketStatusOpen, AssignedToID: strp("tech")}
	tracking := &domain.SLATracking{ResolutionDeadline: t0.Add(48 * time.Hour)}

	move(ticket, tracking, domain.TicketStatusResolved, "tech", t0)
	require.NotNil(t, ticket.ResolvedAt)
	first := *ticket.ResolvedAt
	firstResolution := *tracking.ResolutionTime

	for i := 1; i <= 3; i++ {
		move(ticket, tracking, domain.TicketStatusResolved, "tech", t0.Add(time.Duration(i)*time.Hour))
	}
	assert.Equal(t, first, *ticket.ResolvedAt)
	assert.Equal(t, firstResolution, *tracking.ResolutionTime)
}

func TestClosedAtTracksClosedStatus(t *testing.T) {
	ticket := &domain.Ticket{Status: domain.TicketStatusResolved, AssignedToID: strp("tech")}
	move(ticket, nil, domain.TicketStatusClosed, "tech", t0)
	require.NotNil(t, ticket.ClosedAt)

	move(ticket, nil, domain.TicketStatusClosed, "tech", t0.Add(time.Hour))
	assert.Equal(t, t0, *ticket.ClosedAt)

	move(ticket, nil, domain.TicketStatusInProgress, "tech", t0.Add(2*time.Hour))
	assert.Nil(t, ticket.ClosedAt)
}

func TestPauseWindowsAccumulate(t *testing.T) {
	ticket := &domain.Ticket{Status: domain.TicketStatusInProgress, AssignedToID: strp("tech")}
	tracking := &domain.SLATracking{}

	move(ticket, tracking, domain.TicketStatusPendingVendor, "tech", t0)
	require.NotNil(t, ticket.SLAPausedAt)
	assert.Equal(t, time.Duration(0), ticket.SLAPausedTotal)

	move(ticket, tracking, domain.TicketStatusInProgress, "tech", t0.Add(2*time.Hour))
	assert.Nil(t, ticket.SLAPausedAt)
	assert.Equal(t, 2*time.Hour, ticket.SLAPausedTotal)

	move(ticket, tracking, domain.TicketStatusPendingVendor, "tech", t0.Add(5*time.Hour))
	// re-applying the same status while paused must not restart the window
	move(ticket, tracking, domain.TicketStatusPendingVendor, "tech", t0.Add(6*time.Hour))
	assert.Equal(t, t0.Add(5*time.Hour), *ticket.SLAPausedAt)
	assert.Equal(t, 2*time.Hour, ticket.SLAPausedTotal, "open window is not counted")

	move(ticket, tracking, domain.TicketStatusInProgress, "tech", t0.Add(8*time.Hour))
	assert.Equal(t, 5*time.Hour, ticket.SLAPausedTotal)
	assert.Nil(t, ticket.SLAPausedAt)
}

func TestPauseEndWithoutStartIsNoop(t *testing.T) {
	ticket := &domain.Ticket{Status: domain.TicketStatusPendingVendor}
	patch := UpdateSLA(ticket, nil, domain.TicketStatusPendingVendor, domain.TicketStatusInProgress, t0)
	assert.False(t, patch.PauseEnded)
	patch.Apply(ticket, nil)
	assert.Equal(t, time.Duration(0), ticket.SLAPausedTotal)
}

func TestResponseRecordedOnFirstInProgressOnly(t *testing.T) {
	ticket := &domain.Ticket{Status: domain.TicketStatusOpen, AssignedToID: strp("tech")}
	tracking := &domain.SLATracking{ResponseDeadline: t0.Add(time.Hour)}

	move(ticket, tracking, domain.TicketStatusInProgress, "tech", t0.Add(2*time.Hour))
	require.NotNil(t, tracking.ResponseTime)
	assert.True(t, tracking.IsResponseBreached)

	move(ticket, tracking, domain.TicketStatusPending, "tech", t0.Add(3*time.Hour))
	move(ticket, tracking, domain.TicketStatusInProgress, "tech", t0.Add(4*time.Hour))
	assert.Equal(t, t0.Add(2*time.Hour), *tracking.ResponseTime)
}

func TestResolutionBreachExcludesPausedTime(t *testing.T) {
	ticket := &domain.Ticket{Status: domain.TicketStatusInProgress, AssignedToID: strp("tech")}
	tracking := &domain.SLATracking{ResolutionDeadline: t0.Add(4 * time.Hour)}

	move(ticket, tracking, domain.TicketStatusPendingVendor, "tech", t0.Add(time.Hour))
	move(ticket, tracking, domain.TicketStatusResolved, "tech", t0.Add(6*time.Hour))

	require.NotNil(t, tracking.ResolutionTime)
	assert.False(t, tracking.IsResolutionBreached, "5h vendor wait shifts the 4h deadline to 9h")
	assert.Equal(t, 5*time.Hour, ticket.SLAPausedTotal)
}

func TestResolutionBreached(t *testing.T) {
	ticket := &domain.Ticket{Status: domain.TicketStatusOpen, AssignedToID: strp("tech")}
	tracking := &domain.SLATracking{ResolutionDeadline: t0}
	move(ticket, tracking, domain.TicketStatusResolved, "tech", t0.Add(time.Minute))
	assert.True(t, tracking.IsResolutionBreached)
}

func TestEscalationIsMonotonic(t *testing.T) {
	ticket := &domain.Ticket{Status: domain.TicketStatusOpen, AssignedToID: strp("tech")}
	tracking := &domain.SLATracking{EscalationDeadline: t0.Add(time.Hour)}

	move(ticket, tracking, domain.TicketStatusInProgress, "tech", t0)
	assert.False(t, tracking.IsEscalated)

	move(ticket, tracking, domain.TicketStatusPending, "tech", t0.Add(2*time.Hour))
	assert.True(t, tracking.IsEscalated)

	statuses := []domain.TicketStatus{
		domain.TicketStatusPendingVendor, domain.TicketStatusInProgress, domain.TicketStatusResolved,
		domain.TicketStatusClosed, domain.TicketStatusOpen,
	}
	for i, s := range statuses {
		// times before the deadline would never escalate; they must not un-escalate either
		move(ticket, tracking, s, "tech", t0.Add(time.Duration(-i)*time.Hour))
		assert.True(t, tracking.IsEscalated, "after %s", s)
	}
}

func TestEscalationIgnoresPausedTime(t *testing.T) {
	ticket := &domain.Ticket{Status: domain.TicketStatusInProgress, AssignedToID: strp("tech")}
	tracking := &domain.SLATracking{
		ResolutionDeadline: t0.Add(4 * time.Hour),
		EscalationDeadline: t0.Add(3 * time.Hour),
	}

	move(ticket, tracking, domain.TicketStatusPendingVendor, "tech", t0.Add(time.Hour))
	move(ticket, tracking, domain.TicketStatusInProgress, "tech", t0.Add(5*time.Hour))

	assert.Equal(t, 4*time.Hour, ticket.SLAPausedTotal)
	assert.True(t, tracking.IsEscalated, "escalation deadline is not shifted by the vendor wait")

	move(ticket, tracking, domain.TicketStatusResolved, "tech", t0.Add(6*time.Hour))
	assert.False(t, tracking.IsResolutionBreached, "resolution deadline shifts to 8h")
}

func TestNoStatusChangeYieldsEmptyPatch(t *testing.T) {
	ticket := &domain.Ticket{Status: domain.TicketStatusOpen}
	tracking := &domain.SLATracking{EscalationDeadline: t0.Add(-time.Hour)}
	patch := UpdateSLA(ticket, tracking, domain.TicketStatusOpen, domain.TicketStatusOpen, t0)
	assert.True(t, patch.Empty())
}
