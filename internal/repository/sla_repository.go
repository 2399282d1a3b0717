package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// SLARepository stores per-ticket SLA tracking rows.
type SLARepository interface {
	GetByTicket(ctx context.Context, ticketID string) (*domain.SLATracking, error)
	Update(ctx context.Context, tracking *domain.SLATracking) error
}

type slaRepository struct {
	db DBTX
}

// NewSLARepository builds repository.
func NewSLARepository(db DBTX) SLARepository {
	return &slaRepository{db: db}
}

// GetByTicket returns nil without error when the ticket has no SLA row.
func (r *slaRepository) GetByTicket(ctx context.Context, ticketID string) (*domain.SLATracking, error) {
	const query = `
        SELECT id, ticket_id, response_deadline, resolution_deadline, escalation_deadline,
               response_time, resolution_time, is_response_breached, is_resolution_breached,
               is_escalated, updated_at
        FROM sla_tracking WHERE ticket_id=$1`
	var tracking domain.SLATracking
	var response, resolution, escalation *time.Time
	err := r.db.QueryRow(ctx, query, ticketID).Scan(
		&tracking.ID,
		&tracking.TicketID,
		&response,
		&resolution,
		&escalation,
		&tracking.ResponseTime,
		&tracking.ResolutionTime,
		&tracking.IsResponseBreached,
		&tracking.IsResolutionBreached,
		&tracking.IsEscalated,
		&tracking.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tracking.ResponseDeadline = deref(response)
	tracking.ResolutionDeadline = deref(resolution)
	tracking.EscalationDeadline = deref(escalation)
	return &tracking, nil
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// Update persists the recorded times and breach flags. Escalation is never cleared.
func (r *slaRepository) Update(ctx context.Context, tracking *domain.SLATracking) error {
	const query = `
        UPDATE sla_tracking SET response_time=$1, resolution_time=$2, is_response_breached=$3,
            is_resolution_breached=$4, is_escalated=(is_escalated OR $5), updated_at=NOW()
        WHERE id=$6
        RETURNING updated_at`
	return r.db.QueryRow(ctx, query,
		tracking.ResponseTime,
		tracking.ResolutionTime,
		tracking.IsResponseBreached,
		tracking.IsResolutionBreached,
		tracking.IsEscalated,
		tracking.ID,
	).Scan(&tracking.UpdatedAt)
}
