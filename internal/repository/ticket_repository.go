package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByNumber(ctx context.Context, number string) (*domain.Ticket, error)
	Update(ctx context.Context, ticket *domain.Ticket, expectedVersion int64) error
	PriorityCounts(ctx context.Context, branchID string) (map[domain.TicketPriority]int, error)
}

type ticketRepository struct {
	db DBTX
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db DBTX) TicketRepository {
	return &ticketRepository{db: db}
}

const ticketColumns = `id, ticket_number, title, description, status, priority, justification, category,
               issue_classification, root_cause, resolution_notes, estimated_hours, actual_hours,
               branch_id, created_by_id, assigned_to_id, service_id, support_group_id, is_confidential,
               external_ref, created_at, updated_at, resolved_at, closed_at, sla_paused_at,
               sla_paused_total_ms, version`

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id)
}

func (r *ticketRepository) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE ticket_number=$1`, number)
}

// Update writes every mutable column and bumps the version. It fails with
// ErrVersionConflict when the stored version differs from expectedVersion.
func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket, expectedVersion int64) error {
	const query = `
        UPDATE tickets SET title=$1, description=$2, status=$3, priority=$4, justification=$5,
            category=$6, issue_classification=$7, root_cause=$8, resolution_notes=$9,
            estimated_hours=$10, actual_hours=$11, assigned_to_id=$12, resolved_at=$13,
            closed_at=$14, sla_paused_at=$15, sla_paused_total_ms=$16,
            version=version+1, updated_at=NOW()
        WHERE id=$17 AND version=$18
        RETURNING version, updated_at`
	err := r.db.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.Justification,
		ticket.Category,
		ticket.IssueClassification,
		ticket.RootCause,
		ticket.ResolutionNotes,
		ticket.EstimatedHours,
		ticket.ActualHours,
		ticket.AssignedToID,
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.SLAPausedAt,
		ticket.SLAPausedTotal.Milliseconds(),
		ticket.ID,
		expectedVersion,
	).Scan(&ticket.Version, &ticket.UpdatedAt)
	if err == pgx.ErrNoRows {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, ticket.ID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrVersionConflict
		}
		return pgx.ErrNoRows
	}
	return err
}

// PriorityCounts returns the number of open tickets per priority in a branch.
func (r *ticketRepository) PriorityCounts(ctx context.Context, branchID string) (map[domain.TicketPriority]int, error) {
	const query = `
        SELECT priority, COUNT(*) FROM tickets
        WHERE branch_id=$1 AND status NOT IN ('RESOLVED','CLOSED','CANCELLED')
        GROUP BY priority`
	rows, err := r.db.Query(ctx, query, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.TicketPriority]int)
	for rows.Next() {
		var (
			priority domain.TicketPriority
			count    int
		)
		if err := rows.Scan(&priority, &count); err != nil {
			return nil, err
		}
		counts[priority] = count
	}
	return counts, rows.Err()
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	var (
		ticket   domain.Ticket
		pausedMS int64
	)
	if err := r.db.QueryRow(ctx, query, arg).Scan(
		&ticket.ID,
		&ticket.TicketNumber,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.Justification,
		&ticket.Category,
		&ticket.IssueClassification,
		&ticket.RootCause,
		&ticket.ResolutionNotes,
		&ticket.EstimatedHours,
		&ticket.ActualHours,
		&ticket.BranchID,
		&ticket.CreatedByID,
		&ticket.AssignedToID,
		&ticket.ServiceID,
		&ticket.SupportGroupID,
		&ticket.IsConfidential,
		&ticket.ExternalRef,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
		&ticket.SLAPausedAt,
		&pausedMS,
		&ticket.Version,
	); err != nil {
		return nil, err
	}
	ticket.SLAPausedTotal = time.Duration(pausedMS) * time.Millisecond
	return &ticket, nil
}
