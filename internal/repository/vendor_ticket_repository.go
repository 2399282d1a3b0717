package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// VendorTicketRepository stores tickets raised with third-party vendors.
type VendorTicketRepository interface {
	FindActive(ctx context.Context, ticketID string) ([]domain.VendorTicket, error)
	UpdateStatus(ctx context.Context, id string, status domain.VendorTicketStatus, resolvedAt *time.Time) error
}

type vendorTicketRepository struct {
	db DBTX
}

// NewVendorTicketRepository builds repository.
func NewVendorTicketRepository(db DBTX) VendorTicketRepository {
	return &vendorTicketRepository{db: db}
}

// FindActive lists PENDING and IN_PROGRESS vendor tickets, oldest first.
func (r *vendorTicketRepository) FindActive(ctx context.Context, ticketID string) ([]domain.VendorTicket, error) {
	const query = `
        SELECT id, ticket_id, vendor_id, vendor_name, vendor_ticket_number, status, resolved_at,
               created_at, updated_at
        FROM vendor_tickets
        WHERE ticket_id=$1 AND status IN ('PENDING','IN_PROGRESS')
        ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.VendorTicket
	for rows.Next() {
		var vt domain.VendorTicket
		if err := rows.Scan(
			&vt.ID,
			&vt.TicketID,
			&vt.VendorID,
			&vt.VendorName,
			&vt.VendorTicketNumber,
			&vt.Status,
			&vt.ResolvedAt,
			&vt.CreatedAt,
			&vt.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, vt)
	}
	return result, rows.Err()
}

// UpdateStatus moves an active vendor ticket to status. Rows already in a
// final state are left untouched and reported as pgx.ErrNoRows.
func (r *vendorTicketRepository) UpdateStatus(ctx context.Context, id string, status domain.VendorTicketStatus, resolvedAt *time.Time) error {
	const query = `
        UPDATE vendor_tickets SET status=$1, resolved_at=COALESCE($2, resolved_at), updated_at=NOW()
        WHERE id=$3 AND status IN ('PENDING','IN_PROGRESS')`
	cmd, err := r.db.Exec(ctx, query, status, resolvedAt, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
