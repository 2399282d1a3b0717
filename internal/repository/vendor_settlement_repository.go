package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// VendorSettlement moves one vendor ticket to a final state and records the
// comment that explains it.
type VendorSettlement struct {
	VendorTicketID string
	Status         domain.VendorTicketStatus
	At             time.Time
	Comment        domain.TicketComment
}

// VendorSettlementRepository finds active vendor tickets and applies
// settlements atomically.
type VendorSettlementRepository interface {
	FindActive(ctx context.Context, ticketID string) ([]domain.VendorTicket, error)
	Settle(ctx context.Context, s *VendorSettlement) (bool, error)
}

type vendorSettlementRepository struct {
	pool *pgxpool.Pool
}

// NewVendorSettlementRepository builds repository.
func NewVendorSettlementRepository(pool *pgxpool.Pool) VendorSettlementRepository {
	return &vendorSettlementRepository{pool: pool}
}

func (r *vendorSettlementRepository) FindActive(ctx context.Context, ticketID string) ([]domain.VendorTicket, error) {
	return NewVendorTicketRepository(r.pool).FindActive(ctx, ticketID)
}

// Settle reports false when the vendor ticket was no longer active, in which
// case no comment is written.
func (r *vendorSettlementRepository) Settle(ctx context.Context, s *VendorSettlement) (bool, error) {
	settled := false
	err := WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		at := s.At
		if err := NewVendorTicketRepository(tx).UpdateStatus(ctx, s.VendorTicketID, s.Status, &at); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		if err := NewCommentRepository(tx).Create(ctx, &s.Comment); err != nil {
			return err
		}
		settled = true
		return nil
	})
	return settled, err
}
