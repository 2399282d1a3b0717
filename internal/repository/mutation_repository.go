package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// Mutation is everything written atomically for one ticket update.
type Mutation struct {
	Ticket          *domain.Ticket
	ExpectedVersion int64
	SLA             *domain.SLATracking
	Effects         []domain.OutboxEffect
}

// MutationRepository commits a ticket update, its SLA row and its outbox
// effects in a single transaction.
type MutationRepository interface {
	Commit(ctx context.Context, m Mutation) error
}

type mutationRepository struct {
	pool *pgxpool.Pool
}

// NewMutationRepository builds repository.
func NewMutationRepository(pool *pgxpool.Pool) MutationRepository {
	return &mutationRepository{pool: pool}
}

func (r *mutationRepository) Commit(ctx context.Context, m Mutation) error {
	return WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := NewTicketRepository(tx).Update(ctx, m.Ticket, m.ExpectedVersion); err != nil {
			return err
		}
		if m.SLA != nil {
			if err := NewSLARepository(tx).Update(ctx, m.SLA); err != nil {
				return err
			}
		}
		outbox := NewOutboxRepository(tx)
		for i := range m.Effects {
			if err := outbox.Insert(ctx, &m.Effects[i]); err != nil {
				return err
			}
		}
		return nil
	})
}
