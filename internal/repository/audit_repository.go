package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// AuditRepository stores immutable audit records.
type AuditRepository interface {
	Insert(ctx context.Context, record *domain.AuditRecord) (bool, error)
}

type auditRepository struct {
	db DBTX
}

// NewAuditRepository builds repository.
func NewAuditRepository(db DBTX) AuditRepository {
	return &auditRepository{db: db}
}

// Insert writes record once per effect id. It reports false when a record for
// the same effect already exists.
func (r *auditRepository) Insert(ctx context.Context, record *domain.AuditRecord) (bool, error) {
	const query = `
        INSERT INTO audit_logs (effect_id, user_id, action, entity, entity_id, old_values, new_values)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (effect_id) DO NOTHING
        RETURNING id, created_at`
	err := r.db.QueryRow(ctx, query,
		record.EffectID,
		record.UserID,
		record.Action,
		record.Entity,
		record.EntityID,
		jsonMap(record.OldValues),
		jsonMap(record.NewValues),
	).Scan(&record.ID, &record.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func jsonMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
