package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// OutboxRepository persists follow-up effects recorded with a mutation.
type OutboxRepository interface {
	Insert(ctx context.Context, effect *domain.OutboxEffect) error
	Claim(ctx context.Context, id string, claimedAt time.Time) (time.Time, bool, error)
	MarkDone(ctx context.Context, id string, attempts int) error
	RecordAttempt(ctx context.Context, id string, attempts int, lastError string) error
	MarkFailed(ctx context.Context, id string, attempts int, lastError string) error
	ClaimStale(ctx context.Context, claimedBefore time.Time, limit int, once []domain.EffectKind) ([]domain.OutboxEffect, error)
}

type outboxRepository struct {
	db DBTX
}

// NewOutboxRepository builds repository.
func NewOutboxRepository(db DBTX) OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) Insert(ctx context.Context, effect *domain.OutboxEffect) error {
	payload, err := json.Marshal(effect.Event)
	if err != nil {
		return fmt.Errorf("encode outbox event: %w", err)
	}
	const query = `
        INSERT INTO outbox_effects (id, ticket_id, kind, event, state)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING claimed_at, created_at`
	return r.db.QueryRow(ctx, query,
		effect.ID,
		effect.TicketID,
		effect.Kind,
		payload,
		domain.EffectStateProcessing,
	).Scan(&effect.ClaimedAt, &effect.CreatedAt)
}

// Claim moves the claim of a PROCESSING effect forward, provided nobody else
// re-claimed it since claimedAt was read. It reports false when the claim moved.
func (r *outboxRepository) Claim(ctx context.Context, id string, claimedAt time.Time) (time.Time, bool, error) {
	const query = `
        UPDATE outbox_effects SET claimed_at=NOW()
        WHERE id=$1 AND claimed_at=$2 AND state=$3
        RETURNING claimed_at`
	var claimed time.Time
	err := r.db.QueryRow(ctx, query, id, claimedAt, domain.EffectStateProcessing).Scan(&claimed)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return claimed, true, nil
}

func (r *outboxRepository) MarkDone(ctx context.Context, id string, attempts int) error {
	const query = `UPDATE outbox_effects SET state=$1, attempts=$2, last_error='' WHERE id=$3`
	_, err := r.db.Exec(ctx, query, domain.EffectStateDone, attempts, id)
	return err
}

// RecordAttempt stores a failed attempt and pushes the claim forward so the
// sweeper does not pick the effect up while it is being retried.
func (r *outboxRepository) RecordAttempt(ctx context.Context, id string, attempts int, lastError string) error {
	const query = `UPDATE outbox_effects SET attempts=$1, last_error=$2, claimed_at=NOW() WHERE id=$3`
	_, err := r.db.Exec(ctx, query, attempts, lastError, id)
	return err
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string, attempts int, lastError string) error {
	const query = `UPDATE outbox_effects SET state=$1, attempts=$2, last_error=$3 WHERE id=$4`
	_, err := r.db.Exec(ctx, query, domain.EffectStateFailed, attempts, lastError, id)
	return err
}

// ClaimStale reclaims effects left in PROCESSING since before claimedBefore,
// typically by a crashed process, and returns them with a fresh claim. Effects
// of a kind in once that already started an attempt are failed instead of
// reclaimed, since running them again could repeat their side effects.
func (r *outboxRepository) ClaimStale(ctx context.Context, claimedBefore time.Time, limit int, once []domain.EffectKind) ([]domain.OutboxEffect, error) {
	onceKinds := make([]string, 0, len(once))
	for _, kind := range once {
		onceKinds = append(onceKinds, string(kind))
	}

	const abandon = `
        UPDATE outbox_effects SET state=$1, last_error='interrupted after start; not retried'
        WHERE state='PROCESSING' AND claimed_at < $2 AND kind = ANY($3) AND attempts >= 1`
	if _, err := r.db.Exec(ctx, abandon, domain.EffectStateFailed, claimedBefore, onceKinds); err != nil {
		return nil, fmt.Errorf("abandon interrupted effects: %w", err)
	}

	const query = `
        UPDATE outbox_effects SET claimed_at=NOW()
        WHERE id IN (
            SELECT id FROM outbox_effects
            WHERE state='PROCESSING' AND claimed_at < $1
              AND NOT (kind = ANY($3) AND attempts >= 1)
            ORDER BY created_at ASC
            LIMIT $2
            FOR UPDATE SKIP LOCKED
        )
        RETURNING id, ticket_id, kind, event, state, attempts, last_error, claimed_at, created_at`
	rows, err := r.db.Query(ctx, query, claimedBefore, limit, onceKinds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.OutboxEffect
	for rows.Next() {
		var (
			effect  domain.OutboxEffect
			payload []byte
		)
		if err := rows.Scan(
			&effect.ID,
			&effect.TicketID,
			&effect.Kind,
			&payload,
			&effect.State,
			&effect.Attempts,
			&effect.LastError,
			&effect.ClaimedAt,
			&effect.CreatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &effect.Event); err != nil {
			return nil, fmt.Errorf("decode outbox event %s: %w", effect.ID, err)
		}
		result = append(result, effect)
	}
	return result, rows.Err()
}
