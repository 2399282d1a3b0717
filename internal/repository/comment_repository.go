package repository

import (
	"context"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// CommentRepository stores ticket comments.
type CommentRepository interface {
	Create(ctx context.Context, comment *domain.TicketComment) error
}

type commentRepository struct {
	db DBTX
}

// NewCommentRepository builds repository.
func NewCommentRepository(db DBTX) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) Create(ctx context.Context, comment *domain.TicketComment) error {
	const query = `
        INSERT INTO ticket_comments (ticket_id, user_id, content, is_internal)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	return r.db.QueryRow(ctx, query,
		comment.TicketID,
		comment.UserID,
		comment.Content,
		comment.IsInternal,
	).Scan(&comment.ID, &comment.CreatedAt)
}
