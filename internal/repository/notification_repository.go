package repository

import (
	"context"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// NotificationRepository stores in-app notifications.
type NotificationRepository interface {
	Create(ctx context.Context, notification *domain.Notification) error
}

type notificationRepository struct {
	db DBTX
}

// NewNotificationRepository builds repository.
func NewNotificationRepository(db DBTX) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	const query = `
        INSERT INTO notifications (user_id, type, title, message, data)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, is_read, created_at`
	return r.db.QueryRow(ctx, query,
		n.UserID,
		n.Type,
		n.Title,
		n.Message,
		jsonMap(n.Data),
	).Scan(&n.ID, &n.IsRead, &n.CreatedAt)
}
