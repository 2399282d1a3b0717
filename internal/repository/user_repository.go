package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// UserRepository resolves directory entries for notification routing.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	ListBySupportGroup(ctx context.Context, supportGroupID string) ([]domain.User, error)
}

type userRepository struct {
	db DBTX
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `
        SELECT id, name, email, role, branch_id, support_group_id, is_active
        FROM users WHERE id=$1`

	var user domain.User
	if err := scanUser(r.db.QueryRow(ctx, query, id), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) ListBySupportGroup(ctx context.Context, supportGroupID string) ([]domain.User, error) {
	const query = `
        SELECT id, name, email, role, branch_id, support_group_id, is_active
        FROM users WHERE support_group_id=$1 AND is_active ORDER BY name`
	rows, err := r.db.Query(ctx, query, supportGroupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.User
	for rows.Next() {
		var user domain.User
		if err := scanUser(rows, &user); err != nil {
			return nil, err
		}
		result = append(result, user)
	}
	return result, rows.Err()
}

func scanUser(row pgx.Row, user *domain.User) error {
	return row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Role,
		&user.BranchID,
		&user.SupportGroupID,
		&user.IsActive,
	)
}
