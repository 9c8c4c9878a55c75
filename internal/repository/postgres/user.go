package postgres

import (
	"context"

	"library-backend/internal/domain"
	"library-backend/internal/repository"
)

type userRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) repository.UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id int32) (*domain.User, error) {
	u := &domain.User{}
	var role string
	query := `SELECT id, COALESCE(email, ''), first_name, COALESCE(last_name, ''), role FROM users WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &role)
	if err != nil {
		return nil, notFoundOr(err, "get user", func() error { return domain.NotFound("User %d not found", id) })
	}
	u.Role = domain.UserRole(role)
	return u, nil
}

func (r *userRepository) ListIDsByRole(ctx context.Context, role domain.UserRole) ([]int32, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM users WHERE role = $1 ORDER BY id`, string(role))
	if err != nil {
		return nil, translateError(err, "list users by role")
	}
	defer rows.Close()

	var ids []int32
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
