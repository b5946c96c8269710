package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type userService struct {
	pool *pgxpool.Pool
}

// NewUserService constructs a UserService backed by PostgreSQL.
func NewUserService(pool *pgxpool.Pool) UserService {
	return &userService{pool: pool}
}

func (s *userService) GetByID(ctx context.Context, userID string) (*User, error) {
	u := &User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, role, location_id, is_active, created_at
		FROM users
		WHERE id = $1`,
		userID,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.LocationID, &u.IsActive, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NotFoundf("User not found")
		}
		return nil, fmt.Errorf("failed to load user %s: %w", userID, err)
	}
	return u, nil
}

func (s *userService) RequireAdmin(ctx context.Context, userID string) error {
	u, err := s.GetByID(ctx, userID)
	if err != nil {
		if IsKind(err, KindNotFound) {
			return Forbiddenf("Only admins can create overrides")
		}
		return err
	}
	if !u.IsActive || u.Role != RoleAdmin {
		return Forbiddenf("Only admins can create overrides")
	}
	return nil
}
