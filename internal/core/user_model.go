package core

import (
	"context"
	"time"
)

type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleStaff   Role = "STAFF"
	RoleStudent Role = "STUDENT"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleStaff || r == RoleStudent
}

// User is a person who books, scans, or administers equipment.
type User struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Role       Role      `json:"role"`
	LocationID *string   `json:"locationId,omitempty"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
}

// UserService provides user lookup and capability checks.
type UserService interface {
	// GetByID returns a user by primary key.
	GetByID(ctx context.Context, userID string) (*User, error)

	// RequireAdmin fails with FORBIDDEN unless the user exists, is active, and
	// is stored with the ADMIN role. Token claims alone are not trusted for
	// admin-only writes.
	RequireAdmin(ctx context.Context, userID string) error
}
