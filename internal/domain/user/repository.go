package user

import (
	"context"

	"github.com/google/uuid"
)

// UserRepository defines the persistence contract for operator accounts.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdateLoginInfo(ctx context.Context, id uuid.UUID, ip string) error
}
