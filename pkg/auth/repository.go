package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrQuotaExhausted is returned by ConsumeResponseQuota when the
	// subscription counter is already at its limit.
	ErrQuotaExhausted = errors.New("subscription response quota exhausted")
)

// UserRepository is the persistence port for users.
type UserRepository interface {
	Create(ctx context.Context, user User) error
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	SetAccessToken(ctx context.Context, id uuid.UUID, token string) error
	// ConsumeResponseQuota atomically increments responses_used, failing
	// with ErrQuotaExhausted when the limit is already reached. Both the
	// scheduler and the manual response path must go through this call.
	ConsumeResponseQuota(ctx context.Context, id uuid.UUID) error
	// RefundResponseQuota returns one unit after a submission that never
	// reached the platform.
	RefundResponseQuota(ctx context.Context, id uuid.UUID) error
}
