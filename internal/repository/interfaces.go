package repository

import (
	"context"
	"time"

	"github.com/prperemyshlev/estate-auth/internal/domain"
)

// UserRepository defines methods for user operations
type UserRepository interface {
	// FindByEmailOrUsername matches login against the lowercased email or the username.
	FindByEmailOrUsername(ctx context.Context, login string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, user *domain.User) error
}

// OTPRepository defines methods for one-time code operations
type OTPRepository interface {
	FindLatestUnused(ctx context.Context, userID string) (*domain.OTPCode, error)
	InvalidateAllUnused(ctx context.Context, userID string) error
	Create(ctx context.Context, code *domain.OTPCode) error
	Update(ctx context.Context, code *domain.OTPCode) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// PasswordResetRepository defines methods for password reset token operations
type PasswordResetRepository interface {
	// FindValid returns a token for the user that is unused and still live at now.
	FindValid(ctx context.Context, userID, tokenHash string, now time.Time) (*domain.PasswordResetToken, error)
	Create(ctx context.Context, token *domain.PasswordResetToken) error
	MarkUsed(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// TokenRepository defines methods for refresh token operations
type TokenRepository interface {
	// FindActive returns an unrevoked row regardless of expiry.
	FindActive(ctx context.Context, userID, tokenHash string) (*domain.RefreshToken, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	Create(ctx context.Context, token *domain.RefreshToken) error
	// Revoke reports whether this call flipped the row from active to revoked.
	Revoke(ctx context.Context, id string) (bool, error)
	SetReplacedBy(ctx context.Context, id, replacedBy string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
