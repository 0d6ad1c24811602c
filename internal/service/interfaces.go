package service

import (
	"context"
	"time"

	"github.com/prperemyshlev/estate-auth/internal/domain"
	"github.com/prperemyshlev/estate-auth/internal/dto"
)

// AuthService defines methods for authentication operations
type AuthService interface {
	Register(ctx context.Context, req *dto.RegisterRequest) (*dto.RegisterResponse, error)
	ResendOTP(ctx context.Context, email string) (*dto.MessageResponse, error)
	VerifyEmail(ctx context.Context, email, code string) (*dto.MessageResponse, error)
	Login(ctx context.Context, req *dto.LoginRequest) (*AuthResponseWithRefreshToken, error)
	RefreshToken(ctx context.Context, refreshToken string) (*AuthResponseWithRefreshToken, error)
	Logout(ctx context.Context, refreshToken string) (*dto.MessageResponse, error)
	ForgotPassword(ctx context.Context, email string) (*dto.MessageResponse, error)
	ResetPassword(ctx context.Context, req *dto.ResetPasswordRequest) (*dto.MessageResponse, error)
	GetUser(ctx context.Context, userID string) (*domain.PublicUser, error)
	ValidateToken(ctx context.Context, token string) (*domain.TokenClaims, error)
}

// OTPIssueGuard serializes OTP issuance per user across processes.
// Acquire reports false when another issuance holds the guard.
type OTPIssueGuard interface {
	Acquire(ctx context.Context, userID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, userID string) error
}
