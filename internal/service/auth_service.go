package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prperemyshlev/estate-auth/internal/apperrors"
	"github.com/prperemyshlev/estate-auth/internal/config"
	"github.com/prperemyshlev/estate-auth/internal/domain"
	"github.com/prperemyshlev/estate-auth/internal/dto"
	"github.com/prperemyshlev/estate-auth/internal/notify"
	"github.com/prperemyshlev/estate-auth/internal/repository"
	"github.com/prperemyshlev/estate-auth/internal/utils"
	"github.com/prperemyshlev/estate-auth/pkg/observability"
	"go.uber.org/zap"
)

const (
	msgAccountDisabled     = "Account disabled"
	msgAccountLocked       = "Account temporarily locked"
	msgEmailNotVerified    = "Email not verified"
	msgInvalidRefreshToken = "Invalid refresh token"
	msgRefreshRevoked      = "Refresh token revoked or invalid"
	msgRefreshExpired      = "Refresh token expired"
	msgLoggedOut           = "Logged out"
)

// Options holds the tunables of the auth service
type Options struct {
	BCryptCost       int
	AdminEmails      []string
	OTPLength        int
	OTPTTL           time.Duration
	ResendCooldown   time.Duration
	OTPMaxAttempts   int
	OTPIssueLockTTL  time.Duration
	ResetTokenTTL    time.Duration
	RefreshLedgerTTL time.Duration
	LockoutThreshold int
	LockoutDuration  time.Duration
}

// OptionsFromConfig maps application configuration onto service options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BCryptCost:       cfg.Security.BCryptCost,
		AdminEmails:      cfg.Registration.AdminEmails,
		OTPLength:        cfg.OTP.Length,
		OTPTTL:           cfg.OTP.TTL.Duration,
		ResendCooldown:   cfg.OTP.ResendCooldown.Duration,
		OTPMaxAttempts:   cfg.OTP.MaxAttempts,
		OTPIssueLockTTL:  cfg.OTP.IssueLockTTL.Duration,
		ResetTokenTTL:    cfg.Reset.TokenTTL.Duration,
		RefreshLedgerTTL: cfg.JWT.RefreshLedgerExpiry.Duration,
		LockoutThreshold: cfg.Security.LockoutThreshold,
		LockoutDuration:  cfg.Security.LockoutDuration.Duration,
	}
}

// Dependencies are the collaborators of the auth service.
// OTPGuard, Metrics and Clock are optional.
type Dependencies struct {
	Users    repository.UserRepository
	OTPs     repository.OTPRepository
	Resets   repository.PasswordResetRepository
	Tokens   repository.TokenRepository
	JWT      *utils.JWTManager
	Notifier *notify.Notifier
	OTPGuard OTPIssueGuard
	Metrics  *observability.AuthMetrics
	Logger   *zap.Logger
	Clock    func() time.Time
}

// authService implements AuthService interface
type authService struct {
	userRepo   repository.UserRepository
	otpRepo    repository.OTPRepository
	resetRepo  repository.PasswordResetRepository
	tokenRepo  repository.TokenRepository
	jwtManager *utils.JWTManager
	notifier   *notify.Notifier
	otpGuard   OTPIssueGuard
	metrics    *observability.AuthMetrics
	logger     *zap.Logger
	now        func() time.Time
	opts       Options
}

// NewAuthService creates a new auth service
func NewAuthService(deps Dependencies, opts Options) AuthService {
	s := &authService{
		userRepo:   deps.Users,
		otpRepo:    deps.OTPs,
		resetRepo:  deps.Resets,
		tokenRepo:  deps.Tokens,
		jwtManager: deps.JWT,
		notifier:   deps.Notifier,
		otpGuard:   deps.OTPGuard,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        deps.Clock,
		opts:       opts,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Login authenticates a user by email or username
func (s *authService) Login(ctx context.Context, req *dto.LoginRequest) (*AuthResponseWithRefreshToken, error) {
	login := req.Identifier()
	if login == "" || req.Password == "" {
		return nil, apperrors.Validation("Login and password are required")
	}

	user, err := s.userRepo.FindByEmailOrUsername(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.UnauthorizedUniform()
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !user.IsActive {
		return nil, apperrors.Forbidden(msgAccountDisabled)
	}

	now := s.now()

	// locked accounts fail before any password comparison and keep their counter
	if user.Security.IsLocked(now) {
		return nil, apperrors.Locked(msgAccountLocked)
	}

	match, err := utils.ComparePassword(req.Password, user.PasswordHash)
	if err != nil {
		// a broken stored hash still answers like a wrong password
		s.logger.Error("Stored password hash is unusable", zap.String("user_id", user.ID), zap.Error(err))
	}
	if !match {
		if err := s.recordLoginFailure(ctx, user, now); err != nil {
			return nil, err
		}
		return nil, apperrors.UnauthorizedUniform()
	}

	user.Security.Reset()

	if !user.EmailVerified {
		if err := s.userRepo.Update(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to reset login security: %w", err)
		}
		return nil, apperrors.Forbidden(msgEmailNotVerified)
	}

	user.LastLoginAt = &now
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update last login: %w", err)
	}

	return s.issueSession(ctx, domain.ClaimsFor(user), user.Public())
}

func (s *authService) recordLoginFailure(ctx context.Context, user *domain.User, now time.Time) error {
	s.metrics.LoginFailed(ctx)

	user.Security.FailureCount++
	user.Security.LastAttemptAt = &now

	if user.Security.FailureCount >= s.opts.LockoutThreshold {
		lockedUntil := now.Add(s.opts.LockoutDuration)
		user.Security.LockedUntil = &lockedUntil
		user.Security.FailureCount = 0

		s.metrics.AccountLocked(ctx)
		s.logger.Info("Account locked after repeated login failures",
			zap.String("user_id", user.ID),
			zap.Time("locked_until", lockedUntil),
		)
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to record login failure: %w", err)
	}
	return nil
}

// RefreshToken exchanges a refresh token for a new pair. Each token is single-use.
func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*AuthResponseWithRefreshToken, error) {
	if refreshToken == "" {
		return nil, apperrors.Validation("Refresh token is required")
	}

	claims, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnauthorized, msgInvalidRefreshToken, err)
	}

	tokenHash := utils.HashToken(refreshToken)

	current, err := s.tokenRepo.FindActive(ctx, claims.UserID, tokenHash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.reportReuse(ctx, claims.UserID)
			return nil, apperrors.Unauthorized(msgRefreshRevoked)
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	if current.IsExpired(s.now()) {
		if _, err := s.tokenRepo.Revoke(ctx, current.ID); err != nil {
			return nil, fmt.Errorf("failed to revoke expired token: %w", err)
		}
		return nil, apperrors.Unauthorized(msgRefreshExpired)
	}

	revoked, err := s.tokenRepo.Revoke(ctx, current.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to revoke token: %w", err)
	}
	if !revoked {
		// a concurrent exchange of the same token won
		s.reportReuse(ctx, claims.UserID)
		return nil, apperrors.Unauthorized(msgRefreshRevoked)
	}

	response, err := s.issueSession(ctx, *claims, publicFromClaims(claims))
	if err != nil {
		return nil, err
	}

	if err := s.tokenRepo.SetReplacedBy(ctx, current.ID, response.TokenID); err != nil {
		// rotation is already committed; a missing link only loses audit history
		s.logger.Error("Failed to link rotated refresh token",
			zap.String("token_id", current.ID),
			zap.String("replaced_by", response.TokenID),
			zap.Error(err),
		)
	}

	return response, nil
}

func (s *authService) reportReuse(ctx context.Context, userID string) {
	s.metrics.RefreshReused(ctx)
	s.logger.Warn("Refresh token reuse detected", zap.String("user_id", userID))
}

// Logout revokes the presented refresh token. Unknown tokens still succeed.
func (s *authService) Logout(ctx context.Context, refreshToken string) (*dto.MessageResponse, error) {
	if refreshToken != "" {
		token, err := s.tokenRepo.GetByTokenHash(ctx, utils.HashToken(refreshToken))
		switch {
		case err == nil && !token.Revoked:
			if _, err := s.tokenRepo.Revoke(ctx, token.ID); err != nil {
				s.logger.Error("Failed to revoke token on logout", zap.String("token_id", token.ID), zap.Error(err))
			}
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			s.logger.Error("Failed to look up token on logout", zap.Error(err))
		}
	}

	return &dto.MessageResponse{Message: msgLoggedOut}, nil
}

// GetUser gets user information
func (s *authService) GetUser(ctx context.Context, userID string) (*domain.PublicUser, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Unauthorized("User not found")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	public := user.Public()
	return &public, nil
}

// ValidateToken validates an access token
func (s *authService) ValidateToken(_ context.Context, token string) (*domain.TokenClaims, error) {
	claims, err := s.jwtManager.ValidateToken(token)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnauthorized, "Invalid or expired token", err)
	}
	return claims, nil
}

func publicFromClaims(c *domain.TokenClaims) domain.PublicUser {
	return domain.PublicUser{
		ID:            c.UserID,
		Username:      c.Username,
		Email:         c.Email,
		FullName:      c.FullName,
		Role:          c.Role,
		EmailVerified: true,
	}
}

func normalizeUsername(username string) string {
	return strings.TrimSpace(username)
}
