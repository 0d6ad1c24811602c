package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/prperemyshlev/estate-auth/internal/apperrors"
	"github.com/prperemyshlev/estate-auth/internal/domain"
	"github.com/prperemyshlev/estate-auth/internal/dto"
	"github.com/prperemyshlev/estate-auth/internal/notify"
	"github.com/prperemyshlev/estate-auth/internal/repository"
	"github.com/prperemyshlev/estate-auth/internal/utils"
	"go.uber.org/zap"
)

const (
	msgRegistered           = "Registration successful. "
	msgRegisteredOTPFailed  = "Registration successful, but the verification code could not be sent. Please request a new code."
	msgResendMasked         = "If an account with that email exists, a new verification code has been sent."
	msgResendFailed         = "The verification code could not be sent. Please try again later."
	msgAlreadyVerified      = "Email already verified"
	msgEmailVerified        = "Email verified"
	msgOTPNotFound          = "OTP not found"
	msgOTPExpired           = "OTP expired"
	msgOTPTooManyAttempts   = "Too many attempts"
	msgOTPInvalid           = "Invalid OTP"
	msgOTPCooldown          = "Please wait before requesting a new code"
	msgRegistrationNotAllow = "Registration is not allowed for this email"
	msgUserExists           = "User with this email or username already exists"
)

// errEmailDelivery marks an OTP that was stored but could not be delivered
var errEmailDelivery = errors.New("otp email delivery failed")

// Register creates an unverified admin account and sends its first OTP
func (s *authService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.RegisterResponse, error) {
	username := normalizeUsername(req.Username)
	email := utils.SanitizeEmail(req.Email)

	if username == "" || email == "" || req.Password == "" {
		return nil, apperrors.Validation("Username, email and password are required")
	}
	if !utils.ValidateEmail(email) {
		return nil, apperrors.Validation("Invalid email format")
	}
	if !utils.ValidateUsername(username) {
		return nil, apperrors.Validation("Username may only contain letters, digits, dots, underscores and hyphens")
	}

	if len(s.opts.AdminEmails) > 0 && !utils.EmailInList(email, s.opts.AdminEmails) {
		return nil, apperrors.Forbidden(msgRegistrationNotAllow)
	}

	for _, login := range []string{email, username} {
		_, err := s.userRepo.FindByEmailOrUsername(ctx, login)
		if err == nil {
			return nil, apperrors.Conflict(msgUserExists)
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("failed to check user existence: %w", err)
		}
	}

	passwordHash, err := utils.HashPassword(req.Password, s.opts.BCryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &domain.User{
		ID:            uuid.New().String(),
		Username:      username,
		Email:         email,
		FullName:      req.FullName,
		Role:          domain.RoleAdmin,
		PasswordHash:  passwordHash,
		EmailVerified: false,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			return nil, apperrors.Wrap(apperrors.KindConflict, msgUserExists, err)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	response := &dto.RegisterResponse{
		Message: msgRegistered + s.notifier.OTP.RecipientHint(),
		OTPSent: true,
		User:    user.Public(),
	}

	if err := s.issueOTP(ctx, user); err != nil {
		s.logger.Warn("Registration OTP was not delivered", zap.String("user_id", user.ID), zap.Error(err))
		response.Message = msgRegisteredOTPFailed
		response.OTPSent = false
	}

	return response, nil
}

// ResendOTP issues a fresh code. Unknown and already verified emails get the
// same response as a successful issue.
func (s *authService) ResendOTP(ctx context.Context, email string) (*dto.MessageResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, utils.SanitizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &dto.MessageResponse{Message: msgResendMasked}, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if user.EmailVerified {
		return &dto.MessageResponse{Message: msgResendMasked}, nil
	}

	if err := s.issueOTP(ctx, user); err != nil {
		if errors.Is(err, errEmailDelivery) {
			return &dto.MessageResponse{Message: msgResendFailed}, nil
		}
		return nil, err
	}

	return &dto.MessageResponse{Message: msgResendMasked}, nil
}

// issueOTP enforces the resend cooldown, supersedes live codes, stores a new hash
// and hands the plaintext to the configured notifier.
func (s *authService) issueOTP(ctx context.Context, user *domain.User) error {
	if s.otpGuard != nil {
		acquired, err := s.otpGuard.Acquire(ctx, user.ID, s.opts.OTPIssueLockTTL)
		switch {
		case err != nil:
			s.logger.Warn("OTP issue guard unavailable", zap.String("user_id", user.ID), zap.Error(err))
		case !acquired:
			return apperrors.RateLimited(msgOTPCooldown)
		default:
			defer func() {
				if err := s.otpGuard.Release(ctx, user.ID); err != nil {
					s.logger.Warn("Failed to release OTP issue guard", zap.String("user_id", user.ID), zap.Error(err))
				}
			}()
		}
	}

	now := s.now()

	latest, err := s.otpRepo.FindLatestUnused(ctx, user.ID)
	switch {
	case err == nil:
		if now.Sub(latest.CreatedAt) < s.opts.ResendCooldown {
			return apperrors.RateLimited(msgOTPCooldown)
		}
	case !errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("failed to get latest otp: %w", err)
	}

	if err := s.otpRepo.InvalidateAllUnused(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to invalidate otp codes: %w", err)
	}

	code, err := utils.GenerateNumericCode(s.opts.OTPLength)
	if err != nil {
		return fmt.Errorf("failed to generate otp: %w", err)
	}

	codeHash, err := utils.HashCode(code)
	if err != nil {
		return fmt.Errorf("failed to hash otp: %w", err)
	}

	otp := &domain.OTPCode{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		CodeHash:  codeHash,
		ExpiresAt: now.Add(s.opts.OTPTTL),
		CreatedAt: now,
	}
	if err := s.otpRepo.Create(ctx, otp); err != nil {
		return fmt.Errorf("failed to save otp: %w", err)
	}
	s.metrics.OTPIssued(ctx)

	err = s.notifier.OTP.NotifyOTP(ctx, notify.OTPNotice{
		Username:  user.Username,
		Email:     user.Email,
		FullName:  user.FullName,
		Code:      code,
		ExpiresAt: otp.ExpiresAt,
		TTL:       s.opts.OTPTTL,
	})
	if err != nil {
		s.metrics.EmailFailed(ctx, "otp")
		s.logger.Warn("Failed to send OTP email", zap.String("user_id", user.ID), zap.Error(err))
		return fmt.Errorf("%w: %v", errEmailDelivery, err)
	}

	return nil
}

// VerifyEmail checks a submitted code against the latest live OTP
func (s *authService) VerifyEmail(ctx context.Context, email, code string) (*dto.MessageResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, utils.SanitizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.UnauthorizedUniform()
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if user.EmailVerified {
		return &dto.MessageResponse{Message: msgAlreadyVerified}, nil
	}

	otp, err := s.otpRepo.FindLatestUnused(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Validation(msgOTPNotFound)
		}
		return nil, fmt.Errorf("failed to get otp: %w", err)
	}

	if otp.IsExpired(s.now()) {
		return nil, apperrors.Validation(msgOTPExpired)
	}

	if otp.Attempts >= s.opts.OTPMaxAttempts {
		otp.Used = true
		if err := s.otpRepo.Update(ctx, otp); err != nil {
			return nil, fmt.Errorf("failed to exhaust otp: %w", err)
		}
		return nil, apperrors.RateLimited(msgOTPTooManyAttempts)
	}

	if !utils.VerifyCode(code, otp.CodeHash) {
		otp.Attempts++
		if err := s.otpRepo.Update(ctx, otp); err != nil {
			return nil, fmt.Errorf("failed to record otp attempt: %w", err)
		}
		return nil, apperrors.Validation(msgOTPInvalid)
	}

	otp.Used = true
	if err := s.otpRepo.Update(ctx, otp); err != nil {
		return nil, fmt.Errorf("failed to consume otp: %w", err)
	}

	user.EmailVerified = true
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to mark email verified: %w", err)
	}

	return &dto.MessageResponse{Message: msgEmailVerified}, nil
}
