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
	resetTokenBytes   = 32
	minPasswordLength = 8

	msgForgotPassword    = "If an account with that email exists, a password reset link has been sent."
	msgInvalidResetToken = "Invalid or expired token"
	msgPasswordReset     = "Password has been reset"
	msgPasswordTooShort  = "Password must be at least 8 characters long"
)

// ForgotPassword emails a reset link. The response never reveals whether the account exists.
func (s *authService) ForgotPassword(ctx context.Context, email string) (*dto.MessageResponse, error) {
	masked := &dto.MessageResponse{Message: msgForgotPassword}

	user, err := s.userRepo.GetByEmail(ctx, utils.SanitizeEmail(email))
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Error("Failed to look up user for password reset", zap.Error(err))
		}
		return masked, nil
	}

	raw, err := utils.GenerateOpaqueToken(resetTokenBytes)
	if err != nil {
		s.logger.Error("Failed to generate reset token", zap.String("user_id", user.ID), zap.Error(err))
		return masked, nil
	}

	now := s.now()
	token := &domain.PasswordResetToken{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		TokenHash: utils.HashToken(raw),
		ExpiresAt: now.Add(s.opts.ResetTokenTTL),
		CreatedAt: now,
	}
	if err := s.resetRepo.Create(ctx, token); err != nil {
		s.logger.Error("Failed to save reset token", zap.String("user_id", user.ID), zap.Error(err))
		return masked, nil
	}

	err = s.notifier.Reset.NotifyPasswordReset(ctx, notify.ResetNotice{
		Username: user.Username,
		Email:    user.Email,
		FullName: user.FullName,
		Token:    raw,
		TTL:      s.opts.ResetTokenTTL,
	})
	if err != nil {
		s.metrics.EmailFailed(ctx, "password_reset")
		s.logger.Warn("Failed to send password reset email", zap.String("user_id", user.ID), zap.Error(err))
	}

	return masked, nil
}

// ResetPassword consumes a reset token and stores the new password hash.
// Unknown users, unknown tokens, expired and used tokens all fail the same way.
func (s *authService) ResetPassword(ctx context.Context, req *dto.ResetPasswordRequest) (*dto.MessageResponse, error) {
	if len(req.NewPassword) < minPasswordLength {
		return nil, apperrors.Validation(msgPasswordTooShort)
	}

	user, err := s.userRepo.GetByEmail(ctx, utils.SanitizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Validation(msgInvalidResetToken)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	token, err := s.resetRepo.FindValid(ctx, user.ID, utils.HashToken(req.Token), s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Validation(msgInvalidResetToken)
		}
		return nil, fmt.Errorf("failed to get reset token: %w", err)
	}

	passwordHash, err := utils.HashPassword(req.NewPassword, s.opts.BCryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// consume first so two concurrent resets with one token cannot both succeed
	if err := s.resetRepo.MarkUsed(ctx, token.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Validation(msgInvalidResetToken)
		}
		return nil, fmt.Errorf("failed to consume reset token: %w", err)
	}

	user.PasswordHash = passwordHash
	user.Security.Reset()
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update password: %w", err)
	}

	return &dto.MessageResponse{Message: msgPasswordReset}, nil
}
