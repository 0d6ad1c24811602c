package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prperemyshlev/estate-auth/internal/domain"
	"github.com/prperemyshlev/estate-auth/pkg/database"
)

// passwordResetRepository implements PasswordResetRepository interface
type passwordResetRepository struct {
	db *database.Postgres
}

// NewPasswordResetRepository creates a new password reset repository
func NewPasswordResetRepository(db *database.Postgres) PasswordResetRepository {
	return &passwordResetRepository{db: db}
}

// Create stores a new reset token hash
func (r *passwordResetRepository) Create(ctx context.Context, token *domain.PasswordResetToken) error {
	query := `
		INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}

	_, err := r.db.DB.ExecContext(ctx, query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.ExpiresAt,
		token.Used,
		token.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("reset token with hash already exists: %w", ErrDuplicateToken)
		}
		return fmt.Errorf("failed to create reset token: %w", err)
	}

	return nil
}

// FindValid retrieves a reset token that is unused and unexpired at now
func (r *passwordResetRepository) FindValid(ctx context.Context, userID, tokenHash string, now time.Time) (*domain.PasswordResetToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, used, created_at
		FROM password_reset_tokens
		WHERE user_id = $1 AND token_hash = $2 AND used = false AND expires_at > $3
	`

	token := &domain.PasswordResetToken{}
	err := r.db.DB.QueryRowContext(ctx, query, userID, tokenHash, now).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.Used,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("valid reset token not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get reset token: %w", err)
	}

	return token, nil
}

// MarkUsed consumes a token. A token that was already used is reported as not found.
func (r *passwordResetRepository) MarkUsed(ctx context.Context, id string) error {
	result, err := r.db.DB.ExecContext(ctx,
		`UPDATE password_reset_tokens SET used = true WHERE id = $1 AND used = false`, id)
	if err != nil {
		return fmt.Errorf("failed to mark reset token used: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("unused reset token with id %s not found: %w", id, ErrNotFound)
	}

	return nil
}

// DeleteExpired deletes all reset tokens that expired before the given time
func (r *passwordResetRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.DB.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired reset tokens: %w", err)
	}

	return result.RowsAffected()
}
