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

// otpRepository implements OTPRepository interface
type otpRepository struct {
	db *database.Postgres
}

// NewOTPRepository creates a new OTP repository
func NewOTPRepository(db *database.Postgres) OTPRepository {
	return &otpRepository{db: db}
}

// Create stores a new code hash
func (r *otpRepository) Create(ctx context.Context, code *domain.OTPCode) error {
	query := `
		INSERT INTO otp_codes (id, user_id, code_hash, expires_at, used, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	if code.ID == "" {
		code.ID = uuid.New().String()
	}
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now()
	}

	_, err := r.db.DB.ExecContext(ctx, query,
		code.ID,
		code.UserID,
		code.CodeHash,
		code.ExpiresAt,
		code.Used,
		code.Attempts,
		code.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create otp code: %w", err)
	}

	return nil
}

// FindLatestUnused retrieves the newest unused code for a user
func (r *otpRepository) FindLatestUnused(ctx context.Context, userID string) (*domain.OTPCode, error) {
	query := `
		SELECT id, user_id, code_hash, expires_at, used, attempts, created_at
		FROM otp_codes
		WHERE user_id = $1 AND used = false
		ORDER BY created_at DESC
		LIMIT 1
	`

	code := &domain.OTPCode{}
	err := r.db.DB.QueryRowContext(ctx, query, userID).Scan(
		&code.ID,
		&code.UserID,
		&code.CodeHash,
		&code.ExpiresAt,
		&code.Used,
		&code.Attempts,
		&code.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no unused otp for user %s: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get latest otp: %w", err)
	}

	return code, nil
}

// InvalidateAllUnused marks every live code of the user as used
func (r *otpRepository) InvalidateAllUnused(ctx context.Context, userID string) error {
	query := `UPDATE otp_codes SET used = true WHERE user_id = $1 AND used = false`

	if _, err := r.db.DB.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to invalidate otp codes: %w", err)
	}

	return nil
}

// Update saves attempts and used state
func (r *otpRepository) Update(ctx context.Context, code *domain.OTPCode) error {
	query := `UPDATE otp_codes SET used = $2, attempts = $3 WHERE id = $1`

	result, err := r.db.DB.ExecContext(ctx, query, code.ID, code.Used, code.Attempts)
	if err != nil {
		return fmt.Errorf("failed to update otp code: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("otp code with id %s not found: %w", code.ID, ErrNotFound)
	}

	return nil
}

// DeleteExpired deletes all codes that expired before the given time
func (r *otpRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.DB.ExecContext(ctx, `DELETE FROM otp_codes WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired otp codes: %w", err)
	}

	return result.RowsAffected()
}
