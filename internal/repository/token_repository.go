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

const tokenColumns = `id, user_id, token_hash, expires_at, revoked, replaced_by, created_at`

// tokenRepository implements TokenRepository interface
type tokenRepository struct {
	db *database.Postgres
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(db *database.Postgres) TokenRepository {
	return &tokenRepository{db: db}
}

// Create creates a new refresh token in the database
func (r *tokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked, created_at)
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
		token.Revoked,
		token.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("token with hash already exists: %w", ErrDuplicateToken)
		}
		return fmt.Errorf("failed to create token: %w", err)
	}

	return nil
}

// FindActive retrieves an unrevoked token owned by the user
func (r *tokenRepository) FindActive(ctx context.Context, userID, tokenHash string) (*domain.RefreshToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM refresh_tokens WHERE token_hash = $1 AND user_id = $2 AND revoked = false`

	token, err := scanToken(r.db.DB.QueryRowContext(ctx, query, tokenHash, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("active token not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get active token: %w", err)
	}

	return token, nil
}

// GetByTokenHash retrieves a refresh token by its hash
func (r *tokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM refresh_tokens WHERE token_hash = $1`

	token, err := scanToken(r.db.DB.QueryRowContext(ctx, query, tokenHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("token with hash not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get token by hash: %w", err)
	}

	return token, nil
}

// Revoke flips an active token to revoked. Concurrent callers race on the
// WHERE clause and only one of them observes an affected row.
func (r *tokenRepository) Revoke(ctx context.Context, id string) (bool, error) {
	result, err := r.db.DB.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = true WHERE id = $1 AND revoked = false`, id)
	if err != nil {
		return false, fmt.Errorf("failed to revoke token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// SetReplacedBy links a rotated token to its successor
func (r *tokenRepository) SetReplacedBy(ctx context.Context, id, replacedBy string) error {
	result, err := r.db.DB.ExecContext(ctx,
		`UPDATE refresh_tokens SET replaced_by = $2 WHERE id = $1`, id, replacedBy)
	if err != nil {
		return fmt.Errorf("failed to link replacement token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("token with id %s not found: %w", id, ErrNotFound)
	}

	return nil
}

// DeleteExpired deletes all refresh tokens that expired before the given time
func (r *tokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.DB.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}

	return result.RowsAffected()
}

func scanToken(row scanner) (*domain.RefreshToken, error) {
	token := &domain.RefreshToken{}
	var replacedBy sql.NullString

	err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.Revoked,
		&replacedBy,
		&token.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if replacedBy.Valid {
		token.ReplacedBy = &replacedBy.String
	}

	return token, nil
}
