package domain

import "time"

// OTPCode is a one-time email verification code. Only its hash is stored.
type OTPCode struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	CodeHash  string    `db:"code_hash"`
	ExpiresAt time.Time `db:"expires_at"`
	Used      bool      `db:"used"`
	Attempts  int       `db:"attempts"`
	CreatedAt time.Time `db:"created_at"`
}

// IsExpired checks if the code is past its expiry
func (o *OTPCode) IsExpired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// PasswordResetToken records a single-use password reset grant.
type PasswordResetToken struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	TokenHash string    `db:"token_hash"`
	ExpiresAt time.Time `db:"expires_at"`
	Used      bool      `db:"used"`
	CreatedAt time.Time `db:"created_at"`
}

// RefreshToken is a ledger row for an issued refresh token.
// ReplacedBy links a rotated token to its successor.
type RefreshToken struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	TokenHash  string    `db:"token_hash"`
	ExpiresAt  time.Time `db:"expires_at"`
	Revoked    bool      `db:"revoked"`
	ReplacedBy *string   `db:"replaced_by"`
	CreatedAt  time.Time `db:"created_at"`
}

// IsExpired checks if the ledger row is past its expiry
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
