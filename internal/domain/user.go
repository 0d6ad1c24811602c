package domain

import "time"

// RoleAdmin is the only role this subsystem issues.
const RoleAdmin = "admin"

// LoginSecurity tracks failed password attempts and the lockout window.
type LoginSecurity struct {
	FailureCount  int        `db:"failed_login_count"`
	LastAttemptAt *time.Time `db:"last_failed_login_at"`
	LockedUntil   *time.Time `db:"locked_until"`
}

// IsLocked reports whether the account is inside an active lockout window.
func (s LoginSecurity) IsLocked(now time.Time) bool {
	return s.LockedUntil != nil && s.LockedUntil.After(now)
}

// Reset clears all failure tracking.
func (s *LoginSecurity) Reset() {
	s.FailureCount = 0
	s.LastAttemptAt = nil
	s.LockedUntil = nil
}

// User represents an administrator account
type User struct {
	ID            string        `json:"id" db:"id"`
	Username      string        `json:"username" db:"username"`
	Email         string        `json:"email" db:"email"`
	FullName      string        `json:"fullName" db:"full_name"`
	Role          string        `json:"role" db:"role"`
	PasswordHash  string        `json:"-" db:"password_hash"`
	EmailVerified bool          `json:"emailVerified" db:"email_verified"`
	IsActive      bool          `json:"isActive" db:"is_active"`
	Security      LoginSecurity `json:"-"`
	LastLoginAt   *time.Time    `json:"lastLoginAt,omitempty" db:"last_login_at"`
	CreatedAt     time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time     `json:"updatedAt" db:"updated_at"`
}

// PublicUser is the projection returned to API clients.
type PublicUser struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	FullName      string `json:"fullName"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"emailVerified"`
}

// Public returns the client-facing projection of the user.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		FullName:      u.FullName,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
	}
}
