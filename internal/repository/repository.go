package repository

import (
	"github.com/prperemyshlev/estate-auth/pkg/database"
)

// Repositories holds all repository interfaces
type Repositories struct {
	User          UserRepository
	OTP           OTPRepository
	PasswordReset PasswordResetRepository
	Token         TokenRepository
}

// NewRepositories creates all repositories
func NewRepositories(db *database.Postgres) *Repositories {
	return &Repositories{
		User:          NewUserRepository(db),
		OTP:           NewOTPRepository(db),
		PasswordReset: NewPasswordResetRepository(db),
		Token:         NewTokenRepository(db),
	}
}
