package dto

import "strings"

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	FullName string `json:"fullName" binding:"max=255"`
}

// ResendOTPRequest represents a request for a new verification code
type ResendOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// VerifyEmailRequest represents an OTP submission
type VerifyEmailRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required,numeric"`
}

// LoginRequest represents a login request. Login accepts an email or a username;
// email and username are accepted as aliases.
type LoginRequest struct {
	Login    string `json:"login"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password" binding:"required"`
}

// Identifier returns the first non-empty login field
func (r LoginRequest) Identifier() string {
	for _, v := range []string{r.Login, r.Email, r.Username} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// RefreshRequest carries a refresh token in the body. The handler falls back
// to the refresh_token cookie when it is empty.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// ForgotPasswordRequest represents a password reset request
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResetPasswordRequest represents a password reset confirmation
type ResetPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=8,max=72"`
}
