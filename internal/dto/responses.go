package dto

import "github.com/prperemyshlev/estate-auth/internal/domain"

// AuthResponse represents an authentication response
type AuthResponse struct {
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken"`
	TokenType    string            `json:"tokenType"`
	ExpiresIn    int               `json:"expiresIn"`
	User         domain.PublicUser `json:"user"`
}

// RegisterResponse represents a registration response
type RegisterResponse struct {
	Message string            `json:"message"`
	OTPSent bool              `json:"otpSent"`
	User    domain.PublicUser `json:"user"`
}

// MessageResponse represents a plain success response
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}
