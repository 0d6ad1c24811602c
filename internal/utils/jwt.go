package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prperemyshlev/estate-auth/internal/domain"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// ErrTokenType is returned when a valid token of the wrong kind is presented
var ErrTokenType = errors.New("invalid token type")

type jwtClaims struct {
	Email    string `json:"email"`
	Role     string `json:"role"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Type     string `json:"type"`
	jwt.RegisteredClaims
}

// JWTManager signs and verifies access and refresh tokens with separate keys
type JWTManager struct {
	accessSecret       []byte
	refreshSecret      []byte
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	now                func() time.Time
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(accessSecret, refreshSecret string, accessTokenExpiry, refreshTokenExpiry time.Duration) *JWTManager {
	return &JWTManager{
		accessSecret:       []byte(accessSecret),
		refreshSecret:      []byte(refreshSecret),
		accessTokenExpiry:  accessTokenExpiry,
		refreshTokenExpiry: refreshTokenExpiry,
		now:                time.Now,
	}
}

// WithClock replaces the time source used for issuing and validating tokens
func (j *JWTManager) WithClock(now func() time.Time) *JWTManager {
	j.now = now
	return j
}

// GenerateAccessToken generates a new access token
func (j *JWTManager) GenerateAccessToken(claims domain.TokenClaims) (string, error) {
	token, err := j.sign(claims, tokenTypeAccess, j.accessSecret, j.accessTokenExpiry)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// GenerateRefreshToken generates a new refresh token.
// Every token carries a fresh jti, so two tokens minted in the same second still differ.
func (j *JWTManager) GenerateRefreshToken(claims domain.TokenClaims) (string, error) {
	token, err := j.sign(claims, tokenTypeRefresh, j.refreshSecret, j.refreshTokenExpiry)
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return token, nil
}

// ValidateToken validates an access token and returns its claims
func (j *JWTManager) ValidateToken(tokenString string) (*domain.TokenClaims, error) {
	return j.parse(tokenString, tokenTypeAccess, j.accessSecret)
}

// ValidateRefreshToken validates a refresh token and returns its claims
func (j *JWTManager) ValidateRefreshToken(tokenString string) (*domain.TokenClaims, error) {
	return j.parse(tokenString, tokenTypeRefresh, j.refreshSecret)
}

// GetAccessTokenExpiry returns the access token expiry duration in seconds
func (j *JWTManager) GetAccessTokenExpiry() int {
	return int(j.accessTokenExpiry.Seconds())
}

func (j *JWTManager) sign(claims domain.TokenClaims, tokenType string, secret []byte, ttl time.Duration) (string, error) {
	now := j.now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		Email:    claims.Email,
		Role:     claims.Role,
		Username: claims.Username,
		FullName: claims.FullName,
		Type:     tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.UserID,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	return token.SignedString(secret)
}

func (j *JWTManager) parse(tokenString, tokenType string, secret []byte) (*domain.TokenClaims, error) {
	claims := &jwtClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithTimeFunc(j.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	if claims.Type != tokenType {
		return nil, ErrTokenType
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("invalid subject in token")
	}

	return &domain.TokenClaims{
		UserID:   claims.Subject,
		Email:    claims.Email,
		Role:     claims.Role,
		Username: claims.Username,
		FullName: claims.FullName,
	}, nil
}
