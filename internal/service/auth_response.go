package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/prperemyshlev/estate-auth/internal/domain"
	"github.com/prperemyshlev/estate-auth/internal/dto"
	"github.com/prperemyshlev/estate-auth/internal/utils"
)

// AuthResponseWithRefreshToken contains auth response and refresh token ledger details
type AuthResponseWithRefreshToken struct {
	AuthResponse *dto.AuthResponse
	RefreshToken string
	ExpiresIn    int    // Refresh token ledger expiry in seconds
	TokenID      string // Ledger row id of RefreshToken
}

// issueSession mints an access/refresh pair and records the refresh token in the ledger
func (s *authService) issueSession(ctx context.Context, claims domain.TokenClaims, user domain.PublicUser) (*AuthResponseWithRefreshToken, error) {
	accessToken, err := s.jwtManager.GenerateAccessToken(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := s.jwtManager.GenerateRefreshToken(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	// the ledger expiry is authoritative for revocation, independent of the jwt exp claim
	row := &domain.RefreshToken{
		ID:        uuid.New().String(),
		UserID:    claims.UserID,
		TokenHash: utils.HashToken(refreshToken),
		ExpiresAt: s.now().Add(s.opts.RefreshLedgerTTL),
	}

	if err := s.tokenRepo.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to save refresh token: %w", err)
	}

	return &AuthResponseWithRefreshToken{
		AuthResponse: &dto.AuthResponse{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			TokenType:    "Bearer",
			ExpiresIn:    s.jwtManager.GetAccessTokenExpiry(),
			User:         user,
		},
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.opts.RefreshLedgerTTL.Seconds()),
		TokenID:      row.ID,
	}, nil
}
