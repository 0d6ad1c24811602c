package domain

// TokenClaims represents the identity embedded in access and refresh tokens
type TokenClaims struct {
	UserID   string `json:"sub"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
}

// ClaimsFor builds token claims from a user record
func ClaimsFor(u *User) TokenClaims {
	return TokenClaims{
		UserID:   u.ID,
		Email:    u.Email,
		Role:     u.Role,
		Username: u.Username,
		FullName: u.FullName,
	}
}

// TokenPair represents a pair of access and refresh tokens
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
