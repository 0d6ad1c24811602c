package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/estate-auth/internal/apperrors"
	"github.com/prperemyshlev/estate-auth/internal/config"
	"github.com/prperemyshlev/estate-auth/internal/domain"
	"github.com/prperemyshlev/estate-auth/internal/dto"
	"github.com/prperemyshlev/estate-auth/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubAuthService answers every call from its function fields
type stubAuthService struct {
	register       func(*dto.RegisterRequest) (*dto.RegisterResponse, error)
	resendOTP      func(string) (*dto.MessageResponse, error)
	verifyEmail    func(string, string) (*dto.MessageResponse, error)
	login          func(*dto.LoginRequest) (*service.AuthResponseWithRefreshToken, error)
	refresh        func(string) (*service.AuthResponseWithRefreshToken, error)
	logout         func(string) (*dto.MessageResponse, error)
	forgotPassword func(string) (*dto.MessageResponse, error)
	resetPassword  func(*dto.ResetPasswordRequest) (*dto.MessageResponse, error)
	getUser        func(string) (*domain.PublicUser, error)
	validateToken  func(string) (*domain.TokenClaims, error)
}

var _ service.AuthService = (*stubAuthService)(nil)

func (s *stubAuthService) Register(_ context.Context, req *dto.RegisterRequest) (*dto.RegisterResponse, error) {
	return s.register(req)
}

func (s *stubAuthService) ResendOTP(_ context.Context, email string) (*dto.MessageResponse, error) {
	return s.resendOTP(email)
}

func (s *stubAuthService) VerifyEmail(_ context.Context, email, code string) (*dto.MessageResponse, error) {
	return s.verifyEmail(email, code)
}

func (s *stubAuthService) Login(_ context.Context, req *dto.LoginRequest) (*service.AuthResponseWithRefreshToken, error) {
	return s.login(req)
}

func (s *stubAuthService) RefreshToken(_ context.Context, token string) (*service.AuthResponseWithRefreshToken, error) {
	return s.refresh(token)
}

func (s *stubAuthService) Logout(_ context.Context, token string) (*dto.MessageResponse, error) {
	return s.logout(token)
}

func (s *stubAuthService) ForgotPassword(_ context.Context, email string) (*dto.MessageResponse, error) {
	return s.forgotPassword(email)
}

func (s *stubAuthService) ResetPassword(_ context.Context, req *dto.ResetPasswordRequest) (*dto.MessageResponse, error) {
	return s.resetPassword(req)
}

func (s *stubAuthService) GetUser(_ context.Context, userID string) (*domain.PublicUser, error) {
	return s.getUser(userID)
}

func (s *stubAuthService) ValidateToken(_ context.Context, token string) (*domain.TokenClaims, error) {
	return s.validateToken(token)
}

func newTestRouter(svc service.AuthService) *gin.Engine {
	h := NewAuthHandler(svc, nil, false)

	router := gin.New()
	auth := router.Group("/api/v1/auth")
	auth.POST("/register", h.Register)
	auth.POST("/resend-otp", h.ResendOTP)
	auth.POST("/verify-email", h.VerifyEmail)
	auth.POST("/login", h.Login)
	auth.POST("/refresh", h.Refresh)
	auth.POST("/logout", h.Logout)
	auth.POST("/forgot-password", h.ForgotPassword)
	auth.POST("/reset-password", h.ResetPassword)
	auth.GET("/me", AuthMiddleware(svc), h.GetMe)
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func refreshCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == refreshCookieName {
			return c
		}
	}
	return nil
}

func sessionResponse(refresh string) *service.AuthResponseWithRefreshToken {
	return &service.AuthResponseWithRefreshToken{
		AuthResponse: &dto.AuthResponse{
			AccessToken:  "access",
			RefreshToken: refresh,
			TokenType:    "Bearer",
			ExpiresIn:    900,
			User:         domain.PublicUser{ID: "u1", Username: "alice", EmailVerified: true},
		},
		RefreshToken: refresh,
		ExpiresIn:    604800,
		TokenID:      "row-1",
	}
}

func TestRegisterCreated(t *testing.T) {
	svc := &stubAuthService{
		register: func(req *dto.RegisterRequest) (*dto.RegisterResponse, error) {
			assert.Equal(t, "alice", req.Username)
			return &dto.RegisterResponse{Message: "Registration successful.", OTPSent: true, User: domain.PublicUser{Username: "alice"}}, nil
		},
	}

	w := doJSON(t, newTestRouter(svc), http.MethodPost, "/api/v1/auth/register", map[string]string{
		"username": "alice",
		"email":    "alice@x.com",
		"password": "pw123456",
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp dto.RegisterResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OTPSent)
	assert.Equal(t, "alice", resp.User.Username)
}

func TestRegisterBindingDetails(t *testing.T) {
	svc := &stubAuthService{}

	w := doJSON(t, newTestRouter(svc), http.MethodPost, "/api/v1/auth/register", map[string]string{
		"username": "al",
		"email":    "nope",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "Validation failed", resp.Error)

	details, ok := resp.Details.([]any)
	require.True(t, ok)
	fields := make([]string, 0, len(details))
	for _, d := range details {
		fields = append(fields, d.(map[string]any)["field"].(string))
	}
	assert.ElementsMatch(t, []string{"username", "email", "password"}, fields)
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"conflict", apperrors.Conflict("User with this email or username already exists"), http.StatusConflict, "User with this email or username already exists"},
		{"forbidden", apperrors.Forbidden("Email not verified"), http.StatusForbidden, "Email not verified"},
		{"locked", apperrors.Locked("Account temporarily locked"), http.StatusLocked, "Account temporarily locked"},
		{"uniform", apperrors.UnauthorizedUniform(), http.StatusUnauthorized, apperrors.MsgInvalidCredentials},
		{"rate limited", apperrors.RateLimited("Too many attempts"), http.StatusTooManyRequests, "Too many attempts"},
		{"wrapped", errors.Join(errors.New("ctx"), apperrors.Validation("Invalid OTP")), http.StatusBadRequest, "Invalid OTP"},
		{"unknown", errors.New("pq: connection refused"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubAuthService{
				login: func(*dto.LoginRequest) (*service.AuthResponseWithRefreshToken, error) {
					return nil, tt.err
				},
			}

			w := doJSON(t, newTestRouter(svc), http.MethodPost, "/api/v1/auth/login", map[string]string{
				"login":    "alice",
				"password": "pw123456",
			})

			assert.Equal(t, tt.status, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, tt.message, resp.Message)
			assert.Equal(t, http.StatusText(tt.status), resp.Error)
			assert.NotContains(t, w.Body.String(), "connection refused")
		})
	}
}

func TestLoginSetsRefreshCookie(t *testing.T) {
	svc := &stubAuthService{
		login: func(req *dto.LoginRequest) (*service.AuthResponseWithRefreshToken, error) {
			assert.Equal(t, "alice@x.com", req.Identifier())
			return sessionResponse("refresh-1"), nil
		},
	}

	w := doJSON(t, newTestRouter(svc), http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "alice@x.com",
		"password": "pw123456",
	})

	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "access", resp.AccessToken)
	assert.Equal(t, "refresh-1", resp.RefreshToken)

	cookie := refreshCookie(w)
	require.NotNil(t, cookie)
	assert.Equal(t, "refresh-1", cookie.Value)
	assert.Equal(t, refreshCookiePath, cookie.Path)
	assert.Equal(t, 604800, cookie.MaxAge)
	assert.True(t, cookie.HttpOnly)
}

func TestRefreshPrefersBodyOverCookie(t *testing.T) {
	var got []string
	svc := &stubAuthService{
		refresh: func(token string) (*service.AuthResponseWithRefreshToken, error) {
			got = append(got, token)
			return sessionResponse("rotated"), nil
		},
	}
	router := newTestRouter(svc)
	withCookie := func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: refreshCookieName, Value: "from-cookie"})
	}

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refreshToken": "from-body"}, withCookie)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/auth/refresh", nil, withCookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "rotated", refreshCookie(w).Value)

	assert.Equal(t, []string{"from-body", "from-cookie"}, got)
}

func TestRefreshRejectedClearsCookie(t *testing.T) {
	svc := &stubAuthService{
		refresh: func(string) (*service.AuthResponseWithRefreshToken, error) {
			return nil, apperrors.Unauthorized("Refresh token revoked or invalid")
		},
	}

	w := doJSON(t, newTestRouter(svc), http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refreshToken": "stale"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Refresh token revoked or invalid", decodeError(t, w).Message)
	cookie := refreshCookie(w)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)
}

func TestLogoutWithoutBearer(t *testing.T) {
	svc := &stubAuthService{
		logout: func(token string) (*dto.MessageResponse, error) {
			assert.Equal(t, "unknown", token)
			return &dto.MessageResponse{Message: "Logged out"}, nil
		},
	}

	w := doJSON(t, newTestRouter(svc), http.MethodPost, "/api/v1/auth/logout", map[string]string{"refreshToken": "unknown"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Logged out"}`, w.Body.String())
	require.NotNil(t, refreshCookie(w))
}

func TestVerifyEmailRequiresNumericCode(t *testing.T) {
	called := false
	svc := &stubAuthService{
		verifyEmail: func(string, string) (*dto.MessageResponse, error) {
			called = true
			return &dto.MessageResponse{Message: "Email verified"}, nil
		},
	}
	router := newTestRouter(svc)

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/verify-email", map[string]string{"email": "alice@x.com", "code": "12ab56"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, called)

	w = doJSON(t, router, http.MethodPost, "/api/v1/auth/verify-email", map[string]string{"email": "alice@x.com", "code": "123456"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, called)
}

func TestForgotAndResetPassword(t *testing.T) {
	svc := &stubAuthService{
		forgotPassword: func(string) (*dto.MessageResponse, error) {
			return &dto.MessageResponse{Message: "If an account with that email exists, a password reset link has been sent."}, nil
		},
		resetPassword: func(req *dto.ResetPasswordRequest) (*dto.MessageResponse, error) {
			if req.Token != "good" {
				return nil, apperrors.Validation("Invalid or expired token")
			}
			return &dto.MessageResponse{Message: "Password has been reset"}, nil
		},
	}
	router := newTestRouter(svc)

	known := doJSON(t, router, http.MethodPost, "/api/v1/auth/forgot-password", map[string]string{"email": "alice@x.com"})
	unknown := doJSON(t, router, http.MethodPost, "/api/v1/auth/forgot-password", map[string]string{"email": "ghost@x.com"})
	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/reset-password", map[string]string{
		"email": "alice@x.com", "token": "used", "newPassword": "new-password-1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid or expired token", decodeError(t, w).Message)

	w = doJSON(t, router, http.MethodPost, "/api/v1/auth/reset-password", map[string]string{
		"email": "alice@x.com", "token": "good", "newPassword": "new-password-1",
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetMe(t *testing.T) {
	svc := &stubAuthService{
		validateToken: func(token string) (*domain.TokenClaims, error) {
			if token != "valid" {
				return nil, apperrors.Unauthorized("Invalid or expired token")
			}
			return &domain.TokenClaims{UserID: "u1", Email: "alice@x.com"}, nil
		},
		getUser: func(id string) (*domain.PublicUser, error) {
			return &domain.PublicUser{ID: id, Username: "alice", EmailVerified: true}, nil
		},
	}
	router := newTestRouter(svc)
	bearer := func(token string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
	}

	w := doJSON(t, router, http.MethodGet, "/api/v1/auth/me", nil, bearer("valid"))
	require.Equal(t, http.StatusOK, w.Code)
	var user domain.PublicUser
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))
	assert.Equal(t, "u1", user.ID)

	w = doJSON(t, router, http.MethodGet, "/api/v1/auth/me", nil, bearer("expired"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Authorization header is required", decodeError(t, w).Message)

	w = doJSON(t, router, http.MethodGet, "/api/v1/auth/me", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Basic abc")
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid authorization header format", decodeError(t, w).Message)
}

type stubLimiter struct {
	allowErr  error
	remaining int
	keys      []string
}

func (l *stubLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	l.keys = append(l.keys, key)
	return l.allowErr == nil, l.allowErr
}

func (l *stubLimiter) GetRemainingRequests(context.Context, string, int, time.Duration) (int, error) {
	return l.remaining, nil
}

func rateLimitedRouter(limiter Limiter, trustedProxies ...string) *gin.Engine {
	router := gin.New()
	if err := router.SetTrustedProxies(trustedProxies); err != nil {
		panic(err)
	}
	router.POST("/api/v1/auth/login", RateLimitMiddleware(limiter, 10, time.Minute, RouteIPKey, nil), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("allowed", func(t *testing.T) {
		limiter := &stubLimiter{remaining: 7}
		w := doJSON(t, rateLimitedRouter(limiter), http.MethodPost, "/api/v1/auth/login", nil, func(r *http.Request) {
			r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "7", w.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, []string{"/api/v1/auth/login:192.0.2.1"}, limiter.keys)
	})

	t.Run("forwarded for from untrusted peer is ignored", func(t *testing.T) {
		limiter := &stubLimiter{remaining: 7}
		router := rateLimitedRouter(limiter)
		for _, forwarded := range []string{"198.51.100.1", "198.51.100.2"} {
			doJSON(t, router, http.MethodPost, "/api/v1/auth/login", nil, func(r *http.Request) {
				r.Header.Set("X-Forwarded-For", forwarded)
			})
		}

		assert.Equal(t, []string{"/api/v1/auth/login:192.0.2.1", "/api/v1/auth/login:192.0.2.1"}, limiter.keys)
	})

	t.Run("forwarded for from trusted proxy", func(t *testing.T) {
		limiter := &stubLimiter{remaining: 7}
		doJSON(t, rateLimitedRouter(limiter, "192.0.2.1"), http.MethodPost, "/api/v1/auth/login", nil, func(r *http.Request) {
			r.Header.Set("X-Forwarded-For", "203.0.113.9")
		})

		assert.Equal(t, []string{"/api/v1/auth/login:203.0.113.9"}, limiter.keys)
	})

	t.Run("exceeded", func(t *testing.T) {
		limiter := &stubLimiter{allowErr: &service.RateLimitExceededError{RetryAfter: 42 * time.Second}}
		w := doJSON(t, rateLimitedRouter(limiter), http.MethodPost, "/api/v1/auth/login", nil)

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
		assert.NotContains(t, w.Body.String(), "42")
	})

	t.Run("limiter down fails open", func(t *testing.T) {
		limiter := &stubLimiter{allowErr: errors.New("redis: connection refused")}
		w := doJSON(t, rateLimitedRouter(limiter), http.MethodPost, "/api/v1/auth/login", nil)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestCORSMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(CORSMiddleware(config.CORSConfig{
		AllowedOrigins: []string{"http://localhost:3000"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.True(t, strings.Contains(w.Header().Get("Access-Control-Allow-Methods"), "POST"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
