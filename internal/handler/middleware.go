package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/estate-auth/internal/dto"
	"github.com/prperemyshlev/estate-auth/internal/service"
)

const (
	contextUserID = "user_id"
	contextClaims = "claims"
)

// AuthMiddleware validates the bearer access token and adds its claims to the context
func AuthMiddleware(authService service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "Authorization header is required")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			abortUnauthorized(c, "Invalid authorization header format")
			return
		}

		claims, err := authService.ValidateToken(c.Request.Context(), token)
		if err != nil {
			abortUnauthorized(c, "Invalid or expired token")
			return
		}

		c.Set(contextUserID, claims.UserID)
		c.Set("email", claims.Email)
		c.Set(contextClaims, claims)

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{
		Error:   http.StatusText(http.StatusUnauthorized),
		Message: message,
	})
}
