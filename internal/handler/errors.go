package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prperemyshlev/estate-auth/internal/apperrors"
	"github.com/prperemyshlev/estate-auth/internal/dto"
	"go.uber.org/zap"
)

// FieldError describes one failed binding rule
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// respondError writes an AppError as {error, message}. Anything else is a 500.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	if appErr, ok := apperrors.As(err); ok && appErr.Kind != apperrors.KindInternal {
		status := appErr.Status()
		c.JSON(status, dto.ErrorResponse{
			Error:   http.StatusText(status),
			Message: appErr.Message,
		})
		return
	}

	logger.Error("Request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
		Error:   http.StatusText(http.StatusInternalServerError),
		Message: "Internal server error",
	})
}

// respondBindError reports a malformed request body, listing failed fields when the validator ran
func respondBindError(c *gin.Context, err error) {
	resp := dto.ErrorResponse{
		Error:   "Validation failed",
		Message: "Invalid request body",
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, FieldError{
				Field: lowerFirst(fe.Field()),
				Rule:  fe.Tag(),
				Param: fe.Param(),
			})
		}
		resp.Details = details
	}

	c.JSON(http.StatusBadRequest, resp)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
