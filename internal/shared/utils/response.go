// Package utils holds small HTTP response helpers shared by handlers.
package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/proxypulse/proxypulse/internal/shared/errors"
)

// ErrorInfo is the error body rendered for failed requests.
type ErrorInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ErrorResponse is the envelope for failed requests.
type ErrorResponse struct {
	Success bool       `json:"success"`
	Error   *ErrorInfo `json:"error"`
}

// ErrorResponseWithError renders an error with the status carried by an
// AppError, or 500 for unclassified errors.
func ErrorResponseWithError(c *gin.Context, err error) {
	if appErr, ok := errors.AsAppError(err); ok {
		c.JSON(appErr.Code, ErrorResponse{
			Success: false,
			Error: &ErrorInfo{
				Type:    string(appErr.Type),
				Message: appErr.Message,
				Details: appErr.Details,
			},
		})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Success: false,
		Error: &ErrorInfo{
			Type:    string(errors.ErrorTypeInternal),
			Message: "internal server error",
		},
	})
}
