// Package respond maps service errors to JSON error responses.
package respond

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/doclens/internal/collaborator"
	"github.com/liliang-cn/doclens/internal/domain"
)

// Status returns the HTTP status for err
func Status(err error) int {
	var apiErr *collaborator.APIError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrUnsupportedFile):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, domain.ErrUnavailable), errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as {"error": "..."}
func Error(c *gin.Context, err error) {
	c.Error(err)
	c.JSON(Status(err), gin.H{"error": err.Error()})
}
