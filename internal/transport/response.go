// response.go — 统一 JSON 响应辅助，供所有 handler 共用。
package transport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/agentmesh/registry/pkg/errors"
	"github.com/agentmesh/registry/pkg/logger"
)

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": data})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": gin.H{"code": "invalid_input", "message": message}})
}

// fail maps an error from the registry core onto an HTTP status using the
// sentinel taxonomy, defaulting to 500 for anything unrecognised.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": gin.H{"code": "invalid_input", "message": err.Error()}})
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": gin.H{"code": "not_found", "message": err.Error()}})
	case errors.Is(err, apperrors.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": gin.H{"code": "unavailable", "message": err.Error()}})
	case errors.Is(err, apperrors.ErrTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"success": false, "error": gin.H{"code": "timeout", "message": err.Error()}})
	default:
		logger.FromContext(c.Request.Context()).Error("internal error", logger.Any(logger.FieldError, err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": gin.H{"code": "internal_error", "message": "internal error"}})
	}
}
