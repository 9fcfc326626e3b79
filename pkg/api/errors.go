package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/oasis/pkg/config"
	"github.com/codeready-toolchain/oasis/pkg/registry"
	"github.com/codeready-toolchain/oasis/pkg/schedule"
	"github.com/codeready-toolchain/oasis/pkg/storage"
)

// abortWithError maps domain errors to HTTP responses.
func abortWithError(c *gin.Context, err error) {
	var validErr *config.ValidationError

	switch {
	case errors.Is(err, schedule.ErrBadSchedule), errors.Is(err, storage.ErrBadName):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &validErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validErr.Error()})
	case errors.Is(err, registry.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "topic not found"})
	case errors.Is(err, registry.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "topic belongs to another owner"})
	case errors.Is(err, registry.ErrTimeout):
		c.JSON(http.StatusRequestTimeout, gin.H{"error": err.Error()})
	default:
		slog.Error("Unexpected handler error", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
