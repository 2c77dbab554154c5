package api

import (
	"errors"
	"net/http"

	"reservation-service/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorKind struct {
	target error
	status int
	code   string
}

// errorKinds is checked in order; the first match wins
var errorKinds = []errorKind{
	{models.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{models.ErrInvalidListing, http.StatusBadRequest, "invalid_listing"},
	{models.ErrForbidden, http.StatusForbidden, "forbidden"},
	{models.ErrListingNotFound, http.StatusNotFound, "listing_not_found"},
	{models.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{models.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
	{models.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{models.ErrConflict, http.StatusConflict, "conflict"},
	{models.ErrCompensationFailed, http.StatusServiceUnavailable, "compensation_failed"},
	{models.ErrOrderPersistenceFailed, http.StatusInternalServerError, "persistence_failed"},
}

// writeError maps a service error to a status and a stable code. Details
// of unexpected failures are logged, not returned.
func (h *Handler) writeError(c *gin.Context, err error) {
	for _, kind := range errorKinds {
		if !errors.Is(err, kind.target) {
			continue
		}
		if kind.status >= http.StatusInternalServerError {
			h.logger.Error("Request failed",
				zap.String("path", c.FullPath()),
				zap.String("code", kind.code),
				zap.Error(err))
			c.JSON(kind.status, gin.H{"error": kind.target.Error(), "code": kind.code})
			return
		}
		c.JSON(kind.status, gin.H{"error": err.Error(), "code": kind.code})
		return
	}

	h.logger.Error("Unexpected error", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "code": "internal"})
}
