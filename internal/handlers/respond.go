package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quantfolio/portfolio_accountant/internal/apperrors"
	"github.com/quantfolio/portfolio_accountant/internal/middleware"
)

// respondError maps service errors to HTTP status codes with a consistent
// body shape. Unexpected errors are logged and hidden behind a generic 500.
func respondError(c *gin.Context, logger *slog.Logger, err error, action string) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrValidation),
		errors.Is(err, apperrors.ErrInvalidReference),
		errors.Is(err, apperrors.ErrUnbalancedTransaction),
		errors.Is(err, apperrors.ErrInsufficientQuantity):
		logger.Warn("Request rejected", slog.String("action", action), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrDuplicate),
		errors.Is(err, apperrors.ErrConflict),
		errors.Is(err, apperrors.ErrDependentState),
		errors.Is(err, apperrors.ErrAlreadyProcessed):
		logger.Warn("Conflicting request", slog.String("action", action), slog.String("error", err.Error()))
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.Error("Request failed", slog.String("action", action), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + action})
	}
}

// actor returns the acting user ID for audit attribution.
func actor(c *gin.Context) string {
	if userID, ok := middleware.GetUserIDFromContext(c); ok {
		return userID
	}
	return "system"
}
