package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	portssvc "github.com/quantfolio/portfolio_accountant/internal/core/ports/services"
	"github.com/quantfolio/portfolio_accountant/internal/dto"
	"github.com/quantfolio/portfolio_accountant/internal/middleware"
)

// corporateActionHandler handles HTTP requests for corporate actions.
type corporateActionHandler struct {
	actionService portssvc.CorporateActionSvcFacade
}

// registerCorporateActionRoutes registers routes for corporate actions.
func registerCorporateActionRoutes(rg *gin.RouterGroup, actionService portssvc.CorporateActionSvcFacade) {
	h := &corporateActionHandler{actionService: actionService}

	actions := rg.Group("/corporate-actions")
	{
		actions.POST("", h.createAction)
		actions.GET("", h.listActions)
		actions.GET("/:id", h.getAction)
		actions.PUT("/:id", h.updateAction)
		actions.DELETE("/:id", h.deleteAction)
		actions.POST("/:id/process", h.processAction)
		actions.POST("/process-pending", h.processPending)
	}
}

func (h *corporateActionHandler) createAction(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var req dto.CreateCorporateActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for CreateCorporateAction", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	action, err := h.actionService.CreateAction(c.Request.Context(), req, actor(c))
	if err != nil {
		respondError(c, logger, err, "create corporate action")
		return
	}
	c.JSON(http.StatusCreated, dto.ToCorporateActionResponse(action))
}

func (h *corporateActionHandler) getAction(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	action, err := h.actionService.GetAction(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, logger, err, "get corporate action")
		return
	}
	c.JSON(http.StatusOK, dto.ToCorporateActionResponse(action))
}

func (h *corporateActionHandler) listActions(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var params dto.ListCorporateActionsParams
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
		return
	}

	actions, err := h.actionService.ListActions(c.Request.Context(), params)
	if err != nil {
		respondError(c, logger, err, "list corporate actions")
		return
	}
	resp := make([]dto.CorporateActionResponse, 0, len(actions))
	for i := range actions {
		resp = append(resp, dto.ToCorporateActionResponse(&actions[i]))
	}
	c.JSON(http.StatusOK, gin.H{"corporateActions": resp})
}

func (h *corporateActionHandler) updateAction(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var req dto.UpdateCorporateActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for UpdateCorporateAction", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	action, err := h.actionService.UpdateAction(c.Request.Context(), c.Param("id"), req, actor(c))
	if err != nil {
		respondError(c, logger, err, "update corporate action")
		return
	}
	c.JSON(http.StatusOK, dto.ToCorporateActionResponse(action))
}

func (h *corporateActionHandler) deleteAction(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	if err := h.actionService.DeleteAction(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, logger, err, "delete corporate action")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *corporateActionHandler) processAction(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	result, err := h.actionService.Process(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		respondError(c, logger, err, "process corporate action")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *corporateActionHandler) processPending(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	cutoff := time.Now().UTC()
	if raw := c.Query("cutoff"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cutoff timestamp: " + err.Error()})
			return
		}
		cutoff = parsed
	}

	results, err := h.actionService.ProcessPending(c.Request.Context(), cutoff, actor(c))
	if err != nil {
		// Partial progress is still reported; earlier actions in results
		// committed before the failure.
		logger.Warn("Pending corporate action run stopped early", slog.Int("processed", len(results)), slog.String("error", err.Error()))
		c.JSON(http.StatusConflict, gin.H{"results": results, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
