package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	portssvc "github.com/quantfolio/portfolio_accountant/internal/core/ports/services"
	"github.com/quantfolio/portfolio_accountant/internal/dto"
	"github.com/quantfolio/portfolio_accountant/internal/middleware"
)

// reportingHandler handles position, reconciliation and P&L queries.
type reportingHandler struct {
	reconciliationService portssvc.ReconciliationSvcFacade
	valuationService      portssvc.ValuationSvcFacade
}

// registerReportingRoutes registers read-side reporting routes.
func registerReportingRoutes(rg *gin.RouterGroup, reconciliationService portssvc.ReconciliationSvcFacade, valuationService portssvc.ValuationSvcFacade) {
	h := &reportingHandler{
		reconciliationService: reconciliationService,
		valuationService:      valuationService,
	}

	rg.GET("/positions", h.listPositions)
	rg.GET("/reconciliation", h.reconcile)

	pnl := rg.Group("/pnl")
	{
		pnl.GET("/realized", h.realizedPnL)
		pnl.POST("/unrealized", h.unrealizedPnL)
		pnl.POST("/report", h.pnlReport)
	}
}

func (h *reportingHandler) listPositions(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var filter dto.PositionFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
		return
	}

	positions, err := h.reconciliationService.Positions(c.Request.Context(), filter)
	if err != nil {
		respondError(c, logger, err, "list positions")
		return
	}
	resp := make([]dto.PositionResponse, 0, len(positions))
	for _, p := range positions {
		resp = append(resp, dto.ToPositionResponse(p))
	}
	c.JSON(http.StatusOK, gin.H{"positions": resp})
}

func (h *reportingHandler) reconcile(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	report, err := h.reconciliationService.Reconcile(c.Request.Context())
	if err != nil {
		respondError(c, logger, err, "reconcile positions")
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *reportingHandler) realizedPnL(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var params dto.RealizedPnLParams
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
		return
	}

	resp, err := h.valuationService.RealizedPnL(c.Request.Context(), params)
	if err != nil {
		respondError(c, logger, err, "compute realized pnl")
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *reportingHandler) unrealizedPnL(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var params dto.UnrealizedPnLParams
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&params); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
			return
		}
	}

	resp, err := h.valuationService.UnrealizedPnL(c.Request.Context(), params)
	if err != nil {
		respondError(c, logger, err, "compute unrealized pnl")
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *reportingHandler) pnlReport(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var params dto.UnrealizedPnLParams
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&params); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
			return
		}
	}

	resp, err := h.valuationService.PnLReport(c.Request.Context(), params)
	if err != nil {
		respondError(c, logger, err, "build pnl report")
		return
	}
	c.JSON(http.StatusOK, resp)
}
