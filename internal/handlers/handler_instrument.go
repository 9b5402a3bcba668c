package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	portssvc "github.com/quantfolio/portfolio_accountant/internal/core/ports/services"
	"github.com/quantfolio/portfolio_accountant/internal/dto"
	"github.com/quantfolio/portfolio_accountant/internal/middleware"
)

// instrumentHandler handles HTTP requests related to instruments and prices.
type instrumentHandler struct {
	instrumentService portssvc.InstrumentSvcFacade
}

// registerInstrumentRoutes registers routes related to instruments.
func registerInstrumentRoutes(rg *gin.RouterGroup, instrumentService portssvc.InstrumentSvcFacade) {
	h := &instrumentHandler{instrumentService: instrumentService}

	instruments := rg.Group("/instruments")
	{
		instruments.POST("", h.createInstrument)
		instruments.GET("", h.listInstruments)
		instruments.GET("/:id", h.getInstrument)
		instruments.PUT("/:id", h.updateInstrument)
		instruments.POST("/:id/prices", h.recordPrice)
		instruments.GET("/:id/prices/latest", h.latestPrice)
	}
}

func (h *instrumentHandler) createInstrument(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var req dto.CreateInstrumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for CreateInstrument", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	instrument, err := h.instrumentService.CreateInstrument(c.Request.Context(), req, actor(c))
	if err != nil {
		respondError(c, logger, err, "create instrument")
		return
	}
	c.JSON(http.StatusCreated, dto.ToInstrumentResponse(instrument))
}

func (h *instrumentHandler) getInstrument(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	instrument, err := h.instrumentService.GetInstrumentByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, logger, err, "get instrument")
		return
	}
	c.JSON(http.StatusOK, dto.ToInstrumentResponse(instrument))
}

func (h *instrumentHandler) listInstruments(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	instruments, err := h.instrumentService.ListInstruments(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, logger, err, "list instruments")
		return
	}
	resp := make([]dto.InstrumentResponse, 0, len(instruments))
	for i := range instruments {
		resp = append(resp, dto.ToInstrumentResponse(&instruments[i]))
	}
	c.JSON(http.StatusOK, gin.H{"instruments": resp})
}

func (h *instrumentHandler) updateInstrument(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var req dto.UpdateInstrumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for UpdateInstrument", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	instrument, err := h.instrumentService.UpdateInstrument(c.Request.Context(), c.Param("id"), req, actor(c))
	if err != nil {
		respondError(c, logger, err, "update instrument")
		return
	}
	c.JSON(http.StatusOK, dto.ToInstrumentResponse(instrument))
}

func (h *instrumentHandler) recordPrice(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var req dto.RecordPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for RecordPrice", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	if err := h.instrumentService.RecordPrice(c.Request.Context(), c.Param("id"), req); err != nil {
		respondError(c, logger, err, "record price")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *instrumentHandler) latestPrice(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	asOf := time.Now().UTC()
	if raw := c.Query("asOf"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid asOf timestamp: " + err.Error()})
			return
		}
		asOf = parsed
	}

	price, err := h.instrumentService.LatestPrice(c.Request.Context(), c.Param("id"), asOf)
	if err != nil {
		respondError(c, logger, err, "get latest price")
		return
	}
	c.JSON(http.StatusOK, price)
}
