package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	portssvc "github.com/quantfolio/portfolio_accountant/internal/core/ports/services"
	"github.com/quantfolio/portfolio_accountant/internal/dto"
	"github.com/quantfolio/portfolio_accountant/internal/middleware"
)

// journalHandler handles HTTP requests for the transaction journal.
type journalHandler struct {
	journalService portssvc.JournalSvcFacade
}

// registerJournalRoutes registers routes for transactions and ledgers.
func registerJournalRoutes(rg *gin.RouterGroup, journalService portssvc.JournalSvcFacade) {
	h := &journalHandler{journalService: journalService}

	transactions := rg.Group("/transactions")
	{
		transactions.POST("", h.createDraft)
		transactions.GET("", h.listTransactions)
		transactions.GET("/:id", h.getTransaction)
		transactions.PUT("/:id", h.updateDraft)
		transactions.DELETE("/:id", h.deleteDraft)
		transactions.POST("/:id/post", h.postTransaction)
		transactions.POST("/:id/unpost", h.unpostTransaction)
	}

	rg.GET("/accounts/:id/ledger", h.ledger)
}

func (h *journalHandler) createDraft(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var req dto.CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for CreateTransaction", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	txn, err := h.journalService.CreateDraft(c.Request.Context(), req, actor(c))
	if err != nil {
		respondError(c, logger, err, "create transaction")
		return
	}
	c.JSON(http.StatusCreated, dto.ToTransactionResponse(txn))
}

func (h *journalHandler) getTransaction(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	txn, err := h.journalService.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, logger, err, "get transaction")
		return
	}
	c.JSON(http.StatusOK, dto.ToTransactionResponse(txn))
}

func (h *journalHandler) listTransactions(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var params dto.ListTransactionsParams
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
		return
	}

	page, err := h.journalService.ListTransactions(c.Request.Context(), params)
	if err != nil {
		respondError(c, logger, err, "list transactions")
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *journalHandler) updateDraft(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var req dto.UpdateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for UpdateTransaction", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	txn, err := h.journalService.UpdateDraft(c.Request.Context(), c.Param("id"), req, actor(c))
	if err != nil {
		respondError(c, logger, err, "update transaction")
		return
	}
	c.JSON(http.StatusOK, dto.ToTransactionResponse(txn))
}

func (h *journalHandler) deleteDraft(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	if err := h.journalService.DeleteDraft(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, logger, err, "delete transaction")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *journalHandler) postTransaction(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var req dto.PostTransactionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.Warn("Failed to bind JSON for PostTransaction", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
			return
		}
	}

	txn, err := h.journalService.Post(c.Request.Context(), c.Param("id"), req.FXRates, actor(c))
	if err != nil {
		respondError(c, logger, err, "post transaction")
		return
	}
	c.JSON(http.StatusOK, dto.ToTransactionResponse(txn))
}

func (h *journalHandler) unpostTransaction(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	txn, err := h.journalService.Unpost(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		respondError(c, logger, err, "unpost transaction")
		return
	}
	c.JSON(http.StatusOK, dto.ToTransactionResponse(txn))
}

func (h *journalHandler) ledger(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var params dto.LedgerParams
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
		return
	}

	page, err := h.journalService.Ledger(c.Request.Context(), c.Param("id"), params)
	if err != nil {
		respondError(c, logger, err, "get ledger")
		return
	}
	c.JSON(http.StatusOK, page)
}
