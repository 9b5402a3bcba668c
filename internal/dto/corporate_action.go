package dto

import (
	"time"

	"github.com/quantfolio/portfolio_accountant/internal/core/domain"
	"github.com/shopspring/decimal"
)

// ActionAllocationRequest directs a fraction of each open lot to a target
// instrument during a merger or spinoff.
type ActionAllocationRequest struct {
	InstrumentID string          `json:"instrumentID" binding:"required"`
	Ratio        decimal.Decimal `json:"ratio" binding:"dgt0"`
}

// CreateCorporateActionRequest creates a draft corporate action.
type CreateCorporateActionRequest struct {
	InstrumentID    string                     `json:"instrumentID" binding:"required"`
	Type            domain.CorporateActionType `json:"type" binding:"required,oneof=SPLIT CASH_DIVIDEND STOCK_DIVIDEND SYMBOL_CHANGE MERGER SPINOFF"`
	Date            time.Time                  `json:"date" binding:"required"`
	Ratio           decimal.Decimal            `json:"ratio"`
	CashPerShare    decimal.Decimal            `json:"cashPerShare"`
	NewInstrumentID string                     `json:"newInstrumentID"`
	Allocations     []ActionAllocationRequest  `json:"allocations"`
	Notes           string                     `json:"notes"`
}

// UpdateCorporateActionRequest updates a draft action; rejected once
// processed.
type UpdateCorporateActionRequest struct {
	Date         *time.Time       `json:"date"`
	Ratio        *decimal.Decimal `json:"ratio"`
	CashPerShare *decimal.Decimal `json:"cashPerShare"`
	Notes        *string          `json:"notes"`
}

// CorporateActionResponse is the API shape of a corporate action.
type CorporateActionResponse struct {
	ActionID                string          `json:"actionID"`
	InstrumentID            string          `json:"instrumentID"`
	Type                    string          `json:"type"`
	Date                    time.Time       `json:"date"`
	Ratio                   decimal.Decimal `json:"ratio"`
	CashPerShare            decimal.Decimal `json:"cashPerShare"`
	NewInstrumentID         string          `json:"newInstrumentID,omitempty"`
	Notes                   string          `json:"notes,omitempty"`
	Processed               bool            `json:"processed"`
	GeneratedTransactionIDs []string        `json:"generatedTransactionIDs,omitempty"`
	CreatedAt               time.Time       `json:"createdAt"`
}

// ListCorporateActionsParams filters corporate action listings.
type ListCorporateActionsParams struct {
	InstrumentID string     `form:"instrumentID"`
	Processed    *bool      `form:"processed"`
	DateFrom     *time.Time `form:"dateFrom"`
	DateTo       *time.Time `form:"dateTo"`
	Limit        int        `form:"limit"`
	Offset       int        `form:"offset"`
}

// ToCorporateActionResponse converts a domain.CorporateAction to its API
// shape.
func ToCorporateActionResponse(a *domain.CorporateAction) CorporateActionResponse {
	return CorporateActionResponse{
		ActionID:                a.ActionID,
		InstrumentID:            a.InstrumentID,
		Type:                    string(a.Type),
		Date:                    a.Date,
		Ratio:                   a.Ratio,
		CashPerShare:            a.CashPerShare,
		NewInstrumentID:         a.NewInstrumentID,
		Notes:                   a.Notes,
		Processed:               a.Processed,
		GeneratedTransactionIDs: a.GeneratedTransactionIDs,
		CreatedAt:               a.CreatedAt,
	}
}
