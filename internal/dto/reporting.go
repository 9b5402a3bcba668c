package dto

import (
	"time"

	"github.com/quantfolio/portfolio_accountant/internal/core/domain"
	"github.com/shopspring/decimal"
)

// PositionFilter narrows position queries; empty fields match everything.
type PositionFilter struct {
	AccountID    string `form:"accountID"`
	InstrumentID string `form:"instrumentID"`
}

// PositionResponse is the API shape of an aggregated position.
type PositionResponse struct {
	InstrumentID string          `json:"instrumentID"`
	AccountID    string          `json:"accountID"`
	Quantity     decimal.Decimal `json:"quantity"`
	CostTotal    decimal.Decimal `json:"costTotal"`
	AvgCost      decimal.Decimal `json:"avgCost"`
	LotCount     int             `json:"lotCount"`
}

// RealizedPnLParams selects the consumption ledger slice to report on.
// Date bounds are inclusive and apply to the consuming trade's date.
type RealizedPnLParams struct {
	AccountID    string     `form:"accountID"`
	InstrumentID string     `form:"instrumentID"`
	DateFrom     *time.Time `form:"dateFrom"`
	DateTo       *time.Time `form:"dateTo"`
}

// RealizedPnLResponse aggregates realized P&L from recorded consumptions.
type RealizedPnLResponse struct {
	TotalProceeds  decimal.Decimal `json:"totalProceeds"`
	TotalCostBasis decimal.Decimal `json:"totalCostBasis"`
	TotalRealized  decimal.Decimal `json:"totalRealized"`
	LotsAffected   int             `json:"lotsAffected"`
	QuantityClosed decimal.Decimal `json:"quantityClosed"`
}

// UnrealizedPnLParams values open positions. Prices map instrument IDs to
// the market price supplied by the caller; positions without a supplied
// price fall back to the latest stored price when available.
type UnrealizedPnLParams struct {
	AccountID    string                     `json:"accountID"`
	InstrumentID string                     `json:"instrumentID"`
	AsOf         *time.Time                 `json:"asOf"`
	Prices       map[string]decimal.Decimal `json:"prices"`
}

// UnrealizedPnLResponse values open positions against market prices.
type UnrealizedPnLResponse struct {
	Positions       []domain.UnrealizedPosition `json:"positions"`
	TotalCostBasis  decimal.Decimal             `json:"totalCostBasis"`
	TotalMarketVal  decimal.Decimal             `json:"totalMarketValue"`
	TotalUnrealized decimal.Decimal             `json:"totalUnrealized"`
}

// PnLReportResponse combines realized and unrealized P&L.
type PnLReportResponse struct {
	Realized   RealizedPnLResponse   `json:"realized"`
	Unrealized UnrealizedPnLResponse `json:"unrealized"`
	TotalPnL   decimal.Decimal       `json:"totalPnL"`
	GeneratedAt time.Time            `json:"generatedAt"`
}

// ToPositionResponse converts a domain.Position to its API shape.
func ToPositionResponse(p domain.Position) PositionResponse {
	return PositionResponse{
		InstrumentID: p.InstrumentID,
		AccountID:    p.AccountID,
		Quantity:     p.Quantity,
		CostTotal:    p.CostTotal,
		AvgCost:      p.AvgCost,
		LotCount:     p.LotCount,
	}
}
