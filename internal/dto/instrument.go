package dto

import (
	"time"

	"github.com/quantfolio/portfolio_accountant/internal/core/domain"
	"github.com/shopspring/decimal"
)

// CreateInstrumentRequest registers a tradeable instrument.
type CreateInstrumentRequest struct {
	Symbol          string                 `json:"symbol" binding:"required"`
	Name            string                 `json:"name" binding:"required"`
	InstrumentType  domain.InstrumentType  `json:"instrumentType" binding:"required,oneof=EQUITY ETF BOND CASH CRYPTO"`
	CurrencyCode    string                 `json:"currencyCode" binding:"required,len=3"`
	CostBasisMethod domain.CostBasisMethod `json:"costBasisMethod" binding:"omitempty,oneof=FIFO AVERAGE"`
}

// UpdateInstrumentRequest updates mutable instrument fields.
type UpdateInstrumentRequest struct {
	Symbol          *string                 `json:"symbol"`
	Name            *string                 `json:"name"`
	CostBasisMethod *domain.CostBasisMethod `json:"costBasisMethod"`
}

// InstrumentResponse is the API shape of an instrument.
type InstrumentResponse struct {
	InstrumentID    string    `json:"instrumentID"`
	Symbol          string    `json:"symbol"`
	Name            string    `json:"name"`
	InstrumentType  string    `json:"instrumentType"`
	CurrencyCode    string    `json:"currencyCode"`
	CostBasisMethod string    `json:"costBasisMethod"`
	IsActive        bool      `json:"isActive"`
	CreatedAt       time.Time `json:"createdAt"`
}

// RecordPriceRequest stores an externally sourced closing price.
type RecordPriceRequest struct {
	Date  time.Time       `json:"date" binding:"required"`
	Close decimal.Decimal `json:"close" binding:"required"`
}

// ToInstrumentResponse converts a domain.Instrument to its API shape.
func ToInstrumentResponse(i *domain.Instrument) InstrumentResponse {
	return InstrumentResponse{
		InstrumentID:    i.InstrumentID,
		Symbol:          i.Symbol,
		Name:            i.Name,
		InstrumentType:  string(i.InstrumentType),
		CurrencyCode:    i.CurrencyCode,
		CostBasisMethod: string(i.CostBasisMethod),
		IsActive:        i.IsActive,
		CreatedAt:       i.CreatedAt,
	}
}
