package dto

import (
	"time"

	"github.com/quantfolio/portfolio_accountant/internal/core/domain"
	"github.com/shopspring/decimal"
)

// CloseQuantityRequest asks the lot engine to consume open quantity for a
// posted SELL trade line. Quantity and Proceeds are positive.
type CloseQuantityRequest struct {
	InstrumentID  string
	AccountID     string
	Quantity      decimal.Decimal
	Proceeds      decimal.Decimal
	Date          time.Time
	Method        domain.CostBasisMethod
	TransactionID string
	LineID        string
	Seq           int64
}

// LotResponse is the API shape of a lot.
type LotResponse struct {
	LotID        string          `json:"lotID"`
	InstrumentID string          `json:"instrumentID"`
	AccountID    string          `json:"accountID"`
	OpenDate     time.Time       `json:"openDate"`
	QtyOpened    decimal.Decimal `json:"qtyOpened"`
	QtyRemaining decimal.Decimal `json:"qtyRemaining"`
	CostPerUnit  decimal.Decimal `json:"costPerUnit"`
	CostTotal    decimal.Decimal `json:"costTotal"`
	Method       string          `json:"method"`
	Closed       bool            `json:"closed"`
}

// ToLotResponse converts a domain.Lot to its API shape.
func ToLotResponse(l domain.Lot) LotResponse {
	return LotResponse{
		LotID:        l.LotID,
		InstrumentID: l.InstrumentID,
		AccountID:    l.AccountID,
		OpenDate:     l.OpenDate,
		QtyOpened:    l.QtyOpened,
		QtyRemaining: l.QtyRemaining,
		CostPerUnit:  l.CostPerUnit,
		CostTotal:    l.CostTotal,
		Method:       string(l.Method),
		Closed:       l.Closed,
	}
}
