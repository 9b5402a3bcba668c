package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Price is a stored closing price for an instrument on a date. Prices are
// fed by external adapters; the core only reads them as a valuation default
// when the caller supplies no explicit price.
type Price struct {
	InstrumentID string          `json:"instrumentID"`
	Date         time.Time       `json:"date"`
	Close        decimal.Decimal `json:"close"`
}
