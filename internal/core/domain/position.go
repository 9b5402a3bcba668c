package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position aggregates all open lots for one (instrument, account) pair.
type Position struct {
	InstrumentID string          `json:"instrumentID"`
	AccountID    string          `json:"accountID"`
	Quantity     decimal.Decimal `json:"quantity"`
	CostTotal    decimal.Decimal `json:"costTotal"`
	AvgCost      decimal.Decimal `json:"avgCost"`
	LotCount     int             `json:"lotCount"`
	OldestOpen   time.Time       `json:"oldestOpen"`
}

// PositionKey identifies the serialization unit for lot mutations.
type PositionKey struct {
	InstrumentID string
	AccountID    string
}

// ReconciliationMismatch describes one (instrument, account) pair whose lot
// inventory disagrees with the replay of posted trade lines and processed
// corporate actions.
type ReconciliationMismatch struct {
	InstrumentID string          `json:"instrumentID"`
	AccountID    string          `json:"accountID"`
	LotQuantity  decimal.Decimal `json:"lotQuantity"`
	ReplayedQty  decimal.Decimal `json:"replayedQty"`
	Difference   decimal.Decimal `json:"difference"`
}

// ReconciliationReport is the outcome of comparing lot state against the
// journal replay. Any mismatch is an invariant violation; it is surfaced,
// never silently corrected.
type ReconciliationReport struct {
	Reconciled   bool                     `json:"reconciled"`
	PairsChecked int                      `json:"pairsChecked"`
	Mismatches   []ReconciliationMismatch `json:"mismatches,omitempty"`
	CheckedAt    time.Time                `json:"checkedAt"`
}

// UnrealizedPosition values one open position against a market price.
type UnrealizedPosition struct {
	InstrumentID string          `json:"instrumentID"`
	AccountID    string          `json:"accountID"`
	Quantity     decimal.Decimal `json:"quantity"`
	CostBasis    decimal.Decimal `json:"costBasis"`
	MarketPrice  decimal.Decimal `json:"marketPrice"`
	MarketValue  decimal.Decimal `json:"marketValue"`
	Unrealized   decimal.Decimal `json:"unrealized"`
	PriceMissing bool            `json:"priceMissing"`
}
