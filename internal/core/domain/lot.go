package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lot is a discrete purchase batch of an instrument held in an account,
// tracked for cost-basis purposes until fully consumed.
type Lot struct {
	LotID        string          `json:"lotID"`        // Primary Key (UUID)
	InstrumentID string          `json:"instrumentID"` // FK -> Instrument
	AccountID    string          `json:"accountID"`    // FK -> Account
	OpenDate     time.Time       `json:"openDate"`
	QtyOpened    decimal.Decimal `json:"qtyOpened"`
	QtyRemaining decimal.Decimal `json:"qtyRemaining"` // Invariant: 0 <= QtyRemaining <= QtyOpened
	CostPerUnit  decimal.Decimal `json:"costPerUnit"`
	CostTotal    decimal.Decimal `json:"costTotal"`
	Method       CostBasisMethod `json:"method"`
	Closed       bool            `json:"closed"` // True once QtyRemaining reaches zero
	// OpenTransactionID links back to the posted BUY trade line's
	// transaction, or the corporate action transaction that created it.
	OpenTransactionID string `json:"openTransactionID"`
	// OpenSeq is the posting sequence of the opening event, used as the
	// FIFO tie-break when open dates are equal.
	OpenSeq int64 `json:"openSeq"`
	AuditFields
}

// RemainingCost is the cost basis still carried by the lot.
func (l Lot) RemainingCost() decimal.Decimal {
	if l.QtyOpened.IsZero() {
		return decimal.Zero
	}
	if l.QtyRemaining.Equal(l.QtyOpened) {
		return l.CostTotal
	}
	return l.CostPerUnit.Mul(l.QtyRemaining)
}

// LotConsumption records one slice of a lot consumed by a SELL trade line.
// The lot engine keeps these so that undoing a close is a lookup-and-reverse
// of recorded slices, never a re-derivation.
type LotConsumption struct {
	ConsumptionID  string          `json:"consumptionID"`  // Primary Key (UUID)
	LotID          string          `json:"lotID"`          // FK -> Lot
	TransactionID  string          `json:"transactionID"`  // FK -> consuming Transaction
	LineID         string          `json:"lineID"`         // FK -> consuming Line
	Quantity       decimal.Decimal `json:"quantity"`       // Positive quantity taken from the lot
	CostAmount     decimal.Decimal `json:"costAmount"`     // Cost basis charged for this slice
	ProceedsAmount decimal.Decimal `json:"proceedsAmount"` // Pro-rata share of sale proceeds
	// TradeDate is the consuming transaction's date, carried so realized
	// P&L can be reported over a date range.
	TradeDate time.Time `json:"tradeDate"`
	// Seq is the posting sequence of the consuming transaction.
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"createdAt"`
}

// RealizedPnL reports the outcome of closing quantity against open lots.
type RealizedPnL struct {
	InstrumentID   string           `json:"instrumentID"`
	AccountID      string           `json:"accountID"`
	QuantityClosed decimal.Decimal  `json:"quantityClosed"`
	CostBasis      decimal.Decimal  `json:"costBasis"`
	Proceeds       decimal.Decimal  `json:"proceeds"`
	Realized       decimal.Decimal  `json:"realized"`
	Consumptions   []LotConsumption `json:"consumptions,omitempty"`
	LotsAffected   int              `json:"lotsAffected"`
}
