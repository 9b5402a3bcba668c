package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineSide indicates whether a transaction line is a Debit or a Credit.
type LineSide string

const (
	Debit  LineSide = "DR"
	Credit LineSide = "CR"
)

// TransactionType categorizes the financial event a transaction records.
type TransactionType string

const (
	Trade    TransactionType = "TRADE"
	Transfer TransactionType = "TRANSFER"
	Dividend TransactionType = "DIVIDEND"
	Fee      TransactionType = "FEE"
	Tax      TransactionType = "TAX"
	FX       TransactionType = "FX"
	Adjust   TransactionType = "ADJUST"
)

// TransactionStatus indicates the lifecycle state of a transaction.
type TransactionStatus string

const (
	// Draft transactions are mutable and have no ledger effect.
	Draft TransactionStatus = "DRAFT"
	// Posted transactions are immutable; reversal is a new compensating
	// transaction, never an edit.
	Posted TransactionStatus = "POSTED"
)

// Transaction represents a single, balanced financial event composed of
// an ordered list of lines. Debit lines must equal credit lines in base
// currency before the transaction can be posted.
type Transaction struct {
	TransactionID string            `json:"transactionID"` // Primary Key (UUID)
	Date          time.Time         `json:"date"`          // Date the event occurred
	Memo          string            `json:"memo"`          // Nullable user description
	Type          TransactionType   `json:"type"`
	Status        TransactionStatus `json:"status"`
	// PostingSeq is a monotonically increasing sequence assigned when the
	// transaction posts. Zero while DRAFT. It orders ledger replay and the
	// dependency checks guarding unpost.
	PostingSeq int64  `json:"postingSeq"`
	Lines      []Line `json:"lines,omitempty"`
	AuditFields
}

// Line is a single entry within a transaction, affecting one account and
// optionally an instrument position.
type Line struct {
	LineID        string   `json:"lineID"`        // Primary Key (UUID)
	TransactionID string   `json:"transactionID"` // FK -> Transaction
	AccountID     string   `json:"accountID"`     // FK -> Account
	InstrumentID  string   `json:"instrumentID"`  // Optional FK -> Instrument
	LotID         string   `json:"lotID"`         // Optional FK -> Lot
	Side          LineSide `json:"side"`          // DR or CR
	// Amount is non-negative and denominated in the account's currency.
	Amount decimal.Decimal `json:"amount"`
	// Quantity is required when InstrumentID is set; positive on the DR
	// (buy) side and negative on the CR (sell) side of a trade.
	Quantity     decimal.Decimal `json:"quantity"`
	CurrencyCode string          `json:"currencyCode"`
	Notes        string          `json:"notes"`
	AuditFields
}

// IsBuy reports whether the line increases an instrument position.
func (l Line) IsBuy() bool {
	return l.InstrumentID != "" && l.Side == Debit
}

// IsSell reports whether the line reduces an instrument position.
func (l Line) IsSell() bool {
	return l.InstrumentID != "" && l.Side == Credit
}

// LedgerEntry is a posted line combined with the running balance of its
// account, as produced by replaying posted lines in (date, id) order.
type LedgerEntry struct {
	Line
	TransactionDate time.Time       `json:"transactionDate"`
	TransactionMemo string          `json:"transactionMemo"`
	TransactionType TransactionType `json:"transactionType"`
	PostingSeq      int64           `json:"postingSeq"`
	RunningBalance  decimal.Decimal `json:"runningBalance"`
}
