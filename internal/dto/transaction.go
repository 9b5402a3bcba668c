package dto

import (
	"time"

	"github.com/quantfolio/portfolio_accountant/internal/core/domain"
	"github.com/shopspring/decimal"
)

// FXRates maps a currency code to its rate into the ledger base currency at
// transaction date. Rates are supplied by the caller at post time; the core
// never reads ambient FX state.
type FXRates map[string]decimal.Decimal

// CreateLineRequest is one line of a draft transaction.
type CreateLineRequest struct {
	AccountID    string          `json:"accountID" binding:"required"`
	InstrumentID string          `json:"instrumentID"`
	LotID        string          `json:"lotID"`
	Side         domain.LineSide `json:"side" binding:"required,oneof=DR CR"`
	Amount       decimal.Decimal `json:"amount" binding:"dgte0"`
	Quantity     decimal.Decimal `json:"quantity"`
	Notes        string          `json:"notes"`
}

// CreateTransactionRequest creates a draft transaction.
type CreateTransactionRequest struct {
	Type  domain.TransactionType `json:"type" binding:"required"`
	Date  time.Time              `json:"date" binding:"required"`
	Memo  string                 `json:"memo"`
	Lines []CreateLineRequest    `json:"lines" binding:"required,min=2,dive"`
}

// UpdateTransactionRequest replaces the mutable fields of a draft. Lines,
// when present, replace the draft's lines entirely.
type UpdateTransactionRequest struct {
	Date  *time.Time          `json:"date"`
	Memo  *string             `json:"memo"`
	Lines []CreateLineRequest `json:"lines"`
}

// PostTransactionRequest carries the FX rates needed to translate any
// foreign-currency line into base currency at post time.
type PostTransactionRequest struct {
	FXRates FXRates `json:"fxRates"`
}

// LineResponse is the API shape of a transaction line.
type LineResponse struct {
	LineID       string          `json:"lineID"`
	AccountID    string          `json:"accountID"`
	InstrumentID string          `json:"instrumentID,omitempty"`
	LotID        string          `json:"lotID,omitempty"`
	Side         string          `json:"side"`
	Amount       decimal.Decimal `json:"amount"`
	Quantity     decimal.Decimal `json:"quantity"`
	CurrencyCode string          `json:"currencyCode"`
	Notes        string          `json:"notes,omitempty"`
}

// TransactionResponse is the API shape of a transaction.
type TransactionResponse struct {
	TransactionID string         `json:"transactionID"`
	Date          time.Time      `json:"date"`
	Memo          string         `json:"memo,omitempty"`
	Type          string         `json:"type"`
	Status        string         `json:"status"`
	Lines         []LineResponse `json:"lines,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// ListTransactionsParams filters transaction listings.
type ListTransactionsParams struct {
	Status    string     `form:"status"`
	Type      string     `form:"type"`
	DateFrom  *time.Time `form:"dateFrom"`
	DateTo    *time.Time `form:"dateTo"`
	Limit     int        `form:"limit"`
	NextToken *string    `form:"nextToken"`
}

// ListTransactionsResponse is a page of transactions.
type ListTransactionsResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
	NextToken    *string               `json:"nextToken,omitempty"`
}

// LedgerParams pages through one account's posted lines.
type LedgerParams struct {
	DateFrom  *time.Time `form:"dateFrom"`
	DateTo    *time.Time `form:"dateTo"`
	Limit     int        `form:"limit"`
	NextToken *string    `form:"nextToken"`
}

// LedgerEntryResponse is one posted line with its running balance.
type LedgerEntryResponse struct {
	LineID          string          `json:"lineID"`
	TransactionID   string          `json:"transactionID"`
	TransactionDate time.Time       `json:"transactionDate"`
	TransactionMemo string          `json:"transactionMemo,omitempty"`
	TransactionType string          `json:"transactionType"`
	Side            string          `json:"side"`
	Amount          decimal.Decimal `json:"amount"`
	RunningBalance  decimal.Decimal `json:"runningBalance"`
}

// LedgerResponse is a page of ledger entries.
type LedgerResponse struct {
	AccountID string                `json:"accountID"`
	Entries   []LedgerEntryResponse `json:"entries"`
	NextToken *string               `json:"nextToken,omitempty"`
}

// ToLineResponse converts a domain.Line to its API shape.
func ToLineResponse(line domain.Line) LineResponse {
	return LineResponse{
		LineID:       line.LineID,
		AccountID:    line.AccountID,
		InstrumentID: line.InstrumentID,
		LotID:        line.LotID,
		Side:         string(line.Side),
		Amount:       line.Amount,
		Quantity:     line.Quantity,
		CurrencyCode: line.CurrencyCode,
		Notes:        line.Notes,
	}
}

// ToTransactionResponse converts a domain.Transaction to its API shape.
func ToTransactionResponse(txn *domain.Transaction) TransactionResponse {
	resp := TransactionResponse{
		TransactionID: txn.TransactionID,
		Date:          txn.Date,
		Memo:          txn.Memo,
		Type:          string(txn.Type),
		Status:        string(txn.Status),
		CreatedAt:     txn.CreatedAt,
	}
	for _, line := range txn.Lines {
		resp.Lines = append(resp.Lines, ToLineResponse(line))
	}
	return resp
}
