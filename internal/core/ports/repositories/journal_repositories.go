package repositories

import (
	"context"
	"time"

	"github.com/quantfolio/portfolio_accountant/internal/core/domain"
	"github.com/shopspring/decimal"
)

// ListTransactionsFilter narrows transaction listings.
type ListTransactionsFilter struct {
	Status    *domain.TransactionStatus
	Type      *domain.TransactionType
	DateFrom  *time.Time
	DateTo    *time.Time
	Limit     int
	NextToken *string
}

// LedgerFilter selects posted lines of one account for ledger replay.
type LedgerFilter struct {
	AccountID string
	DateFrom  *time.Time
	DateTo    *time.Time
	Limit     int
	NextToken *string
}

// JournalRepositoryFacade owns Transaction/Line persistence. The journal
// store is the sole writer of transaction state; lot effects ride in the
// same commit via SavePosting/SaveUnposting so posting is all-or-nothing.
type JournalRepositoryFacade interface {
	SaveDraft(ctx context.Context, txn domain.Transaction) error
	UpdateDraft(ctx context.Context, txn domain.Transaction) error
	DeleteDraft(ctx context.Context, transactionID string) error
	// FindTransactionByID returns the transaction with its lines in order.
	FindTransactionByID(ctx context.Context, transactionID string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, filter ListTransactionsFilter) ([]domain.Transaction, *string, error)

	// NextPostingSeq reserves the next monotonically increasing posting
	// sequence number.
	NextPostingSeq(ctx context.Context) (int64, error)
	// SavePosting marks the transaction POSTED and applies its lot effects
	// in one commit.
	SavePosting(ctx context.Context, txn domain.Transaction, effects domain.LotEffects) error
	// SaveUnposting reverts the transaction to DRAFT and reverses its lot
	// effects in one commit.
	SaveUnposting(ctx context.Context, txn domain.Transaction, effects domain.UnpostEffects) error

	// ListPostedLines returns posted lines for one account ordered by
	// (transaction date, line id) for running-balance replay.
	ListPostedLines(ctx context.Context, filter LedgerFilter) ([]domain.LedgerEntry, *string, error)
	// SumPostedLinesBefore returns the debit and credit totals of the
	// account's posted lines strictly before the (date, id) cursor, so a
	// ledger page can start from the correct opening balance.
	SumPostedLinesBefore(ctx context.Context, accountID string, before time.Time, beforeLineID string) (dr decimal.Decimal, cr decimal.Decimal, err error)
	// ListPostedTradeLines returns every posted line carrying an
	// instrument, with its transaction's posting sequence, ordered by
	// sequence. This is the reconciler's replay source.
	ListPostedTradeLines(ctx context.Context) ([]domain.LedgerEntry, error)
}
