package services

import (
	"context"
	"time"

	"github.com/quantfolio/portfolio_accountant/internal/core/domain"
	"github.com/quantfolio/portfolio_accountant/internal/dto"
)

// AccountSvcFacade exposes account reference-data operations to the API
// layer and to the core services that need existence checks.
type AccountSvcFacade interface {
	CreateAccount(ctx context.Context, req dto.CreateAccountRequest, creatorUserID string) (*domain.Account, error)
	GetAccountByID(ctx context.Context, accountID string) (*domain.Account, error)
	GetAccountsByIDs(ctx context.Context, accountIDs []string) (map[string]domain.Account, error)
	ListAccounts(ctx context.Context, limit int, offset int) ([]domain.Account, error)
	UpdateAccount(ctx context.Context, accountID string, req dto.UpdateAccountRequest, userID string) (*domain.Account, error)
	DeactivateAccount(ctx context.Context, accountID string, userID string) error
}

// InstrumentSvcFacade exposes instrument reference-data operations.
type InstrumentSvcFacade interface {
	CreateInstrument(ctx context.Context, req dto.CreateInstrumentRequest, creatorUserID string) (*domain.Instrument, error)
	GetInstrumentByID(ctx context.Context, instrumentID string) (*domain.Instrument, error)
	GetInstrumentsByIDs(ctx context.Context, instrumentIDs []string) (map[string]domain.Instrument, error)
	GetInstrumentBySymbol(ctx context.Context, symbol string) (*domain.Instrument, error)
	ListInstruments(ctx context.Context, limit int, offset int) ([]domain.Instrument, error)
	UpdateInstrument(ctx context.Context, instrumentID string, req dto.UpdateInstrumentRequest, userID string) (*domain.Instrument, error)
	RecordPrice(ctx context.Context, instrumentID string, req dto.RecordPriceRequest) error
	LatestPrice(ctx context.Context, instrumentID string, asOf time.Time) (*domain.Price, error)
}

// JournalSvcFacade is the journal store: it exclusively owns the
// Transaction/Line lifecycle.
type JournalSvcFacade interface {
	CreateDraft(ctx context.Context, req dto.CreateTransactionRequest, creatorUserID string) (*domain.Transaction, error)
	UpdateDraft(ctx context.Context, transactionID string, req dto.UpdateTransactionRequest, userID string) (*domain.Transaction, error)
	DeleteDraft(ctx context.Context, transactionID string) error
	// Post validates the balance invariant in base currency and applies
	// lot effects for trade lines atomically.
	Post(ctx context.Context, transactionID string, fxRates dto.FXRates, userID string) (*domain.Transaction, error)
	// Unpost reverts a posted transaction to draft, undoing its lot
	// effects; fails with apperrors.ErrDependentState when later state
	// depends on them.
	Unpost(ctx context.Context, transactionID string, userID string) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, params dto.ListTransactionsParams) (*dto.ListTransactionsResponse, error)
	Ledger(ctx context.Context, accountID string, params dto.LedgerParams) (*dto.LedgerResponse, error)
	// BuildPostedTransaction validates a request the same way Post does
	// and returns a POSTED transaction without saving it. The corporate
	// action processor uses it so generated entries commit inside the
	// processing boundary.
	BuildPostedTransaction(ctx context.Context, req dto.CreateTransactionRequest, seq int64, creatorUserID string) (*domain.Transaction, error)
}

// LotSvcFacade is the lot engine. It computes lot effects for the journal
// store and corporate action processor; it never commits lot state on its
// own.
type LotSvcFacade interface {
	// OpenFromLine builds the lot a posted BUY trade line opens.
	OpenFromLine(txn *domain.Transaction, line domain.Line, method domain.CostBasisMethod, seq int64) (domain.Lot, error)
	// CloseQuantity consumes open quantity in FIFO or average order,
	// appending the resulting lot updates and consumption records to
	// effects. Fails with apperrors.ErrInsufficientQuantity when the open
	// quantity cannot satisfy the request.
	CloseQuantity(ctx context.Context, req dto.CloseQuantityRequest, effects *domain.LotEffects) (*domain.RealizedPnL, error)
	// UndoEffects reconstructs the exact inverse of a posting's lot
	// effects from the consumption ledger, or fails with
	// apperrors.ErrDependentState.
	UndoEffects(ctx context.Context, txn *domain.Transaction) (*domain.UnpostEffects, error)
	OpenLots(ctx context.Context, instrumentID string, accountID string) ([]domain.Lot, error)
	OpenLotsByInstrument(ctx context.Context, instrumentID string) ([]domain.Lot, error)
}

// ReconciliationSvcFacade is the pure read-side position reconciler.
type ReconciliationSvcFacade interface {
	Positions(ctx context.Context, filter dto.PositionFilter) ([]domain.Position, error)
	// Reconcile replays posted trade lines and processed corporate
	// actions and compares the result against lot inventory. Mismatches
	// are surfaced, never corrected.
	Reconcile(ctx context.Context) (*domain.ReconciliationReport, error)
}

// CorporateActionSvcFacade owns the corporate action lifecycle and is the
// only writer of the processed flag.
type CorporateActionSvcFacade interface {
	CreateAction(ctx context.Context, req dto.CreateCorporateActionRequest, creatorUserID string) (*domain.CorporateAction, error)
	UpdateAction(ctx context.Context, actionID string, req dto.UpdateCorporateActionRequest, userID string) (*domain.CorporateAction, error)
	DeleteAction(ctx context.Context, actionID string) error
	GetAction(ctx context.Context, actionID string) (*domain.CorporateAction, error)
	ListActions(ctx context.Context, params dto.ListCorporateActionsParams) ([]domain.CorporateAction, error)
	Process(ctx context.Context, actionID string, userID string) (*domain.ProcessingResult, error)
	// ProcessPending processes every unprocessed action dated on or
	// before cutoff, oldest first.
	ProcessPending(ctx context.Context, cutoff time.Time, userID string) ([]domain.ProcessingResult, error)
}

// ValuationSvcFacade reports realized and unrealized P&L.
type ValuationSvcFacade interface {
	RealizedPnL(ctx context.Context, params dto.RealizedPnLParams) (*dto.RealizedPnLResponse, error)
	UnrealizedPnL(ctx context.Context, params dto.UnrealizedPnLParams) (*dto.UnrealizedPnLResponse, error)
	PnLReport(ctx context.Context, params dto.UnrealizedPnLParams) (*dto.PnLReportResponse, error)
}
