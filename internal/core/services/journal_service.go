package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quantfolio/portfolio_accountant/internal/apperrors"
	"github.com/quantfolio/portfolio_accountant/internal/core/domain"
	portsrepo "github.com/quantfolio/portfolio_accountant/internal/core/ports/repositories"
	portssvc "github.com/quantfolio/portfolio_accountant/internal/core/ports/services"
	"github.com/quantfolio/portfolio_accountant/internal/dto"
	"github.com/quantfolio/portfolio_accountant/internal/middleware"
	"github.com/quantfolio/portfolio_accountant/internal/utils/accounting"
	"github.com/quantfolio/portfolio_accountant/internal/utils/locking"
	"github.com/quantfolio/portfolio_accountant/internal/utils/pagination"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// journalService owns the Transaction/Line lifecycle. Posting and unposting
// serialize per (instrument, account) pair through the shared keyed mutex so
// lot selection never interleaves with another mutation of the same position.
type journalService struct {
	journalRepo    portsrepo.JournalRepositoryFacade
	accountRepo    portsrepo.AccountRepositoryFacade
	instrumentRepo portsrepo.InstrumentRepositoryFacade
	lotSvc         portssvc.LotSvcFacade
	locks          *locking.KeyedMutex
	baseCurrency   string
}

// NewJournalService creates a new journal service. The keyed mutex must be
// the same instance handed to the corporate action service.
func NewJournalService(
	journalRepo portsrepo.JournalRepositoryFacade,
	accountRepo portsrepo.AccountRepositoryFacade,
	instrumentRepo portsrepo.InstrumentRepositoryFacade,
	lotSvc portssvc.LotSvcFacade,
	locks *locking.KeyedMutex,
	baseCurrency string,
) portssvc.JournalSvcFacade {
	return &journalService{
		journalRepo:    journalRepo,
		accountRepo:    accountRepo,
		instrumentRepo: instrumentRepo,
		lotSvc:         lotSvc,
		locks:          locks,
		baseCurrency:   baseCurrency,
	}
}

var _ portssvc.JournalSvcFacade = (*journalService)(nil)

// CreateDraft validates references and stores a new DRAFT transaction.
// Drafts need not balance; the balance invariant is enforced at post time.
func (s *journalService) CreateDraft(ctx context.Context, req dto.CreateTransactionRequest, creatorUserID string) (*domain.Transaction, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	now := time.Now().UTC()
	txn := &domain.Transaction{
		TransactionID: uuid.NewString(),
		Date:          req.Date,
		Memo:          req.Memo,
		Type:          req.Type,
		Status:        domain.Draft,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     creatorUserID,
			LastUpdatedAt: now,
			LastUpdatedBy: creatorUserID,
		},
	}

	lines, err := s.buildLines(ctx, txn, req.Lines, creatorUserID, now)
	if err != nil {
		return nil, err
	}
	txn.Lines = lines

	if err := s.journalRepo.SaveDraft(ctx, *txn); err != nil {
		return nil, fmt.Errorf("failed to save draft transaction: %w", err)
	}

	logger.Info("draft transaction created",
		slog.String("transaction_id", txn.TransactionID),
		slog.String("type", string(txn.Type)),
		slog.Int("lines", len(txn.Lines)))
	return txn, nil
}

// UpdateDraft replaces the mutable fields of a DRAFT transaction. Lines,
// when present, replace the draft's lines entirely.
func (s *journalService) UpdateDraft(ctx context.Context, transactionID string, req dto.UpdateTransactionRequest, userID string) (*domain.Transaction, error) {
	txn, err := s.journalRepo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.Status != domain.Draft {
		return nil, fmt.Errorf("%w: transaction %s is %s and cannot be edited", apperrors.ErrConflict, transactionID, txn.Status)
	}

	now := time.Now().UTC()
	if req.Date != nil {
		txn.Date = *req.Date
	}
	if req.Memo != nil {
		txn.Memo = *req.Memo
	}
	if req.Lines != nil {
		if len(req.Lines) < 2 {
			return nil, fmt.Errorf("%w: a transaction requires at least two lines", apperrors.ErrValidation)
		}
		lines, err := s.buildLines(ctx, txn, req.Lines, userID, now)
		if err != nil {
			return nil, err
		}
		txn.Lines = lines
	}
	txn.LastUpdatedAt = now
	txn.LastUpdatedBy = userID

	if err := s.journalRepo.UpdateDraft(ctx, *txn); err != nil {
		return nil, fmt.Errorf("failed to update draft transaction %s: %w", transactionID, err)
	}
	return txn, nil
}

// DeleteDraft removes a DRAFT transaction. Posted transactions are immutable
// and cannot be deleted, only unposted or reversed.
func (s *journalService) DeleteDraft(ctx context.Context, transactionID string) error {
	txn, err := s.journalRepo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return err
	}
	if txn.Status != domain.Draft {
		return fmt.Errorf("%w: transaction %s is %s and cannot be deleted", apperrors.ErrConflict, transactionID, txn.Status)
	}
	return s.journalRepo.DeleteDraft(ctx, transactionID)
}

// Post transitions a DRAFT transaction to POSTED. It checks the balance
// invariant in base currency with the supplied FX rates, reserves a posting
// sequence, applies lot effects for trade lines, and commits everything in
// one repository write.
func (s *journalService) Post(ctx context.Context, transactionID string, fxRates dto.FXRates, userID string) (*domain.Transaction, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	txn, err := s.journalRepo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.Status != domain.Draft {
		return nil, fmt.Errorf("%w: transaction %s is already %s", apperrors.ErrConflict, transactionID, txn.Status)
	}

	keys := positionLockKeys(txn.Lines)
	s.locks.LockAll(keys)
	defer s.locks.UnlockAll(keys)

	// Re-read under the lock in case a concurrent post won the race.
	txn, err = s.journalRepo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.Status != domain.Draft {
		return nil, fmt.Errorf("%w: transaction %s is already %s", apperrors.ErrConflict, transactionID, txn.Status)
	}

	_, instruments, err := s.loadReferences(ctx, txn)
	if err != nil {
		return nil, err
	}

	if err := s.checkBalance(txn.Lines, fxRates); err != nil {
		return nil, err
	}

	seq, err := s.journalRepo.NextPostingSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve posting sequence: %w", err)
	}

	effects := domain.LotEffects{}
	totalRealized := decimal.Zero
	for i := range txn.Lines {
		line := txn.Lines[i]
		if txn.Type != domain.Trade || line.InstrumentID == "" {
			continue
		}
		instrument := instruments[line.InstrumentID]
		switch {
		case line.IsBuy():
			lot, err := s.lotSvc.OpenFromLine(txn, line, instrument.CostBasisMethod, seq)
			if err != nil {
				return nil, err
			}
			effects.Opened = append(effects.Opened, lot)
			txn.Lines[i].LotID = lot.LotID
		case line.IsSell():
			pnl, err := s.lotSvc.CloseQuantity(ctx, dto.CloseQuantityRequest{
				InstrumentID:  line.InstrumentID,
				AccountID:     line.AccountID,
				Quantity:      line.Quantity.Abs(),
				Proceeds:      line.Amount,
				Date:          txn.Date,
				Method:        instrument.CostBasisMethod,
				TransactionID: txn.TransactionID,
				LineID:        line.LineID,
				Seq:           seq,
			}, &effects)
			if err != nil {
				return nil, err
			}
			totalRealized = totalRealized.Add(pnl.Realized)
		}
	}

	now := time.Now().UTC()
	txn.Status = domain.Posted
	txn.PostingSeq = seq
	txn.LastUpdatedAt = now
	txn.LastUpdatedBy = userID

	if err := s.journalRepo.SavePosting(ctx, *txn, effects); err != nil {
		return nil, fmt.Errorf("failed to commit posting of transaction %s: %w", transactionID, err)
	}

	logger.Info("transaction posted",
		slog.String("transaction_id", txn.TransactionID),
		slog.Int64("posting_seq", seq),
		slog.Int("lots_opened", len(effects.Opened)),
		slog.Int("consumptions", len(effects.Consumptions)),
		slog.String("realized", totalRealized.String()))
	return txn, nil
}

// Unpost reverts a POSTED transaction to DRAFT, deleting lots it opened and
// restoring quantities it consumed. It fails with ErrDependentState when
// later postings or corporate actions depend on the affected lots.
func (s *journalService) Unpost(ctx context.Context, transactionID string, userID string) (*domain.Transaction, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	txn, err := s.journalRepo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.Status != domain.Posted {
		return nil, fmt.Errorf("%w: transaction %s is %s, only posted transactions can be unposted", apperrors.ErrConflict, transactionID, txn.Status)
	}

	keys := positionLockKeys(txn.Lines)
	s.locks.LockAll(keys)
	defer s.locks.UnlockAll(keys)

	txn, err = s.journalRepo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.Status != domain.Posted {
		return nil, fmt.Errorf("%w: transaction %s is %s, only posted transactions can be unposted", apperrors.ErrConflict, transactionID, txn.Status)
	}

	undo, err := s.lotSvc.UndoEffects(ctx, txn)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	txn.Status = domain.Draft
	txn.PostingSeq = 0
	txn.LastUpdatedAt = now
	txn.LastUpdatedBy = userID
	for i := range txn.Lines {
		if txn.Lines[i].IsBuy() {
			txn.Lines[i].LotID = ""
		}
	}

	if err := s.journalRepo.SaveUnposting(ctx, *txn, *undo); err != nil {
		return nil, fmt.Errorf("failed to commit unposting of transaction %s: %w", transactionID, err)
	}

	logger.Info("transaction unposted",
		slog.String("transaction_id", txn.TransactionID),
		slog.Int("lots_deleted", len(undo.DeletedLotIDs)),
		slog.Int("lots_restored", len(undo.Restored)))
	return txn, nil
}

// GetTransaction returns one transaction with its lines.
func (s *journalService) GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	return s.journalRepo.FindTransactionByID(ctx, transactionID)
}

// ListTransactions returns a filtered, token-paginated page of transactions.
func (s *journalService) ListTransactions(ctx context.Context, params dto.ListTransactionsParams) (*dto.ListTransactionsResponse, error) {
	filter := portsrepo.ListTransactionsFilter{
		DateFrom:  params.DateFrom,
		DateTo:    params.DateTo,
		Limit:     clampLimit(params.Limit),
		NextToken: params.NextToken,
	}
	if params.Status != "" {
		status := domain.TransactionStatus(params.Status)
		if status != domain.Draft && status != domain.Posted {
			return nil, fmt.Errorf("%w: unknown status %q", apperrors.ErrValidation, params.Status)
		}
		filter.Status = &status
	}
	if params.Type != "" {
		txnType := domain.TransactionType(params.Type)
		filter.Type = &txnType
	}

	txns, nextToken, err := s.journalRepo.ListTransactions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	resp := &dto.ListTransactionsResponse{NextToken: nextToken}
	for i := range txns {
		resp.Transactions = append(resp.Transactions, dto.ToTransactionResponse(&txns[i]))
	}
	return resp, nil
}

// Ledger returns one account's posted lines with running balances, computed
// by replaying posted lines in (transaction date, line id) order. The
// opening balance of a page is the signed sum of everything strictly before
// the page's first line.
func (s *journalService) Ledger(ctx context.Context, accountID string, params dto.LedgerParams) (*dto.LedgerResponse, error) {
	account, err := s.accountRepo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	filter := portsrepo.LedgerFilter{
		AccountID: accountID,
		DateFrom:  params.DateFrom,
		DateTo:    params.DateTo,
		Limit:     clampLimit(params.Limit),
		NextToken: params.NextToken,
	}
	entries, nextToken, err := s.journalRepo.ListPostedLines(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list posted lines for account %s: %w", accountID, err)
	}

	running, err := s.openingBalance(ctx, account, params)
	if err != nil {
		return nil, err
	}

	resp := &dto.LedgerResponse{AccountID: accountID, NextToken: nextToken}
	for _, entry := range entries {
		signed, err := accounting.CalculateSignedAmount(entry.Line, account.AccountType)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrInternal, err)
		}
		running = running.Add(signed)
		resp.Entries = append(resp.Entries, dto.LedgerEntryResponse{
			LineID:          entry.LineID,
			TransactionID:   entry.TransactionID,
			TransactionDate: entry.TransactionDate,
			TransactionMemo: entry.TransactionMemo,
			TransactionType: string(entry.TransactionType),
			Side:            string(entry.Side),
			Amount:          entry.Amount,
			RunningBalance:  running,
		})
	}
	return resp, nil
}

// BuildPostedTransaction validates a request the way Post does and returns a
// POSTED transaction carrying seq, without saving it. Generated corporate
// action entries commit through SaveProcessing so they share the processing
// boundary.
func (s *journalService) BuildPostedTransaction(ctx context.Context, req dto.CreateTransactionRequest, seq int64, creatorUserID string) (*domain.Transaction, error) {
	now := time.Now().UTC()
	txn := &domain.Transaction{
		TransactionID: uuid.NewString(),
		Date:          req.Date,
		Memo:          req.Memo,
		Type:          req.Type,
		Status:        domain.Posted,
		PostingSeq:    seq,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     creatorUserID,
			LastUpdatedAt: now,
			LastUpdatedBy: creatorUserID,
		},
	}

	lines, err := s.buildLines(ctx, txn, req.Lines, creatorUserID, now)
	if err != nil {
		return nil, err
	}
	txn.Lines = lines

	if err := s.checkBalance(txn.Lines, nil); err != nil {
		return nil, err
	}
	return txn, nil
}

// buildLines validates line references and constructs domain lines. The
// amount currency is always the account's currency.
func (s *journalService) buildLines(ctx context.Context, txn *domain.Transaction, reqLines []dto.CreateLineRequest, userID string, now time.Time) ([]domain.Line, error) {
	accountIDs := make([]string, 0, len(reqLines))
	instrumentIDs := make([]string, 0)
	for _, l := range reqLines {
		accountIDs = append(accountIDs, l.AccountID)
		if l.InstrumentID != "" {
			instrumentIDs = append(instrumentIDs, l.InstrumentID)
		}
	}

	accounts, err := s.accountRepo.FindAccountsByIDs(ctx, accountIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	var instruments map[string]domain.Instrument
	if len(instrumentIDs) > 0 {
		instruments, err = s.instrumentRepo.FindInstrumentsByIDs(ctx, instrumentIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load instruments: %w", err)
		}
	}

	lines := make([]domain.Line, 0, len(reqLines))
	for i, l := range reqLines {
		account, ok := accounts[l.AccountID]
		if !ok || !account.IsActive {
			return nil, fmt.Errorf("%w: account %s on line %d", apperrors.ErrInvalidReference, l.AccountID, i+1)
		}
		if l.Side != domain.Debit && l.Side != domain.Credit {
			return nil, fmt.Errorf("%w: line %d side must be DR or CR", apperrors.ErrValidation, i+1)
		}
		if l.Amount.IsNegative() {
			return nil, fmt.Errorf("%w: line %d amount cannot be negative", apperrors.ErrValidation, i+1)
		}

		if l.InstrumentID != "" {
			instrument, ok := instruments[l.InstrumentID]
			if !ok || !instrument.IsActive {
				return nil, fmt.Errorf("%w: instrument %s on line %d", apperrors.ErrInvalidReference, l.InstrumentID, i+1)
			}
			if txn.Type == domain.Trade {
				if l.Quantity.IsZero() {
					return nil, fmt.Errorf("%w: line %d carries an instrument and requires a quantity", apperrors.ErrValidation, i+1)
				}
				if l.Side == domain.Debit && !l.Quantity.IsPositive() {
					return nil, fmt.Errorf("%w: line %d buy quantity must be positive", apperrors.ErrValidation, i+1)
				}
				if l.Side == domain.Credit && !l.Quantity.IsNegative() {
					return nil, fmt.Errorf("%w: line %d sell quantity must be negative", apperrors.ErrValidation, i+1)
				}
			}
		} else if !l.Quantity.IsZero() {
			return nil, fmt.Errorf("%w: line %d has a quantity but no instrument", apperrors.ErrValidation, i+1)
		}

		lines = append(lines, domain.Line{
			LineID:        uuid.NewString(),
			TransactionID: txn.TransactionID,
			AccountID:     l.AccountID,
			InstrumentID:  l.InstrumentID,
			Side:          l.Side,
			Amount:        l.Amount,
			Quantity:      l.Quantity,
			CurrencyCode:  account.CurrencyCode,
			Notes:         l.Notes,
			AuditFields: domain.AuditFields{
				CreatedAt:     now,
				CreatedBy:     userID,
				LastUpdatedAt: now,
				LastUpdatedBy: userID,
			},
		})
	}
	return lines, nil
}

// loadReferences loads and validates the accounts and instruments a
// transaction's lines point at.
func (s *journalService) loadReferences(ctx context.Context, txn *domain.Transaction) (map[string]domain.Account, map[string]domain.Instrument, error) {
	accountIDs := make([]string, 0, len(txn.Lines))
	instrumentIDs := make([]string, 0)
	for _, line := range txn.Lines {
		accountIDs = append(accountIDs, line.AccountID)
		if line.InstrumentID != "" {
			instrumentIDs = append(instrumentIDs, line.InstrumentID)
		}
	}

	accounts, err := s.accountRepo.FindAccountsByIDs(ctx, accountIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	for _, line := range txn.Lines {
		account, ok := accounts[line.AccountID]
		if !ok || !account.IsActive {
			return nil, nil, fmt.Errorf("%w: account %s", apperrors.ErrInvalidReference, line.AccountID)
		}
	}

	instruments := map[string]domain.Instrument{}
	if len(instrumentIDs) > 0 {
		instruments, err = s.instrumentRepo.FindInstrumentsByIDs(ctx, instrumentIDs)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load instruments: %w", err)
		}
		for _, id := range instrumentIDs {
			instrument, ok := instruments[id]
			if !ok || !instrument.IsActive {
				return nil, nil, fmt.Errorf("%w: instrument %s", apperrors.ErrInvalidReference, id)
			}
		}
	}
	return accounts, instruments, nil
}

// checkBalance verifies sum(DR) equals sum(CR) exactly after translating
// each line into base currency. Lines in base currency translate at 1; any
// other currency requires an explicit rate.
func (s *journalService) checkBalance(lines []domain.Line, fxRates dto.FXRates) error {
	dr := decimal.Zero
	cr := decimal.Zero
	for _, line := range lines {
		if line.Amount.IsZero() {
			continue
		}
		rate := decimal.NewFromInt(1)
		if line.CurrencyCode != s.baseCurrency {
			r, ok := fxRates[line.CurrencyCode]
			if !ok || !r.IsPositive() {
				return fmt.Errorf("%w: missing FX rate for currency %s", apperrors.ErrValidation, line.CurrencyCode)
			}
			rate = r
		}
		amount := line.Amount.Mul(rate)
		if line.Side == domain.Debit {
			dr = dr.Add(amount)
		} else {
			cr = cr.Add(amount)
		}
	}
	if !dr.Equal(cr) {
		return fmt.Errorf("%w: debits %s, credits %s, difference %s in %s",
			apperrors.ErrUnbalancedTransaction, dr, cr, dr.Sub(cr), s.baseCurrency)
	}
	return nil
}

// openingBalance computes the signed balance of everything strictly before
// the first entry of the requested ledger page.
func (s *journalService) openingBalance(ctx context.Context, account *domain.Account, params dto.LedgerParams) (decimal.Decimal, error) {
	var before time.Time
	var beforeLineID string
	switch {
	case params.NextToken != nil && *params.NextToken != "":
		date, id, err := pagination.DecodeToken(*params.NextToken)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
		}
		before, beforeLineID = date, id
	case params.DateFrom != nil:
		before, beforeLineID = *params.DateFrom, ""
	default:
		return decimal.Zero, nil
	}

	dr, cr, err := s.journalRepo.SumPostedLinesBefore(ctx, account.AccountID, before, beforeLineID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to compute opening balance for account %s: %w", account.AccountID, err)
	}
	switch account.AccountType {
	case domain.Asset, domain.Expense:
		return dr.Sub(cr), nil
	default:
		return cr.Sub(dr), nil
	}
}

// positionLockKeys returns the sorted, de-duplicated lock keys for every
// (instrument, account) pair the lines touch.
func positionLockKeys(lines []domain.Line) []string {
	seen := make(map[string]struct{})
	keys := make([]string, 0)
	for _, line := range lines {
		if line.InstrumentID == "" {
			continue
		}
		key := positionLockKey(line.InstrumentID, line.AccountID)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func positionLockKey(instrumentID, accountID string) string {
	return instrumentID + "|" + accountID
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageLimit
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}
