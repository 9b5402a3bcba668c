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
)

// moneyScale is the precision of generated cash amounts.
const moneyScale int32 = 2

var one = decimal.NewFromInt(1)

// DividendAccounts names the chart-of-accounts entries cash dividend
// processing posts against.
type DividendAccounts struct {
	CashAccountID   string
	IncomeAccountID string
}

// corporateActionService owns the corporate action lifecycle and is the only
// writer of the processed flag. Processing commits lot mutations, audit
// adjustments, and generated journal entries as one write-set.
type corporateActionService struct {
	actionRepo     portsrepo.CorporateActionRepositoryFacade
	lotRepo        portsrepo.LotRepositoryFacade
	instrumentRepo portsrepo.InstrumentRepositoryFacade
	journalRepo    portsrepo.JournalRepositoryFacade
	journalSvc     portssvc.JournalSvcFacade
	locks          *locking.KeyedMutex
	dividendAccts  DividendAccounts
}

// NewCorporateActionService creates a new corporate action service. The
// keyed mutex must be the same instance the journal service posts under.
func NewCorporateActionService(
	actionRepo portsrepo.CorporateActionRepositoryFacade,
	lotRepo portsrepo.LotRepositoryFacade,
	instrumentRepo portsrepo.InstrumentRepositoryFacade,
	journalRepo portsrepo.JournalRepositoryFacade,
	journalSvc portssvc.JournalSvcFacade,
	locks *locking.KeyedMutex,
	dividendAccts DividendAccounts,
) portssvc.CorporateActionSvcFacade {
	return &corporateActionService{
		actionRepo:     actionRepo,
		lotRepo:        lotRepo,
		instrumentRepo: instrumentRepo,
		journalRepo:    journalRepo,
		journalSvc:     journalSvc,
		locks:          locks,
		dividendAccts:  dividendAccts,
	}
}

var _ portssvc.CorporateActionSvcFacade = (*corporateActionService)(nil)

// CreateAction stores a draft corporate action after validating its
// type-specific parameters.
func (s *corporateActionService) CreateAction(ctx context.Context, req dto.CreateCorporateActionRequest, creatorUserID string) (*domain.CorporateAction, error) {
	if _, err := s.instrumentRepo.FindInstrumentByID(ctx, req.InstrumentID); err != nil {
		return nil, fmt.Errorf("%w: instrument %s", apperrors.ErrInvalidReference, req.InstrumentID)
	}

	now := time.Now().UTC()
	action := &domain.CorporateAction{
		ActionID:        uuid.NewString(),
		InstrumentID:    req.InstrumentID,
		Type:            req.Type,
		Date:            req.Date,
		Ratio:           req.Ratio,
		CashPerShare:    req.CashPerShare,
		NewInstrumentID: req.NewInstrumentID,
		Notes:           req.Notes,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     creatorUserID,
			LastUpdatedAt: now,
			LastUpdatedBy: creatorUserID,
		},
	}
	for _, a := range req.Allocations {
		action.Allocations = append(action.Allocations, domain.ActionAllocation{
			InstrumentID: a.InstrumentID,
			Ratio:        a.Ratio,
		})
	}

	if err := s.validateAction(ctx, action); err != nil {
		return nil, err
	}
	if err := s.actionRepo.SaveAction(ctx, *action); err != nil {
		return nil, fmt.Errorf("failed to save corporate action: %w", err)
	}
	return action, nil
}

// UpdateAction updates a draft action; processed actions are immutable.
func (s *corporateActionService) UpdateAction(ctx context.Context, actionID string, req dto.UpdateCorporateActionRequest, userID string) (*domain.CorporateAction, error) {
	action, err := s.actionRepo.FindActionByID(ctx, actionID)
	if err != nil {
		return nil, err
	}
	if action.Processed {
		return nil, fmt.Errorf("%w: corporate action %s", apperrors.ErrAlreadyProcessed, actionID)
	}

	if req.Date != nil {
		action.Date = *req.Date
	}
	if req.Ratio != nil {
		action.Ratio = *req.Ratio
	}
	if req.CashPerShare != nil {
		action.CashPerShare = *req.CashPerShare
	}
	if req.Notes != nil {
		action.Notes = *req.Notes
	}
	action.LastUpdatedAt = time.Now().UTC()
	action.LastUpdatedBy = userID

	if err := s.validateAction(ctx, action); err != nil {
		return nil, err
	}
	if err := s.actionRepo.UpdateDraftAction(ctx, *action); err != nil {
		return nil, fmt.Errorf("failed to update corporate action %s: %w", actionID, err)
	}
	return action, nil
}

// DeleteAction removes a draft action; processed actions are immutable.
func (s *corporateActionService) DeleteAction(ctx context.Context, actionID string) error {
	action, err := s.actionRepo.FindActionByID(ctx, actionID)
	if err != nil {
		return err
	}
	if action.Processed {
		return fmt.Errorf("%w: corporate action %s", apperrors.ErrAlreadyProcessed, actionID)
	}
	return s.actionRepo.DeleteDraftAction(ctx, actionID)
}

func (s *corporateActionService) GetAction(ctx context.Context, actionID string) (*domain.CorporateAction, error) {
	return s.actionRepo.FindActionByID(ctx, actionID)
}

func (s *corporateActionService) ListActions(ctx context.Context, params dto.ListCorporateActionsParams) ([]domain.CorporateAction, error) {
	return s.actionRepo.ListActions(ctx, portsrepo.ListActionsFilter{
		InstrumentID: params.InstrumentID,
		Processed:    params.Processed,
		DateFrom:     params.DateFrom,
		DateTo:       params.DateTo,
		Limit:        clampLimit(params.Limit),
		Offset:       params.Offset,
	})
}

// Process applies a corporate action to every open lot of its instrument.
// Processing happens exactly once: the processed flag, lot mutations, audit
// adjustments, and generated journal entries commit as one write-set.
func (s *corporateActionService) Process(ctx context.Context, actionID string, userID string) (*domain.ProcessingResult, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	action, err := s.actionRepo.FindActionByID(ctx, actionID)
	if err != nil {
		return nil, err
	}
	if action.Processed {
		return nil, fmt.Errorf("%w: corporate action %s", apperrors.ErrAlreadyProcessed, actionID)
	}

	keys, err := s.lockKeysForAction(ctx, action)
	if err != nil {
		return nil, err
	}
	s.locks.LockAll(keys)
	defer s.locks.UnlockAll(keys)

	// Re-read under the lock in case a concurrent process won the race.
	action, err = s.actionRepo.FindActionByID(ctx, actionID)
	if err != nil {
		return nil, err
	}
	if action.Processed {
		return nil, fmt.Errorf("%w: corporate action %s", apperrors.ErrAlreadyProcessed, actionID)
	}

	lots, err := s.lotRepo.OpenLotsByInstrument(ctx, action.InstrumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load open lots for instrument %s: %w", action.InstrumentID, err)
	}

	seq, err := s.journalRepo.NextPostingSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve posting sequence: %w", err)
	}

	var effects *domain.ActionEffects
	switch action.Type {
	case domain.Split:
		effects, err = s.scaleQuantities(ctx, action, lots, action.Ratio, seq, userID)
	case domain.StockDividend:
		effects, err = s.scaleQuantities(ctx, action, lots, one.Add(action.Ratio), seq, userID)
	case domain.CashDividend:
		effects, err = s.payCashDividend(ctx, action, lots, seq, userID)
	case domain.SymbolChange:
		effects, err = s.rekeyInstrument(ctx, action, lots, seq, userID)
	case domain.Merger, domain.Spinoff:
		effects, err = s.allocateLots(ctx, action, lots, seq, userID)
	default:
		return nil, fmt.Errorf("%w: unknown corporate action type %q", apperrors.ErrValidation, action.Type)
	}
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	effects.Action.Processed = true
	effects.Action.ProcessedSeq = seq
	effects.Action.LastUpdatedAt = now
	effects.Action.LastUpdatedBy = userID
	for _, txn := range effects.Transactions {
		effects.Action.GeneratedTransactionIDs = append(effects.Action.GeneratedTransactionIDs, txn.TransactionID)
	}

	if err := s.actionRepo.SaveProcessing(ctx, *effects); err != nil {
		return nil, fmt.Errorf("failed to commit processing of corporate action %s: %w", actionID, err)
	}

	result := &domain.ProcessingResult{
		ActionID:                actionID,
		Type:                    action.Type,
		PositionsAffected:       countPositions(lots),
		LotsAdjusted:            len(effects.UpdatedLots),
		LotsCreated:             len(effects.CreatedLots),
		GeneratedTransactionIDs: effects.Action.GeneratedTransactionIDs,
		TotalCashPaid:           sumCash(effects.Transactions),
		ProcessedAt:             now,
	}

	logger.Info("corporate action processed",
		slog.String("action_id", actionID),
		slog.String("type", string(action.Type)),
		slog.Int64("processed_seq", seq),
		slog.Int("lots_adjusted", result.LotsAdjusted),
		slog.Int("lots_created", result.LotsCreated))
	return result, nil
}

// ProcessPending processes every unprocessed action dated on or before
// cutoff, oldest first. It stops at the first failure so actions never apply
// out of order.
func (s *corporateActionService) ProcessPending(ctx context.Context, cutoff time.Time, userID string) ([]domain.ProcessingResult, error) {
	unprocessed := false
	actions, err := s.actionRepo.ListActions(ctx, portsrepo.ListActionsFilter{
		Processed: &unprocessed,
		DateTo:    &cutoff,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending corporate actions: %w", err)
	}
	sort.Slice(actions, func(i, j int) bool {
		if !actions[i].Date.Equal(actions[j].Date) {
			return actions[i].Date.Before(actions[j].Date)
		}
		return actions[i].CreatedAt.Before(actions[j].CreatedAt)
	})

	results := make([]domain.ProcessingResult, 0, len(actions))
	for _, action := range actions {
		result, err := s.Process(ctx, action.ActionID, userID)
		if err != nil {
			return results, fmt.Errorf("processing stopped at corporate action %s: %w", action.ActionID, err)
		}
		results = append(results, *result)
	}
	return results, nil
}

// scaleQuantities multiplies lot quantities by factor, keeping total cost
// unchanged. Used for splits and stock dividends.
func (s *corporateActionService) scaleQuantities(ctx context.Context, action *domain.CorporateAction, lots []domain.Lot, factor decimal.Decimal, seq int64, userID string) (*domain.ActionEffects, error) {
	effects := &domain.ActionEffects{Action: *action}
	now := time.Now().UTC()

	for _, lot := range lots {
		before := lot
		lot.QtyOpened = lot.QtyOpened.Mul(factor)
		lot.QtyRemaining = lot.QtyRemaining.Mul(factor)
		if !lot.QtyOpened.IsZero() {
			lot.CostPerUnit = lot.CostTotal.Div(lot.QtyOpened).Round(costScale)
		}
		lot.LastUpdatedAt = now
		lot.LastUpdatedBy = userID

		effects.UpdatedLots = append(effects.UpdatedLots, lot)
		effects.Adjustments = append(effects.Adjustments, newAdjustment(action.ActionID, domain.AdjustScale, before, lot, seq, now))
	}

	txn, err := s.buildMemoTransaction(ctx, action, lots, seq, userID)
	if err != nil {
		return nil, err
	}
	if txn != nil {
		effects.Transactions = append(effects.Transactions, *txn)
	}
	return effects, nil
}

// payCashDividend emits one DIVIDEND transaction paying cash-per-share on
// every open position. Lot state is untouched, but each source lot gets a
// no-op snapshot adjustment recording that the payout was computed from it.
func (s *corporateActionService) payCashDividend(ctx context.Context, action *domain.CorporateAction, lots []domain.Lot, seq int64, userID string) (*domain.ActionEffects, error) {
	if s.dividendAccts.CashAccountID == "" || s.dividendAccts.IncomeAccountID == "" {
		return nil, fmt.Errorf("%w: dividend cash and income accounts are not configured", apperrors.ErrValidation)
	}

	effects := &domain.ActionEffects{Action: *action}
	quantities := quantitiesByAccount(lots)
	if len(quantities) == 0 {
		return effects, nil
	}

	accountIDs := make([]string, 0, len(quantities))
	for accountID := range quantities {
		accountIDs = append(accountIDs, accountID)
	}
	sort.Strings(accountIDs)

	req := dto.CreateTransactionRequest{
		Type: domain.Dividend,
		Date: action.Date,
		Memo: fmt.Sprintf("Cash dividend %s per share", action.CashPerShare),
	}
	for _, accountID := range accountIDs {
		amount := quantities[accountID].Mul(action.CashPerShare).Round(moneyScale)
		if amount.IsZero() {
			continue
		}
		notes := fmt.Sprintf("Dividend on %s held in account %s", action.InstrumentID, accountID)
		req.Lines = append(req.Lines,
			dto.CreateLineRequest{
				AccountID:    s.dividendAccts.CashAccountID,
				InstrumentID: action.InstrumentID,
				Side:         domain.Debit,
				Amount:       amount,
				Notes:        notes,
			},
			dto.CreateLineRequest{
				AccountID:    s.dividendAccts.IncomeAccountID,
				InstrumentID: action.InstrumentID,
				Side:         domain.Credit,
				Amount:       amount,
				Notes:        notes,
			},
		)
	}
	if len(req.Lines) == 0 {
		return effects, nil
	}

	txn, err := s.journalSvc.BuildPostedTransaction(ctx, req, seq, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to build dividend transaction: %w", err)
	}
	effects.Transactions = append(effects.Transactions, *txn)

	// The snapshot carries this processing's seq, so unposting the trade
	// that opened one of these lots is blocked once the dividend is paid.
	now := time.Now().UTC()
	for _, lot := range lots {
		effects.Adjustments = append(effects.Adjustments, newAdjustment(action.ActionID, domain.AdjustSnapshot, lot, lot, seq, now))
	}
	return effects, nil
}

// rekeyInstrument moves every open lot to the new instrument, preserving
// quantities and cost basis.
func (s *corporateActionService) rekeyInstrument(ctx context.Context, action *domain.CorporateAction, lots []domain.Lot, seq int64, userID string) (*domain.ActionEffects, error) {
	effects := &domain.ActionEffects{Action: *action}
	now := time.Now().UTC()

	for _, lot := range lots {
		before := lot
		lot.InstrumentID = action.NewInstrumentID
		lot.LastUpdatedAt = now
		lot.LastUpdatedBy = userID

		effects.UpdatedLots = append(effects.UpdatedLots, lot)
		effects.Adjustments = append(effects.Adjustments, newAdjustment(action.ActionID, domain.AdjustRekey, before, lot, seq, now))
	}

	txn, err := s.buildMemoTransaction(ctx, action, lots, seq, userID)
	if err != nil {
		return nil, err
	}
	if txn != nil {
		effects.Transactions = append(effects.Transactions, *txn)
	}
	return effects, nil
}

// allocateLots closes every open lot and reopens its remaining quantity and
// cost across the allocation targets. Quantities split exactly because the
// ratios sum to one; cost slices get the division remainder on the last
// target.
func (s *corporateActionService) allocateLots(ctx context.Context, action *domain.CorporateAction, lots []domain.Lot, seq int64, userID string) (*domain.ActionEffects, error) {
	effects := &domain.ActionEffects{Action: *action}
	now := time.Now().UTC()

	memoTxn, err := s.buildMemoTransaction(ctx, action, lots, seq, userID)
	if err != nil {
		return nil, err
	}
	openTxnID := ""
	if memoTxn != nil {
		effects.Transactions = append(effects.Transactions, *memoTxn)
		openTxnID = memoTxn.TransactionID
	}

	weights := make([]decimal.Decimal, len(action.Allocations))
	for i, alloc := range action.Allocations {
		weights[i] = alloc.Ratio
	}

	for _, lot := range lots {
		before := lot
		remainingCost := lot.RemainingCost()
		costParts := accounting.AllocateProRata(remainingCost, weights, costScale)

		closed := lot
		closed.QtyRemaining = decimal.Zero
		closed.Closed = true
		closed.LastUpdatedAt = now
		closed.LastUpdatedBy = userID
		effects.UpdatedLots = append(effects.UpdatedLots, closed)
		effects.Adjustments = append(effects.Adjustments, newAdjustment(action.ActionID, domain.AdjustSplit, before, closed, seq, now))

		for i, alloc := range action.Allocations {
			qty := lot.QtyRemaining.Mul(alloc.Ratio)
			if qty.IsZero() {
				continue
			}
			newLot := domain.Lot{
				LotID:             uuid.NewString(),
				InstrumentID:      alloc.InstrumentID,
				AccountID:         lot.AccountID,
				OpenDate:          lot.OpenDate,
				QtyOpened:         qty,
				QtyRemaining:      qty,
				CostPerUnit:       costParts[i].Div(qty).Round(costScale),
				CostTotal:         costParts[i],
				Method:            lot.Method,
				OpenTransactionID: openTxnID,
				OpenSeq:           seq,
				AuditFields: domain.AuditFields{
					CreatedAt:     now,
					CreatedBy:     userID,
					LastUpdatedAt: now,
					LastUpdatedBy: userID,
				},
			}
			effects.CreatedLots = append(effects.CreatedLots, newLot)
			effects.Adjustments = append(effects.Adjustments, domain.LotAdjustment{
				AdjustmentID:      uuid.NewString(),
				LotID:             newLot.LotID,
				ActionID:          action.ActionID,
				Kind:              domain.AdjustCreate,
				QtyOpenedAfter:    newLot.QtyOpened,
				QtyRemainingAfter: newLot.QtyRemaining,
				CostTotalBefore:   decimal.Zero,
				CostTotalAfter:    newLot.CostTotal,
				InstrumentBefore:  lot.InstrumentID,
				InstrumentAfter:   newLot.InstrumentID,
				Seq:               seq,
				CreatedAt:         now,
			})
		}
	}
	return effects, nil
}

// buildMemoTransaction creates the zero-amount ADJUST journal entry that
// records a non-cash corporate action against each affected account.
func (s *corporateActionService) buildMemoTransaction(ctx context.Context, action *domain.CorporateAction, lots []domain.Lot, seq int64, userID string) (*domain.Transaction, error) {
	accountIDs := affectedAccounts(lots)
	if len(accountIDs) == 0 {
		return nil, nil
	}

	req := dto.CreateTransactionRequest{
		Type: domain.Adjust,
		Date: action.Date,
		Memo: fmt.Sprintf("%s on %s", action.Type, action.InstrumentID),
	}
	for _, accountID := range accountIDs {
		notes := string(action.Type)
		req.Lines = append(req.Lines,
			dto.CreateLineRequest{
				AccountID:    accountID,
				InstrumentID: action.InstrumentID,
				Side:         domain.Debit,
				Amount:       decimal.Zero,
				Notes:        notes,
			},
			dto.CreateLineRequest{
				AccountID:    accountID,
				InstrumentID: action.InstrumentID,
				Side:         domain.Credit,
				Amount:       decimal.Zero,
				Notes:        notes,
			},
		)
	}

	txn, err := s.journalSvc.BuildPostedTransaction(ctx, req, seq, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s memo transaction: %w", action.Type, err)
	}
	return txn, nil
}

// validateAction checks the type-specific parameters of an action.
func (s *corporateActionService) validateAction(ctx context.Context, action *domain.CorporateAction) error {
	switch action.Type {
	case domain.Split:
		if !action.Ratio.IsPositive() {
			return fmt.Errorf("%w: split ratio must be positive", apperrors.ErrValidation)
		}
	case domain.StockDividend:
		if !action.Ratio.IsPositive() {
			return fmt.Errorf("%w: stock dividend ratio must be positive", apperrors.ErrValidation)
		}
	case domain.CashDividend:
		if !action.CashPerShare.IsPositive() {
			return fmt.Errorf("%w: cash per share must be positive", apperrors.ErrValidation)
		}
	case domain.SymbolChange:
		if action.NewInstrumentID == "" {
			return fmt.Errorf("%w: symbol change requires a new instrument", apperrors.ErrValidation)
		}
		if action.NewInstrumentID == action.InstrumentID {
			return fmt.Errorf("%w: symbol change target must differ from the source instrument", apperrors.ErrValidation)
		}
		if _, err := s.instrumentRepo.FindInstrumentByID(ctx, action.NewInstrumentID); err != nil {
			return fmt.Errorf("%w: instrument %s", apperrors.ErrInvalidReference, action.NewInstrumentID)
		}
	case domain.Merger, domain.Spinoff:
		if len(action.Allocations) == 0 {
			return fmt.Errorf("%w: %s requires at least one allocation", apperrors.ErrValidation, action.Type)
		}
		sum := decimal.Zero
		seen := make(map[string]struct{})
		for _, alloc := range action.Allocations {
			if !alloc.Ratio.IsPositive() {
				return fmt.Errorf("%w: allocation ratio for %s must be positive", apperrors.ErrValidation, alloc.InstrumentID)
			}
			if _, dup := seen[alloc.InstrumentID]; dup {
				return fmt.Errorf("%w: duplicate allocation target %s", apperrors.ErrValidation, alloc.InstrumentID)
			}
			seen[alloc.InstrumentID] = struct{}{}
			if _, err := s.instrumentRepo.FindInstrumentByID(ctx, alloc.InstrumentID); err != nil {
				return fmt.Errorf("%w: instrument %s", apperrors.ErrInvalidReference, alloc.InstrumentID)
			}
			sum = sum.Add(alloc.Ratio)
		}
		if !sum.Equal(one) {
			return fmt.Errorf("%w: allocation ratios must sum to exactly 1, got %s", apperrors.ErrValidation, sum)
		}
	default:
		return fmt.Errorf("%w: unknown corporate action type %q", apperrors.ErrValidation, action.Type)
	}
	return nil
}

// lockKeysForAction returns the sorted lock keys covering every position the
// action can touch, including allocation and rekey targets.
func (s *corporateActionService) lockKeysForAction(ctx context.Context, action *domain.CorporateAction) ([]string, error) {
	lots, err := s.lotRepo.OpenLotsByInstrument(ctx, action.InstrumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load open lots for instrument %s: %w", action.InstrumentID, err)
	}

	targets := []string{action.InstrumentID}
	if action.NewInstrumentID != "" {
		targets = append(targets, action.NewInstrumentID)
	}
	for _, alloc := range action.Allocations {
		targets = append(targets, alloc.InstrumentID)
	}

	seen := make(map[string]struct{})
	keys := make([]string, 0)
	for _, lot := range lots {
		for _, instrumentID := range targets {
			key := positionLockKey(instrumentID, lot.AccountID)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func newAdjustment(actionID string, kind domain.LotAdjustmentKind, before, after domain.Lot, seq int64, now time.Time) domain.LotAdjustment {
	return domain.LotAdjustment{
		AdjustmentID:       uuid.NewString(),
		LotID:              before.LotID,
		ActionID:           actionID,
		Kind:               kind,
		QtyOpenedBefore:    before.QtyOpened,
		QtyOpenedAfter:     after.QtyOpened,
		QtyRemainingBefore: before.QtyRemaining,
		QtyRemainingAfter:  after.QtyRemaining,
		CostTotalBefore:    before.CostTotal,
		CostTotalAfter:     after.CostTotal,
		InstrumentBefore:   before.InstrumentID,
		InstrumentAfter:    after.InstrumentID,
		Seq:                seq,
		CreatedAt:          now,
	}
}

func quantitiesByAccount(lots []domain.Lot) map[string]decimal.Decimal {
	quantities := make(map[string]decimal.Decimal)
	for _, lot := range lots {
		quantities[lot.AccountID] = quantities[lot.AccountID].Add(lot.QtyRemaining)
	}
	return quantities
}

func affectedAccounts(lots []domain.Lot) []string {
	seen := make(map[string]struct{})
	accounts := make([]string, 0)
	for _, lot := range lots {
		if _, ok := seen[lot.AccountID]; ok {
			continue
		}
		seen[lot.AccountID] = struct{}{}
		accounts = append(accounts, lot.AccountID)
	}
	sort.Strings(accounts)
	return accounts
}

func countPositions(lots []domain.Lot) int {
	seen := make(map[domain.PositionKey]struct{})
	for _, lot := range lots {
		seen[domain.PositionKey{InstrumentID: lot.InstrumentID, AccountID: lot.AccountID}] = struct{}{}
	}
	return len(seen)
}

func sumCash(txns []domain.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, txn := range txns {
		if txn.Type != domain.Dividend {
			continue
		}
		for _, line := range txn.Lines {
			if line.Side == domain.Debit {
				total = total.Add(line.Amount)
			}
		}
	}
	return total
}
