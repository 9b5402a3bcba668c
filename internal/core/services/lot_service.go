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
)

// costScale is the decimal precision used when allocating cost and proceeds
// across consumed slices. Any remainder from division goes to the last
// slice so totals always add up exactly.
const costScale int32 = 6

// lotService is the lot engine. It computes lot effects for the journal
// store and the corporate action processor; the owning operation commits
// them, so lot state always changes inside that operation's boundary.
type lotService struct {
	lotRepo portsrepo.LotRepositoryFacade
}

// NewLotService creates a new lot engine.
func NewLotService(lotRepo portsrepo.LotRepositoryFacade) portssvc.LotSvcFacade {
	return &lotService{lotRepo: lotRepo}
}

var _ portssvc.LotSvcFacade = (*lotService)(nil)

// OpenFromLine builds the lot opened by a posted BUY trade line.
// cost_per_unit = cost_total / quantity.
func (s *lotService) OpenFromLine(txn *domain.Transaction, line domain.Line, method domain.CostBasisMethod, seq int64) (domain.Lot, error) {
	if !line.IsBuy() {
		return domain.Lot{}, fmt.Errorf("%w: line %s is not a buy-side trade line", apperrors.ErrValidation, line.LineID)
	}
	if line.Quantity.LessThanOrEqual(decimal.Zero) {
		return domain.Lot{}, fmt.Errorf("%w: buy quantity must be positive, got %s", apperrors.ErrValidation, line.Quantity)
	}
	if line.Amount.IsNegative() {
		return domain.Lot{}, fmt.Errorf("%w: cost total cannot be negative, got %s", apperrors.ErrValidation, line.Amount)
	}
	if method == "" {
		method = domain.FIFO
	}

	now := time.Now().UTC()
	return domain.Lot{
		LotID:             uuid.NewString(),
		InstrumentID:      line.InstrumentID,
		AccountID:         line.AccountID,
		OpenDate:          txn.Date,
		QtyOpened:         line.Quantity,
		QtyRemaining:      line.Quantity,
		CostPerUnit:       line.Amount.Div(line.Quantity).Round(costScale),
		CostTotal:         line.Amount,
		Method:            method,
		OpenTransactionID: txn.TransactionID,
		OpenSeq:           seq,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     txn.CreatedBy,
			LastUpdatedAt: now,
			LastUpdatedBy: txn.CreatedBy,
		},
	}, nil
}

// CloseQuantity consumes open quantity for a SELL trade line. Lots are
// selected in FIFO order (open date ascending, opening sequence then lot id
// as tie-breaks). The AVERAGE method decrements the same physical lots but
// charges every slice the weighted-average cost of the whole position.
func (s *lotService) CloseQuantity(ctx context.Context, req dto.CloseQuantityRequest, effects *domain.LotEffects) (*domain.RealizedPnL, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	if req.Quantity.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: quantity to close must be positive, got %s", apperrors.ErrValidation, req.Quantity)
	}
	if req.Proceeds.IsNegative() {
		return nil, fmt.Errorf("%w: proceeds cannot be negative, got %s", apperrors.ErrValidation, req.Proceeds)
	}

	openLots, err := s.openLotsWithOverlay(ctx, req.InstrumentID, req.AccountID, effects)
	if err != nil {
		return nil, err
	}

	lotIDs := make([]string, len(openLots))
	for i, lot := range openLots {
		lotIDs[i] = lot.LotID
	}
	consumedCost, err := s.consumedCostByLot(ctx, lotIDs, effects)
	if err != nil {
		return nil, err
	}
	// Ledger-exact remaining cost: opened cost minus every slice already
	// charged, so the division remainder survives until the lot empties.
	remainingCost := func(lot domain.Lot) decimal.Decimal {
		return lot.CostTotal.Sub(consumedCost[lot.LotID])
	}

	totalOpen := decimal.Zero
	totalCost := decimal.Zero
	for _, lot := range openLots {
		totalOpen = totalOpen.Add(lot.QtyRemaining)
		totalCost = totalCost.Add(remainingCost(lot))
	}
	if totalOpen.LessThan(req.Quantity) {
		return nil, fmt.Errorf("%w: requested %s, available %s for instrument %s in account %s",
			apperrors.ErrInsufficientQuantity, req.Quantity, totalOpen, req.InstrumentID, req.AccountID)
	}

	// Weighted-average cost across the position, used by the AVERAGE method.
	var avgCost decimal.Decimal
	if req.Method == domain.Average && !totalOpen.IsZero() {
		avgCost = totalCost.Div(totalOpen).Round(costScale)
	}

	type slice struct {
		lot  domain.Lot
		qty  decimal.Decimal
		cost decimal.Decimal
	}

	slices := make([]slice, 0, 2)
	remaining := req.Quantity
	for _, lot := range openLots {
		if remaining.IsZero() {
			break
		}
		take := decimal.Min(remaining, lot.QtyRemaining)

		var cost decimal.Decimal
		switch req.Method {
		case domain.Average:
			cost = avgCost.Mul(take).Round(costScale)
		default: // FIFO
			if take.Equal(lot.QtyRemaining) {
				// Emptying the lot charges whatever cost basis is left, so
				// lifetime consumed cost sums to CostTotal exactly.
				cost = remainingCost(lot)
			} else {
				cost = lot.CostPerUnit.Mul(take).Round(costScale)
			}
		}

		slices = append(slices, slice{lot: lot, qty: take, cost: cost})
		remaining = remaining.Sub(take)
	}

	// AVERAGE: force the summed cost basis to exactly avgCost * quantity by
	// assigning the division remainder to the last slice.
	if req.Method == domain.Average && len(slices) > 0 {
		target := avgCost.Mul(req.Quantity).Round(costScale)
		allocated := decimal.Zero
		for i := 0; i < len(slices)-1; i++ {
			allocated = allocated.Add(slices[i].cost)
		}
		slices[len(slices)-1].cost = target.Sub(allocated)
	}

	// Proceeds are allocated pro-rata by slice quantity, remainder to the
	// last slice.
	weights := make([]decimal.Decimal, len(slices))
	for i, sl := range slices {
		weights[i] = sl.qty
	}
	proceedsParts := accounting.AllocateProRata(req.Proceeds, weights, costScale)

	now := time.Now().UTC()
	pnl := &domain.RealizedPnL{
		InstrumentID:   req.InstrumentID,
		AccountID:      req.AccountID,
		QuantityClosed: req.Quantity,
		Proceeds:       req.Proceeds,
		LotsAffected:   len(slices),
	}

	for i, sl := range slices {
		updated := sl.lot
		updated.QtyRemaining = updated.QtyRemaining.Sub(sl.qty)
		if updated.QtyRemaining.IsNegative() {
			// Hard invariant: lot quantity can never go negative. Reaching
			// this point means lot state is corrupt; halt the operation.
			logger.Error("lot quantity went negative during close",
				slog.String("lot_id", updated.LotID),
				slog.String("qty_remaining", updated.QtyRemaining.String()))
			return nil, fmt.Errorf("%w: lot %s quantity would become %s",
				apperrors.ErrReconciliationMismatch, updated.LotID, updated.QtyRemaining)
		}
		if updated.QtyRemaining.IsZero() {
			updated.Closed = true
		}
		updated.LastUpdatedAt = now

		consumption := domain.LotConsumption{
			ConsumptionID:  uuid.NewString(),
			LotID:          sl.lot.LotID,
			TransactionID:  req.TransactionID,
			LineID:         req.LineID,
			Quantity:       sl.qty,
			CostAmount:     sl.cost,
			ProceedsAmount: proceedsParts[i],
			TradeDate:      req.Date,
			Seq:            req.Seq,
			CreatedAt:      now,
		}

		upsertUpdatedLot(effects, updated)
		effects.Consumptions = append(effects.Consumptions, consumption)

		pnl.CostBasis = pnl.CostBasis.Add(sl.cost)
		pnl.Consumptions = append(pnl.Consumptions, consumption)
	}

	pnl.Realized = pnl.Proceeds.Sub(pnl.CostBasis)

	logger.Debug("closed quantity against lots",
		slog.String("instrument_id", req.InstrumentID),
		slog.String("account_id", req.AccountID),
		slog.String("quantity", req.Quantity.String()),
		slog.Int("lots_affected", pnl.LotsAffected),
		slog.String("realized", pnl.Realized.String()))

	return pnl, nil
}

// consumedCostByLot sums the cost already charged against each lot, from the
// recorded consumption ledger plus slices pending in the current posting.
func (s *lotService) consumedCostByLot(ctx context.Context, lotIDs []string, effects *domain.LotEffects) (map[string]decimal.Decimal, error) {
	consumed := make(map[string]decimal.Decimal, len(lotIDs))
	recorded, err := s.lotRepo.ConsumptionsByLotIDs(ctx, lotIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load consumption history: %w", err)
	}
	for _, c := range recorded {
		consumed[c.LotID] = consumed[c.LotID].Add(c.CostAmount)
	}
	if effects != nil {
		for _, c := range effects.Consumptions {
			consumed[c.LotID] = consumed[c.LotID].Add(c.CostAmount)
		}
	}
	return consumed, nil
}

// UndoEffects reconstructs the exact inverse of a posting's lot effects
// from the recorded consumption ledger.
func (s *lotService) UndoEffects(ctx context.Context, txn *domain.Transaction) (*domain.UnpostEffects, error) {
	opened, err := s.lotRepo.LotsByOpenTransaction(ctx, txn.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lots opened by transaction %s: %w", txn.TransactionID, err)
	}
	consumptions, err := s.lotRepo.ConsumptionsByTransaction(ctx, txn.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load consumptions of transaction %s: %w", txn.TransactionID, err)
	}

	touched := make([]string, 0, len(opened)+len(consumptions))
	for _, lot := range opened {
		touched = append(touched, lot.LotID)
	}
	for _, c := range consumptions {
		touched = append(touched, c.LotID)
	}

	if len(touched) > 0 {
		laterCons, err := s.lotRepo.ConsumptionsByLotIDs(ctx, touched)
		if err != nil {
			return nil, fmt.Errorf("failed to check dependent consumptions: %w", err)
		}
		for _, c := range laterCons {
			if c.TransactionID != txn.TransactionID && c.Seq > txn.PostingSeq {
				return nil, fmt.Errorf("%w: transaction %s consumed lot %s after this posting",
					apperrors.ErrDependentState, c.TransactionID, c.LotID)
			}
			if c.TransactionID != txn.TransactionID && containsLotOpenedBy(opened, c.LotID) {
				return nil, fmt.Errorf("%w: lot %s opened by this posting was consumed by transaction %s",
					apperrors.ErrDependentState, c.LotID, c.TransactionID)
			}
		}

		adjustments, err := s.lotRepo.AdjustmentsByLotIDs(ctx, touched)
		if err != nil {
			return nil, fmt.Errorf("failed to check dependent corporate action adjustments: %w", err)
		}
		for _, adj := range adjustments {
			if adj.Seq > txn.PostingSeq {
				return nil, fmt.Errorf("%w: corporate action %s adjusted lot %s after this posting",
					apperrors.ErrDependentState, adj.ActionID, adj.LotID)
			}
		}
	}

	effects := &domain.UnpostEffects{}
	for _, lot := range opened {
		effects.DeletedLotIDs = append(effects.DeletedLotIDs, lot.LotID)
	}

	restored := make(map[string]domain.Lot)
	now := time.Now().UTC()
	for _, c := range consumptions {
		lot, ok := restored[c.LotID]
		if !ok {
			found, err := s.lotRepo.FindLotByID(ctx, c.LotID)
			if err != nil {
				return nil, fmt.Errorf("failed to load lot %s for restore: %w", c.LotID, err)
			}
			lot = *found
		}
		lot.QtyRemaining = lot.QtyRemaining.Add(c.Quantity)
		if lot.QtyRemaining.GreaterThan(lot.QtyOpened) {
			return nil, fmt.Errorf("%w: restoring lot %s would exceed its opened quantity",
				apperrors.ErrReconciliationMismatch, lot.LotID)
		}
		lot.Closed = false
		lot.LastUpdatedAt = now
		restored[c.LotID] = lot

		effects.DeletedConsumptionIDs = append(effects.DeletedConsumptionIDs, c.ConsumptionID)
	}
	for _, lot := range restored {
		effects.Restored = append(effects.Restored, lot)
	}
	sort.Slice(effects.Restored, func(i, j int) bool {
		return effects.Restored[i].LotID < effects.Restored[j].LotID
	})

	return effects, nil
}

// OpenLots returns open lots for one (instrument, account) pair in FIFO order.
func (s *lotService) OpenLots(ctx context.Context, instrumentID string, accountID string) ([]domain.Lot, error) {
	return s.lotRepo.OpenLots(ctx, instrumentID, accountID)
}

// OpenLotsByInstrument returns open lots across all accounts holding the instrument.
func (s *lotService) OpenLotsByInstrument(ctx context.Context, instrumentID string) ([]domain.Lot, error) {
	return s.lotRepo.OpenLotsByInstrument(ctx, instrumentID)
}

// openLotsWithOverlay merges repository lot state with the effects already
// accumulated in the current posting, so a transaction whose lines open and
// close the same position sees its own pending lots.
func (s *lotService) openLotsWithOverlay(ctx context.Context, instrumentID, accountID string, effects *domain.LotEffects) ([]domain.Lot, error) {
	stored, err := s.lotRepo.OpenLots(ctx, instrumentID, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load open lots for instrument %s account %s: %w", instrumentID, accountID, err)
	}

	byID := make(map[string]domain.Lot, len(stored))
	order := make([]string, 0, len(stored))
	for _, lot := range stored {
		byID[lot.LotID] = lot
		order = append(order, lot.LotID)
	}
	if effects != nil {
		for _, lot := range effects.Opened {
			if lot.InstrumentID != instrumentID || lot.AccountID != accountID {
				continue
			}
			if _, ok := byID[lot.LotID]; !ok {
				order = append(order, lot.LotID)
			}
			byID[lot.LotID] = lot
		}
		for _, lot := range effects.Updated {
			if lot.InstrumentID != instrumentID || lot.AccountID != accountID {
				continue
			}
			if _, ok := byID[lot.LotID]; ok {
				byID[lot.LotID] = lot
			}
		}
	}

	lots := make([]domain.Lot, 0, len(order))
	for _, id := range order {
		lot := byID[id]
		if lot.Closed || lot.QtyRemaining.LessThanOrEqual(decimal.Zero) {
			continue
		}
		lots = append(lots, lot)
	}
	sort.Slice(lots, func(i, j int) bool {
		if !lots[i].OpenDate.Equal(lots[j].OpenDate) {
			return lots[i].OpenDate.Before(lots[j].OpenDate)
		}
		if lots[i].OpenSeq != lots[j].OpenSeq {
			return lots[i].OpenSeq < lots[j].OpenSeq
		}
		return lots[i].LotID < lots[j].LotID
	})
	return lots, nil
}

// upsertUpdatedLot replaces a pending update for the same lot, or appends.
func upsertUpdatedLot(effects *domain.LotEffects, lot domain.Lot) {
	for i := range effects.Updated {
		if effects.Updated[i].LotID == lot.LotID {
			effects.Updated[i] = lot
			return
		}
	}
	// A lot opened earlier in the same posting is updated in place.
	for i := range effects.Opened {
		if effects.Opened[i].LotID == lot.LotID {
			effects.Opened[i] = lot
			return
		}
	}
	effects.Updated = append(effects.Updated, lot)
}

func containsLotOpenedBy(opened []domain.Lot, lotID string) bool {
	for _, lot := range opened {
		if lot.LotID == lotID {
			return true
		}
	}
	return false
}
