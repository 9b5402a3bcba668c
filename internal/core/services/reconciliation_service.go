package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfolio/portfolio_accountant/internal/core/domain"
	portsrepo "github.com/quantfolio/portfolio_accountant/internal/core/ports/repositories"
	portssvc "github.com/quantfolio/portfolio_accountant/internal/core/ports/services"
	"github.com/quantfolio/portfolio_accountant/internal/dto"
	"github.com/quantfolio/portfolio_accountant/internal/middleware"
)

// reconciliationService is the read-side position oracle. It never mutates
// state: mismatches are reported, not repaired.
type reconciliationService struct {
	lotRepo     portsrepo.LotRepositoryFacade
	journalRepo portsrepo.JournalRepositoryFacade
	actionRepo  portsrepo.CorporateActionRepositoryFacade
}

// NewReconciliationService creates a new reconciliation service.
func NewReconciliationService(
	lotRepo portsrepo.LotRepositoryFacade,
	journalRepo portsrepo.JournalRepositoryFacade,
	actionRepo portsrepo.CorporateActionRepositoryFacade,
) portssvc.ReconciliationSvcFacade {
	return &reconciliationService{
		lotRepo:     lotRepo,
		journalRepo: journalRepo,
		actionRepo:  actionRepo,
	}
}

var _ portssvc.ReconciliationSvcFacade = (*reconciliationService)(nil)

// Positions aggregates open lots into one row per (instrument, account).
func (s *reconciliationService) Positions(ctx context.Context, filter dto.PositionFilter) ([]domain.Position, error) {
	lots, err := s.lotRepo.AllOpenLots(ctx, filter.AccountID, filter.InstrumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load open lots: %w", err)
	}
	return aggregateOpenLots(lots), nil
}

// Reconcile replays every posted trade line and processed corporate action
// in posting-sequence order and compares the replayed quantities against lot
// inventory. The two must agree exactly; any difference is an invariant
// violation.
func (s *reconciliationService) Reconcile(ctx context.Context) (*domain.ReconciliationReport, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	tradeLines, err := s.journalRepo.ListPostedTradeLines(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load posted trade lines: %w", err)
	}
	actions, err := s.actionRepo.ListProcessedActions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load processed corporate actions: %w", err)
	}

	replayed := replayQuantities(tradeLines, actions)

	lots, err := s.lotRepo.AllOpenLots(ctx, "", "")
	if err != nil {
		return nil, fmt.Errorf("failed to load open lots: %w", err)
	}
	lotQty := make(map[domain.PositionKey]decimal.Decimal)
	for _, lot := range lots {
		key := domain.PositionKey{InstrumentID: lot.InstrumentID, AccountID: lot.AccountID}
		lotQty[key] = lotQty[key].Add(lot.QtyRemaining)
	}

	keys := make(map[domain.PositionKey]struct{})
	for key := range replayed {
		keys[key] = struct{}{}
	}
	for key := range lotQty {
		keys[key] = struct{}{}
	}

	report := &domain.ReconciliationReport{
		Reconciled: true,
		CheckedAt:  time.Now().UTC(),
	}
	for key := range keys {
		fromLots := lotQty[key]
		fromReplay := replayed[key]
		if fromLots.IsZero() && fromReplay.IsZero() {
			continue
		}
		report.PairsChecked++
		if !fromLots.Equal(fromReplay) {
			report.Reconciled = false
			report.Mismatches = append(report.Mismatches, domain.ReconciliationMismatch{
				InstrumentID: key.InstrumentID,
				AccountID:    key.AccountID,
				LotQuantity:  fromLots,
				ReplayedQty:  fromReplay,
				Difference:   fromLots.Sub(fromReplay),
			})
		}
	}
	sort.Slice(report.Mismatches, func(i, j int) bool {
		if report.Mismatches[i].InstrumentID != report.Mismatches[j].InstrumentID {
			return report.Mismatches[i].InstrumentID < report.Mismatches[j].InstrumentID
		}
		return report.Mismatches[i].AccountID < report.Mismatches[j].AccountID
	})

	if !report.Reconciled {
		logger.Error("reconciliation mismatch detected",
			slog.Int("pairs_checked", report.PairsChecked),
			slog.Int("mismatches", len(report.Mismatches)))
	}
	return report, nil
}

// replayQuantities folds trade lines and corporate actions, interleaved by
// posting sequence, into per-position quantities. The corporate action
// arithmetic mirrors the lot engine exactly: quantity scaling is exact
// decimal multiplication, so per-lot and aggregate application agree.
func replayQuantities(tradeLines []domain.LedgerEntry, actions []domain.CorporateAction) map[domain.PositionKey]decimal.Decimal {
	state := make(map[domain.PositionKey]decimal.Decimal)

	li, ai := 0, 0
	for li < len(tradeLines) || ai < len(actions) {
		if ai >= len(actions) || (li < len(tradeLines) && tradeLines[li].PostingSeq <= actions[ai].ProcessedSeq) {
			line := tradeLines[li]
			li++
			if line.TransactionType != domain.Trade {
				continue
			}
			key := domain.PositionKey{InstrumentID: line.InstrumentID, AccountID: line.AccountID}
			state[key] = state[key].Add(line.Quantity)
			continue
		}

		action := actions[ai]
		ai++
		applyActionToReplay(state, action)
	}
	return state
}

func applyActionToReplay(state map[domain.PositionKey]decimal.Decimal, action domain.CorporateAction) {
	switch action.Type {
	case domain.Split:
		scaleReplay(state, action.InstrumentID, action.Ratio)
	case domain.StockDividend:
		scaleReplay(state, action.InstrumentID, one.Add(action.Ratio))
	case domain.SymbolChange:
		for _, key := range replayPositionsIn(state, action.InstrumentID) {
			qty := state[key]
			delete(state, key)
			target := domain.PositionKey{InstrumentID: action.NewInstrumentID, AccountID: key.AccountID}
			state[target] = state[target].Add(qty)
		}
	case domain.Merger, domain.Spinoff:
		for _, key := range replayPositionsIn(state, action.InstrumentID) {
			qty := state[key]
			delete(state, key)
			for _, alloc := range action.Allocations {
				target := domain.PositionKey{InstrumentID: alloc.InstrumentID, AccountID: key.AccountID}
				state[target] = state[target].Add(qty.Mul(alloc.Ratio))
			}
		}
	case domain.CashDividend:
		// Cash dividends do not change quantities.
	}
}

// replayPositionsIn snapshots the keys currently held in one instrument. An
// allocation may target the source instrument itself, and mutating the map
// while ranging over it could skip or revisit the re-created key.
func replayPositionsIn(state map[domain.PositionKey]decimal.Decimal, instrumentID string) []domain.PositionKey {
	keys := make([]domain.PositionKey, 0, len(state))
	for key, qty := range state {
		if key.InstrumentID == instrumentID && !qty.IsZero() {
			keys = append(keys, key)
		}
	}
	return keys
}

func scaleReplay(state map[domain.PositionKey]decimal.Decimal, instrumentID string, factor decimal.Decimal) {
	for key, qty := range state {
		if key.InstrumentID != instrumentID {
			continue
		}
		state[key] = qty.Mul(factor)
	}
}

// aggregateOpenLots folds lots into positions, sorted by instrument then
// account.
func aggregateOpenLots(lots []domain.Lot) []domain.Position {
	byKey := make(map[domain.PositionKey]*domain.Position)
	for _, lot := range lots {
		key := domain.PositionKey{InstrumentID: lot.InstrumentID, AccountID: lot.AccountID}
		pos, ok := byKey[key]
		if !ok {
			pos = &domain.Position{
				InstrumentID: lot.InstrumentID,
				AccountID:    lot.AccountID,
				OldestOpen:   lot.OpenDate,
			}
			byKey[key] = pos
		}
		pos.Quantity = pos.Quantity.Add(lot.QtyRemaining)
		pos.CostTotal = pos.CostTotal.Add(lot.RemainingCost())
		pos.LotCount++
		if lot.OpenDate.Before(pos.OldestOpen) {
			pos.OldestOpen = lot.OpenDate
		}
	}

	positions := make([]domain.Position, 0, len(byKey))
	for _, pos := range byKey {
		if !pos.Quantity.IsZero() {
			pos.AvgCost = pos.CostTotal.Div(pos.Quantity).Round(costScale)
		}
		positions = append(positions, *pos)
	}
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].InstrumentID != positions[j].InstrumentID {
			return positions[i].InstrumentID < positions[j].InstrumentID
		}
		return positions[i].AccountID < positions[j].AccountID
	})
	return positions
}
