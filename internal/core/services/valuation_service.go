package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quantfolio/portfolio_accountant/internal/apperrors"
	"github.com/quantfolio/portfolio_accountant/internal/core/domain"
	portsrepo "github.com/quantfolio/portfolio_accountant/internal/core/ports/repositories"
	portssvc "github.com/quantfolio/portfolio_accountant/internal/core/ports/services"
	"github.com/quantfolio/portfolio_accountant/internal/dto"
)

// valuationService reports realized P&L from the consumption ledger and
// unrealized P&L by valuing open positions against market prices.
type valuationService struct {
	lotRepo   portsrepo.LotRepositoryFacade
	priceRepo portsrepo.PriceRepositoryFacade
}

// NewValuationService creates a new valuation service.
func NewValuationService(lotRepo portsrepo.LotRepositoryFacade, priceRepo portsrepo.PriceRepositoryFacade) portssvc.ValuationSvcFacade {
	return &valuationService{lotRepo: lotRepo, priceRepo: priceRepo}
}

var _ portssvc.ValuationSvcFacade = (*valuationService)(nil)

// RealizedPnL aggregates recorded consumptions, optionally bounded by the
// consuming trade's date. Realized gain is always proceeds minus the cost
// basis charged at close time; it is never re-derived from lot state.
func (s *valuationService) RealizedPnL(ctx context.Context, params dto.RealizedPnLParams) (*dto.RealizedPnLResponse, error) {
	consumptions, err := s.lotRepo.ConsumptionsInRange(ctx, portsrepo.ConsumptionFilter{
		AccountID:    params.AccountID,
		InstrumentID: params.InstrumentID,
		DateFrom:     params.DateFrom,
		DateTo:       params.DateTo,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load consumptions: %w", err)
	}

	resp := &dto.RealizedPnLResponse{}
	lotIDs := make(map[string]struct{})
	for _, c := range consumptions {
		resp.TotalProceeds = resp.TotalProceeds.Add(c.ProceedsAmount)
		resp.TotalCostBasis = resp.TotalCostBasis.Add(c.CostAmount)
		resp.QuantityClosed = resp.QuantityClosed.Add(c.Quantity)
		lotIDs[c.LotID] = struct{}{}
	}
	resp.TotalRealized = resp.TotalProceeds.Sub(resp.TotalCostBasis)
	resp.LotsAffected = len(lotIDs)
	return resp, nil
}

// UnrealizedPnL values open positions. Caller-supplied prices win; positions
// without one fall back to the latest stored price on or before AsOf.
// Positions with no price at all are flagged, never silently valued at zero.
func (s *valuationService) UnrealizedPnL(ctx context.Context, params dto.UnrealizedPnLParams) (*dto.UnrealizedPnLResponse, error) {
	lots, err := s.lotRepo.AllOpenLots(ctx, params.AccountID, params.InstrumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load open lots: %w", err)
	}
	positions := aggregateOpenLots(lots)

	asOf := time.Now().UTC()
	if params.AsOf != nil {
		asOf = *params.AsOf
	}

	resp := &dto.UnrealizedPnLResponse{}
	for _, pos := range positions {
		valued := domain.UnrealizedPosition{
			InstrumentID: pos.InstrumentID,
			AccountID:    pos.AccountID,
			Quantity:     pos.Quantity,
			CostBasis:    pos.CostTotal,
		}

		price, ok := params.Prices[pos.InstrumentID]
		if !ok {
			stored, err := s.priceRepo.LatestPrice(ctx, pos.InstrumentID, asOf)
			switch {
			case err == nil:
				price = stored.Close
				ok = true
			case errors.Is(err, apperrors.ErrNotFound):
				// No price anywhere; flag the position.
			default:
				return nil, fmt.Errorf("failed to load price for instrument %s: %w", pos.InstrumentID, err)
			}
		}

		if ok {
			valued.MarketPrice = price
			valued.MarketValue = pos.Quantity.Mul(price)
			valued.Unrealized = valued.MarketValue.Sub(pos.CostTotal)
			resp.TotalMarketVal = resp.TotalMarketVal.Add(valued.MarketValue)
			resp.TotalUnrealized = resp.TotalUnrealized.Add(valued.Unrealized)
		} else {
			valued.PriceMissing = true
		}
		resp.TotalCostBasis = resp.TotalCostBasis.Add(pos.CostTotal)
		resp.Positions = append(resp.Positions, valued)
	}
	return resp, nil
}

// PnLReport combines realized and unrealized P&L in one response.
func (s *valuationService) PnLReport(ctx context.Context, params dto.UnrealizedPnLParams) (*dto.PnLReportResponse, error) {
	realized, err := s.RealizedPnL(ctx, dto.RealizedPnLParams{
		AccountID:    params.AccountID,
		InstrumentID: params.InstrumentID,
	})
	if err != nil {
		return nil, err
	}
	unrealized, err := s.UnrealizedPnL(ctx, params)
	if err != nil {
		return nil, err
	}

	return &dto.PnLReportResponse{
		Realized:    *realized,
		Unrealized:  *unrealized,
		TotalPnL:    realized.TotalRealized.Add(unrealized.TotalUnrealized),
		GeneratedAt: time.Now().UTC(),
	}, nil
}
