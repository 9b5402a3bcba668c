package services_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfolio/portfolio_accountant/internal/core/domain"
	"github.com/quantfolio/portfolio_accountant/internal/core/services"
	"github.com/quantfolio/portfolio_accountant/internal/dto"
)

func TestRealizedPnLFromConsumptions(t *testing.T) {
	env := newActionEnv(t, defaultDividendAccounts())
	priceRepo := newFakePriceRepo()
	svc := services.NewValuationService(env.lotRepo, priceRepo)

	env.postTrade(t, day(1), instACME, 10, 1000)
	env.postTrade(t, day(2), instACME, -4, 480)

	resp, err := svc.RealizedPnL(env.ctx, dto.RealizedPnLParams{})
	require.NoError(t, err)

	assert.True(t, resp.TotalProceeds.Equal(decimal.NewFromInt(480)))
	assert.True(t, resp.TotalCostBasis.Equal(decimal.NewFromInt(400)))
	assert.True(t, resp.TotalRealized.Equal(decimal.NewFromInt(80)))
	assert.True(t, resp.QuantityClosed.Equal(decimal.NewFromInt(4)))
	assert.Equal(t, 1, resp.LotsAffected)
}

func TestRealizedPnLHonorsDateRange(t *testing.T) {
	env := newActionEnv(t, defaultDividendAccounts())
	svc := services.NewValuationService(env.lotRepo, newFakePriceRepo())

	env.postTrade(t, day(1), instACME, 10, 1000)
	env.postTrade(t, day(2), instACME, -2, 240)
	env.postTrade(t, day(4), instACME, -3, 360)

	// Only the day(4) sale falls inside the window.
	from, to := day(3), day(5)
	resp, err := svc.RealizedPnL(env.ctx, dto.RealizedPnLParams{DateFrom: &from, DateTo: &to})
	require.NoError(t, err)

	assert.True(t, resp.TotalProceeds.Equal(decimal.NewFromInt(360)))
	assert.True(t, resp.TotalCostBasis.Equal(decimal.NewFromInt(300)))
	assert.True(t, resp.TotalRealized.Equal(decimal.NewFromInt(60)))
	assert.True(t, resp.QuantityClosed.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, 1, resp.LotsAffected)
}

func TestRealizedPnLEmptyLedger(t *testing.T) {
	env := newActionEnv(t, defaultDividendAccounts())
	svc := services.NewValuationService(env.lotRepo, newFakePriceRepo())

	resp, err := svc.RealizedPnL(env.ctx, dto.RealizedPnLParams{})
	require.NoError(t, err)
	assert.True(t, resp.TotalRealized.IsZero())
	assert.Equal(t, 0, resp.LotsAffected)
}

func TestUnrealizedPnLSuppliedPriceWins(t *testing.T) {
	env := newActionEnv(t, defaultDividendAccounts())
	priceRepo := newFakePriceRepo()
	svc := services.NewValuationService(env.lotRepo, priceRepo)

	env.postTrade(t, day(1), instACME, 10, 1000)
	env.postTrade(t, day(2), instACME, -4, 480)

	// A stored price exists, but the caller-supplied one must win.
	require.NoError(t, priceRepo.SavePrice(env.ctx, domain.Price{
		InstrumentID: instACME, Date: day(3), Close: decimal.NewFromInt(90),
	}))

	resp, err := svc.UnrealizedPnL(env.ctx, dto.UnrealizedPnLParams{
		Prices: map[string]decimal.Decimal{instACME: decimal.NewFromInt(120)},
	})
	require.NoError(t, err)
	require.Len(t, resp.Positions, 1)

	pos := resp.Positions[0]
	assert.False(t, pos.PriceMissing)
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(6)))
	assert.True(t, pos.CostBasis.Equal(decimal.NewFromInt(600)))
	assert.True(t, pos.MarketValue.Equal(decimal.NewFromInt(720)))
	assert.True(t, pos.Unrealized.Equal(decimal.NewFromInt(120)))
	assert.True(t, resp.TotalUnrealized.Equal(decimal.NewFromInt(120)))
}

func TestUnrealizedPnLFallsBackToStoredPrice(t *testing.T) {
	env := newActionEnv(t, defaultDividendAccounts())
	priceRepo := newFakePriceRepo()
	svc := services.NewValuationService(env.lotRepo, priceRepo)

	env.postTrade(t, day(1), instACME, 10, 1000)

	require.NoError(t, priceRepo.SavePrice(env.ctx, domain.Price{
		InstrumentID: instACME, Date: day(2), Close: decimal.NewFromInt(95),
	}))
	require.NoError(t, priceRepo.SavePrice(env.ctx, domain.Price{
		InstrumentID: instACME, Date: day(4), Close: decimal.NewFromInt(105),
	}))

	asOf := day(3)
	resp, err := svc.UnrealizedPnL(env.ctx, dto.UnrealizedPnLParams{AsOf: &asOf})
	require.NoError(t, err)
	require.Len(t, resp.Positions, 1)

	// The day(4) price is after asOf; the day(2) close applies.
	pos := resp.Positions[0]
	assert.True(t, pos.MarketPrice.Equal(decimal.NewFromInt(95)))
	assert.True(t, pos.MarketValue.Equal(decimal.NewFromInt(950)))
	assert.True(t, pos.Unrealized.Equal(decimal.NewFromInt(-50)))
}

func TestUnrealizedPnLFlagsMissingPrice(t *testing.T) {
	env := newActionEnv(t, defaultDividendAccounts())
	svc := services.NewValuationService(env.lotRepo, newFakePriceRepo())

	env.postTrade(t, day(1), instACME, 10, 1000)

	resp, err := svc.UnrealizedPnL(env.ctx, dto.UnrealizedPnLParams{})
	require.NoError(t, err)
	require.Len(t, resp.Positions, 1)

	pos := resp.Positions[0]
	assert.True(t, pos.PriceMissing)
	assert.True(t, pos.MarketValue.IsZero())
	// Cost basis is still reported; the position is never valued at zero.
	assert.True(t, resp.TotalCostBasis.Equal(decimal.NewFromInt(1000)))
	assert.True(t, resp.TotalUnrealized.IsZero())
}

func TestPnLReportCombinesRealizedAndUnrealized(t *testing.T) {
	env := newActionEnv(t, defaultDividendAccounts())
	priceRepo := newFakePriceRepo()
	svc := services.NewValuationService(env.lotRepo, priceRepo)

	env.postTrade(t, day(1), instACME, 10, 1000)
	env.postTrade(t, day(2), instACME, -4, 480)

	report, err := svc.PnLReport(env.ctx, dto.UnrealizedPnLParams{
		Prices: map[string]decimal.Decimal{instACME: decimal.NewFromInt(120)},
	})
	require.NoError(t, err)

	assert.True(t, report.Realized.TotalRealized.Equal(decimal.NewFromInt(80)))
	assert.True(t, report.Unrealized.TotalUnrealized.Equal(decimal.NewFromInt(120)))
	assert.True(t, report.TotalPnL.Equal(decimal.NewFromInt(200)))
	assert.False(t, report.GeneratedAt.IsZero())
}
