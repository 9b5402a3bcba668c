package services_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfolio/portfolio_accountant/internal/apperrors"
	"github.com/quantfolio/portfolio_accountant/internal/core/domain"
	"github.com/quantfolio/portfolio_accountant/internal/core/services"
	"github.com/quantfolio/portfolio_accountant/internal/dto"
)

func TestCreateInstrumentAppliesDefaultMethod(t *testing.T) {
	svc := services.NewInstrumentService(newFakeInstrumentRepo(), newFakePriceRepo(), domain.FIFO)
	ctx := context.Background()

	created, err := svc.CreateInstrument(ctx, dto.CreateInstrumentRequest{
		Symbol:         "ACME",
		Name:           "Acme Corp",
		InstrumentType: domain.EquityInstrument,
		CurrencyCode:   "USD",
	}, testUser)
	require.NoError(t, err)
	assert.Equal(t, domain.FIFO, created.CostBasisMethod)
	assert.True(t, created.IsActive)

	explicit, err := svc.CreateInstrument(ctx, dto.CreateInstrumentRequest{
		Symbol:          "AVGC",
		Name:            "Averaged Corp",
		InstrumentType:  domain.EquityInstrument,
		CurrencyCode:    "USD",
		CostBasisMethod: domain.Average,
	}, testUser)
	require.NoError(t, err)
	assert.Equal(t, domain.Average, explicit.CostBasisMethod)
}

func TestCreateInstrumentRejectsDuplicateActiveSymbol(t *testing.T) {
	svc := services.NewInstrumentService(newFakeInstrumentRepo(), newFakePriceRepo(), domain.FIFO)
	ctx := context.Background()

	_, err := svc.CreateInstrument(ctx, dto.CreateInstrumentRequest{
		Symbol:         "ACME",
		Name:           "Acme Corp",
		InstrumentType: domain.EquityInstrument,
		CurrencyCode:   "USD",
	}, testUser)
	require.NoError(t, err)

	_, err = svc.CreateInstrument(ctx, dto.CreateInstrumentRequest{
		Symbol:         "ACME",
		Name:           "Acme Again",
		InstrumentType: domain.EquityInstrument,
		CurrencyCode:   "USD",
	}, testUser)
	require.ErrorIs(t, err, apperrors.ErrDuplicate)
}

func TestUpdateInstrumentMethodFrozen(t *testing.T) {
	svc := services.NewInstrumentService(newFakeInstrumentRepo(), newFakePriceRepo(), domain.FIFO)
	ctx := context.Background()

	created, err := svc.CreateInstrument(ctx, dto.CreateInstrumentRequest{
		Symbol:         "ACME",
		Name:           "Acme Corp",
		InstrumentType: domain.EquityInstrument,
		CurrencyCode:   "USD",
	}, testUser)
	require.NoError(t, err)

	average := domain.Average
	_, err = svc.UpdateInstrument(ctx, created.InstrumentID, dto.UpdateInstrumentRequest{CostBasisMethod: &average}, testUser)
	require.ErrorIs(t, err, apperrors.ErrConflict)

	name := "Acme Corporation"
	updated, err := svc.UpdateInstrument(ctx, created.InstrumentID, dto.UpdateInstrumentRequest{Name: &name}, testUser)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corporation", updated.Name)
}

func TestRecordAndLatestPrice(t *testing.T) {
	svc := services.NewInstrumentService(newFakeInstrumentRepo(), newFakePriceRepo(), domain.FIFO)
	ctx := context.Background()

	created, err := svc.CreateInstrument(ctx, dto.CreateInstrumentRequest{
		Symbol:         "ACME",
		Name:           "Acme Corp",
		InstrumentType: domain.EquityInstrument,
		CurrencyCode:   "USD",
	}, testUser)
	require.NoError(t, err)

	err = svc.RecordPrice(ctx, created.InstrumentID, dto.RecordPriceRequest{
		Date: day(1), Close: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	err = svc.RecordPrice(ctx, created.InstrumentID, dto.RecordPriceRequest{
		Date: day(3), Close: decimal.NewFromInt(110),
	})
	require.NoError(t, err)

	err = svc.RecordPrice(ctx, created.InstrumentID, dto.RecordPriceRequest{
		Date: day(4), Close: decimal.Zero,
	})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	price, err := svc.LatestPrice(ctx, created.InstrumentID, day(2))
	require.NoError(t, err)
	assert.True(t, price.Close.Equal(decimal.NewFromInt(100)))

	price, err = svc.LatestPrice(ctx, created.InstrumentID, day(5))
	require.NoError(t, err)
	assert.True(t, price.Close.Equal(decimal.NewFromInt(110)))

	_, err = svc.LatestPrice(ctx, "inst-missing", day(5))
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
