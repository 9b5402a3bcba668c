package repositories

import (
	"context"
	"time"

	"github.com/quantfolio/portfolio_accountant/internal/core/domain"
)

// InstrumentRepositoryFacade defines persistence operations for instruments.
type InstrumentRepositoryFacade interface {
	SaveInstrument(ctx context.Context, instrument domain.Instrument) error
	FindInstrumentByID(ctx context.Context, instrumentID string) (*domain.Instrument, error)
	FindInstrumentsByIDs(ctx context.Context, instrumentIDs []string) (map[string]domain.Instrument, error)
	FindInstrumentBySymbol(ctx context.Context, symbol string) (*domain.Instrument, error)
	ListInstruments(ctx context.Context, limit int, offset int) ([]domain.Instrument, error)
	UpdateInstrument(ctx context.Context, instrument domain.Instrument) error
}

// PriceRepositoryFacade stores externally sourced closing prices. The core
// reads them only as a valuation default.
type PriceRepositoryFacade interface {
	SavePrice(ctx context.Context, price domain.Price) error
	// LatestPrice returns the most recent price on or before asOf, or
	// apperrors.ErrNotFound when none is stored.
	LatestPrice(ctx context.Context, instrumentID string, asOf time.Time) (*domain.Price, error)
}
