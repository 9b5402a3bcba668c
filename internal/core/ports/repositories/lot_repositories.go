package repositories

import (
	"context"
	"time"

	"github.com/quantfolio/portfolio_accountant/internal/core/domain"
)

// LotRepositoryFacade reads lot state and the consumption/adjustment
// ledgers. All lot writes go through the journal or corporate-action
// repositories so they share the owning operation's commit boundary.
type LotRepositoryFacade interface {
	FindLotByID(ctx context.Context, lotID string) (*domain.Lot, error)
	// OpenLots returns open lots for one (instrument, account) pair in
	// FIFO order: open date ascending, then opening sequence, then lot id.
	OpenLots(ctx context.Context, instrumentID string, accountID string) ([]domain.Lot, error)
	// OpenLotsByInstrument returns open lots across all accounts holding
	// the instrument, grouped in the same FIFO order.
	OpenLotsByInstrument(ctx context.Context, instrumentID string) ([]domain.Lot, error)
	// AllOpenLots returns every open lot, optionally filtered.
	AllOpenLots(ctx context.Context, accountID string, instrumentID string) ([]domain.Lot, error)
	// LotsByOpenTransaction returns lots a posting opened.
	LotsByOpenTransaction(ctx context.Context, transactionID string) ([]domain.Lot, error)

	ConsumptionsByTransaction(ctx context.Context, transactionID string) ([]domain.LotConsumption, error)
	ConsumptionsByLotIDs(ctx context.Context, lotIDs []string) ([]domain.LotConsumption, error)
	ConsumptionsInRange(ctx context.Context, filter ConsumptionFilter) ([]domain.LotConsumption, error)
	AdjustmentsByLotIDs(ctx context.Context, lotIDs []string) ([]domain.LotAdjustment, error)
}

// ConsumptionFilter narrows consumption ledger queries for realized P&L
// reporting. Date bounds are inclusive and apply to the consuming trade's
// date.
type ConsumptionFilter struct {
	AccountID    string
	InstrumentID string
	DateFrom     *time.Time
	DateTo       *time.Time
	SeqFrom      int64
	SeqTo        int64
}
