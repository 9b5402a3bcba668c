package pgsql

import (
	"github.com/jackc/pgx/v5/pgxpool"

	portsrepo "github.com/quantfolio/portfolio_accountant/internal/core/ports/repositories"
)

// NewRepositoryProvider wires every pgsql repository against one pool.
func NewRepositoryProvider(dbPool *pgxpool.Pool) portsrepo.RepositoryProvider {
	return portsrepo.RepositoryProvider{
		AccountRepo:         newPgxAccountRepository(dbPool),
		InstrumentRepo:      newPgxInstrumentRepository(dbPool),
		PriceRepo:           newPgxPriceRepository(dbPool),
		JournalRepo:         newPgxJournalRepository(dbPool),
		LotRepo:             newPgxLotRepository(dbPool),
		CorporateActionRepo: newPgxCorporateActionRepository(dbPool),
	}
}
